package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"finadvisor/internal/config"
	"finadvisor/internal/logging"
)

var (
	envFile string

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "advisor",
	Short: "Financial advisory context and orchestration engine",
	Long: `advisor keeps per-user financial context documents in sync with canonical
records, assembles budgeted prompts around them and answers client questions
through whichever LLM provider is available.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
		var err error
		cfg, err = config.New()
		if err != nil {
			return err
		}
		logger, err = logging.New(cfg.LogLevel, cfg.LogFormat)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")

	syncCmd.Flags().BoolVar(&forceRebuild, "force", false, "rewrite documents even when their content is unchanged")
	docsCmd.Flags().StringSliceVar(&docCategories, "category", nil, "only show these categories")
	askCmd.Flags().StringVar(&askSession, "session", "", "session id (a new one is generated when empty)")
	askCmd.Flags().StringVar(&askLevel, "level", "", "insight level: focused, balanced or comprehensive")
	askCmd.Flags().StringVar(&askProvider, "provider", "", "preferred LLM provider")
	askCmd.Flags().BoolVar(&askShowPrompt, "show-prompt", false, "print the assembled context after the answer")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(docsCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(mcpCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
