package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"finadvisor/internal/advisor"
	"finadvisor/internal/config"
	"finadvisor/internal/docstore"
	"finadvisor/internal/httpapi"
	"finadvisor/internal/records"
	"finadvisor/internal/scheduler"
	"finadvisor/internal/telegram"
)

var (
	forceRebuild  bool
	docCategories []string
	askSession    string
	askLevel      string
	askProvider   string
	askShowPrompt bool
)

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, sync listeners, scheduler and optional Telegram bot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.close()
		return a.serve(ctx)
	},
}

func (a *app) serve(ctx context.Context) error {
	if results, err := a.syncer.SyncAll(ctx, nil, false); err != nil {
		a.logger.Warn("startup sync failed", zap.Error(err))
	} else {
		a.logger.Info("startup sync done", zap.Int("users", len(results)))
	}

	g, gctx := errgroup.WithContext(ctx)

	if a.cfg.RecordsDriver == config.RecordsYAML {
		w, err := records.NewDirWatcher(a.cfg.RecordsDir, a.logger)
		if err != nil {
			return err
		}
		defer w.Close()
		inv := w.Watch(gctx)
		g.Go(func() error {
			a.syncer.Run(gctx, inv)
			return nil
		})
	}
	if a.redis != nil {
		inv := records.NewRedisInvalidations(a.redis, a.cfg.RedisInvalidationChannel, a.logger).Watch(gctx)
		g.Go(func() error {
			a.syncer.Run(gctx, inv)
			return nil
		})
	}

	sched := scheduler.New(a.logger)
	if err := sched.Add(scheduler.JobSync, a.cfg.SyncSchedule, scheduler.SyncJob(a.syncer, a.logger)); err != nil {
		return err
	}
	if err := sched.Add(scheduler.JobReport, a.cfg.ReportSchedule, scheduler.ReportJob(a.recorder, a.logger, nil)); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	if a.cfg.TelegramBotToken != "" {
		links, err := a.cfg.TelegramLinks()
		if err != nil {
			return err
		}
		bot, err := telegram.New(a.cfg.TelegramBotToken, a.advisor, a.memory, links, a.logger)
		if err != nil {
			return err
		}
		g.Go(func() error {
			bot.Start(gctx)
			return nil
		})
	}

	deps := httpapi.Deps{
		Advisor:   a.advisor,
		Syncer:    a.syncer,
		Sessions:  a.memory,
		Store:     a.store,
		Providers: a.router,
	}
	if a.cfg.MCPEnabled {
		deps.MCP = a.inspector.SSEHandler()
	}
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(httpapi.NewHandler(deps, a.logger)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		a.logger.Info("http server listening", zap.String("addr", srv.Addr), zap.Bool("mcp", a.cfg.MCPEnabled))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

var syncCmd = &cobra.Command{
	Use:   "sync [user_id...]",
	Short: "Sync context documents for the given users, or all users",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.close()

		results, err := a.syncer.SyncAll(ctx, args, forceRebuild)
		if err != nil {
			return err
		}
		ids := make([]string, 0, len(results))
		for id := range results {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		out := cmd.OutOrStdout()
		failed := 0
		for _, id := range ids {
			r := results[id]
			if r.Err != nil {
				failed++
				fmt.Fprintf(out, "%s\tFAILED\t%v\n", id, r.Err)
				continue
			}
			var changed []string
			for _, c := range docstore.Categories {
				if r.Changed[c] {
					changed = append(changed, string(c))
				}
			}
			fmt.Fprintf(out, "%s\tok\tchanged=[%s]\n", id, strings.Join(changed, ","))
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d users failed to sync", failed, len(results))
		}
		return nil
	},
}

var docsCmd = &cobra.Command{
	Use:   "docs <user_id>",
	Short: "Print a user's stored context documents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.close()

		cats := make([]docstore.Category, 0, len(docCategories))
		for _, c := range docCategories {
			cat := docstore.Category(c)
			if !cat.Valid() {
				return fmt.Errorf("%w: %q", docstore.ErrInvalidCategory, c)
			}
			cats = append(cats, cat)
		}
		docs, err := a.store.Query(ctx, args[0], cats...)
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			return fmt.Errorf("no documents for user %s, run sync first", args[0])
		}
		out := cmd.OutOrStdout()
		for _, d := range docs {
			fmt.Fprintf(out, "=== %s (updated %s, hash %.12s)\n%s\n", d.ID,
				d.Metadata.LastUpdated.Format(time.RFC3339), d.Metadata.ContentHash, d.Content)
		}
		return nil
	},
}

var askCmd = &cobra.Command{
	Use:   "ask <user_id> <question...>",
	Short: "Run one advisory turn and print the answer",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.close()

		reply, err := a.advisor.Ask(ctx, advisor.Request{
			UserID:       args[0],
			SessionID:    askSession,
			Message:      strings.Join(args[1:], " "),
			InsightLevel: askLevel,
			Provider:     askProvider,
		})
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, reply.Message)
		fmt.Fprintf(out, "\n[session=%s intent=%s level=%s provider=%s", reply.SessionID, reply.Intent, reply.Level, reply.Provider)
		if reply.Trust != nil {
			fmt.Fprintf(out, " trust=%d passed=%t", reply.Trust.Score, reply.Trust.Passed)
		}
		if len(reply.Warnings) > 0 {
			fmt.Fprintf(out, " warnings=%s", strings.Join(reply.Warnings, ","))
		}
		fmt.Fprintln(out, "]")

		if askShowPrompt {
			ev, ok, err := a.advisor.LastTurn(args[0])
			if err != nil {
				return err
			}
			if ok {
				fmt.Fprintf(out, "\n--- assembled context (%s) ---\n%s\n", strings.Join(ev.Sections, ", "), ev.Prompt)
			}
		}
		return nil
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the inspection tools over MCP stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.close()
		return a.inspector.RunStdio(ctx)
	},
}
