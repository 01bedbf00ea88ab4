package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"finadvisor/internal/advisor"
	"finadvisor/internal/assembler"
	"finadvisor/internal/config"
	"finadvisor/internal/docstore"
	"finadvisor/internal/intent"
	"finadvisor/internal/llm"
	"finadvisor/internal/mcpserver"
	"finadvisor/internal/memory"
	"finadvisor/internal/records"
	"finadvisor/internal/retrieval"
	"finadvisor/internal/storage"
	"finadvisor/internal/syncer"
)

// app holds the wired components shared by every subcommand.
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	store     docstore.Store
	source    records.Source
	db        *gorm.DB
	redis     *redis.Client
	memory    *memory.Manager
	syncer    *syncer.Engine
	router    *llm.Router
	recorder  *storage.FileRecorder
	advisor   *advisor.Advisor
	inspector *mcpserver.Inspector
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	if a.store, err = openStore(ctx, cfg, logger); err != nil {
		return nil, fmt.Errorf("open document store: %w", err)
	}

	switch cfg.RecordsDriver {
	case config.RecordsPostgres:
		a.db, err = records.ConnectPostgres(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns)
		if err != nil {
			return nil, err
		}
		a.source = records.NewPostgresSource(a.db)
	default:
		src, err := records.NewYAMLSource(cfg.RecordsDir)
		if err != nil {
			return nil, fmt.Errorf("open records dir: %w", err)
		}
		a.source = src
	}

	var backend memory.Backend
	if cfg.RedisURL != "" {
		a.redis, err = records.ConnectRedis(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		rb, err := memory.NewRedisBackend(ctx, a.redis, cfg.SessionTTL)
		if err != nil {
			return nil, err
		}
		backend = rb
		logger.Info("session memory backed by redis")
	}
	a.memory = memory.NewManager(backend, cfg.MemoryMaxTurns)
	a.syncer = syncer.New(a.store, a.source, a.memory, cfg.SyncWorkers, logger)

	a.router = llm.NewRouter(cfg.ProviderTimeout, logger)
	llm.NewFactory(cfg).RegisterAll(ctx, a.router, logger)

	a.recorder, err = storage.NewFileRecorder(cfg.AuditLogPath)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	level, err := assembler.ParseLevel(cfg.DefaultInsightLevel)
	if err != nil {
		return nil, fmt.Errorf("DEFAULT_INSIGHT_LEVEL: %w", err)
	}
	budgets := assembler.Budgets{
		assembler.Focused:       cfg.BudgetFocused,
		assembler.Balanced:      cfg.BudgetBalanced,
		assembler.Comprehensive: cfg.BudgetComprehensive,
	}

	a.advisor = advisor.New(advisor.Deps{
		Classifier: intent.NewClassifier(),
		Assembler:  assembler.New(a.store, retrieval.New(a.store), a.memory, budgets, logger),
		Router:     a.router,
		Memory:     a.memory,
		Syncer:     a.syncer,
		Recorder:   a.recorder,
	}, advisor.Options{
		SystemPrompt:      advisor.LoadSystemPrompt(cfg.SystemPromptPath, logger),
		DefaultLevel:      level,
		PreferredProvider: cfg.PreferredProvider,
	}, logger)

	a.inspector = mcpserver.New(mcpserver.Deps{
		Store:    a.store,
		Turns:    a.advisor,
		Syncer:   a.syncer,
		Recorder: a.recorder,
	}, logger)
	return a, nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (docstore.Store, error) {
	if cfg.StoreDriver == config.StoreFile {
		s, err := docstore.NewFileStore(cfg.StorePath, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	s, err := docstore.NewSQLiteStore(ctx, cfg.StorePath, logger)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("close document store", zap.Error(err))
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}
