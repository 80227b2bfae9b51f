// Package app wires configuration into the long-lived components shared by
// the command line tools.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"fsec/internal"
	"fsec/internal/config"
	"fsec/internal/logging"
	"fsec/internal/operator"
	"fsec/internal/pipeline"
	"fsec/internal/registry"
	"fsec/internal/sheet"
	"fsec/internal/storage"
	"fsec/internal/watch"
)

type App struct {
	Config    config.Config
	Logger    *zap.Logger
	Schema    internal.Schema
	Store     registry.Store
	DB        *storage.DB
	Resolver  *operator.Resolver
	Parser    *pipeline.Parser
	Processor *pipeline.Processor
}

// New opens the registry and output storage named by cfg. Callers must Close
// the result.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	schema, err := config.LoadSchema(cfg.SchemaPath)
	if err != nil {
		return nil, err
	}
	policy, err := pipeline.ParseMergePolicy(cfg.MergePolicy)
	if err != nil {
		return nil, err
	}
	dialect, err := storage.ParseDialect(cfg.StorageDriver)
	if err != nil {
		return nil, err
	}
	if dialect == storage.Postgres {
		if err := cfg.Require("STORAGE_DSN", cfg.StorageDSN); err != nil {
			return nil, err
		}
	}

	store, err := registry.Open(ctx, cfg.RegistryConfig(), logger.Named("registry"))
	if err != nil {
		return nil, err
	}
	db, err := storage.Open(ctx, dialect, cfg.StorageDSN)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open storage %s: %w", logging.SanitizeConnectionString(cfg.StorageDSN), err)
	}
	logger.Debug("storage opened",
		zap.String("driver", string(dialect)),
		zap.String("dsn", logging.SanitizeConnectionString(cfg.StorageDSN)),
		zap.String("registry", cfg.RegistryBackend))

	resolver := operator.NewResolver(store, cfg.ResolverConfig(), logger.Named("operator"))
	parser := pipeline.NewParser(schema, resolver, pipeline.ParserConfig{
		Header:        cfg.HeaderConfig(),
		ExcludeTokens: cfg.ExcludeTokens,
		MergePolicy:   policy,
	}, logger.Named("parser"))

	a := &App{
		Config:   cfg,
		Logger:   logger,
		Schema:   schema,
		Store:    store,
		DB:       db,
		Resolver: resolver,
		Parser:   parser,
	}
	a.WithOutputDir(cfg.OutputDir)
	return a, nil
}

// WithOutputDir (re)builds the batch processor with file sinks writing
// into dir.
func (a *App) WithOutputDir(dir string) {
	a.Config.OutputDir = dir
	a.Processor = pipeline.NewProcessor(a.Parser, sheet.NewReader(a.Logger.Named("sheet")), a.Store, a.sinks(dir), a.DB, a.Schema, pipeline.BatchConfig{
		AliasMapPath: a.Config.AliasMapPath,
		UnknownPath:  a.Config.UnknownPath,
	}, a.Logger.Named("batch"))
}

func (a *App) sinks(dir string) []pipeline.Sink {
	out := []pipeline.Sink{}
	for _, name := range a.Config.Sinks {
		switch name {
		case "xlsx":
			out = append(out, pipeline.XLSXSink{Dir: dir})
		case "parquet":
			out = append(out, pipeline.ParquetSink{Dir: dir})
		case "db":
			out = append(out, a.DB)
		}
	}
	return out
}

// Watcher returns the download directory poller over a's processor.
func (a *App) Watcher() (*watch.Service, error) {
	dl, err := watch.LoadDownloadLog(a.Config.DownloadLog)
	if err != nil {
		return nil, err
	}
	return watch.NewService(a.Processor, dl, watch.Config{
		Dir:       a.Config.DownloadDir,
		Interval:  time.Duration(a.Config.WatchIntervalSec) * time.Second,
		Recursive: a.Config.WatchRecursive,
	}, a.Logger.Named("watch")), nil
}

func (a *App) Close() {
	if err := a.Store.Close(); err != nil {
		a.Logger.Warn("registry close failed", zap.Error(err))
	}
	if err := a.DB.Close(); err != nil {
		a.Logger.Warn("storage close failed", zap.Error(err))
	}
	_ = a.Logger.Sync()
}
