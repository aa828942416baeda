package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/medscribe/medscribe-go/config"
	"github.com/medscribe/medscribe-go/internal/adapters/ollama"
	"github.com/medscribe/medscribe-go/internal/adapters/runner"
	"github.com/medscribe/medscribe-go/internal/adapters/whisper"
	"github.com/medscribe/medscribe-go/internal/core"
	"github.com/medscribe/medscribe-go/internal/data"
	"github.com/medscribe/medscribe-go/internal/observability/statsd"
	"github.com/medscribe/medscribe-go/internal/service"
)

// App holds the wired application components. Close releases every owned
// connection; components themselves are safe to use until then.
type App struct {
	Config  config.AppConfig
	Logger  *slog.Logger
	Metrics *statsd.Client

	Store    core.JobStore
	Pipeline *service.Pipeline
	Jobs     *service.JobService
	Watcher  *service.Watcher
	Runner   *runner.Runner

	redisClient *redis.Client
	db          *sql.DB
}

// NewApp builds the full application from configuration: store backend,
// collaborator clients, pipeline, job service, watcher, and worker pool.
func NewApp(ctx context.Context, cfg config.AppConfig, logger *slog.Logger) (*App, error) {
	app := &App{Config: cfg, Logger: logger}

	metrics, err := statsd.NewClient(statsd.Config{
		Enabled: cfg.Metrics.IsEnabled(),
		Address: cfg.Metrics.Address,
		Prefix:  cfg.Metrics.Prefix,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	app.Metrics = metrics

	if err := app.initStore(logger); err != nil {
		app.Close()
		return nil, err
	}

	archive, err := app.initArchive(ctx, logger)
	if err != nil {
		app.Close()
		return nil, err
	}

	transcriber := whisper.MustNewClient(whisper.ClientOptions{
		Config: whisper.Config{
			BaseURL:  cfg.Whisper.BaseURL,
			APIKey:   cfg.Whisper.APIKey,
			Model:    cfg.Whisper.Model,
			Language: cfg.Whisper.Language,
		},
		Logger: logger,
	})
	generator := ollama.MustNewClient(ollama.ClientOptions{
		Config: ollama.Config{
			BaseURL:     cfg.Ollama.BaseURL,
			APIKey:      cfg.Ollama.APIKey,
			Model:       cfg.Ollama.Model,
			Temperature: cfg.Ollama.Temperature,
		},
		Logger: logger,
	})

	app.Pipeline = service.MustNewPipeline(service.PipelineOptions{
		Transcriber: transcriber,
		Generator:   generator,
		Metrics:     metrics,
		Logger:      logger,
	})
	app.Jobs = service.MustNewJobService(service.JobServiceOptions{
		Store:    app.Store,
		Pipeline: app.Pipeline,
		Archive:  archive,
		Metrics:  metrics,
		Logger:   logger,
	})
	app.Watcher = service.MustNewWatcher(service.WatcherOptions{
		Store:  app.Store,
		Logger: logger,
	})
	app.Runner = runner.MustNewRunner(runner.Options{
		Jobs:        app.Jobs,
		Concurrency: cfg.Runner.Concurrency,
		QueueSize:   cfg.Runner.QueueSize,
		Metrics:     metrics,
		Logger:      logger,
	})

	return app, nil
}

func (a *App) initStore(logger *slog.Logger) error {
	switch a.Config.Store {
	case config.StoreBackendMemory:
		a.Store = data.NewMemoryJobStore(data.MemoryJobStoreOptions{
			TTL:    a.Config.JobTTL,
			Logger: logger,
		})
		logger.Info("using in-memory job store", "ttl", a.Config.JobTTL)
		return nil
	default:
		client, err := ConnectRedis(a.Config.Redis, logger)
		if err != nil {
			return err
		}
		a.redisClient = client
		store, err := data.NewRedisJobStore(data.RedisJobStoreOptions{
			Client: client,
			TTL:    a.Config.JobTTL,
			Logger: logger,
		})
		if err != nil {
			return err
		}
		a.Store = store
		return nil
	}
}

// initArchive connects the optional Postgres note archive. Returns nil when
// the archive is disabled; the job service treats that as no archive.
func (a *App) initArchive(ctx context.Context, logger *slog.Logger) (core.NoteArchive, error) {
	if !a.Config.Postgres.Enabled {
		return nil, nil
	}

	db, err := ConnectDB(a.Config.Postgres, logger)
	if err != nil {
		return nil, err
	}
	a.db = db

	repo := data.NewNoteArchiveRepo(db)
	if a.Config.Postgres.RunMigrationsOnStart {
		if err := repo.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate note archive: %w", err)
		}
		logger.Info("note archive schema ready")
	}
	return repo, nil
}

// Close releases owned connections. Safe to call on a partially built app.
func (a *App) Close() {
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.Logger.Warn("failed to close redis client", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.Logger.Warn("failed to close database", "error", err)
		}
	}
	if a.Metrics != nil {
		if err := a.Metrics.Close(); err != nil {
			a.Logger.Warn("failed to close metrics client", "error", err)
		}
	}
}
