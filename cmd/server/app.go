package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"video-narrator/api/rest/handlers"
	"video-narrator/config"
	"video-narrator/core/monitoring"
	"video-narrator/core/pipeline"
	"video-narrator/core/repository"
	"video-narrator/core/spec"
	"video-narrator/core/transcoder"
	"video-narrator/logging"
	"video-narrator/providers/analysis"
	"video-narrator/providers/aws"
	"video-narrator/providers/narration"
	"video-narrator/storage"

	"go.uber.org/zap"
)

// app holds the components shared by the serve and process commands.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	workspace *storage.Workspace
	db        *repository.DB
	registry  *repository.Registry
	media     *transcoder.Transcoder
	templates *spec.Catalog
	storage   *aws.Storage
	stages    *monitoring.StageTracker
	pipeline  *pipeline.Orchestrator
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}
	if err := a.init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context) error {
	cfg := a.cfg

	ws, err := storage.NewWorkspace(cfg.DataDir, a.logger)
	if err != nil {
		return err
	}
	if err := ws.Lock(); err != nil {
		return err
	}
	a.workspace = ws

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	a.registry = repository.NewRegistry(store, a.logger)

	a.templates = spec.DefaultCatalog()
	if cfg.TemplatesFile != "" {
		if a.templates, err = spec.LoadCatalog(cfg.TemplatesFile); err != nil {
			return fmt.Errorf("load templates: %w", err)
		}
	}

	a.media = transcoder.New(cfg.FFmpegBin, nil, a.logger,
		transcoder.WithProgress(func(op string, position time.Duration) {
			a.logger.Debug("ffmpeg progress", zap.String("op", op), zap.Duration("position", position))
		}),
	)

	deps := pipeline.Deps{
		Registry: a.registry,
		Media:    a.media,
		Analyzer: analysis.NewClient(analysis.Config{
			APIKey:  cfg.GeminiAPIKey,
			BaseURL: cfg.GeminiBaseURL,
			Model:   cfg.GeminiModel,
		}),
		Narrator: narration.NewClient(narration.Config{
			APIKey:    cfg.ElevenLabsAPIKey,
			VoiceID:   cfg.ElevenLabsVoiceID,
			ModelID:   cfg.ElevenLabsModelID,
			BaseURL:   cfg.ElevenLabsBaseURL,
			OutputDir: ws.Temp,
		}, a.logger),
		Workspace: ws,
		Templates: a.templates,
	}

	if cfg.StorageEnabled() {
		a.storage, err = aws.NewStorage(ctx, aws.StorageConfig{
			Bucket:        cfg.S3Bucket,
			Region:        cfg.AWSRegion,
			Prefix:        cfg.S3Prefix,
			PublicBaseURL: cfg.S3PublicBaseURL,
			URLExpiry:     cfg.S3URLExpiry,
		}, a.logger)
		if err != nil {
			return err
		}
		deps.Publisher = a.storage
	} else {
		a.logger.Info("durable storage disabled, outputs stay local")
	}

	a.stages = monitoring.NewStageTracker()
	deps.Observer = a.stages

	a.pipeline = pipeline.New(deps, pipeline.Options{
		ProviderScripts:  cfg.ScriptMode == config.ScriptModeProvider,
		ScriptRetries:    cfg.ScriptRetries,
		ScriptRetryDelay: cfg.ScriptRetryDelay,
		AssembleSegments: cfg.CombineMode == config.CombineModeSegments,
		TrimToScript:     cfg.TrimToScript,
	}, a.logger)

	a.logger.Info("narrator initialized",
		zap.String("data_dir", cfg.DataDir),
		zap.String("job_store", cfg.JobStoreDriver),
		zap.String("script_mode", cfg.ScriptMode),
		zap.String("combine_mode", cfg.CombineMode),
		zap.Int("templates", len(a.templates.All())),
	)
	return nil
}

func (a *app) openStore(ctx context.Context) (repository.JobStore, error) {
	var dsn string
	switch a.cfg.JobStoreDriver {
	case repository.DriverPostgres:
		dsn = a.cfg.DatabaseURL
	case repository.DriverSQLite:
		dsn = a.cfg.SQLiteDSN()
		if abs, err := filepath.Abs(dsn); err == nil {
			dsn = abs
		}
	default:
		return repository.NewMemoryStore(), nil
	}

	db, err := repository.NewDB(ctx, a.cfg.JobStoreDriver, dsn)
	if err != nil {
		return nil, err
	}
	a.db = db
	a.logger.Info("job store connected", zap.String("driver", db.Driver()))
	return repository.NewJobRepository(db), nil
}

// signer returns the durable store, or nil when it is disabled.
func (a *app) signer() handlers.URLSigner {
	if a.storage == nil {
		return nil
	}
	return a.storage
}

// Close releases the database and the workspace lock.
func (a *app) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("close database", zap.Error(err))
		}
	}
	if a.workspace != nil {
		if err := a.workspace.Unlock(); err != nil {
			a.logger.Warn("release workspace lock", zap.Error(err))
		}
	}
	a.logger.Sync()
}
