package app

import (
	"fmt"
	"time"

	"github.com/recipenow/recipenow-backend/internal/clients/gcp"
	"github.com/recipenow/recipenow-backend/internal/clients/ocr"
	"github.com/recipenow/recipenow-backend/internal/clients/openai"
	redisclient "github.com/recipenow/recipenow-backend/internal/clients/redis"
	"github.com/recipenow/recipenow-backend/internal/data/repos"
	httpserver "github.com/recipenow/recipenow-backend/internal/http"
	"github.com/recipenow/recipenow-backend/internal/http/handlers"
	"github.com/recipenow/recipenow-backend/internal/http/middleware"
	"github.com/recipenow/recipenow-backend/internal/ingestion/extractor"
	"github.com/recipenow/recipenow-backend/internal/ingestion/fallback"
	"github.com/recipenow/recipenow-backend/internal/ingestion/merge"
	"github.com/recipenow/recipenow-backend/internal/ingestion/rotation"
	"github.com/recipenow/recipenow-backend/internal/jobs"
	"github.com/recipenow/recipenow-backend/internal/jobs/pipeline/recipe_extract"
	"github.com/recipenow/recipenow-backend/internal/jobs/pipeline/recipe_ingest"
	"github.com/recipenow/recipenow-backend/internal/jobs/pipeline/recipe_normalize"
	"github.com/recipenow/recipenow-backend/internal/jobs/runtime"
	"github.com/recipenow/recipenow-backend/internal/platform/media"
	"github.com/recipenow/recipenow-backend/internal/services"
)

const shutdownTimeout = 5 * time.Second

func (a *App) wire() error {
	log := a.Log
	cfg := a.Cfg

	// Repos
	assetRepo := repos.NewMediaAssetRepo(a.DB, log)
	lineRepo := repos.NewOCRLineRepo(a.DB, log)
	recipeRepo := repos.NewRecipeRepo(a.DB, log)
	spanRepo := repos.NewSourceSpanRepo(a.DB, log)
	statusRepo := repos.NewFieldStatusRepo(a.DB, log)
	jobRepo := repos.NewJobRunRepo(a.DB, log)

	// Media storage
	var store media.Store
	switch cfg.MediaStore {
	case "gcs":
		bucket, err := gcp.NewBucketStore(log)
		if err != nil {
			return fmt.Errorf("init gcs store: %w", err)
		}
		a.closers = append(a.closers, bucket.Close)
		store = bucket
	case "local":
		local, err := media.NewLocalStore(cfg.MediaRoot, log)
		if err != nil {
			return fmt.Errorf("init local store: %w", err)
		}
		store = local
	default:
		return fmt.Errorf("unknown MEDIA_STORE %q", cfg.MediaStore)
	}

	// OCR collaborator
	var engine ocr.Engine
	switch cfg.OCREngine {
	case "gcp_vision":
		vision, err := gcp.NewVisionEngine(log)
		if err != nil {
			return fmt.Errorf("init vision engine: %w", err)
		}
		a.closers = append(a.closers, vision.Close)
		engine = vision
	case "tesseract":
		engine = ocr.NewTesseractEngine(log, cfg.OCRLanguages...)
	default:
		return fmt.Errorf("unknown OCR_ENGINE %q", cfg.OCREngine)
	}

	// Structured extraction is optional; without a model the pipeline runs
	// fallback-only.
	var ext *extractor.StructuredExtractor
	if model, err := openai.NewClient(log); err != nil {
		log.Warn("vision model unavailable, extraction will use the fallback parser only", "error", err)
	} else {
		ext = extractor.NewStructuredExtractor(model, log)
		ext.ImageDetail = cfg.Tuning.Extractor.ImageDetail
		ext.MalformedRetries = cfg.Tuning.Extractor.MalformedRetries
	}

	// Job event fan-out degrades to a no-op without redis.
	var notifier services.JobNotifier = services.NopNotifier{}
	if bus, err := redisclient.NewJobBus(log); err != nil {
		log.Warn("redis unavailable, job events will not be published", "error", err)
	} else {
		a.closers = append(a.closers, bus.Close)
		notifier = services.NewJobNotifier(bus, log)
	}

	// Services
	pipelineSvc := services.NewPipelineService(jobRepo, notifier, log)
	assetSvc := services.NewAssetService(store, assetRepo, lineRepo, pipelineSvc, log)
	recipeSvc := services.NewRecipeService(a.DB, recipeRepo, spanRepo, statusRepo, pipelineSvc, log)
	overlaySvc := services.NewOverlayService(assetSvc, recipeSvc, log)

	// Ingestion components
	estimator := rotation.NewEstimator(engine, log)
	estimator.Threshold = cfg.Tuning.Rotation.MarginThreshold
	estimator.ScoreMaxEdge = cfg.Tuning.Rotation.ScoreMaxEdge
	parser := fallback.NewParser(log)
	policy := merge.NewPolicy(log)

	// Pipelines
	ingest := recipe_ingest.New(a.DB, log, store, engine, estimator, assetRepo, lineRepo, recipeRepo, pipelineSvc)
	ingest.OCRTimeout = cfg.Tuning.OCRTimeout()
	extract := recipe_extract.New(a.DB, log, store, ext, parser, policy, assetRepo, lineRepo, recipeRepo, spanRepo, statusRepo, pipelineSvc)
	normalizeJob := recipe_normalize.New(a.DB, log, recipeRepo, statusRepo, spanRepo)

	registry := runtime.NewRegistry()
	for _, h := range []runtime.Handler{ingest, extract, normalizeJob} {
		if err := registry.Register(h); err != nil {
			return err
		}
	}

	wcfg := jobs.DefaultWorkerConfig()
	wcfg.Concurrency = cfg.Tuning.Worker.Concurrency
	wcfg.PollInterval = time.Duration(cfg.Tuning.Worker.PollIntervalMillis) * time.Millisecond
	wcfg.MaxAttempts = cfg.Tuning.Worker.MaxAttempts
	wcfg.RetryDelay = time.Duration(cfg.Tuning.Worker.RetryDelaySeconds) * time.Second
	wcfg.StaleRunning = time.Duration(cfg.Tuning.Worker.StaleRunningSeconds) * time.Second
	a.Worker = jobs.NewWorker(a.DB, log, jobRepo, registry, notifier, wcfg)

	// HTTP surface
	a.Router = httpserver.NewRouter(httpserver.RouterConfig{
		Log:         log,
		ServiceName: "recipenow-backend",
		CORSOrigins: cfg.CORSOrigins,
		Health:      handlers.NewHealthHandler(),
		Assets:      handlers.NewAssetHandler(assetSvc, log),
		Recipes:     handlers.NewRecipeHandler(recipeSvc, overlaySvc, log),
		Jobs:        handlers.NewJobHandler(pipelineSvc, log),
		Auth:        middleware.NewAuthMiddleware(log),
	})

	return nil
}
