package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	sharedauth "github.com/sortit/sortit-services/shared-libs/auth"
	"github.com/sortit/sortit-services/shared-libs/envconfig"
	"github.com/sortit/sortit-services/shared-libs/logging"
	sharedmetrics "github.com/sortit/sortit-services/shared-libs/metrics"
	"github.com/sortit/sortit-services/shared-libs/ratelimit"
	sharedserver "github.com/sortit/sortit-services/shared-libs/server"

	"github.com/sortit/sortit-services/scan-service/internal/classify"
	"github.com/sortit/sortit-services/scan-service/internal/config"
	"github.com/sortit/sortit-services/scan-service/internal/httpapi"
	"github.com/sortit/sortit-services/scan-service/internal/progress"
	"github.com/sortit/sortit-services/scan-service/internal/scan"
)

const serviceName = "scan-service"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := envconfig.LoadDotEnv(); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	logger := logging.NewLogger(serviceName)
	slog.SetDefault(logger)

	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("progress store: %w", err)
	}
	defer store.Close()
	logger.Info("progress store ready", slog.String("datastore", cfg.Datastore))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	httpMetrics := sharedmetrics.NewHTTP(reg)
	scanMetrics := scan.NewMetrics(reg)

	classifier := newClassifier(ctx, cfg, logger)
	defer classifier.Close()
	classifier = classify.WithFallback(classifier, logger, scanMetrics.ObserveFallback)

	scanService, err := scan.NewService(store, classifier, scan.Options{
		Location:        loc,
		HistoryLimit:    cfg.HistoryLimit,
		ClassifyTimeout: cfg.LLM.Timeout,
		Logger:          logger,
		Metrics:         scanMetrics,
	})
	if err != nil {
		return fmt.Errorf("scan service init error: %w", err)
	}

	verifier, err := sharedauth.NewVerifier(ctx, sharedauth.Config{
		Mode:                    cfg.Auth.Mode,
		JWKSURL:                 cfg.Auth.JWKSURL,
		Audience:                cfg.Auth.Audience,
		Issuer:                  cfg.Auth.Issuer,
		FirebaseProjectID:       cfg.GCPProjectID,
		FirebaseCredentialsJSON: cfg.Auth.FirebaseCredentialsJSON,
		FirebaseCredentialsFile: cfg.Auth.FirebaseCredentialsFile,
	})
	if err != nil {
		return fmt.Errorf("auth verifier error: %w", err)
	}

	limiter := ratelimit.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst, 10*time.Minute)

	router := sharedserver.NewRouter(serviceName, sharedserver.RouterOptions{
		Timeout:    cfg.RequestTimeout + 5*time.Second,
		Middleware: []func(http.Handler) http.Handler{httpMetrics.Middleware},
		Metrics:    sharedmetrics.Handler(reg, cfg.Metrics.User, cfg.Metrics.Pass),
	}, func(r chi.Router) {
		httpapi.RegisterRoutes(r, scanService, httpapi.Options{
			Verifier: verifier,
			Limiter:  limiter,
			Logger:   logger,
		})
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return sharedserver.Run(gctx, srv, logger)
	})
	g.Go(func() error {
		return limiter.Run(gctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func openStore(ctx context.Context, cfg config.Config) (progress.Store, error) {
	switch cfg.Datastore {
	case config.DatastoreFirestore:
		client, err := firestore.NewClientWithDatabase(ctx, cfg.GCPProjectID, cfg.Firestore.DatabaseID)
		if err != nil {
			return nil, fmt.Errorf("firestore client: %w", err)
		}
		return progress.NewFirestoreStore(client), nil
	case config.DatastorePostgres:
		store, err := progress.NewPostgresStore(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.DatastoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		return progress.NewRedisStore(client), nil
	case config.DatastoreSQLite:
		store, err := progress.NewSQLiteStore(cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return progress.NewMemoryStore(), nil
	}
}

func newClassifier(ctx context.Context, cfg config.Config, logger *slog.Logger) classify.Classifier {
	if cfg.LLM.Disabled {
		logger.Warn("classifier disabled, every scan uses the fallback result")
		return classify.NewFallbackClassifier()
	}
	gemini, err := classify.NewGeminiClassifier(ctx, classify.GeminiConfig{
		APIKey:    cfg.LLM.APIKey,
		Model:     cfg.LLM.Model,
		UseVertex: cfg.LLM.UseVertex,
		Project:   cfg.GCPProjectID,
		Location:  cfg.LLM.Location,
	})
	if err != nil {
		logger.Warn("falling back to static classifier", slog.String("reason", err.Error()))
		return classify.NewFallbackClassifier()
	}
	return gemini
}
