package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/healthflow/fhirsync/internal/config"
	"github.com/healthflow/fhirsync/internal/domain/bundle"
	"github.com/healthflow/fhirsync/internal/domain/ingest"
	"github.com/healthflow/fhirsync/internal/domain/resource"
	"github.com/healthflow/fhirsync/internal/platform/admission"
	"github.com/healthflow/fhirsync/internal/platform/auth"
	"github.com/healthflow/fhirsync/internal/platform/db"
	"github.com/healthflow/fhirsync/internal/platform/events"
	"github.com/healthflow/fhirsync/internal/platform/metrics"
	"github.com/healthflow/fhirsync/internal/platform/middleware"
	"github.com/healthflow/fhirsync/internal/platform/upstream"
	"github.com/healthflow/fhirsync/internal/platform/webhook"
	"github.com/healthflow/fhirsync/internal/platform/websocket"
)

// app holds the wired service graph shared by serve and the sync commands.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger

	pool      *pgxpool.Pool
	upstream  *upstream.Client
	resources *resource.Service
	archiver  *bundle.Archiver
	sync      *ingest.Service
	hub       *websocket.Hub
	metrics   *metrics.Recorder
	admission *admission.Controller
	clientIP  echo.IPExtractor

	closers []io.Closer
}

func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	if cfg.IsDev() {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.clientIP, err = ipExtractor(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.NeedsDatabase() {
		a.pool, err = db.Connect(ctx, db.PoolConfig{
			URL:            cfg.DatabaseURL,
			MaxConns:       cfg.DBMaxConns,
			MinConns:       cfg.DBMinConns,
			ConnectTimeout: cfg.DBConnectTimeout,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		logger.Info().Msg("connected to database")
	}

	var resourceRepo resource.Repository
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		resourceRepo = resource.NewPGRepository(a.pool)
	default:
		resourceRepo = resource.NewMemoryRepository()
	}

	var bundleRepo bundle.Repository
	switch cfg.BundleBackend {
	case config.BackendPostgres:
		bundleRepo = bundle.NewPGRepository(a.pool)
	case config.BackendS3:
		client, err := bundle.NewS3Client(ctx, bundle.S3Config{
			Region:         cfg.S3Region,
			Endpoint:       cfg.S3Endpoint,
			ForcePathStyle: cfg.S3ForcePathStyle,
		})
		if err != nil {
			return nil, err
		}
		bundleRepo = bundle.NewS3Repository(client, cfg.S3Bucket, cfg.S3Prefix)
	default:
		bundleRepo = bundle.NewMemoryRepository()
	}
	logger.Info().
		Str("store_backend", cfg.StoreBackend).
		Str("bundle_backend", cfg.BundleBackend).
		Msg("storage configured")

	a.resources = resource.NewService(resourceRepo, resource.WithStoreTimeout(cfg.StoreTimeout))
	a.archiver = bundle.NewArchiver(bundleRepo, bundle.WithStoreTimeout(cfg.StoreTimeout))

	a.upstream, err = upstream.NewClient(upstream.Config{
		BaseURL:      cfg.UpstreamBaseURL,
		Timeout:      cfg.UpstreamTimeout,
		FetchTimeout: cfg.FetchTimeout,
		RetryMax:     cfg.UpstreamRetryMax,
		PageLimit:    cfg.UpstreamPageLimit,
		BearerToken:  cfg.UpstreamBearerToken,
	}, logger)
	if err != nil {
		return nil, err
	}

	a.hub = websocket.NewHub(logger)
	a.metrics = metrics.New()
	publishers := events.Multi{a.hub, a.metrics}
	if cfg.RabbitMQURL != "" {
		mq, err := events.NewRabbitMQ(events.RabbitMQConfig{
			URL:        cfg.RabbitMQURL,
			Exchange:   cfg.RabbitMQExchange,
			RoutingKey: cfg.RabbitMQRoutingKey,
			QueueName:  cfg.RabbitMQQueue,
		}, logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, mq)
		publishers = append(publishers, mq)
	}
	if len(cfg.WebhookURLs) > 0 {
		hooks, err := webhook.New(webhook.Config{
			URLs:     cfg.WebhookURLs,
			Secret:   cfg.WebhookSecret,
			Events:   cfg.WebhookEvents,
			Timeout:  cfg.WebhookTimeout,
			RetryMax: cfg.WebhookRetryMax,
		}, logger)
		if err != nil {
			return nil, err
		}
		publishers = append(publishers, hooks)
	}

	a.sync = ingest.NewService(a.upstream, a.resources, a.archiver, ingest.Config{
		MaxConcurrent:  cfg.MaxConcurrentSyncs,
		SubjectTimeout: cfg.SubjectTimeout,
	}, logger, ingest.WithPublisher(publishers))

	a.admission = admission.New(admission.Config{
		Limit:      cfg.AdmissionLimit,
		Window:     cfg.AdmissionWindow,
		Retention:  cfg.AdmissionRetention,
		MaxEntries: cfg.AdmissionMaxClients,
	})

	return a, nil
}

// ipExtractor takes the client address from the connection unless trusted
// proxies are configured, in which case X-Forwarded-For is honored only for
// hops inside those ranges.
func ipExtractor(cfg *config.Config) (echo.IPExtractor, error) {
	nets, err := cfg.TrustedProxyNets()
	if err != nil {
		return nil, err
	}
	if len(nets) == 0 {
		return echo.ExtractIPDirect(), nil
	}
	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, n := range nets {
		opts = append(opts, echo.TrustIPRange(n))
	}
	return echo.ExtractIPFromXFFHeader(opts...), nil
}

// router builds the echo server with global middleware and all routes.
func (a *app) router() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.IPExtractor = a.clientIP

	e.Use(middleware.Recovery(a.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.logger, "/ws", "/metrics"))
	e.Use(a.metrics.Middleware("/ws", "/metrics"))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: a.cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "X-Client-ID"},
	}))
	e.Use(middleware.RequestTimeout(a.cfg.RequestTimeout))

	clients := auth.NewClientResolver(a.cfg.ClientTokenSecret, a.cfg.TrustClientHeader)
	gate := middleware.Admission(a.admission, clients, a.logger)

	fhirGroup := e.Group("/fhir")
	ingest.NewHandler(a.sync, a.cfg.DefaultBulkCount, a.cfg.MaxBulkCount).RegisterRoutes(fhirGroup, gate)
	resource.NewHandler(a.resources).RegisterRoutes(fhirGroup)
	bundle.NewHandler(a.archiver).RegisterRoutes(fhirGroup)

	websocket.NewHandler(a.hub, a.cfg.CORSOrigins).RegisterRoutes(e)
	a.metrics.RegisterRoutes(e)

	if a.pool != nil {
		e.GET("/health/db", db.HealthHandler(a.pool, 5*time.Second))
	}
	return e
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Warn().Err(err).Msg("close failed")
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

// stderrLogger is for commands whose stdout carries a result.
func stderrLogger(cfg *config.Config) zerolog.Logger {
	return newLogger(cfg, os.Stderr)
}
