package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/outbreak-harvester/internal/api"
	"github.com/JakeFAU/outbreak-harvester/internal/clock"
	"github.com/JakeFAU/outbreak-harvester/internal/config"
	"github.com/JakeFAU/outbreak-harvester/internal/extract"
	"github.com/JakeFAU/outbreak-harvester/internal/fetcher"
	collyfetcher "github.com/JakeFAU/outbreak-harvester/internal/fetcher/colly"
	"github.com/JakeFAU/outbreak-harvester/internal/harvester"
	"github.com/JakeFAU/outbreak-harvester/internal/hash"
	"github.com/JakeFAU/outbreak-harvester/internal/id"
	"github.com/JakeFAU/outbreak-harvester/internal/logging"
	"github.com/JakeFAU/outbreak-harvester/internal/metrics"
	"github.com/JakeFAU/outbreak-harvester/internal/outbreak"
	"github.com/JakeFAU/outbreak-harvester/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/outbreak-harvester/internal/publisher/memory"
	pubsubpublisher "github.com/JakeFAU/outbreak-harvester/internal/publisher/pubsub"
	memorystorage "github.com/JakeFAU/outbreak-harvester/internal/storage/memory"
	"github.com/JakeFAU/outbreak-harvester/internal/storage/postgres"
)

type closingPublisher interface {
	outbreak.Publisher
	Close() error
}

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	once := flag.Bool("once", false, "Run a single harvest, print the result, and exit")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	zap.ReplaceGlobals(logger)

	if err := run(cfg, *once, logger); err != nil {
		logger.Error("harvester exited", zap.Error(err))
		_ = logger.Sync() //nolint:errcheck // exiting anyway
		os.Exit(1)
	}
	if syncErr := logger.Sync(); syncErr != nil {
		fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
	}
}

func run(cfg config.Config, once bool, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	if cfg.HTTP.InsecureSkipVerify {
		logger.Warn("TLS CERTIFICATE VERIFICATION IS DISABLED for outbound fetches; " +
			"responses from the listing and document hosts can be forged")
	}
	if !cfg.Auth.Enabled {
		logger.Warn("auth disabled; POST /v1/admin/harvest is open to anyone who can reach the server")
	}

	store, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	publisher, err := buildPublisher(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("publisher close failed", zap.Error(err))
		}
	}()

	transport := fetcher.NewTransport(fetcher.TransportConfig{InsecureSkipVerify: cfg.HTTP.InsecureSkipVerify})
	client := fetcher.NewClient(transport, cfg.HTTPTimeout())
	ua := cfg.Harvester.UserAgent

	h, err := harvester.New(cfg.RunConfig(), harvester.Dependencies{
		Listing: collyfetcher.New(collyfetcher.Config{
			UserAgent: ua,
			Timeout:   cfg.HTTPTimeout(),
			Transport: transport,
		}, logger.Named("listing")),
		Extractor: extract.NewRouter(
			extract.NewPDFExtractor(client, ua, logger.Named("pdf")),
			extract.NewHTMLExtractor(client, ua, cfg.Harvester.HTMLSelectors, logger.Named("html")),
		),
		Store:     store,
		Publisher: publisher,
		Pacer:     ratelimit.New(ratelimit.Config{RPS: cfg.Harvester.PerHostRPS, Burst: 1}),
		IDs:       id.UUIDv7{},
		Hasher:    hash.SHA256{},
		Clock:     clock.System{},
	}, logger.Named("harvester"))
	if err != nil {
		return fmt.Errorf("build harvester: %w", err)
	}

	if once {
		res := h.Run(ctx)
		fmt.Println(res.Message())
		if res.Outcome == harvester.OutcomeFetchFailed || res.Outcome == harvester.OutcomeCommitFailed {
			return res.Err
		}
		return nil
	}

	apiServer := api.NewServer(h, store, api.Options{
		AuthEnabled: cfg.Auth.Enabled,
		APIKey:      cfg.Auth.APIKey,
	}, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return nil
}

func buildStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (outbreak.Store, error) {
	if cfg.DB.DSN == "" {
		logger.Warn("db.dsn not set; records are kept in memory and lost on exit")
		return memorystorage.NewOutbreakStore(), nil
	}
	store, err := postgres.NewOutbreakStore(ctx, postgres.StoreConfig{
		DSN:             cfg.DB.DSN,
		Table:           cfg.DB.Table,
		MaxConns:        cfg.DB.MaxConns,
		MinConns:        cfg.DB.MinConns,
		MaxConnLifetime: time.Duration(cfg.DB.MaxConnLifetimeSeconds) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}
	logger.Info("postgres store ready", zap.String("table", cfg.DB.Table))
	return store, nil
}

func buildPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger) (closingPublisher, error) {
	if cfg.PubSub.ProjectID == "" {
		return memorypublisher.New(), nil
	}
	pub, err := pubsubpublisher.New(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("init pubsub publisher: %w", err)
	}
	logger.Info("pubsub notifications enabled",
		zap.String("project_id", cfg.PubSub.ProjectID),
		zap.String("topic", cfg.PubSub.TopicName),
	)
	return pub, nil
}
