package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/kpta119/Drones-Project-sub001/internal/domain"
	"github.com/kpta119/Drones-Project-sub001/internal/handlers"
	"github.com/kpta119/Drones-Project-sub001/internal/platform/auth"
	"github.com/kpta119/Drones-Project-sub001/internal/platform/cache"
	"github.com/kpta119/Drones-Project-sub001/internal/platform/calendar"
	"github.com/kpta119/Drones-Project-sub001/internal/platform/config"
	pfirestore "github.com/kpta119/Drones-Project-sub001/internal/platform/firestore"
	"github.com/kpta119/Drones-Project-sub001/internal/platform/idempotency"
	"github.com/kpta119/Drones-Project-sub001/internal/platform/jobs"
	"github.com/kpta119/Drones-Project-sub001/internal/platform/observability"
	"github.com/kpta119/Drones-Project-sub001/internal/platform/secrets"
	platformstorage "github.com/kpta119/Drones-Project-sub001/internal/platform/storage"
	firestoreRepo "github.com/kpta119/Drones-Project-sub001/internal/repositories/firestore"
	"github.com/kpta119/Drones-Project-sub001/internal/services"
)

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	cfg, err := config.Load()
	if err != nil {
		var invalid *config.ValidationError
		if errors.As(err, &invalid) {
			logger.Fatal("invalid configuration", zap.Strings("fields", invalid.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, cfg)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}

	registry, err := firestoreRepo.NewRegistry(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := registry.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	directory, err := services.NewDirectoryService(services.DirectoryServiceDeps{
		Operators:     registry.Operators(),
		Services:      registry.Services(),
		Users:         registry.Users(),
		OperatorCache: cache.New[string, domain.OperatorProfile](cfg.Cache.Operators.TTL, cfg.Cache.Operators.Capacity),
		ServiceCache:  cache.New[string, domain.DroneService](cfg.Cache.Services.TTL, cfg.Cache.Services.Capacity),
		UserCache:     cache.New[string, domain.UserProfile](cfg.Cache.Users.TTL, cfg.Cache.Users.Capacity),
		Clock:         time.Now,
	})
	if err != nil {
		logger.Fatal("failed to initialise directory service", zap.Error(err))
	}

	calendarSync := newCalendarSync(ctx, logger.Named("calendar"), cfg, fetcher, directory)

	var fileStore services.FileStore
	if bucket := strings.TrimSpace(cfg.Storage.PortfolioBucket); bucket != "" {
		storageClient, err := cloudstorage.NewClient(ctx)
		if err != nil {
			logger.Fatal("failed to initialise storage client", zap.Error(err))
		}
		defer func() {
			if err := storageClient.Close(); err != nil {
				logger.Warn("storage close error", zap.Error(err))
			}
		}()
		gcsBucket, err := platformstorage.NewGCSBucket(storageClient, bucket)
		if err != nil {
			logger.Fatal("failed to initialise portfolio bucket", zap.Error(err))
		}
		fileStore, err = platformstorage.NewFileStore(gcsBucket)
		if err != nil {
			logger.Fatal("failed to initialise file store", zap.Error(err))
		}
	} else {
		logger.Warn("portfolio bucket not configured; portfolio uploads disabled")
	}

	var (
		orderEvents services.OrderEventPublisher
		orderTopic  *pubsub.Topic
	)
	if topicName := strings.TrimSpace(cfg.Events.OrderTopic); topicName != "" {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.Events.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
		orderTopic = pubsubClient.Topic(topicName)
		orderEvents, err = jobs.NewPubSubOrderEventPublisher(orderTopic)
		if err != nil {
			logger.Fatal("failed to initialise order event publisher", zap.Error(err))
		}
	} else {
		logger.Warn("order topic not configured; lifecycle events disabled")
	}

	orderService, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:    registry.Orders(),
		Operators: registry.Operators(),
		Calendar:  calendarSync,
		Events:    orderEvents,
		Clock:     time.Now,
		Logger:    observability.ServiceLogger(logger.Named("orders")),
	})
	if err != nil {
		logger.Fatal("failed to initialise order service", zap.Error(err))
	}

	reviewService, err := services.NewReviewService(services.ReviewServiceDeps{
		Reviews: registry.Reviews(),
		Orders:  registry.Orders(),
		Clock:   time.Now,
	})
	if err != nil {
		logger.Fatal("failed to initialise review service", zap.Error(err))
	}

	operatorService, err := services.NewOperatorService(services.OperatorServiceDeps{
		Operators: registry.Operators(),
		Files:     fileStore,
		Cache:     directory,
		Clock:     time.Now,
		Logger:    observability.ServiceLogger(logger.Named("operators")),
	})
	if err != nil {
		logger.Fatal("failed to initialise operator service", zap.Error(err))
	}

	verifier, err := newTokenVerifier(ctx, logger.Named("auth"), cfg, fetcher)
	if err != nil {
		logger.Fatal("failed to initialise token verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(verifier)

	idempotencyStore := idempotency.NewFirestoreStore(firestoreClient)
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithLogger(logger.Named("idempotency")),
	)

	orderHandlers := handlers.NewOrderHandlers(authenticator, orderService,
		handlers.WithOrderCreateMiddlewares(idempotencyMiddleware),
	)
	reviewHandlers := handlers.NewReviewHandlers(authenticator, reviewService, directory)
	operatorHandlers := handlers.NewOperatorHandlers(authenticator, operatorService, directory)
	directoryHandlers := handlers.NewDirectoryHandlers(authenticator, directory)

	healthOpts := []handlers.HealthOption{
		handlers.WithHealthBuildInfo(buildVersion(envValues), cfg.Security.Environment),
		handlers.WithReadinessCheck("firestore", firestoreReadiness(firestoreClient)),
	}
	if orderTopic != nil {
		healthOpts = append(healthOpts, handlers.WithReadinessCheck("pubsub", topicReadiness(orderTopic)))
	}
	healthHandlers := handlers.NewHealthHandlers(healthOpts...)

	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(),
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithReviewRoutes(reviewHandlers.Routes),
		handlers.WithOperatorRoutes(operatorHandlers.Routes),
		handlers.WithServiceRoutes(directoryHandlers.ServiceRoutes),
		handlers.WithMeRoutes(directoryHandlers.MeRoutes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("drone marketplace api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	if orderTopic != nil {
		orderTopic.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func buildVersion(env map[string]string) string {
	if version := strings.TrimSpace(env["BUILD_VERSION"]); version != "" {
		return version
	}
	return "dev"
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, cfg config.Config) (*secrets.Fetcher, error) {
	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(".secrets.local"),
	}
	if project := strings.TrimSpace(cfg.Firestore.ProjectID); project != "" {
		opts = append(opts, secrets.WithDefaultProject(project))
	}
	return secrets.NewFetcher(ctx, opts...)
}

// newTokenVerifier picks the local HS256 verifier when running locally with a
// shared secret configured, and the Firebase verifier everywhere else.
func newTokenVerifier(ctx context.Context, logger *zap.Logger, cfg config.Config, fetcher *secrets.Fetcher) (auth.TokenVerifier, error) {
	if cfg.IsLocal() && strings.TrimSpace(cfg.Security.LocalJWTSecret) != "" {
		secret, err := fetcher.ResolveSecret(ctx, cfg.Security.LocalJWTSecret)
		if err != nil {
			return nil, fmt.Errorf("resolve local jwt secret: %w", err)
		}
		logger.Warn("using local jwt verifier; not suitable for production")
		return auth.NewLocalVerifier(secret)
	}
	return auth.NewFirebaseVerifier(ctx, cfg.Firebase)
}

// newCalendarSync builds the calendar adapter, or returns nil when the
// integration is disabled or misconfigured. Order matching degrades to
// sync_status=failed without it, so startup never blocks on calendar access.
func newCalendarSync(ctx context.Context, logger *zap.Logger, cfg config.Config, fetcher *secrets.Fetcher, directory services.DirectoryService) services.CalendarSync {
	if !cfg.Calendar.Enabled {
		logger.Info("calendar sync disabled by configuration")
		return nil
	}

	var clientOpts []option.ClientOption
	switch {
	case strings.TrimSpace(cfg.Calendar.CredentialsRef) != "":
		credentials, err := fetcher.ResolveSecret(ctx, cfg.Calendar.CredentialsRef)
		if err != nil {
			logger.Warn("calendar credentials unavailable; sync disabled", zap.Error(err))
			return nil
		}
		clientOpts = append(clientOpts, option.WithCredentialsJSON([]byte(credentials)))
	case strings.TrimSpace(cfg.Calendar.CredentialsFile) != "":
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.Calendar.CredentialsFile))
	}

	events, err := calendar.NewGoogleEvents(ctx, clientOpts...)
	if err != nil {
		logger.Warn("calendar client init failed; sync disabled", zap.Error(err))
		return nil
	}

	sync, err := calendar.NewSync(calendar.SyncDeps{
		Events:      events,
		Accounts:    calendar.DirectoryAccountLookup{Directory: directory},
		Services:    directory,
		SummaryTmpl: cfg.Calendar.EventSummaryTmpl,
	})
	if err != nil {
		logger.Warn("calendar sync init failed; sync disabled", zap.Error(err))
		return nil
	}
	return sync
}

func firestoreReadiness(client *firestore.Client) handlers.ReadinessCheck {
	return func(ctx context.Context) error {
		checkCtx, cancel := context.WithTimeout(ctx, 1500*time.Millisecond)
		defer cancel()
		_, err := client.Collections(checkCtx).Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		return err
	}
}

func topicReadiness(topic *pubsub.Topic) handlers.ReadinessCheck {
	return func(ctx context.Context) error {
		checkCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		exists, err := topic.Exists(checkCtx)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("topic %s not found", topic.ID())
		}
		return nil
	}
}
