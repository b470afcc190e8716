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

	"cloud.google.com/go/pubsub"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/storefront/api/internal/handlers"
	"github.com/storefront/api/internal/payments"
	"github.com/storefront/api/internal/platform/auth"
	"github.com/storefront/api/internal/platform/config"
	"github.com/storefront/api/internal/platform/events"
	pfirestore "github.com/storefront/api/internal/platform/firestore"
	"github.com/storefront/api/internal/platform/idempotency"
	"github.com/storefront/api/internal/platform/observability"
	"github.com/storefront/api/internal/platform/secrets"
	"github.com/storefront/api/internal/repositories"
	firestoreRepo "github.com/storefront/api/internal/repositories/firestore"
	"github.com/storefront/api/internal/services"
	"github.com/storefront/api/internal/shipping"
)

const (
	serviceName     = "storefront-api"
	quoteRateLimit  = 60
	quoteRateWindow = time.Minute
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger(serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	resolver := secrets.NewResolver(ctx,
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithEnvironment(os.Getenv("API_SECURITY_ENVIRONMENT")),
		secrets.WithDefaultProject(os.Getenv("API_SECRETS_PROJECT_ID")),
		secrets.WithProjectMap(config.ParseKeyValues(os.Getenv("API_SECRETS_PROJECTS"))),
	)
	defer func() {
		if err := resolver.Close(); err != nil {
			logger.Warn("secret resolver close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(resolver),
		config.WithRequiredSecrets("PSP.StripeAPIKey"),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(cfg, startedAt)

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	if _, err := firestoreProvider.Client(ctx); err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier)

	pubsubClient, err := newPubSubClient(ctx, cfg.PubSub)
	if err != nil {
		logger.Fatal("failed to initialise pubsub client", zap.Error(err))
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logger.Warn("pubsub close error", zap.Error(err))
		}
	}()
	orderTopic := pubsubClient.Topic(cfg.PubSub.OrderEventsTopic)
	defer orderTopic.Stop()
	var ruleTopic *pubsub.Topic
	if name := strings.TrimSpace(cfg.PubSub.RuleEventsTopic); name != "" {
		ruleTopic = pubsubClient.Topic(name)
		defer ruleTopic.Stop()
	}
	publisher, err := events.NewPubSubPublisher(orderTopic, ruleTopic)
	if err != nil {
		logger.Fatal("failed to initialise event publisher", zap.Error(err))
	}

	paymentsLogger := logger.Named("payments")
	stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
		APIKey: cfg.PSP.StripeAPIKey,
		Logger: payments.StripeLogger(observability.NewEventLogger(paymentsLogger)),
		Clock:  time.Now,
	})
	if err != nil {
		logger.Fatal("failed to initialise stripe payment provider", zap.Error(err))
	}
	paymentManager, err := payments.NewManager(map[string]payments.Provider{
		"stripe": stripeProvider,
	})
	if err != nil {
		logger.Fatal("failed to initialise payment manager", zap.Error(err))
	}

	ruleRepo, err := firestoreRepo.NewShippingRuleRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise shipping rule repository", zap.Error(err))
	}
	orderRepo, err := firestoreRepo.NewOrderRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise order repository", zap.Error(err))
	}
	productRepo, err := firestoreRepo.NewProductRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise product repository", zap.Error(err))
	}
	cartResolver, err := services.NewCartResolver(productRepo)
	if err != nil {
		logger.Fatal("failed to initialise cart resolver", zap.Error(err))
	}
	idempotencyStore, err := idempotency.NewFirestoreStore(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise idempotency store", zap.Error(err))
	}

	healthRepo, err := repositories.NewDependencyHealthRepository([]repositories.DependencyCheck{
		{Name: "firestore", Critical: true, Check: firestoreProvider.Ping},
		{Name: "pubsub", Check: topicExists(orderTopic)},
	}, repositories.WithBuildInfo(buildInfo.Version, buildInfo.Environment, startedAt))
	if err != nil {
		logger.Fatal("failed to initialise health repository", zap.Error(err))
	}

	ruleCache := services.NewShippingRuleCache(cfg.Shipping.RuleCacheTTL, time.Now,
		services.WithRuleCacheLimit(cfg.Shipping.RuleCacheMaxSessions),
	)
	meter := otel.GetMeterProvider().Meter("github.com/storefront/api")

	shippingService, err := services.NewShippingService(services.ShippingServiceDeps{
		Rules: ruleRepo,
		Cache: ruleCache,
		Cart:  cartResolver,
		Config: shipping.Config{
			FreeShippingThreshold: cfg.Shipping.FreeShippingThreshold,
			Currency:              cfg.Shipping.Currency,
			RequireStreet:         cfg.Shipping.RequireStreet,
		},
		Meter:  meter,
		Logger: observability.NewEventLogger(logger.Named("shipping")),
	})
	if err != nil {
		logger.Fatal("failed to initialise shipping service", zap.Error(err))
	}

	ruleService, err := services.NewShippingRuleService(services.ShippingRuleServiceDeps{
		Rules:  ruleRepo,
		Cache:  ruleCache,
		Events: publisher,
		Clock:  time.Now,
		Logger: observability.NewEventLogger(logger.Named("shipping_rules")),
	})
	if err != nil {
		logger.Fatal("failed to initialise shipping rule service", zap.Error(err))
	}

	orderService, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:     orderRepo,
		Shipping:   shippingService,
		Payments:   paymentManager,
		Events:     publisher,
		Currency:   cfg.Shipping.Currency,
		SuccessURL: cfg.PSP.CheckoutSuccessURL,
		CancelURL:  cfg.PSP.CheckoutCancelURL,
		Clock:      time.Now,
		Logger:     observability.NewEventLogger(logger.Named("orders")),
	})
	if err != nil {
		logger.Fatal("failed to initialise order service", zap.Error(err))
	}

	checkoutHandlers := handlers.NewCheckoutHandlers(authenticator, shippingService,
		handlers.WithQuoteRateLimit(quoteRateLimit, quoteRateWindow, time.Now),
	)
	orderHandlers := handlers.NewOrderHandlers(authenticator, orderService,
		handlers.WithOrderIdempotency(idempotencyStore, cfg.Server.IdempotencyTTL),
	)
	adminHandlers := handlers.NewAdminShippingRuleHandlers(authenticator, ruleService, cfg.Security.AdminRoles...)
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthReporter(healthRepo),
		handlers.WithHealthBuildInfo(buildInfo),
	)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.TraceMiddleware(traceProjectID(cfg)),
			observability.InjectLoggerMiddleware(logger),
			observability.SessionMiddleware,
			observability.RequestLoggerMiddleware,
			observability.RecoveryMiddleware(logger),
		),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithCheckoutRoutes(checkoutHandlers.Routes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithAdminRoutes(adminHandlers.Routes),
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
		serverLogger.Info("storefront api listening", zap.String("version", buildInfo.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func newPubSubClient(ctx context.Context, cfg config.PubSubConfig) (*pubsub.Client, error) {
	var opts []option.ClientOption
	if host := strings.TrimSpace(cfg.EmulatorHost); host != "" {
		opts = append(opts,
			option.WithEndpoint(host),
			option.WithoutAuthentication(),
			option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	}
	return pubsub.NewClient(ctx, cfg.ProjectID, opts...)
}

func topicExists(topic *pubsub.Topic) func(context.Context) error {
	return func(ctx context.Context) error {
		ok, err := topic.Exists(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("topic %s does not exist", topic.ID())
		}
		return nil
	}
}

func buildInfoFromEnv(cfg config.Config, started time.Time) handlers.BuildInfo {
	version := strings.TrimSpace(os.Getenv("API_BUILD_VERSION"))
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(os.Getenv("API_BUILD_COMMIT_SHA"))
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Security.Environment)
	if environment == "" {
		environment = "local"
	}
	return handlers.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}
