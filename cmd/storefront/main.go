package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/fjod/storefront/internal/backend"
	"github.com/fjod/storefront/internal/cache"
	"github.com/fjod/storefront/internal/config"
	"github.com/fjod/storefront/internal/health"
	h "github.com/fjod/storefront/internal/http"
	"github.com/fjod/storefront/internal/payment"
	"github.com/fjod/storefront/internal/publisher"
	"github.com/fjod/storefront/internal/repository"
	"github.com/fjod/storefront/internal/service"
	"github.com/fjod/storefront/internal/session"
	"github.com/fjod/storefront/pkg/circuitbreaker"
	"github.com/fjod/storefront/pkg/logger"
)

const (
	shutdownTimeout = 10 * time.Second
	probeInterval   = 15 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	zlog, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()
	zap.ReplaceGlobals(zlog)

	if err := run(cfg, zlog); err != nil {
		zlog.Fatal("storefront stopped with error", zap.Error(err))
	}
	zlog.Info("storefront stopped")
}

func run(cfg *config.Config, zlog *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	zlog.Info("storefront starting", zap.String("http_port", cfg.HTTPPort), zap.String("grpc_port", cfg.GRPCPort))

	// Checkout attempts and outbox
	repo, err := repository.NewRepository(cfg.DB)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer repo.Close()
	if err := repo.RunMigrations(cfg.DB); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	zlog.Info("database migrations completed", zap.String("driver", cfg.DB.Driver))

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	zlog.Info("redis ping succeeded", zap.String("addr", cfg.RedisAddr))

	cartRepo, mongoDB, err := openCartStore(ctx, cfg)
	if err != nil {
		return err
	}
	if mongoDB != nil {
		defer func() { _ = mongoDB.Client().Disconnect(context.Background()) }()
	}

	breaker := backend.NewBreaker(circuitbreaker.Config{
		Name:             "backend",
		FailureThreshold: cfg.BreakerThreshold,
		OpenTimeout:      cfg.BreakerTimeout,
		OnStateChange: func(name string, from, to circuitbreaker.State) {
			zlog.Warn("circuit breaker state changed",
				zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	backendClient := backend.New(cfg.BackendURL, cfg.BackendTimeout, backend.WithBreaker(breaker))

	// Services
	store := session.NewRedisStore(redisClient, cfg.SessionTTL)
	pending := session.NewPendingPayments(store)
	checkouts := session.NewCheckouts(store)

	cartService := service.NewCartService(cartRepo, cache.NewRedisCache(redisClient), backendClient, nil)
	settingsService := service.NewSettingsService(backendClient, cache.NewRedisSettingsCache(redisClient, cfg.SettingsTTL))

	policy := payment.RetryPolicy{MaxAttempts: cfg.StatusAttempts, Delay: cfg.StatusRetryDelay}
	gateway := payment.NewGatewayAdapter(backendClient, pending)
	reconciler := payment.NewReconciler(backendClient, pending, cartService, policy, cfg.PendingRecheckDelay)

	checkoutService := service.NewCheckoutService(checkouts, cartService, settingsService, backendClient, gateway, reconciler, repo,
		service.WithSubmitTimeout(cfg.SubmitTimeout))

	// Health
	grpcHealth := grpchealth.NewServer()
	monitor := health.NewMonitor(grpcHealth, 3*time.Second, zlog)
	monitor.Register("database", true, repo.Ping)
	monitor.Register("redis", true, func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })
	if mongoDB != nil {
		monitor.Register("mongo", true, func(ctx context.Context) error { return mongoDB.Client().Ping(ctx, nil) })
	}
	monitor.Register("backend", false, func(context.Context) error {
		if breaker.State() == circuitbreaker.StateOpen {
			return circuitbreaker.ErrOpen
		}
		return nil
	})
	go monitor.Run(ctx, probeInterval)

	// Outbox relay
	if cfg.KafkaEnabled() {
		writer := publisher.NewKafkaWriter(cfg.KafkaBrokers...)
		defer writer.Close()
		poller := publisher.NewOutboxPoller(repo, writer, zlog, cfg.OutboxEventTick, cfg.OutboxRecoveryTick)
		go poller.Run(ctx)
		zlog.Info("outbox poller started", zap.Strings("brokers", cfg.KafkaBrokers))
	} else {
		zlog.Warn("KAFKA_BROKERS not set, outbox events stay unpublished")
	}

	// gRPC: health and reflection
	lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}
	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthpb.RegisterHealthServer(grpcServer, grpcHealth)
	reflection.Register(grpcServer)
	go func() {
		zlog.Info("grpc listening", zap.String("port", cfg.GRPCPort))
		if err := grpcServer.Serve(lis); err != nil {
			zlog.Error("grpc server error", zap.Error(err))
		}
	}()

	// HTTP API
	router := h.NewRouter(
		h.RouterConfig{
			RequestTimeout: cfg.RequestTimeout,
			SessionTTL:     cfg.SessionTTL,
			SecureCookies:  strings.HasPrefix(cfg.StorefrontURL, "https://"),
		},
		zlog,
		h.NewCartHandler(cartService),
		h.NewCheckoutHandler(checkoutService, cfg.StorefrontURL),
		monitor,
	)
	// the payment return may poll for the whole request timeout
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(router, "storefront"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		zlog.Info("http listening", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	zlog.Info("shutting down")
	grpcHealth.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error("http server forced to shutdown", zap.Error(err))
	}
	grpcServer.GracefulStop()
	return nil
}

// openCartStore returns the configured cart repository. The Mongo database
// is returned so the caller can probe and disconnect it.
func openCartStore(ctx context.Context, cfg *config.Config) (repository.CartRepository, *mongo.Database, error) {
	if cfg.CartStore == config.CartStoreMemory {
		zap.L().Warn("carts are kept in memory and lost on restart")
		return repository.NewMemoryCartRepository(), nil, nil
	}

	db, err := repository.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	repo := repository.NewMongoRepository(db)
	if err := repo.CreateIndexes(ctx); err != nil {
		return nil, nil, fmt.Errorf("create cart indexes: %w", err)
	}
	zap.L().Info("connected to mongodb", zap.String("database", cfg.MongoDBName))
	return repo, db, nil
}
