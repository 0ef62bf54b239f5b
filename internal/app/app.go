package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/cart"
	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/service/customer"
	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
	"github.com/vladislavdragonenkov/storefront/internal/service/order"
	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
	"github.com/vladislavdragonenkov/storefront/internal/transport/httpapi"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

const readHeaderTimeout = 5 * time.Second

// Run поднимает REST API, сервер метрик и фоновые воркеры и блокируется до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultConfig().ShutdownTimeout
	}

	res, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer res.Close(logger)

	storeMetrics := metrics.NewStoreMetrics()
	httpMetrics := metrics.NewHTTPMetrics(nil)
	workerMetrics := metrics.NewWorkerMetrics(nil)

	healthHandler := healthcheck.NewHandler(version.Current().Version)
	healthHandler.RegisterChecker("storage", res.storage)

	catalogOpts := []catalog.Option{catalog.WithLogger(logger.WithField("layer", "catalog"))}
	res.connectProductCache(ctx, cfg, logger)
	if res.productCache != nil {
		catalogOpts = append(catalogOpts, catalog.WithProductCache(res.productCache))
		healthHandler.RegisterChecker("redis", healthcheck.NewPingChecker("redis", res.productCache, false))
	}

	if cfg.OutboxMaxPending > 0 {
		healthHandler.RegisterChecker("outbox", healthcheck.NewPingChecker("outbox",
			outboxBacklogPinger(res.store.Repos().Outbox, cfg.OutboxMaxPending), false))
	}

	router := httpapi.NewRouter(httpapi.Services{
		Catalog:     catalog.NewService(res.store, catalogOpts...),
		Carts:       cart.NewService(res.store, cart.WithLogger(logger.WithField("layer", "cart")), cart.WithMetrics(storeMetrics)),
		Customers:   customer.NewService(res.store, customer.WithLogger(logger.WithField("layer", "customer"))),
		Orders:      order.NewService(res.store, order.WithLogger(logger.WithField("layer", "order")), order.WithMetrics(storeMetrics)),
		Idempotency: res.idempotency,
	}, httpapi.Options{
		Logger:         logger.WithField("layer", "http"),
		HTTPMetrics:    httpMetrics,
		StoreMetrics:   storeMetrics,
		RequestTimeout: cfg.RequestTimeout,
		IdempotencyTTL: cfg.IdempotencyTTL,
	})

	if err := res.connectKafka(cfg, logger); err != nil {
		logger.WithError(err).Warn("kafka is unavailable, outbox events stay pending")
	}

	workerCtx, cancelWorkers := context.WithCancel(ctx)
	outboxDone := startOutboxWorker(workerCtx, cfg, res.store.Repos().Outbox, res.producer, workerMetrics, logger)
	cleanupDone := startIdempotencyCleanup(workerCtx, cfg, res.idempotency, workerMetrics, logger)
	defer shutdownWorkers(cancelWorkers, logger, outboxDone, cleanupDone)

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)
	defer shutdownHTTP(metricsSrv, logger)

	errCh := make(chan error, 2)

	apiLis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen http api: %w", err)
	}
	apiSrv := &http.Server{Handler: router, ReadHeaderTimeout: readHeaderTimeout}
	go func() {
		logger.Infof("REST API слушает %s%s", apiLis.Addr(), httpapi.Prefix)
		if err := apiSrv.Serve(apiLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("serve http api: %w", err)
		}
	}()
	defer shutdownHTTP(apiSrv, logger)

	if strings.TrimSpace(cfg.GRPCAddr) != "" {
		grpcServer, healthServer, err := startGRPCServer(cfg.GRPCAddr, logger, errCh)
		if err != nil {
			return err
		}
		defer stopGRPCServer(grpcServer, healthServer, cfg.ShutdownTimeout, logger)
	}

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем серверы")
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// startGRPCServer поднимает gRPC-сервер со стандартным health-сервисом и reflection.
func startGRPCServer(addr string, logger *log.Entry, errCh chan<- error) (*grpc.Server, *health.Server, error) {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(grpcMetrics.StreamServerInterceptor()),
	)
	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)
	grpcMetrics.InitializeMetrics(grpcServer)

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("listen grpc: %w", err)
	}
	go func() {
		logger.Infof("gRPC health сервер слушает %s", lis.Addr())
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- fmt.Errorf("serve grpc: %w", err)
		}
	}()
	return grpcServer, healthServer, nil
}

func stopGRPCServer(grpcServer *grpc.Server, healthServer *health.Server, timeout time.Duration, logger *log.Entry) {
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(timeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		grpcServer.Stop()
	}
}

// startOutboxWorker запускает публикацию событий в Kafka. Без producer события копятся в outbox.
func startOutboxWorker(ctx context.Context, cfg Config, repo domain.OutboxRepository, producer *kafka.Producer, workerMetrics *metrics.WorkerMetrics, logger *log.Entry) <-chan struct{} {
	if producer == nil {
		logger.Info("kafka is not configured, outbox events are kept until a publisher is available")
		return nil
	}

	worker := outbox.NewWorker(repo, kafka.NewOutboxPublisher(producer, kafka.TopicOrderEvents), outbox.Config{
		DeadLetter:   kafka.NewDeadLetterPublisher(producer, kafka.TopicOrderEvents),
		PollInterval: cfg.OutboxPollInterval,
		BatchSize:    cfg.OutboxBatchSize,
		MaxAttempts:  cfg.OutboxMaxAttempts,
		RetryDelay:   cfg.OutboxRetryDelay,
		Logger:       logger.WithField("component", "outbox-worker"),
		Metrics:      workerMetrics,
	})
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()
	return done
}

func startIdempotencyCleanup(ctx context.Context, cfg Config, repo domain.IdempotencyRepository, workerMetrics *metrics.WorkerMetrics, logger *log.Entry) <-chan struct{} {
	worker := idempotency.NewCleanupWorker(repo, idempotency.CleanupConfig{
		Interval:  cfg.IdempotencyCleanupInterval,
		BatchSize: cfg.IdempotencyCleanupBatchSize,
		Logger:    logger.WithField("component", "idempotency-cleanup"),
		Metrics:   workerMetrics,
	})
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()
	return done
}

// shutdownWorkers отменяет контекст воркеров и ждёт их завершения.
func shutdownWorkers(cancel context.CancelFunc, logger *log.Entry, done ...<-chan struct{}) {
	if cancel != nil {
		cancel()
	}
	for _, ch := range done {
		if ch == nil {
			continue
		}
		select {
		case <-ch:
		case <-time.After(5 * time.Second):
			logger.Warn("background worker did not stop in time")
		}
	}
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

// outboxBacklogPinger сообщает об ошибке, если неотправленных событий больше maxPending.
func outboxBacklogPinger(repo domain.OutboxRepository, maxPending int) healthcheck.Pinger {
	return pingFunc(func(ctx context.Context) error {
		stats, err := repo.Stats(ctx)
		if err != nil {
			return fmt.Errorf("outbox stats: %w", err)
		}
		if stats.PendingCount > maxPending {
			return fmt.Errorf("outbox backlog %d exceeds %d", stats.PendingCount, maxPending)
		}
		return nil
	})
}

// startMetricsServer запускает HTTP-обработчики /metrics и health checks.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: readHeaderTimeout}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
