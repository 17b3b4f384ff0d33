package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/vladislavdragonenkov/fooddelivery/internal/auth"
	healthcheck "github.com/vladislavdragonenkov/fooddelivery/internal/health"
	"github.com/vladislavdragonenkov/fooddelivery/internal/metrics"
	grpcsvc "github.com/vladislavdragonenkov/fooddelivery/internal/service/grpc"
	httpapi "github.com/vladislavdragonenkov/fooddelivery/internal/service/http"
	"github.com/vladislavdragonenkov/fooddelivery/internal/service/orders"
	"github.com/vladislavdragonenkov/fooddelivery/internal/version"
)

const defaultShutdownTimeout = 5 * time.Second

// Run поднимает хранилище, шину уведомлений, gRPC API, HTTP-шлюз и сервер метрик
// и блокируется до отмены ctx или падения одного из серверов.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	if err := cfg.Validate(); err != nil {
		return err
	}

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close(logger)

	if cfg.SeedFile != "" {
		if _, err := loadSeedFile(ctx, cfg.SeedFile, deps, logger); err != nil {
			return err
		}
	}

	orderMetrics := metrics.NewOrderMetrics()
	bus, err := initNotifier(cfg, orderMetrics, logger)
	if err != nil {
		return err
	}
	defer bus.close(logger)

	tokens, err := auth.NewTokens(cfg.JWTSecret)
	if err != nil {
		return fmt.Errorf("init tokens: %w", err)
	}
	authenticator := auth.NewAuthenticator(tokens, deps.users, logger.WithField("layer", "auth"))

	orderService := orders.NewService(orders.Dependencies{
		Orders:         deps.orders,
		Restaurants:    deps.restaurants,
		Dishes:         deps.dishes,
		Timeline:       deps.timeline,
		Publisher:      bus.bus,
		Subscriber:     bus.bus,
		Metrics:        orderMetrics,
		Logger:         logger.WithField("layer", "orders"),
		PublishTimeout: cfg.PublishTimeout,
	})

	grpcServer, grpcHealth := grpcsvc.NewServer(
		grpcsvc.NewOrderService(orderService, logger.WithField("layer", "grpc")),
		grpcsvc.NewAuthInterceptor(authenticator, logger.WithField("layer", "grpc-auth")),
		registerGRPCMetrics(logger),
	)
	gateway := httpapi.NewGateway(orderService, authenticator, logger.WithField("layer", "http")).Echo()

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	healthHandler.RegisterChecker("storage", deps.storageChecker)
	if bus.checker != nil {
		healthHandler.RegisterChecker("notify", bus.checker)
	}
	opsServer := newOpsServer(cfg.MetricsAddr, healthHandler)

	grpcListener, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}
	httpListener, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		_ = grpcListener.Close()
		return fmt.Errorf("listen http: %w", err)
	}
	gateway.Listener = httpListener

	shutdownTimeout := cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("gRPC сервер слушает %s", grpcListener.Addr())
		if err := grpcServer.Serve(grpcListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Infof("HTTP шлюз слушает %s", httpListener.Addr())
		if err := gateway.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http gateway: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Infof("метрики доступны по адресу %s/metrics", cfg.MetricsAddr)
		logger.Infof("health checks: %s/healthz, %s/readyz, %s/livez", cfg.MetricsAddr, cfg.MetricsAddr, cfg.MetricsAddr)
		if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	if bus.run != nil {
		g.Go(func() error { return bus.run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("получен сигнал остановки, останавливаем серверы")
		grpcHealth.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		grpcHealth.SetServingStatus(grpcsvc.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
		// Закрытие шины завершает открытые стримы подписок, иначе GracefulStop их ждёт.
		_ = bus.local.Close()
		stopGRPC(grpcServer, shutdownTimeout, logger)
		shutdownEcho(gateway, shutdownTimeout, logger)
		shutdownHTTP(opsServer, shutdownTimeout, logger)
		return nil
	})

	err = g.Wait()
	if err == nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// registerGRPCMetrics регистрирует метрики gRPC; при повторном запуске в одном процессе
// переиспользует уже зарегистрированный коллектор.
func registerGRPCMetrics(logger *log.Entry) *promgrpc.ServerMetrics {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				return existing
			}
		}
		logger.WithError(err).Warn("failed to register grpc metrics")
	}
	return grpcMetrics
}

// newOpsServer собирает HTTP-сервер с /metrics и health-эндпоинтами.
func newOpsServer(addr string, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// stopGRPC ждёт завершения активных вызовов не дольше timeout.
func stopGRPC(server *grpc.Server, timeout time.Duration, logger *log.Entry) {
	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(timeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		server.Stop()
	}
}

// shutdownEcho останавливает HTTP-шлюз.
func shutdownEcho(e *echo.Echo, timeout time.Duration, logger *log.Entry) {
	if e == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http gateway shutdown with error")
	}
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, timeout time.Duration, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("metrics shutdown with error")
	}
}
