// Package server wires C1-C10 together into a running process: boot,
// router construction, graceful shutdown. Grounded in the teacher's
// internal/server/application.go lifecycle (NewApplication/Run/Shutdown/
// Close), generalized from the teacher's social-network service bundle to
// this service's identity/interaction/discovery/messagequeue/moderation/
// profile/adminreport/realtime/eventrouter bundle.
package server

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jutuon/afrodite-backend-sub001/config"
	"github.com/jutuon/afrodite-backend-sub001/internal/eventrouter"
	"github.com/jutuon/afrodite-backend-sub001/internal/messagequeue"
	"github.com/jutuon/afrodite-backend-sub001/internal/observability"
	"github.com/jutuon/afrodite-backend-sub001/internal/platform/redisx"
	"github.com/jutuon/afrodite-backend-sub001/internal/seeds"
	"go.mongodb.org/mongo-driver/mongo"
)

type Application struct {
	ctx    context.Context
	cancel context.CancelFunc

	cfg    *config.Config
	bootID string

	mongoClient *mongo.Client
	db          *mongo.Database
	redisClient *redisx.Client
	cassandra   *messagequeue.Cluster
	tracer      *observability.TracerProvider

	domain      *domain
	eventReader *eventrouter.Consumer

	router        *http.Server
	metricsServer *http.Server

	backgroundWorkerCancel context.CancelFunc
	shutdownOnce           sync.Once
}

func NewApplication(parentCtx context.Context, cfg *config.Config) (*Application, error) {
	ctx, cancel := context.WithCancel(parentCtx)
	observability.InitLogger(cfg.LogLevel)

	app := &Application{ctx: ctx, cancel: cancel, cfg: cfg, bootID: uuid.New().String()}
	if err := app.bootstrap(); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (a *Application) bootstrap() error {
	var err error
	a.mongoClient, a.db, err = InitMongo(a.ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("mongo: %w", err)
	}

	a.redisClient, err = InitRedis(a.cfg)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	a.cassandra, err = messagequeue.Connect(a.cfg.CassandraHosts, a.cfg.CassandraKeyspace, a.cfg.CassandraUser, a.cfg.CassandraPassword)
	if err != nil {
		log.Printf("warning: cassandra unavailable, C6 message queue disabled: %v", err)
	}

	if a.cfg.TracingEnabled {
		tp, err := observability.InitTracer(a.ctx, observability.TracerConfig{
			ServiceName: "afrodite-backend-sub001", ServiceVersion: "0.1.0",
			Environment: a.cfg.LogLevel, JaegerEndpoint: a.cfg.JaegerOTLPEndpoint,
		})
		if err != nil {
			log.Printf("warning: tracing disabled, failed to init OTLP exporter: %v", err)
		} else {
			a.tracer = tp
		}
	}

	a.domain, err = a.buildDomain()
	if err != nil {
		return fmt.Errorf("domain: %w", err)
	}

	if len(a.cfg.KafkaBrokers) > 0 && a.cfg.EventsTopic != "" {
		a.eventReader = eventrouter.NewConsumer(a.cfg.KafkaBrokers, a.cfg.EventsTopic, "eventrouter-"+a.bootID, a.domain.hub)
	}

	seeder := seeds.NewNameAllowlistSeeder(a.domain.moderationQueue)
	if err := seeder.SeedCommonNames(a.ctx); err != nil {
		log.Printf("warning: name allowlist seeding failed: %v", err)
	}

	router := a.buildRouter()
	a.router = &http.Server{Addr: net.JoinHostPort("", a.cfg.ServerPort), Handler: router}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", observability.MetricsHandler())
	a.metricsServer = &http.Server{Addr: net.JoinHostPort("", a.cfg.PrometheusPort), Handler: metricsMux}

	return nil
}

func (a *Application) Run() error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	a.startBackgroundWorkers()

	errCh := make(chan error, 2)
	start := func(srv *http.Server, name string) {
		go func() {
			slog.Info("server starting", "name", name, "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- fmt.Errorf("%s failed: %w", name, err)
			}
		}()
	}
	start(a.router, "http")
	start(a.metricsServer, "metrics")

	select {
	case <-quit:
		slog.Info("shutdown signal received")
		return a.Shutdown()
	case err := <-errCh:
		slog.Error("server error", "error", err)
		return a.Shutdown()
	}
}

func (a *Application) Shutdown() error {
	var shutdownErr error
	a.shutdownOnce.Do(func() {
		slog.Info("shutting down")
		a.cancel()
		if a.backgroundWorkerCancel != nil {
			a.backgroundWorkerCancel()
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if a.domain != nil && a.domain.hub != nil {
			a.domain.hub.Shutdown()
		}
		if err := a.router.Shutdown(ctx); err != nil {
			shutdownErr = err
		}
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			shutdownErr = err
		}
		a.Close()
	})
	return shutdownErr
}

func (a *Application) Close() {
	if a.eventReader != nil {
		_ = a.eventReader.Close()
	}
	if a.domain != nil && a.domain.events != nil {
		a.domain.events.Close()
	}
	if a.cassandra != nil {
		a.cassandra.Close()
	}
	if a.tracer != nil {
		_ = a.tracer.Shutdown(context.Background())
	}
	if a.mongoClient != nil {
		_ = a.mongoClient.Disconnect(context.Background())
	}
}

func (a *Application) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(a.ctx)
	a.backgroundWorkerCancel = cancel
	go sweepModerationLeases(ctx, a.domain.moderationQueue, a.cfg.ModerationLeaseTTL)
	if a.eventReader != nil {
		go a.eventReader.Run(ctx)
	}
}
