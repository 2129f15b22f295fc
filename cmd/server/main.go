package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"policydesk/internal/audit"
	jwttoken "policydesk/internal/jwt_token"
	"policydesk/internal/platform/config"
	"policydesk/internal/platform/database"
	"policydesk/internal/platform/httpserver"
	"policydesk/internal/platform/logger"
	"policydesk/internal/platform/metrics"
	"policydesk/internal/platform/middleware"
	"policydesk/internal/platform/redis"
	policyhandler "policydesk/internal/policy/handler"
	policymetrics "policydesk/internal/policy/metrics"
	"policydesk/internal/policy/serial"
	"policydesk/internal/policy/service"
	policystore "policydesk/internal/policy/store/policy"
	"policydesk/pkg/platform/httputil"
	"policydesk/pkg/platform/middleware/metadata"
	"policydesk/pkg/platform/middleware/requesttime"
)

// main wires the stores, audit stream and HTTP router, then runs until a
// signal arrives. Business logic lives in internal/policy.
func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("policydesk stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var closers []func()
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	store, closeStore, err := buildStore(ctx, cfg.Store, log)
	if err != nil {
		return err
	}
	closers = append(closers, closeStore)

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	var serials service.SerialAllocator = serial.NewInMemory()
	if redisClient != nil {
		serials = serial.NewRedis(redisClient.Client)
		closers = append(closers, func() { _ = redisClient.Close() })
		log.Info("serial numbers allocated from redis")
	}

	g, gctx := errgroup.WithContext(ctx)

	publisher, closeAudit, err := buildAudit(gctx, g, cfg.Kafka, log)
	if err != nil {
		return err
	}
	closers = append(closers, closeAudit)

	svc := service.New(store, serials,
		service.WithLogger(log),
		service.WithAuditPublisher(publisher),
		service.WithMetrics(policymetrics.New()),
	)
	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, jwttoken.Issuer, jwttoken.Audience)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(log))
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(middleware.Logger(log))
	r.Use(middleware.Latency(metrics.New()))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{"status": "ok", "store": cfg.Store.Backend}
		if redisClient != nil {
			if err := redisClient.Health(r.Context()); err != nil {
				status["status"], status["redis"] = "degraded", err.Error()
				httputil.WriteJSON(w, http.StatusServiceUnavailable, status)
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, status)
	})
	r.Handle("/metrics", promhttp.Handler())
	policyhandler.New(svc, jwttoken.NewJWTServiceAdapter(jwtService), log).Register(r)

	srv := httpserver.New(cfg.Addr, r)

	g.Go(func() error {
		log.Info("starting policydesk", "addr", cfg.Addr, "env", cfg.Environment, "store", cfg.Store.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func buildStore(ctx context.Context, cfg config.StoreConfig, log *slog.Logger) (service.PolicyStore, func(), error) {
	switch cfg.Backend {
	case config.BackendPostgres:
		db, err := database.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		store := policystore.NewPostgres(db)
		if err := store.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("migrate policies: %w", err)
		}
		log.Info("using postgres policy store")
		return store, func() { _ = db.Close() }, nil
	case config.BackendMongo:
		client, err := database.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			return nil, nil, err
		}
		store := policystore.NewMongo(client.Database(cfg.MongoDatabase))
		if err := store.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, fmt.Errorf("ensure policy indexes: %w", err)
		}
		log.Info("using mongo policy store", "database", cfg.MongoDatabase)
		return store, func() { _ = client.Disconnect(context.Background()) }, nil
	default:
		log.Warn("using in-memory policy store; data is lost on restart")
		return policystore.NewInMemory(), func() {}, nil
	}
}

// buildAudit streams activity to Kafka through a queue drained by a worker
// in g. Without brokers the events stay in process.
func buildAudit(ctx context.Context, g *errgroup.Group, cfg config.KafkaConfig, log *slog.Logger) (*audit.Publisher, func(), error) {
	if len(cfg.Brokers) == 0 {
		return audit.NewPublisher(audit.NewInMemoryStore()), func() {}, nil
	}
	client, err := audit.NewKafkaClient(cfg.Brokers, cfg.Topic)
	if err != nil {
		return nil, nil, err
	}
	if err := audit.EnsureTopic(ctx, client, cfg.Topic, cfg.Partitions); err != nil {
		client.Close()
		return nil, nil, err
	}
	queue := audit.NewQueue(cfg.QueueSize)
	worker := audit.NewWorker(audit.NewKafkaSink(client, cfg.Topic, log), queue.Events(), log)
	g.Go(func() error {
		if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	log.Info("streaming activity to kafka", "topic", cfg.Topic, "brokers", cfg.Brokers)
	return audit.NewPublisher(queue), client.Close, nil
}
