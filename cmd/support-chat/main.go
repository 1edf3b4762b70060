package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"support_chat/internal/api"
	"support_chat/internal/broker"
	"support_chat/internal/chat"
	"support_chat/internal/config"
	"support_chat/internal/logger"
	"support_chat/internal/metrics"
	"support_chat/internal/notify"
	"support_chat/internal/outbox"
	"support_chat/internal/presence"
	"support_chat/internal/push"
	"support_chat/internal/repository"
	"support_chat/internal/translate"
	"support_chat/internal/ws"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	_ = godotenv.Load(".env")

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	emitter := notify.NewEmitter()

	// Database
	var db *sql.DB
	if cfg.Store.Backend == config.BackendPostgres || cfg.Presence.Backend == config.BackendPostgres {
		var err error
		db, err = sql.Open("postgres", cfg.Store.DSN)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		if cfg.Store.AutoMigrate {
			if err := repository.Migrate(ctx, db); err != nil {
				return err
			}
		}
	}

	// Store and cross-node fan-out
	var (
		store         repository.Store
		queues        ws.UserQueues
		notifications repository.NotificationRepository
	)
	switch cfg.Store.Backend {
	case config.BackendMemory:
		log.Info("using in-memory store; changes are not shared between nodes")
		store = repository.NewMemoryStore(emitter)

	case config.BackendPostgres:
		outboxRepo := repository.NewPostgresOutboxRepository(db)
		store = repository.NewChatRepository(db, outboxRepo)

		mq, err := broker.NewRabbitMQClient(cfg.Broker.AMQPURL)
		if err != nil {
			return err
		}
		defer mq.Close()
		queues = mq

		var journal outbox.Journal
		if cfg.Broker.StreamURL != "" {
			j, err := broker.NewJournal(cfg.Broker.StreamURL, cfg.Broker.StreamName)
			if err != nil {
				return err
			}
			defer j.Close()
			journal = j
		}
		go outbox.NewWorker(outboxRepo, mq, journal, m, log).Start(ctx, cfg.Store.OutboxPoll)

		deliveries, err := mq.ConsumeBroadcast("room.#")
		if err != nil {
			return err
		}
		go ws.RelayRoomEvents(ctx, deliveries, emitter, log)

		notifications = repository.NewPostgresNotificationRepository(db)
		pushWorker := push.NewWorker(mq, notifications, m, log)
		go func() {
			if err := pushWorker.Start(ctx); err != nil {
				log.Error("push worker stopped", "err", err)
			}
		}()
	}

	// Presence
	presenceRepo, closePresence, err := presenceRepository(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer closePresence()
	presenceSvc := presence.NewService(presenceRepo, m, log)
	if presenceSvc.Location, err = cfg.Location(); err != nil {
		return err
	}

	// Chat
	var tr translate.Translator = translate.Noop{}
	if cfg.Translate.URL != "" {
		tr = translate.NewClient(cfg.Translate.URL, cfg.Translate.Timeout)
	}
	svc := chat.NewService(store, emitter, nil, tr, m, log)

	// WebSocket hub
	hub := ws.NewHub(svc, ws.Options{
		Presence:  presenceSvc,
		Heartbeat: cfg.Presence.Heartbeat,
		Queues:    queues,
		Metrics:   m,
		Logger:    log,
	})
	hubDone := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(hubDone)
	}()

	// HTTP
	server := api.NewServer(api.Deps{
		Chat:          svc,
		Presence:      presenceSvc,
		Notifications: notifications,
		Hub:           hub,
		Gatherer:      reg,
		Logger:        log,
	})
	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", "port", cfg.Server.Port, "store", cfg.Store.Backend, "presence", cfg.Presence.Backend)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	}

	log.Info("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("failed to shut down http server", "err", err)
	}
	cancel()
	<-hubDone
	return nil
}

func presenceRepository(ctx context.Context, cfg *config.Config, db *sql.DB) (presence.Repository, func(), error) {
	switch cfg.Presence.Backend {
	case config.BackendRedis:
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return presence.NewRedisRepository(rdb), func() { rdb.Close() }, nil
	case config.BackendPostgres:
		return presence.NewPostgresRepository(db), func() {}, nil
	default:
		return presence.NewMemoryRepository(), func() {}, nil
	}
}
