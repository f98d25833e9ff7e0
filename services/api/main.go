package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/convo/internal/config"
	"github.com/convo/internal/handler"
	"github.com/convo/internal/logger"
	"github.com/convo/internal/metrics"
	"github.com/convo/internal/middleware"
	"github.com/convo/internal/notify"
	"github.com/convo/internal/push"
	"github.com/convo/internal/realtime"
	"github.com/convo/internal/repository"
	"github.com/convo/internal/service"
	"github.com/convo/internal/startup"
	"github.com/convo/internal/tracing"
	"github.com/convo/internal/storage/memory"
	"github.com/convo/internal/ws"
	"github.com/convo/migrations"
)

func main() {
	logger.SetPrefix("api")
	migrate := flag.Bool("migrate", false, "run database migrations and exit")
	dev := flag.Bool("dev", false, "start with embedded PostgreSQL (no external DB required)")
	inMemory := flag.Bool("memory", false, "keep all state in memory (no database)")
	flag.Parse()

	logger.Info("starting API service")
	cfg := config.Load()
	logger.SetLevel(cfg.LogLevel)
	defer logger.Sync()

	shutdownTracing, err := tracing.Init(context.Background(), "convo-api", cfg.OTLPEndpoint, cfg.Env)
	if err != nil {
		logger.Errorf("tracing: %v", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Errorf("tracing shutdown: %v", err)
		}
	}()

	var stores service.Stores
	if *inMemory {
		logger.Info("using in-memory store; state is lost on restart")
		stores = memory.New().Stores()
	} else {
		if *dev {
			ep := startup.DefaultEmbeddedPostgres()
			embeddedDB, err := ep.Start()
			if err != nil {
				logger.Errorf("embedded postgres: %v", err)
				os.Exit(1)
			}
			defer stopEmbedded(embeddedDB)
			cfg.Database.URL = ep.URL()
		}
		pool := connectDB(cfg)
		defer pool.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := startup.RunMigrations(ctx, pool, migrations.Files)
		cancel()
		if err != nil {
			logger.Errorf("migrations: %v", err)
			os.Exit(1)
		}
		if *migrate {
			logger.Info("migrations applied")
			return
		}
		stores = repository.NewPostgres(pool).Stores()
	}

	eng := service.New(stores)

	bgCtx, bgCancel := context.WithCancel(context.Background())
	var bgWg sync.WaitGroup
	hub := ws.NewHub(eng, cfg.MaxWSConnections, cfg.CORSAllowedOrigins)
	bgWg.Add(1)
	go func() {
		defer bgWg.Done()
		hub.Run(bgCtx)
	}()

	// Без Redis события доставляются только соединениям этого экземпляра.
	var pub realtime.Publisher = hub
	if cfg.Redis.URL != "" {
		rc := startup.ConnectRedisWithRetry(cfg.Redis.URL, 60*time.Second, "")
		defer rc.Close()
		pub = rc
		bgWg.Add(1)
		go func() {
			defer bgWg.Done()
			if err := rc.Relay(bgCtx, hub.Deliver); err != nil {
				logger.Errorf("realtime relay: %v", err)
			}
		}()
		logger.Info("realtime relay via redis enabled")
	}

	pushClient := push.NewClient(cfg.PushServiceURL, cfg.InternalSecret)
	var notifier realtime.Notifier = notify.Nop{}
	switch {
	case cfg.KafkaEnabled():
		startup.EnsureKafkaTopicWithRetry(cfg.Kafka.Brokers, cfg.Kafka.NotifyTopic, 6, 60*time.Second, "")
		kn := notify.NewKafkaNotifier(cfg.Kafka.Brokers, cfg.Kafka.NotifyTopic)
		defer kn.Close()
		notifier = kn
		logger.Infof("notifications via kafka topic %s", cfg.Kafka.NotifyTopic)
	case pushClient.Enabled():
		notifier = pushClient
		logger.Info("notifications via push service (direct)")
	}
	dispatcher := realtime.NewDispatcher(pub, notifier)

	var pushSub handler.PushSubscriber
	if pushClient.Enabled() {
		pushSub = pushClient
	}
	handlers := handler.New(eng, dispatcher, hub, pushSub)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(tracing.Middleware("convo-api"))
	r.Use(middleware.RecoverJSON)
	r.Use(middleware.Metrics)
	// Не сжимать WebSocket — иначе ResponseWriter не реализует http.Hijacker и upgrade даёт 500.
	r.Use(func(next http.Handler) http.Handler {
		compress := chimw.Compress(5)(next)
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, req)
				return
			}
			compress.ServeHTTP(w, req)
		})
	})
	r.Use(middleware.RequestLog)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSAllowedOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if cfg.MetricsAddr == "" {
		r.Handle("/metrics", metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.BearerAuth([]byte(cfg.JWTSecret), eng))
		r.Use(middleware.RateLimit(cfg.RateLimitPerIP, cfg.RateLimitPerUser, time.Minute))
		handlers.Mount(r)
	})

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	var srvWg sync.WaitGroup
	errCh := make(chan error, 2)
	srvWg.Add(1)
	go func() {
		defer srvWg.Done()
		logger.Infof("server listening on %s", cfg.ServerAddr)
		errCh <- srv.ListenAndServe()
	}()

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
		srvWg.Add(1)
		go func() {
			defer srvWg.Done()
			logger.Infof("metrics listening on %s", cfg.MetricsAddr)
			errCh <- metricsSrv.ListenAndServe()
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Errorf("server error: %v", err)
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("metrics shutdown: %v", err)
		}
	}
	logger.Info("server stopped accepting connections")
	bgCancel()
	bgWg.Wait()
	logger.Info("hub stopped")
	dispatcher.Wait()
	srvWg.Wait()
	logger.Info("server goroutine exited")
}

func connectDB(cfg *config.Config) *pgxpool.Pool {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL())
	if err != nil {
		logger.Errorf("parse db config: %v", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = int32(cfg.DBMaxConnections())
	poolCfg.MinConns = 4
	pool := startup.ConnectDBWithRetry(poolCfg, 60*time.Second, "")
	logger.Info("database connected")
	return pool
}

func stopEmbedded(db *embeddedpostgres.EmbeddedPostgres) {
	logger.Info("stopping embedded postgres...")
	if err := db.Stop(); err != nil {
		logger.Errorf("embedded postgres stop: %v", err)
	}
}
