// Микросервис пуш-уведомлений (Web Push): подписки в Redis, уведомления из Kafka, отправка через VAPID.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/convo/internal/config"
	"github.com/convo/internal/logger"
	"github.com/convo/internal/metrics"
	"github.com/convo/internal/middleware"
	"github.com/convo/internal/model"
	"github.com/convo/internal/notify"
	"github.com/convo/internal/push"
	"github.com/convo/internal/startup"
	"github.com/convo/internal/tracing"
)

func main() {
	logger.SetPrefix("push")
	if len(os.Args) > 1 && (os.Args[1] == "-gen-vapid" || os.Args[1] == "--gen-vapid") {
		priv, pub, err := webpush.GenerateVAPIDKeys()
		if err != nil {
			logger.Errorf("generate VAPID: %v", err)
			os.Exit(1)
		}
		logger.Infof("VAPID_PUBLIC_KEY=%s", pub)
		logger.Infof("VAPID_PRIVATE_KEY=%s", priv)
		logger.Sync()
		return
	}
	logger.Info("starting push service")
	cfg := config.Load()
	logger.SetLevel(cfg.LogLevel)
	defer logger.Sync()

	shutdownTracing, err := tracing.Init(context.Background(), "convo-push", cfg.OTLPEndpoint, cfg.Env)
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

	keys, err := push.ResolveVAPIDKeys(cfg.VAPIDKeysPath)
	if err != nil {
		// Подписки продолжают сохраняться, отправка не выполняется.
		logger.Errorf("VAPID: %v; push-уведомления отключены", err)
	}

	redisURL := cfg.Redis.URL
	if redisURL == "" {
		redisURL = "redis://localhost:6379"
	}
	rc := startup.ConnectRedisWithRetry(redisURL, 60*time.Second, "push: ")
	defer rc.Close()
	logger.Info("redis connected")

	sender := push.NewSender(rc, keys)
	publicKey := ""
	if keys != nil {
		publicKey = keys.PublicKey
	}
	s := push.NewServer(rc, sender, publicKey)

	bgCtx, bgCancel := context.WithCancel(context.Background())
	var bgWg sync.WaitGroup
	if cfg.KafkaEnabled() {
		startup.EnsureKafkaTopicWithRetry(cfg.Kafka.Brokers, cfg.Kafka.NotifyTopic, 6, 60*time.Second, "push: ")
		consumer := notify.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.NotifyTopic,
			func(ctx context.Context, p model.NewMessagePayload) error {
				_, err := sender.SendToUser(ctx, push.NotifyRequestFor(p))
				return err
			})
		bgWg.Add(1)
		go func() {
			defer bgWg.Done()
			if err := consumer.Run(bgCtx); err != nil {
				logger.Errorf("notify consumer: %v", err)
			}
		}()
		logger.Infof("consuming kafka topic %s as %s", cfg.Kafka.NotifyTopic, cfg.Kafka.GroupID)
	}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(tracing.Middleware("convo-push"))
	r.Use(middleware.RecoverJSON)
	r.Use(middleware.Metrics)
	r.Use(middleware.RequestLog)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/metrics", metrics.Handler().ServeHTTP)
	r.Get("/api/vapid-public", s.HandleVAPIDPublic)
	r.Group(func(r chi.Router) {
		r.Use(middleware.InternalOnly(cfg.InternalSecret))
		s.Routes(r)
	})

	srv := &http.Server{
		Addr:         cfg.PushAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Infof("push server listening on %s", cfg.PushAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("push server: %v", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutdown signal received")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
	bgCancel()
	bgWg.Wait()
	logger.Info("push server stopped")
}
