package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"github.com/andreas-portfolio/water-quality-api/internal/auth"
	"github.com/andreas-portfolio/water-quality-api/internal/config"
	"github.com/andreas-portfolio/water-quality-api/internal/httpapi"
	"github.com/andreas-portfolio/water-quality-api/internal/ingest"
	"github.com/andreas-portfolio/water-quality-api/internal/mqtt"
	"github.com/andreas-portfolio/water-quality-api/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	for _, key := range []string{"JWT_SECRET", "JWT_ALGORITHM", "POSTGRES_USER", "POSTGRES_DB", "POSTGRES_HOST", "POSTGRES_PORT", "MQTT_BROKER_URL"} {
		if strings.TrimSpace(os.Getenv(key)) == "" {
			slog.Error("missing required env", "key", key)
			os.Exit(1)
		}
	}

	authSvc, err := auth.NewService(cfg.JWTSecret, cfg.JWTAlgorithm, cfg.TokenExpiryMinutes)
	if err != nil {
		slog.Error("auth setup failed", "error", err)
		os.Exit(1)
	}

	db, err := openPostgresWithRetry(cfg.Postgres)
	if err != nil {
		slog.Error("db connect failed", "error", err)
		os.Exit(1)
	}
	repo, err := store.New(db)
	if err != nil {
		slog.Error("db migrate failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clientID := cfg.MQTTClientID + "-" + uuid.NewString()[:8]
	mq, err := mqtt.Connect(cfg.MQTTBrokerURL, clientID)
	if err != nil {
		slog.Error("mqtt connect failed", "error", err)
		os.Exit(1)
	}
	defer mq.Close()

	ing := &ingest.Ingestor{Repo: repo}
	for _, filter := range ingest.TopicFilters() {
		if err := mq.Subscribe(filter, func(m mqtt.Message) {
			ing.HandleMessage(ctx, m, time.Now().UTC())
		}); err != nil {
			slog.Error("mqtt subscribe failed", "filter", filter, "error", err)
			os.Exit(1)
		}
		slog.Info("ingest subscribed", "filter", filter)
	}

	srv := httpapi.New(repo, authSvc)
	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("waterquality-service listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
			cancel()
		}
	}()

	stop := make(chan os.Signal, 2)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	slog.Info("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	cancel()
}

func openPostgresWithRetry(pg config.DBConfig) (*gorm.DB, error) {
	var db *gorm.DB
	var err error
	for i := 0; i < 30; i++ {
		db, err = store.OpenPostgres(pg.User, pg.Password, pg.DBName, pg.Host, pg.Port, pg.SSLMode)
		if err == nil {
			return db, nil
		}
		slog.Warn("waiting for postgres", "attempt", i+1, "error", err)
		time.Sleep(2 * time.Second)
	}
	return nil, err
}

func setupLogging(level string) {
	lvl := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	h := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(h))
}
