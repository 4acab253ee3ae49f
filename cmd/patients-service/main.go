package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/stellar-sleep/patients-api/pkg/common/cache"
	"github.com/stellar-sleep/patients-api/pkg/common/config"
	"github.com/stellar-sleep/patients-api/pkg/common/database"
	"github.com/stellar-sleep/patients-api/pkg/common/kafka"
	"github.com/stellar-sleep/patients-api/pkg/common/logger"
	"github.com/stellar-sleep/patients-api/pkg/common/middleware"
	"github.com/stellar-sleep/patients-api/pkg/observability/metrics"
	"github.com/stellar-sleep/patients-api/pkg/patients"
)

func main() {
	logger.Init()
	cfg, err := config.LoadWithFile(os.Getenv("CONFIG_FILE"))
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to load configuration")
	}

	db, err := database.OpenPostgres(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to postgres")
	}
	defer database.Close(db)

	repo := patients.NewRepository(db)
	if cfg.AutoMigrate {
		if err := repo.AutoMigrate(); err != nil {
			logger.Log.WithError(err).Fatal("failed to migrate patient tables")
		}
	}

	var catalog patients.CatalogCache
	if client := database.OpenRedis(cfg); client != nil {
		defer client.Close()
		catalog = cache.NewRedisCache(client, "patients", cfg.CustomFieldCacheTTL)
	}

	var events patients.EventPublisher
	if cfg.KafkaEnabled() {
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		events = producer
		logger.Log.WithField("topic", cfg.KafkaTopic).Info("Publishing change events")
	}

	service := patients.NewService(repo, catalog, events)
	handler := patients.NewHandler(service)

	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(patients.NotFound)
	router.Use(middleware.Metrics)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)
	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := database.Ping(ctx, db); err != nil {
			logger.FromContext(r.Context()).WithError(err).Warn("readiness check failed")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	handler.Register(api)

	// mux only runs router.Use middleware on matched routes, so the
	// request-wide layers wrap the router itself.
	root := middleware.Wrap(router, cfg.RateLimitRPS, cfg.RateLimitBurst, cfg.MaxRequestBody, cfg.CORSOrigin)

	address := fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort)
	server := &http.Server{
		Addr:         address,
		Handler:      root,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Log.WithField("addr", address).Info("Patients service listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start patients service")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down patients service...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Log.WithError(err).Error("Patients service forced to shutdown")
	}
	logger.Log.Info("Patients service stopped")
}
