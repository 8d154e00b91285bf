package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	gormpg "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"shipd/pkg/bus"
	"shipd/pkg/db"
	"shipd/pkg/render"
	gos3 "shipd/pkg/s3"
	"shipd/pkg/telemetry"
	"shipd/services/pipeline"
	"shipd/services/runner"
	"shipd/services/runner/internal/config"
)

func main() {
	if err := run("runner"); err != nil {
		log.New(os.Stderr, "", log.LstdFlags).Fatal(err)
	}
}

func run(serviceName string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, middleware, logger, err := telemetry.Init(ctx, serviceName)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownTelemetry != nil {
			if err := shutdownTelemetry(shutdownCtx); err != nil {
				fmt.Fprintf(os.Stderr, "%s: telemetry shutdown error: %v\n", serviceName, err)
			}
		}
	}()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pool, err := db.Open(ctx, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer pool.Close()

	if cfg.Database.Migrate {
		if err := db.Migrate(ctx, pool); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
	}

	orm, err := gorm.Open(gormpg.Open(cfg.Database.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return fmt.Errorf("open orm: %w", err)
	}

	eventBus, err := bus.New(cfg.Bus.URL)
	if err != nil {
		return fmt.Errorf("connect bus: %w", err)
	}
	defer eventBus.Close()

	s3Client, err := gos3.NewClientFromEnv()
	if err != nil {
		return fmt.Errorf("s3 client: %w", err)
	}

	signer, err := pipeline.NewSignerFromEnv()
	if err != nil {
		return fmt.Errorf("signer: %w", err)
	}

	renderer, err := render.New()
	if err != nil {
		return fmt.Errorf("renderer: %w", err)
	}

	def := pipeline.DefaultDefinition()
	if cfg.Pipeline.DefinitionPath != "" {
		def, err = pipeline.LoadDefinition(cfg.Pipeline.DefinitionPath)
		if err != nil {
			return fmt.Errorf("load pipeline definition: %w", err)
		}
	}

	engine, err := pipeline.NewEngine(orm, eventBus, s3Client, signer, renderer, logger, pipeline.EngineConfig{
		Bucket:   cfg.Artifacts.Bucket,
		WorkRoot: cfg.Pipeline.WorkRoot,
	})
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}

	coordinator, err := runner.NewCoordinator(engine, eventBus, def, logger)
	if err != nil {
		return fmt.Errorf("create coordinator: %w", err)
	}
	if err := coordinator.Start(ctx); err != nil {
		return fmt.Errorf("start coordinator: %w", err)
	}
	defer coordinator.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context(), pool); err != nil {
			http.Error(w, "database not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler: middleware(mux),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "%s: http shutdown error: %v\n", serviceName, err)
		}
	}()

	logger.Printf("INFO pipeline %s ready, http listening on %s", def.Name, server.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return nil
	}
}
