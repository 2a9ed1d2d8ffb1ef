package main

import (
	"context"
	"errors"
	"flag"
	stdlog "log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/CyberBerto/inference-server-mvp/internal/backend"
	"github.com/CyberBerto/inference-server-mvp/internal/config"
	"github.com/CyberBerto/inference-server-mvp/internal/logger"
	"github.com/CyberBerto/inference-server-mvp/internal/server"
	"github.com/CyberBerto/inference-server-mvp/internal/state"
)

func main() {
	configPath := flag.String("config", "", "Path to the YAML configuration file")
	useMock := flag.Bool("mock", false, "Use the simulated backend instead of vLLM")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		stdlog.Fatalf("load config: %v", err)
	}

	logger.Init(logger.ParseLevel(cfg.LogLevel), "gateway")
	log := logger.Default()

	var client backend.Client
	if *useMock || cfg.Backend.UseMock {
		log.Info("using simulated backend, no inference calls will be made")
		client = backend.NewMockClient()
	} else {
		log.Info("backend: %s (timeout %s)", cfg.Backend.BaseURL, cfg.Backend.RequestTimeout)
		client = backend.NewVLLMClient(backend.Config{
			BaseURL:        cfg.Backend.BaseURL,
			RequestTimeout: cfg.Backend.RequestTimeout,
			HealthTimeout:  cfg.Backend.HealthTimeout,
		})
	}

	srv := server.New(cfg, client, state.New())
	httpServer := &http.Server{
		Addr:    cfg.Addr(),
		Handler: srv.Router(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("listening on %s", cfg.Addr())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("serve: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown: %v", err)
	}
	if err := client.Close(); err != nil {
		log.Error("close backend client: %v", err)
	}
}
