package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"casetree/config"
	"casetree/internal/api"
	"casetree/internal/logger"
	"casetree/internal/metrics"
	"casetree/internal/persist"
	"casetree/internal/store"

	"github.com/prometheus/client_golang/prometheus"
)

func findConfigFile(configArg string) string {
	if configArg != "" {
		path := configArg
		if _, err := os.Stat(path); err == nil {
			return path
		}
		log.Printf("Warning: config file not found at %s, trying default locations", path)
	}

	if _, err := os.Stat("casetree.yml"); err == nil {
		return "casetree.yml"
	}

	exePath, err := os.Executable()
	if err == nil {
		exeDir := filepath.Dir(exePath)
		path := filepath.Join(exeDir, "casetree.yml")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return "casetree.yml"
}

func applyDefaults(cfg *config.Config) {
	if cfg.Casetree.Store.Mode == "" {
		cfg.Casetree.Store.Mode = "file"
	}
	if cfg.Casetree.Store.Redis.Addr == "" {
		cfg.Casetree.Store.Redis.Addr = "127.0.0.1:6379"
	}
	if cfg.Casetree.Store.Redis.KeyPrefix == "" {
		cfg.Casetree.Store.Redis.KeyPrefix = "casetree"
	}
	if cfg.Casetree.Store.File.Dir == "" {
		cfg.Casetree.Store.File.Dir = "data"
	}
	if cfg.Casetree.Store.File.PollInterval <= 0 {
		cfg.Casetree.Store.File.PollInterval = 500 * time.Millisecond
	}
	if cfg.Casetree.API.Addr == "" {
		cfg.Casetree.API.Addr = ":8710"
	}
	if cfg.Casetree.Logging.Level == "" {
		cfg.Casetree.Logging.Level = "info"
	}
}

func main() {
	configArg := ""
	if len(os.Args) > 1 {
		configArg = os.Args[1]
	}
	configPath := findConfigFile(configArg)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	applyDefaults(cfg)

	if err := logger.Init(cfg.Casetree.Logging.Enabled, cfg.Casetree.Logging.Level, cfg.Casetree.Logging.File, cfg.Casetree.Logging.Console); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	logger.Infof("Casetree starting")
	logger.Infof("Config loaded from: %s", configPath)

	var adapter persist.Adapter
	switch cfg.Casetree.Store.Mode {
	case "redis":
		a, err := persist.NewRedisAdapter(persist.RedisConfig{
			Addr:      cfg.Casetree.Store.Redis.Addr,
			Password:  cfg.Casetree.Store.Redis.Password,
			DB:        cfg.Casetree.Store.Redis.DB,
			KeyPrefix: cfg.Casetree.Store.Redis.KeyPrefix,
		})
		if err != nil {
			logger.Errorf("Failed to create Redis persistence: %v", err)
			log.Fatalf("Failed to create Redis persistence: %v", err)
		}
		adapter = a
		logger.Infof("Persistence mode: redis (%s)", cfg.Casetree.Store.Redis.Addr)
	case "file":
		a, err := persist.NewFileAdapter(persist.FileConfig{
			Dir:          cfg.Casetree.Store.File.Dir,
			PollInterval: cfg.Casetree.Store.File.PollInterval,
		})
		if err != nil {
			logger.Errorf("Failed to create file persistence: %v", err)
			log.Fatalf("Failed to create file persistence: %v", err)
		}
		adapter = a
		logger.Infof("Persistence mode: file (%s)", cfg.Casetree.Store.File.Dir)
	default:
		log.Fatalf("Unknown store mode: %s", cfg.Casetree.Store.Mode)
	}

	cascade := true
	if cfg.Casetree.Signals.CascadeDelete != nil {
		cascade = *cfg.Casetree.Signals.CascadeDelete
	}

	st, err := store.New(adapter, store.Config{
		CascadeSignals: cascade,
		Metrics:        metrics.New(prometheus.DefaultRegisterer),
	})
	if err != nil {
		logger.Errorf("Failed to initialize store: %v", err)
		log.Fatalf("Failed to initialize store: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := st.Run(ctx); err != nil && err != context.Canceled {
			logger.Errorf("Store watch error: %v", err)
		}
	}()

	var server *http.Server
	if cfg.Casetree.API.Enabled {
		mux := http.NewServeMux()
		api.NewHTTPAPI(st).SetupRoutes(mux)
		server = &http.Server{Addr: cfg.Casetree.API.Addr, Handler: mux}
		go func() {
			logger.Infof("HTTP API listening on %s", cfg.Casetree.API.Addr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Errorf("HTTP API error: %v", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Infof("Shutting down")
	cancel()

	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("Error shutting down HTTP API: %v", err)
		}
	}
	if err := adapter.Close(); err != nil {
		logger.Errorf("Error closing persistence: %v", err)
	}

	logger.Infof("Casetree stopped")
}
