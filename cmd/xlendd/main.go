package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"xlend/config"
	"xlend/native/lending"
	"xlend/native/oracle"
	"xlend/observability"
	"xlend/observability/logging"
	"xlend/rpc"
	"xlend/storage"
)

// meteredOracle publishes the age of every quote the engine consumes.
type meteredOracle struct {
	inner   oracle.PriceOracle
	metrics *observability.LendingMetrics
}

func (m meteredOracle) GetPrice(feedID string) (oracle.PriceQuote, error) {
	quote, err := m.inner.GetPrice(feedID)
	if err == nil {
		m.metrics.RecordQuoteAge(feedID, time.Since(quote.Timestamp))
	}
	return quote, err
}

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	memStore := flag.Bool("mem-store", false, "DEV ONLY: keep all state in memory instead of the data directory")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("XLEND_ENV"))
	logger := logging.Setup("xlendd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("Failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	authority, err := cfg.Authority()
	if err != nil {
		logger.Error("Settlement authority not configured", slog.Any("error", err))
		os.Exit(1)
	}
	vault, err := cfg.CollateralVault()
	if err != nil {
		logger.Error("Collateral vault not configured", slog.Any("error", err))
		os.Exit(1)
	}

	var db storage.Database
	if *memStore {
		db = storage.NewMemDB()
	} else {
		leveldb, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
		if err != nil {
			logger.Error("Failed to open database", slog.Any("error", err))
			os.Exit(1)
		}
		db = leveldb
	}
	defer db.Close()

	prices, err := buildOracle(cfg.Oracle)
	if err != nil {
		logger.Error("Failed to build price oracle", slog.Any("error", err))
		os.Exit(1)
	}

	engine := lending.NewEngine(authority.Fixed(), vault.Fixed(), cfg.Lending)
	engine.SetState(lending.NewStore(db))
	engine.SetOracle(meteredOracle{inner: prices, metrics: observability.Lending()})

	token := cfg.AuthorityToken()
	if token == "" {
		logger.Warn("No authority token resolved; system operations are disabled",
			slog.String("env_var", cfg.AuthorityTokenEnv))
	}
	server := rpc.NewServer(engine, authority.Fixed(), token, logger)

	mux := http.NewServeMux()
	mux.Handle("/", server.Router())
	mux.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("xlendd listening",
			slog.String("address", cfg.ListenAddress),
			slog.String("network", cfg.NetworkName),
			slog.String("authority", authority.String()),
		)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
	}
}

// buildOracle assembles the aggregator from configuration: a manual oracle
// for operator overrides always registers, an HTTP feed joins when an
// endpoint is configured. API keys come from the environment, never the
// config file.
func buildOracle(cfg oracle.Config) (oracle.PriceOracle, error) {
	cfg = cfg.Normalise()
	agg := oracle.NewAggregator(cfg.Priority, cfg.MaxQuoteAge())
	agg.Register("manual", oracle.NewManualOracle())
	if cfg.HTTPEndpoint != "" {
		apiKey := ""
		if cfg.HTTPAPIKeyEnv != "" {
			apiKey = strings.TrimSpace(os.Getenv(cfg.HTTPAPIKeyEnv))
			if apiKey == "" {
				return nil, fmt.Errorf("oracle API key environment variable %s is empty", cfg.HTTPAPIKeyEnv)
			}
		}
		agg.Register("http", oracle.NewHTTPOracle(nil, cfg.HTTPEndpoint, apiKey))
	}
	return agg, nil
}
