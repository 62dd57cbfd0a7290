package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/thanhnp/chain-relation/internal/api"
	"github.com/thanhnp/chain-relation/internal/cache"
	"github.com/thanhnp/chain-relation/internal/config"
	"github.com/thanhnp/chain-relation/internal/logger"
	"github.com/thanhnp/chain-relation/internal/models"
	"github.com/thanhnp/chain-relation/internal/search"
	"github.com/thanhnp/chain-relation/internal/source"
	"github.com/thanhnp/chain-relation/internal/storage"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logger.InitLogger(cfg.Log.File, cfg.Log.Level); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Logger.Sync()

	lg := logger.Named("server")
	lg.Info("Starting chain relation server...")

	multiSource := source.NewMultiChainSource()
	var chains []models.Chain

	multiTransferStore := storage.NewMultiChainTransferStore()

	// Track chain stores for cleanup
	var chainStores []*storage.ChainStores

	providers := []struct {
		chain models.Chain
		cfg   *config.ProviderConfig
		api   func() source.TransferSource
	}{
		{models.ChainEthereum, &cfg.Ethereum, func() source.TransferSource {
			return source.NewEtherscanSource(&cfg.Ethereum, logger.Named("etherscan"))
		}},
		{models.ChainSolana, &cfg.Solana, func() source.TransferSource {
			return source.NewSolscanSource(&cfg.Solana, logger.Named("solscan"))
		}},
	}

	for _, p := range providers {
		if !p.cfg.Enabled {
			lg.Info("chain disabled", zap.String("chain", string(p.chain)))
			continue
		}

		switch p.cfg.Mode {
		case config.ModeIndex:
			lg.Info("opening transfer index",
				zap.String("chain", string(p.chain)),
				zap.String("path", cfg.Pebble.Path+"/"+string(p.chain)))
			stores, err := storage.OpenChainStores(cfg.Pebble.Path, p.chain)
			if err != nil {
				lg.Fatal("failed to open transfer index", zap.String("chain", string(p.chain)), zap.Error(err))
			}
			chainStores = append(chainStores, stores)
			multiTransferStore.RegisterChain(p.chain, stores.TransferStore)
			multiSource.RegisterChain(p.chain, source.NewIndexSource(multiTransferStore))
		default:
			lg.Info("using remote transfer provider",
				zap.String("chain", string(p.chain)),
				zap.String("base_url", p.cfg.BaseURL))
			multiSource.RegisterChain(p.chain, p.api())
		}
		chains = append(chains, p.chain)
	}

	if len(chains) == 0 {
		lg.Fatal("no chain enabled")
	}

	lookup := cache.NewLookupCache(multiSource, logger.Named("cache"))
	engine := search.NewEngine(lookup, search.Options{
		DefaultHops:      cfg.Search.DefaultHops,
		MaxHops:          cfg.Search.MaxHops,
		FetchConcurrency: cfg.Search.FetchConcurrency,
		Supports:         multiSource.Supports,
	}, logger.Named("search"))

	router := api.NewRouter(engine, lookup, chains, logger.Named("api"))

	// Create HTTP server. Streams stay open for the whole search, so there is no write timeout.
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Start HTTP server in goroutine
	go func() {
		lg.Info("HTTP server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			lg.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	lg.Info("Shutting down...")

	// Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		lg.Error("HTTP server shutdown error", zap.Error(err))
	}

	// Close all chain databases
	for _, cs := range chainStores {
		if err := cs.Close(); err != nil {
			lg.Error("Error closing chain database", zap.Error(err))
		}
	}

	stats := lookup.Stats()
	lg.Info("Server stopped",
		zap.Int("cached_addresses", stats.Entries),
		zap.Int64("cache_hits", stats.Hits),
		zap.Int64("cache_misses", stats.Misses))
}
