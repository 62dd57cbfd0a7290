package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/thanhnp/chain-relation/internal/config"
	"github.com/thanhnp/chain-relation/internal/ingest"
	"github.com/thanhnp/chain-relation/internal/logger"
	"github.com/thanhnp/chain-relation/internal/models"
	"github.com/thanhnp/chain-relation/internal/storage"
)

var (
	configPath string
	chainName  string
	resetCount bool
	address    string

	cfg *config.Config

	rootCmd = &cobra.Command{
		Use:   "indexer",
		Short: "Maintain the local transfer index used by index-mode chains",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if cfg, err = config.Load(configPath); err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			return logger.InitLogger(cfg.Log.File, cfg.Log.Level)
		},
		SilenceUsage: true,
	}

	importCmd = &cobra.Command{
		Use:   "import [file.jsonl | -]",
		Short: "Import newline-delimited JSON transfers into a chain's index",
		Long: `Each line is one transfer: {"tx_ref": "...", "from": "...", "to": "...",
"amount": "...", "timestamp": "RFC3339", "chain": "eth|sol"}. The chain field
may be omitted; records of another chain or with malformed addresses are skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: runImport,
	}

	purgeCmd = &cobra.Command{
		Use:   "purge",
		Short: "Remove every indexed transfer of an address",
		Args:  cobra.NoArgs,
		RunE:  runPurge,
	}

	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show how many transfers have been imported per chain",
		RunE:  runStats,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	importCmd.Flags().StringVar(&chainName, "chain", "", "Chain of the imported transfers (eth or sol)")
	importCmd.Flags().BoolVar(&resetCount, "reset", false, "Reset the imported count before importing")
	_ = importCmd.MarkFlagRequired("chain")

	purgeCmd.Flags().StringVar(&chainName, "chain", "", "Chain of the address (eth or sol)")
	purgeCmd.Flags().StringVar(&address, "address", "", "Address whose transfers are removed")
	_ = purgeCmd.MarkFlagRequired("chain")
	_ = purgeCmd.MarkFlagRequired("address")

	rootCmd.AddCommand(importCmd, purgeCmd, statsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func parseChainFlag() (models.Chain, error) {
	c, ok := models.ParseChain(chainName)
	if !ok {
		return "", fmt.Errorf("unknown chain %q, expected eth or sol", chainName)
	}
	return c, nil
}

func runImport(cmd *cobra.Command, args []string) error {
	c, err := parseChainFlag()
	if err != nil {
		return err
	}

	var in io.Reader = os.Stdin
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	stores, err := storage.OpenChainStores(cfg.Pebble.Path, c)
	if err != nil {
		return err
	}
	defer stores.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	importer := ingest.NewImporter(c, stores, cfg.Index.BatchSize, logger.Named("ingest"))
	if resetCount {
		if err := importer.Reset(); err != nil {
			return err
		}
	}

	stats, err := importer.Import(ctx, in)
	if stats != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d lines, %d imported, %d duplicates, %d skipped, %d total\n",
			c, stats.Lines, stats.Imported, stats.Duplicates, stats.Skipped, stats.Total)
	}
	if err != nil {
		logger.Logger.Error("import failed", zap.String("chain", string(c)), zap.Error(err))
	}
	return err
}

func runPurge(cmd *cobra.Command, args []string) error {
	c, err := parseChainFlag()
	if err != nil {
		return err
	}

	stores, err := storage.OpenChainStores(cfg.Pebble.Path, c)
	if err != nil {
		return err
	}
	defer stores.Close()

	removed, err := ingest.NewImporter(c, stores, cfg.Index.BatchSize, logger.Named("ingest")).Purge(address)
	if err != nil {
		logger.Logger.Error("purge failed", zap.String("chain", string(c)), zap.Error(err))
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: removed %d transfers of %s\n", c, removed, address)
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	for _, c := range models.Chains {
		path := cfg.Pebble.Path + "/" + string(c)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: no index\n", c)
			continue
		}

		stores, err := storage.OpenChainStores(cfg.Pebble.Path, c)
		if err != nil {
			return err
		}
		count, err := stores.MetaStore.GetImportedCount(c)
		stores.Close()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d transfers imported\n", c, count)
	}
	return nil
}
