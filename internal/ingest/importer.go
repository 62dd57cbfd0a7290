// Package ingest loads transfer histories into the local transfer index.
package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/thanhnp/chain-relation/internal/chain"
	"github.com/thanhnp/chain-relation/internal/models"
	"github.com/thanhnp/chain-relation/internal/storage"
)

// CheckpointInterval is the number of batches between durable flushes while importing
const CheckpointInterval = 20

// maxLineSize bounds a single JSONL record
const maxLineSize = 1 << 20

// Stats summarises one import run
type Stats struct {
	Lines      int   `json:"lines"`
	Imported   int   `json:"imported"`   // transfers new to the index
	Duplicates int   `json:"duplicates"` // valid records already in the index
	Skipped    int   `json:"skipped"`
	Total      int64 `json:"total"` // distinct transfers indexed for the chain across all runs
}

// Importer writes transfers of one chain into its index database
type Importer struct {
	chain     models.Chain
	db        *storage.PebbleDB
	store     *storage.TransferStore
	meta      *storage.MetaStore
	batchSize int
	logger    *zap.Logger

	mu      sync.Mutex
	running bool
}

// NewImporter creates a new Importer over the stores of chain
func NewImporter(c models.Chain, stores *storage.ChainStores, batchSize int, logger *zap.Logger) *Importer {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Importer{
		chain:     c,
		db:        stores.DB,
		store:     stores.TransferStore,
		meta:      stores.MetaStore,
		batchSize: batchSize,
		logger:    logger.With(zap.String("chain", string(c))),
	}
}

// Import reads newline-delimited JSON transfers from r. Records that are not
// valid transfers of the importer's chain are skipped and counted. The
// database runs without per-write fsync for the duration and is flushed every
// CheckpointInterval batches and once more at the end.
func (im *Importer) Import(ctx context.Context, r io.Reader) (*Stats, error) {
	im.mu.Lock()
	if im.running {
		im.mu.Unlock()
		return nil, fmt.Errorf("import already running for %s", im.chain)
	}
	im.running = true
	im.mu.Unlock()
	defer func() {
		im.mu.Lock()
		im.running = false
		im.mu.Unlock()
	}()

	total, err := im.meta.GetImportedCount(im.chain)
	if err != nil {
		return nil, fmt.Errorf("failed to get imported count: %w", err)
	}

	im.db.SetImportMode(true)
	im.logger.Info("import mode enabled", zap.Int("batch_size", im.batchSize))
	defer func() {
		if err := im.db.Sync(); err != nil {
			im.logger.Warn("final flush failed", zap.Error(err))
		}
		im.db.SetImportMode(false)
	}()

	stats := &Stats{Total: total}
	batch := make([]*models.Transfer, 0, im.batchSize)
	batches := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		added, err := im.store.SaveBatch(batch)
		if err != nil {
			return fmt.Errorf("failed to save batch: %w", err)
		}
		stats.Imported += added
		stats.Duplicates += len(batch) - added
		stats.Total += int64(added)
		if err := im.meta.SetImportedCount(im.chain, stats.Total); err != nil {
			return fmt.Errorf("failed to update imported count: %w", err)
		}
		batch = batch[:0]
		batches++

		if batches%CheckpointInterval == 0 {
			if err := im.db.Sync(); err != nil {
				im.logger.Warn("checkpoint flush failed", zap.Int("imported", stats.Imported), zap.Error(err))
			}
			im.logger.Info("import progress", zap.Int("imported", stats.Imported), zap.Int("skipped", stats.Skipped))
		}
		return nil
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			im.logger.Info("import cancelled, flushing to disk", zap.Int("imported", stats.Imported))
			if ferr := flush(); ferr != nil {
				return stats, ferr
			}
			return stats, err
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		stats.Lines++

		t, err := im.parse(line)
		if err != nil {
			stats.Skipped++
			im.logger.Debug("skipping record", zap.Int("line", stats.Lines), zap.Error(err))
			continue
		}

		batch = append(batch, t)
		if len(batch) >= im.batchSize {
			if err := flush(); err != nil {
				return stats, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("failed to read input: %w", err)
	}
	if err := flush(); err != nil {
		return stats, err
	}

	im.logger.Info("import completed",
		zap.Int("lines", stats.Lines),
		zap.Int("imported", stats.Imported),
		zap.Int("duplicates", stats.Duplicates),
		zap.Int("skipped", stats.Skipped),
		zap.Int64("total", stats.Total))
	return stats, nil
}

// parse decodes one record and checks it belongs to the importer's chain
func (im *Importer) parse(line []byte) (*models.Transfer, error) {
	var t models.Transfer
	if err := json.Unmarshal(line, &t); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if t.Chain == "" {
		t.Chain = im.chain
	}
	if t.Chain != im.chain {
		return nil, fmt.Errorf("record for %s in %s import", t.Chain, im.chain)
	}
	if t.TxRef == "" {
		return nil, fmt.Errorf("missing tx_ref")
	}
	if err := chain.Validate(im.chain, t.From); err != nil {
		return nil, fmt.Errorf("from: %w", err)
	}
	if err := chain.Validate(im.chain, t.To); err != nil {
		return nil, fmt.Errorf("to: %w", err)
	}
	return &t, nil
}

// Purge removes every transfer the address took part in from the index and
// lowers the chain's imported count accordingly. It returns the number of
// transfers removed.
func (im *Importer) Purge(address string) (int, error) {
	im.mu.Lock()
	defer im.mu.Unlock()
	if im.running {
		return 0, fmt.Errorf("import running for %s", im.chain)
	}

	if err := chain.Validate(im.chain, address); err != nil {
		return 0, err
	}

	removed, err := im.store.DeleteByAddress(im.chain, address)
	if err != nil {
		return 0, fmt.Errorf("failed to delete transfers: %w", err)
	}
	if removed == 0 {
		return 0, nil
	}

	total, err := im.meta.GetImportedCount(im.chain)
	if err != nil {
		return removed, fmt.Errorf("failed to get imported count: %w", err)
	}
	total -= int64(removed)
	if total < 0 {
		total = 0
	}
	if err := im.meta.SetImportedCount(im.chain, total); err != nil {
		return removed, fmt.Errorf("failed to update imported count: %w", err)
	}

	im.logger.Info("purged address", zap.String("address", address), zap.Int("removed", removed), zap.Int64("total", total))
	return removed, nil
}

// Reset removes the import bookkeeping of the chain. Stored transfers are kept.
func (im *Importer) Reset() error {
	return im.meta.Reset(im.chain)
}
