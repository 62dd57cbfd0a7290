package storage

import (
	"fmt"
	"strconv"

	"github.com/thanhnp/chain-relation/internal/models"
)

// MetaStore handles index bookkeeping
type MetaStore struct {
	db *PebbleDB
}

// NewMetaStore creates a new MetaStore
func NewMetaStore(db *PebbleDB) *MetaStore {
	return &MetaStore{db: db}
}

// GetImportedCount retrieves the number of transfers imported for a chain
func (s *MetaStore) GetImportedCount(chain models.Chain) (int64, error) {
	data, err := s.db.Get(CFIndexMeta, []byte(chain))
	if err != nil {
		return 0, err
	}
	if data == nil {
		return 0, nil
	}

	count, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse imported count: %w", err)
	}

	return count, nil
}

// SetImportedCount sets the number of transfers imported for a chain
func (s *MetaStore) SetImportedCount(chain models.Chain, count int64) error {
	return s.db.Put(CFIndexMeta, []byte(chain), []byte(strconv.FormatInt(count, 10)))
}

// Reset forgets the import bookkeeping of a chain
func (s *MetaStore) Reset(chain models.Chain) error {
	return s.db.Delete(CFIndexMeta, []byte(chain))
}
