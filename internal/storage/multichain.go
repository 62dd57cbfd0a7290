package storage

import (
	"fmt"

	"github.com/thanhnp/chain-relation/internal/models"
)

// ChainStores holds all stores for a single chain
type ChainStores struct {
	DB            *PebbleDB
	TransferStore *TransferStore
	MetaStore     *MetaStore
}

// NewChainStores creates all stores for a chain using the given database
func NewChainStores(db *PebbleDB) *ChainStores {
	return &ChainStores{
		DB:            db,
		TransferStore: NewTransferStore(db),
		MetaStore:     NewMetaStore(db),
	}
}

// OpenChainStores opens the database of one chain below basePath
func OpenChainStores(basePath string, chain models.Chain) (*ChainStores, error) {
	db, err := NewPebbleDB(basePath + "/" + string(chain))
	if err != nil {
		return nil, fmt.Errorf("open %s index: %w", chain, err)
	}
	return NewChainStores(db), nil
}

// Close closes the database
func (cs *ChainStores) Close() error {
	return cs.DB.Close()
}

// MultiChainTransferStore wraps multiple chain-specific transfer stores
type MultiChainTransferStore struct {
	stores map[models.Chain]*TransferStore
}

// NewMultiChainTransferStore creates a new multi-chain transfer store
func NewMultiChainTransferStore() *MultiChainTransferStore {
	return &MultiChainTransferStore{
		stores: make(map[models.Chain]*TransferStore),
	}
}

// RegisterChain registers a transfer store for a chain
func (m *MultiChainTransferStore) RegisterChain(chain models.Chain, store *TransferStore) {
	m.stores[chain] = store
}

// getStore returns the store for the given chain
func (m *MultiChainTransferStore) getStore(chain models.Chain) (*TransferStore, error) {
	store, ok := m.stores[chain]
	if !ok {
		return nil, fmt.Errorf("chain not registered: %s", chain)
	}
	return store, nil
}

// ListByAddress retrieves every stored transfer of an address
func (m *MultiChainTransferStore) ListByAddress(chain models.Chain, address string) ([]*models.Transfer, error) {
	store, err := m.getStore(chain)
	if err != nil {
		return nil, err
	}
	return store.ListByAddress(chain, address)
}
