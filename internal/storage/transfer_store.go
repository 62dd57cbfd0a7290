package storage

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/thanhnp/chain-relation/internal/models"
)

// TransferStore handles transfer storage operations.
// Every transfer is written twice, once under each participant, so that all
// transfers touching an address can be read with one prefix scan.
type TransferStore struct {
	db *PebbleDB
}

// NewTransferStore creates a new TransferStore
func NewTransferStore(db *PebbleDB) *TransferStore {
	return &TransferStore{db: db}
}

// addressTransferKey creates a key for the address_transfers column family
func addressTransferKey(chain models.Chain, address, txRef, counterparty string) []byte {
	return []byte(fmt.Sprintf("%s:%s:%s:%s", chain, address, txRef, counterparty))
}

// addressTransferPrefix creates a prefix for all transfers of an address
func addressTransferPrefix(chain models.Chain, address string) []byte {
	return []byte(fmt.Sprintf("%s:%s:", chain, address))
}

// SaveBatch stores multiple transfers atomically and returns how many of them
// were not in the index before. Re-importing a transfer overwrites it in place.
func (s *TransferStore) SaveBatch(transfers []*models.Transfer) (int, error) {
	if len(transfers) == 0 {
		return 0, nil
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	seen := make(map[string]struct{}, len(transfers))
	added := 0
	for _, t := range transfers {
		if t.TxRef == "" || t.From == "" || t.To == "" {
			return 0, fmt.Errorf("incomplete transfer %q: from, to and tx_ref are required", t.TxRef)
		}

		data, err := json.Marshal(t)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal transfer: %w", err)
		}

		from := t.Chain.Canonical(t.From)
		to := t.Chain.Canonical(t.To)
		key := addressTransferKey(t.Chain, from, t.TxRef, to)

		if _, dup := seen[string(key)]; !dup {
			seen[string(key)] = struct{}{}
			exists, err := s.db.Has(CFTransfers, key)
			if err != nil {
				return 0, err
			}
			if !exists {
				added++
			}
		}

		if err := batch.Put(CFTransfers, key, data); err != nil {
			return 0, err
		}
		if from == to {
			continue
		}
		if err := batch.Put(CFTransfers, addressTransferKey(t.Chain, to, t.TxRef, from), data); err != nil {
			return 0, err
		}
	}

	if err := batch.Commit(); err != nil {
		return 0, err
	}
	return added, nil
}

// ListByAddress retrieves every stored transfer the address took part in
func (s *TransferStore) ListByAddress(chain models.Chain, address string) ([]*models.Transfer, error) {
	prefix := addressTransferPrefix(chain, chain.Canonical(address))
	iter, err := s.db.NewPrefixIterator(CFTransfers, prefix)
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var transfers []*models.Transfer
	for ; iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}

		var t models.Transfer
		if err := json.Unmarshal(iter.Value(), &t); err != nil {
			return nil, fmt.Errorf("failed to unmarshal transfer: %w", err)
		}
		transfers = append(transfers, &t)
	}

	return transfers, nil
}

// DeleteByAddress removes every transfer the address took part in, including
// the copies stored under its counterparties, and returns how many were removed.
func (s *TransferStore) DeleteByAddress(chain models.Chain, address string) (int, error) {
	address = chain.Canonical(address)
	prefix := addressTransferPrefix(chain, address)
	iter, err := s.db.NewPrefixIterator(CFTransfers, prefix)
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	batch := s.db.NewBatch()
	defer batch.Close()

	count := 0
	for ; iter.Valid(); iter.Next() {
		key := iter.Key()
		if !bytes.HasPrefix(key, prefix) {
			break
		}

		var t models.Transfer
		if err := json.Unmarshal(iter.Value(), &t); err != nil {
			return 0, fmt.Errorf("failed to unmarshal transfer: %w", err)
		}

		if err := batch.Delete(CFTransfers, append([]byte(nil), key...)); err != nil {
			return 0, err
		}

		counterparty := chain.Canonical(t.To)
		if counterparty == address {
			counterparty = chain.Canonical(t.From)
		}
		if counterparty != address {
			if err := batch.Delete(CFTransfers, addressTransferKey(chain, counterparty, t.TxRef, address)); err != nil {
				return 0, err
			}
		}
		count++
	}

	if batch.Empty() {
		return 0, nil
	}
	if err := batch.Commit(); err != nil {
		return 0, err
	}
	return count, nil
}
