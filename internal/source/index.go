package source

import (
	"context"

	"github.com/thanhnp/chain-relation/internal/models"
	"github.com/thanhnp/chain-relation/internal/storage"
)

// TransferLister lists indexed transfers of an address
type TransferLister interface {
	ListByAddress(chain models.Chain, address string) ([]*models.Transfer, error)
}

// IndexSource serves transfer history from the local pebble index
type IndexSource struct {
	store TransferLister
}

// NewIndexSource creates an IndexSource over a transfer store
func NewIndexSource(store TransferLister) *IndexSource {
	return &IndexSource{store: store}
}

var _ TransferLister = (*storage.MultiChainTransferStore)(nil)

// Transfers implements TransferSource
func (s *IndexSource) Transfers(ctx context.Context, chain models.Chain, address string) (map[string]models.TransferEdge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	transfers, err := s.store.ListByAddress(chain, address)
	if err != nil {
		return nil, err
	}

	edges := NewEdgeSet(chain, address)
	for _, t := range transfers {
		edges.Add(t.From, t.To, t.TxRef)
	}
	return edges.Edges(), nil
}
