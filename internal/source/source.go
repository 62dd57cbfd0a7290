// Package source provides the per-chain transfer history providers the
// relationship search expands through.
package source

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/thanhnp/chain-relation/internal/models"
)

// ErrChainNotRegistered is returned when no source serves a chain
var ErrChainNotRegistered = errors.New("chain not registered")

var providerRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "chain_relation_provider_requests_total",
	Help: "Transfer history page requests by chain, provider and outcome",
}, []string{"chain", "provider", "outcome"})

// TransferSource returns the counterparties an address ever sent to or received from.
//
// Implementations exclude the queried address from its own result, keep one
// edge per counterparty, and return whatever they gathered when a later page
// fails. An error means nothing at all could be gathered.
type TransferSource interface {
	Transfers(ctx context.Context, chain models.Chain, address string) (map[string]models.TransferEdge, error)
}

// EdgeSet accumulates transfers of one origin address into deduplicated edges
type EdgeSet struct {
	chain  models.Chain
	origin string
	edges  map[string]models.TransferEdge
}

// NewEdgeSet creates an EdgeSet for origin on chain
func NewEdgeSet(chain models.Chain, origin string) *EdgeSet {
	return &EdgeSet{
		chain:  chain,
		origin: chain.Canonical(origin),
		edges:  make(map[string]models.TransferEdge),
	}
}

// Add records one transfer. Transfers that do not involve the origin, and
// transfers from the origin to itself, are ignored. A later transfer with the
// same counterparty replaces the earlier one.
func (s *EdgeSet) Add(from, to, txRef string) {
	from = s.chain.Canonical(from)
	to = s.chain.Canonical(to)

	var edge models.TransferEdge
	switch {
	case from == s.origin:
		edge = models.TransferEdge{Counterparty: to, TxRef: txRef, Role: models.RoleSentTo}
	case to == s.origin:
		edge = models.TransferEdge{Counterparty: from, TxRef: txRef, Role: models.RoleReceivedFrom}
	default:
		return
	}

	if edge.Counterparty == "" || edge.Counterparty == s.origin {
		return
	}
	s.edges[edge.Counterparty] = edge
}

// Len returns the number of distinct counterparties
func (s *EdgeSet) Len() int {
	return len(s.edges)
}

// Edges returns the accumulated edges keyed by counterparty
func (s *EdgeSet) Edges() map[string]models.TransferEdge {
	return s.edges
}

// SortedEdges returns edges ordered by counterparty
func SortedEdges(edges map[string]models.TransferEdge) []models.TransferEdge {
	out := make([]models.TransferEdge, 0, len(edges))
	for _, e := range edges {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Counterparty < out[j].Counterparty
	})
	return out
}

// MultiChainSource dispatches lookups to the source registered for each chain
type MultiChainSource struct {
	sources map[models.Chain]TransferSource
}

// NewMultiChainSource creates an empty MultiChainSource
func NewMultiChainSource() *MultiChainSource {
	return &MultiChainSource{
		sources: make(map[models.Chain]TransferSource),
	}
}

// RegisterChain registers the source for a chain
func (m *MultiChainSource) RegisterChain(chain models.Chain, src TransferSource) {
	m.sources[chain] = src
}

// Supports reports whether a source is registered for chain
func (m *MultiChainSource) Supports(chain models.Chain) bool {
	_, ok := m.sources[chain]
	return ok
}

// Transfers implements TransferSource
func (m *MultiChainSource) Transfers(ctx context.Context, chain models.Chain, address string) (map[string]models.TransferEdge, error) {
	src, ok := m.sources[chain]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrChainNotRegistered, chain)
	}
	return src.Transfers(ctx, chain, address)
}
