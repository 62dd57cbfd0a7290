// Package cache memoizes transfer source lookups for the lifetime of the process.
package cache

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/thanhnp/chain-relation/internal/models"
	"github.com/thanhnp/chain-relation/internal/source"
)

var (
	lookupHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chain_relation_cache_hits_total",
		Help: "Neighbour lookups served from the cache",
	})
	lookupMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chain_relation_cache_misses_total",
		Help: "Neighbour lookups that went to the transfer source",
	})
	lookupFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chain_relation_cache_source_failures_total",
		Help: "Transfer source failures stored as empty neighbour sets",
	})
)

// Stats is a snapshot of cache counters
type Stats struct {
	Entries  int   `json:"entries"`
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
	Failures int64 `json:"failures"`
}

// LookupCache memoizes the neighbour set of every address it is asked about.
//
// Entries are never evicted or refreshed. A failed source lookup is stored as
// an empty neighbour set, so the failure is seen once and never retried.
// Keys are the address strings as given; callers pass canonical forms.
//
// LookupCache is safe for concurrent use. Concurrent misses on one address
// share a single source call, which is not tied to any one caller's context.
type LookupCache struct {
	source source.TransferSource
	logger *zap.Logger

	mu      sync.RWMutex
	entries map[string][]models.TransferEdge
	flight  singleflight.Group

	hits     int64
	misses   int64
	failures int64
}

// NewLookupCache creates an empty cache in front of src
func NewLookupCache(src source.TransferSource, logger *zap.Logger) *LookupCache {
	return &LookupCache{
		source:  src,
		logger:  logger,
		entries: make(map[string][]models.TransferEdge),
	}
}

// Neighbors returns the edges of address ordered by counterparty.
// The returned slice is shared and must not be modified.
//
// The source fetch is detached from the caller's context: a caller that goes
// away gets an empty, uncached answer while the fetch it started keeps
// running for everyone else waiting on the same address.
func (c *LookupCache) Neighbors(ctx context.Context, chain models.Chain, address string) []models.TransferEdge {
	if edges, ok := c.get(address); ok {
		atomic.AddInt64(&c.hits, 1)
		lookupHits.Inc()
		return edges
	}
	if ctx.Err() != nil {
		return []models.TransferEdge{}
	}

	fetch := context.WithoutCancel(ctx)
	ch := c.flight.DoChan(address, func() (interface{}, error) {
		// another flight may have populated the entry while we were waiting
		if edges, ok := c.get(address); ok {
			return edges, nil
		}

		atomic.AddInt64(&c.misses, 1)
		lookupMisses.Inc()

		found, err := c.source.Transfers(fetch, chain, address)
		if err != nil {
			atomic.AddInt64(&c.failures, 1)
			lookupFailures.Inc()
			c.logger.Warn("transfer lookup failed, treating address as having no transfers",
				zap.String("chain", string(chain)),
				zap.String("address", address),
				zap.Error(err))
			found = nil
		}

		edges := source.SortedEdges(found)
		c.mu.Lock()
		c.entries[address] = edges
		c.mu.Unlock()
		return edges, nil
	})

	select {
	case res := <-ch:
		return res.Val.([]models.TransferEdge)
	case <-ctx.Done():
		return []models.TransferEdge{}
	}
}

// Len returns the number of cached addresses
func (c *LookupCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns a snapshot of the cache counters
func (c *LookupCache) Stats() Stats {
	return Stats{
		Entries:  c.Len(),
		Hits:     atomic.LoadInt64(&c.hits),
		Misses:   atomic.LoadInt64(&c.misses),
		Failures: atomic.LoadInt64(&c.failures),
	}
}

func (c *LookupCache) get(address string) ([]models.TransferEdge, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	edges, ok := c.entries[address]
	return edges, ok
}
