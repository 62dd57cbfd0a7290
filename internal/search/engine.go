// Package search finds transfer paths between two addresses by expanding a
// search tree from each of them until the trees meet.
package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/thanhnp/chain-relation/internal/chain"
	"github.com/thanhnp/chain-relation/internal/models"
)

// DefaultHopBudget is used when neither the request nor the options set one
const DefaultHopBudget = 2

var (
	ErrInvalidAddress    = chain.ErrInvalidAddress
	ErrChainMismatch     = errors.New("addresses belong to different chains")
	ErrChainNotSupported = errors.New("chain not supported")
	ErrHopBudgetTooLarge = errors.New("hop budget too large")
)

var (
	searchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chain_relation_searches_total",
		Help: "Relationship searches by outcome",
	}, []string{"outcome"})
	searchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "chain_relation_search_duration_seconds",
		Help:    "Wall time of relationship searches",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
	})
	spamNotesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chain_relation_spam_notes_total",
		Help: "Collisions classified as common-sender coincidences",
	})
)

// NeighborLookup returns the transfer edges of an address ordered by counterparty.
// Lookups never fail; an unavailable history is an empty one.
type NeighborLookup interface {
	Neighbors(ctx context.Context, chain models.Chain, address string) []models.TransferEdge
}

// ProgressFunc receives an event for every address a search scans
type ProgressFunc func(models.Progress)

// Request asks whether AddressA and AddressB are connected within HopBudget hops
type Request struct {
	ID        string
	AddressA  string
	AddressB  string
	HopBudget int
}

// Options tune an Engine
type Options struct {
	DefaultHops      int
	MaxHops          int                     // 0 means unbounded
	FetchConcurrency int                     // neighbour lookups in flight per frontier
	Supports         func(models.Chain) bool // nil accepts every chain
}

// Plan is a validated request
type Plan struct {
	ID        string
	Chain     models.Chain
	SeedA     string
	SeedB     string
	HopBudget int
}

// Engine runs bidirectional relationship searches. It holds no per-search
// state and is safe for concurrent use.
type Engine struct {
	lookup NeighborLookup
	opts   Options
	logger *zap.Logger
}

// NewEngine creates an Engine expanding through lookup
func NewEngine(lookup NeighborLookup, opts Options, logger *zap.Logger) *Engine {
	if opts.DefaultHops <= 0 {
		opts.DefaultHops = DefaultHopBudget
	}
	if opts.FetchConcurrency <= 0 {
		opts.FetchConcurrency = 1
	}
	return &Engine{lookup: lookup, opts: opts, logger: logger}
}

// Prepare validates a request, classifies its chain and canonicalises both addresses
func (e *Engine) Prepare(req Request) (*Plan, error) {
	chainA, seedA, err := chain.Resolve(req.AddressA)
	if err != nil {
		return nil, fmt.Errorf("address_a: %w", err)
	}
	chainB, seedB, err := chain.Resolve(req.AddressB)
	if err != nil {
		return nil, fmt.Errorf("address_b: %w", err)
	}
	if chainA != chainB {
		return nil, fmt.Errorf("%w: %s and %s", ErrChainMismatch, chainA, chainB)
	}
	if e.opts.Supports != nil && !e.opts.Supports(chainA) {
		return nil, fmt.Errorf("%w: %s", ErrChainNotSupported, chainA)
	}

	budget := req.HopBudget
	if budget <= 0 {
		budget = e.opts.DefaultHops
	}
	if e.opts.MaxHops > 0 && budget > e.opts.MaxHops {
		return nil, fmt.Errorf("%w: %d exceeds the limit of %d", ErrHopBudgetTooLarge, budget, e.opts.MaxHops)
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}

	return &Plan{ID: id, Chain: chainA, SeedA: seedA, SeedB: seedB, HopBudget: budget}, nil
}

// Search validates req and runs it
func (e *Engine) Search(ctx context.Context, req Request, progress ProgressFunc) (*models.SearchResult, error) {
	plan, err := e.Prepare(req)
	if err != nil {
		return nil, err
	}
	return e.Run(ctx, plan, progress)
}

// Run executes a prepared plan
func (e *Engine) Run(ctx context.Context, plan *Plan, progress ProgressFunc) (*models.SearchResult, error) {
	start := time.Now()
	log := e.logger.With(
		zap.String("search_id", plan.ID),
		zap.String("chain", string(plan.Chain)),
	)
	log.Info("search started",
		zap.String("address_a", plan.SeedA),
		zap.String("address_b", plan.SeedB),
		zap.Int("hop_budget", plan.HopBudget))

	result, err := e.run(ctx, plan, progress)
	searchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		searchesTotal.WithLabelValues("error").Inc()
		log.Error("search failed", zap.Error(err))
		return nil, err
	}

	outcome := "not_found"
	if result.Found {
		outcome = "found"
	}
	searchesTotal.WithLabelValues(outcome).Inc()
	spamNotesTotal.Add(float64(len(result.SpamNotes)))
	log.Info("search finished",
		zap.Bool("found", result.Found),
		zap.String("meeting_point", result.MeetingPoint),
		zap.Int("hop_count", result.HopCount),
		zap.Int("spam_notes", len(result.SpamNotes)),
		zap.Duration("elapsed", time.Since(start)))

	return result, nil
}

func (e *Engine) run(ctx context.Context, plan *Plan, progress ProgressFunc) (*models.SearchResult, error) {
	result := &models.SearchResult{
		SearchID:  plan.ID,
		Chain:     plan.Chain,
		AddressA:  plan.SeedA,
		AddressB:  plan.SeedB,
		HopBudget: plan.HopBudget,
		Evidence:  []models.EvidenceStep{},
		SpamNotes: []models.SpamNote{},
	}

	if plan.SeedA == plan.SeedB {
		result.Found = true
		result.MeetingPoint = plan.SeedA
		return result, nil
	}

	f := newFrontierSearch(e, plan, progress)
	if err := f.explore(ctx); err != nil {
		return nil, err
	}

	result.SpamNotes = append(result.SpamNotes, f.spam...)
	if !f.found {
		return result, nil
	}

	evidence, err := Reconstruct(plan.Chain, f.visited[SideA], f.visited[SideB], f.meeting)
	if err != nil {
		return nil, err
	}
	result.Found = true
	result.MeetingPoint = f.meeting
	result.Evidence = evidence
	result.HopCount = len(evidence)
	return result, nil
}

// frontierSearch is the per-request state of one search
type frontierSearch struct {
	engine   *Engine
	plan     *Plan
	progress ProgressFunc

	visited [2]visitedSet
	queue   [2][]string
	spam    []models.SpamNote
	meeting string
	found   bool
}

func newFrontierSearch(e *Engine, plan *Plan, progress ProgressFunc) *frontierSearch {
	f := &frontierSearch{engine: e, plan: plan, progress: progress}
	f.visited[SideA] = visitedSet{plan.SeedA: {}}
	f.visited[SideB] = visitedSet{plan.SeedB: {}}
	f.queue[SideA] = []string{plan.SeedA}
	f.queue[SideB] = []string{plan.SeedB}
	return f
}

// explore alternates expansion between the sides until the trees meet, the
// hop budget runs out, or neither side has anything left to expand.
func (f *frontierSearch) explore(ctx context.Context) error {
	for step := 1; step <= f.plan.HopBudget; step++ {
		if len(f.queue[SideA]) == 0 && len(f.queue[SideB]) == 0 {
			return nil
		}
		if err := f.expand(ctx, step, phase(step)); err != nil {
			return err
		}
		if f.found {
			return nil
		}
	}
	return nil
}

// expand replaces the frontier of side with the addresses it discovers
func (f *frontierSearch) expand(ctx context.Context, step int, side Side) error {
	frontier := f.queue[side]
	if len(frontier) == 0 {
		return nil
	}

	neighbors, err := f.prefetch(ctx, frontier)
	if err != nil {
		return err
	}

	mine, theirs := f.visited[side], f.visited[side.Other()]
	var next []string

	for i, address := range frontier {
		if err := ctx.Err(); err != nil {
			return err
		}
		if f.progress != nil {
			f.progress(models.Progress{
				SearchID: f.plan.ID,
				Step:     step,
				Side:     side.String(),
				Address:  address,
				Frontier: len(frontier),
			})
		}

		edges := neighbors[i]
		if edges == nil {
			edges = f.engine.lookup.Neighbors(ctx, f.plan.Chain, address)
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		for _, edge := range edges {
			n := f.plan.Chain.Canonical(edge.Counterparty)
			if n == "" || n == address {
				continue
			}
			if _, seen := mine[n]; seen {
				continue
			}

			rec := models.VisitedRecord{Parent: address, TxRef: edge.TxRef, Role: edge.Role}
			mine[n] = rec
			next = append(next, n)

			other, ok := theirs[n]
			if !ok {
				continue
			}

			recA, recB := rec, other
			if side == SideB {
				recA, recB = other, rec
			}
			if isSpamCollision(recA, recB) {
				f.spam = append(f.spam, newSpamNote(n, recA, recB))
				f.engine.logger.Debug("common sender collision",
					zap.String("search_id", f.plan.ID),
					zap.String("address", n))
				continue
			}

			f.meeting = n
			f.found = true
			return nil
		}
	}

	f.queue[side] = next
	return nil
}

// prefetch looks up a whole frontier concurrently when the engine allows it.
// Results are indexed by frontier position, so processing order, and with it
// the outcome, does not depend on which lookup finishes first. A nil entry
// means the lookup is left to the caller.
func (f *frontierSearch) prefetch(ctx context.Context, frontier []string) ([][]models.TransferEdge, error) {
	out := make([][]models.TransferEdge, len(frontier))
	limit := f.engine.opts.FetchConcurrency
	if limit <= 1 || len(frontier) == 1 {
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, address := range frontier {
		i, address := i, address
		g.Go(func() error {
			edges := f.engine.lookup.Neighbors(gctx, f.plan.Chain, address)
			if edges == nil {
				edges = []models.TransferEdge{}
			}
			out[i] = edges
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, ctx.Err()
}
