package search

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/thanhnp/chain-relation/internal/cache"
	"github.com/thanhnp/chain-relation/internal/models"
	"github.com/thanhnp/chain-relation/internal/source"
)

// transfer is one directed transfer of a test graph.
type transfer struct {
	from, to, tx string
}

// graphLookup answers neighbour lookups from a list of transfers.
type graphLookup struct {
	transfers []transfer
	jitter    bool

	mu    sync.Mutex
	calls map[string]int
}

func newGraph(transfers ...transfer) *graphLookup {
	return &graphLookup{transfers: transfers, calls: make(map[string]int)}
}

func (g *graphLookup) Transfers(ctx context.Context, chain models.Chain, address string) (map[string]models.TransferEdge, error) {
	set := source.NewEdgeSet(chain, address)
	for _, t := range g.transfers {
		set.Add(t.from, t.to, t.tx)
	}
	return set.Edges(), nil
}

func (g *graphLookup) Neighbors(ctx context.Context, chain models.Chain, address string) []models.TransferEdge {
	g.mu.Lock()
	g.calls[address]++
	g.mu.Unlock()

	if g.jitter {
		time.Sleep(time.Duration(rand.Intn(3)) * time.Millisecond)
	}
	edges, _ := g.Transfers(ctx, chain, address)
	return source.SortedEdges(edges)
}

func (g *graphLookup) totalCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		n += c
	}
	return n
}

func newTestEngine(lookup NeighborLookup, opts Options) *Engine {
	return NewEngine(lookup, opts, zap.NewNop())
}

func plan(a, b string, budget int) *Plan {
	return &Plan{ID: "test", Chain: models.ChainSolana, SeedA: a, SeedB: b, HopBudget: budget}
}

func renderEvidence(steps []models.EvidenceStep) []string {
	out := make([]string, 0, len(steps))
	for _, s := range steps {
		out = append(out, s.String())
	}
	return out
}

func TestSearchFindsDirectedChain(t *testing.T) {
	g := newGraph(
		transfer{"A", "X", "tx1"}, // A sent to X
		transfer{"X", "B", "tx2"}, // B received from X
	)
	res, err := newTestEngine(g, Options{}).Run(context.Background(), plan("A", "B", 2), nil)
	require.NoError(t, err)

	assert.True(t, res.Found)
	assert.Equal(t, "X", res.MeetingPoint)
	assert.Equal(t, []string{"A → X", "X → B"}, renderEvidence(res.Evidence))
	assert.Equal(t, "tx1", res.Evidence[0].TxRef)
	assert.Equal(t, "tx2", res.Evidence[1].TxRef)
	assert.Equal(t, "https://solscan.io/tx/tx1", res.Evidence[0].TxURL)
	assert.Equal(t, 2, res.HopCount)
	assert.Empty(t, res.SpamNotes)
}

func TestSearchCommonSenderIsSpam(t *testing.T) {
	g := newGraph(
		transfer{"Z", "A", "airdropA"},
		transfer{"Z", "B", "airdropB"},
	)
	res, err := newTestEngine(g, Options{}).Run(context.Background(), plan("A", "B", 2), nil)
	require.NoError(t, err)

	assert.False(t, res.Found)
	assert.Empty(t, res.MeetingPoint)
	assert.Empty(t, res.Evidence)
	require.Len(t, res.SpamNotes, 1)
	assert.Equal(t, models.SpamNote{Address: "Z", TxRefA: "airdropA", TxRefB: "airdropB"}, res.SpamNotes[0])
}

func TestSearchContinuesPastSpam(t *testing.T) {
	g := newGraph(
		transfer{"K", "A", "t1"},
		transfer{"K", "B", "t2"},
		transfer{"A", "M", "t3"},
		transfer{"M", "B", "t4"},
	)
	res, err := newTestEngine(g, Options{}).Run(context.Background(), plan("A", "B", 2), nil)
	require.NoError(t, err)

	assert.True(t, res.Found)
	assert.Equal(t, "M", res.MeetingPoint)
	assert.Equal(t, []string{"A → M", "M → B"}, renderEvidence(res.Evidence))
	require.Len(t, res.SpamNotes, 1)
	assert.Equal(t, "K", res.SpamNotes[0].Address)
}

func TestSearchReachesSeedThroughCommonSender(t *testing.T) {
	// with a third step side A expands Z itself and reaches seed B, a
	// collision that is not both-received and therefore a meeting point
	g := newGraph(
		transfer{"Z", "A", "airdropA"},
		transfer{"Z", "B", "airdropB"},
	)
	res, err := newTestEngine(g, Options{}).Run(context.Background(), plan("A", "B", 3), nil)
	require.NoError(t, err)

	assert.True(t, res.Found)
	assert.Equal(t, "B", res.MeetingPoint)
	assert.Equal(t, []string{"Z → A", "Z → B"}, renderEvidence(res.Evidence))
	assert.Len(t, res.SpamNotes, 1)
}

func TestSearchSendsInBothDirections(t *testing.T) {
	tests := []struct {
		name      string
		transfers []transfer
		want      []string
	}{
		{"A sent to B", []transfer{{"A", "B", "t"}}, []string{"A → B"}},
		{"B sent to A", []transfer{{"B", "A", "t"}}, []string{"B → A"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := newTestEngine(newGraph(tt.transfers...), Options{}).Run(context.Background(), plan("A", "B", 2), nil)
			require.NoError(t, err)
			assert.True(t, res.Found)
			assert.Equal(t, "B", res.MeetingPoint)
			assert.Equal(t, tt.want, renderEvidence(res.Evidence))
			assert.Equal(t, 1, res.HopCount)
		})
	}
}

func TestSearchBudgetExhausted(t *testing.T) {
	g := newGraph(
		transfer{"A", "X1", "t1"},
		transfer{"X1", "X2", "t2"},
		transfer{"X2", "B", "t3"},
	)
	e := newTestEngine(g, Options{})

	res, err := e.Run(context.Background(), plan("A", "B", 2), nil)
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.Empty(t, res.SpamNotes)
	assert.Empty(t, res.Evidence)

	res, err = e.Run(context.Background(), plan("A", "B", 3), nil)
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.Equal(t, "X2", res.MeetingPoint)
	assert.Equal(t, []string{"A → X1", "X1 → X2", "X2 → B"}, renderEvidence(res.Evidence))
	assert.Equal(t, 3, res.HopCount)
}

func TestSearchStopsWhenFrontiersEmpty(t *testing.T) {
	g := newGraph(transfer{"C", "D", "t"})
	res, err := newTestEngine(g, Options{}).Run(context.Background(), plan("A", "B", 6), nil)
	require.NoError(t, err)

	assert.False(t, res.Found)
	assert.Equal(t, 6, res.HopBudget)
	assert.Equal(t, 2, g.totalCalls(), "each seed is looked up once")
}

func TestSearchIdenticalSeeds(t *testing.T) {
	g := newGraph(transfer{"A", "X", "t"})
	res, err := newTestEngine(g, Options{}).Run(context.Background(), plan("A", "A", 2), nil)
	require.NoError(t, err)

	assert.True(t, res.Found)
	assert.Equal(t, "A", res.MeetingPoint)
	assert.Zero(t, res.HopCount)
	assert.NotNil(t, res.Evidence)
	assert.Empty(t, res.Evidence)
	assert.Zero(t, g.totalCalls())
}

// rawLookup returns edges exactly as configured, bypassing EdgeSet filtering.
type rawLookup map[string][]models.TransferEdge

func (r rawLookup) Neighbors(_ context.Context, _ models.Chain, address string) []models.TransferEdge {
	return r[address]
}

func TestSearchIgnoresSelfLoops(t *testing.T) {
	lookup := rawLookup{
		"A": {{Counterparty: "A", TxRef: "loop", Role: models.RoleSentTo}},
		"B": {{Counterparty: "B", TxRef: "loop", Role: models.RoleReceivedFrom}},
	}
	e := newTestEngine(lookup, Options{})
	f := newFrontierSearch(e, plan("A", "B", 4), nil)
	require.NoError(t, f.explore(context.Background()))

	assert.False(t, f.found)
	assert.True(t, f.visited[SideA]["A"].IsSeed())
	assert.True(t, f.visited[SideB]["B"].IsSeed())
	assert.Len(t, f.visited[SideA], 1)
	assert.Empty(t, f.queue[SideA])
}

func TestSearchFirstDiscoveryWins(t *testing.T) {
	g := newGraph(
		transfer{"A", "X", "t1"},
		transfer{"A", "Y", "t2"},
		transfer{"Y", "X", "t3"},
	)
	f := newFrontierSearch(newTestEngine(g, Options{}), plan("A", "B", 3), nil)
	require.NoError(t, f.explore(context.Background()))

	assert.Equal(t, models.VisitedRecord{Parent: "A", TxRef: "t1", Role: models.RoleSentTo}, f.visited[SideA]["X"])
	assert.Equal(t, models.VisitedRecord{Parent: "A", TxRef: "t2", Role: models.RoleSentTo}, f.visited[SideA]["Y"])
}

func TestSearchAlternatesSides(t *testing.T) {
	g := newGraph(
		transfer{"A", "X", "t1"},
		transfer{"X", "B", "t2"},
	)
	var events []models.Progress
	_, err := newTestEngine(g, Options{}).Run(context.Background(), plan("A", "B", 2), func(p models.Progress) {
		events = append(events, p)
	})
	require.NoError(t, err)

	require.Len(t, events, 2)
	assert.Equal(t, models.Progress{SearchID: "test", Step: 1, Side: "A", Address: "A", Frontier: 1}, events[0])
	assert.Equal(t, models.Progress{SearchID: "test", Step: 2, Side: "B", Address: "B", Frontier: 1}, events[1])
}

func TestPhase(t *testing.T) {
	assert.Equal(t, SideA, phase(1))
	assert.Equal(t, SideB, phase(2))
	assert.Equal(t, SideA, phase(3))
	assert.Equal(t, SideB, phase(4))
	assert.Equal(t, SideB, SideA.Other())
	assert.Equal(t, SideA, SideB.Other())
}

func TestSearchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestEngine(newGraph(), Options{}).Run(ctx, plan("A", "B", 2), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

// countingSource is a transfer source over a graph that counts calls.
type countingSource struct {
	graph *graphLookup
	calls int32
}

func (s *countingSource) Transfers(ctx context.Context, chain models.Chain, address string) (map[string]models.TransferEdge, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.graph.Transfers(ctx, chain, address)
}

func TestSearchIsIdempotentThroughCache(t *testing.T) {
	src := &countingSource{graph: newGraph(
		transfer{"A", "X1", "t1"},
		transfer{"X1", "X2", "t2"},
		transfer{"X2", "B", "t3"},
		transfer{"Q", "A", "t4"},
	)}
	lookup := cache.NewLookupCache(src, zap.NewNop())
	e := newTestEngine(lookup, Options{})

	first, err := e.Run(context.Background(), plan("A", "B", 4), nil)
	require.NoError(t, err)
	calls := atomic.LoadInt32(&src.calls)
	require.NotZero(t, calls)

	second, err := e.Run(context.Background(), plan("A", "B", 4), nil)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, calls, atomic.LoadInt32(&src.calls), "second search is served from the cache")
}

// randomGraph builds a reproducible graph over n nodes.
func randomGraph(seed int64, n, edges int) []transfer {
	r := rand.New(rand.NewSource(seed))
	out := make([]transfer, 0, edges)
	for i := 0; i < edges; i++ {
		from := fmt.Sprintf("N%02d", r.Intn(n))
		to := fmt.Sprintf("N%02d", r.Intn(n))
		out = append(out, transfer{from, to, fmt.Sprintf("tx%03d", i)})
	}
	return out
}

func TestSearchOutcomeIndependentOfFetchConcurrency(t *testing.T) {
	for seed := int64(1); seed <= 5; seed++ {
		transfers := randomGraph(seed, 40, 70)
		for budget := 1; budget <= 6; budget++ {
			sequential, err := newTestEngine(newGraph(transfers...), Options{FetchConcurrency: 1}).
				Run(context.Background(), plan("N00", "N01", budget), nil)
			require.NoError(t, err)

			jittery := newGraph(transfers...)
			jittery.jitter = true
			parallel, err := newTestEngine(jittery, Options{FetchConcurrency: 8}).
				Run(context.Background(), plan("N00", "N01", budget), nil)
			require.NoError(t, err)

			assert.Equal(t, sequential, parallel, "seed %d budget %d", seed, budget)
			assert.LessOrEqual(t, sequential.HopCount, budget)
			assert.Len(t, sequential.Evidence, sequential.HopCount)
		}
	}
}

func TestEvidenceChainIsConnected(t *testing.T) {
	for seed := int64(10); seed < 30; seed++ {
		res, err := newTestEngine(newGraph(randomGraph(seed, 25, 60)...), Options{}).
			Run(context.Background(), plan("N00", "N01", 6), nil)
		require.NoError(t, err)
		if !res.Found {
			continue
		}

		// every step shares an endpoint with the next one, and the chain
		// touches both seeds and the meeting point
		touched := map[string]bool{}
		for i, s := range res.Evidence {
			touched[s.Sender], touched[s.Receiver] = true, true
			if i > 0 {
				prev := res.Evidence[i-1]
				shared := s.Sender == prev.Sender || s.Sender == prev.Receiver ||
					s.Receiver == prev.Sender || s.Receiver == prev.Receiver
				assert.True(t, shared, "seed %d: step %d is disconnected", seed, i)
			}
		}
		assert.True(t, touched["N00"], "seed %d", seed)
		assert.True(t, touched["N01"], "seed %d", seed)
		assert.True(t, touched[res.MeetingPoint], "seed %d", seed)
	}
}

const (
	evmA = "0x52908400098527886E0F7030069857D2E4169EE7"
	evmB = "0x8617E340B3D01FA5F11F306F4090FD50E238070D"
	solA = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
)

func TestPrepare(t *testing.T) {
	e := newTestEngine(newGraph(), Options{MaxHops: 4})

	for _, budget := range []int{0, -1, -100} {
		p, err := e.Prepare(Request{AddressA: evmA, AddressB: evmB, HopBudget: budget})
		require.NoError(t, err)
		assert.Equal(t, DefaultHopBudget, p.HopBudget)
		assert.NotEmpty(t, p.ID)
	}

	p, err := e.Prepare(Request{ID: "fixed", AddressA: evmA, AddressB: evmB, HopBudget: 3})
	require.NoError(t, err)
	assert.Equal(t, "fixed", p.ID)
	assert.Equal(t, models.ChainEthereum, p.Chain)
	assert.Equal(t, "0x52908400098527886e0f7030069857d2e4169ee7", p.SeedA)
	assert.Equal(t, 3, p.HopBudget)

	_, err = e.Prepare(Request{AddressA: evmA, AddressB: evmB, HopBudget: 5})
	assert.True(t, errors.Is(err, ErrHopBudgetTooLarge))

	_, err = e.Prepare(Request{AddressA: evmA, AddressB: "0x1234"})
	assert.True(t, errors.Is(err, ErrInvalidAddress))

	_, err = e.Prepare(Request{AddressA: evmA, AddressB: solA})
	assert.True(t, errors.Is(err, ErrChainMismatch))

	restricted := newTestEngine(newGraph(), Options{Supports: func(c models.Chain) bool { return c == models.ChainSolana }})
	_, err = restricted.Prepare(Request{AddressA: evmA, AddressB: evmB})
	assert.True(t, errors.Is(err, ErrChainNotSupported))
}

func TestSearchSameAddressDifferentCase(t *testing.T) {
	g := newGraph()
	res, err := newTestEngine(g, Options{}).Search(context.Background(), Request{
		AddressA: evmA,
		AddressB: "0x52908400098527886e0f7030069857d2e4169ee7",
	}, nil)
	require.NoError(t, err)

	assert.True(t, res.Found)
	assert.Zero(t, res.HopCount)
	assert.Empty(t, res.Evidence)
	assert.Equal(t, DefaultHopBudget, res.HopBudget)
	assert.Zero(t, g.totalCalls())
}
