package search

import (
	"errors"
	"fmt"

	"github.com/thanhnp/chain-relation/internal/models"
)

// ErrBrokenParentChain is returned when a visited-set does not lead back to its seed
var ErrBrokenParentChain = errors.New("broken parent chain")

// visitedSet maps canonical addresses to their parent link in one search tree
type visitedSet map[string]models.VisitedRecord

// Reconstruct turns the parent links of both trees into an evidence chain
// running from seed A through meeting to seed B. Every step is oriented
// sender to receiver according to the role stored on its record.
func Reconstruct(chain models.Chain, visitedA, visitedB map[string]models.VisitedRecord, meeting string) ([]models.EvidenceStep, error) {
	toA, err := walkToSeed(chain, visitedA, meeting)
	if err != nil {
		return nil, fmt.Errorf("side A: %w", err)
	}
	toB, err := walkToSeed(chain, visitedB, meeting)
	if err != nil {
		return nil, fmt.Errorf("side B: %w", err)
	}

	evidence := make([]models.EvidenceStep, 0, len(toA)+len(toB))
	for i := len(toA) - 1; i >= 0; i-- {
		evidence = append(evidence, toA[i])
	}
	return append(evidence, toB...), nil
}

// walkToSeed follows parent links from start, returning steps nearest start first
func walkToSeed(chain models.Chain, visited map[string]models.VisitedRecord, start string) ([]models.EvidenceStep, error) {
	var steps []models.EvidenceStep
	node := start
	for {
		rec, ok := visited[node]
		if !ok {
			return nil, fmt.Errorf("%w: no record for %s", ErrBrokenParentChain, node)
		}
		if rec.IsSeed() {
			return steps, nil
		}
		if len(steps) >= len(visited) {
			return nil, fmt.Errorf("%w: cycle through %s", ErrBrokenParentChain, node)
		}

		step, err := orient(chain, node, rec)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
		node = rec.Parent
	}
}

func orient(chain models.Chain, node string, rec models.VisitedRecord) (models.EvidenceStep, error) {
	step := models.EvidenceStep{TxRef: rec.TxRef, TxURL: chain.TxURL(rec.TxRef)}
	switch rec.Role {
	case models.RoleSentTo:
		step.Sender, step.Receiver = rec.Parent, node
	case models.RoleReceivedFrom:
		step.Sender, step.Receiver = node, rec.Parent
	default:
		return step, fmt.Errorf("%w: %s has unknown role %q", ErrBrokenParentChain, node, rec.Role)
	}
	return step, nil
}
