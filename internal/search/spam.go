package search

import "github.com/thanhnp/chain-relation/internal/models"

// isSpamCollision reports whether a meeting address only ever sent to both
// seed trees. Two addresses receiving from the same distributor (airdrops,
// faucets) is not evidence of a link between them.
func isSpamCollision(a, b models.VisitedRecord) bool {
	return a.Role == models.RoleReceivedFrom && b.Role == models.RoleReceivedFrom
}

func newSpamNote(address string, a, b models.VisitedRecord) models.SpamNote {
	return models.SpamNote{
		Address: address,
		TxRefA:  a.TxRef,
		TxRefB:  b.TxRef,
	}
}
