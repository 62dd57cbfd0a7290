package models

import (
	"time"
)

// Transfer represents a single asset movement as stored in the local index
type Transfer struct {
	TxRef     string    `json:"tx_ref"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Amount    string    `json:"amount,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
	Chain     Chain     `json:"chain"`
}
