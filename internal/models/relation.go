package models

import "fmt"

// SpamNote records a collision where both seeds only received from the same address
type SpamNote struct {
	Address string `json:"address"`
	TxRefA  string `json:"tx_ref_a"`
	TxRefB  string `json:"tx_ref_b"`
}

// EvidenceStep is one directed transfer of an evidence chain
type EvidenceStep struct {
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
	TxRef    string `json:"tx_ref"`
	TxURL    string `json:"tx_url,omitempty"`
}

// String renders the step as "Sender → Receiver"
func (s EvidenceStep) String() string {
	return fmt.Sprintf("%s → %s", s.Sender, s.Receiver)
}

// SearchResult is the conclusion of one relationship search
type SearchResult struct {
	SearchID     string         `json:"search_id"`
	Chain        Chain          `json:"chain"`
	AddressA     string         `json:"address_a"`
	AddressB     string         `json:"address_b"`
	HopBudget    int            `json:"hop_budget"`
	Found        bool           `json:"found"`
	MeetingPoint string         `json:"meeting_point,omitempty"`
	HopCount     int            `json:"hop_count"`
	Evidence     []EvidenceStep `json:"evidence"`
	SpamNotes    []SpamNote     `json:"spam_notes"`
}

// Progress is emitted while a search scans addresses
type Progress struct {
	SearchID string `json:"search_id"`
	Step     int    `json:"step"`
	Side     string `json:"side"`
	Address  string `json:"address"`
	Frontier int    `json:"frontier"`
}
