package models

// Role records whether the origin address sent to, or received from, the counterparty
type Role string

const (
	RoleSentTo       Role = "SENT_TO"
	RoleReceivedFrom Role = "RECEIVED_FROM"
)

// TransferEdge is one counterparty of an address, as seen from that address
type TransferEdge struct {
	Counterparty string `json:"counterparty"`
	TxRef        string `json:"tx_ref"`
	Role         Role   `json:"role"`
}

// VisitedRecord is the parent link of an address inside one side's search tree.
// Seeds have no parent, no transaction and no role.
type VisitedRecord struct {
	Parent string `json:"parent,omitempty"`
	TxRef  string `json:"tx_ref,omitempty"`
	Role   Role   `json:"role,omitempty"`
}

// IsSeed reports whether the record belongs to a side's start address
func (r VisitedRecord) IsSeed() bool {
	return r.Parent == "" && r.Role == ""
}
