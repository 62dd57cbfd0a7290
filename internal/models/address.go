package models

import "strings"

// Chain identifies one of the two supported chains
type Chain string

const (
	ChainEthereum Chain = "eth"
	ChainSolana   Chain = "sol"
)

// Chains lists the supported chains in classification order
var Chains = []Chain{ChainEthereum, ChainSolana}

// ParseChain converts a chain identifier into a Chain
func ParseChain(s string) (Chain, bool) {
	switch Chain(strings.ToLower(s)) {
	case ChainEthereum:
		return ChainEthereum, true
	case ChainSolana:
		return ChainSolana, true
	}
	return "", false
}

// CaseSensitive reports whether address equality on this chain depends on case
func (c Chain) CaseSensitive() bool {
	return c == ChainSolana
}

// Canonical returns the form of address used for equality and map keys
func (c Chain) Canonical(address string) string {
	address = strings.TrimSpace(address)
	if c.CaseSensitive() {
		return address
	}
	return strings.ToLower(address)
}

// TxURL returns a block explorer link for a transaction reference
func (c Chain) TxURL(txRef string) string {
	switch c {
	case ChainEthereum:
		return "https://etherscan.io/tx/" + txRef
	case ChainSolana:
		return "https://solscan.io/tx/" + txRef
	}
	return ""
}
