// Package chain decides which supported chain an address belongs to.
package chain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gagliardetto/solana-go"

	"github.com/thanhnp/chain-relation/internal/models"
)

// ErrInvalidAddress is returned for addresses that are not valid on their chain
var ErrInvalidAddress = errors.New("invalid address")

// Classify returns the chain an address belongs to.
// Anything that is not a 0x-prefixed EVM address falls back to Solana.
func Classify(address string) models.Chain {
	address = strings.TrimSpace(address)
	if isEVMAddress(address) {
		return models.ChainEthereum
	}
	return models.ChainSolana
}

// Validate checks that address is well formed for chain
func Validate(c models.Chain, address string) error {
	address = strings.TrimSpace(address)
	if address == "" {
		return fmt.Errorf("%w: empty address", ErrInvalidAddress)
	}

	switch c {
	case models.ChainEthereum:
		if !isEVMAddress(address) {
			return fmt.Errorf("%w: %q is not a 0x-prefixed 20-byte hex address", ErrInvalidAddress, address)
		}
	case models.ChainSolana:
		if _, err := solana.PublicKeyFromBase58(address); err != nil {
			return fmt.Errorf("%w: %q is not a base58 public key: %v", ErrInvalidAddress, address, err)
		}
	default:
		return fmt.Errorf("%w: unsupported chain %q", ErrInvalidAddress, c)
	}
	return nil
}

// Resolve classifies and validates an address, returning its chain and canonical form
func Resolve(address string) (models.Chain, string, error) {
	c := Classify(address)
	if err := Validate(c, address); err != nil {
		return c, "", err
	}
	return c, c.Canonical(address), nil
}

func isEVMAddress(address string) bool {
	if !strings.HasPrefix(address, "0x") && !strings.HasPrefix(address, "0X") {
		return false
	}
	return common.IsHexAddress(address)
}
