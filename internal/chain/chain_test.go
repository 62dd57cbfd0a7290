package chain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thanhnp/chain-relation/internal/models"
)

const (
	evmAddr = "0x52908400098527886E0F7030069857D2E4169EE7"
	solAddr = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		address string
		want    models.Chain
	}{
		{"evm checksummed", evmAddr, models.ChainEthereum},
		{"evm lowercase", "0x52908400098527886e0f7030069857d2e4169ee7", models.ChainEthereum},
		{"evm with whitespace", "  " + evmAddr + " ", models.ChainEthereum},
		{"solana", solAddr, models.ChainSolana},
		{"hex without prefix falls back", "52908400098527886e0f7030069857d2e4169ee7", models.ChainSolana},
		{"short hex falls back", "0x1234", models.ChainSolana},
		{"garbage falls back", "not-an-address", models.ChainSolana},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.address))
		})
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(models.ChainEthereum, evmAddr))
	assert.NoError(t, Validate(models.ChainSolana, solAddr))

	for _, tc := range []struct {
		chain   models.Chain
		address string
	}{
		{models.ChainEthereum, ""},
		{models.ChainEthereum, "0x1234"},
		{models.ChainSolana, "0OIl"},
		{models.ChainSolana, "abc"},
		{models.Chain("btc"), solAddr},
	} {
		err := Validate(tc.chain, tc.address)
		require.Error(t, err, "%s/%s", tc.chain, tc.address)
		assert.True(t, errors.Is(err, ErrInvalidAddress))
	}
}

func TestResolveCanonicalises(t *testing.T) {
	c, canonical, err := Resolve(evmAddr)
	require.NoError(t, err)
	assert.Equal(t, models.ChainEthereum, c)
	assert.Equal(t, "0x52908400098527886e0f7030069857d2e4169ee7", canonical)

	c, canonical, err = Resolve(solAddr)
	require.NoError(t, err)
	assert.Equal(t, models.ChainSolana, c)
	assert.Equal(t, solAddr, canonical)

	_, _, err = Resolve("definitely not valid")
	assert.ErrorIs(t, err, ErrInvalidAddress)
}
