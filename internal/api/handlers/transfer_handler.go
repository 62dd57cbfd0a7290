package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/thanhnp/chain-relation/internal/api/middleware"
	"github.com/thanhnp/chain-relation/internal/cache"
	"github.com/thanhnp/chain-relation/internal/chain"
	"github.com/thanhnp/chain-relation/internal/models"
)

// NeighborCache is the view of the lookup cache the transfer endpoints need
type NeighborCache interface {
	Neighbors(ctx context.Context, chain models.Chain, address string) []models.TransferEdge
	Stats() cache.Stats
}

// TransferHandler exposes the cached neighbour sets the search expands through
type TransferHandler struct {
	cache    NeighborCache
	supports func(models.Chain) bool
}

// NewTransferHandler creates a new TransferHandler. A nil supports accepts every chain.
func NewTransferHandler(c NeighborCache, supports func(models.Chain) bool) *TransferHandler {
	return &TransferHandler{cache: c, supports: supports}
}

// TransfersResponse lists the counterparties of an address
type TransfersResponse struct {
	Chain   models.Chain          `json:"chain"`
	Address string                `json:"address"`
	Count   int                   `json:"count"`
	Edges   []models.TransferEdge `json:"edges"`
}

// GetTransfers returns the neighbour set of an address
// GET /api/v1/:chain/addresses/:address/transfers
func (h *TransferHandler) GetTransfers(c *gin.Context) {
	ch := c.MustGet(middleware.ChainKey).(models.Chain)
	address := c.Param("address")

	if h.supports != nil && !h.supports(ch) {
		c.JSON(http.StatusBadRequest, ErrorBody{Error: "chain not enabled: " + string(ch)})
		return
	}
	if err := chain.Validate(ch, address); err != nil {
		c.JSON(http.StatusBadRequest, ErrorBody{Error: err.Error()})
		return
	}

	address = ch.Canonical(address)
	edges := h.cache.Neighbors(c.Request.Context(), ch, address)
	if edges == nil {
		edges = []models.TransferEdge{}
	}

	c.JSON(http.StatusOK, TransfersResponse{
		Chain:   ch,
		Address: address,
		Count:   len(edges),
		Edges:   edges,
	})
}

// GetCacheStats returns the lookup cache counters
// GET /api/v1/cache/stats
func (h *TransferHandler) GetCacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.cache.Stats())
}
