package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/thanhnp/chain-relation/internal/api/handlers"
	"github.com/thanhnp/chain-relation/internal/api/middleware"
	"github.com/thanhnp/chain-relation/internal/models"
)

// Router wraps the Gin router with handlers
type Router struct {
	engine          *gin.Engine
	logger          *zap.Logger
	chains          []models.Chain
	relationHandler *handlers.RelationHandler
	transferHandler *handlers.TransferHandler
}

// NewRouter creates a new Router with all handlers. chains lists the chains
// the server has a transfer source for.
func NewRouter(
	searcher handlers.Searcher,
	neighbors handlers.NeighborCache,
	chains []models.Chain,
	logger *zap.Logger,
) *Router {
	gin.SetMode(gin.ReleaseMode)
	handlers.RegisterValidators()

	supported := make(map[models.Chain]bool, len(chains))
	for _, c := range chains {
		supported[c] = true
	}

	r := &Router{
		engine:          gin.New(),
		logger:          logger,
		chains:          chains,
		relationHandler: handlers.NewRelationHandler(searcher, logger),
		transferHandler: handlers.NewTransferHandler(neighbors, func(c models.Chain) bool { return supported[c] }),
	}

	r.setupMiddleware()
	r.setupRoutes()

	return r
}

// setupMiddleware configures middleware
func (r *Router) setupMiddleware() {
	r.engine.Use(middleware.RequestID())
	r.engine.Use(middleware.Recovery(r.logger))
	r.engine.Use(middleware.Logger(r.logger))
	r.engine.Use(middleware.CORS())
}

// setupRoutes configures API routes
func (r *Router) setupRoutes() {
	// Health check
	r.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "chains": r.chains})
	})
	r.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.engine.Group("/api/v1")
	{
		relations := v1.Group("/relations")
		{
			relations.POST("", r.relationHandler.Search)
			relations.GET("/stream", r.relationHandler.Stream)
			relations.GET("/ws", r.relationHandler.WebSocket)
		}

		v1.GET("/cache/stats", r.transferHandler.GetCacheStats)

		// Address routes
		addresses := v1.Group("/:chain/addresses")
		addresses.Use(middleware.ValidateChain())
		{
			addresses.GET("/:address/transfers", r.transferHandler.GetTransfers)
		}
	}
}

// Engine returns the underlying Gin engine
func (r *Router) Engine() *gin.Engine {
	return r.engine
}
