package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/thanhnp/chain-relation/internal/api/middleware"
	"github.com/thanhnp/chain-relation/internal/models"
	"github.com/thanhnp/chain-relation/internal/search"
)

// Stream event names
const (
	EventProgress = "progress"
	EventResult   = "result"
	EventError    = "error"
)

// Searcher validates and runs relationship searches
type Searcher interface {
	Prepare(req search.Request) (*search.Plan, error)
	Run(ctx context.Context, plan *search.Plan, progress search.ProgressFunc) (*models.SearchResult, error)
}

// RelationRequest is the body of a relationship search
type RelationRequest struct {
	AddressA string `json:"address_a" form:"address_a" binding:"required,chainaddr"`
	AddressB string `json:"address_b" form:"address_b" binding:"required,chainaddr"`
	Hops     int    `json:"hops" form:"hops"` // zero or negative uses the default budget
}

// StreamEvent is one websocket message
type StreamEvent struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// ErrorBody is the payload of error responses and error events
type ErrorBody struct {
	Error  string `json:"error"`
	Status int    `json:"status,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// RelationHandler handles relationship search requests
type RelationHandler struct {
	searcher Searcher
	logger   *zap.Logger
}

// NewRelationHandler creates a new RelationHandler
func NewRelationHandler(searcher Searcher, logger *zap.Logger) *RelationHandler {
	return &RelationHandler{searcher: searcher, logger: logger}
}

func (h *RelationHandler) prepare(c *gin.Context, req *RelationRequest) (*search.Plan, error) {
	return h.searcher.Prepare(search.Request{
		ID:        c.GetString(middleware.RequestIDKey),
		AddressA:  req.AddressA,
		AddressB:  req.AddressB,
		HopBudget: req.Hops,
	})
}

// Search runs a search and returns its result
// POST /api/v1/relations
func (h *RelationHandler) Search(c *gin.Context) {
	var req RelationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorBody{Error: err.Error()})
		return
	}

	plan, err := h.prepare(c, &req)
	if err != nil {
		c.JSON(statusFor(err), ErrorBody{Error: err.Error()})
		return
	}

	result, err := h.searcher.Run(c.Request.Context(), plan, nil)
	if err != nil {
		c.JSON(statusFor(err), ErrorBody{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// Stream runs a search and reports progress as server-sent events, ending
// with exactly one result or error event
// GET /api/v1/relations/stream?address_a=..&address_b=..&hops=..
func (h *RelationHandler) Stream(c *gin.Context) {
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	fail := func(status int, err error) {
		c.SSEvent(EventError, ErrorBody{Error: err.Error(), Status: status})
		c.Writer.Flush()
	}

	var req RelationRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		fail(http.StatusBadRequest, err)
		return
	}

	plan, err := h.prepare(c, &req)
	if err != nil {
		fail(statusFor(err), err)
		return
	}

	result, err := h.searcher.Run(c.Request.Context(), plan, func(p models.Progress) {
		c.SSEvent(EventProgress, p)
		c.Writer.Flush()
	})
	if err != nil {
		fail(statusFor(err), err)
		return
	}

	c.SSEvent(EventResult, result)
	c.Writer.Flush()
}

// WebSocket reads one search request from the socket, streams progress
// events, and closes after the result or error event
// GET /api/v1/relations/ws
func (h *RelationHandler) WebSocket(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer ws.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	send := func(event string, data interface{}) {
		if err := ws.WriteJSON(StreamEvent{Event: event, Data: data}); err != nil {
			h.logger.Debug("websocket write failed", zap.Error(err))
			cancel()
		}
	}
	fail := func(status int, err error) {
		send(EventError, ErrorBody{Error: err.Error(), Status: status})
	}

	var req RelationRequest
	if err := ws.ReadJSON(&req); err != nil {
		fail(http.StatusBadRequest, err)
		return
	}
	if err := binding.Validator.ValidateStruct(&req); err != nil {
		fail(http.StatusBadRequest, err)
		return
	}

	plan, err := h.prepare(c, &req)
	if err != nil {
		fail(statusFor(err), err)
		return
	}

	result, err := h.searcher.Run(ctx, plan, func(p models.Progress) {
		send(EventProgress, p)
	})
	if err != nil {
		fail(statusFor(err), err)
		return
	}
	send(EventResult, result)

	_ = ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "search finished"))
}
