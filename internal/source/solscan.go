package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/thanhnp/chain-relation/internal/config"
	"github.com/thanhnp/chain-relation/internal/models"
)

// SolscanSource reads Solana transfer history from the Solscan account transfer API
type SolscanSource struct {
	client   *http.Client
	limiter  *rate.Limiter
	baseURL  string
	apiKey   string
	pageSize int
	maxPages int
	logger   *zap.Logger
}

// NewSolscanSource creates a SolscanSource from provider configuration
func NewSolscanSource(cfg *config.ProviderConfig, logger *zap.Logger) *SolscanSource {
	return &SolscanSource{
		client:   newHTTPClient(cfg.Timeout),
		limiter:  newLimiter(cfg.RateLimit),
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		pageSize: cfg.PageSize,
		maxPages: cfg.MaxPages,
		logger:   logger.With(zap.String("provider", "solscan")),
	}
}

type solscanResponse struct {
	Success bool              `json:"success"`
	Data    []solscanTransfer `json:"data"`
	Errors  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors,omitempty"`
}

type solscanTransfer struct {
	TransID     string `json:"trans_id"`
	FromAddress string `json:"from_address"`
	ToAddress   string `json:"to_address"`
}

// Transfers implements TransferSource
func (s *SolscanSource) Transfers(ctx context.Context, chain models.Chain, address string) (map[string]models.TransferEdge, error) {
	edges := NewEdgeSet(chain, address)

	for page := 1; page <= s.maxPages; page++ {
		transfers, err := s.fetchPage(ctx, address, page)
		if err != nil {
			providerRequests.WithLabelValues(string(chain), "solscan", "error").Inc()
			if page == 1 {
				return nil, fmt.Errorf("solscan %s: %w", address, err)
			}
			s.logger.Warn("transfer page failed, keeping partial history",
				zap.String("address", address),
				zap.Int("page", page),
				zap.Int("counterparties", edges.Len()),
				zap.Error(err))
			break
		}
		providerRequests.WithLabelValues(string(chain), "solscan", "ok").Inc()

		for _, t := range transfers {
			edges.Add(t.FromAddress, t.ToAddress, t.TransID)
		}
		if len(transfers) < s.pageSize {
			break
		}
	}

	return edges.Edges(), nil
}

func (s *SolscanSource) fetchPage(ctx context.Context, address string, page int) ([]solscanTransfer, error) {
	q := url.Values{}
	q.Set("address", address)
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(s.pageSize))
	q.Set("sort_by", "block_time")
	q.Set("sort_order", "asc")

	req, err := http.NewRequest(http.MethodGet, s.baseURL+"/account/transfer?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("token", s.apiKey)
	}

	var resp solscanResponse
	if err := getJSON(ctx, s.client, s.limiter, req, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		if resp.Errors != nil {
			return nil, fmt.Errorf("api error %d: %s", resp.Errors.Code, resp.Errors.Message)
		}
		return nil, fmt.Errorf("api error: request not successful")
	}
	return resp.Data, nil
}
