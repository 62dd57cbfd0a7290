package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/thanhnp/chain-relation/internal/config"
	"github.com/thanhnp/chain-relation/internal/models"
)

// Etherscan account actions queried for every address
var etherscanActions = []string{"txlist", "tokentx"}

const etherscanNoTransactions = "No transactions found"

// EtherscanSource reads EVM transfer history from an Etherscan-compatible API
type EtherscanSource struct {
	client   *http.Client
	limiter  *rate.Limiter
	baseURL  string
	apiKey   string
	pageSize int
	maxPages int
	logger   *zap.Logger
}

// NewEtherscanSource creates an EtherscanSource from provider configuration
func NewEtherscanSource(cfg *config.ProviderConfig, logger *zap.Logger) *EtherscanSource {
	return &EtherscanSource{
		client:   newHTTPClient(cfg.Timeout),
		limiter:  newLimiter(cfg.RateLimit),
		baseURL:  cfg.BaseURL,
		apiKey:   cfg.APIKey,
		pageSize: cfg.PageSize,
		maxPages: cfg.MaxPages,
		logger:   logger.With(zap.String("provider", "etherscan")),
	}
}

type etherscanResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type etherscanTx struct {
	Hash string `json:"hash"`
	From string `json:"from"`
	To   string `json:"to"`
}

// Transfers implements TransferSource
func (s *EtherscanSource) Transfers(ctx context.Context, chain models.Chain, address string) (map[string]models.TransferEdge, error) {
	edges := NewEdgeSet(chain, address)
	fetched := false
	var lastErr error

	for _, action := range etherscanActions {
		for page := 1; page <= s.maxPages; page++ {
			txs, err := s.fetchPage(ctx, action, address, page)
			if err != nil {
				providerRequests.WithLabelValues(string(chain), "etherscan", "error").Inc()
				lastErr = err
				s.logger.Warn("transfer page failed",
					zap.String("address", address),
					zap.String("action", action),
					zap.Int("page", page),
					zap.Error(err))
				break
			}
			providerRequests.WithLabelValues(string(chain), "etherscan", "ok").Inc()
			fetched = true

			for _, tx := range txs {
				edges.Add(tx.From, tx.To, tx.Hash)
			}
			if len(txs) < s.pageSize {
				break
			}
		}
	}

	if !fetched && lastErr != nil {
		return nil, fmt.Errorf("etherscan %s: %w", address, lastErr)
	}
	return edges.Edges(), nil
}

func (s *EtherscanSource) fetchPage(ctx context.Context, action, address string, page int) ([]etherscanTx, error) {
	q := url.Values{}
	q.Set("module", "account")
	q.Set("action", action)
	q.Set("address", address)
	q.Set("page", strconv.Itoa(page))
	q.Set("offset", strconv.Itoa(s.pageSize))
	q.Set("sort", "asc")
	if s.apiKey != "" {
		q.Set("apikey", s.apiKey)
	}

	req, err := http.NewRequest(http.MethodGet, s.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var resp etherscanResponse
	if err := getJSON(ctx, s.client, s.limiter, req, &resp); err != nil {
		return nil, err
	}

	if resp.Status != "1" {
		if resp.Message == etherscanNoTransactions {
			return nil, nil
		}
		// errors carry a human readable string in result
		var detail string
		_ = json.Unmarshal(resp.Result, &detail)
		return nil, fmt.Errorf("api error: %s %s", resp.Message, detail)
	}

	var txs []etherscanTx
	if err := json.Unmarshal(resp.Result, &txs); err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}
	return txs, nil
}
