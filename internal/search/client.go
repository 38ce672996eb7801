// Package search implements the paginated notice search API client.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/procurio/ted-harvester/internal/metrics"
	"github.com/procurio/ted-harvester/internal/ted"
)

// Error reports a non-success page response from the search endpoint. It is
// systemic: the whole batch aborts, no partial result is returned.
type Error struct {
	Query      string
	StatusCode int
}

func (e *Error) Error() string {
	return fmt.Sprintf("search request failed with status %d for query %q", e.StatusCode, e.Query)
}

// Config controls the search client.
type Config struct {
	Endpoint  string
	PageSize  int
	PageDelay time.Duration
	Timeout   time.Duration
	UserAgent string
}

// Client pages through the search API and accumulates raw notice records.
// One underlying HTTP client is reused across the batch for keep-alive.
type Client struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New builds a Client.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

type searchRequest struct {
	Query            string   `json:"query"`
	Fields           []string `json:"fields"`
	Scope            string   `json:"scope"`
	CheckQuerySyntax bool     `json:"checkQuerySyntax"`
	PaginationMode   string   `json:"paginationMode"`
	Page             int      `json:"page"`
	Limit            int      `json:"limit"`
}

// Search collects every page for the query. It stops when a page comes back
// empty or the reported total is reached. Transient failures are not retried
// here: a failing page is fatal for the batch and surfaces as *Error.
func (c *Client) Search(ctx context.Context, query ted.SearchQuery) ([]ted.RawNotice, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	expr := query.Expression()
	var all []ted.RawNotice
	for page := 1; ; page++ {
		notices, total, err := c.fetchPage(ctx, expr, page)
		if err != nil {
			return nil, err
		}
		metrics.ObserveSearchPage(len(notices))
		if len(notices) == 0 {
			break
		}
		all = append(all, notices...)
		c.logger.Debug("search page fetched",
			zap.Int("page", page),
			zap.Int("page_hits", len(notices)),
			zap.Int("total_reported", total))
		if total > 0 && page*c.cfg.PageSize >= total {
			break
		}
		if c.cfg.PageDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.cfg.PageDelay):
			}
		}
	}
	return all, nil
}

func (c *Client) fetchPage(ctx context.Context, expr string, page int) ([]ted.RawNotice, int, error) {
	body := searchRequest{
		Query:            expr,
		Fields:           []string{"publication-number", "links"},
		Scope:            "ACTIVE",
		CheckQuerySyntax: false,
		PaginationMode:   "PAGE_NUMBER",
		Page:             page,
		Limit:            c.cfg.PageSize,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, 0, fmt.Errorf("marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("search page %d: %w", page, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for keep-alive
		return nil, 0, &Error{Query: expr, StatusCode: resp.StatusCode}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read search page %d: %w", page, err)
	}

	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, 0, fmt.Errorf("parse search page %d: %w", page, err)
	}

	return resultList(data), totalCount(data), nil
}

// resultList reads the page's result list from one of several possible keys,
// first present key wins. The API has shipped different shapes over time.
func resultList(data map[string]any) []ted.RawNotice {
	for _, key := range ted.ResultListKeys {
		list, ok := data[key].([]any)
		if !ok {
			continue
		}
		notices := make([]ted.RawNotice, 0, len(list))
		for _, item := range list {
			if m, ok := item.(map[string]any); ok {
				notices = append(notices, ted.RawNotice(m))
			}
		}
		return notices
	}
	return nil
}

func totalCount(data map[string]any) int {
	for _, key := range ted.TotalCountKeys {
		if v, ok := data[key].(float64); ok {
			return int(v)
		}
	}
	return 0
}
