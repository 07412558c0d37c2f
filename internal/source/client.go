package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"scoresync/internal/platform/config"
	"scoresync/internal/platform/metrics"
	dErrors "scoresync/pkg/domain-errors"
)

//go:generate mockgen -destination=mocks/client.go -package=mocks scoresync/internal/source Client

// Client is the read side of the vendor API as the pipeline consumes it.
type Client interface {
	// FetchAll retrieves every record of a collection. Pages that exhaust the
	// retry budget are abandoned and reported in Result.FailedPages; only a
	// collection whose first page is unreachable returns an error.
	FetchAll(ctx context.Context, collection, filter string) (*Result, error)
}

// Result is the merged outcome of paging through one collection.
type Result struct {
	Records     []json.RawMessage
	Pages       int
	FailedPages []int
}

type page struct {
	Records    []json.RawMessage `json:"records"`
	TotalPages int               `json:"total_pages"`
}

// HTTPClient pages through the vendor API with bounded timeouts and retries.
// Pages after the first may fetch concurrently on a small worker pool; the
// merged record order is deterministic (page order).
type HTTPClient struct {
	baseURL      string
	pageSize     int
	pageTimeout  time.Duration
	maxRetries   int
	retryBackoff time.Duration
	fetchWorkers int

	httpc   *http.Client
	tokens  *tokenSource
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option customizes an HTTPClient.
type Option func(*HTTPClient)

func WithLogger(logger *slog.Logger) Option {
	return func(c *HTTPClient) { c.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *HTTPClient) { c.metrics = m }
}

// NewHTTPClient builds a client from source configuration.
func NewHTTPClient(cfg config.Source, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL:      cfg.BaseURL,
		pageSize:     cfg.PageSize,
		pageTimeout:  cfg.PageTimeout,
		maxRetries:   cfg.MaxRetries,
		retryBackoff: cfg.RetryBackoff,
		fetchWorkers: cfg.FetchWorkers,
		httpc:        &http.Client{},
		tokens:       newTokenSource(cfg.APIKey, cfg.APISecret),
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.fetchWorkers < 1 {
		c.fetchWorkers = 1
	}
	return c
}

func (c *HTTPClient) FetchAll(ctx context.Context, collection, filter string) (*Result, error) {
	first, err := c.fetchPage(ctx, collection, 1, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeFetch, fmt.Sprintf("collection %s page 1", collection))
	}

	result := &Result{Records: first.Records, Pages: 1}
	if len(first.Records) < c.pageSize || first.TotalPages <= 1 {
		return result, nil
	}

	type fetched struct {
		page    int
		records []json.RawMessage
	}

	var (
		mu    sync.Mutex
		pages []fetched
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.fetchWorkers)
	for n := 2; n <= first.TotalPages; n++ {
		g.Go(func() error {
			p, err := c.fetchPage(gctx, collection, n, filter)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// A lost page is logged and counted, never fatal for the
				// collection.
				c.logger.Warn("abandoning source page",
					"collection", collection,
					"page", n,
					"error", err,
				)
				result.FailedPages = append(result.FailedPages, n)
				return nil
			}
			pages = append(pages, fetched{page: n, records: p.Records})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		// Only context cancellation surfaces here; failed pages return nil.
		return nil, err
	}

	sort.Slice(pages, func(i, j int) bool { return pages[i].page < pages[j].page })
	for _, p := range pages {
		result.Records = append(result.Records, p.records...)
	}
	sort.Ints(result.FailedPages)
	result.Pages = first.TotalPages
	return result, nil
}

// fetchPage requests a single page, retrying transient failures within the
// configured budget. Every attempt carries its own timeout so no call blocks
// indefinitely.
func (c *HTTPClient) fetchPage(ctx context.Context, collection string, pageNum int, filter string) (*page, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryBackoff * time.Duration(attempt)):
			}
		}

		p, err := c.doRequest(ctx, collection, pageNum, filter)
		if err == nil {
			if c.metrics != nil {
				c.metrics.PagesFetched.WithLabelValues(collection).Inc()
			}
			return p, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
	}
	if c.metrics != nil {
		c.metrics.FetchFailures.WithLabelValues(collection).Inc()
	}
	return nil, dErrors.Wrap(lastErr, dErrors.CodeFetch, fmt.Sprintf("fetch %s page %d", collection, pageNum))
}

func (c *HTTPClient) doRequest(ctx context.Context, collection string, pageNum int, filter string) (*page, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.pageTimeout)
	defer cancel()

	u, err := url.Parse(c.baseURL + "/v1/" + collection)
	if err != nil {
		return nil, fmt.Errorf("build url: %w", err)
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(pageNum))
	q.Set("page_size", strconv.Itoa(c.pageSize))
	if filter != "" {
		q.Set("filter", filter)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if err := c.authorize(req); err != nil {
		return nil, fmt.Errorf("authorize request: %w", err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("source returned %d: %s", resp.StatusCode, body)
	}

	var p page
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode page: %w", err)
	}
	return &p, nil
}

func (c *HTTPClient) authorize(req *http.Request) error {
	if len(c.tokens.apiSecret) == 0 {
		req.Header.Set("X-Api-Key", c.tokens.apiKey)
		return nil
	}
	bearer, err := c.tokens.bearer(time.Now())
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	return nil
}
