// Package provider implements the remote journey-planning port over an
// HTTP JSON API.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"tripstore/internal/domain"
)

// Client queries an upstream journey planner. It implements
// domain.TripProvider.
type Client struct {
	baseURL string
	httpc   *http.Client
	logger  *slog.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: timeout},
		logger:  logger.With("component", "provider"),
	}
}

// queryContext is the provider's opaque pagination cursor. It satisfies
// domain.QueryContext.
type queryContext struct {
	Cursor  string `json:"cursor"`
	Earlier bool   `json:"canEarlier"`
	Later   bool   `json:"canLater"`
}

func (q *queryContext) CanQueryEarlier() bool { return q.Earlier }
func (q *queryContext) CanQueryLater() bool   { return q.Later }

type tripsResponse struct {
	Status  domain.QueryStatus `json:"status"`
	Trips   []*domain.Trip     `json:"trips"`
	Context *queryContext      `json:"context"`
}

type moreRequest struct {
	Cursor string `json:"cursor"`
	Later  bool   `json:"later"`
}

// QueryTrips runs a fresh trip search.
func (c *Client) QueryTrips(ctx context.Context, q domain.TripQuery) (*domain.QueryTripsResult, error) {
	return c.post(ctx, "/trips", q)
}

// QueryMoreTrips continues a previous search in the given direction. The
// query context must have come from this client.
func (c *Client) QueryMoreTrips(ctx context.Context, qc domain.QueryContext, later bool) (*domain.QueryTripsResult, error) {
	cursor, ok := qc.(*queryContext)
	if !ok {
		return nil, fmt.Errorf("query context %T did not come from this provider", qc)
	}
	return c.post(ctx, "/trips/more", moreRequest{Cursor: cursor.Cursor, Later: later})
}

func (c *Client) post(ctx context.Context, path string, payload any) (*domain.QueryTripsResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused.
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("provider returned %s for %s", resp.Status, path)
	}

	var out tripsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	c.logger.Debug("provider call done",
		"path", path, "status", out.Status,
		"trips", len(out.Trips), "duration", time.Since(start))

	res := &domain.QueryTripsResult{Status: out.Status, Trips: out.Trips}
	if out.Context != nil {
		res.Context = out.Context
	}
	return res, nil
}
