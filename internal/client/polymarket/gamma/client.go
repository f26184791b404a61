// Package polymarketgamma is a minimal client for the public Gamma markets
// API, covering only what the resolution sync needs.
package polymarketgamma

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Scotty108/Cascadian-sub021/internal/config"
)

const defaultBaseURL = "https://gamma-api.polymarket.com"

const (
	maxAttempts   = 3
	baseRetryWait = 500 * time.Millisecond
)

// Client wraps Gamma REST calls with rate limiting and bounded retries on
// 429 and 5xx responses.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewClient(cfg config.GammaConfig, logger *zap.Logger) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	perSec := cfg.RatePerSec
	if perSec <= 0 {
		perSec = 4
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: base,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(perSec), burst),
		logger:  logger,
	}
}

// Market is the slice of a Gamma market the resolution sync reads.
// OutcomePrices arrives as a JSON-encoded string array, e.g. `["0","1"]`.
type Market struct {
	ID            string `json:"id"`
	Question      string `json:"question"`
	OutcomePrices string `json:"outcomePrices"`
	Closed        bool   `json:"closed"`
	ClosedTime    string `json:"closedTime"`
	EndDate       string `json:"endDate"`
	UpdatedAt     string `json:"updatedAt"`
}

type ListClosedMarketsParams struct {
	Limit      int
	Offset     int
	EndDateMin time.Time
}

// ListClosedMarkets pages closed markets ordered by end date ascending,
// optionally bounded below so incremental syncs skip already-seen history.
func (c *Client) ListClosedMarkets(ctx context.Context, params ListClosedMarketsParams) ([]Market, error) {
	limit := params.Limit
	if limit <= 0 || limit > 500 {
		limit = 250
	}
	q := url.Values{}
	q.Set("closed", "true")
	q.Set("order", "endDate")
	q.Set("ascending", "true")
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(params.Offset))
	if !params.EndDateMin.IsZero() {
		q.Set("end_date_min", params.EndDateMin.UTC().Format(time.RFC3339))
	}

	raw, err := c.getRaw(ctx, "/markets?"+q.Encode())
	if err != nil {
		return nil, err
	}
	var out []Market
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode markets page: %w", err)
	}
	return out, nil
}

// GetMarketRaw returns the raw JSON body for one market. Used by ingestion
// when the typed listing lacks a usable field and the raw body might not.
func (c *Client) GetMarketRaw(ctx context.Context, marketID string) ([]byte, error) {
	return c.getRaw(ctx, "/markets/"+url.PathEscape(strings.TrimSpace(marketID)))
}

func (c *Client) getRaw(ctx context.Context, path string) ([]byte, error) {
	var lastErr error
	wait := baseRetryWait
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
		} else {
			body, readErr := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
			_ = resp.Body.Close()
			switch {
			case readErr != nil:
				lastErr = readErr
			case resp.StatusCode >= 200 && resp.StatusCode < 300:
				return body, nil
			case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
				lastErr = fmt.Errorf("gamma http %d", resp.StatusCode)
				c.logger.Warn("gamma request throttled or failed",
					zap.String("path", path),
					zap.Int("status", resp.StatusCode),
					zap.Int("attempt", attempt+1))
			default:
				return nil, fmt.Errorf("gamma http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
			}
		}
		if attempt == maxAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
	return nil, fmt.Errorf("gamma request failed after %d attempts: %w", maxAttempts, lastErr)
}
