// -----------------------------------------------------------------------
// Client - HTTP client for the upstream market data API
// -----------------------------------------------------------------------

package marketdata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/indago/internal/common"
	"github.com/ternarybob/indago/internal/workers/research"
	"github.com/ternarybob/indago/internal/workers/screening"
)

// Client talks to the market data API over plain JSON/HTTP. It backs all
// three data concerns: the screening universe, news coverage and official
// announcements.
type Client struct {
	baseURL string
	http    *http.Client
	logger  arbor.ILogger
}

// NewClient creates a market data client from config
func NewClient(config *common.MarketDataConfig, logger arbor.ILogger) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("market data base URL is required")
	}

	timeout := 10 * time.Second
	if config.Timeout != "" {
		parsed, err := time.ParseDuration(config.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid market data timeout '%s': %w", config.Timeout, err)
		}
		timeout = parsed
	}

	return &Client{
		baseURL: config.BaseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}, nil
}

// ListCodes implements screening.MarketDataProvider
func (c *Client) ListCodes(ctx context.Context) ([]string, error) {
	var resp struct {
		Codes []string `json:"codes"`
	}
	if err := c.getJSON(ctx, "/api/stocks/codes", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Codes, nil
}

// FetchStocks implements screening.MarketDataProvider
func (c *Client) FetchStocks(ctx context.Context, codes []string) ([]screening.Stock, error) {
	body, err := json.Marshal(map[string][]string{"codes": codes})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Stocks []screening.Stock `json:"stocks"`
	}
	if err := c.postJSON(ctx, "/api/stocks/batch", body, &resp); err != nil {
		return nil, err
	}
	return resp.Stocks, nil
}

// RecentNews implements research.NewsProvider
func (c *Client) RecentNews(ctx context.Context, code string, limit int) ([]research.NewsItem, error) {
	var resp struct {
		News []research.NewsItem `json:"news"`
	}
	params := url.Values{"code": {code}, "limit": {strconv.Itoa(limit)}}
	if err := c.getJSON(ctx, "/api/news", params, &resp); err != nil {
		return nil, err
	}
	return resp.News, nil
}

// RecentAnnouncements implements research.AnnouncementProvider
func (c *Client) RecentAnnouncements(ctx context.Context, code string, limit int) ([]research.Announcement, error) {
	var resp struct {
		Announcements []research.Announcement `json:"announcements"`
	}
	params := url.Values{"code": {code}, "limit": {strconv.Itoa(limit)}}
	if err := c.getJSON(ctx, "/api/announcements", params, &resp); err != nil {
		return nil, err
	}
	return resp.Announcements, nil
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out interface{}) error {
	target := c.baseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, body []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("market data request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("market data API returned %d for %s", resp.StatusCode, req.URL.Path)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode market data response: %w", err)
	}
	return nil
}
