package contest

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

	logx "loungebot/pkg/logx"
)

const (
	defaultBaseURL = "https://clist.by/api/v4"
	defaultTimeout = 30 * time.Second

	// Responses larger than this are cut off; a month window across four
	// platforms stays well under it.
	maxResponseBytes = 8 << 20

	// Query timestamps are sent as zoneless UTC, the format the source
	// API documents for start__gte/start__lte.
	sourceTimeLayout = "2006-01-02T15:04:05"
)

// ClientConfig holds the source API endpoint and credentials.
// Credentials are optional; without them the source applies its
// anonymous quota.
type ClientConfig struct {
	BaseURL  string
	Username string
	APIKey   string
	Timeout  time.Duration
	Limit    int
}

// Client fetches raw contest records from a clist-compatible API.
type Client struct {
	cfg  ClientConfig
	http *http.Client
	log  logx.Logger
}

func NewClient(cfg ClientConfig, log logx.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log,
	}
}

// Fetch returns all contests starting inside [windowStart, windowEnd]
// for the given resource keys, ordered by start time. It never touches
// local state; classification of failures is done via the package
// sentinels.
func (c *Client) Fetch(ctx context.Context, windowStart, windowEnd time.Time, platforms []string) ([]RawContest, error) {
	req, err := c.newRequest(ctx, windowStart, windowEnd, platforms)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &StatusError{Code: resp.StatusCode}
	}

	var page struct {
		Objects []RawContest `json:"objects"`
	}
	body := io.LimitReader(resp.Body, maxResponseBytes)
	if err := json.NewDecoder(body).Decode(&page); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrSourceUnavailable, err)
	}

	c.log.Debug("contest source fetch",
		logx.Int("records", len(page.Objects)),
		logx.Duration("took", time.Since(started)),
	)
	return page.Objects, nil
}

func (c *Client) newRequest(ctx context.Context, windowStart, windowEnd time.Time, platforms []string) (*http.Request, error) {
	q := url.Values{}
	q.Set("start__gte", windowStart.UTC().Format(sourceTimeLayout))
	q.Set("start__lte", windowEnd.UTC().Format(sourceTimeLayout))
	if len(platforms) > 0 {
		q.Set("resource__in", strings.Join(platforms, ","))
	}
	q.Set("order_by", "start")
	q.Set("format", "json")
	if c.cfg.Limit > 0 {
		q.Set("limit", strconv.Itoa(c.cfg.Limit))
	}

	endpoint := c.cfg.BaseURL + "/contest/?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build source request: %w", err)
	}
	if c.cfg.Username != "" && c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "ApiKey "+c.cfg.Username+":"+c.cfg.APIKey)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// Close releases idle connections. Safe to call more than once.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}
