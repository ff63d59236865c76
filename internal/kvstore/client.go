package kvstore

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

	"golang.org/x/time/rate"

	"github.com/partsflow/storefront/backend/internal/config"
	"github.com/partsflow/storefront/backend/internal/httpx"
	"github.com/partsflow/storefront/backend/internal/metrics"
)

// Client talks to the REST key-value backend. Commands map to URL paths
// (".../get/{key}", ".../setex/{key}/{seconds}" with the value as the POST
// body) and responses arrive as {"result": ...} or {"error": "..."} JSON.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *rate.Limiter
}

// commandResponse is the envelope every backend endpoint returns.
type commandResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

// NewClient creates a client for the configured backend endpoint.
func NewClient(cfg *config.Config) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.KVRestURL, "/"),
		token:   cfg.KVRestToken,
		http:    &http.Client{Timeout: cfg.HTTPTimeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.KVRequestRPS), cfg.KVBurstSize),
	}
}

// do issues one command. Path segments are escaped; a non-nil body is sent
// as a POST payload (used for SET/SETEX values, which may not be URL-safe).
func (c *Client) do(ctx context.Context, body io.Reader, command string, args ...string) (json.RawMessage, error) {
	start := time.Now()
	defer func() {
		metrics.KVRequestDuration.WithLabelValues(command).Observe(time.Since(start).Seconds())
	}()

	segments := make([]string, 0, len(args)+1)
	segments = append(segments, command)
	for _, a := range args {
		segments = append(segments, url.PathEscape(a))
	}
	endpoint := c.baseURL + "/" + strings.Join(segments, "/")

	var payload []byte
	method := http.MethodGet
	if body != nil {
		b, err := io.ReadAll(body)
		if err != nil {
			return nil, err
		}
		payload = b
		method = http.MethodPost
	}

	build := func() (*http.Request, error) {
		var rdr io.Reader
		if payload != nil {
			rdr = strings.NewReader(string(payload))
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, rdr)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		if payload != nil {
			req.Header.Set("Content-Type", "text/plain")
		}
		return req, nil
	}
	pre := func(ctx context.Context, attempt int) error {
		return c.throttle(ctx)
	}

	resp, err := httpx.DoWithRetry(c.http, build, pre)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, command, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, command, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s: status %d", ErrUnavailable, command, resp.StatusCode)
	}

	var cr commandResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return nil, fmt.Errorf("%w: %s: malformed response", ErrUnavailable, command)
	}
	if cr.Error != "" {
		return nil, fmt.Errorf("kvstore: %s: %s", command, cr.Error)
	}
	return cr.Result, nil
}

// throttle blocks until the rate limiter admits one request. The waits
// counter tracks only requests that actually had to sit out a delay, not
// every pass through the limiter.
func (c *Client) throttle(ctx context.Context) error {
	res := c.limiter.Reserve()
	if !res.OK() {
		return fmt.Errorf("kvstore: request exceeds limiter burst")
	}
	delay := res.Delay()
	if delay == 0 {
		return nil
	}
	metrics.KVRateLimitWaits.Inc()
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		res.Cancel()
		return ctx.Err()
	}
}

func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	result, err := c.do(ctx, nil, "get", key)
	if err != nil {
		return "", false, err
	}
	if isNull(result) {
		return "", false, nil
	}
	var s string
	if err := json.Unmarshal(result, &s); err != nil {
		// Numeric values come back unquoted
		return string(result), true, nil
	}
	return s, true, nil
}

func (c *Client) Set(ctx context.Context, key, value string) error {
	_, err := c.do(ctx, strings.NewReader(value), "set", key)
	return err
}

func (c *Client) SetEx(ctx context.Context, key, value string, ttl time.Duration) error {
	secs := int(ttl.Seconds())
	if secs < 1 {
		secs = 1
	}
	_, err := c.do(ctx, strings.NewReader(value), "setex", key, strconv.Itoa(secs))
	return err
}

func (c *Client) Del(ctx context.Context, key string) (int, error) {
	result, err := c.do(ctx, nil, "del", key)
	if err != nil {
		return 0, err
	}
	return parseInt(result)
}

func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	result, err := c.do(ctx, nil, "exists", key)
	if err != nil {
		return false, err
	}
	n, err := parseInt(result)
	return n > 0, err
}

func (c *Client) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	result, err := c.do(ctx, nil, "incrby", key, strconv.FormatInt(delta, 10))
	if err != nil {
		return 0, err
	}
	var n int64
	if err := json.Unmarshal(result, &n); err != nil {
		return 0, fmt.Errorf("kvstore: incrby: unexpected result %s", result)
	}
	return n, nil
}

func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	secs := int(ttl.Seconds())
	if secs < 1 {
		secs = 1
	}
	result, err := c.do(ctx, nil, "expire", key, strconv.Itoa(secs))
	if err != nil {
		return false, err
	}
	n, err := parseInt(result)
	return n > 0, err
}

func (c *Client) MGet(ctx context.Context, keys ...string) ([]*string, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	result, err := c.do(ctx, nil, "mget", keys...)
	if err != nil {
		return nil, err
	}
	var values []*string
	if err := json.Unmarshal(result, &values); err != nil {
		return nil, fmt.Errorf("kvstore: mget: unexpected result %s", result)
	}
	if len(values) != len(keys) {
		return nil, fmt.Errorf("kvstore: mget: got %d values for %d keys", len(values), len(keys))
	}
	return values, nil
}

func (c *Client) Ping(ctx context.Context) error {
	result, err := c.do(ctx, nil, "ping")
	if err != nil {
		return err
	}
	var s string
	if err := json.Unmarshal(result, &s); err != nil || !strings.EqualFold(s, "pong") {
		return fmt.Errorf("%w: unexpected ping reply %s", ErrUnavailable, result)
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

func parseInt(raw json.RawMessage) (int, error) {
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("kvstore: unexpected integer result %s", raw)
	}
	return n, nil
}
