package httpx

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/partsflow/storefront/backend/internal/config"
	"github.com/partsflow/storefront/backend/internal/metrics"
)

// PreAttempt lets callers run logic (e.g., rate limiting) before each try; return context error to abort.
type PreAttempt func(ctx context.Context, attempt int) error

// DoWithRetry wraps an HTTP request with lightweight retries, honoring
// Retry-After on 429/5xx and backing off with jitter otherwise. The request
// is rebuilt for every attempt because a consumed body cannot be resent.
func DoWithRetry(client *http.Client, build func() (*http.Request, error), pre PreAttempt) (*http.Response, error) {
	cfg := config.Load()
	maxAttempts := cfg.HTTPMaxRetries
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	baseDelay := cfg.HTTPRetryBase

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		req, err := build()
		if err != nil {
			return nil, err
		}
		if pre != nil {
			if err := pre(req.Context(), attempt); err != nil {
				return nil, err
			}
		}

		resp, err := client.Do(req)
		if err != nil {
			metrics.KVRequests.WithLabelValues("error").Inc()
			if attempt == maxAttempts || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if cfg.LogHTTPRetries {
					log.Printf("httpx: attempt=%d method=%s url=%s err=%v (no more retries)", attempt, req.Method, req.URL.String(), err)
				}
				return nil, err
			}
			metrics.KVRetries.Inc()
		} else {
			if resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode < 500 {
				metrics.KVRequests.WithLabelValues("success").Inc()
				return resp, nil
			}
			// 429 or 5xx - will retry
			metrics.KVRequests.WithLabelValues("retry").Inc()
			if attempt == maxAttempts {
				if cfg.LogHTTPRetries {
					log.Printf("httpx: attempt=%d method=%s url=%s status=%d (giving up)", attempt, req.Method, req.URL.String(), resp.StatusCode)
				}
				return resp, nil
			}
			if wait, ok := retryAfter(resp); ok {
				resp.Body.Close()
				metrics.KVRetryAfterWaits.Observe(wait.Seconds())
				if cfg.LogHTTPRetries {
					log.Printf("httpx: attempt=%d status=%d waiting=%s method=%s url=%s", attempt, resp.StatusCode, wait, req.Method, req.URL.String())
				}
				time.Sleep(wait)
				continue
			}
			resp.Body.Close()
			metrics.KVRetries.Inc()
		}

		// backoff with jitter
		jitter := time.Duration(rand.Intn(200)) * time.Millisecond
		delay := baseDelay*time.Duration(attempt) + jitter
		if cfg.LogHTTPRetries {
			log.Printf("httpx: attempt=%d backing off=%s", attempt, delay)
		}
		time.Sleep(delay)
	}
	return nil, errors.New("exhausted retries")
}

// retryAfter parses a Retry-After header as either seconds or an HTTP date.
func retryAfter(resp *http.Response) (time.Duration, bool) {
	ra := resp.Header.Get("Retry-After")
	if ra == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(ra); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(ra); err == nil {
		if delta := time.Until(t); delta > 0 {
			return delta, true
		}
	}
	return 0, false
}
