package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"golang.org/x/time/rate"

	"github.com/partsflow/storefront/backend/internal/config"
	"github.com/partsflow/storefront/backend/internal/metrics"
)

// fakeBackend implements just enough of the REST command protocol for the
// client tests: path-segment commands with a {"result": ...} envelope.
func fakeBackend(t *testing.T, data map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error":"unauthorized"}`)
			return
		}
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		reply := func(v any) {
			json.NewEncoder(w).Encode(map[string]any{"result": v})
		}
		switch parts[0] {
		case "ping":
			reply("PONG")
		case "get":
			if v, ok := data[parts[1]]; ok {
				reply(v)
			} else {
				reply(nil)
			}
		case "set":
			body, _ := io.ReadAll(r.Body)
			data[parts[1]] = string(body)
			reply("OK")
		case "setex":
			body, _ := io.ReadAll(r.Body)
			data[parts[1]] = string(body)
			reply("OK")
		case "del":
			if _, ok := data[parts[1]]; ok {
				delete(data, parts[1])
				reply(1)
			} else {
				reply(0)
			}
		case "exists":
			if _, ok := data[parts[1]]; ok {
				reply(1)
			} else {
				reply(0)
			}
		case "incrby":
			n, _ := strconv.ParseInt(data[parts[1]], 10, 64)
			delta, _ := strconv.ParseInt(parts[2], 10, 64)
			n += delta
			data[parts[1]] = strconv.FormatInt(n, 10)
			reply(n)
		case "expire":
			if _, ok := data[parts[1]]; ok {
				reply(1)
			} else {
				reply(0)
			}
		case "mget":
			out := make([]any, 0, len(parts)-1)
			for _, k := range parts[1:] {
				if v, ok := data[k]; ok {
					out = append(out, v)
				} else {
					out = append(out, nil)
				}
			}
			reply(out)
		default:
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":"unknown command"}`)
		}
	}))
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	os.Setenv("HTTP_RETRY_BASE", "1ms")
	config.Reset()
	cfg := *config.Load()
	cfg.KVRestURL = baseURL
	cfg.KVRestToken = "test-token"
	cfg.KVRequestRPS = 1000
	cfg.KVBurstSize = 1000
	cfg.HTTPTimeout = 2 * time.Second
	return NewClient(&cfg)
}

func TestClient_SetGetRoundTrip(t *testing.T) {
	data := map[string]string{}
	srv := fakeBackend(t, data)
	defer srv.Close()
	c := newTestClient(t, srv.URL)
	ctx := context.Background()

	if err := c.Set(ctx, "greeting", `{"msg":"hello"}`); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	v, ok, err := c.Get(ctx, "greeting")
	if err != nil || !ok {
		t.Fatalf("Get failed: ok=%v err=%v", ok, err)
	}
	if v != `{"msg":"hello"}` {
		t.Errorf("unexpected value %q", v)
	}
}

func TestClient_GetMiss(t *testing.T) {
	srv := fakeBackend(t, map[string]string{})
	defer srv.Close()
	c := newTestClient(t, srv.URL)

	_, ok, err := c.Get(context.Background(), "absent")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected miss for absent key")
	}
}

func TestClient_DelAndExists(t *testing.T) {
	data := map[string]string{"k": "v"}
	srv := fakeBackend(t, data)
	defer srv.Close()
	c := newTestClient(t, srv.URL)
	ctx := context.Background()

	ok, err := c.Exists(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("expected key to exist: ok=%v err=%v", ok, err)
	}
	n, err := c.Del(ctx, "k")
	if err != nil || n != 1 {
		t.Fatalf("expected 1 deletion: n=%d err=%v", n, err)
	}
	ok, err = c.Exists(ctx, "k")
	if err != nil || ok {
		t.Fatalf("expected key to be gone: ok=%v err=%v", ok, err)
	}
}

func TestClient_IncrBy(t *testing.T) {
	srv := fakeBackend(t, map[string]string{})
	defer srv.Close()
	c := newTestClient(t, srv.URL)
	ctx := context.Background()

	n, err := c.IncrBy(ctx, "counter", 3)
	if err != nil || n != 3 {
		t.Fatalf("expected 3: n=%d err=%v", n, err)
	}
	n, err = c.IncrBy(ctx, "counter", 4)
	if err != nil || n != 7 {
		t.Fatalf("expected 7: n=%d err=%v", n, err)
	}
}

func TestClient_MGetPreservesOrder(t *testing.T) {
	srv := fakeBackend(t, map[string]string{"a": "1", "c": "3"})
	defer srv.Close()
	c := newTestClient(t, srv.URL)

	values, err := c.MGet(context.Background(), "a", "b", "c")
	if err != nil {
		t.Fatalf("MGet failed: %v", err)
	}
	if values[0] == nil || *values[0] != "1" {
		t.Errorf("expected a=1, got %v", values[0])
	}
	if values[1] != nil {
		t.Errorf("expected nil for missing key, got %v", *values[1])
	}
	if values[2] == nil || *values[2] != "3" {
		t.Errorf("expected c=3, got %v", values[2])
	}
}

func TestClient_Ping(t *testing.T) {
	srv := fakeBackend(t, map[string]string{})
	defer srv.Close()
	c := newTestClient(t, srv.URL)

	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("expected ping to succeed: %v", err)
	}
}

func TestClient_RateLimitWaitsCountOnlyDelays(t *testing.T) {
	srv := fakeBackend(t, map[string]string{})
	defer srv.Close()
	c := newTestClient(t, srv.URL)
	ctx := context.Background()

	// With plenty of limiter headroom no request sits out a delay, so the
	// waits counter must not move.
	before := testutil.ToFloat64(metrics.KVRateLimitWaits)
	for i := 0; i < 5; i++ {
		if err := c.Ping(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if got := testutil.ToFloat64(metrics.KVRateLimitWaits) - before; got != 0 {
		t.Errorf("uncontended requests registered %v waits, want 0", got)
	}

	// A burst of one forces the second request to wait for the next token;
	// only that request counts.
	c.limiter = rate.NewLimiter(rate.Limit(100), 1)
	before = testutil.ToFloat64(metrics.KVRateLimitWaits)
	for i := 0; i < 2; i++ {
		if err := c.Ping(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if got := testutil.ToFloat64(metrics.KVRateLimitWaits) - before; got != 1 {
		t.Errorf("contended pair registered %v waits, want 1", got)
	}
}

func TestClient_UnreachableBackend(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1")

	err := c.Ping(context.Background())
	if err == nil {
		t.Fatal("expected error against unreachable backend")
	}
}
