package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/partsflow/storefront/backend/internal/circuitbreaker"
	"github.com/partsflow/storefront/backend/internal/kvstore"
)

type widget struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

func newTestService(t *testing.T) (*Service, *kvstore.Memory) {
	t.Helper()
	mem := kvstore.NewMemory()
	cb := circuitbreaker.New(circuitbreaker.Config{
		Name:             "cache-test-" + t.Name(),
		FailureThreshold: 1,
		Timeout:          time.Hour,
	})
	return New(mem, cb), mem
}

func TestSetThenGet(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	want := widget{ID: "W-1", Name: "flux capacitor", Price: 19.99}
	if ok := s.Set(ctx, "widget:W-1", want, Options{TTL: 60 * time.Second}); !ok {
		t.Fatal("Set failed")
	}

	got, ok := Get[widget](ctx, s, "widget:W-1", Options{})
	if !ok {
		t.Fatal("expected hit")
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestGet_MissReturnsZero(t *testing.T) {
	s, _ := newTestService(t)

	got, ok := Get[widget](context.Background(), s, "widget:absent", Options{})
	if ok {
		t.Error("expected miss")
	}
	if got != (widget{}) {
		t.Errorf("expected zero value, got %+v", got)
	}
}

func TestGet_RawValuePassthrough(t *testing.T) {
	s, mem := newTestService(t)
	ctx := context.Background()

	// A raw, non-JSON value in the backend must come back verbatim for a
	// string target instead of producing an error.
	if err := mem.Set(ctx, "legacy:marker", "plain-not-json"); err != nil {
		t.Fatal(err)
	}

	got, ok := Get[string](ctx, s, "legacy:marker", Options{})
	if !ok {
		t.Fatal("expected hit for raw value")
	}
	if got != "plain-not-json" {
		t.Errorf("got %q", got)
	}
}

func TestGetOrSet_FetcherInvokedOnce(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	calls := 0
	fetch := func(ctx context.Context) (widget, error) {
		calls++
		return widget{ID: "W-2", Name: "brake pad"}, nil
	}
	opts := Options{TTL: 60 * time.Second}

	first, err := GetOrSet(ctx, s, "widget:W-2", fetch, opts)
	if err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	second, err := GetOrSet(ctx, s, "widget:W-2", fetch, opts)
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}

	if calls != 1 {
		t.Errorf("fetcher invoked %d times, want 1", calls)
	}
	if first != second {
		t.Errorf("values diverged: %+v vs %+v", first, second)
	}
}

func TestGetOrSet_FetcherErrorPropagates(t *testing.T) {
	s, _ := newTestService(t)
	wantErr := errors.New("docstore down")

	_, err := GetOrSet(context.Background(), s, "widget:W-err", func(ctx context.Context) (widget, error) {
		return widget{}, wantErr
	}, Options{})
	if !errors.Is(err, wantErr) {
		t.Errorf("expected fetcher error, got %v", err)
	}
}

func TestGetOrSet_EmptySliceIsCached(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	calls := 0
	fetch := func(ctx context.Context) ([]widget, error) {
		calls++
		return []widget{}, nil
	}
	opts := Options{TTL: 60 * time.Second}

	got, err := GetOrSet(ctx, s, "widget:empty-list", fetch, opts)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty slice, got %v", got)
	}

	_, _ = GetOrSet(ctx, s, "widget:empty-list", fetch, opts)
	if calls != 1 {
		t.Errorf("empty result was not cached; fetcher ran %d times", calls)
	}
}

func TestDelete_ThenGetMisses(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	s.Set(ctx, "widget:W-3", widget{ID: "W-3"}, Options{TTL: time.Minute})
	if !s.Delete(ctx, "widget:W-3", "") {
		t.Fatal("Delete reported no deletion")
	}
	if _, ok := Get[widget](ctx, s, "widget:W-3", Options{}); ok {
		t.Error("expected miss after delete")
	}
}

func TestTTLExpiry_RefetchesViaFetcher(t *testing.T) {
	mem := kvstore.NewMemory()
	now := time.Now()
	mem.SetClock(func() time.Time { return now })
	cb := circuitbreaker.New(circuitbreaker.Config{Name: "cache-ttl-test", FailureThreshold: 1, Timeout: time.Hour})
	s := New(mem, cb)
	ctx := context.Background()

	calls := 0
	fetch := func(ctx context.Context) (widget, error) {
		calls++
		return widget{ID: "W-4"}, nil
	}
	opts := Options{TTL: 300 * time.Second}

	_, _ = GetOrSet(ctx, s, "widget:W-4", fetch, opts)
	now = now.Add(301 * time.Second)

	if _, ok := Get[widget](ctx, s, "widget:W-4", Options{}); ok {
		t.Fatal("expected miss after TTL expiry")
	}
	_, _ = GetOrSet(ctx, s, "widget:W-4", fetch, opts)
	if calls != 2 {
		t.Errorf("expected refetch after expiry, fetcher ran %d times", calls)
	}
}

func TestDegradedBackend_NeverErrors(t *testing.T) {
	s, mem := newTestService(t)
	ctx := context.Background()
	mem.FailBackend(true)

	if _, ok := Get[widget](ctx, s, "widget:W-5", Options{}); ok {
		t.Error("expected miss with backend down")
	}
	if ok := s.Set(ctx, "widget:W-5", widget{}, Options{}); ok {
		t.Error("expected Set to fail with backend down")
	}

	// getOrSet still produces the value by calling the fetcher directly
	got, err := GetOrSet(ctx, s, "widget:W-5", func(ctx context.Context) (widget, error) {
		return widget{ID: "W-5", Name: "air filter"}, nil
	}, Options{TTL: time.Minute})
	if err != nil {
		t.Fatalf("GetOrSet errored with backend down: %v", err)
	}
	if got.Name != "air filter" {
		t.Errorf("unexpected value %+v", got)
	}

	if s.Enabled() {
		t.Error("expected health gate to be open after ping failure")
	}
}

func TestHealthGate_RecoversAfterTimeout(t *testing.T) {
	mem := kvstore.NewMemory()
	cb := circuitbreaker.New(circuitbreaker.Config{
		Name:             "cache-recovery-test",
		FailureThreshold: 1,
		SuccessThreshold: 1,
		Timeout:          10 * time.Millisecond,
	})
	s := New(mem, cb)
	ctx := context.Background()

	mem.FailBackend(true)
	Get[widget](ctx, s, "widget:x", Options{})
	if s.Enabled() {
		t.Fatal("expected gate open after failure")
	}

	mem.FailBackend(false)
	time.Sleep(20 * time.Millisecond)

	// Half-open probe succeeds and caching resumes
	if ok := s.Set(ctx, "widget:x", widget{ID: "x"}, Options{TTL: time.Minute}); !ok {
		t.Fatal("expected Set to succeed after recovery window")
	}
	if _, ok := Get[widget](ctx, s, "widget:x", Options{}); !ok {
		t.Error("expected hit after recovery")
	}
}

func TestIncrementAndExists(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	if n := s.Increment(ctx, "analytics:views:2024-01-01", 1, ""); n != 1 {
		t.Errorf("expected 1, got %d", n)
	}
	if n := s.Increment(ctx, "analytics:views:2024-01-01", 2, ""); n != 3 {
		t.Errorf("expected 3, got %d", n)
	}
	if !s.Exists(ctx, "analytics:views:2024-01-01", "") {
		t.Error("expected counter key to exist")
	}
}

func TestMGetAndMSet(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	pairs := []Pair{
		{Key: "widget:a", Value: widget{ID: "a"}},
		{Key: "widget:b", Value: widget{ID: "b"}},
	}
	if n := s.MSet(ctx, pairs, Options{TTL: time.Minute}); n != 2 {
		t.Fatalf("MSet stored %d pairs, want 2", n)
	}

	got := MGet[widget](ctx, s, []string{"widget:a", "widget:missing", "widget:b"}, "")
	if got[0] == nil || got[0].ID != "a" {
		t.Errorf("slot 0: %v", got[0])
	}
	if got[1] != nil {
		t.Errorf("slot 1 should be nil, got %v", got[1])
	}
	if got[2] == nil || got[2].ID != "b" {
		t.Errorf("slot 2: %v", got[2])
	}
}

func TestPrefixOption(t *testing.T) {
	s, mem := newTestService(t)
	ctx := context.Background()

	s.Set(ctx, "k", "v", Options{Prefix: "tenant42", TTL: time.Minute})
	if _, ok, _ := mem.Get(ctx, "tenant42:k"); !ok {
		t.Error("expected prefixed key in backend")
	}
	if v, ok := Get[string](ctx, s, "k", Options{Prefix: "tenant42"}); !ok || v != "v" {
		t.Errorf("prefixed read failed: ok=%v v=%q", ok, v)
	}
}

func TestDeletePattern_IsNoOp(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	s.Set(ctx, "search:products:oil", []string{"a"}, Options{TTL: time.Minute})
	if n := s.DeletePattern(ctx, "search:*"); n != 0 {
		t.Errorf("DeletePattern must be a no-op, deleted %d", n)
	}
	if _, ok := Get[[]string](ctx, s, "search:products:oil", Options{}); !ok {
		t.Error("entry should survive DeletePattern")
	}
}
