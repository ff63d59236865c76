package kvstore

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// Memory is an in-process Store with real TTL semantics. It backs tests and
// local development when no remote backend is configured.
type Memory struct {
	mu    sync.Mutex
	data  map[string]memoryEntry
	now   func() time.Time
	fail  bool
	pings int
}

type memoryEntry struct {
	value     string
	expiresAt time.Time // zero means no expiration
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		data: make(map[string]memoryEntry),
		now:  time.Now,
	}
}

// SetClock overrides the time source. Intended for TTL tests.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// FailBackend toggles simulated backend unavailability: every command,
// including Ping, returns ErrUnavailable while enabled.
func (m *Memory) FailBackend(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = fail
}

// Pings returns how many Ping calls have been served.
func (m *Memory) Pings() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pings
}

func (m *Memory) live(key string) (memoryEntry, bool) {
	e, ok := m.data[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !e.expiresAt.IsZero() && m.now().After(e.expiresAt) {
		delete(m.data, key)
		return memoryEntry{}, false
	}
	return e, true
}

func (m *Memory) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return "", false, ErrUnavailable
	}
	e, ok := m.live(key)
	if !ok {
		return "", false, nil
	}
	return e.value, true, nil
}

func (m *Memory) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return ErrUnavailable
	}
	m.data[key] = memoryEntry{value: value}
	return nil
}

func (m *Memory) SetEx(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return ErrUnavailable
	}
	m.data[key] = memoryEntry{value: value, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *Memory) Del(ctx context.Context, key string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return 0, ErrUnavailable
	}
	if _, ok := m.live(key); !ok {
		return 0, nil
	}
	delete(m.data, key)
	return 1, nil
}

func (m *Memory) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return false, ErrUnavailable
	}
	_, ok := m.live(key)
	return ok, nil
}

func (m *Memory) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return 0, ErrUnavailable
	}
	var n int64
	if e, ok := m.live(key); ok {
		parsed, err := strconv.ParseInt(e.value, 10, 64)
		if err != nil {
			return 0, err
		}
		n = parsed
	}
	n += delta
	e := m.data[key]
	e.value = strconv.FormatInt(n, 10)
	m.data[key] = e
	return n, nil
}

func (m *Memory) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return false, ErrUnavailable
	}
	e, ok := m.live(key)
	if !ok {
		return false, nil
	}
	e.expiresAt = m.now().Add(ttl)
	m.data[key] = e
	return true, nil
}

func (m *Memory) MGet(ctx context.Context, keys ...string) ([]*string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return nil, ErrUnavailable
	}
	out := make([]*string, len(keys))
	for i, k := range keys {
		if e, ok := m.live(k); ok {
			v := e.value
			out[i] = &v
		}
	}
	return out, nil
}

func (m *Memory) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pings++
	if m.fail {
		return ErrUnavailable
	}
	return nil
}

// Keys returns all live keys. Test helper; the real backend has no scan.
func (m *Memory) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.data))
	for k := range m.data {
		if _, ok := m.live(k); ok {
			out = append(out, k)
		}
	}
	return out
}
