// Package batchlog buffers structured event records in memory and flushes
// them to the document store in batches, on a timer or when the buffer
// fills. Persistence is best-effort: a failed flush drops the batch rather
// than requeueing it, trading lost telemetry for bounded memory and no
// retry storms.
package batchlog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/partsflow/storefront/backend/internal/config"
	"github.com/partsflow/storefront/backend/internal/documentstore"
	"github.com/partsflow/storefront/backend/internal/errorreporting"
	"github.com/partsflow/storefront/backend/internal/logger"
	"github.com/partsflow/storefront/backend/internal/metrics"
)

// Level classifies an entry.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarn    Level = "warn"
	LevelError   Level = "error"
	LevelSuccess Level = "success"
	LevelDebug   Level = "debug"
)

// Entry is one buffered event record. Entries are append-only: once logged
// they are never mutated, only persisted and discarded.
type Entry struct {
	ID         string         `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	Level      Level          `json:"level"`
	Category   string         `json:"category"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	UserID     string         `json:"userId,omitempty"`
	UserEmail  string         `json:"userEmail,omitempty"`
	DurationMS int64          `json:"duration,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Logger is the batching logger. The buffer is owned exclusively by the
// Logger; entries are copied in, never referenced, so callers may reuse
// their maps afterwards.
type Logger struct {
	store     documentstore.Store
	threshold int
	interval  time.Duration
	dev       bool
	slog      *slog.Logger

	mu  sync.Mutex
	buf []Entry

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a batch logger writing to the admin_logs collection.
func New(store documentstore.Store, cfg *config.Config) *Logger {
	threshold := cfg.LogBatchSize
	if threshold <= 0 {
		threshold = 50
	}
	interval := cfg.LogFlushInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Logger{
		store:     store,
		threshold: threshold,
		interval:  interval,
		dev:       cfg.IsDevelopment(),
		slog:      logger.WithComponent("batchlog"),
		buf:       make([]Entry, 0, threshold),
		stop:      make(chan struct{}),
	}
}

// Log appends a copy of e to the buffer, assigning id and timestamp when
// absent. Reaching the batch threshold triggers an immediate background
// flush instead of waiting for the timer.
func (l *Logger) Log(e Entry) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	e.Details = cloneMap(e.Details)
	e.Metadata = cloneMap(e.Metadata)

	l.mu.Lock()
	l.buf = append(l.buf, e)
	full := len(l.buf) >= l.threshold
	metrics.BatchLogBufferSize.Set(float64(len(l.buf)))
	l.mu.Unlock()

	if full {
		go l.Flush(context.Background())
	}
}

// Run drives the periodic flush loop until ctx is canceled or Stop is
// called. A final flush runs on the way out.
func (l *Logger) Run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.Flush(ctx)
		case <-l.stop:
			l.ForceFlush(context.Background())
			return
		case <-ctx.Done():
			l.ForceFlush(context.Background())
			return
		}
	}
}

// Stop terminates Run.
func (l *Logger) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// Flush swaps the buffer for a fresh one and writes the swapped-out batch
// in a single batched operation. Entries logged while the write is in
// flight land in the new buffer — never lost, never duplicated. On write
// failure the batch is dropped deliberately.
func (l *Logger) Flush(ctx context.Context) {
	l.mu.Lock()
	if len(l.buf) == 0 {
		l.mu.Unlock()
		return
	}
	batch := l.buf
	l.buf = make([]Entry, 0, l.threshold)
	metrics.BatchLogBufferSize.Set(0)
	l.mu.Unlock()

	docs := make([]documentstore.BatchDoc, len(batch))
	for i, e := range batch {
		docs[i] = documentstore.BatchDoc{ID: e.ID, Doc: sanitizeEntry(e)}
	}

	if err := l.store.BatchWrite(ctx, documentstore.CollectionAdminLogs, docs); err != nil {
		// Deliberate fail-open: losing telemetry beats a retry storm.
		metrics.BatchLogDropped.Add(float64(len(batch)))
		l.slog.Error("flush failed, dropping batch", "entries", len(batch), "error", err)
		errorreporting.CaptureError(err)
		return
	}
	metrics.BatchLogFlushed.Add(float64(len(batch)))
}

// ForceFlush flushes synchronously; used at shutdown.
func (l *Logger) ForceFlush(ctx context.Context) {
	l.Flush(ctx)
}

// Len returns the current buffer size.
func (l *Logger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buf)
}

func (l *Logger) logAt(level Level, category, message string, details map[string]any) {
	l.Log(Entry{Level: level, Category: category, Message: message, Details: details})
}

// Info records an info-level entry and echoes it to the process log.
func (l *Logger) Info(category, message string, details map[string]any) {
	l.slog.Info(message, "category", category)
	l.logAt(LevelInfo, category, message, details)
}

// Warn records a warn-level entry and echoes it to the process log.
func (l *Logger) Warn(category, message string, details map[string]any) {
	l.slog.Warn(message, "category", category)
	l.logAt(LevelWarn, category, message, details)
}

// Error records an error-level entry and echoes it to the process log.
func (l *Logger) Error(category, message string, details map[string]any) {
	l.slog.Error(message, "category", category)
	l.logAt(LevelError, category, message, details)
}

// Success records a success-level entry and echoes it to the process log.
func (l *Logger) Success(category, message string, details map[string]any) {
	l.slog.Info(message, "category", category, "outcome", "success")
	l.logAt(LevelSuccess, category, message, details)
}

// Debug records a debug-level entry in development mode; elsewhere it is a no-op.
func (l *Logger) Debug(category, message string, details map[string]any) {
	if !l.dev {
		return
	}
	l.slog.Debug(message, "category", category)
	l.logAt(LevelDebug, category, message, details)
}

// LogAPICall records one handled API request.
func (l *Logger) LogAPICall(method, path string, status int, duration time.Duration, userID string) {
	l.Log(Entry{
		Level:      levelForStatus(status),
		Category:   "api",
		Message:    method + " " + path,
		UserID:     userID,
		DurationMS: duration.Milliseconds(),
		Details:    map[string]any{"status": status},
	})
}

// LogDBOperation records one document store operation.
func (l *Logger) LogDBOperation(op, collection string, duration time.Duration, err error) {
	e := Entry{
		Level:      LevelInfo,
		Category:   "db",
		Message:    op + " " + collection,
		DurationMS: duration.Milliseconds(),
	}
	if err != nil {
		e.Level = LevelError
		e.Details = map[string]any{"error": err.Error()}
	}
	l.Log(e)
}

// LogCacheOperation records one cache access.
func (l *Logger) LogCacheOperation(op, key string, hit bool) {
	l.Log(Entry{
		Level:    LevelDebug,
		Category: "cache",
		Message:  op + " " + key,
		Details:  map[string]any{"hit": hit},
	})
}

// LogUserAction records a user-visible action.
func (l *Logger) LogUserAction(userID, userEmail, action string, details map[string]any) {
	l.Log(Entry{
		Level:     LevelInfo,
		Category:  "user",
		Message:   action,
		UserID:    userID,
		UserEmail: userEmail,
		Details:   details,
	})
}

// LogOrderEvent records an order lifecycle event.
func (l *Logger) LogOrderEvent(orderID, userID, event string, details map[string]any) {
	meta := map[string]any{"orderId": orderID}
	l.Log(Entry{
		Level:    LevelInfo,
		Category: "order",
		Message:  event,
		UserID:   userID,
		Details:  details,
		Metadata: meta,
	})
}

func levelForStatus(status int) Level {
	switch {
	case status >= 500:
		return LevelError
	case status >= 400:
		return LevelWarn
	default:
		return LevelInfo
	}
}
