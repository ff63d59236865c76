package documentstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/sqlc-dev/pqtype"

	"github.com/partsflow/storefront/backend/internal/metrics"
)

// Postgres stores every collection in a single documents table keyed by
// (collection, id) with the body in a JSONB column.
type Postgres struct {
	db *sql.DB
}

// Open connects to Postgres and ensures the documents schema exists.
func Open(connStr string) (*Postgres, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	p := &Postgres{db: db}
	if err := p.ensureSchema(context.Background()); err != nil {
		return nil, err
	}
	return p, nil
}

// DB exposes the underlying connection for raw SQL when needed.
func (p *Postgres) DB() *sql.DB { return p.db }

// Close releases the underlying connection pool.
func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) ensureSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS documents (
            collection TEXT NOT NULL,
            id         TEXT NOT NULL,
            data       JSONB NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            PRIMARY KEY (collection, id)
        )`)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
        CREATE INDEX IF NOT EXISTS documents_data_idx
        ON documents USING gin (data jsonb_path_ops)`)
	return err
}

func observe(op string, start time.Time, err error) {
	metrics.DocstoreOpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.DocstoreOpErrors.WithLabelValues(op).Inc()
	}
}

func (p *Postgres) Get(ctx context.Context, collection, id string) (doc Document, err error) {
	start := time.Now()
	defer func() { observe("get", start, err) }()

	row := p.db.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection=$1 AND id=$2`, collection, id)
	var raw pqtype.NullRawMessage
	if err = row.Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			err = ErrNotFound
		}
		return nil, err
	}
	if !raw.Valid {
		return nil, ErrNotFound
	}
	doc = Document{}
	if err = json.Unmarshal(raw.RawMessage, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// identRe guards ORDER BY field names, which cannot be bound parameters.
var identRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func (p *Postgres) Query(ctx context.Context, collection string, q Query) (docs []Document, err error) {
	start := time.Now()
	defer func() { observe("query", start, err) }()

	var sb strings.Builder
	sb.WriteString(`SELECT data FROM documents WHERE collection=$1`)
	args := []any{collection}

	if len(q.Filters) > 0 {
		// Top-level equality filters map onto one JSONB containment check,
		// which the gin index serves.
		fjson, merr := json.Marshal(q.Filters)
		if merr != nil {
			return nil, merr
		}
		args = append(args, string(fjson))
		fmt.Fprintf(&sb, ` AND data @> $%d::jsonb`, len(args))
	}
	if q.OrderBy != "" {
		if !identRe.MatchString(q.OrderBy) {
			return nil, fmt.Errorf("documentstore: invalid order field %q", q.OrderBy)
		}
		fmt.Fprintf(&sb, ` ORDER BY data->>'%s'`, q.OrderBy)
		if q.Descending {
			sb.WriteString(" DESC")
		}
	}
	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&sb, ` LIMIT $%d`, len(args))
	}

	rows, err := p.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var raw pqtype.NullRawMessage
		if err = rows.Scan(&raw); err != nil {
			return nil, err
		}
		if !raw.Valid {
			continue
		}
		doc := Document{}
		if err = json.Unmarshal(raw.RawMessage, &doc); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	err = rows.Err()
	return docs, err
}

func (p *Postgres) Insert(ctx context.Context, collection, id string, doc Document) (err error) {
	start := time.Now()
	defer func() { observe("insert", start, err) }()

	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, data) VALUES ($1,$2,$3)`,
		collection, id, raw)
	return err
}

func (p *Postgres) Update(ctx context.Context, collection, id string, fields Document) (err error) {
	start := time.Now()
	defer func() { observe("update", start, err) }()

	raw, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	res, err := p.db.ExecContext(ctx, `
        UPDATE documents SET data = data || $3::jsonb, updated_at = now()
        WHERE collection=$1 AND id=$2`, collection, id, raw)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, collection, id string) (err error) {
	start := time.Now()
	defer func() { observe("delete", start, err) }()

	_, err = p.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection=$1 AND id=$2`, collection, id)
	return err
}

// BatchWrite upserts all docs in a single multi-row statement, so the
// batch lands atomically. The batch logger relies on this for flushes.
func (p *Postgres) BatchWrite(ctx context.Context, collection string, docs []BatchDoc) (err error) {
	start := time.Now()
	defer func() { observe("batch_write", start, err) }()

	if len(docs) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString("INSERT INTO documents (collection, id, data) VALUES ")
	args := make([]any, 0, len(docs)*3)
	for i, d := range docs {
		raw, merr := json.Marshal(d.Doc)
		if merr != nil {
			return merr
		}
		if i > 0 {
			sb.WriteByte(',')
		}
		idx := i*3 + 1
		fmt.Fprintf(&sb, "($%d,$%d,$%d)", idx, idx+1, idx+2)
		args = append(args, collection, d.ID, raw)
	}
	sb.WriteString(" ON CONFLICT (collection, id) DO UPDATE SET data=EXCLUDED.data, updated_at=now()")
	_, err = p.db.ExecContext(ctx, sb.String(), args...)
	return err
}

func (p *Postgres) Count(ctx context.Context, collection string) (n int, err error) {
	start := time.Now()
	defer func() { observe("count", start, err) }()

	row := p.db.QueryRowContext(ctx,
		`SELECT count(*) FROM documents WHERE collection=$1`, collection)
	err = row.Scan(&n)
	return n, err
}
