package jdbc

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nucleus/etl-flows/internal/core"
)

// Querier is the read surface of a pgx pool.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// MartReader runs curated queries against the staging database.
type MartReader struct {
	q    Querier
	pool *pgxpool.Pool
}

// NewMartReader opens a pgx pool for cfg and verifies it.
func NewMartReader(ctx context.Context, cfg Config) (*MartReader, error) {
	dsn, err := cfg.ConnString()
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.Database, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Database, err)
	}
	return &MartReader{q: pool, pool: pool}, nil
}

// NewMartReaderWith reads through an existing querier.
func NewMartReaderWith(q Querier) *MartReader {
	return &MartReader{q: q}
}

// Close releases the pool when the reader owns one.
func (m *MartReader) Close() {
	if m.pool != nil {
		m.pool.Close()
	}
}

// Query runs sql and collects the result set into a Table. Column types
// follow the first non-null value of each column.
func (m *MartReader) Query(ctx context.Context, sql string, args ...any) (*core.Table, error) {
	rows, err := m.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("mart query: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}

	var out []core.Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("mart row %d: %w", len(out), err)
		}
		row := make(core.Row, len(names))
		for i, name := range names {
			if i < len(values) {
				row[name] = normalize(values[i])
			} else {
				row[name] = nil
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("mart rows: %w", err)
	}

	schema := make(core.Schema, len(names))
	for i, name := range names {
		schema[i] = core.Column{Name: name, Type: core.TypeString}
		for _, r := range out {
			if v := r[name]; v != nil {
				schema[i].Type = core.InferType(v)
				break
			}
		}
	}
	t := core.NewTable(schema)
	t.Append(out...)
	return t, nil
}

// normalize maps pgx decoded values onto the plain values tables carry.
func normalize(v any) any {
	switch x := v.(type) {
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case int:
		return int64(x)
	case float32:
		return float64(x)
	case time.Time:
		return x.UTC()
	case [16]byte:
		return uuid.UUID(x).String()
	case pgtype.Numeric:
		if !x.Valid {
			return nil
		}
		f, err := x.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	default:
		return v
	}
}
