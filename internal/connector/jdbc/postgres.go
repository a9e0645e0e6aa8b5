package jdbc

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/nucleus/etl-flows/internal/config"
	"github.com/nucleus/etl-flows/internal/core"
	"github.com/nucleus/etl-flows/internal/logger"
)

// Postgres writes tables with lib/pq.
type Postgres struct {
	db  *sql.DB
	log logger.Logger
}

// Open connects with the postgres driver and configures the pool.
func Open(ctx context.Context, cfg Config, log logger.Logger) (*Postgres, error) {
	dsn, err := cfg.ConnString()
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database %s: %w", cfg.Database, err)
	}
	return NewPostgres(db, log), nil
}

// NewPostgres wraps an open handle.
func NewPostgres(db *sql.DB, log logger.Logger) *Postgres {
	if log == nil {
		log = logger.NewNop()
	}
	return &Postgres{db: db, log: log}
}

// Close releases the pool.
func (p *Postgres) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// sqlType maps a column type to its Postgres type.
func sqlType(t core.ColumnType) string {
	switch t {
	case core.TypeInt:
		return "bigint"
	case core.TypeFloat:
		return "double precision"
	case core.TypeBool:
		return "boolean"
	case core.TypeTimestamp:
		return "timestamp"
	case core.TypeJSON:
		return "jsonb"
	default:
		return "text"
	}
}

// CreateTableSQL renders the DDL for a table schema.
func CreateTableSQL(schema, table string, cols core.Schema) string {
	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = pq.QuoteIdentifier(c.Name) + " " + sqlType(c.Type)
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", qualified(schema, table), strings.Join(defs, ", "))
}

func qualified(schema, table string) string {
	if schema == "" {
		return pq.QuoteIdentifier(table)
	}
	return pq.QuoteIdentifier(schema) + "." + pq.QuoteIdentifier(table)
}

// ReplaceTable recreates schema.table from t and copies its rows, all in one
// transaction. Readers see either the previous table or the complete new one.
func (p *Postgres) ReplaceTable(ctx context.Context, schema, table string, t *core.Table) (err error) {
	cols := t.PhysicalSchema()

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if schema != "" {
		if _, err = tx.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+pq.QuoteIdentifier(schema)); err != nil {
			return fmt.Errorf("create schema %s: %w", schema, err)
		}
	}
	if _, err = tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+qualified(schema, table)); err != nil {
		return fmt.Errorf("drop table: %w", err)
	}
	if _, err = tx.ExecContext(ctx, CreateTableSQL(schema, table, cols)); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	if len(cols) > 0 && t.Len() > 0 {
		if err = copyRows(ctx, tx, schema, table, cols, t.Rows); err != nil {
			return err
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func copyRows(ctx context.Context, tx *sql.Tx, schema, table string, cols core.Schema, rows []core.Row) error {
	query := pq.CopyIn(table, cols.Names()...)
	if schema != "" {
		query = pq.CopyInSchema(schema, table, cols.Names()...)
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare copy: %w", err)
	}
	defer stmt.Close()

	values := make([]any, len(cols))
	for i, r := range rows {
		for j, c := range cols {
			values[j] = core.Coerce(c.Type, r[c.Name])
		}
		if _, err := stmt.ExecContext(ctx, values...); err != nil {
			return fmt.Errorf("copy row %d: %w", i, err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		return fmt.Errorf("flush copy: %w", err)
	}
	return nil
}

// Load replaces the task's destination table with t.
func (p *Postgres) Load(ctx context.Context, t *core.Table, task config.Task) core.Result[string] {
	title := task.Title()
	schema, table := task.QualifiedTable()
	if t == nil {
		t = core.NewTable(nil)
	}
	if err := p.ReplaceTable(ctx, schema, table, t); err != nil {
		return core.Failure[string](title, err)
	}
	name := table
	if schema != "" {
		name = schema + "." + table
	}
	p.log.Info("table replaced",
		logger.String("database", task.Data.Destination.Database),
		logger.String("table", name),
		logger.Int("rows", t.Len()),
	)
	return core.Success(name, title, fmt.Sprintf("replaced %s with %d rows", name, t.Len()))
}
