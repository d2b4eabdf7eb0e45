package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	_ "modernc.org/sqlite"

	"github.com/electwix/querycache/internal/config"
	"github.com/electwix/querycache/internal/query"
	"github.com/electwix/querycache/internal/resultset"
)

// database runs statements for the CLI. Load has the signature of
// cache.Loader.
type database interface {
	Load(ctx context.Context, q query.Query) (*resultset.Table, []string, error)
	Exec(ctx context.Context, q query.Query) (int64, error)
	Close(ctx context.Context)
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (database, error) {
	switch cfg.Driver {
	case config.DriverPgx:
		conn, err := pgx.Connect(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("connect: %w", err)
		}
		return &pgxDatabase{conn: conn}, nil
	case config.DriverSQLite, "":
		db, err := sql.Open("sqlite", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("open: %w", err)
		}
		return &sqlDatabase{db: db}, nil
	}
	return nil, fmt.Errorf("unsupported driver %q", cfg.Driver)
}

type sqlDatabase struct {
	db *sql.DB
}

func (d *sqlDatabase) Load(ctx context.Context, q query.Query) (*resultset.Table, []string, error) {
	rows, err := d.db.QueryContext(ctx, q.SQL(), q.Args()...)
	if err != nil {
		return nil, nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	table, err := resultset.FromSQLRows(rows)
	return table, nil, err
}

func (d *sqlDatabase) Exec(ctx context.Context, q query.Query) (int64, error) {
	res, err := d.db.ExecContext(ctx, q.SQL(), q.Args()...)
	if err != nil {
		return 0, fmt.Errorf("exec: %w", err)
	}
	return res.RowsAffected()
}

func (d *sqlDatabase) Close(context.Context) { _ = d.db.Close() }

type pgxDatabase struct {
	conn *pgx.Conn
}

func (d *pgxDatabase) Load(ctx context.Context, q query.Query) (*resultset.Table, []string, error) {
	args, err := pgxArgs(q)
	if err != nil {
		return nil, nil, err
	}
	rows, err := d.conn.Query(ctx, q.SQL(), args...)
	if err != nil {
		return nil, nil, fmt.Errorf("query: %w", err)
	}
	table, err := resultset.FromPgxRows(rows)
	return table, nil, err
}

func (d *pgxDatabase) Exec(ctx context.Context, q query.Query) (int64, error) {
	args, err := pgxArgs(q)
	if err != nil {
		return 0, err
	}
	tag, err := d.conn.Exec(ctx, q.SQL(), args...)
	if err != nil {
		return 0, fmt.Errorf("exec: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (d *pgxDatabase) Close(ctx context.Context) { _ = d.conn.Close(ctx) }

// pgxArgs binds positional parameters as $n arguments and named parameters
// as pgx.NamedArgs for @name placeholders. The two cannot be mixed.
func pgxArgs(q query.Query) ([]any, error) {
	var (
		positional []any
		named      pgx.NamedArgs
	)
	for _, p := range q.Params() {
		name := strings.TrimLeft(p.Name, ":@$")
		if name == "" || (name[0] >= '0' && name[0] <= '9') {
			positional = append(positional, p.Value.Any())
			continue
		}
		if named == nil {
			named = pgx.NamedArgs{}
		}
		named[name] = p.Value.Any()
	}
	switch {
	case named == nil:
		return positional, nil
	case positional == nil:
		return []any{named}, nil
	}
	return nil, errors.New("pgx: cannot mix named and positional parameters")
}
