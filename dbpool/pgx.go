package dbpool

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Rows is the result cursor returned by Conn.Query.
type Rows = pgx.Rows

var _ Conn = (*pgxpool.Conn)(nil)

type pgxPool struct {
	pool *pgxpool.Pool
}

func (p *pgxPool) Acquire(ctx context.Context) (Conn, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		// Return an untyped nil so callers' nil checks hold.
		return nil, err
	}
	return conn, nil
}

// Stat exposes pool statistics.
func (p *pgxPool) Stat() *pgxpool.Stat {
	return p.pool.Stat()
}
