package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is what repositories run statements against: the pool or the
// transaction carried by the context.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB is satisfied by *pgxpool.Pool and pgxmock pools.
type DB interface {
	Querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

type BaseRepository struct {
	db DB
}

func NewBaseRepository(db DB) BaseRepository {
	return BaseRepository{db: db}
}

func (r *BaseRepository) DB() DB {
	return r.db
}

func (r *BaseRepository) conn(ctx context.Context) Querier {
	return GetConn(ctx, r.db)
}
