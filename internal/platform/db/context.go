package db

import (
	"context"

	"github.com/jackc/pgx/v5"
)

type ctxKey string

const txKey ctxKey = "pgx_tx"

// WithTx returns a context carrying an open transaction. Repositories route
// their queries through it when present, so a service can group multiple
// repository calls into one atomic aggregate write.
func WithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txKey, tx)
}

// TxFromContext returns the transaction carried by the context, or nil.
func TxFromContext(ctx context.Context) pgx.Tx {
	if tx, ok := ctx.Value(txKey).(pgx.Tx); ok {
		return tx
	}
	return nil
}
