package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

var NoTX interface{}

// TransactionManager runs fn inside one database transaction and hands the
// transaction handle to fn as tx.
//
// Repositories receiving a non-nil tx take row locks (SELECT ... FOR UPDATE)
// where they read something they are about to modify. A nil tx means the pool.
//
// USAGE
//
//	tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
//		acc, err := accounts.FindByID(ctx, tx, id) // locked until commit
//		...
//		return accounts.Save(ctx, tx, acc)
//	})
//
// If fn returns an error the transaction rolls back and nothing it wrote survives.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
