package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is an opaque transaction handle owned by the storage implementation
// (pgx.Tx for Postgres). Repositories accept NoTX for the non-transactional path.
type Tx interface{}

var NoTX interface{}

// TransactionManager runs fn inside one database transaction. The purchase
// confirmation uses it to lock the invoice and user rows, claim configurations
// and delete the invoice as a single unit:
//
//	tm.WithTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(ctx context.Context, tx Tx) error {
//		inv, err := invoices.FindByUserForUpdate(ctx, tx, uid)
//		...
//		return invoices.DeleteByUser(ctx, tx, uid)
//	})
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
