package repository

import "context"

type Tx interface{}

var NoTX interface{}

// TransactionManager provides a thin abstraction to execute a function within a
// database transaction, passing the underlying transaction handle via `tx`.
//
// Keeps use-case interfaces clean (no transaction types leaking out) and lets
// every repository method called with the same tx share one unit of work.
//
// USAGE
// tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
// // call repositories with the same ctx and tx
// c, err := codes.FindByCode(ctx, tx, value)
// ...
// return err
// })
//
// The concrete type of `tx` is infra-defined (db.Tx).
// Repositories MUST gracefully accept `nil` tx (non-transactional path).
type TransactionManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
