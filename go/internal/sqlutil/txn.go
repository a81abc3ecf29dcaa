package sqlutil

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Run binds a transaction with bind and hands the result to fn. The
// transaction commits when fn returns nil and rolls back otherwise, including
// when fn panics. A failed rollback is joined to fn's error so callers can
// still match fn's sentinel errors with errors.Is.
func Run[Q any](
	ctx context.Context,
	db *sql.DB,
	bind func(*sql.Tx) *Q,
	fn func(q *Q) error,
) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(bind(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("failed to roll back: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
