package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// execBatch runs query once per argument row inside a single transaction with
// one prepared statement. Either every row is applied or none is.
func execBatch(ctx context.Context, db *sql.DB, query string, rows [][]any) (err error) {
	if len(rows) == 0 {
		return nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
			}
		}
	}()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, args := range rows {
		if _, err = stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("exec %v: %w", args[0], err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
