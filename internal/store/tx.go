package store

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// Tx exposes the Store operations inside a transaction.
type Tx struct {
	tx *sqlx.Tx
	*session
}

// Transaction runs fn inside a transaction.
//
// If fn returns nil the transaction commits. If fn returns an error, every
// effect is rolled back and that error is returned unchanged. If fn panics,
// the transaction is rolled back and the panic continues.
//
// The Store holds a single connection, so fn must use tx rather than the
// Store. A Store call made from fn waits for the connection until its own
// context ends and then fails with that context's error; with a context that
// never ends it waits forever. Store calls from other goroutines wait and run
// once the transaction finishes.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Tx) error) error {
	if s.db == nil {
		return ErrNotInitialized
	}

	sqlTx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return &StoreError{Op: "begin", Err: err}
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := sqlTx.Rollback(); rbErr != nil && !isTxDone(rbErr) {
			s.logger.Error("transaction rollback failed", "error", rbErr)
		}
	}()

	tx := &Tx{tx: sqlTx, session: &session{q: sqlTx, logger: s.logger}}
	if err := fn(tx); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return &StoreError{Op: "commit", Err: err}
	}
	committed = true
	return nil
}
