package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// txRunner runs a unit of work in one database transaction and retries it on
// serialization failures, deadlocks and version-check misses.
type txRunner struct {
	db         *sql.DB
	maxRetries int
	backoff    time.Duration
}

func (r *txRunner) run(ctx context.Context, fn func(tx *sql.Tx) error) error {
	attempts := r.maxRetries
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = r.once(ctx, fn)
		if err == nil || !isRetryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		log.WithFields(log.Fields{
			"attempt": attempt,
			"error":   err,
		}).Warn("[LEDGER] Transaction conflict, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.backoff * time.Duration(attempt)):
		}
	}
	return fmt.Errorf("%w: %v", ErrTransactionConflict, err)
}

// A cancelled ctx aborts the tx; database/sql rolls it back.
func (r *txRunner) once(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
