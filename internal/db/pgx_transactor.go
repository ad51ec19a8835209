package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TxContextKey struct{}

// RetryObserver is notified before a conflicting transaction is re-run.
type RetryObserver func(attempt int, err error)

type pgxTransactor struct {
	pool *pgxpool.Pool

	maxAttempts int
	backoff     time.Duration
	onRetry     RetryObserver
}

type TransactorOption func(*pgxTransactor)

func WithMaxAttempts(n int) TransactorOption {
	return func(t *pgxTransactor) {
		if n > 0 {
			t.maxAttempts = n
		}
	}
}

func WithBackoff(d time.Duration) TransactorOption {
	return func(t *pgxTransactor) { t.backoff = d }
}

func WithRetryObserver(o RetryObserver) TransactorOption {
	return func(t *pgxTransactor) { t.onRetry = o }
}

func NewPgxTransactor(pool *pgxpool.Pool, opts ...TransactorOption) Transactor {
	t := &pgxTransactor{pool: pool, maxAttempts: 1}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// WithinTransaction runs fn in a transaction. If ctx already carries a
// transaction, fn joins it and the outermost call owns commit and retries.
func (t *pgxTransactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(TxContextKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	var err error
	for attempt := 1; attempt <= t.maxAttempts; attempt++ {
		err = t.run(ctx, fn)
		if err == nil || !IsRetryable(err) {
			return err
		}
		if attempt == t.maxAttempts {
			break
		}
		if t.onRetry != nil {
			t.onRetry(attempt, err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("transaction retry aborted: %w", ctx.Err())
		case <-time.After(time.Duration(attempt) * t.backoff):
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrContention, t.maxAttempts, err)
}

func (t *pgxTransactor) run(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := t.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if tx.Conn() != nil && !tx.Conn().IsClosed() {
			_ = tx.Rollback(ctx)
		}
	}()

	ctxWithTx := context.WithValue(ctx, TxContextKey{}, tx)

	if err = fn(ctxWithTx); err != nil {
		// The transaction will be rolled back in the deferred function
		return fmt.Errorf("transaction function failed: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func GetPgxExecutorFromContext(ctx context.Context, pool *pgxpool.Pool) Executor {
	if tx, ok := ctx.Value(TxContextKey{}).(pgx.Tx); ok {
		return tx
	}
	return pool
}
