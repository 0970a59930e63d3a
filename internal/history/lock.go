package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/example/schema-migrator/internal/database"
)

// ErrLockTimeout indicates that the migration lock could not be acquired
// before the lock timeout or context deadline.
var ErrLockTimeout = errors.New("timed out waiting for migration lock")

// LockOptions configures a Lock.
type LockOptions struct {
	// Table names the lock table. Defaults to "<history table>_lock".
	Table string

	// Timeout bounds how long Acquire waits. Zero waits until ctx ends.
	Timeout time.Duration

	// RetryInterval is the first pause between acquisition attempts. Later
	// pauses double up to MaxRetryInterval.
	RetryInterval time.Duration

	// MaxRetryInterval caps the pause between attempts. Defaults to ten
	// times RetryInterval.
	MaxRetryInterval time.Duration

	// StaleAfter is the age after which a held lock is assumed abandoned and
	// taken over. Zero disables takeover.
	StaleAfter time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
}

// Lock is an advisory lock implemented as a row in the lock table. Only the
// holder of the row may apply migrations or otherwise append to history.
type Lock struct {
	db               *database.DB
	table            string
	timeout          time.Duration
	retryInterval    time.Duration
	maxRetryInterval time.Duration
	staleAfter       time.Duration
	clock            clock.Clock
	logger           *slog.Logger
}

// NewLock creates a Lock on db.
func NewLock(db *database.DB, opts LockOptions) *Lock {
	if opts.Table == "" {
		opts.Table = DefaultTable + "_lock"
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 500 * time.Millisecond
	}
	if opts.MaxRetryInterval < opts.RetryInterval {
		opts.MaxRetryInterval = 10 * opts.RetryInterval
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Lock{
		db:               db,
		table:            opts.Table,
		timeout:          opts.Timeout,
		retryInterval:    opts.RetryInterval,
		maxRetryInterval: opts.MaxRetryInterval,
		staleAfter:       opts.StaleAfter,
		clock:            opts.Clock,
		logger:           opts.Logger,
	}
}

type lockRow struct {
	Name       string    `db:"lock_name"`
	Owner      string    `db:"owner"`
	AcquiredAt time.Time `db:"acquired_at"`
}

// Acquire blocks until the lock named key is held. The returned release
// function deletes the lock row if it is still owned by this caller.
func (l *Lock) Acquire(ctx context.Context, key string) (func(), error) {
	if _, err := l.db.ExecContext(ctx, createLockTableSQL(l.db.Dialect, l.table)); err != nil {
		return nil, fmt.Errorf("create lock table %s: %w", l.table, err)
	}

	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	owner := uuid.NewString()
	started := l.clock.Now()
	retry := newRetryBackOff(l.retryInterval, l.maxRetryInterval, l.clock)

	for attempt := 1; ; attempt++ {
		insertErr := l.tryInsert(ctx, key, owner)
		if insertErr == nil {
			l.logger.Debug("migration lock acquired",
				"lock", key,
				"owner", owner,
				"attempts", attempt,
				"waited", l.clock.Now().Sub(started))
			return func() { l.release(key, owner) }, nil
		}

		holder, found, err := l.holder(ctx, key)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrLockTimeout, key, ctx.Err())
			}
			return nil, fmt.Errorf("inspect migration lock %s: %w", key, err)
		}
		if !found {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrLockTimeout, key, ctx.Err())
			}
			// The row vanished between insert and select, or the insert failed
			// for an unrelated reason. Retry once before giving up.
			if attempt > 1 {
				return nil, fmt.Errorf("acquire migration lock %s: %w", key, insertErr)
			}
			continue
		}

		age := l.clock.Now().Sub(holder.AcquiredAt)
		if l.staleAfter > 0 && age > l.staleAfter {
			l.logger.Warn("taking over stale migration lock",
				"lock", key,
				"previous_owner", holder.Owner,
				"age", age)
			if err := l.delete(ctx, key, holder.Owner); err != nil {
				return nil, fmt.Errorf("clear stale migration lock %s: %w", key, err)
			}
			continue
		}

		if attempt == 1 {
			l.logger.Info("waiting for migration lock",
				"lock", key,
				"holder", holder.Owner,
				"held_since", holder.AcquiredAt)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s held by %s", ErrLockTimeout, key, holder.Owner)
		case <-l.clock.After(retry.NextBackOff()):
		}
	}
}

// lockRetryJitter spreads competing waiters apart.
const lockRetryJitter = 0.2

// newRetryBackOff returns an exponential schedule from initial up to
// maxInterval with no elapsed-time limit. The caller's context bounds the wait.
func newRetryBackOff(initial, maxInterval time.Duration, c clock.Clock) *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     initial,
		RandomizationFactor: lockRetryJitter,
		Multiplier:          2,
		MaxInterval:         maxInterval,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               c,
	}
	b.Reset()
	return b
}

// Holder returns the current owner of the lock named key, if any.
func (l *Lock) Holder(ctx context.Context, key string) (string, bool, error) {
	row, found, err := l.holder(ctx, key)
	return row.Owner, found, err
}

func (l *Lock) tryInsert(ctx context.Context, key, owner string) error {
	query, args, err := l.db.Dialect.Builder().
		Insert(l.db.Dialect.QuoteIdent(l.table)).
		Columns("lock_name", "owner", "acquired_at").
		Values(key, owner, l.clock.Now().UTC()).
		ToSql()
	if err != nil {
		return err
	}
	_, err = l.db.ExecContext(ctx, query, args...)
	return err
}

func (l *Lock) holder(ctx context.Context, key string) (lockRow, bool, error) {
	query, args, err := l.db.Dialect.Builder().
		Select("lock_name", "owner", "acquired_at").
		From(l.db.Dialect.QuoteIdent(l.table)).
		Where(sq.Eq{"lock_name": key}).
		ToSql()
	if err != nil {
		return lockRow{}, false, err
	}

	var row lockRow
	if err := l.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return lockRow{}, false, nil
		}
		return lockRow{}, false, err
	}
	return row, true, nil
}

func (l *Lock) delete(ctx context.Context, key, owner string) error {
	query, args, err := l.db.Dialect.Builder().
		Delete(l.db.Dialect.QuoteIdent(l.table)).
		Where(sq.Eq{"lock_name": key, "owner": owner}).
		ToSql()
	if err != nil {
		return err
	}
	_, err = l.db.ExecContext(ctx, query, args...)
	return err
}

func (l *Lock) release(key, owner string) {
	// The caller's context may already be cancelled; the lock must still go.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := l.delete(ctx, key, owner); err != nil {
		l.logger.Error("failed to release migration lock", "lock", key, "owner", owner, "error", err)
		return
	}
	l.logger.Debug("migration lock released", "lock", key, "owner", owner)
}
