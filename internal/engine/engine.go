package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"crowdfill/internal/config"
	"crowdfill/internal/db"
	"crowdfill/internal/domain"
	"crowdfill/internal/events"
	"crowdfill/internal/ledger"
	"crowdfill/internal/repo"
	"crowdfill/internal/resilience"
)

// BotDispatcher hands a bot-served item to the external bot API.
type BotDispatcher interface {
	Dispatch(ctx context.Context, item domain.OrderItem) error
}

type Engine struct {
	DB         *sql.DB
	Repo       repo.Repo
	Events     events.Writer
	Config     *config.Config
	Now        func() time.Time
	Locks      *ledger.Locks
	Dispatcher BotDispatcher
}

func New(conn *sql.DB, dialect db.Dialect, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	return Engine{
		DB:     conn,
		Repo:   repo.Repo{DB: conn, Dialect: dialect},
		Events: events.Writer{Dialect: dialect},
		Config: cfg,
		Now:    time.Now,
		Locks:  ledger.NewLocks(),
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) emit(ctx context.Context, tx *sql.Tx, evtType, orderID, kind, id, actorID string, payload events.EventPayload) error {
	w := e.Events
	w.Now = e.now
	return w.Append(ctx, tx, evtType, orderID, kind, id, actorID, payload)
}

// storeConflict marks a write the store refused because another transaction
// held the lock. Only these are retried.
type storeConflict struct{ err error }

func (c storeConflict) Error() string { return fmt.Sprintf("%v: %v", domain.ErrConcurrentModification, c.err) }

func (c storeConflict) Is(target error) bool { return target == domain.ErrConcurrentModification }

func (c storeConflict) Unwrap() error { return c.err }

func classify(err error) error {
	if err != nil && db.IsConflict(err) {
		return storeConflict{err: err}
	}
	return err
}

func (e Engine) retryConfig(op string) resilience.RetryConfig {
	attempts, backoff := 3, 20
	if e.Config != nil {
		attempts, backoff = e.Config.Ledger.MaxAttempts, e.Config.Ledger.RetryBackoffMS
	}
	return resilience.RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Duration(backoff) * time.Millisecond,
		MaxBackoff:     time.Second,
		JitterFraction: 0.25,
		ShouldRetry: func(err error) bool {
			var c storeConflict
			return errors.As(err, &c)
		},
		OnRetry: resilience.RetryLogger("engine", op),
	}
}

// withItems runs fn in one transaction holding the given items. Locks are
// taken in id order, in process first and then through a version bump on
// each row, so the ledger reads inside fn cannot go stale.
func withItems[T any](ctx context.Context, e Engine, op string, itemIDs []string, fn func(tx *sql.Tx) (T, error)) (T, error) {
	ids := append([]string(nil), itemIDs...)
	sort.Strings(ids)
	ids = compact(ids)
	locks := e.Locks
	if locks == nil {
		locks = ledger.NewLocks()
	}
	for _, id := range ids {
		unlock := locks.Lock(id)
		defer unlock()
	}

	return resilience.DoVal(ctx, e.retryConfig(op), func(ctx context.Context) (T, error) {
		var zero T
		tx, err := e.DB.BeginTx(ctx, nil)
		if err != nil {
			return zero, classify(err)
		}
		defer tx.Rollback()
		now := e.stamp()
		for _, id := range ids {
			if err := e.Repo.LockItem(ctx, tx, id, now); err != nil {
				return zero, classify(err)
			}
		}
		val, err := fn(tx)
		if err != nil {
			return zero, classify(err)
		}
		if err := tx.Commit(); err != nil {
			return zero, classify(err)
		}
		return val, nil
	})
}

func withItem[T any](ctx context.Context, e Engine, op, itemID string, fn func(tx *sql.Tx) (T, error)) (T, error) {
	return withItems(ctx, e, op, []string{itemID}, fn)
}

func compact(sorted []string) []string {
	out := sorted[:0]
	for i, s := range sorted {
		if i > 0 && s == sorted[i-1] {
			continue
		}
		out = append(out, s)
	}
	return out
}

// openItem loads an item whose order still accepts changes.
func (e Engine) openItem(ctx context.Context, tx *sql.Tx, itemID string) (domain.OrderItem, error) {
	item, err := e.Repo.GetItemTx(ctx, tx, itemID)
	if err != nil {
		return domain.OrderItem{}, err
	}
	order, err := e.Repo.GetOrderTx(ctx, tx, item.OrderID)
	if err != nil {
		return domain.OrderItem{}, err
	}
	if order.Status.Terminal() {
		return domain.OrderItem{}, domain.Invalid("order %s is %s", order.ID, order.Status)
	}
	return item, nil
}

// humanItem is openItem for operations that only make sense for crowd work.
func (e Engine) humanItem(ctx context.Context, tx *sql.Tx, itemID string) (domain.OrderItem, error) {
	item, err := e.openItem(ctx, tx, itemID)
	if err != nil {
		return item, err
	}
	if item.ServiceMode == domain.ServiceModeBot {
		return domain.OrderItem{}, domain.Invalid("item %s is served by bot dispatch", item.ID)
	}
	return item, nil
}

func (e Engine) snapshot(ctx context.Context, tx *sql.Tx, item domain.OrderItem) (ledger.Snapshot, error) {
	jobs, err := e.Repo.ListItemJobsTx(ctx, tx, item.ID)
	if err != nil {
		return ledger.Snapshot{}, err
	}
	posts, err := e.Repo.ListOpenPostsTx(ctx, tx, item.ID)
	if err != nil {
		return ledger.Snapshot{}, err
	}
	return ledger.Snapshot{Item: item, Jobs: jobs, OpenPosts: posts}, nil
}

// syncCompleted recomputes the item's completed count from its live jobs. A
// drop is only possible when a job that carried approved work was cancelled,
// and is recorded as a correction.
func (e Engine) syncCompleted(ctx context.Context, tx *sql.Tx, itemID, actorID, cause string) (domain.OrderItem, error) {
	item, err := e.Repo.GetItemTx(ctx, tx, itemID)
	if err != nil {
		return item, err
	}
	snap, err := e.snapshot(ctx, tx, item)
	if err != nil {
		return item, err
	}
	if err := snap.Check(); err != nil {
		return item, err
	}
	completed := snap.CompletedQuantity()
	if completed == item.CompletedQuantity {
		return item, nil
	}
	if completed < item.CompletedQuantity {
		if err := e.emit(ctx, tx, "item.completion.corrected", item.OrderID, "item", item.ID, actorID, events.EventPayload{
			"from":  item.CompletedQuantity,
			"to":    completed,
			"cause": cause,
		}); err != nil {
			return item, err
		}
		zap.L().Warn("item completion corrected",
			zap.String("item_id", item.ID),
			zap.Int("from", item.CompletedQuantity),
			zap.Int("to", completed),
			zap.String("cause", cause),
		)
	}
	if err := e.Repo.SetItemCompleted(ctx, tx, item.ID, completed); err != nil {
		return item, err
	}
	item.CompletedQuantity = completed
	return item, nil
}
