package engine

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"crowdfill/internal/domain"
	"crowdfill/internal/events"
)

var errNoDispatcher = errors.New("no bot dispatcher configured")

// dispatchItem calls the bot API outside any transaction and records the
// outcome. A failed call never undoes the import; it leaves a DispatchFailure
// for RetryDispatch. The returned error only covers recording the outcome.
func (e Engine) dispatchItem(ctx context.Context, item domain.OrderItem, actorID string) error {
	callErr := errNoDispatcher
	if e.Dispatcher != nil {
		callErr = e.Dispatcher.Dispatch(ctx, item)
	}
	attempts := 1
	var counted interface{ Attempts() int }
	if errors.As(callErr, &counted) {
		attempts = counted.Attempts()
	}

	_, err := withItem(ctx, e, "record dispatch", item.ID, func(tx *sql.Tx) (struct{}, error) {
		now := e.stamp()
		if callErr != nil {
			if err := e.Repo.SetDispatchStatus(ctx, tx, item.ID, domain.DispatchFailed, now); err != nil {
				return struct{}{}, err
			}
			if err := e.Repo.InsertDispatchFailure(ctx, tx, domain.DispatchFailure{
				ID:        uuid.NewString(),
				ItemID:    item.ID,
				OrderID:   item.OrderID,
				Error:     callErr.Error(),
				Attempts:  attempts,
				CreatedAt: now,
			}); err != nil {
				return struct{}{}, err
			}
			return struct{}{}, e.emit(ctx, tx, "item.dispatch_failed", item.OrderID, "item", item.ID, actorID, events.EventPayload{
				"error":    callErr.Error(),
				"attempts": attempts,
			})
		}
		if err := e.Repo.SetDispatchStatus(ctx, tx, item.ID, domain.DispatchDispatched, now); err != nil {
			return struct{}{}, err
		}
		if err := e.Repo.ResolveDispatchFailures(ctx, tx, item.ID, now); err != nil {
			return struct{}{}, err
		}
		if err := e.emit(ctx, tx, "item.dispatched", item.OrderID, "item", item.ID, actorID, events.EventPayload{
			"service":  item.Service,
			"quantity": item.Quantity,
		}); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, e.refreshOrderStatus(ctx, tx, item.OrderID, actorID)
	})
	if err != nil {
		zap.L().Error("record bot dispatch outcome", zap.String("item_id", item.ID), zap.Error(err))
		return err
	}
	if callErr != nil {
		zap.L().Warn("bot dispatch failed",
			zap.String("item_id", item.ID),
			zap.String("order_id", item.OrderID),
			zap.Int("attempts", attempts),
			zap.Error(callErr),
		)
	}
	return nil
}

// RetryDispatch dispatches a bot item again after a recorded failure.
func (e Engine) RetryDispatch(ctx context.Context, itemID, actorID string) (domain.OrderItem, error) {
	item, err := e.Repo.GetItem(ctx, itemID)
	if err != nil {
		return domain.OrderItem{}, err
	}
	if item.ServiceMode != domain.ServiceModeBot {
		return domain.OrderItem{}, domain.Invalid("item %s is not a bot item", itemID)
	}
	if item.DispatchStatus == domain.DispatchDispatched {
		return domain.OrderItem{}, domain.Invalid("item %s was already dispatched", itemID)
	}
	order, err := e.Repo.GetOrder(ctx, item.OrderID)
	if err != nil {
		return domain.OrderItem{}, err
	}
	if order.Status.Terminal() {
		return domain.OrderItem{}, domain.Invalid("order %s is %s", order.ID, order.Status)
	}
	if err := e.dispatchItem(ctx, item, actorID); err != nil {
		return domain.OrderItem{}, err
	}
	return e.Repo.GetItem(ctx, itemID)
}

func (e Engine) ListDispatchFailures(ctx context.Context, all bool) ([]domain.DispatchFailure, error) {
	return e.Repo.ListDispatchFailures(ctx, all)
}
