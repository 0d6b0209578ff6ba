package engine

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"crowdfill/internal/db"
	"crowdfill/internal/domain"
	"crowdfill/internal/events"
	"crowdfill/internal/repo"
	"crowdfill/internal/resilience"
)

type ImportItem struct {
	ID          string
	Service     string
	Target      string
	ServiceMode domain.ServiceMode
	Quantity    int
	UnitPrice   decimal.Decimal
	CostPerUnit decimal.Decimal
}

type ImportOrderOptions struct {
	ID       string
	SellerID string
	Items    []ImportItem
	ActorID  string
}

func (o ImportOrderOptions) validate() error {
	if strings.TrimSpace(o.SellerID) == "" {
		return domain.Validation("seller_id is required")
	}
	if len(o.Items) == 0 {
		return domain.Validation("order needs at least one item")
	}
	for i, it := range o.Items {
		if strings.TrimSpace(it.Service) == "" {
			return domain.Validation("items[%d].service is required", i)
		}
		if it.ServiceMode != domain.ServiceModeBot && it.ServiceMode != domain.ServiceModeHuman {
			return domain.Validation("items[%d].service_mode must be bot or human", i)
		}
		if it.Quantity <= 0 {
			return domain.Validation("items[%d].quantity must be positive", i)
		}
		if it.UnitPrice.IsNegative() || it.CostPerUnit.IsNegative() {
			return domain.Validation("items[%d] prices must not be negative", i)
		}
	}
	return nil
}

// ImportOrder records a paid order. Importing an id that already exists
// returns the stored order unchanged. Bot items are dispatched once the
// import is committed.
func (e Engine) ImportOrder(ctx context.Context, opts ImportOrderOptions) (domain.Order, error) {
	if err := opts.validate(); err != nil {
		return domain.Order{}, err
	}
	if opts.ID != "" {
		existing, err := e.GetOrder(ctx, opts.ID)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return domain.Order{}, err
		}
	} else {
		opts.ID = uuid.NewString()
	}

	now := e.stamp()
	order := domain.Order{ID: opts.ID, SellerID: opts.SellerID, Status: domain.OrderProcessing, CreatedAt: now, UpdatedAt: now}
	for _, it := range opts.Items {
		item := domain.OrderItem{
			ID:          it.ID,
			OrderID:     order.ID,
			Service:     it.Service,
			Target:      it.Target,
			ServiceMode: it.ServiceMode,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			CostPerUnit: it.CostPerUnit,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		if item.ServiceMode == domain.ServiceModeBot {
			item.DispatchStatus = domain.DispatchPending
		}
		order.Items = append(order.Items, item)
	}

	created, err := resilience.DoVal(ctx, e.retryConfig("import order"), func(ctx context.Context) (bool, error) {
		return e.insertOrder(ctx, order, opts.ActorID)
	})
	if err != nil {
		return domain.Order{}, err
	}
	if !created {
		return e.GetOrder(ctx, order.ID)
	}

	for _, item := range order.Items {
		if item.ServiceMode == domain.ServiceModeBot {
			_ = e.dispatchItem(ctx, item, opts.ActorID)
		}
	}
	return e.GetOrder(ctx, order.ID)
}

// insertOrder writes the order, its items and the import event. It reports
// false when a concurrent import of the same id committed first.
func (e Engine) insertOrder(ctx context.Context, order domain.Order, actorID string) (bool, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, classify(err)
	}
	defer tx.Rollback()
	if err := e.Repo.InsertOrder(ctx, tx, order); err != nil {
		if db.IsUniqueViolation(err) {
			return false, nil
		}
		return false, classify(err)
	}
	for _, item := range order.Items {
		if err := e.Repo.InsertItem(ctx, tx, item); err != nil {
			if db.IsUniqueViolation(err) {
				return false, domain.Validation("item id %s already exists", item.ID)
			}
			return false, classify(err)
		}
	}
	if err := e.emit(ctx, tx, "order.imported", order.ID, "order", order.ID, actorID, events.EventPayload{
		"seller_id": order.SellerID,
		"items":     len(order.Items),
	}); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, classify(err)
	}
	return true, nil
}

// GetOrder returns the order with its items.
func (e Engine) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	order, err := e.Repo.GetOrder(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	items, err := e.Repo.ListOrderItems(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items
	return order, nil
}

func (e Engine) ListOrders(ctx context.Context, status string, page repo.Page) ([]domain.Order, error) {
	return e.Repo.ListOrders(ctx, status, page)
}

// ItemSummary is an item with its ledger figures.
type ItemSummary struct {
	Item              domain.OrderItem `json:"item"`
	Assigned          int              `json:"assigned"`
	Posted            int              `json:"posted"`
	AvailableToAssign int              `json:"available_to_assign"`
	Jobs              []domain.Job     `json:"jobs"`
}

func (e Engine) GetItem(ctx context.Context, id string) (ItemSummary, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return ItemSummary{}, err
	}
	defer tx.Rollback()
	item, err := e.Repo.GetItemTx(ctx, tx, id)
	if err != nil {
		return ItemSummary{}, err
	}
	snap, err := e.snapshot(ctx, tx, item)
	if err != nil {
		return ItemSummary{}, err
	}
	return ItemSummary{
		Item:              item,
		Assigned:          snap.Assigned(),
		Posted:            snap.Posted(),
		AvailableToAssign: snap.AvailableToAssign(),
		Jobs:              snap.Jobs,
	}, nil
}

// refreshOrderStatus completes the order once every human item is fully
// accounted for by terminal jobs and every bot item was dispatched.
func (e Engine) refreshOrderStatus(ctx context.Context, tx *sql.Tx, orderID, actorID string) error {
	order, err := e.Repo.GetOrderTx(ctx, tx, orderID)
	if err != nil {
		return err
	}
	if order.Status.Terminal() {
		return nil
	}
	items, err := e.Repo.ListOrderItemsTx(ctx, tx, orderID)
	if err != nil {
		return err
	}
	for _, item := range items {
		done, err := e.itemDone(ctx, tx, item)
		if err != nil || !done {
			return err
		}
	}
	if err := order.Status.Transition(domain.OrderCompleted); err != nil {
		return err
	}
	if err := e.Repo.UpdateOrderStatus(ctx, tx, orderID, domain.OrderCompleted, e.stamp()); err != nil {
		return err
	}
	return e.emit(ctx, tx, "order.completed", orderID, "order", orderID, actorID, nil)
}

func (e Engine) itemDone(ctx context.Context, tx *sql.Tx, item domain.OrderItem) (bool, error) {
	if item.ServiceMode == domain.ServiceModeBot {
		return item.DispatchStatus == domain.DispatchDispatched, nil
	}
	snap, err := e.snapshot(ctx, tx, item)
	if err != nil {
		return false, err
	}
	if len(snap.OpenPosts) > 0 {
		return false, nil
	}
	for _, j := range snap.Jobs {
		if !j.Status.Terminal() {
			return false, nil
		}
	}
	return snap.CompletedQuantity() == item.Quantity, nil
}

// CancelOrder cancels every live job (settling each) and every open post of
// the order, then closes the order.
func (e Engine) CancelOrder(ctx context.Context, orderID, reason, actorID string) (domain.Order, error) {
	if strings.TrimSpace(reason) == "" {
		return domain.Order{}, domain.Validation("reason is required")
	}
	items, err := e.Repo.ListOrderItems(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if len(items) == 0 {
		if _, err := e.Repo.GetOrder(ctx, orderID); err != nil {
			return domain.Order{}, err
		}
	}
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	_, err = withItems(ctx, e, "cancel order", ids, func(tx *sql.Tx) (struct{}, error) {
		order, err := e.Repo.GetOrderTx(ctx, tx, orderID)
		if err != nil {
			return struct{}{}, err
		}
		if err := order.Status.Transition(domain.OrderCancelled); err != nil {
			return struct{}{}, err
		}
		for _, item := range items {
			jobs, err := e.Repo.ListItemJobsTx(ctx, tx, item.ID)
			if err != nil {
				return struct{}{}, err
			}
			for _, j := range jobs {
				if j.Status.Terminal() {
					continue
				}
				if _, _, err := e.cancelJobTx(ctx, tx, j, "order cancelled: "+reason, nil, actorID); err != nil {
					return struct{}{}, err
				}
			}
			posts, err := e.Repo.ListOpenPostsTx(ctx, tx, item.ID)
			if err != nil {
				return struct{}{}, err
			}
			for _, p := range posts {
				if _, err := e.cancelPostTx(ctx, tx, p, actorID); err != nil {
					return struct{}{}, err
				}
			}
		}
		if err := e.Repo.UpdateOrderStatus(ctx, tx, orderID, domain.OrderCancelled, e.stamp()); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, e.emit(ctx, tx, "order.cancelled", orderID, "order", orderID, actorID, events.EventPayload{"reason": reason})
	})
	if err != nil {
		return domain.Order{}, err
	}
	return e.GetOrder(ctx, orderID)
}
