package repo

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"

	"crowdfill/internal/domain"
)

const itemColumns = `id,order_id,service,target,service_mode,quantity,completed_quantity,unit_price,cost_per_unit,dispatch_status,version,created_at,updated_at`

func (r Repo) InsertOrder(ctx context.Context, tx *sql.Tx, o domain.Order) error {
	_, err := r.exec(ctx, tx, "insert order", `INSERT INTO orders(id,seller_id,status,created_at,updated_at) VALUES (?,?,?,?,?)`,
		o.ID, o.SellerID, string(o.Status), o.CreatedAt, o.UpdatedAt)
	return err
}

func (r Repo) InsertItem(ctx context.Context, tx *sql.Tx, it domain.OrderItem) error {
	_, err := r.exec(ctx, tx, "insert item", `INSERT INTO order_items(`+itemColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		it.ID, it.OrderID, it.Service, nullable(it.Target), string(it.ServiceMode), it.Quantity, it.CompletedQuantity,
		it.UnitPrice, it.CostPerUnit, nullable(string(it.DispatchStatus)), it.Version, it.CreatedAt, it.UpdatedAt)
	return err
}

func (r Repo) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	return r.getOrder(ctx, r.DB, id)
}

func (r Repo) GetOrderTx(ctx context.Context, tx *sql.Tx, id string) (domain.Order, error) {
	return r.getOrder(ctx, tx, id)
}

func (r Repo) getOrder(ctx context.Context, q querier, id string) (domain.Order, error) {
	var o domain.Order
	var status string
	err := q.QueryRowContext(ctx, r.q(`SELECT id,seller_id,status,created_at,updated_at FROM orders WHERE id=?`), id).
		Scan(&o.ID, &o.SellerID, &status, &o.CreatedAt, &o.UpdatedAt)
	if err := notFound(err, "order", id); err != nil {
		return o, err
	}
	o.Status = domain.OrderStatus(status)
	return o, nil
}

func (r Repo) UpdateOrderStatus(ctx context.Context, tx *sql.Tx, id string, status domain.OrderStatus, updatedAt string) error {
	n, err := r.exec(ctx, tx, "update order", `UPDATE orders SET status=?, updated_at=? WHERE id=?`, string(status), updatedAt, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.NotFound("order", id)
	}
	return nil
}

func (r Repo) ListOrders(ctx context.Context, status string, page Page) ([]domain.Order, error) {
	query := `SELECT id,seller_id,status,created_at,updated_at FROM orders WHERE 1=1`
	var args []any
	if status != "" {
		query += ` AND status=?`
		args = append(args, status)
	}
	if page.CursorCreatedAt != "" && page.CursorID != "" {
		query += ` AND (created_at < ? OR (created_at = ? AND id < ?))`
		args = append(args, page.CursorCreatedAt, page.CursorCreatedAt, page.CursorID)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if page.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, page.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, eris.Wrap(err, "repo: list orders")
	}
	defer rows.Close()
	var res []domain.Order
	for rows.Next() {
		var o domain.Order
		var st string
		if err := rows.Scan(&o.ID, &o.SellerID, &st, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "repo: scan order")
		}
		o.Status = domain.OrderStatus(st)
		res = append(res, o)
	}
	return res, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (domain.OrderItem, error) {
	var it domain.OrderItem
	var target, dispatch sql.NullString
	var mode string
	err := row.Scan(&it.ID, &it.OrderID, &it.Service, &target, &mode, &it.Quantity, &it.CompletedQuantity,
		&it.UnitPrice, &it.CostPerUnit, &dispatch, &it.Version, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		return it, err
	}
	it.Target = target.String
	it.ServiceMode = domain.ServiceMode(mode)
	it.DispatchStatus = domain.DispatchStatus(dispatch.String)
	return it, nil
}

func (r Repo) GetItem(ctx context.Context, id string) (domain.OrderItem, error) {
	return r.getItem(ctx, r.DB, id)
}

func (r Repo) GetItemTx(ctx context.Context, tx *sql.Tx, id string) (domain.OrderItem, error) {
	return r.getItem(ctx, tx, id)
}

func (r Repo) getItem(ctx context.Context, q querier, id string) (domain.OrderItem, error) {
	it, err := scanItem(q.QueryRowContext(ctx, r.q(`SELECT `+itemColumns+` FROM order_items WHERE id=?`), id))
	if err := notFound(err, "item", id); err != nil {
		return it, err
	}
	return it, nil
}

func (r Repo) ListOrderItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	return r.listOrderItems(ctx, r.DB, orderID)
}

func (r Repo) ListOrderItemsTx(ctx context.Context, tx *sql.Tx, orderID string) ([]domain.OrderItem, error) {
	return r.listOrderItems(ctx, tx, orderID)
}

func (r Repo) listOrderItems(ctx context.Context, q querier, orderID string) ([]domain.OrderItem, error) {
	rows, err := q.QueryContext(ctx, r.q(`SELECT `+itemColumns+` FROM order_items WHERE order_id=? ORDER BY created_at, id`), orderID)
	if err != nil {
		return nil, eris.Wrap(err, "repo: list items")
	}
	defer rows.Close()
	var res []domain.OrderItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, eris.Wrap(err, "repo: scan item")
		}
		res = append(res, it)
	}
	return res, rows.Err()
}

// LockItem bumps the item's version. The write takes the store's row (or
// database) lock, so every later read in tx sees a stable ledger.
func (r Repo) LockItem(ctx context.Context, tx *sql.Tx, id, updatedAt string) error {
	n, err := r.exec(ctx, tx, "lock item", `UPDATE order_items SET version=version+1, updated_at=? WHERE id=?`, updatedAt, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.NotFound("item", id)
	}
	return nil
}

func (r Repo) SetItemCompleted(ctx context.Context, tx *sql.Tx, id string, completed int) error {
	_, err := r.exec(ctx, tx, "set item completed", `UPDATE order_items SET completed_quantity=? WHERE id=?`, completed, id)
	return err
}

func (r Repo) SetDispatchStatus(ctx context.Context, tx *sql.Tx, id string, status domain.DispatchStatus, updatedAt string) error {
	_, err := r.exec(ctx, tx, "set dispatch status", `UPDATE order_items SET dispatch_status=?, updated_at=? WHERE id=?`, string(status), updatedAt, id)
	return err
}
