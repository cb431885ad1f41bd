package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"kitchenbot/pkg/errs"
	"kitchenbot/pkg/logger"
	"kitchenbot/pkg/models"
	"kitchenbot/storage"
)

const orderColumns = `
	o.id::text, o.order_number, o.customer_id, o.customer_name,
	o.subtotal_cents, o.delivery_fee_cents, o.total_cents,
	o.status, o.payment_method, o.payment_status,
	o.instructions, o.address, o.delivery_lat, o.delivery_lng,
	o.driver_lat, o.driver_lng, o.created_at, o.updated_at`

type orderRepo struct {
	db  *pgxpool.Pool
	log logger.ILogger
}

func NewOrderRepo(db *pgxpool.Pool, log logger.ILogger) storage.IOrderStorage {
	return &orderRepo{db: db, log: log}
}

// Create inserts the order and its line items in one transaction.
func (r *orderRepo) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		r.log.Error("failed to begin order tx", logger.Error(err))
		return nil, err
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO orders (
			id, customer_id, customer_name, subtotal_cents, delivery_fee_cents, total_cents,
			status, payment_method, payment_status, instructions, address, delivery_lat, delivery_lng
		)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING order_number, created_at, updated_at
	`
	var number int64
	err = tx.QueryRow(ctx, query,
		order.ID,
		order.CustomerID,
		order.CustomerName,
		order.Subtotal,
		order.DeliveryFee,
		order.Total,
		string(order.Status),
		string(order.PaymentMethod),
		string(order.PaymentStatus),
		order.Instructions,
		order.Address,
		order.DeliveryLat,
		order.DeliveryLng,
	).Scan(&number, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		r.log.Error("failed to create order", logger.Error(err))
		return nil, err
	}
	order.OrderNumber = models.FormatOrderNumber(number)

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID
		err = tx.QueryRow(ctx, `
			INSERT INTO order_items (order_id, menu_item_id, name, quantity, price_cents)
			VALUES ($1::uuid, $2, $3, $4, $5)
			RETURNING id
		`, order.ID, item.MenuItemID, item.Name, item.Quantity, item.Price).Scan(&item.ID)
		if err != nil {
			r.log.Error("failed to create order item", logger.String("order_id", order.ID), logger.Error(err))
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		r.log.Error("failed to commit order tx", logger.Error(err))
		return nil, err
	}

	return order, nil
}

func (r *orderRepo) GetByID(ctx context.Context, id string) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders o WHERE o.id = $1::uuid`

	order, err := scanOrder(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		r.log.Error("failed to get order by id", logger.String("id", id), logger.Error(err))
		return nil, err
	}

	if err := r.attachItems(ctx, []*models.Order{order}); err != nil {
		return nil, err
	}
	return order, nil
}

func (r *orderRepo) GetAll(ctx context.Context, filter models.OrderFilter) ([]*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders o`
	var args []interface{}
	if filter.CustomerID != nil {
		query += ` WHERE o.customer_id = $1`
		args = append(args, *filter.CustomerID)
	}
	query += ` ORDER BY o.created_at DESC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.log.Error("failed to list orders", logger.Error(err))
		return nil, err
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// UpdateStatus moves the order from one status to another only if it is still
// in the expected status. Driver coordinates are cleared in the same
// statement whenever the target status is not a tracked one.
func (r *orderRepo) UpdateStatus(ctx context.Context, id string, from, to models.OrderStatus) error {
	query := `
		UPDATE orders
		SET status = $1,
			driver_lat = CASE WHEN $4 THEN driver_lat ELSE NULL END,
			driver_lng = CASE WHEN $4 THEN driver_lng ELSE NULL END,
			updated_at = NOW()
		WHERE id = $2::uuid AND status = $3
	`
	res, err := r.db.Exec(ctx, query, string(to), id, string(from), to.Tracked())
	if err != nil {
		r.log.Error("failed to update order status", logger.String("id", id), logger.Error(err))
		return err
	}
	if res.RowsAffected() == 0 {
		return r.missOrStale(ctx, id)
	}
	return nil
}

func (r *orderRepo) UpdateDriverPosition(ctx context.Context, id string, lat, lng float64) (bool, error) {
	res, err := r.db.Exec(ctx, `
		UPDATE orders SET driver_lat = $1, driver_lng = $2, updated_at = NOW()
		WHERE id = $3::uuid AND status = $4
	`, lat, lng, id, string(models.StatusDelivering))
	if err != nil {
		r.log.Error("failed to update driver position", logger.String("id", id), logger.Error(err))
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

func (r *orderRepo) ClearDriverPosition(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE orders SET driver_lat = NULL, driver_lng = NULL, updated_at = NOW()
		WHERE id = $1::uuid AND (driver_lat IS NOT NULL OR driver_lng IS NOT NULL)
	`, id)
	return err
}

func (r *orderRepo) UpdatePaymentStatus(ctx context.Context, id string, status models.PaymentStatus) error {
	res, err := r.db.Exec(ctx, `UPDATE orders SET payment_status = $1, updated_at = NOW() WHERE id = $2::uuid`, string(status), id)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (r *orderRepo) missOrStale(ctx context.Context, id string) error {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1::uuid)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return errs.ErrNotFound
	}
	return storage.ErrStaleStatus
}

func (r *orderRepo) attachItems(ctx context.Context, orders []*models.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]string, 0, len(orders))
	byID := make(map[string]*models.Order, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
		byID[o.ID] = o
		o.Items = []models.OrderItem{}
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, order_id::text, menu_item_id, name, quantity, price_cents
		FROM order_items
		WHERE order_id = ANY($1::uuid[])
		ORDER BY id ASC
	`, ids)
	if err != nil {
		r.log.Error("failed to load order items", logger.Error(err))
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var it models.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.MenuItemID, &it.Name, &it.Quantity, &it.Price); err != nil {
			return err
		}
		if o, ok := byID[it.OrderID]; ok {
			o.Items = append(o.Items, it)
		}
	}
	return rows.Err()
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	var (
		o       models.Order
		number  int64
		status  string
		method  string
		payment string
	)
	err := row.Scan(
		&o.ID, &number, &o.CustomerID, &o.CustomerName,
		&o.Subtotal, &o.DeliveryFee, &o.Total,
		&status, &method, &payment,
		&o.Instructions, &o.Address, &o.DeliveryLat, &o.DeliveryLng,
		&o.DriverLat, &o.DriverLng, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.OrderNumber = models.FormatOrderNumber(number)
	o.Status = models.OrderStatus(status)
	o.PaymentMethod = models.PaymentMethod(method)
	o.PaymentStatus = models.PaymentStatus(payment)
	return &o, nil
}
