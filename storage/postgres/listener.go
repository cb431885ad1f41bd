package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"kitchenbot/pkg/logger"
	"kitchenbot/pkg/models"
	"kitchenbot/storage"
)

// ChangesChannel is the NOTIFY channel written by the orders_notify trigger.
const ChangesChannel = "order_changes"

const releaseTimeout = 5 * time.Second

type listener struct {
	db  *pgxpool.Pool
	log logger.ILogger
}

func NewListener(db *pgxpool.Pool, log logger.ILogger) storage.IChangeFeed {
	return &listener{db: db, log: log}
}

// notification is the trigger payload. It carries only the fixed-size
// columns (NOTIFY payloads are capped); the full order is re-read.
type notification struct {
	Op  string   `json:"op"`
	Row orderRow `json:"row"`
}

type orderRow struct {
	ID            string    `json:"id"`
	OrderNumber   int64     `json:"order_number"`
	CustomerID    int64     `json:"customer_id"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
	DriverLat     *float64  `json:"driver_lat"`
	DriverLng     *float64  `json:"driver_lng"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (r orderRow) toModel() *models.Order {
	return &models.Order{
		ID:            r.ID,
		OrderNumber:   models.FormatOrderNumber(r.OrderNumber),
		CustomerID:    r.CustomerID,
		Status:        models.OrderStatus(r.Status),
		PaymentStatus: models.PaymentStatus(r.PaymentStatus),
		DriverLat:     r.DriverLat,
		DriverLng:     r.DriverLng,
		UpdatedAt:     r.UpdatedAt,
	}
}

func decodeNotification(payload string) (models.ChangeEvent, error) {
	var n notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return models.ChangeEvent{}, err
	}

	var typ models.ChangeType
	switch n.Op {
	case "INSERT", "insert":
		typ = models.ChangeInsert
	case "UPDATE", "update":
		typ = models.ChangeUpdate
	default:
		return models.ChangeEvent{}, fmt.Errorf("unsupported op %q", n.Op)
	}
	if n.Row.ID == "" {
		return models.ChangeEvent{}, fmt.Errorf("notification without order id")
	}

	return models.ChangeEvent{
		Type:  typ,
		Order: n.Row.toModel(),
		At:    n.Row.UpdatedAt,
	}, nil
}

// Listen holds one pooled connection for the lifetime of the subscription.
// Every notification is completed with a GetByID; if that read fails the
// bare row is delivered (enough for the status and position merge) and the
// next poll fills in the rest.
func (l *listener) Listen(ctx context.Context, fn func(models.ChangeEvent)) error {
	conn, err := l.db.Acquire(ctx)
	if err != nil {
		return err
	}
	defer releaseListener(conn, conn.Conn().Close)

	if _, err := conn.Exec(ctx, "LISTEN "+ChangesChannel); err != nil {
		return err
	}
	l.log.Info("listening for order changes", logger.String("channel", ChangesChannel))

	orders := NewOrderRepo(l.db, l.log)
	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		ev, err := decodeNotification(n.Payload)
		if err != nil {
			l.log.Warning("skipping malformed order notification", logger.Error(err))
			continue
		}

		if full, err := orders.GetByID(ctx, ev.Order.ID); err == nil {
			full.UpdatedAt = ev.Order.UpdatedAt
			ev.Order = full
		}
		fn(ev)
	}
}

// listenConn is the part of *pgxpool.Conn a listener hands back.
type listenConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Release()
}

// releaseListener returns the connection to the pool only after UNLISTEN,
// so the next borrower does not buffer our notifications. A connection that
// cannot UNLISTEN is closed, and the pool then discards it.
func releaseListener(conn listenConn, closeConn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()

	if _, err := conn.Exec(ctx, "UNLISTEN *"); err != nil {
		_ = closeConn(ctx)
	}
	conn.Release()
}
