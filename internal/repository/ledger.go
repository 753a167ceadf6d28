package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mmeshcher/pos-checkout/internal/model"
)

// TopicOrderCommitted задаёт топик событий о зафиксированных заказах.
const TopicOrderCommitted = "pos.orders.committed"

// OrderCommittedEvent публикуется после фиксации заказа.
type OrderCommittedEvent struct {
	EventID       string              `json:"event_id"`
	OrderID       int64               `json:"order_id"`
	EmployeeID    int64               `json:"employee_id"`
	TotalAmount   model.Money         `json:"total_amount"`
	PaymentMethod model.PaymentMethod `json:"payment_method"`
	Lines         []model.OrderLine   `json:"lines"`
	CreatedAt     time.Time           `json:"created_at"`
}

// CommitOrder записывает заказ, его строки, списание остатков и исходящее событие
// в одной транзакции. Остаток списывается условно: если товара стало меньше запрошенного,
// транзакция откатывается целиком с ErrConcurrentStockConflict.
func (r *PostgresRepository) CommitOrder(ctx context.Context, draft model.OrderDraft) (int64, error) {
	if len(draft.Lines) == 0 {
		return 0, model.ErrEmptyCart
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return 0, ledgerError("begin tx", err)
	}
	defer tx.Rollback(ctx)

	var (
		orderID   int64
		createdAt time.Time
	)
	err = tx.QueryRow(ctx,
		`INSERT INTO orders (employee_id, total_amount, payment_method, tendered, change_amount)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		draft.EmployeeID,
		int64(draft.Total),
		string(draft.Payment.Method),
		int64(draft.Payment.Tendered),
		int64(draft.Payment.Change),
	).Scan(&orderID, &createdAt)
	if err != nil {
		return 0, ledgerError("insert order", err)
	}

	if err := decrementStock(ctx, tx, draft.Lines); err != nil {
		return 0, err
	}

	lines := make([]model.OrderLine, 0, len(draft.Lines))
	for i, l := range draft.Lines {
		_, err = tx.Exec(ctx,
			`INSERT INTO order_lines (order_id, line_no, product_id, product_name, quantity, unit_price, subtotal)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			orderID, i+1, l.ProductID, l.ProductName, l.Quantity, int64(l.UnitPrice), int64(l.Subtotal),
		)
		if err != nil {
			return 0, ledgerError("insert order line", err)
		}
		lines = append(lines, model.OrderLine{
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			Subtotal:    l.Subtotal,
		})
	}

	event := OrderCommittedEvent{
		EventID:       uuid.NewString(),
		OrderID:       orderID,
		EmployeeID:    draft.EmployeeID,
		TotalAmount:   draft.Total,
		PaymentMethod: draft.Payment.Method,
		Lines:         lines,
		CreatedAt:     createdAt,
	}
	if err := insertOutbox(ctx, tx, event.EventID, TopicOrderCommitted, fmt.Sprint(orderID), event); err != nil {
		return 0, ledgerError("insert outbox", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, ledgerError("commit tx", err)
	}

	return orderID, nil
}

// decrementStock списывает остатки в порядке возрастания id товара,
// чтобы параллельные транзакции захватывали строки в одном порядке.
func decrementStock(ctx context.Context, tx pgx.Tx, lines []model.CartLine) error {
	qty := make(map[int64]int, len(lines))
	ids := make([]int64, 0, len(lines))
	for _, l := range lines {
		if _, ok := qty[l.ProductID]; !ok {
			ids = append(ids, l.ProductID)
		}
		qty[l.ProductID] += l.Quantity
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		tag, err := tx.Exec(ctx,
			`UPDATE products SET stock = stock - $1 WHERE id = $2 AND stock >= $1`,
			qty[id], id,
		)
		if err != nil {
			return ledgerError("decrement stock", err)
		}
		if tag.RowsAffected() != 1 {
			return fmt.Errorf("%w: product %d", model.ErrConcurrentStockConflict, id)
		}
	}
	return nil
}

func insertOutbox(ctx context.Context, tx pgx.Tx, eventID, topic, key string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO outbox (event_id, topic, key, payload) VALUES ($1, $2, $3, $4)`,
		eventID, topic, key, data,
	)
	return err
}

// ledgerError классифицирует ошибку записи. Конфликты блокировок и нарушение
// ограничения остатка считаются конфликтом, всё остальное недоступностью журнала.
func ledgerError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		stockCheck := pgErr.Code == pgerrcode.CheckViolation && pgErr.TableName == "products"
		if stockCheck || pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
			return fmt.Errorf("%w: %s: %w", model.ErrConcurrentStockConflict, op, err)
		}
	}
	return fmt.Errorf("%w: %s: %w", model.ErrLedgerUnavailable, op, err)
}
