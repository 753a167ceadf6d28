package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/pos-checkout/internal/model"
)

// ListOrders возвращает последние заказы вместе с именем сотрудника, новые первыми.
func (r *PostgresRepository) ListOrders(ctx context.Context, limit int) ([]model.Order, error) {
	var orders []model.Order

	err := r.withRetry(ctx, func() error {
		rows, err := r.pool.Query(ctx,
			`SELECT o.id, o.employee_id, COALESCE(e.full_name, ''), o.total_amount,
			        o.payment_method, o.tendered, o.change_amount, o.created_at
			 FROM orders o
			 LEFT JOIN employees e ON e.id = o.employee_id
			 ORDER BY o.created_at DESC, o.id DESC
			 LIMIT $1`,
			limit,
		)
		if err != nil {
			return fmt.Errorf("select orders: %w", err)
		}
		defer rows.Close()

		orders = orders[:0]
		for rows.Next() {
			o, err := scanOrder(rows)
			if err != nil {
				return fmt.Errorf("scan order: %w", err)
			}
			orders = append(orders, o)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("rows error: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return orders, nil
}

// GetOrder возвращает заказ со строками в порядке их добавления.
func (r *PostgresRepository) GetOrder(ctx context.Context, id int64) (*model.Order, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT o.id, o.employee_id, COALESCE(e.full_name, ''), o.total_amount,
		        o.payment_method, o.tendered, o.change_amount, o.created_at
		 FROM orders o
		 LEFT JOIN employees e ON e.id = o.employee_id
		 WHERE o.id = $1`,
		id,
	)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", model.ErrOrderNotFound, id)
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT product_id, product_name, quantity, unit_price, subtotal
		 FROM order_lines
		 WHERE order_id = $1
		 ORDER BY line_no`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("select order lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			l                   model.OrderLine
			unitPrice, subtotal int64
		)
		if err := rows.Scan(&l.ProductID, &l.ProductName, &l.Quantity, &unitPrice, &subtotal); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		l.UnitPrice = model.Money(unitPrice)
		l.Subtotal = model.Money(subtotal)
		o.Lines = append(o.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return &o, nil
}

// SalesSummary возвращает число заказов и выручку за интервал [from, to).
func (r *PostgresRepository) SalesSummary(ctx context.Context, from, to time.Time) (model.SalesSummary, error) {
	var (
		count int
		total int64
	)
	err := r.withRetry(ctx, func() error {
		return r.pool.QueryRow(ctx,
			`SELECT COUNT(*), COALESCE(SUM(total_amount), 0)
			 FROM orders
			 WHERE created_at >= $1 AND created_at < $2`,
			from, to,
		).Scan(&count, &total)
	})
	if err != nil {
		return model.SalesSummary{}, fmt.Errorf("sum orders: %w", err)
	}

	return model.SalesSummary{Orders: count, Total: model.Money(total)}, nil
}

func scanOrder(row pgx.Row) (model.Order, error) {
	var (
		o                         model.Order
		method                    string
		total, tendered, changeAm int64
	)
	err := row.Scan(&o.ID, &o.EmployeeID, &o.EmployeeName, &total, &method, &tendered, &changeAm, &o.CreatedAt)
	if err != nil {
		return model.Order{}, err
	}
	o.TotalAmount = model.Money(total)
	o.PaymentMethod = model.PaymentMethod(method)
	o.Tendered = model.Money(tendered)
	o.Change = model.Money(changeAm)
	return o, nil
}
