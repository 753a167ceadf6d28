package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/pos-checkout/internal/model"
)

// CreateProduct добавляет товар в каталог.
func (r *PostgresRepository) CreateProduct(ctx context.Context, name string, price model.Money, stock int) (*model.Product, error) {
	p := model.Product{Name: name, Price: price, Stock: stock}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO products (name, price, stock) VALUES ($1, $2, $3) RETURNING id`,
		name, int64(price), stock,
	).Scan(&p.ID)
	if err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}
	return &p, nil
}

// ListAvailable возвращает товары с ненулевым остатком, упорядоченные по названию.
func (r *PostgresRepository) ListAvailable(ctx context.Context) ([]model.Product, error) {
	var products []model.Product

	err := r.withRetry(ctx, func() error {
		rows, err := r.pool.Query(ctx,
			`SELECT id, name, price, stock
			 FROM products
			 WHERE stock > 0
			 ORDER BY name, id`,
		)
		if err != nil {
			return fmt.Errorf("select products: %w", err)
		}

		products, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Product, error) {
			var (
				p     model.Product
				price int64
			)
			err := row.Scan(&p.ID, &p.Name, &price, &p.Stock)
			p.Price = model.Money(price)
			return p, err
		})
		if err != nil {
			return fmt.Errorf("scan products: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return products, nil
}

// GetByID возвращает товар с актуальным остатком.
func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*model.Product, error) {
	var (
		p     model.Product
		price int64
	)

	err := r.withRetry(ctx, func() error {
		return r.pool.QueryRow(ctx,
			`SELECT id, name, price, stock FROM products WHERE id = $1`,
			id,
		).Scan(&p.ID, &p.Name, &price, &p.Stock)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", model.ErrProductNotFound, id)
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	p.Price = model.Money(price)
	return &p, nil
}
