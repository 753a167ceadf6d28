// Package catalog отдаёт снимок доступных товаров и живые остатки для проверки корзины.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/mmeshcher/pos-checkout/internal/model"
)

const (
	flightKey   = "available"
	loadTimeout = 5 * time.Second
)

// Store читает и пополняет каталог в основном хранилище.
type Store interface {
	ListAvailable(ctx context.Context) ([]model.Product, error)
	GetByID(ctx context.Context, id int64) (*model.Product, error)
	CreateProduct(ctx context.Context, name string, price model.Money, stock int) (*model.Product, error)
}

// Service отдаёт каталог. Список доступных товаров может приходить из кэша,
// остаток конкретного товара всегда читается из хранилища.
type Service struct {
	store  Store
	cache  Cache
	logger *zap.Logger
	sfg    singleflight.Group
}

// New создаёт Service. cache может быть nil.
func New(store Store, cache Cache, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, cache: cache, logger: logger}
}

// ListAvailable возвращает товары с ненулевым остатком, упорядоченные по названию.
// Одновременные промахи кэша разделяют одну загрузку. Загрузка не зависит от отмены
// контекста отдельного вызывающего, каждый ждёт её под своим ctx.
func (s *Service) ListAvailable(ctx context.Context) ([]model.Product, error) {
	ch := s.sfg.DoChan(flightKey, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		return s.load(loadCtx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]model.Product), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Service) load(ctx context.Context) ([]model.Product, error) {
	if s.cache != nil {
		products, err := s.cache.Get(ctx)
		if err == nil {
			return products, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			s.logger.Warn("catalog cache get failed", zap.Error(err))
		}
	}

	products, err := s.store.ListAvailable(ctx)
	if err != nil {
		return nil, fmt.Errorf("list available: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, products); err != nil {
			s.logger.Warn("catalog cache set failed", zap.Error(err))
		}
	}
	return products, nil
}

// GetByID возвращает товар с живым остатком.
func (s *Service) GetByID(ctx context.Context, id int64) (*model.Product, error) {
	return s.store.GetByID(ctx, id)
}

// CreateProduct добавляет товар и сбрасывает снимок.
func (s *Service) CreateProduct(ctx context.Context, name string, price model.Money, stock int) (*model.Product, error) {
	if name == "" || price < 0 || stock < 0 {
		return nil, fmt.Errorf("%w: name %q price %d stock %d", model.ErrInvalidProduct, name, price, stock)
	}

	p, err := s.store.CreateProduct(ctx, name, price, stock)
	if err != nil {
		return nil, err
	}

	if err := s.Invalidate(ctx); err != nil {
		s.logger.Warn("catalog invalidation failed", zap.Error(err))
	}
	return p, nil
}

// Invalidate сбрасывает снимок доступных товаров.
func (s *Service) Invalidate(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Delete(ctx)
}
