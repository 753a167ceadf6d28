package register

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/mmeshcher/pos-checkout/internal/metrics"
)

// Registry хранит сессии касс по сотрудникам.
type Registry struct {
	base     context.Context
	products ProductReader
	checkout Checkouter
	executor Executor
	metrics  *metrics.Checkout
	logger   *zap.Logger

	mu       sync.Mutex
	sessions map[int64]*Session
	closed   bool
}

// NewRegistry создаёт реестр. Отмена base прерывает попытки, не дошедшие до записи.
func NewRegistry(base context.Context, products ProductReader, co Checkouter, ex Executor,
	m *metrics.Checkout, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		base:     base,
		products: products,
		checkout: co,
		executor: ex,
		metrics:  m,
		logger:   logger,
		sessions: make(map[int64]*Session),
	}
}

// Session возвращает сессию сотрудника, создавая её при первом обращении.
func (r *Registry) Session(employeeID int64) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrSessionClosed
	}

	s, ok := r.sessions[employeeID]
	if !ok {
		s = newSession(r.base, employeeID, r.products, r.checkout, r.executor, r.metrics, r.logger)
		r.sessions[employeeID] = s
	}
	return s, nil
}

// Close закрывает все сессии.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
