// Package register связывает корзину кассира с асинхронным оформлением продажи.
// Корзина изменяется только в цикле событий сессии, оформление идёт на воркерах пула,
// а результат применяется к корзине снова в цикле событий.
package register

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/mmeshcher/pos-checkout/internal/cart"
	"github.com/mmeshcher/pos-checkout/internal/checkout"
	"github.com/mmeshcher/pos-checkout/internal/metrics"
	"github.com/mmeshcher/pos-checkout/internal/model"
)

var (
	// ErrSessionClosed возвращается при обращении к закрытой сессии.
	ErrSessionClosed = errors.New("register session closed")
	// ErrAttemptNotFound возвращается, если попытки с таким идентификатором у сессии нет.
	ErrAttemptNotFound = errors.New("checkout attempt not found")
)

// ProductReader возвращает товар с живым остатком.
type ProductReader interface {
	GetByID(ctx context.Context, id int64) (*model.Product, error)
}

// Checkouter проводит одну попытку оформления.
type Checkouter interface {
	Checkout(ctx context.Context, req checkout.Request, observe checkout.Observer) checkout.Outcome
}

// Executor исполняет задачи вне цикла событий.
type Executor interface {
	Submit(job func()) error
}

// Session представляет кассу одного сотрудника: корзину и не более одной попытки оформления.
type Session struct {
	employeeID int64
	products   ProductReader
	checkout   Checkouter
	executor   Executor
	metrics    *metrics.Checkout
	logger     *zap.Logger
	base       context.Context

	cmds     chan func()
	quit     chan struct{}
	stopped  chan struct{}
	quitOnce sync.Once

	// доступны только из цикла событий
	cart     *cart.Cart
	inflight *Attempt
	last     *Attempt
}

func newSession(base context.Context, employeeID int64, products ProductReader, co Checkouter,
	ex Executor, m *metrics.Checkout, logger *zap.Logger) *Session {
	s := &Session{
		employeeID: employeeID,
		products:   products,
		checkout:   co,
		executor:   ex,
		metrics:    m,
		logger:     logger.With(zap.Int64("employeeID", employeeID)),
		base:       base,
		cmds:       make(chan func()),
		quit:       make(chan struct{}),
		stopped:    make(chan struct{}),
		cart:       cart.New(),
	}
	go s.run()
	return s
}

func (s *Session) run() {
	defer close(s.stopped)
	for {
		select {
		case fn := <-s.cmds:
			fn()
		case <-s.quit:
			return
		}
	}
}

// do выполняет fn в цикле событий и ждёт завершения.
func (s *Session) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	task := func() {
		defer close(done)
		fn()
	}

	select {
	case s.cmds <- task:
	case <-s.quit:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	<-done
	return nil
}

// post передаёт fn в цикл событий, не дожидаясь выполнения.
func (s *Session) post(fn func()) bool {
	select {
	case s.cmds <- fn:
		return true
	case <-s.quit:
		return false
	}
}

// Close останавливает цикл событий. Попытка в полёте продолжает работу
// и доставляет результат без применения к корзине.
func (s *Session) Close() {
	s.quitOnce.Do(func() { close(s.quit) })
	<-s.stopped
}

// EmployeeID возвращает владельца сессии.
func (s *Session) EmployeeID() int64 {
	return s.employeeID
}

// AddToCart добавляет товар в корзину. Товар читается вне цикла событий.
func (s *Session) AddToCart(ctx context.Context, productID int64, qty int) error {
	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return err
	}

	var res error
	if err := s.do(ctx, func() {
		if s.inflight != nil {
			res = model.ErrCheckoutInProgress
			return
		}
		res = s.cart.AddLine(*p, qty)
	}); err != nil {
		return err
	}
	return res
}

// RemoveFromCart удаляет строку товара.
func (s *Session) RemoveFromCart(ctx context.Context, productID int64) error {
	var res error
	if err := s.do(ctx, func() {
		if s.inflight != nil {
			res = model.ErrCheckoutInProgress
			return
		}
		res = s.cart.RemoveLine(productID)
	}); err != nil {
		return err
	}
	return res
}

// ClearCart очищает корзину.
func (s *Session) ClearCart(ctx context.Context) error {
	var res error
	if err := s.do(ctx, func() {
		if s.inflight != nil {
			res = model.ErrCheckoutInProgress
			return
		}
		s.cart.Clear()
	}); err != nil {
		return err
	}
	return res
}

// CurrentTotal возвращает сумму корзины.
func (s *Session) CurrentTotal(ctx context.Context) (model.Money, error) {
	var total model.Money
	err := s.do(ctx, func() { total = s.cart.Total() })
	return total, err
}

// Lines возвращает копию строк корзины.
func (s *Session) Lines(ctx context.Context) ([]model.CartLine, error) {
	var lines []model.CartLine
	err := s.do(ctx, func() { lines = s.cart.Lines() })
	return lines, err
}

// BeginCheckout запускает попытку оформления по снимку корзины.
// Пока предыдущая попытка не завершена, новая отклоняется с ErrCheckoutInProgress.
func (s *Session) BeginCheckout(ctx context.Context, method model.PaymentMethod, tendered string) (*Attempt, error) {
	var (
		attempt *Attempt
		res     error
	)
	err := s.do(ctx, func() {
		if s.inflight != nil {
			res = fmt.Errorf("%w: attempt %s", model.ErrCheckoutInProgress, s.inflight.ID)
			return
		}

		a := newAttempt(s.base)
		req := checkout.Request{
			EmployeeID: s.employeeID,
			Lines:      s.cart.Lines(),
			Method:     method,
			Tendered:   tendered,
		}

		s.metrics.Started()
		if err := s.executor.Submit(func() { s.execute(a, req) }); err != nil {
			s.metrics.Finished()
			a.cancel()
			res = err
			return
		}

		s.inflight = a
		attempt = a
	})
	if err != nil {
		return nil, err
	}
	if res != nil {
		return nil, res
	}

	s.logger.Info("checkout attempt started", zap.String("attemptID", attempt.ID))
	return attempt, nil
}

// Attempt возвращает текущую или последнюю завершённую попытку по идентификатору.
func (s *Session) Attempt(ctx context.Context, id string) (*Attempt, error) {
	var found *Attempt
	if err := s.do(ctx, func() {
		switch {
		case s.inflight != nil && s.inflight.ID == id:
			found = s.inflight
		case s.last != nil && s.last.ID == id:
			found = s.last
		}
	}); err != nil {
		return nil, err
	}
	if found == nil {
		return nil, ErrAttemptNotFound
	}
	return found, nil
}

// execute выполняется на воркере пула.
func (s *Session) execute(a *Attempt, req checkout.Request) {
	out := s.checkout.Checkout(a.ctx, req, a.observe)
	s.metrics.Finished()

	if !s.post(func() { s.apply(a, out) }) {
		s.logger.Warn("session closed before checkout result was applied",
			zap.String("attemptID", a.ID),
			zap.String("state", string(out.State)),
		)
		a.finish(out)
	}
}

// apply выполняется в цикле событий. Успех очищает корзину, неудача оставляет её как была.
func (s *Session) apply(a *Attempt, out checkout.Outcome) {
	if out.State == checkout.StateSucceeded {
		s.cart.Clear()
	}
	if s.inflight == a {
		s.inflight = nil
	}
	s.last = a
	a.finish(out)
}
