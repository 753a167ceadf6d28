// Package checkout проводит корзину через проверку остатков, сверку оплаты
// и атомарную запись заказа.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/pos-checkout/internal/metrics"
	"github.com/mmeshcher/pos-checkout/internal/model"
	"github.com/mmeshcher/pos-checkout/internal/validation"
)

const defaultCommitTimeout = 10 * time.Second

// StockReader возвращает актуальный остаток товара.
type StockReader interface {
	GetByID(ctx context.Context, id int64) (*model.Product, error)
}

// Ledger атомарно записывает заказ, его строки и списание остатков.
type Ledger interface {
	CommitOrder(ctx context.Context, draft model.OrderDraft) (int64, error)
}

type invalidator interface {
	Invalidate(ctx context.Context) error
}

// Request описывает одну попытку оформления: снимок корзины и данные оплаты.
type Request struct {
	EmployeeID int64
	Lines      []model.CartLine
	Method     model.PaymentMethod
	Tendered   string
}

// Outcome содержит конечный результат попытки.
// Err всегда один из классифицированных видов ошибок model, Cause хранит исходную ошибку.
type Outcome struct {
	State   State
	OrderID int64
	Total   model.Money
	Change  model.Money
	Err     error
	Cause   error
}

// Orchestrator проводит попытки оформления продажи.
type Orchestrator struct {
	stock         StockReader
	ledger        Ledger
	logger        *zap.Logger
	metrics       *metrics.Checkout
	commitTimeout time.Duration
	scale         int32
}

// Option настраивает Orchestrator.
type Option func(*Orchestrator)

// WithMetrics подключает метрики.
func WithMetrics(m *metrics.Checkout) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithCommitTimeout ограничивает время записи в журнал.
func WithCommitTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.commitTimeout = d
		}
	}
}

// WithCurrencyScale задаёт число дробных знаков при разборе внесённой суммы.
func WithCurrencyScale(scale int32) Option {
	return func(o *Orchestrator) { o.scale = scale }
}

// New создаёт Orchestrator.
func New(stock StockReader, ledger Ledger, logger *zap.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{
		stock:         stock,
		ledger:        ledger,
		logger:        logger,
		commitTimeout: defaultCommitTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Checkout выполняет попытку оформления. Отмена ctx учитывается только до этапа записи:
// начатая запись доводится до конца или откатывается целиком независимо от отмены.
func (o *Orchestrator) Checkout(ctx context.Context, req Request, observe Observer) Outcome {
	m := newMachine(observe)

	if err := m.advance(StateValidating); err != nil {
		return o.fail(m, req, err)
	}
	lines, err := o.validate(ctx, req.Lines)
	if err != nil {
		return o.fail(m, req, err)
	}

	if err := o.proceed(ctx, m, StateReconciling); err != nil {
		return o.fail(m, req, err)
	}
	total, payment, err := o.reconcile(lines, req.Method, req.Tendered)
	if err != nil {
		return o.fail(m, req, err)
	}

	if err := o.proceed(ctx, m, StateCommitting); err != nil {
		return o.fail(m, req, err)
	}
	orderID, err := o.commit(ctx, model.OrderDraft{
		EmployeeID: req.EmployeeID,
		Lines:      lines,
		Total:      total,
		Payment:    payment,
	})
	if err != nil {
		return o.fail(m, req, err)
	}

	if inv, ok := o.stock.(invalidator); ok {
		if err := inv.Invalidate(context.WithoutCancel(ctx)); err != nil {
			o.logger.Warn("catalog invalidation failed", zap.Error(err))
		}
	}

	if err := m.advance(StateSucceeded); err != nil {
		return o.fail(m, req, err)
	}

	o.metrics.ObserveOutcome(nil)
	o.logger.Info("checkout succeeded",
		zap.Int64("orderID", orderID),
		zap.Int64("employeeID", req.EmployeeID),
		zap.Int64("total", int64(total)),
		zap.String("paymentMethod", string(payment.Method)),
	)

	return Outcome{
		State:   StateSucceeded,
		OrderID: orderID,
		Total:   total,
		Change:  payment.Change,
	}
}

func (o *Orchestrator) proceed(ctx context.Context, m *machine, next State) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: before %s", model.ErrCheckoutCancelled, next)
	}
	return m.advance(next)
}

// validate перечитывает живые остатки и возвращает строки с пересчитанными суммами.
func (o *Orchestrator) validate(ctx context.Context, lines []model.CartLine) ([]model.CartLine, error) {
	if len(lines) == 0 {
		return nil, model.ErrEmptyCart
	}

	out := make([]model.CartLine, 0, len(lines))
	for _, l := range lines {
		if l.Quantity < 1 {
			return nil, fmt.Errorf("%w: product %d quantity %d", model.ErrInvalidQuantity, l.ProductID, l.Quantity)
		}

		p, err := o.stock.GetByID(ctx, l.ProductID)
		if err != nil {
			if errors.Is(err, model.ErrProductNotFound) {
				return nil, fmt.Errorf("%w: product %d no longer exists", model.ErrInsufficientStock, l.ProductID)
			}
			return nil, fmt.Errorf("read stock for product %d: %w", l.ProductID, err)
		}
		if l.Quantity > p.Stock {
			return nil, fmt.Errorf("%w: product %d requested %d, available %d",
				model.ErrInsufficientStock, l.ProductID, l.Quantity, p.Stock)
		}

		sub, ok := l.UnitPrice.Times(l.Quantity)
		if !ok {
			return nil, fmt.Errorf("%w: product %d subtotal overflows", model.ErrInvalidQuantity, l.ProductID)
		}
		l.Subtotal = sub
		out = append(out, l)
	}
	return out, nil
}

// reconcile считает итог и сдачу. Для безналичной оплаты внесённая сумма равна итогу.
func (o *Orchestrator) reconcile(lines []model.CartLine, method model.PaymentMethod, tendered string) (model.Money, model.Payment, error) {
	var total model.Money
	for _, l := range lines {
		var ok bool
		if total, ok = total.Plus(l.Subtotal); !ok {
			return 0, model.Payment{}, fmt.Errorf("%w: order total overflows", model.ErrInvalidQuantity)
		}
	}

	if !method.Valid() {
		return 0, model.Payment{}, fmt.Errorf("%w: unknown payment method %q", model.ErrInvalidPayment, method)
	}

	if method != model.PaymentCash {
		return total, model.Payment{Method: method, Tendered: total}, nil
	}

	paid, err := validation.ParseAmount(tendered, o.scale)
	if err != nil {
		return 0, model.Payment{}, err
	}
	if paid < total {
		return 0, model.Payment{}, fmt.Errorf("%w: tendered %d is less than total %d", model.ErrInvalidPayment, paid, total)
	}

	return total, model.Payment{Method: method, Tendered: paid, Change: paid - total}, nil
}

func (o *Orchestrator) commit(ctx context.Context, draft model.OrderDraft) (int64, error) {
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.commitTimeout)
	defer cancel()

	start := time.Now()
	id, err := o.ledger.CommitOrder(commitCtx, draft)
	o.metrics.ObserveCommit(time.Since(start))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, fmt.Errorf("%w: commit exceeded %s", model.ErrLedgerUnavailable, o.commitTimeout)
		}
		return 0, err
	}
	return id, nil
}

func (o *Orchestrator) fail(m *machine, req Request, cause error) Outcome {
	kind := model.Classify(cause)
	m.state = StateFailed
	if m.observe != nil {
		m.observe(StateFailed)
	}

	o.metrics.ObserveOutcome(kind)
	o.logger.Warn("checkout failed",
		zap.Int64("employeeID", req.EmployeeID),
		zap.String("kind", kind.Error()),
		zap.Error(cause),
	)

	return Outcome{State: StateFailed, Err: kind, Cause: cause}
}
