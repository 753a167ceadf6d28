package register

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/pos-checkout/internal/model"
)

// Pool исполняет попытки оформления на фиксированном числе воркеров.
type Pool struct {
	jobs    chan func()
	workers int
	logger  *zap.Logger

	mu      sync.Mutex
	stopped bool
}

// NewPool создаёт пул с workers воркерами и очередью на queue задач.
func NewPool(workers, queue int, logger *zap.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queue < workers {
		queue = workers
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		jobs:    make(chan func(), queue),
		workers: workers,
		logger:  logger,
	}
}

// Submit ставит задачу в очередь без блокировки.
// Переполненная или остановленная очередь даёт ErrLedgerUnavailable.
func (p *Pool) Submit(job func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return fmt.Errorf("%w: checkout pool stopped", model.ErrLedgerUnavailable)
	}

	select {
	case p.jobs <- job:
		return nil
	default:
		return fmt.Errorf("%w: checkout queue is full", model.ErrLedgerUnavailable)
	}
}

// Run запускает воркеры и блокируется до отмены ctx. Задачи, оставшиеся
// в очереди к моменту остановки, выполняются до выхода.
func (p *Pool) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < p.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case job := <-p.jobs:
					job()
				}
			}
		})
	}

	err := g.Wait()

	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()

	drained := 0
	for {
		select {
		case job := <-p.jobs:
			job()
			drained++
		default:
			if drained > 0 {
				p.logger.Info("checkout pool drained", zap.Int("jobs", drained))
			}
			return err
		}
	}
}
