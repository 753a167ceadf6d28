package register

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/mmeshcher/pos-checkout/internal/checkout"
)

// Attempt описывает одну попытку оформления. Прогресс приходит в Progress,
// конечный результат доставляется ровно один раз и доступен через Wait и Result.
type Attempt struct {
	ID string

	ctx      context.Context
	cancel   context.CancelFunc
	progress chan checkout.State
	done     chan struct{}
	once     sync.Once

	mu      sync.Mutex
	state   checkout.State
	outcome checkout.Outcome
}

func newAttempt(parent context.Context) *Attempt {
	ctx, cancel := context.WithCancel(parent)
	return &Attempt{
		ID:       uuid.NewString(),
		ctx:      ctx,
		cancel:   cancel,
		progress: make(chan checkout.State, 8),
		done:     make(chan struct{}),
		state:    checkout.StateIdle,
	}
}

// Progress возвращает канал этапов. Канал закрывается после доставки результата.
func (a *Attempt) Progress() <-chan checkout.State {
	return a.progress
}

// Done закрывается, когда результат доставлен.
func (a *Attempt) Done() <-chan struct{} {
	return a.done
}

// State возвращает последний пройденный этап.
func (a *Attempt) State() checkout.State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Result возвращает результат, если он уже доставлен.
func (a *Attempt) Result() (checkout.Outcome, bool) {
	select {
	case <-a.done:
		a.mu.Lock()
		defer a.mu.Unlock()
		return a.outcome, true
	default:
		return checkout.Outcome{}, false
	}
}

// Wait ждёт результат или отмену ctx.
func (a *Attempt) Wait(ctx context.Context) (checkout.Outcome, error) {
	select {
	case <-a.done:
		out, _ := a.Result()
		return out, nil
	case <-ctx.Done():
		return checkout.Outcome{}, ctx.Err()
	}
}

// Cancel просит прервать попытку. После начала записи отмена не действует.
func (a *Attempt) Cancel() {
	a.cancel()
}

func (a *Attempt) observe(s checkout.State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()

	select {
	case a.progress <- s:
	default:
	}
}

func (a *Attempt) finish(out checkout.Outcome) {
	a.once.Do(func() {
		a.mu.Lock()
		a.state = out.State
		a.outcome = out
		a.mu.Unlock()

		a.cancel()
		close(a.progress)
		close(a.done)
	})
}
