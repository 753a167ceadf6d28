package checkout

import (
	"errors"
	"fmt"
)

// State описывает этап попытки оформления продажи.
type State string

const (
	StateIdle        State = "idle"
	StateValidating  State = "validating"
	StateReconciling State = "reconciling"
	StateCommitting  State = "committing"
	StateSucceeded   State = "succeeded"
	StateFailed      State = "failed"
)

// ErrIllegalTransition возвращается при недопустимом переходе между этапами.
var ErrIllegalTransition = errors.New("illegal transition of checkout state")

var transitions = map[State][]State{
	StateIdle:        {StateValidating},
	StateValidating:  {StateReconciling, StateFailed},
	StateReconciling: {StateCommitting, StateFailed},
	StateCommitting:  {StateSucceeded, StateFailed},
}

// Terminal сообщает, является ли этап конечным.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// CanTransition сообщает, допустим ли переход из s в next.
func (s State) CanTransition(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Observer получает уведомление о каждом новом этапе попытки.
type Observer func(State)

type machine struct {
	state   State
	observe Observer
}

func newMachine(observe Observer) *machine {
	return &machine{state: StateIdle, observe: observe}
}

func (m *machine) advance(next State) error {
	if !m.state.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, m.state, next)
	}
	m.state = next
	if m.observe != nil {
		m.observe(next)
	}
	return nil
}
