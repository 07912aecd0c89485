package core

import (
	"fmt"
	"sync"
)

// Budget is the remaining execution allowance of a session. Both fields are
// expressed in absolute units (milliseconds, tokens) and never go negative.
type Budget struct {
	TimeRemainingMs int64 `json:"time_remaining_ms" yaml:"time_ms"`
	TokenRemaining  int64 `json:"token_remaining" yaml:"tokens"`
}

// Cost is the estimated price of a single call or task.
type Cost struct {
	TimeMs int64 `json:"time_ms"`
	Tokens int64 `json:"tokens"`
}

// IsZero reports whether both cost dimensions are zero.
func (c Cost) IsZero() bool { return c.TimeMs == 0 && c.Tokens == 0 }

// Add returns the component-wise sum of two costs.
func (c Cost) Add(o Cost) Cost { return Cost{TimeMs: c.TimeMs + o.TimeMs, Tokens: c.Tokens + o.Tokens} }

// Validate rejects negative cost components.
func (c Cost) Validate() error {
	if c.TimeMs < 0 {
		return NewInvalidConfigError("cost.time_ms", fmt.Sprintf("must not be negative, got %d", c.TimeMs))
	}
	if c.Tokens < 0 {
		return NewInvalidConfigError("cost.tokens", fmt.Sprintf("must not be negative, got %d", c.Tokens))
	}
	return nil
}

// Validate rejects negative budget components.
func (b Budget) Validate() error {
	if b.TimeRemainingMs < 0 {
		return NewInvalidConfigError("budget.time_remaining_ms", fmt.Sprintf("must not be negative, got %d", b.TimeRemainingMs))
	}
	if b.TokenRemaining < 0 {
		return NewInvalidConfigError("budget.token_remaining", fmt.Sprintf("must not be negative, got %d", b.TokenRemaining))
	}
	return nil
}

// Covers reports whether the budget can pay for c in both dimensions.
func (b Budget) Covers(c Cost) bool {
	return c.TimeMs <= b.TimeRemainingMs && c.Tokens <= b.TokenRemaining
}

// Spend returns the budget decremented by c, clamped at zero.
func (b Budget) Spend(c Cost) Budget {
	return Budget{
		TimeRemainingMs: max(b.TimeRemainingMs-c.TimeMs, 0),
		TokenRemaining:  max(b.TokenRemaining-c.Tokens, 0),
	}
}

// Refund returns the budget incremented by c.
func (b Budget) Refund(c Cost) Budget {
	return Budget{TimeRemainingMs: b.TimeRemainingMs + c.TimeMs, TokenRemaining: b.TokenRemaining + c.Tokens}
}

// BudgetLedger is the working budget of one dispatch round. Reservations are
// taken synchronously for the whole batch before any work starts so two
// concurrent calls can never pass the check against the same stale reading.
type BudgetLedger struct {
	mu        sync.Mutex
	remaining Budget
	reserved  Cost
}

// NewBudgetLedger creates a ledger seeded with the session budget.
func NewBudgetLedger(b Budget) *BudgetLedger {
	return &BudgetLedger{remaining: b}
}

// Reserve decrements the working budget by c or fails with a
// *BudgetExceededError without touching the ledger.
func (l *BudgetLedger) Reserve(c Cost) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.remaining.Covers(c) {
		return &BudgetExceededError{Requested: c, Remaining: l.remaining}
	}

	l.remaining = l.remaining.Spend(c)
	l.reserved = l.reserved.Add(c)

	return nil
}

// Release returns a previously reserved amount to the working budget.
func (l *BudgetLedger) Release(c Cost) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.remaining = l.remaining.Refund(c)
	l.reserved = Cost{
		TimeMs: max(l.reserved.TimeMs-c.TimeMs, 0),
		Tokens: max(l.reserved.Tokens-c.Tokens, 0),
	}
}

// Remaining returns the unreserved budget.
func (l *BudgetLedger) Remaining() Budget {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.remaining
}

// Reserved returns the sum of outstanding reservations.
func (l *BudgetLedger) Reserved() Cost {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.reserved
}
