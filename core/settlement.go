package core

// Status is the terminal state of a settled task.
type Status string

const (
	// StatusFulfilled marks a task whose work completed successfully.
	StatusFulfilled Status = "fulfilled"
	// StatusRejected marks a task that started (or was admitted) and failed.
	StatusRejected Status = "rejected"
	// StatusSkipped marks a task that never started.
	StatusSkipped Status = "skipped"
)

// Outcome is the closed set of settlement variants. Concrete outcomes
// implement the unexported isOutcome marker.
type Outcome interface{ isOutcome() }

// Fulfilled carries the value produced by a successful task.
type Fulfilled struct {
	Value any
}

func (Fulfilled) isOutcome() {}

// Rejected carries the failure of a task. Err matches one of the taxonomy
// sentinels through errors.Is.
type Rejected struct {
	Err error
}

func (Rejected) isOutcome() {}

// Skipped carries the reason a queued task was never started
// (ErrDeadlineExceeded or ErrCancelled).
type Skipped struct {
	Reason error
}

func (Skipped) isOutcome() {}

// Settlement is the immutable terminal record for exactly one submitted task.
type Settlement struct {
	TaskID  string
	Outcome Outcome
}

// Fulfill builds a fulfilled settlement.
func Fulfill(taskID string, v any) Settlement {
	return Settlement{TaskID: taskID, Outcome: Fulfilled{Value: v}}
}

// Reject builds a rejected settlement.
func Reject(taskID string, err error) Settlement {
	return Settlement{TaskID: taskID, Outcome: Rejected{Err: err}}
}

// Skip builds a skipped settlement.
func Skip(taskID string, reason error) Settlement {
	return Settlement{TaskID: taskID, Outcome: Skipped{Reason: reason}}
}

// Status returns the variant tag of the outcome.
func (s Settlement) Status() Status {
	switch s.Outcome.(type) {
	case Fulfilled:
		return StatusFulfilled
	case Rejected:
		return StatusRejected
	case Skipped:
		return StatusSkipped
	default:
		return ""
	}
}

// Value returns the fulfilled value and whether the settlement is fulfilled.
func (s Settlement) Value() (any, bool) {
	f, ok := s.Outcome.(Fulfilled)
	if !ok {
		return nil, false
	}
	return f.Value, true
}

// Err returns the rejection error or skip reason, nil when fulfilled.
func (s Settlement) Err() error {
	switch o := s.Outcome.(type) {
	case Rejected:
		return o.Err
	case Skipped:
		return o.Reason
	default:
		return nil
	}
}
