package model

import "time"

// Execution is one history record: an invocation plus its outcome.
// At most one of Result and Error is set; both nil means the action
// succeeded without producing output. Records are append-only and
// ordered by execution time.
type Execution struct {
	Invocation Invocation `json:"invocation"`
	Result     *string    `json:"result,omitempty"`
	Error      *string    `json:"error,omitempty"`
	At         time.Time  `json:"at"`
}

// NewExecution stamps an invocation outcome with the current time.
func NewExecution(inv Invocation, result, execErr *string) Execution {
	return Execution{
		Invocation: inv,
		Result:     result,
		Error:      execErr,
		At:         time.Now().UTC(),
	}
}

// Failed reports whether the record carries an error.
func (e Execution) Failed() bool { return e.Error != nil }
