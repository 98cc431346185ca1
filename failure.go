package guard

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidWorkload is wrapped by every *ConfigError.
	ErrInvalidWorkload = errors.New("invalid workload")
	// ErrRunReused is returned when starting a Run that is not idle.
	ErrRunReused = errors.New("run has already been started")
	// ErrRunNotStarted is returned when reporting on a Run that was never started.
	ErrRunNotStarted = errors.New("run has not been started")
	// ErrPoisoned is wrapped by the panic value of any operation on a poisoned Counter.
	ErrPoisoned = errors.New("counter is poisoned")
)

// ConfigError reports a workload parameter that cannot be run. It is always returned before any
// worker is launched.
type ConfigError struct {
	Field string
	Value int
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s must not be negative, got %d", ErrInvalidWorkload, e.Field, e.Value)
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidWorkload
}

// WorkerError is the failure of a single worker. Op is the index of the operation the worker was
// about to perform when it failed.
type WorkerError struct {
	Worker string
	Op     int
	Err    error
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("worker %s failed at operation %d: %s", e.Worker, e.Op, e.Err)
}

func (e *WorkerError) Unwrap() error {
	return e.Err
}

// PanicError is produced when a task panics instead of returning an error.
type PanicError struct {
	Value any
	Stack StackTrace
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap returns the panic value if it was itself an error.
func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

// RunError aggregates every worker failure from a single Run. Its presence means the final balance
// cannot be trusted, so no balance is reported alongside it.
type RunError struct {
	Failures []error
}

func (e *RunError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d worker(s) failed; final balance is not trustworthy", len(e.Failures))
	for _, f := range e.Failures {
		sb.WriteString("\n\t")
		sb.WriteString(f.Error())
	}
	return sb.String()
}

func (e *RunError) Unwrap() []error {
	return e.Failures
}

// PoisonedError is the panic value of every operation on a Counter after a mutation panicked while
// holding its lock.
type PoisonedError struct {
	// Cause is the value the original mutation panicked with
	Cause any
	Stack StackTrace
}

func (e *PoisonedError) Error() string {
	return fmt.Sprintf("%s: mutation panicked while holding the lock: %v", ErrPoisoned, e.Cause)
}

func (e *PoisonedError) Unwrap() error {
	return ErrPoisoned
}

// OverflowError is the panic value of an Increment or Decrement whose result does not fit in the
// counter's type. The balance is left unchanged.
type OverflowError struct {
	Balance any
	Amount  any
	Op      Op
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("%s of %v by %v overflows", e.Op, e.Balance, e.Amount)
}
