package guard

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
)

// Op is the kind of mutation a worker applies to the balance.
type Op int

const (
	OpIncrease Op = iota
	OpDecrease
)

func (o Op) String() string {
	switch o {
	case OpIncrease:
		return "increase"
	case OpDecrease:
		return "decrease"
	default:
		return fmt.Sprintf("Op(%d)", int(o))
	}
}

// WorkUnit describes what a single worker does: Repeat applications of Op with Amount.
type WorkUnit struct {
	Op     Op
	Repeat int
	Amount int64
}

func (u WorkUnit) apply(c *Counter[int64]) {
	switch u.Op {
	case OpIncrease:
		c.Increment(u.Amount)
	case OpDecrease:
		c.Decrement(u.Amount)
	default:
		panic(fmt.Sprintf("unknown op %d", int(u.Op)))
	}
}

// WorkerInfo identifies one worker within a Run.
type WorkerInfo struct {
	// Name is "deposit-<Index>" or "withdraw-<Index>"
	Name  string
	Index int
	Unit  WorkUnit
}

// StepFunc is called by a worker before each of its operations, outside of the counter's lock.
// Returning an error, or panicking, fails the worker; it performs no further operations.
type StepFunc func(ctx context.Context, w WorkerInfo, op int) error

// Workload is the fixed set of workers launched by a Run. Each depositor increments the balance by
// Amount, Repeat times, and each withdrawer decrements it by the same.
type Workload struct {
	Depositors  int
	Withdrawers int
	Repeat      int
	Amount      int64

	// Step, if not nil, is called before every operation
	Step StepFunc
}

// Pairs returns the balanced workload: pairs depositors and pairs withdrawers, each performing
// repeat operations of amount. Its expected final balance is always the initial balance.
func Pairs(pairs, repeat int, amount int64) Workload {
	return Workload{
		Depositors:  pairs,
		Withdrawers: pairs,
		Repeat:      repeat,
		Amount:      amount,
	}
}

// Validate returns a [*ConfigError] for each negative count, joined together, or nil if the
// workload can be run.
func (w Workload) Validate() error {
	var errs []error
	check := func(field string, v int) {
		if v < 0 {
			errs = append(errs, &ConfigError{Field: field, Value: v})
		}
	}

	check("depositors", w.Depositors)
	check("withdrawers", w.Withdrawers)
	check("repeat", w.Repeat)

	return errors.Join(errs...)
}

// Expected returns the balance the workload must produce when started from initial, regardless of
// how its operations interleave.
//
// ok is false if the net change or the resulting balance does not fit in an int64. Running such a
// workload fails with an [*OverflowError] whenever the Counter passes the limit.
func (w Workload) Expected(initial int64) (balance int64, ok bool) {
	perWorker, ok := mulInt64(int64(w.Repeat), w.Amount)
	if !ok {
		return 0, false
	}
	in, okIn := mulInt64(int64(w.Depositors), perWorker)
	out, okOut := mulInt64(int64(w.Withdrawers), perWorker)
	if !okIn || !okOut {
		return 0, false
	}
	net, ok := subOK(in, out)
	if !ok {
		return 0, false
	}
	return addOK(initial, net)
}

func mulInt64(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	if (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return 0, false
	}
	p := a * b
	if p/b != a {
		return 0, false
	}
	return p, true
}

func (w Workload) workers() []WorkerInfo {
	ws := make([]WorkerInfo, 0, w.Depositors+w.Withdrawers)
	for i := 0; i < w.Depositors; i++ {
		ws = append(ws, WorkerInfo{
			Name:  fmt.Sprintf("deposit-%d", i),
			Index: i,
			Unit:  WorkUnit{Op: OpIncrease, Repeat: w.Repeat, Amount: w.Amount},
		})
	}
	for i := 0; i < w.Withdrawers; i++ {
		ws = append(ws, WorkerInfo{
			Name:  fmt.Sprintf("withdraw-%d", i),
			Index: i,
			Unit:  WorkUnit{Op: OpDecrease, Repeat: w.Repeat, Amount: w.Amount},
		})
	}
	return ws
}

// Config holds Harness construction parameters.
type Config struct {
	// InitialBalance is the balance each Run's Counter starts from. Defaults to zero.
	InitialBalance int64

	// Logger receives progress and failure messages. If nil, log.Default() is used.
	Logger *log.Logger
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.Logger == nil {
		out.Logger = log.Default()
	}
	return out
}

// Harness runs workloads against freshly created Counters.
type Harness struct {
	cfg Config
}

func NewHarness(cfg Config) *Harness {
	return &Harness{cfg: cfg.withDefaults()}
}

// Run launches pairCount depositors and pairCount withdrawers, each performing repeatCount
// operations of amount, waits for all of them, and returns the final balance.
//
// See [Harness.RunWorkload] for error handling.
func (h *Harness) Run(ctx context.Context, pairCount, repeatCount int, amount int64) (int64, error) {
	return h.RunWorkload(ctx, Pairs(pairCount, repeatCount, amount))
}

// RunWorkload starts a new [Run] for the workload and returns its report.
//
// The returned error is a [*ConfigError] (or several, joined) if the workload is invalid, in which
// case no worker was launched. Otherwise it is nil or a [*RunError] describing every worker that
// failed; when it is a *RunError the returned balance is zero and must not be used.
//
// Canceling ctx stops each worker before its next operation. The canceled workers are reported as
// failures.
func (h *Harness) RunWorkload(ctx context.Context, w Workload) (int64, error) {
	run := h.NewRun(w)
	if err := run.Start(ctx); err != nil {
		return 0, err
	}
	return run.Report()
}

// NewRun creates an idle Run for the workload, with its own Counter at the configured initial
// balance.
func (h *Harness) NewRun(w Workload) *Run {
	return &Run{
		logger:   h.cfg.Logger,
		workload: w,
		counter:  NewCounter(h.cfg.InitialBalance),
		group:    NewGroup("run"),
		joined:   make(chan struct{}),
	}
}

// State is the lifecycle stage of a Run. A Run only ever moves forward through the states, and is
// never reused once Reported.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateAllJoined
	StateReported
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateAllJoined:
		return "all-joined"
	case StateReported:
		return "reported"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Run is a single execution of a Workload: the set of workers, the Counter they share, and the
// join that waits for all of them.
type Run struct {
	logger   *log.Logger
	workload Workload
	counter  *Counter[int64]
	group    *Group
	origin   StackTrace

	// closed once Start has launched every worker and all of them have finished
	joined chan struct{}

	mu    sync.Mutex
	state State

	reportOnce sync.Once
	balance    int64
	err        error
}

// Start validates the workload and launches every worker. It does not wait for them.
//
// Start returns [ErrRunReused] if the Run is not idle, and the workload's validation error if it
// is invalid; in both cases nothing is launched.
func (r *Run) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateIdle {
		return ErrRunReused
	}
	if err := r.workload.Validate(); err != nil {
		return err
	}

	r.state = StateRunning
	r.origin = CaptureStack(nil, 1)

	r.logger.Printf(
		"[run] starting %d depositors and %d withdrawers (repeat=%d, amount=%d)",
		r.workload.Depositors, r.workload.Withdrawers, r.workload.Repeat, r.workload.Amount,
	)

	workers := r.workload.workers()
	for _, w := range workers {
		r.group.Add(w.Name)
	}
	for _, w := range workers {
		r.group.Launch(w.Name, r.worker(ctx, w))
	}

	allDone := r.group.Wait()
	go func() {
		<-allDone
		close(r.joined)
	}()
	return nil
}

func (r *Run) worker(ctx context.Context, w WorkerInfo) func() error {
	return func() (err error) {
		op := 0
		defer func() {
			if p := recover(); p != nil {
				err = &WorkerError{
					Worker: w.Name,
					Op:     op,
					Err:    &PanicError{Value: p, Stack: CaptureStack(&r.origin, 1)},
				}
			}
			if err != nil {
				r.logger.Printf("[worker %s] failed: %v", w.Name, err)
			}
		}()

		for ; op < w.Unit.Repeat; op++ {
			// only check between operations; never while holding the counter's lock
			if cerr := ctx.Err(); cerr != nil {
				return &WorkerError{Worker: w.Name, Op: op, Err: cerr}
			}
			if r.workload.Step != nil {
				if serr := r.workload.Step(ctx, w, op); serr != nil {
					return &WorkerError{Worker: w.Name, Op: op, Err: serr}
				}
			}
			w.Unit.apply(r.counter)
		}
		return nil
	}
}

// Wait returns a channel that is closed once every worker has finished, successfully or not.
//
// The channel is never closed before [Run.Start] has launched the workers; for a Run that is never
// started, it is never closed at all.
func (r *Run) Wait() <-chan struct{} {
	return r.joined
}

// TryWait waits for every worker to finish, returning early with ctx.Err() if the context is
// canceled first. Canceling ctx here does not stop the workers.
//
// TryWait returns [ErrRunNotStarted] if the Run is still idle.
func (r *Run) TryWait(ctx context.Context) error {
	if r.State() == StateIdle {
		return ErrRunNotStarted
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.joined:
		return nil
	}
}

// State returns the current lifecycle stage of the Run.
func (r *Run) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateRunning && isClosed(r.joined) {
		r.state = StateAllJoined
	}
	return r.state
}

// Tasks returns the workers that are still running, sorted by name.
func (r *Run) Tasks() []TaskInfo {
	return r.group.Tasks()
}

// Counter returns the Counter shared by the Run's workers.
func (r *Run) Counter() *Counter[int64] {
	return r.counter
}

// Report blocks until every worker has finished, then returns the final balance.
//
// If any worker failed, Report instead returns zero and a [*RunError] holding all of the failures.
// Report may be called more than once; every call returns the same result.
func (r *Run) Report() (int64, error) {
	if r.State() == StateIdle {
		return 0, ErrRunNotStarted
	}

	<-r.joined
	r.reportOnce.Do(r.report)
	return r.balance, r.err
}

func (r *Run) report() {
	failures := r.group.Failures()
	if err := r.counter.Poisoned(); err != nil {
		failures = append(failures, err)
	}

	if len(failures) != 0 {
		r.err = &RunError{Failures: failures}
		r.logger.Printf("[run] %d worker failure(s); not reporting a balance", len(failures))
	} else {
		r.balance = r.counter.Read()
		r.logger.Printf("[run] all workers finished, final balance %d", r.balance)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = StateReported
}
