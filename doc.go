// guard: locked balances, and the goroutines that fight over them

/*
Package guard provides a mutex-guarded balance and a harness that hammers it with concurrent
workers, so the absence of lost updates can be asserted exactly.

The pieces, from the bottom up:

- Guarded balance: [Counter], [NewCounter]
- Named goroutine group with failure collection: [Group], [NewGroup], [TaskInfo]
- Concurrent workload harness: [Harness], [Workload], [Run]
- Errors: [RunError], [WorkerError], [PanicError], [ConfigError], [PoisonedError]
- Supporting tools: [StackTrace] for recovered panics, [SignalManager] for turning OS signals into
  cancellation

# Counter

[Counter] holds the entire read-modify-write of every Increment and Decrement under its lock, and
releases it with defer on every exit path. A mutation that panics part way through leaves the
Counter poisoned; from then on every operation panics with a [*PoisonedError] instead of handing
out a balance that may be wrong.

# Harness

A [Run] moves through [StateIdle], [StateRunning], [StateAllJoined] and [StateReported]. Workers
are launched with [Group.Go], which recovers panics and records every failure. [Run.Report] waits
for all of them before reading the balance. If any worker failed, Report returns a [*RunError]
listing every failure and no balance.

	h := guard.NewHarness(guard.Config{})
	balance, err := h.Run(ctx, 10, 1000, 100) // always 0, or an error

# Signals

[SignalManager] runs callbacks, in reverse order of registration, the first time a signal is
triggered. The bankdemo command uses it to cancel a running workload on SIGINT or SIGTERM.
*/
package guard
