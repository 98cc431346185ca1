package guard

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/exp/slices"
)

// Group provides [sync.WaitGroup]-like functionality, with the following changes:
//
//  1. Tasks are named, added one at a time with [Group.Add] or launched with [Group.Go]
//  2. [Group.Wait] returns a channel, so it can be selected over
//  3. Tasks launched with Go have their errors and panics collected, all of them, not just the
//     first
//  4. The set of running tasks can be fetched with [Group.Tasks]
//
// A Group never cancels its tasks; a failing task does not affect the others, and waiting always
// completes once every task has returned.
type Group struct {
	mu       sync.Mutex
	name     string
	count    uint
	allDone  chan struct{}
	tasks    map[string]uint
	failures []error
}

// TaskInfo describes a set of running tasks with a particular name, as returned by [Group.Tasks].
type TaskInfo struct {
	Name string `json:"name"`
	// Count is the number of running tasks named Name. It is never zero.
	Count uint `json:"count"`
}

// NewGroup creates a new, empty Group with the given name
func NewGroup(name string) *Group {
	return &Group{name: name}
}

func (g *Group) Name() string {
	return g.name
}

func (g *Group) initialize() {
	if g.tasks == nil {
		g.tasks = make(map[string]uint)
	}
}

// Add adds a task with the name to the Group. Add may be called multiple times with the same name,
// in which case each instance is counted separately.
//
// Waiting on the Group will not complete until there is exactly one call to [Group.Done] with a
// matching name for each call to Add.
func (g *Group) Add(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.initialize()

	g.count += 1
	g.tasks[name] += 1
}

// Done marks a task with the name as completed.
//
// Done will panic if there aren't any remaining tasks with the name.
func (g *Group) Done(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.doneLocked(name)
}

func (g *Group) doneLocked(name string) {
	g.initialize()

	c := g.tasks[name]
	if c == 0 {
		panic(fmt.Sprintf("zero remaining tasks with name %q", name))
	}

	if c == 1 {
		delete(g.tasks, name)
	} else {
		g.tasks[name] = c - 1
	}

	g.count -= 1
	if g.count == 0 && g.allDone != nil {
		close(g.allDone)
		g.allDone = nil
	}
}

// Go runs f in a new goroutine as a task with the given name.
//
// If f returns an error or panics, the failure is recorded and can be retrieved with
// [Group.Failures] or [Group.Err]. Panics are converted to a [*PanicError] carrying the stack of
// the panicking goroutine, with the stack of the caller of Go as its parent.
func (g *Group) Go(name string, f func() error) {
	g.Add(name)
	g.launch(name, f, CaptureStack(nil, 1))
}

// Launch is like [Group.Go], except that the task must already have been added with [Group.Add].
//
// Adding every task before launching any of them guarantees that Wait cannot complete while some
// of the tasks are yet to start, even if the first ones finish immediately.
func (g *Group) Launch(name string, f func() error) {
	g.launch(name, f, CaptureStack(nil, 1))
}

func (g *Group) launch(name string, f func() error, origin StackTrace) {
	go func() {
		var err error
		defer func() {
			if r := recover(); r != nil {
				err = &PanicError{Value: r, Stack: CaptureStack(&origin, 1)}
			}
			g.finish(name, err)
		}()

		err = f()
	}()
}

// finish records the task's result before marking it done, so that anyone who observed Wait
// completing also observes the failure.
func (g *Group) finish(name string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err != nil {
		g.failures = append(g.failures, err)
	}
	g.doneLocked(name)
}

// Wait returns a channel that is closed once all tasks have been completed.
func (g *Group) Wait() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.count == 0 {
		return closedChan
	}

	if g.allDone == nil {
		g.allDone = make(chan struct{})
	}

	return g.allDone
}

// TryWait waits on the Group, returning early with ctx.Err() if the context is canceled.
//
// If the context is already canceled when TryWait is called, this method will always return the
// context's error.
func (g *Group) TryWait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-g.Wait():
		return nil
	}
}

// Finished returns whether all tasks are finished, i.e. if waiting will immediately complete.
func (g *Group) Finished() bool {
	return isClosed(g.Wait())
}

// Tasks returns the set of running tasks, sorted by name.
func (g *Group) Tasks() []TaskInfo {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.tasks) == 0 {
		return nil
	}

	ts := make([]TaskInfo, 0, len(g.tasks))
	for name, count := range g.tasks {
		ts = append(ts, TaskInfo{Name: name, Count: count})
	}
	slices.SortFunc(ts, func(a, b TaskInfo) bool { return a.Name < b.Name })
	return ts
}

// Failures returns every failure recorded so far by tasks started with [Group.Go], in the order
// they finished.
func (g *Group) Failures() []error {
	g.mu.Lock()
	defer g.mu.Unlock()

	return slices.Clone(g.failures)
}

// Err returns all recorded failures combined with [errors.Join], or nil if there were none.
func (g *Group) Err() error {
	return errors.Join(g.Failures()...)
}
