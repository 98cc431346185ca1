package guard

import (
	"sync"

	"golang.org/x/exp/constraints"
)

// Counter is a signed balance guarded by a mutex. The zero value is a usable Counter at zero.
//
// Every read-modify-write on the balance happens entirely while the lock is held, so concurrent
// Increment and Decrement calls never lose updates. A Counter must not be copied after first use.
//
// If a function passed to [Counter.Update] panics, the Counter becomes poisoned: the lock is still
// released, but every subsequent operation panics with a [*PoisonedError], because the balance may
// no longer reflect the operations that completed.
type Counter[T constraints.Signed] struct {
	mu      sync.Mutex
	balance T
	poison  *PoisonedError
}

// NewCounter returns a Counter starting at initial.
func NewCounter[T constraints.Signed](initial T) *Counter[T] {
	return &Counter[T]{balance: initial}
}

// Increment adds amount to the balance.
//
// Increment panics with an [*OverflowError] if the result would not fit in T; the balance is left
// unchanged in that case.
func (c *Counter[T]) Increment(amount T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkPoisoned()

	c.balance = checkedAdd(c.balance, amount)
}

// Decrement subtracts amount from the balance. Overflow is handled as in [Counter.Increment].
func (c *Counter[T]) Decrement(amount T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkPoisoned()

	c.balance = checkedSub(c.balance, amount)
}

// Update replaces the balance with f(balance), holding the lock for the duration of f.
//
// f must not call back into the Counter. If f panics, the Counter is poisoned and the panic is
// propagated to the caller.
func (c *Counter[T]) Update(f func(balance T) T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkPoisoned()

	defer func() {
		if r := recover(); r != nil {
			c.poison = &PoisonedError{Cause: r, Stack: CaptureStack(nil, 1)}
			panic(r)
		}
	}()

	c.balance = f(c.balance)
}

// Read returns the current balance.
func (c *Counter[T]) Read() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkPoisoned()

	return c.balance
}

// Poisoned returns the *PoisonedError describing why the Counter is unusable, or nil if it is
// healthy. Unlike the other methods, Poisoned never panics.
func (c *Counter[T]) Poisoned() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.poison == nil {
		return nil
	}
	return c.poison
}

// must be called with c.mu held
func (c *Counter[T]) checkPoisoned() {
	if c.poison != nil {
		panic(c.poison)
	}
}

func checkedAdd[T constraints.Signed](balance, amount T) T {
	sum, ok := addOK(balance, amount)
	if !ok {
		panic(&OverflowError{Balance: balance, Amount: amount, Op: OpIncrease})
	}
	return sum
}

func checkedSub[T constraints.Signed](balance, amount T) T {
	diff, ok := subOK(balance, amount)
	if !ok {
		panic(&OverflowError{Balance: balance, Amount: amount, Op: OpDecrease})
	}
	return diff
}

func addOK[T constraints.Signed](a, b T) (T, bool) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, false
	}
	return sum, true
}

func subOK[T constraints.Signed](a, b T) (T, bool) {
	diff := a - b
	if (b > 0 && diff > a) || (b < 0 && diff < a) {
		return 0, false
	}
	return diff, true
}
