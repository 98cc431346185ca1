package guard_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slices"

	"github.com/sharnoff/guard"
)

func TestSignalCallbackOrdering(t *testing.T) {
	t.Parallel()

	var history []int
	record := func(x int) func(context.Context) error {
		return func(context.Context) error {
			history = append(history, x)
			return nil
		}
	}

	sig := "signal"
	mgr := guard.NewSignalManager()
	defer mgr.Stop()

	ctx := context.Background()
	require.NoError(t, mgr.On(sig, ctx, record(1), record(2)))
	require.NoError(t, mgr.On(sig, ctx, record(3)))
	require.NoError(t, mgr.On("other", ctx, record(100)))

	require.NoError(t, mgr.Trigger(sig, ctx))
	assert.True(t, slices.Equal(history, []int{3, 2, 1}), "bad ordering, got: %v", history)
	assert.True(t, mgr.Triggered(sig))
	assert.False(t, mgr.Triggered("other"))

	// triggering again does nothing
	require.NoError(t, mgr.Trigger(sig, ctx))
	assert.Len(t, history, 3)

	// registering after the trigger runs immediately, still in reverse order
	require.NoError(t, mgr.On(sig, ctx, record(4), record(5)))
	assert.Equal(t, []int{3, 2, 1, 5, 4}, history)
}

func TestSignalErrorStopsRemainingCallbacks(t *testing.T) {
	t.Parallel()

	sig := "signal"
	mgr := guard.NewSignalManager()
	defer mgr.Stop()

	testErr := errors.New("callback failed")
	ran := map[string]bool{}
	ctx := context.Background()

	_ = mgr.On(sig, ctx, func(context.Context) error {
		ran["first"] = true
		return nil
	})
	_ = mgr.On(sig, ctx, func(context.Context) error {
		ran["second"] = true
		return testErr
	})
	_ = mgr.On(sig, ctx, func(context.Context) error {
		ran["third"] = true
		return nil
	})

	assert.ErrorIs(t, mgr.Trigger(sig, ctx), testErr)
	assert.Equal(t, map[string]bool{"second": true, "third": true}, ran)
}

func TestSignalContext(t *testing.T) {
	t.Parallel()

	type shutdown struct{}

	mgr := guard.NewSignalManager()
	defer mgr.Stop()

	ctx := mgr.Context(shutdown{})
	require.NoError(t, ctx.Err())
	assert.Same(t, ctx, mgr.Context(shutdown{}))

	require.NoError(t, mgr.Trigger(shutdown{}, context.Background()))
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	assert.Error(t, mgr.Context(shutdown{}).Err())
}

func TestSignalStop(t *testing.T) {
	t.Parallel()

	mgr := guard.NewSignalManager()
	ctx := mgr.Context("signal")

	called := false
	_ = mgr.On("signal", context.Background(), func(context.Context) error {
		called = true
		return nil
	})

	mgr.Stop()
	mgr.Stop() // ok to call twice

	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	require.NoError(t, mgr.Trigger("signal", context.Background()))
	assert.False(t, called)
	assert.Error(t, mgr.Context("signal").Err())
}
