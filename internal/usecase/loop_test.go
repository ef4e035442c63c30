package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventLoopRunsTasksInOrder(t *testing.T) {
	t.Parallel()

	loop := newEventLoop()
	defer loop.close()

	var (
		mu  sync.Mutex
		got []int
	)
	for i := 0; i < 100; i++ {
		i := i
		require.True(t, loop.post(func() {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, i)
		}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, loop.idle(ctx))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestEventLoopPostFromInsideTask(t *testing.T) {
	t.Parallel()

	loop := newEventLoop()
	defer loop.close()

	var order []string
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, loop.call(ctx, func() {
		loop.post(func() { order = append(order, "nested") })
		order = append(order, "outer")
	}))
	require.NoError(t, loop.idle(ctx))

	require.NoError(t, loop.call(ctx, func() {
		assert.Equal(t, []string{"outer", "nested"}, order)
	}))
}

func TestEventLoopSurvivesPanics(t *testing.T) {
	t.Parallel()

	loop := newEventLoop()
	defer loop.close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	loop.post(func() { panic("boom") })
	ran := false
	require.NoError(t, loop.call(ctx, func() { ran = true }))
	assert.True(t, ran)
}

func TestEventLoopRejectsWorkAfterClose(t *testing.T) {
	t.Parallel()

	loop := newEventLoop()
	ran := false
	loop.post(func() { ran = true })
	loop.close()
	loop.close()

	assert.True(t, ran, "queued tasks drain before close returns")
	assert.False(t, loop.post(func() {}))
	assert.ErrorIs(t, loop.call(context.Background(), func() {}), ErrControllerClosed)
}
