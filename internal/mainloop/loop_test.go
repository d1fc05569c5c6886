package mainloop

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestLoop(t *testing.T) *Loop {
	t.Helper()
	l := New(16, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return l
}

func TestLoop_RunsTasksInPostOrder(t *testing.T) {
	l := newTestLoop(t)

	var got []int
	for i := 0; i < 50; i++ {
		i := i
		require.True(t, l.Post(func() { got = append(got, i) }))
	}
	require.NoError(t, l.Do(context.Background(), func() error { return nil }))

	require.Len(t, got, 50)
	for i, v := range got {
		require.Equal(t, i, v)
	}
}

func TestLoop_DoReturnsTaskError(t *testing.T) {
	l := newTestLoop(t)
	want := errors.New("boom")

	err := l.Do(context.Background(), func() error { return want })
	require.ErrorIs(t, err, want)
}

func TestLoop_PostFromManyGoroutinesIsSerialized(t *testing.T) {
	l := newTestLoop(t)

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				l.Post(func() { counter++ })
			}
		}()
	}
	wg.Wait()
	require.NoError(t, l.Do(context.Background(), func() error { return nil }))
	require.Equal(t, 2000, counter)
}

func TestLoop_PanicDoesNotStopLoop(t *testing.T) {
	l := newTestLoop(t)

	l.Post(func() { panic("bad task") })
	ran := false
	require.NoError(t, l.Do(context.Background(), func() error {
		ran = true
		return nil
	}))
	require.True(t, ran)
}

func TestLoop_PostAfterStop(t *testing.T) {
	l := New(1, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l.Run(ctx)

	require.False(t, l.Post(func() {}))
	require.ErrorIs(t, l.Do(context.Background(), func() error { return nil }), ErrStopped)
}
