package permit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestAcquireRelease(t *testing.T) {
	p := New("access")
	require.Equal(t, "access", p.Name())
	require.True(t, p.Available())

	require.NoError(t, p.Acquire(context.Background()))
	require.False(t, p.Available())

	require.NoError(t, p.Release())
	require.True(t, p.Available())

	acquired, released := p.Stats()
	require.Equal(t, uint64(1), acquired)
	require.Equal(t, uint64(1), released)
}

func TestReleaseNotHeld(t *testing.T) {
	p := New("gate")
	err := p.Release()
	require.ErrorIs(t, err, ErrNotHeld)
	require.EqualError(t, err, "release gate: permit not held")
}

func TestReleaseFromOtherGoroutine(t *testing.T) {
	p := New("access")
	require.NoError(t, p.Acquire(context.Background()))

	done := make(chan error)
	go func() {
		done <- p.Release()
	}()
	require.NoError(t, <-done)
	require.True(t, p.Available())
}

func TestAcquireBlocksUntilRelease(t *testing.T) {
	p := New("access")
	require.NoError(t, p.Acquire(context.Background()))

	got := make(chan error)
	go func() {
		got <- p.Acquire(context.Background())
	}()

	select {
	case <-got:
		t.Fatal("acquire did not block")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, p.Release())
	require.NoError(t, <-got)
	require.False(t, p.Available())
}

func TestAcquireContext(t *testing.T) {
	p := New("reader-count")
	require.NoError(t, p.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := p.Acquire(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Contains(t, err.Error(), "reader-count")
}

func TestCloseWakesWaiters(t *testing.T) {
	p := New("gate")
	require.NoError(t, p.Acquire(context.Background()))

	const waiters = 5
	errs := make(chan error, waiters)
	for i := 0; i < waiters; i++ {
		go func() {
			errs <- p.Acquire(context.Background())
		}()
	}

	time.Sleep(10 * time.Millisecond)
	p.Close()
	p.Close()

	for i := 0; i < waiters; i++ {
		require.ErrorIs(t, <-errs, ErrClosed)
	}
	require.ErrorIs(t, p.Release(), ErrClosed)
	require.ErrorIs(t, p.Acquire(context.Background()), ErrClosed)
	require.False(t, p.Available())
}

func TestCloseNil(t *testing.T) {
	var p *Permit
	require.NotPanics(t, p.Close)
}
