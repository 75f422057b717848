package preprocess

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rosrad/rtagsd/pkg/rtags"
)

func TestSubmitSucceeds(t *testing.T) {
	pool := NewPool(2, 4, nil)
	defer pool.Stop()

	unit := rtags.NewUnit("/src/main.cc", "cc -E main.cc")
	require.NoError(t, pool.Submit(context.Background(), Job{Unit: unit, Command: []string{"echo", "preprocessed"}}))

	select {
	case res := <-pool.Results():
		require.NoError(t, res.Err)
		assert.Same(t, unit, res.Unit)
		assert.Contains(t, string(unit.Preprocessed), "preprocessed")
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for preprocess result")
	}
}

func TestSubmitCommandFailureReportsError(t *testing.T) {
	pool := NewPool(1, 4, nil)
	defer pool.Stop()

	unit := rtags.NewUnit("/src/main.cc", "cc -E main.cc")
	require.NoError(t, pool.Submit(context.Background(), Job{Unit: unit, Command: []string{"/no/such/binary"}}))

	select {
	case res := <-pool.Results():
		assert.Error(t, res.Err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for preprocess result")
	}
}

func TestSubmitAfterStopReturnsErrPoolClosed(t *testing.T) {
	pool := NewPool(1, 1, nil)
	pool.Stop()

	unit := rtags.NewUnit("/src/main.cc", "cc -E main.cc")
	err := pool.Submit(context.Background(), Job{Unit: unit, Command: []string{"echo", "x"}})
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestPoolBoundsConcurrency(t *testing.T) {
	pool := NewPool(1, 4, nil)
	defer pool.Stop()

	unit1 := rtags.NewUnit("/src/a.cc", "cc -E a.cc")
	unit2 := rtags.NewUnit("/src/b.cc", "cc -E b.cc")

	require.NoError(t, pool.Submit(context.Background(), Job{Unit: unit1, Command: []string{"sleep", "0.1"}}))
	require.NoError(t, pool.Submit(context.Background(), Job{Unit: unit2, Command: []string{"echo", "b"}}))

	seen := 0
	for seen < 2 {
		select {
		case <-pool.Results():
			seen++
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for preprocess results")
		}
	}
}

func TestStopIsIdempotent(t *testing.T) {
	pool := NewPool(1, 1, nil)
	pool.Stop()
	assert.NotPanics(t, func() { pool.Stop() })
}
