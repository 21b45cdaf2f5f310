package eventloop

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startLoop(t *testing.T) (*Loop, context.CancelFunc) {
	t.Helper()

	l := New()
	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-l.Done()
	})

	return l, cancel
}

func TestLoop_RunsInPostOrder(t *testing.T) {
	l, _ := startLoop(t)

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		require.True(t, l.Post(func() { got = append(got, i) }))
	}

	// Call is queued behind every Post above.
	require.NoError(t, l.Call(context.Background(), func() error { return nil }))

	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestLoop_CallReturnsClosureError(t *testing.T) {
	l, _ := startLoop(t)

	want := errors.New("boom")
	err := l.Call(context.Background(), func() error { return want })

	assert.ErrorIs(t, err, want)
}

func TestLoop_SurvivesPanickingClosure(t *testing.T) {
	l, _ := startLoop(t)

	l.Post(func() { panic("handler bug") })

	ran := false
	require.NoError(t, l.Call(context.Background(), func() error {
		ran = true
		return nil
	}))
	assert.True(t, ran)
}

func TestLoop_PostAfterStop(t *testing.T) {
	l, cancel := startLoop(t)
	cancel()

	select {
	case <-l.Done():
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}

	assert.False(t, l.Post(func() {}))
	assert.ErrorIs(t, l.Call(context.Background(), func() error { return nil }), ErrStopped)
}
