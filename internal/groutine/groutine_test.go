package groutine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoNamesTheGoroutine(t *testing.T) {
	names := make(chan string, 1)
	Go(nil, "worker-42", func(ctx context.Context) {
		names <- GetName(ctx)
	})

	select {
	case name := <-names:
		assert.Equal(t, "worker-42", name)
	case <-time.After(time.Second):
		t.Fatal("goroutine did not run")
	}

	assert.Empty(t, GetName(context.Background()))
	assert.Empty(t, GetName(nil)) //nolint:staticcheck // nil context is handled
}

func TestAwait(t *testing.T) {
	t.Run("returns the call result", func(t *testing.T) {
		v, err := Await(context.Background(), "answer", func() (int, error) { return 42, nil })
		require.NoError(t, err)
		assert.Equal(t, 42, v)

		_, err = Await(context.Background(), "failing", func() (int, error) { return 0, errors.New("boom") })
		assert.EqualError(t, err, "boom")
	})

	t.Run("gives up when the context ends", func(t *testing.T) {
		release := make(chan struct{})
		defer close(release)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		start := time.Now()
		_, err := Await(ctx, "blocked", func() (string, error) {
			<-release
			return "late", nil
		})

		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Less(t, time.Since(start), time.Second)
	})
}
