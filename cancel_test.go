package runner

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStopController(t *testing.T) {
	t.Run("initial state", func(t *testing.T) {
		c := NewStopController()
		require.False(t, c.StopRequested())
		require.False(t, c.UserStopped())
	})

	t.Run("request stop is idempotent", func(t *testing.T) {
		c := NewStopController()
		c.RequestStop()
		c.RequestStop()
		require.True(t, c.StopRequested())
		require.True(t, c.UserStopped())
	})

	t.Run("reset clears for a new session", func(t *testing.T) {
		c := NewStopController()
		c.RequestStop()
		c.Reset()
		require.False(t, c.StopRequested())
		require.False(t, c.UserStopped())
	})

	t.Run("concurrent requests", func(t *testing.T) {
		c := NewStopController()
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				c.RequestStop()
			}()
		}
		wg.Wait()
		require.True(t, c.StopRequested())
	})
}
