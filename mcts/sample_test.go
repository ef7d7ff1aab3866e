package mcts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"

	"github.com/fourline/fourline/rules"
)

func TestSampleBestNode(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	t.Run("before any expansion", func(t *testing.T) {
		e := NewEngine(Config{}, newMockOracle(), rules.Start())
		_, err := e.SampleBestNode(1, rng)
		require.ErrorIs(t, err, ErrNotExpanded)
	})

	t.Run("temperature zero is deterministic", func(t *testing.T) {
		e := NewEngine(Config{}, newMockOracle(), rules.Start())
		require.NoError(t, e.Expand(context.Background(), e.Root()))
		e.Root().Children()[6].visits = 10

		for i := 0; i < 5; i++ {
			n, err := e.SampleBestNode(0, rng)
			require.NoError(t, err)
			require.Equal(t, 6, n.Move())
		}
	})

	t.Run("samples follow the visit distribution", func(t *testing.T) {
		e := NewEngine(Config{}, newMockOracle(), rules.Start())
		require.NoError(t, e.Expand(context.Background(), e.Root()))
		// All visits on columns 2 and 3; nothing else should ever come back.
		e.Root().Children()[2].visits = 80
		e.Root().Children()[3].visits = 20

		seen := map[int]int{}
		for i := 0; i < 200; i++ {
			n, err := e.SampleBestNode(1, rng)
			require.NoError(t, err)
			seen[n.Move()]++
		}
		require.Len(t, seen, 2)
		require.Greater(t, seen[2], seen[3])
	})
}
