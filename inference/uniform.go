package inference

import (
	"github.com/fourline/fourline/game"
)

// UniformClient is the no-model oracle: flat policy, neutral value. With it
// the search degrades to plain visit-count MCTS, which is handy for trying
// the engine before any network exists.
type UniformClient struct{}

func (UniformClient) Predict(states []game.State) ([][]float32, []float32, error) {
	policies := make([][]float32, len(states))
	values := make([]float32, len(states))
	for i := range states {
		policies[i] = make([]float32, game.Cols)
	}
	return policies, values, nil
}
