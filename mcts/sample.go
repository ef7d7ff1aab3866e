package mcts

import (
	"math"

	"golang.org/x/exp/rand"
)

// SampleBestNode picks a root child from the visit-count distribution with
// the given temperature instead of deterministically: temperature 1 samples
// proportionally to visits, higher values flatten the distribution, and
// values at or below zero fall back to ChooseBestNode. Useful when the driver
// wants varied openings rather than the single strongest line.
func (e *Engine) SampleBestNode(temperature float64, rng *rand.Rand) (*Node, error) {
	if temperature <= 0 {
		return e.ChooseBestNode()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.root.children == nil {
		return nil, ErrNotExpanded
	}

	weights := make([]float64, len(e.root.children))
	total := 0.0
	for i, child := range e.root.children {
		weights[i] = math.Pow(float64(child.visits), 1/temperature)
		total += weights[i]
	}
	if total <= 0 {
		// Nothing visited yet; fall back to the priors.
		for i, child := range e.root.children {
			weights[i] = float64(child.prior)
			total += weights[i]
		}
	}
	if total <= 0 {
		return e.root.children[0], nil
	}

	r := rng.Float64() * total
	for i, w := range weights {
		r -= w
		if r <= 0 {
			return e.root.children[i], nil
		}
	}
	return e.root.children[len(e.root.children)-1], nil
}
