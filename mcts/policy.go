package mcts

import (
	"github.com/chewxy/math32"

	"github.com/fourline/fourline/game"
)

// maskedSoftmax turns raw policy scores into a distribution over the legal
// columns only. Illegal columns always get exactly zero mass, so no residual
// prior can ever reach a nonexistent branch. A short or degenerate policy
// falls back to uniform over the legal columns.
func maskedSoftmax(policy []float32, legal [game.Cols]bool) [game.Cols]float32 {
	var out [game.Cols]float32

	legalCount := 0
	for _, ok := range legal {
		if ok {
			legalCount++
		}
	}
	if legalCount == 0 {
		return out
	}

	uniform := func() [game.Cols]float32 {
		for col, ok := range legal {
			if ok {
				out[col] = 1 / float32(legalCount)
			}
		}
		return out
	}

	if len(policy) < game.Cols {
		return uniform()
	}

	maxScore := math32.Inf(-1)
	for col, ok := range legal {
		if ok && policy[col] > maxScore {
			maxScore = policy[col]
		}
	}

	sum := float32(0)
	for col, ok := range legal {
		if ok {
			e := math32.Exp(policy[col] - maxScore)
			out[col] = e
			sum += e
		}
	}
	if sum <= 0 || math32.IsNaN(sum) || math32.IsInf(sum, 0) {
		return uniform()
	}

	inv := 1 / sum
	for col := range out {
		out[col] *= inv
	}
	return out
}
