package rules

import (
	"github.com/fourline/fourline/game"
)

const (
	// Channel layout for the network input, (C, H, W):
	//   0: discs of the player to move
	//   1: discs of the opponent
	//   2: side-to-move plane (all ones when Player1 is to move)
	Channels    = 3
	EncodedSize = Channels * game.Rows * game.Cols
)

// Encode converts a position into the float32 tensor the oracle consumes.
// The board is always presented from the mover's perspective so the network
// never has to learn two colors.
func Encode(s game.State) []float32 {
	data := make([]float32, EncodedSize)
	EncodeInto(s, data)
	return data
}

// EncodeInto writes the encoding of s into dst, which must have room for
// EncodedSize floats. It lets the batching oracle reuse one flat buffer.
func EncodeInto(s game.State, dst []float32) {
	_ = dst[EncodedSize-1]
	for i := range dst[:EncodedSize] {
		dst[i] = 0
	}

	set := func(c, row, col int, val float32) {
		dst[c*game.Rows*game.Cols+row*game.Cols+col] = val
	}

	mover := s.Turn
	for row := 0; row < game.Rows; row++ {
		for col := 0; col < game.Cols; col++ {
			switch s.Cells[row][col] {
			case mover:
				set(0, row, col, 1)
			case mover.Opponent():
				set(1, row, col, 1)
			}
		}
	}

	if s.Turn == game.Player1 {
		for row := 0; row < game.Rows; row++ {
			for col := 0; col < game.Cols; col++ {
				set(2, row, col, 1)
			}
		}
	}
}
