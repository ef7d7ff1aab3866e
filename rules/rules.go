// Package rules implements the Connect-4 game rules as pure functions over
// game.State: legal moves, transitions, terminal detection and the tensor
// encoding consumed by the inference packages.
package rules

import (
	"fmt"

	"github.com/fourline/fourline/game"
)

// WinLength is the number of aligned discs needed to win.
const WinLength = 4

// ErrIllegalMove is returned by Apply for a full or out-of-range column.
var ErrIllegalMove = fmt.Errorf("rules: illegal move")

// Start returns the starting position. Player1 always moves first.
func Start() game.State {
	return game.State{Turn: game.Player1}
}

// LegalMoves returns one boolean per column, in column order. This ordering is
// canonical: policy vectors and node children use the same indexing.
func LegalMoves(s game.State) [game.Cols]bool {
	var legal [game.Cols]bool
	if IsOver(s) {
		return legal
	}
	for col := 0; col < game.Cols; col++ {
		legal[col] = s.Cells[game.Rows-1][col] == game.NoPlayer
	}
	return legal
}

// LegalMoveCount counts the playable columns of s.
func LegalMoveCount(s game.State) int {
	n := 0
	for _, ok := range LegalMoves(s) {
		if ok {
			n++
		}
	}
	return n
}

// Apply drops the mover's disc into col and returns the resulting position
// with the turn passed to the opponent. The input state is not modified.
func Apply(s game.State, col int) (game.State, error) {
	if col < 0 || col >= game.Cols {
		return game.State{}, fmt.Errorf("%w: column %d out of range", ErrIllegalMove, col)
	}
	if IsOver(s) {
		return game.State{}, fmt.Errorf("%w: game is over", ErrIllegalMove)
	}
	row := s.ColumnHeight(col)
	if row >= game.Rows {
		return game.State{}, fmt.Errorf("%w: column %d is full", ErrIllegalMove, col)
	}

	next := s
	next.Cells[row][col] = s.Turn
	next.Turn = s.Turn.Opponent()
	return next, nil
}

// IsOver reports whether the game has ended, by a win or a full board.
func IsOver(s game.State) bool {
	return Winner(s) != game.NoPlayer || s.Full()
}

// Winner returns the winning player, or game.NoPlayer if nobody has connected
// four (which means a draw when the board is also full).
func Winner(s game.State) game.Player {
	dirs := [4][2]int{
		{0, 1},  // horizontal
		{1, 0},  // vertical
		{1, 1},  // diagonal up-right
		{1, -1}, // diagonal up-left
	}

	for row := 0; row < game.Rows; row++ {
		for col := 0; col < game.Cols; col++ {
			p := s.Cells[row][col]
			if p == game.NoPlayer {
				continue
			}
			for _, d := range dirs {
				endRow := row + (WinLength-1)*d[0]
				endCol := col + (WinLength-1)*d[1]
				if endRow >= game.Rows || endCol < 0 || endCol >= game.Cols {
					continue
				}
				run := 1
				for k := 1; k < WinLength; k++ {
					if s.Cells[row+k*d[0]][col+k*d[1]] != p {
						break
					}
					run++
				}
				if run == WinLength {
					return p
				}
			}
		}
	}
	return game.NoPlayer
}

// TerminalValue scores a finished position from the perspective of the player
// to move at it: -1 if the opponent just won, +1 if the mover somehow holds a
// win, 0 for a draw. Only meaningful when IsOver(s) is true.
func TerminalValue(s game.State) float32 {
	switch Winner(s) {
	case s.Turn:
		return 1
	case s.Turn.Opponent():
		return -1
	}
	return 0
}
