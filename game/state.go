// Package game defines the core board state type for Connect-4.
//
// State is a plain value type: it is comparable, so structural equality is the
// == operator, and passing it by value gives the copy semantics the search
// tree relies on. Transitions never mutate a State in place; the rules package
// produces new states.
package game

const (
	Rows = 6
	Cols = 7
)

// Player identifies a side, or nobody (empty cell / drawn game).
type Player int8

const (
	NoPlayer Player = iota
	Player1
	Player2
)

func (p Player) Opponent() Player {
	switch p {
	case Player1:
		return Player2
	case Player2:
		return Player1
	}
	return NoPlayer
}

func (p Player) String() string {
	switch p {
	case Player1:
		return "player1"
	case Player2:
		return "player2"
	}
	return "none"
}

// State is a full Connect-4 position: board contents plus whose turn it is.
// Cells[0] is the bottom row.
type State struct {
	Cells [Rows][Cols]Player
	Turn  Player
}

// Cell returns the occupant of (row, col), bottom row first.
func (s State) Cell(row, col int) Player {
	return s.Cells[row][col]
}

// ColumnHeight reports how many discs are stacked in col.
func (s State) ColumnHeight(col int) int {
	h := 0
	for h < Rows && s.Cells[h][col] != NoPlayer {
		h++
	}
	return h
}

// Full reports whether every cell is occupied.
func (s State) Full() bool {
	for col := 0; col < Cols; col++ {
		if s.Cells[Rows-1][col] == NoPlayer {
			return false
		}
	}
	return true
}
