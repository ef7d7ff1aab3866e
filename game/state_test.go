package game

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStateEquality(t *testing.T) {
	a := State{Turn: Player1}
	b := State{Turn: Player1}
	require.True(t, a == b)

	b.Cells[0][3] = Player1
	require.False(t, a == b)

	c := b
	c.Turn = Player2
	require.False(t, b == c, "turn is part of structural equality")
}

func TestColumnHeight(t *testing.T) {
	var s State
	require.Equal(t, 0, s.ColumnHeight(0))

	s.Cells[0][0] = Player1
	s.Cells[1][0] = Player2
	require.Equal(t, 2, s.ColumnHeight(0))
	require.Equal(t, 0, s.ColumnHeight(1))
}

func TestFull(t *testing.T) {
	var s State
	require.False(t, s.Full())

	for col := 0; col < Cols; col++ {
		for row := 0; row < Rows; row++ {
			s.Cells[row][col] = Player1
		}
	}
	require.True(t, s.Full())
}

func TestOpponent(t *testing.T) {
	require.Equal(t, Player2, Player1.Opponent())
	require.Equal(t, Player1, Player2.Opponent())
	require.Equal(t, NoPlayer, NoPlayer.Opponent())
}
