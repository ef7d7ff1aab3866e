package mcts

import (
	"github.com/chewxy/math32"

	"github.com/fourline/fourline/game"
)

// Node is one position in the search tree, reached by a unique path from the
// root. children == nil means the node has not been expanded yet; terminal
// nodes keep it nil forever. All fields except position and col are guarded
// by the owning Engine's lock.
type Node struct {
	position game.State
	parent   *Node
	children []*Node

	visits   int
	valueSum float32
	prior    float32

	// col is the column dropped to reach this node from its parent, -1 for a
	// root created directly from a position.
	col int

	// expanding gates concurrent expansion: while set, exactly one oracle
	// request is in flight for this node and selection skips it.
	expanding bool
}

func newRoot(position game.State) *Node {
	return &Node{position: position, col: -1}
}

// Position returns the game state this node represents.
func (n *Node) Position() game.State {
	return n.position
}

// Move returns the column played to reach this node, or -1 for a fresh root.
func (n *Node) Move() int {
	return n.col
}

// Visits returns the number of backups that have passed through this node.
func (n *Node) Visits() int {
	return n.visits
}

// Prior returns the oracle's prior probability for the move leading here.
func (n *Node) Prior() float32 {
	return n.prior
}

// Children returns the materialized children, nil while unexpanded.
func (n *Node) Children() []*Node {
	return n.children
}

// Value returns the mean backed-up value from the perspective of the player
// to move at this node, 0 before any visit.
func (n *Node) Value() float32 {
	if n.visits == 0 {
		return 0
	}
	return n.valueSum / float32(n.visits)
}

// puctScore scores a child for selection at its parent:
//
//	Q(c) + cpuct * P(c) * sqrt(N(parent)) / (1 + N(c))
//
// valueSum is stored from the child mover's perspective, so Q flips the sign
// to read it from the selecting player's side.
func puctScore(parent, child *Node, cpuct float32) float32 {
	q := float32(0)
	if child.visits > 0 {
		q = -child.valueSum / float32(child.visits)
	}
	u := cpuct * child.prior * math32.Sqrt(float32(parent.visits)) / (1 + float32(child.visits))
	return q + u
}

// backup propagates a value from n to the root, flipping the sign at every
// parent hop since the turn alternates. Caller holds the engine lock.
func backup(n *Node, value float32) {
	for node := n; node != nil; node = node.parent {
		node.visits++
		node.valueSum += value
		value = -value
	}
}
