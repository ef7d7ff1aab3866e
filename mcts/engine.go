// Package mcts implements PUCT Monte Carlo Tree Search for Connect-4, guided
// by a policy/value oracle. The tree stays alive across real moves: the
// driver re-roots it with Advance while background expansion keeps running.
package mcts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fourline/fourline/game"
	"github.com/fourline/fourline/rules"
)

var (
	// ErrOracleUnavailable wraps any oracle failure. The target node is left
	// unexpanded and a later Expand may retry.
	ErrOracleUnavailable = errors.New("mcts: oracle unavailable")

	// ErrMoveNotInTree is returned by Advance when the played position is not
	// a child of the current root. The caller recovers with Reset.
	ErrMoveNotInTree = errors.New("mcts: move not in tree")

	// ErrNotExpanded is returned by ChooseBestNode before the root has been
	// expanded at least once.
	ErrNotExpanded = errors.New("mcts: root not expanded")
)

// Oracle is the value/policy capability the engine consumes. Predict returns
// one raw policy vector (length game.Cols, any scale; the engine masks and
// normalizes it) and one value in [-1, 1] per input position, in input order.
// Implementations must handle a batch of any size >= 1.
type Oracle interface {
	Predict(states []game.State) ([][]float32, []float32, error)
}

// Config holds the engine's tunables.
type Config struct {
	// Cpuct is the PUCT exploration constant.
	Cpuct float32
	// Parallelism is the number of concurrent expansion workers Think runs.
	Parallelism int
}

const (
	DefaultCpuct       = float32(1.5)
	DefaultParallelism = 4
)

// Engine owns one search tree. A single lock serializes all tree mutation;
// oracle calls happen outside it, gated per node by the expanding flag, so
// Advance stays responsive even while evaluations are in flight.
type Engine struct {
	mu     sync.Mutex
	cfg    Config
	oracle Oracle
	root   *Node
}

func NewEngine(cfg Config, oracle Oracle, start game.State) *Engine {
	if cfg.Cpuct <= 0 {
		cfg.Cpuct = DefaultCpuct
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = DefaultParallelism
	}
	return &Engine{
		cfg:    cfg,
		oracle: oracle,
		root:   newRoot(start),
	}
}

// Root returns the current root node.
func (e *Engine) Root() *Node {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.root
}

// IsTerminal reports whether the game is over at n's position.
func (e *Engine) IsTerminal(n *Node) bool {
	return rules.IsOver(n.position)
}

// ChooseExpansionNode descends from the root by PUCT selection until it finds
// a node that is unexpanded, non-terminal and not already awaiting the
// oracle. It returns nil when every reachable frontier node is in flight or
// the tree below the root is fully decided; the caller should wait and retry.
func (e *Engine) ChooseExpansionNode() *Node {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selectFrontier(e.root)
}

func (e *Engine) selectFrontier(n *Node) *Node {
	if n.expanding || rules.IsOver(n.position) {
		return nil
	}
	if n.children == nil {
		return n
	}

	// Try children best-PUCT first; a blocked subtree falls back to the next
	// best branch so concurrent expansions diversify.
	order := make([]int, len(n.children))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return puctScore(n, n.children[order[a]], e.cfg.Cpuct) >
			puctScore(n, n.children[order[b]], e.cfg.Cpuct)
	})

	for _, i := range order {
		if target := e.selectFrontier(n.children[i]); target != nil {
			return target
		}
	}
	return nil
}

// Expand evaluates n with the oracle and materializes one child per legal
// column, with priors renormalized over the legal columns only, then backs
// the returned value up to the root. Children born terminal get their exact
// outcome backed up once so forced lines show in the statistics.
//
// Expanding a node that is already expanding, already expanded or terminal is
// a no-op. An oracle failure returns ErrOracleUnavailable and leaves the node
// unexpanded and unclaimed so a later attempt can retry.
func (e *Engine) Expand(ctx context.Context, n *Node) error {
	e.mu.Lock()
	if n.expanding || n.children != nil || rules.IsOver(n.position) {
		e.mu.Unlock()
		return nil
	}
	n.expanding = true
	position := n.position
	e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		e.mu.Lock()
		n.expanding = false
		e.mu.Unlock()
		return err
	}

	policies, values, err := e.oracle.Predict([]game.State{position})

	e.mu.Lock()
	defer e.mu.Unlock()
	n.expanding = false

	if err != nil {
		return fmt.Errorf("%w: %w", ErrOracleUnavailable, err)
	}
	if len(policies) < 1 || len(values) < 1 {
		return fmt.Errorf("%w: oracle returned %d policies, %d values for 1 input",
			ErrOracleUnavailable, len(policies), len(values))
	}

	// The node may have been pruned by Advance while the request was in
	// flight. Its subtree is dead; drop the result on the floor.
	if !e.attached(n) {
		return nil
	}

	legal := rules.LegalMoves(position)
	priors := maskedSoftmax(policies[0], legal)

	children := make([]*Node, 0, game.Cols)
	for col, ok := range legal {
		if !ok {
			continue
		}
		next, err := rules.Apply(position, col)
		if err != nil {
			return fmt.Errorf("mcts: apply legal column %d: %w", col, err)
		}
		children = append(children, &Node{
			position: next,
			parent:   n,
			prior:    priors[col],
			col:      col,
		})
	}
	n.children = children

	backup(n, values[0])
	for _, child := range children {
		if rules.IsOver(child.position) {
			backup(child, rules.TerminalValue(child.position))
		}
	}
	return nil
}

// attached reports whether n can still reach the current root through its
// parent chain. Caller holds the lock.
func (e *Engine) attached(n *Node) bool {
	for ; n != nil; n = n.parent {
		if n == e.root {
			return true
		}
	}
	return false
}

// ChooseBestNode returns the root child with the most visits; ties break by
// best mean value for the root's mover, then by lowest column.
func (e *Engine) ChooseBestNode() (*Node, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.root.children == nil {
		return nil, ErrNotExpanded
	}

	var best *Node
	bestQ := float32(0)
	for _, child := range e.root.children {
		q := float32(0)
		if child.visits > 0 {
			q = -child.valueSum / float32(child.visits)
		}
		if best == nil || child.visits > best.visits ||
			(child.visits == best.visits && q > bestQ) {
			best = child
			bestQ = q
		}
	}
	return best, nil
}

// NodeStats reads a node's visit count and mean value under the engine lock,
// for drivers that want to display statistics while search keeps running.
func (e *Engine) NodeStats(n *Node) (visits int, value float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return n.visits, n.Value()
}

// Advance commits a real move: the root child whose position equals played
// becomes the new root, its parent link is cleared, and everything outside
// its subtree is discarded. Positions compare structurally. If no child
// matches (the search never reached that branch, or the move was already
// applied) Advance returns ErrMoveNotInTree and the caller starts over with
// Reset.
func (e *Engine) Advance(played game.State) (*Node, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.root.children == nil {
		return nil, ErrMoveNotInTree
	}

	for _, child := range e.root.children {
		if child.position == played {
			old := e.root
			child.parent = nil
			old.children = nil
			e.root = child
			log.Debug().
				Int("column", child.col).
				Int("visits", child.visits).
				Msg("re-rooted tree at played move")
			return child, nil
		}
	}
	return nil, ErrMoveNotInTree
}

// Reset discards the whole tree and starts a fresh root at position. This is
// the recovery path for ErrMoveNotInTree.
func (e *Engine) Reset(position game.State) *Node {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.root.children = nil
	e.root = newRoot(position)
	log.Debug().Msg("reset search tree")
	return e.root
}

// Think runs the idle-time search loop until ctx is cancelled: Parallelism
// workers repeatedly claim a frontier node and expand it. The loop checks ctx
// every iteration, so a pending real move is never blocked behind a slow
// oracle round-trip. Advance and Reset are safe to call while Think runs.
func (e *Engine) Think(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < e.cfg.Parallelism; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.thinkLoop(ctx)
		}()
	}
	wg.Wait()
}

func (e *Engine) thinkLoop(ctx context.Context) {
	const (
		idleWait    = time.Millisecond
		failureWait = 50 * time.Millisecond
	)

	for {
		if ctx.Err() != nil {
			return
		}

		n := e.ChooseExpansionNode()
		if n == nil {
			// Frontier fully claimed, or nothing left to search.
			if !sleepCtx(ctx, idleWait) {
				return
			}
			continue
		}

		if err := e.Expand(ctx, n); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			log.Debug().Err(err).Msg("expansion failed")
			if !sleepCtx(ctx, failureWait) {
				return
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
