package mcts

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fourline/fourline/game"
	"github.com/fourline/fourline/rules"
)

// mockOracle counts Predict calls per position and can be made to fail or to
// block until released.
type mockOracle struct {
	mu    sync.Mutex
	calls map[game.State]int

	// policy returns raw scores for a position; nil means flat (uniform
	// after the engine's softmax).
	policy func(game.State) []float32
	value  float32
	fail   bool

	// When blocked is non-nil, Predict signals entered once per call and
	// then waits until blocked is closed.
	blocked chan struct{}
	entered chan struct{}
}

func newMockOracle() *mockOracle {
	return &mockOracle{calls: make(map[game.State]int)}
}

func (o *mockOracle) Predict(states []game.State) ([][]float32, []float32, error) {
	if o.entered != nil {
		for range states {
			o.entered <- struct{}{}
		}
	}
	if o.blocked != nil {
		<-o.blocked
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	for _, s := range states {
		o.calls[s]++
	}
	if o.fail {
		return nil, nil, errInferenceDown
	}

	policies := make([][]float32, len(states))
	values := make([]float32, len(states))
	for i, s := range states {
		if o.policy != nil {
			policies[i] = o.policy(s)
		} else {
			policies[i] = make([]float32, game.Cols)
		}
		values[i] = o.value
	}
	return policies, values, nil
}

func (o *mockOracle) callsFor(s game.State) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls[s]
}

var errInferenceDown = errors.New("inference down")

func play(t *testing.T, cols ...int) game.State {
	t.Helper()
	s := rules.Start()
	for _, col := range cols {
		next, err := rules.Apply(s, col)
		require.NoError(t, err)
		s = next
	}
	return s
}

func TestExpandRootUniform(t *testing.T) {
	oracle := newMockOracle()
	e := NewEngine(Config{}, oracle, rules.Start())

	n := e.ChooseExpansionNode()
	require.Same(t, e.Root(), n, "first expansion target is the root")
	require.NoError(t, e.Expand(context.Background(), n))

	root := e.Root()
	require.Len(t, root.Children(), game.Cols)
	require.Equal(t, 1, root.Visits(), "root gets exactly its own evaluation visit")
	for _, child := range root.Children() {
		require.Equal(t, 0, child.Visits())
		require.InDelta(t, 1.0/float64(game.Cols), float64(child.Prior()), 1e-6)
	}
}

func TestExpandPriorsRenormalizedOverLegalMoves(t *testing.T) {
	// Column 3 is full; give it the biggest raw score to prove its mass is
	// masked out, not merely diluted.
	start := play(t, 3, 3, 3, 3, 3, 3)
	oracle := newMockOracle()
	oracle.policy = func(game.State) []float32 {
		return []float32{0, 0, 0, 10, 0, 0, 0}
	}
	e := NewEngine(Config{}, oracle, start)

	require.NoError(t, e.Expand(context.Background(), e.Root()))

	children := e.Root().Children()
	require.Len(t, children, game.Cols-1)

	sum := float32(0)
	for _, child := range children {
		require.NotEqual(t, 3, child.Move(), "full column must not produce a child")
		sum += child.Prior()
	}
	require.InDelta(t, 1.0, float64(sum), 1e-5)
}

func TestVisitSumInvariant(t *testing.T) {
	oracle := newMockOracle()
	oracle.value = 0.3
	e := NewEngine(Config{}, oracle, rules.Start())

	ctx := context.Background()
	for i := 0; i < 40; i++ {
		n := e.ChooseExpansionNode()
		require.NotNil(t, n)
		require.NoError(t, e.Expand(ctx, n))
	}

	var check func(n *Node)
	check = func(n *Node) {
		if n.Children() == nil {
			return
		}
		sum := 0
		for _, child := range n.Children() {
			sum += child.Visits()
		}
		require.Equal(t, sum+1, n.Visits(),
			"expanded node's visits must equal child visits plus its own evaluation")
		for _, child := range n.Children() {
			check(child)
		}
	}
	check(e.Root())
}

func TestZeroVisitSelectionFollowsPrior(t *testing.T) {
	oracle := newMockOracle()
	oracle.policy = func(game.State) []float32 {
		return []float32{0, 0, 0, 0, 0, 3, 0} // column 5 dominates
	}
	e := NewEngine(Config{}, oracle, rules.Start())

	require.NoError(t, e.Expand(context.Background(), e.Root()))

	n := e.ChooseExpansionNode()
	require.NotNil(t, n)
	require.Equal(t, 5, n.Move(), "with all Q at zero the prior term decides")
}

func TestTerminalRootNeverExpands(t *testing.T) {
	terminal := play(t, 0, 1, 0, 1, 0, 1, 0)
	require.True(t, rules.IsOver(terminal))

	oracle := newMockOracle()
	e := NewEngine(Config{}, oracle, terminal)

	require.Nil(t, e.ChooseExpansionNode())
	require.NoError(t, e.Expand(context.Background(), e.Root()))
	require.Nil(t, e.Root().Children(), "terminal node stays unexpanded")
	require.Zero(t, oracle.callsFor(terminal), "terminal expansion must not reach the oracle")
	require.True(t, e.IsTerminal(e.Root()))
}

func TestTerminalChildNeverChosen(t *testing.T) {
	// Player1 mates in one at column 0; the resulting child is terminal and
	// must never become an expansion target no matter how often we select.
	start := play(t, 0, 1, 0, 1, 0, 1)
	win, err := rules.Apply(start, 0)
	require.NoError(t, err)
	require.True(t, rules.IsOver(win))

	oracle := newMockOracle()
	e := NewEngine(Config{}, oracle, start)
	ctx := context.Background()

	for i := 0; i < 30; i++ {
		n := e.ChooseExpansionNode()
		if n == nil {
			break
		}
		require.False(t, rules.IsOver(n.Position()))
		require.NoError(t, e.Expand(ctx, n))
	}
	require.Zero(t, oracle.callsFor(win))
}

func TestExpandBacksUpTerminalChildOutcome(t *testing.T) {
	start := play(t, 0, 1, 0, 1, 0, 1)
	oracle := newMockOracle()
	e := NewEngine(Config{}, oracle, start)

	require.NoError(t, e.Expand(context.Background(), e.Root()))

	root := e.Root()
	var winChild *Node
	for _, child := range root.Children() {
		if child.Move() == 0 {
			winChild = child
		}
	}
	require.NotNil(t, winChild)
	require.True(t, rules.IsOver(winChild.Position()))
	require.Equal(t, 1, winChild.Visits(), "terminal child gets its outcome backed up once")
	require.Equal(t, float32(-1), winChild.Value(), "losing side to move at the won position")
	require.Equal(t, 2, root.Visits(), "own evaluation plus the terminal backup")
}

func TestAdvance(t *testing.T) {
	oracle := newMockOracle()
	e := NewEngine(Config{}, oracle, rules.Start())
	ctx := context.Background()
	require.NoError(t, e.Expand(ctx, e.Root()))

	oldRoot := e.Root()
	played := play(t, 3)

	t.Run("re-roots at the played child", func(t *testing.T) {
		newRoot, err := e.Advance(played)
		require.NoError(t, err)
		require.Same(t, newRoot, e.Root())
		require.Equal(t, played, newRoot.Position())
		require.Equal(t, 3, newRoot.Move())
	})

	t.Run("old tree is released", func(t *testing.T) {
		require.Nil(t, oldRoot.Children(),
			"traversal from the old root must not reach the new root")
	})

	t.Run("same move again is MoveNotInTree", func(t *testing.T) {
		_, err := e.Advance(played)
		require.ErrorIs(t, err, ErrMoveNotInTree)
	})

	t.Run("sibling position is gone", func(t *testing.T) {
		_, err := e.Advance(play(t, 4))
		require.ErrorIs(t, err, ErrMoveNotInTree)
	})
}

func TestAdvanceUnexpandedRoot(t *testing.T) {
	e := NewEngine(Config{}, newMockOracle(), rules.Start())
	_, err := e.Advance(play(t, 0))
	require.ErrorIs(t, err, ErrMoveNotInTree)
}

func TestResetRecoversFromMoveNotInTree(t *testing.T) {
	e := NewEngine(Config{}, newMockOracle(), rules.Start())
	played := play(t, 2)

	_, err := e.Advance(played)
	require.ErrorIs(t, err, ErrMoveNotInTree)

	root := e.Reset(played)
	require.Same(t, root, e.Root())
	require.Equal(t, played, root.Position())
	require.Nil(t, root.Children())
}

func TestChooseBestNode(t *testing.T) {
	t.Run("before any expansion", func(t *testing.T) {
		e := NewEngine(Config{}, newMockOracle(), rules.Start())
		_, err := e.ChooseBestNode()
		require.ErrorIs(t, err, ErrNotExpanded)
	})

	t.Run("most visited wins", func(t *testing.T) {
		e := NewEngine(Config{}, newMockOracle(), rules.Start())
		require.NoError(t, e.Expand(context.Background(), e.Root()))

		children := e.Root().Children()
		children[2].visits = 5
		children[4].visits = 9

		best, err := e.ChooseBestNode()
		require.NoError(t, err)
		require.Equal(t, 4, best.Move())
	})

	t.Run("visit ties break by mean value then column", func(t *testing.T) {
		e := NewEngine(Config{}, newMockOracle(), rules.Start())
		require.NoError(t, e.Expand(context.Background(), e.Root()))

		children := e.Root().Children()
		// Equal visits; child 5 has the better value for the root's mover
		// (valueSum is stored from the child mover's perspective).
		children[1].visits = 4
		children[1].valueSum = 2
		children[5].visits = 4
		children[5].valueSum = -2

		best, err := e.ChooseBestNode()
		require.NoError(t, err)
		require.Equal(t, 5, best.Move())

		// Full tie: lowest column is the deterministic answer.
		children[5].valueSum = 2
		best, err = e.ChooseBestNode()
		require.NoError(t, err)
		require.Equal(t, 1, best.Move())
	})
}

func TestExpandOracleFailureIsRetryable(t *testing.T) {
	oracle := newMockOracle()
	oracle.fail = true
	e := NewEngine(Config{}, oracle, rules.Start())
	ctx := context.Background()

	err := e.Expand(ctx, e.Root())
	require.ErrorIs(t, err, ErrOracleUnavailable)
	require.Nil(t, e.Root().Children(), "failed expansion leaves the node unexpanded")

	// The claim must be released: the node is selectable and expandable again.
	require.Same(t, e.Root(), e.ChooseExpansionNode())

	oracle.mu.Lock()
	oracle.fail = false
	oracle.mu.Unlock()

	require.NoError(t, e.Expand(ctx, e.Root()))
	require.Len(t, e.Root().Children(), game.Cols)
}

func TestConcurrentExpandSingleOracleCall(t *testing.T) {
	oracle := newMockOracle()
	start := rules.Start()
	e := NewEngine(Config{}, oracle, start)

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- e.Expand(context.Background(), e.Root())
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.Equal(t, 1, oracle.callsFor(start), "duplicate expansion must be a no-op")
	require.Len(t, e.Root().Children(), game.Cols)
}

func TestSelectionSkipsInFlightNode(t *testing.T) {
	oracle := newMockOracle()
	oracle.blocked = make(chan struct{})
	oracle.entered = make(chan struct{}, 1)
	e := NewEngine(Config{}, oracle, rules.Start())

	done := make(chan error, 1)
	go func() {
		done <- e.Expand(context.Background(), e.Root())
	}()
	<-oracle.entered

	// The only frontier node is claimed: nothing to hand out.
	require.Nil(t, e.ChooseExpansionNode())

	close(oracle.blocked)
	require.NoError(t, <-done)

	n := e.ChooseExpansionNode()
	require.NotNil(t, n)
	require.NotSame(t, e.Root(), n)
}

func TestStaleOracleResponseDiscarded(t *testing.T) {
	oracle := newMockOracle()
	e := NewEngine(Config{}, oracle, rules.Start())
	ctx := context.Background()
	require.NoError(t, e.Expand(ctx, e.Root()))

	children := e.Root().Children()
	inFlight := children[0]
	keep := children[1]

	oracle.blocked = make(chan struct{})
	oracle.entered = make(chan struct{}, 1)

	done := make(chan error, 1)
	go func() {
		done <- e.Expand(ctx, inFlight)
	}()
	<-oracle.entered

	// The real game goes down a different branch; the in-flight node is
	// pruned while its request is still out.
	newRoot, err := e.Advance(keep.Position())
	require.NoError(t, err)
	require.Same(t, keep, newRoot)

	close(oracle.blocked)
	require.NoError(t, <-done, "stale responses are discarded, not errors")

	require.Nil(t, inFlight.Children(), "pruned node must not be mutated by a late response")
	require.Zero(t, inFlight.Visits())
	require.Equal(t, 0, keep.Visits(), "late backup must not leak into the kept subtree")
}

func TestThinkBuildsTreeAndStops(t *testing.T) {
	oracle := newMockOracle()
	e := NewEngine(Config{Parallelism: 2}, oracle, rules.Start())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	finished := make(chan struct{})
	go func() {
		e.Think(ctx)
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("Think did not stop after context cancellation")
	}

	require.Greater(t, e.Root().Visits(), 1, "background search should accumulate visits")
}

func TestThinkSurvivesOracleOutage(t *testing.T) {
	oracle := newMockOracle()
	oracle.fail = true
	e := NewEngine(Config{Parallelism: 1}, oracle, rules.Start())

	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})
	go func() {
		e.Think(ctx)
		close(finished)
	}()

	time.Sleep(60 * time.Millisecond)
	oracle.mu.Lock()
	oracle.fail = false
	oracle.mu.Unlock()
	time.Sleep(120 * time.Millisecond)
	cancel()
	<-finished

	require.NotNil(t, e.Root().Children(), "search recovers once the oracle is back")
}
