// Command play runs a Connect-4 game against the search engine in the
// terminal. The engine thinks continuously in the background, including while
// the human is deciding; a real move just re-roots the tree.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fourline/fourline/game"
	"github.com/fourline/fourline/inference"
	"github.com/fourline/fourline/mcts"
	"github.com/fourline/fourline/rules"
)

func main() {
	oracleKind := flag.String("oracle", "uniform", "Oracle backend: onnx, deep, remote or uniform")
	modelPath := flag.String("model", "models/fourline.onnx", "Path to ONNX model (oracle=onnx)")
	weightsPath := flag.String("weights", "", "Path to go-deep weights JSON (oracle=deep; empty for random weights)")
	remoteURL := flag.String("remote", "ws://localhost:8700/predict", "Prediction service URL (oracle=remote)")
	thinkTime := flag.Duration("think", 3*time.Second, "Extra thinking time after the human moves")
	cpuct := flag.Float64("cpuct", float64(mcts.DefaultCpuct), "PUCT exploration constant")
	parallel := flag.Int("parallel", mcts.DefaultParallelism, "Concurrent expansion workers")
	onnxSessions := flag.Int("onnx-sessions", 1, "Number of parallel ONNX Runtime sessions")
	engineFirst := flag.Bool("engine-first", false, "Let the engine open the game")
	logPath := flag.String("log", "play.log", "Log file (keeps output away from the TUI)")
	flag.Parse()

	// Route logs to a file so they don't tear up the TUI.
	logFile, err := os.OpenFile(*logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open log file: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()
	log.Logger = zerolog.New(logFile).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(zerolog.DebugLevel)

	oracle, closer, err := buildOracle(*oracleKind, *modelPath, *weightsPath, *remoteURL, *onnxSessions)
	if err != nil {
		fmt.Fprintf(os.Stderr, "oracle setup failed: %v\n", err)
		os.Exit(1)
	}
	if closer != nil {
		defer closer.Close()
	}

	start := rules.Start()
	eng := mcts.NewEngine(mcts.Config{
		Cpuct:       float32(*cpuct),
		Parallelism: *parallel,
	}, oracle, start)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go eng.Think(ctx)

	m := newModel(eng, start, *thinkTime, *engineFirst, cancel)
	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func buildOracle(kind, modelPath, weightsPath, remoteURL string, sessions int) (mcts.Oracle, interface{ Close() error }, error) {
	switch kind {
	case "onnx":
		pool, err := inference.NewOnnxClientPool(modelPath, sessions)
		if err != nil {
			return nil, nil, err
		}
		return pool, pool, nil
	case "deep":
		cfg := inference.DefaultNetworkConfig()
		if weightsPath != "" {
			loaded, err := inference.LoadNetworkConfig(weightsPath)
			if err != nil {
				return nil, nil, err
			}
			cfg = loaded
		}
		client, err := inference.NewDeepClient(cfg)
		if err != nil {
			return nil, nil, err
		}
		return client, nil, nil
	case "remote":
		client := inference.NewRemoteClient(remoteURL)
		return client, client, nil
	case "uniform":
		return inference.UniformClient{}, nil, nil
	}
	return nil, nil, fmt.Errorf("unknown oracle backend %q", kind)
}

type engineMoveMsg struct {
	state  game.State
	col    int
	visits int
	value  float32
}

type model struct {
	eng       *mcts.Engine
	state     game.State
	thinkTime time.Duration
	cancel    context.CancelFunc

	cursor   int
	thinking bool
	over     bool
	status   string
	lastMove string
}

func newModel(eng *mcts.Engine, start game.State, thinkTime time.Duration, engineFirst bool, cancel context.CancelFunc) model {
	m := model{
		eng:       eng,
		state:     start,
		thinkTime: thinkTime,
		cancel:    cancel,
		cursor:    game.Cols / 2,
		status:    "Your move.",
	}
	if engineFirst {
		m.thinking = true
		m.status = "Engine is thinking..."
	}
	return m
}

func (m model) Init() tea.Cmd {
	if m.thinking {
		return engineMoveCmd(m.eng, m.thinkTime)
	}
	return nil
}

// engineMoveCmd waits out the thinking budget, then commits the engine's best
// move. ErrNotExpanded just means the oracle hasn't answered yet; keep
// waiting, the UI loop stays responsive regardless.
func engineMoveCmd(eng *mcts.Engine, thinkTime time.Duration) tea.Cmd {
	return func() tea.Msg {
		time.Sleep(thinkTime)
		for {
			best, err := eng.ChooseBestNode()
			if err != nil {
				log.Debug().Err(err).Msg("engine not ready, waiting")
				time.Sleep(100 * time.Millisecond)
				continue
			}
			node, err := eng.Advance(best.Position())
			if err != nil {
				// The tree moved under us (shouldn't happen in this driver);
				// start over from the current position.
				log.Warn().Err(err).Msg("advance to engine move failed")
				time.Sleep(100 * time.Millisecond)
				continue
			}
			visits, value := eng.NodeStats(node)
			return engineMoveMsg{
				state:  node.Position(),
				col:    node.Move(),
				visits: visits,
				value:  value,
			}
		}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.cancel()
			return m, tea.Quit
		case "left", "h":
			if m.cursor > 0 {
				m.cursor--
			}
		case "right", "l":
			if m.cursor < game.Cols-1 {
				m.cursor++
			}
		case "1", "2", "3", "4", "5", "6", "7":
			m.cursor = int(msg.String()[0] - '1')
			return m.humanDrop()
		case "enter", " ":
			return m.humanDrop()
		}
	case engineMoveMsg:
		m.state = msg.state
		m.thinking = false
		m.lastMove = fmt.Sprintf("Engine dropped column %d (%d visits, value %+.2f)",
			msg.col+1, msg.visits, -msg.value)
		if rules.IsOver(m.state) {
			return m.finish(), nil
		}
		m.status = "Your move."
	}
	return m, nil
}

func (m model) humanDrop() (tea.Model, tea.Cmd) {
	if m.thinking || m.over {
		return m, nil
	}

	legal := rules.LegalMoves(m.state)
	if !legal[m.cursor] {
		m.status = "Column is full."
		return m, nil
	}

	next, err := rules.Apply(m.state, m.cursor)
	if err != nil {
		m.status = err.Error()
		return m, nil
	}

	if _, err := m.eng.Advance(next); err != nil {
		// Search never reached this branch; rebuild from scratch.
		log.Debug().Err(err).Msg("played move not in tree, resetting")
		m.eng.Reset(next)
	}
	m.state = next
	m.lastMove = fmt.Sprintf("You dropped column %d", m.cursor+1)

	if rules.IsOver(m.state) {
		return m.finish(), nil
	}

	m.thinking = true
	m.status = "Engine is thinking..."
	return m, engineMoveCmd(m.eng, m.thinkTime)
}

func (m model) finish() model {
	m.over = true
	m.thinking = false
	m.cancel()
	switch rules.Winner(m.state) {
	case game.Player1:
		m.status = "Red wins. Press q to quit."
	case game.Player2:
		m.status = "Yellow wins. Press q to quit."
	default:
		m.status = "Draw. Press q to quit."
	}
	return m
}

var (
	boardStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	redStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	yellowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	titleStyle  = lipgloss.NewStyle().Bold(true)
)

func (m model) View() string {
	s := titleStyle.Render("fourline") + "\n\n"

	pointer := ""
	for col := 0; col < game.Cols; col++ {
		if col == m.cursor && !m.over {
			pointer += " v "
		} else {
			pointer += "   "
		}
	}
	s += "  " + pointer + "\n"

	board := ""
	for row := game.Rows - 1; row >= 0; row-- {
		for col := 0; col < game.Cols; col++ {
			switch m.state.Cell(row, col) {
			case game.Player1:
				board += redStyle.Render(" ● ")
			case game.Player2:
				board += yellowStyle.Render(" ● ")
			default:
				board += dimStyle.Render(" · ")
			}
		}
		if row > 0 {
			board += "\n"
		}
	}
	s += boardStyle.Render(board) + "\n"

	nums := ""
	for col := 0; col < game.Cols; col++ {
		nums += fmt.Sprintf(" %d ", col+1)
	}
	s += "  " + dimStyle.Render(nums) + "\n\n"

	if m.lastMove != "" {
		s += m.lastMove + "\n"
	}
	s += m.status + "\n\n"
	s += dimStyle.Render("←/→ or 1-7 to choose a column, enter to drop, q to quit") + "\n"
	return s
}
