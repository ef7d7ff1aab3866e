package inference

import (
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/fourline/fourline/game"
	"github.com/fourline/fourline/rules"
)

// Remote prediction wire format: one request per batch, one response per
// request, in order, over a single websocket.
type predictRequest struct {
	Positions [][]float32 `json:"positions"`
}

type predictResponse struct {
	Policies [][]float32 `json:"policies"`
	Values   []float32   `json:"values"`
	Error    string      `json:"error,omitempty"`
}

// RemoteClient speaks the batch-predict protocol to an external prediction
// service. The service owns the model; this side only encodes positions and
// ships them. Failures surface as ErrUnavailable and the next Predict
// redials, so a restarted service recovers transparently.
type RemoteClient struct {
	url string

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewRemoteClient(url string) *RemoteClient {
	return &RemoteClient{url: url}
}

func (c *RemoteClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *RemoteClient) Predict(states []game.State) ([][]float32, []float32, error) {
	req := predictRequest{Positions: make([][]float32, len(states))}
	for i, state := range states {
		req.Positions[i] = rules.Encode(state)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: dial %s: %w", ErrUnavailable, c.url, err)
		}
		c.conn = conn
	}

	if err := c.conn.WriteJSON(req); err != nil {
		c.dropConn()
		return nil, nil, fmt.Errorf("%w: write: %w", ErrUnavailable, err)
	}

	var resp predictResponse
	if err := c.conn.ReadJSON(&resp); err != nil {
		c.dropConn()
		return nil, nil, fmt.Errorf("%w: read: %w", ErrUnavailable, err)
	}
	if resp.Error != "" {
		return nil, nil, fmt.Errorf("%w: service: %s", ErrUnavailable, resp.Error)
	}
	if len(resp.Policies) != len(states) || len(resp.Values) != len(states) {
		return nil, nil, fmt.Errorf("%w: service returned %d policies, %d values for %d inputs",
			ErrUnavailable, len(resp.Policies), len(resp.Values), len(states))
	}

	return resp.Policies, resp.Values, nil
}

func (c *RemoteClient) dropConn() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}
