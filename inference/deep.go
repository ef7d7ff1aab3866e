package inference

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	deep "github.com/patrikeh/go-deep"
	"gonum.org/v1/gonum/floats"

	"github.com/fourline/fourline/game"
	"github.com/fourline/fourline/rules"
)

// NetworkConfig describes a pure-Go MLP oracle: one hidden stack feeding a
// combined head of game.Cols policy scores plus one value output.
type NetworkConfig struct {
	Name         string        `json:"name"`
	HiddenLayers []int         `json:"hidden_layers"`
	Weights      [][][]float64 `json:"weights,omitempty"`
}

func DefaultNetworkConfig() NetworkConfig {
	return NetworkConfig{
		Name:         "default",
		HiddenLayers: []int{128, 64},
	}
}

// LoadNetworkConfig reads a JSON weight file produced by SaveNetworkConfig.
func LoadNetworkConfig(path string) (NetworkConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return NetworkConfig{}, fmt.Errorf("read network config: %w", err)
	}
	var cfg NetworkConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return NetworkConfig{}, fmt.Errorf("parse network config: %w", err)
	}
	return cfg, nil
}

func SaveNetworkConfig(path string, cfg NetworkConfig) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// DeepClient evaluates positions with a go-deep MLP. It exists so the engine
// can run anywhere without ONNX Runtime installed; with random weights it
// still produces a usable (if weak) oracle.
type DeepClient struct {
	network *deep.Neural
	config  NetworkConfig
}

func NewDeepClient(config NetworkConfig) (*DeepClient, error) {
	if len(config.HiddenLayers) == 0 {
		return nil, fmt.Errorf("network config %q has no hidden layers", config.Name)
	}

	layout := append([]int{}, config.HiddenLayers...)
	layout = append(layout, game.Cols+1)

	network := deep.NewNeural(&deep.Config{
		Inputs:     rules.EncodedSize,
		Layout:     layout,
		Activation: deep.ActivationReLU,
		Mode:       deep.ModeRegression,
		Weight:     deep.NewNormal(0.0, 0.1),
		Bias:       true,
	})

	if config.Weights != nil {
		network.ApplyWeights(config.Weights)
	}

	return &DeepClient{network: network, config: config}, nil
}

func (c *DeepClient) Name() string {
	return fmt.Sprintf("deep (%s)", c.config.Name)
}

func (c *DeepClient) Predict(states []game.State) ([][]float32, []float32, error) {
	policies := make([][]float32, len(states))
	values := make([]float32, len(states))

	input := make([]float64, rules.EncodedSize)
	encoded := make([]float32, rules.EncodedSize)

	for i, state := range states {
		rules.EncodeInto(state, encoded)
		for j, v := range encoded {
			input[j] = float64(v)
		}

		out := c.network.Predict(input)
		if len(out) != game.Cols+1 {
			return nil, nil, fmt.Errorf("%w: network produced %d outputs, want %d",
				ErrUnavailable, len(out), game.Cols+1)
		}

		// Regression outputs come back on an arbitrary scale; center the
		// policy scores before the engine's softmax and squash the value
		// head into [-1, 1].
		logits := out[:game.Cols]
		shift := floats.Max(logits)
		policy := make([]float32, game.Cols)
		for col, score := range logits {
			policy[col] = float32(score - shift)
		}

		policies[i] = policy
		values[i] = float32(math.Tanh(out[game.Cols]))
	}

	return policies, values, nil
}
