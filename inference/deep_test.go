package inference

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fourline/fourline/game"
	"github.com/fourline/fourline/rules"
)

func TestDeepClientPredict(t *testing.T) {
	client, err := NewDeepClient(NetworkConfig{Name: "tiny", HiddenLayers: []int{8}})
	require.NoError(t, err)

	states := []game.State{rules.Start()}
	next, err := rules.Apply(rules.Start(), 3)
	require.NoError(t, err)
	states = append(states, next)

	policies, values, err := client.Predict(states)
	require.NoError(t, err)
	require.Len(t, policies, 2)
	require.Len(t, values, 2)

	for i := range states {
		require.Len(t, policies[i], game.Cols)
		require.GreaterOrEqual(t, values[i], float32(-1))
		require.LessOrEqual(t, values[i], float32(1))
	}
}

func TestDeepClientRejectsEmptyLayout(t *testing.T) {
	_, err := NewDeepClient(NetworkConfig{Name: "empty"})
	require.Error(t, err)
}

func TestNetworkConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weights.json")

	cfg := DefaultNetworkConfig()
	cfg.Name = "roundtrip"
	require.NoError(t, SaveNetworkConfig(path, cfg))

	loaded, err := LoadNetworkConfig(path)
	require.NoError(t, err)
	require.Equal(t, cfg.Name, loaded.Name)
	require.Equal(t, cfg.HiddenLayers, loaded.HiddenLayers)
}

func TestLoadNetworkConfigMissingFile(t *testing.T) {
	_, err := LoadNetworkConfig(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}

func TestUniformClient(t *testing.T) {
	policies, values, err := UniformClient{}.Predict([]game.State{rules.Start()})
	require.NoError(t, err)
	require.Len(t, policies, 1)
	require.Len(t, policies[0], game.Cols)
	require.Equal(t, float32(0), values[0])
}
