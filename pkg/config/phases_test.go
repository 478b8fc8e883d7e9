package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadPhasesFromYAML(t *testing.T) {
	raw := `phases:
  - name: seed
    min_balance: 0
    max_balance: 500
    leverage: 2
    strategies:
      - type: grid
        weight: 1.0
        parameters:
          levels: 8
          spacing: 0.01
          investment: 0.5
  - name: compounding
    min_balance: 500
    max_balance: 0
    leverage: 3
    strategies:
      - type: grid
        weight: 0.7
        parameters:
          levels: 12
      - type: momentum
        weight: 0.3
        parameters:
          window: 25
`
	path := filepath.Join(t.TempDir(), "phases.yaml")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	phases, err := LoadPhases(path)
	require.NoError(t, err)
	require.Len(t, phases, 2)

	require.Equal(t, "seed", phases[0].Name)
	require.Equal(t, 500.0, phases[0].MaxBalance)
	require.Equal(t, 2.0, phases[0].Leverage)
	require.Len(t, phases[0].Strategies, 1)
	require.Equal(t, 8.0, phases[0].Strategies[0].Parameters["levels"])

	require.Equal(t, "compounding", phases[1].Name)
	require.Zero(t, phases[1].MaxBalance)
	require.Len(t, phases[1].Strategies, 2)
	require.Equal(t, 0.3, phases[1].Strategies[1].Weight)
}

func TestLoadPhasesEmptyPathUsesDefaults(t *testing.T) {
	phases, err := LoadPhases("")
	require.NoError(t, err)
	require.Len(t, phases, 3)
	require.Equal(t, "initial", phases[0].Name)
}

func TestLoadPhasesMissingFile(t *testing.T) {
	_, err := LoadPhases(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoadPhasesRejectsEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(path, []byte("phases: []\n"), 0o644))
	_, err := LoadPhases(path)
	require.Error(t, err)
}

func TestDefaultPhasesCoverAllBalances(t *testing.T) {
	phases := DefaultPhases()
	require.Zero(t, phases[0].MinBalance)
	for i := 1; i < len(phases); i++ {
		require.Equal(t, phases[i-1].MaxBalance, phases[i].MinBalance)
	}
	require.Zero(t, phases[len(phases)-1].MaxBalance)
}
