package orchestrator

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"growth-core/pkg/config"
)

func TestValidatePhasesAcceptsDefaults(t *testing.T) {
	require.NoError(t, ValidatePhases(config.DefaultPhases()))
}

func TestValidatePhasesRejectsOverlap(t *testing.T) {
	phases := []config.PhaseSpec{
		{Name: "a", MinBalance: 0, MaxBalance: 1000},
		{Name: "b", MinBalance: 500, MaxBalance: 2000},
	}
	require.Error(t, ValidatePhases(phases))
}

func TestValidatePhasesRejectsOverlappingUnbounded(t *testing.T) {
	phases := []config.PhaseSpec{
		{Name: "a", MinBalance: 0, MaxBalance: 0}, // unbounded from zero
		{Name: "b", MinBalance: 500, MaxBalance: 2000},
	}
	require.Error(t, ValidatePhases(phases))
}

func TestDeterminePhaseBoundaries(t *testing.T) {
	phases := config.DefaultPhases()
	cases := []struct {
		balance float64
		want    string
	}{
		{0, "initial"},
		{500, "initial"},
		{999.99, "initial"},
		{1000, "growth"}, // lower bound inclusive, upper exclusive
		{9999.99, "growth"},
		{10000, "scaling"},
		{1e9, "scaling"}, // unbounded top tier
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("balance=%v", tc.balance), func(t *testing.T) {
			got, err := DeterminePhase(phases, tc.balance)
			require.NoError(t, err)
			require.Equal(t, tc.want, got.Name)
		})
	}
}

func TestDeterminePhaseEveryBalanceHasExactlyOnePhase(t *testing.T) {
	phases := config.DefaultPhases()
	for b := 0.0; b < 20000; b += 137.5 {
		var matches int
		for _, p := range phases {
			if b >= p.MinBalance && (p.MaxBalance == 0 || b < p.MaxBalance) {
				matches++
			}
		}
		require.Equal(t, 1, matches, "balance %v", b)
	}
}

func TestDeterminePhaseNoMatch(t *testing.T) {
	phases := []config.PhaseSpec{{Name: "a", MinBalance: 100, MaxBalance: 200}}
	_, err := DeterminePhase(phases, 50)
	require.Error(t, err)
}

func TestErrorRingBounded(t *testing.T) {
	var ring errorRing
	for i := 0; i < 150; i++ {
		ring.add("ctx", fmt.Errorf("failure %d", i))
	}
	records := ring.snapshot()
	require.Len(t, records, maxErrorRecords)
	// Oldest entries roll off; the newest survives.
	require.Equal(t, "failure 149", records[len(records)-1].Message)
	require.Equal(t, "failure 50", records[0].Message)
}
