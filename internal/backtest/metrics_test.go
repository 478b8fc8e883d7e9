package backtest

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMaxDrawdown(t *testing.T) {
	cases := []struct {
		name   string
		equity []float64
		want   float64
	}{
		{"empty", nil, 0},
		{"monotonic up", []float64{100, 110, 120}, 0},
		{"single dip", []float64{100, 120, 90, 130}, 0.25},
		{"full history peak", []float64{100, 50, 75, 60}, 0.5},
		{"spec drawdown example", []float64{100, 120, 100}, 1.0 / 6.0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.InDelta(t, tc.want, MaxDrawdown(tc.equity), 1e-9)
		})
	}
}

func TestMaxDrawdownScaleInvariant(t *testing.T) {
	curve := []float64{100, 140, 90, 160, 120}
	scaled := make([]float64, len(curve))
	for i, v := range curve {
		scaled[i] = v * 1000
	}
	require.InDelta(t, MaxDrawdown(curve), MaxDrawdown(scaled), 1e-12)
}

func TestReturns(t *testing.T) {
	got := Returns([]float64{100, 110, 99})
	require.Len(t, got, 2)
	require.InDelta(t, 0.10, got[0], 1e-9)
	require.InDelta(t, -0.1, got[1], 1e-9)

	require.Nil(t, Returns([]float64{100}))
	require.Nil(t, Returns(nil))
}

func TestSharpeSign(t *testing.T) {
	up := []float64{0.01, 0.012, 0.009, 0.011, 0.01}
	down := []float64{-0.01, -0.012, -0.009, -0.011, -0.01}
	require.Positive(t, Sharpe(up, 0))
	require.Negative(t, Sharpe(down, 0))
	require.Zero(t, Sharpe([]float64{0.01}, 0))
}

func TestSortinoIgnoresUpsideVariance(t *testing.T) {
	// Same downside, wildly different upside: Sortino should not punish the
	// bigger winners.
	steady := []float64{0.01, -0.005, 0.01, -0.005, 0.01}
	spiky := []float64{0.05, -0.005, 0.08, -0.005, 0.05}
	// Identical losses still carry downside risk; the ratio must not
	// degenerate to zero just because the losses do not vary.
	require.Positive(t, Sortino(steady, 0))
	require.Positive(t, Sortino(spiky, 0))
	require.Greater(t, Sortino(spiky, 0), Sortino(steady, 0))
}

func TestSortinoNoDownside(t *testing.T) {
	require.Zero(t, Sortino([]float64{0.01, 0.02, 0.015}, 0))
	require.Zero(t, Sortino([]float64{0.01}, 0))
}

func TestAnnualizedVolatility(t *testing.T) {
	require.Zero(t, AnnualizedVolatility(nil))
	require.Zero(t, AnnualizedVolatility([]float64{0.01}))

	flat := []float64{0.01, 0.01, 0.01}
	require.Zero(t, AnnualizedVolatility(flat))

	noisy := []float64{0.05, -0.05, 0.05, -0.05}
	require.Positive(t, AnnualizedVolatility(noisy))
}
