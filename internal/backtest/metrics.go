package backtest

import "math"

// MaxDrawdown returns the largest fractional peak-to-trough decline of the
// equity curve, using the running maximum as the peak. The result is
// invariant to scaling the whole curve by a positive constant.
func MaxDrawdown(equity []float64) float64 {
	var peak, maxDD float64
	for _, e := range equity {
		if e > peak {
			peak = e
		}
		if peak > 0 {
			if dd := (peak - e) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// Returns converts an equity curve into period returns.
func Returns(equity []float64) []float64 {
	if len(equity) < 2 {
		return nil
	}
	out := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		if equity[i-1] <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, equity[i]/equity[i-1]-1)
	}
	return out
}

// Sharpe computes the annualized Sharpe ratio over daily returns with a
// fixed daily risk-free rate.
func Sharpe(returns []float64, riskFreeDaily float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	excess := make([]float64, len(returns))
	for i, r := range returns {
		excess[i] = r - riskFreeDaily
	}
	mean := meanOf(excess)
	sd := stdevOf(excess, mean)
	if sd == 0 {
		return 0
	}
	return mean / sd * math.Sqrt(365)
}

// Sortino is Sharpe's numerator over the downside deviation: the root mean
// square of negative excess returns, taken about zero over all samples.
// Upside variance never enters the denominator.
func Sortino(returns []float64, riskFreeDaily float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	var sum, downSq float64
	for _, r := range returns {
		ex := r - riskFreeDaily
		sum += ex
		if ex < 0 {
			downSq += ex * ex
		}
	}
	dsd := math.Sqrt(downSq / float64(len(returns)))
	if dsd == 0 {
		return 0
	}
	mean := sum / float64(len(returns))
	return mean / dsd * math.Sqrt(365)
}

// AnnualizedVolatility is the stdev of returns scaled by √252 trading days.
func AnnualizedVolatility(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean := meanOf(returns)
	return stdevOf(returns, mean) * math.Sqrt(252)
}

func meanOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stdevOf(xs []float64, mean float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}
