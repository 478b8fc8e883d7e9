package orchestrator

import (
	"growth-core/internal/errs"
	"growth-core/pkg/config"
)

// ValidatePhases rejects overlapping or empty balance ranges. Ranges are
// half-open [min, max); a max of 0 means unbounded.
func ValidatePhases(phases []config.PhaseSpec) error {
	if len(phases) == 0 {
		return errs.Configf("phases", "no phases configured")
	}
	for i, p := range phases {
		if p.Name == "" {
			return errs.Configf("phases", "phase %d has no name", i)
		}
		if p.MaxBalance != 0 && p.MaxBalance <= p.MinBalance {
			return errs.Configf("phases", "phase %q range is empty", p.Name)
		}
		for _, q := range phases[i+1:] {
			if overlaps(p, q) {
				return errs.Configf("phases", "phases %q and %q overlap", p.Name, q.Name)
			}
		}
	}
	return nil
}

func overlaps(a, b config.PhaseSpec) bool {
	aMax, bMax := a.MaxBalance, b.MaxBalance
	if aMax == 0 && bMax == 0 {
		return true
	}
	if aMax == 0 {
		return bMax > a.MinBalance
	}
	if bMax == 0 {
		return aMax > b.MinBalance
	}
	return a.MinBalance < bMax && b.MinBalance < aMax
}

// DeterminePhase is a pure function of balance: it returns the phase whose
// [min, max) range contains the balance, recomputed on every account update
// rather than stored. No match is a configuration error.
//
// There is deliberately no hysteresis band: a balance oscillating around a
// threshold re-triggers a full teardown/rebuild each crossing.
func DeterminePhase(phases []config.PhaseSpec, balance float64) (config.PhaseSpec, error) {
	for _, p := range phases {
		if balance >= p.MinBalance && (p.MaxBalance == 0 || balance < p.MaxBalance) {
			return p, nil
		}
	}
	return config.PhaseSpec{}, errs.Configf("phases", "no phase covers balance %.2f", balance)
}
