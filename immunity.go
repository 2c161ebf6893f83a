package malariago

import (
	"math"

	"github.com/pkg/errors"
)

// ImmunityParams configures acquired and innate immunity. The decay
// parameters are given as per-step survival proportions, already
// exponentiated at load.
type ImmunityParams struct {
	// CumulativeHstar and CumulativeYstar are the saturation constants
	// of the infection-count and density-exposure immunity effects.
	CumulativeHstar float64
	CumulativeYstar float64
	// AlphaM and DecayM parameterise age-dependent maternal immunity.
	AlphaM float64
	DecayM float64
	// SigmaI is the standard deviation of the innate-immunity lognormal,
	// sampled once per host at birth.
	SigmaI float64
	// ImmPenalty is the fraction of newly acquired exposure immunity
	// lost on a clinical episode.
	ImmPenalty float64
	// ImmEffectorRemain is the per-step survival of immune effectors.
	ImmEffectorRemain float64
	// AsexImmRemain is the per-step survival of asexual-stage immunity.
	AsexImmRemain float64
}

// DefaultImmunityParams returns the standard parameterisation.
func DefaultImmunityParams() ImmunityParams {
	return ImmunityParams{
		CumulativeHstar:   97.3,
		CumulativeYstar:   3.5e7,
		AlphaM:            0.9,
		DecayM:            2.53,
		SigmaI:            math.Sqrt(0.177378570987455),
		ImmPenalty:        0.0,
		ImmEffectorRemain: 1.0,
		AsexImmRemain:     1.0,
	}
}

// Validate checks the parameters are usable.
func (p *ImmunityParams) Validate() error {
	if p.CumulativeHstar <= 0 || p.CumulativeYstar <= 0 {
		return errors.Errorf(InvalidFloatParameterError, "immunity saturation constant", p.CumulativeHstar, "must be positive")
	}
	if p.ImmEffectorRemain < 0 || p.ImmEffectorRemain > 1 {
		return errors.Errorf(InvalidFloatParameterError, "immune effector survival", p.ImmEffectorRemain, "must be in [0,1]")
	}
	if p.AsexImmRemain < 0 || p.AsexImmRemain > 1 {
		return errors.Errorf(InvalidFloatParameterError, "asexual immunity survival", p.AsexImmRemain, "must be in [0,1]")
	}
	if p.SigmaI < 0 {
		return errors.Errorf(InvalidFloatParameterError, "sigma_i", p.SigmaI, "must be non-negative")
	}
	return nil
}

// sampleInnateImmunity draws the host's innate-immunity survival
// multiplier at birth.
func (p *ImmunityParams) sampleInnateImmunity(rng *Rand) float64 {
	return math.Exp(-rng.Gauss(0, p.SigmaI))
}
