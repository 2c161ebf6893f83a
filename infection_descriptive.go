package malariago

import (
	"math"

	"github.com/pkg/errors"
)

// DescriptiveInfection is the classic 5-day-step infection model: each
// step draws a stochastic density from an age-indexed empirical profile,
// adjusted by the survival factor supplied by the aggregator. The
// infection self-terminates after a random duration.

// descriptiveStepDays is the only step length the descriptive model
// supports.
const descriptiveStepDays = 5

// DescriptiveParams configures the empirical density profile.
type DescriptiveParams struct {
	// MeanLogDensity is indexed by blood-stage age in 5-day steps; ages
	// beyond the table reuse the last entry.
	MeanLogDensity []float64
	// SigmaLogDensity is the common log-density standard deviation.
	SigmaLogDensity float64

	// Duration is sampled as exp(Gauss(DurationMu, DurationSigma)) days,
	// bounded to [MinDurationDays, MaxDurationDays].
	DurationMu      float64
	DurationSigma   float64
	MinDurationDays int
	MaxDurationDays int

	// MaxDensCorrection enables the corrected max-density accounting;
	// disabling reproduces the legacy (buggy) behaviour.
	MaxDensCorrection bool
	// InnateMaxDens keeps the step maximum density as a running maximum
	// over the host's infections; when off, each infection's update
	// replaces it with that infection's own maximum. No innate immunity
	// factor is applied here beyond the one already in the survival
	// factor.
	InnateMaxDens bool

	// ExtinctionDensity removes infections whose drawn density falls
	// below it.
	ExtinctionDensity float64
}

// DefaultDescriptiveParams returns the standard profile: a rapid rise to
// a peak around a month after patency followed by a slow decline.
func DefaultDescriptiveParams() DescriptiveParams {
	// ~2 years of 5-day steps
	const steps = 146
	mean := make([]float64, steps)
	for i := range mean {
		ageDays := float64(i * descriptiveStepDays)
		rise := 1.0 - math.Exp(-ageDays/10.0)
		decline := math.Exp(-ageDays / 130.0)
		mean[i] = math.Log(5.0) + 6.2*rise*decline
	}
	return DescriptiveParams{
		MeanLogDensity:    mean,
		SigmaLogDensity:   0.8,
		DurationMu:        5.13,
		DurationSigma:     0.80,
		MinDurationDays:   5,
		MaxDurationDays:   2 * DaysInYear,
		MaxDensCorrection: true,
		InnateMaxDens:     true,
		ExtinctionDensity: 0.02,
	}
}

// Validate checks the profile is usable.
func (p *DescriptiveParams) Validate() error {
	if len(p.MeanLogDensity) == 0 {
		return errors.Errorf(InvalidIntParameterError, "descriptive density profile length", 0, "must not be empty")
	}
	if p.SigmaLogDensity < 0 {
		return errors.Errorf(InvalidFloatParameterError, "descriptive sigma", p.SigmaLogDensity, "must be non-negative")
	}
	if p.MinDurationDays < descriptiveStepDays {
		return errors.Errorf(InvalidIntParameterError, "descriptive minimum duration", p.MinDurationDays, "must be at least one step")
	}
	if p.MaxDurationDays <= p.MinDurationDays {
		return errors.Errorf(InvalidIntParameterError, "descriptive maximum duration", p.MaxDurationDays, "must exceed the minimum")
	}
	return nil
}

// DescriptiveInfection carries the per-infection state.
type DescriptiveInfection struct {
	infectionCore

	duration SimTime // blood-stage lifetime, sampled at creation

	params *DescriptiveParams
}

// NewDescriptiveInfectionFactory returns the factory for the
// descriptive model. The model requires a 5-day time step; the config
// layer enforces that.
func NewDescriptiveInfectionFactory(params *DescriptiveParams) InfectionFactory {
	return InfectionFactory{
		Create: func(rng *Rand, now SimTime, genotype GenotypeID, origin InfectionOrigin, hrp2Deficient bool) Infection {
			inf := &DescriptiveInfection{
				infectionCore: newInfectionCore(now, genotype, origin, hrp2Deficient),
				params:        params,
			}
			d := math.Exp(rng.Gauss(params.DurationMu, params.DurationSigma))
			if d < float64(params.MinDurationDays) {
				d = float64(params.MinDurationDays)
			}
			if d > float64(params.MaxDurationDays) {
				d = float64(params.MaxDurationDays)
			}
			inf.duration = FromDays(int(d))
			return inf
		},
		Decode: func(d *Decoder) Infection {
			inf := &DescriptiveInfection{infectionCore: decodeInfectionCore(d)}
			inf.duration = d.Time()
			inf.params = params
			return inf
		},
	}
}

// updateDensity draws a fresh density at the start of each 5-day step
// and holds it on the intervening days. The survival factor is applied
// once per step, at the draw.
func (inf *DescriptiveInfection) updateDensity(rng *Rand, survivalFactor float64, bloodStageAge SimTime, bodyMass float64) bool {
	stepMax := 0.0
	return inf.updateDensity5Day(rng, survivalFactor, bloodStageAge, &stepMax)
}

// updateDensity5Day is the full update used by the aggregator: stepMax
// carries the maximum density over the host's infections this step.
// With the legacy accounting (MaxDensCorrection off) an infection's own
// maximum starts from that carried value instead of zero. The drawn
// density does not depend on stepMax.
func (inf *DescriptiveInfection) updateDensity5Day(rng *Rand, survivalFactor float64, bloodStageAge SimTime, stepMax *float64) bool {
	if bloodStageAge >= inf.duration {
		return true // self-termination
	}
	if bloodStageAge.InDays()%descriptiveStepDays != 0 {
		// density holds between steps; exposure still accumulates
		inf.cumulativeExposureJ += inf.density
		return false
	}

	p := inf.params
	step := bloodStageAge.InDays() / descriptiveStepDays
	if step >= len(p.MeanLogDensity) {
		step = len(p.MeanLogDensity) - 1
	}
	meanLog := p.MeanLogDensity[step]
	density := math.Exp(rng.Gauss(meanLog, p.SigmaLogDensity)) * survivalFactor

	infStepMax := *stepMax
	if p.MaxDensCorrection {
		infStepMax = 0.0
	}
	if density > infStepMax {
		infStepMax = density
	}
	if p.InnateMaxDens {
		// keep the running maximum over the host's infections
		*stepMax = math.Max(*stepMax, infStepMax)
	} else {
		*stepMax = infStepMax
	}

	if density < p.ExtinctionDensity {
		return true
	}
	inf.density = density
	inf.cumulativeExposureJ += inf.density
	return false
}

func (inf *DescriptiveInfection) encode(e *Encoder) {
	inf.encodeCore(e)
	e.Time(inf.duration)
}
