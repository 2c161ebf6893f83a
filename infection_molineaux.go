package malariago

import (
	"math"

	"github.com/pkg/errors"
)

// MolineauxInfection implements the variant-switching intrahost model of
// Molineaux et al (2001): 50 antigenic variants replicate on a two-day
// cycle under variant-specific, variant-transcending and innate control.
// Per-infection quantities (density of the first local maximum, mean log
// duration) are sampled from normal distributions with the published
// parameters, from gamma distributions, or pairwise from recorded
// (maximum, duration) pairs, depending on the model options.
const (
	molVariants = 50
	// molCycle is the length of the intrinsic replication cycle in days.
	molCycle = 2
	// molSwitchFraction is the fraction of each variant's progeny
	// switching expression to the next variant per cycle.
	molSwitchFraction = 0.02
	// molKappaC and molKappaM are the stiffness parameters of the innate
	// and variant-transcending response curves.
	molKappaC = 3.0
	molKappaM = 3.0
	// molExtinctionDensity ends the infection when the total density
	// falls below it (parasites/microlitre).
	molExtinctionDensity = 1e-4
	// molSeedDensity is the density of the first variant when the blood
	// stage begins.
	molSeedDensity = 0.1
)

// MolineauxOptions selects the per-infection parameter sampling scheme.
type MolineauxOptions struct {
	FirstLocalMaximumGamma   bool
	MeanDurationGamma        bool
	ParasiteReplicationGamma bool
	// PairwiseSample draws (first local maximum, mean duration) jointly
	// from the configured pairs instead of independently.
	PairwiseSample bool
}

// MolineauxParams holds population-level sampling parameters.
type MolineauxParams struct {
	// First local maximum of log10 density: normal (or matched gamma).
	FirstLocalMaxMu    float64
	FirstLocalMaxSigma float64
	// Mean log duration of the infection in days.
	MeanDurationMu    float64
	MeanDurationSigma float64
	// Per-variant multiplication factor per two-day cycle, lognormal
	// around the published mean of 16.
	MultFactorMu    float64
	MultFactorSigma float64
	// Pairwise samples of (first local maximum log10 density, mean log
	// duration), required when the pairwise option is set.
	PairwiseSamples [][2]float64
}

// DefaultMolineauxParams returns the published sampling parameters.
func DefaultMolineauxParams() MolineauxParams {
	return MolineauxParams{
		FirstLocalMaxMu:    4.79,
		FirstLocalMaxSigma: 1.20,
		MeanDurationMu:     5.13,
		MeanDurationSigma:  0.80,
		MultFactorMu:       math.Log(16.0),
		MultFactorSigma:    0.80,
	}
}

// Validate checks option/parameter consistency.
func (p *MolineauxParams) Validate(opts MolineauxOptions) error {
	if opts.PairwiseSample && len(p.PairwiseSamples) == 0 {
		return errors.New("molineaux: pairwise sampling requested but no sample pairs configured")
	}
	if opts.PairwiseSample && (opts.FirstLocalMaximumGamma || opts.MeanDurationGamma) {
		return errors.New("molineaux: pairwise sampling excludes gamma sampling of first local maximum and mean duration")
	}
	if p.FirstLocalMaxSigma <= 0 || p.MeanDurationSigma <= 0 {
		return errors.Errorf(InvalidFloatParameterError, "molineaux sigma", p.FirstLocalMaxSigma, "must be positive")
	}
	return nil
}

// gammaFromMoments converts a mean/sd pair to gamma shape and scale.
func gammaFromMoments(mean, sd float64) (shape, scale float64) {
	v := sd * sd
	shape = mean * mean / v
	scale = v / mean
	return
}

// MolineauxInfection carries the per-infection state.
type MolineauxInfection struct {
	infectionCore

	variants    [molVariants]float64 // current variant densities
	varImmunity [molVariants]float64 // cumulative per-variant exposure
	multFactors [molVariants]float64 // per-variant replication per cycle

	cumulativeDensity float64 // total exposure for transcending immunity
	pStarC            float64 // innate response threshold
	pStarM            float64 // variant-transcending response threshold
}

// NewMolineauxInfectionFactory returns the factory for the Molineaux
// model. The model requires a 1-day time step; the config layer
// enforces that.
func NewMolineauxInfectionFactory(params *MolineauxParams, opts MolineauxOptions) InfectionFactory {
	return InfectionFactory{
		Create: func(rng *Rand, now SimTime, genotype GenotypeID, origin InfectionOrigin, hrp2Deficient bool) Infection {
			inf := &MolineauxInfection{
				infectionCore: newInfectionCore(now, genotype, origin, hrp2Deficient),
			}

			var firstLocalMax, meanLogDuration float64
			if opts.PairwiseSample {
				pair := params.PairwiseSamples[rng.Intn(len(params.PairwiseSamples))]
				firstLocalMax, meanLogDuration = pair[0], pair[1]
			} else {
				if opts.FirstLocalMaximumGamma {
					shape, scale := gammaFromMoments(params.FirstLocalMaxMu, params.FirstLocalMaxSigma)
					firstLocalMax = rng.Gamma(shape, scale)
				} else {
					firstLocalMax = rng.Gauss(params.FirstLocalMaxMu, params.FirstLocalMaxSigma)
				}
				if opts.MeanDurationGamma {
					shape, scale := gammaFromMoments(params.MeanDurationMu, params.MeanDurationSigma)
					meanLogDuration = rng.Gamma(shape, scale)
				} else {
					meanLogDuration = rng.Gauss(params.MeanDurationMu, params.MeanDurationSigma)
				}
			}

			// The innate threshold pins the first local maximum; the
			// transcending threshold grows with the intended duration so
			// that longer infections accumulate more total exposure
			// before control.
			inf.pStarC = math.Pow(10, firstLocalMax)
			inf.pStarM = math.Exp(meanLogDuration) * inf.pStarC / float64(molCycle)

			for i := 0; i < molVariants; i++ {
				if opts.ParasiteReplicationGamma {
					shape, scale := gammaFromMoments(math.Exp(params.MultFactorMu), params.MultFactorSigma*math.Exp(params.MultFactorMu))
					inf.multFactors[i] = rng.Gamma(shape, scale)
				} else {
					inf.multFactors[i] = rng.LogNormal(params.MultFactorMu, params.MultFactorSigma)
				}
			}
			return inf
		},
		Decode: decodeMolineauxInfection,
	}
}

func (inf *MolineauxInfection) updateDensity(rng *Rand, survivalFactor float64, bloodStageAge SimTime, bodyMass float64) bool {
	if bloodStageAge == ZeroTime {
		inf.variants[0] = molSeedDensity
	} else if bloodStageAge.InDays()%molCycle == 0 {
		// start of a replication cycle: replicate each expressed variant
		// under the three layers of control, then switch a fraction of
		// the progeny to the next variant
		total := inf.totalDensity()
		sC := 1.0 / (1.0 + math.Pow(total/inf.pStarC, molKappaC))
		sM := 1.0 / (1.0 + math.Pow(inf.cumulativeDensity/inf.pStarM, molKappaM))

		var next [molVariants]float64
		for i := 0; i < molVariants; i++ {
			p := inf.variants[i]
			if p <= 0 {
				continue
			}
			// variant-specific control saturates with this variant's own
			// cumulative exposure
			sVar := 1.0 / (1.0 + inf.varImmunity[i]/inf.pStarC)
			grown := p * inf.multFactors[i] * sVar * sM * sC
			switched := grown * molSwitchFraction
			next[i] += grown - switched
			if i+1 < molVariants {
				next[i+1] += switched
			}
		}
		inf.variants = next
	}

	// drugs, vaccines and host immunity act daily on all variants
	for i := 0; i < molVariants; i++ {
		inf.variants[i] *= survivalFactor
		inf.varImmunity[i] += inf.variants[i]
	}

	total := inf.totalDensity()
	inf.density = total
	inf.cumulativeDensity += total
	inf.cumulativeExposureJ += total

	return total < molExtinctionDensity
}

func (inf *MolineauxInfection) totalDensity() float64 {
	var total float64
	for i := 0; i < molVariants; i++ {
		total += inf.variants[i]
	}
	return total
}

func (inf *MolineauxInfection) encode(e *Encoder) {
	inf.encodeCore(e)
	for i := 0; i < molVariants; i++ {
		e.F64(inf.variants[i])
	}
	for i := 0; i < molVariants; i++ {
		e.F64(inf.varImmunity[i])
	}
	for i := 0; i < molVariants; i++ {
		e.F64(inf.multFactors[i])
	}
	e.F64(inf.cumulativeDensity)
	e.F64(inf.pStarC)
	e.F64(inf.pStarM)
}

func decodeMolineauxInfection(d *Decoder) Infection {
	inf := &MolineauxInfection{infectionCore: decodeInfectionCore(d)}
	for i := 0; i < molVariants; i++ {
		inf.variants[i] = d.F64()
	}
	for i := 0; i < molVariants; i++ {
		inf.varImmunity[i] = d.F64()
	}
	for i := 0; i < molVariants; i++ {
		inf.multFactors[i] = d.F64()
	}
	inf.cumulativeDensity = d.F64()
	inf.pStarC = d.F64()
	inf.pStarM = d.F64()
	return inf
}
