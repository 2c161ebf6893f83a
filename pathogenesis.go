package malariago

import "github.com/pkg/errors"

// EpisodeState is a bit field describing the clinical state of a host
// during one episode. The low bits are produced by the pathogenesis
// model; the high bits are added by case management and outcome
// resolution.
type EpisodeState uint32

const (
	// StateNone means no clinical event.
	StateNone EpisodeState = 0
	// StateSick is any fever (malarial or not).
	StateSick EpisodeState = 1 << iota
	// StateMalaria is a malarial fever.
	StateMalaria
	// StateComplicated marks severe malaria or coinfection.
	StateComplicated
	// StateNMFever marks a non-malaria fever.
	StateNMFever

	// StateSecondCase marks an episode within the health-system memory
	// of a previous treatment.
	StateSecondCase
	// StateEventInHospital marks in-hospital management.
	StateEventInHospital
	// StateDirectDeath is death directly caused by the episode.
	StateDirectDeath
	// StateSequelae marks survival with sequelae.
	StateSequelae
	// StateRecovery marks full recovery under treatment.
	StateRecovery
)

// StatePair couples the episode state bits with the separate
// indirect-mortality flag.
type StatePair struct {
	State EpisodeState
	// IndirectMortality starts the delayed indirect-death countdown.
	IndirectMortality bool
}

// PathogenesisParams configures the pyrogenic-threshold morbidity
// model.
type PathogenesisParams struct {
	// InitPyrogenThres is the pyrogenic threshold at birth.
	InitPyrogenThres float64
	// Ystar2 saturates the density term of threshold growth.
	Ystar2 float64
	// Alpha scales threshold growth.
	Alpha float64
	// Ystar1 damps threshold growth at high thresholds.
	Ystar1 float64
	// SMuY is the threshold decay rate (per day).
	SMuY float64

	// SevereYstar is the density at which the severe-malaria
	// probability is one half.
	SevereYstar float64
	// ComorbSevere is the comorbidity contribution to severe disease.
	ComorbSevere float64
	// CriticalAgeComorb scales comorbidity down with age (years).
	CriticalAgeComorb float64
	// IndirectRisk is the per-episode baseline risk of triggering
	// indirect mortality.
	IndirectRisk float64

	// NonMalariaFever enables NMF events with the given yearly
	// incidence per capita, interpolated over age.
	NonMalariaFever bool
	NMFIncidence    AgeCurve
}

// DefaultPathogenesisParams returns the standard parameterisation.
func DefaultPathogenesisParams() PathogenesisParams {
	return PathogenesisParams{
		InitPyrogenThres:  0.0,
		Ystar2:            4.7601,
		Alpha:             0.5008,
		Ystar1:            2.2736,
		SMuY:              0.2315,
		SevereYstar:       784000.0,
		ComorbSevere:      0.0968,
		CriticalAgeComorb: 0.117,
		IndirectRisk:      0.018,
	}
}

// Validate checks the parameters.
func (p *PathogenesisParams) Validate() error {
	if p.Ystar2 <= 0 || p.Ystar1 <= 0 {
		return errors.Errorf(InvalidFloatParameterError, "pyrogenic threshold saturation", p.Ystar2, "must be positive")
	}
	if p.SevereYstar <= 0 {
		return errors.Errorf(InvalidFloatParameterError, "severe density threshold", p.SevereYstar, "must be positive")
	}
	if p.CriticalAgeComorb <= 0 {
		return errors.Errorf(InvalidFloatParameterError, "critical comorbidity age", p.CriticalAgeComorb, "must be positive")
	}
	if p.NonMalariaFever {
		if err := p.NMFIncidence.Validate(); err != nil {
			return errors.Wrap(err, "NMF incidence")
		}
	}
	return nil
}

// Pathogenesis holds the per-host morbidity state: the adaptive
// pyrogenic threshold Y*.
type Pathogenesis struct {
	params       *PathogenesisParams
	pyrogenThres float64
}

// NewPathogenesis creates per-host pathogenesis state.
func NewPathogenesis(params *PathogenesisParams) *Pathogenesis {
	return &Pathogenesis{params: params, pyrogenThres: params.InitPyrogenThres}
}

// PyrogenThreshold returns the current threshold.
func (p *Pathogenesis) PyrogenThreshold() float64 { return p.pyrogenThres }

// DetermineMorbidity maps this step's densities and the host's
// comorbidity factor to a clinical state. doomed hosts generate no new
// events.
func (p *Pathogenesis) DetermineMorbidity(rng *Rand, ageYears float64,
	timeStepMaxDensity, totalDensity, comorbidityFactor float64, stepDays int, doomed bool) StatePair {

	prEpisode := timeStepMaxDensity / (timeStepMaxDensity + p.pyrogenThres + 1.0)
	p.updatePyrogenThres(totalDensity, stepDays)

	var out StatePair
	if doomed {
		return out
	}

	comorb := comorbidityFactor / (1.0 + ageYears/p.params.CriticalAgeComorb)

	if timeStepMaxDensity > 0 && rng.Bernoulli(prEpisode) {
		out.State = StateSick | StateMalaria
		// severe disease through overwhelming parasitaemia or
		// coinfection
		prSevere := timeStepMaxDensity / (timeStepMaxDensity + p.params.SevereYstar)
		prSevere += (1.0 - prSevere) * p.params.ComorbSevere * comorb
		if rng.Bernoulli(prSevere) {
			out.State |= StateComplicated
		}
		out.IndirectMortality = rng.Bernoulli(p.params.IndirectRisk * comorb)
	} else if p.params.NonMalariaFever {
		pNMF := p.params.NMFIncidence.Eval(ageYears) * float64(stepDays) / DaysInYear
		if rng.Bernoulli(pNMF) {
			out.State = StateSick | StateNMFever
		}
	}
	return out
}

// updatePyrogenThres integrates the threshold dynamics over the step
// with a fixed number of substeps per day.
func (p *Pathogenesis) updatePyrogenThres(density float64, stepDays int) {
	const n = 11
	delt := 1.0 / n
	for i := 0; i < stepDays*n; i++ {
		growth := p.params.Alpha * density /
			((p.params.Ystar2 + density) * (p.params.Ystar1 + p.pyrogenThres))
		p.pyrogenThres += growth*delt - p.params.SMuY*p.pyrogenThres*delt
		if p.pyrogenThres < 0 {
			p.pyrogenThres = 0
		}
	}
}

func (p *Pathogenesis) encode(e *Encoder) {
	e.F64(p.pyrogenThres)
}

func decodePathogenesis(params *PathogenesisParams, d *Decoder) *Pathogenesis {
	p := NewPathogenesis(params)
	p.pyrogenThres = d.F64()
	return p
}
