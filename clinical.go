package malariago

import (
	"math"

	"github.com/pkg/errors"
)

// Doomed codes. Negative values count down (in days) to an indirect
// death; positive values mark a host as dead for a specific reason.
const (
	notDoomed         = 0
	doomedTooOld      = 1
	doomedComplicated = 2
	doomedNeonatal    = 3
	doomedIndirect    = 4

	// doomedBoutSteps sets the indirect-death delay: the counter starts
	// at minus one step at the qualifying clinical bout, and the host
	// dies once it reaches minus doomedBoutSteps steps, five updates
	// after the bout.
	doomedBoutSteps = 6
)

// caseType indexes the uncomplicated regimens.
type caseType int

const (
	firstLine caseType = iota
	secondLine
	numCaseTypes
)

// ClinicalParams holds the health-system and clinical-model
// configuration, set once at load.
type ClinicalParams struct {
	// HealthSystemMemory is how long a previous treatment makes a new
	// episode a second-line case.
	HealthSystemMemory SimTime
	// IndirectMortBugfix selects whether uncomplicated events are also
	// run when the pathogenesis model flagged indirect mortality. The
	// historical behaviour (off) suppresses them; validity is debatable,
	// so the switch is preserved.
	IndirectMortBugfix bool

	// AccessUCOfficial1/2 are probabilities of seeking official care for
	// first/second-line uncomplicated cases; AccessUCSelfTreat is the
	// probability of self-treatment (first-line only, historically).
	AccessUCOfficial1 float64
	AccessUCOfficial2 float64
	AccessUCSelfTreat float64
	// AccessSevere is the probability of reaching hospital with severe
	// malaria.
	AccessSevere float64
	// CureRateSevere is the parasitological cure rate of hospital
	// treatment for severe malaria.
	CureRateSevere float64

	// CaseFatalityRate is the hospital CFR by age; CommunityOddsRatio
	// shifts it to the community (log-odds scale, already
	// exponentiated). CFRUseHospital uses the hospital CFR for
	// in-hospital treatment failures instead of the community rate.
	CaseFatalityRate   AgeCurve
	CommunityOddsRatio float64
	CFRUseHospital     bool
	// PSequelaeInpatient is the probability of sequelae among severe
	// survivors, by age.
	PSequelaeInpatient AgeCurve

	// NeonatalMortality is the risk of indirect death at the first
	// update after birth.
	NeonatalMortality float64

	// TreeUCOfficial and TreeUCSelfTreat are the compiled uncomplicated
	// case-management trees.
	TreeUCOfficial  DecisionNode
	TreeUCSelfTreat DecisionNode
	// TreatmentSevere clears blood-stage parasites on hospital success.
	TreatmentSevere TreatmentID
}

// accessUCAny returns the total probability of any care for a regimen.
func (p *ClinicalParams) accessUCAny(regimen caseType) float64 {
	if regimen == secondLine {
		return p.AccessUCOfficial2
	}
	return p.AccessUCOfficial1 + p.AccessUCSelfTreat
}

// accessUCSelfTreat returns the self-treatment probability for a
// regimen. The asymmetry (no self-treatment for second-line cases) is
// historical.
func (p *ClinicalParams) accessUCSelfTreat(regimen caseType) float64 {
	if regimen == secondLine {
		return 0.0
	}
	return p.AccessUCSelfTreat
}

// Validate checks probability ranges.
func (p *ClinicalParams) Validate() error {
	if p.AccessUCOfficial1 < 0 || p.AccessUCSelfTreat < 0 ||
		p.AccessUCOfficial1+p.AccessUCSelfTreat > 1.0 ||
		p.AccessUCOfficial2 < 0 || p.AccessUCOfficial2 > 1 ||
		p.AccessSevere < 0 || p.AccessSevere > 1 {
		return errors.New("health system: access probabilities must be in [0,1] and the sum of official and self-treatment access must be at most 1")
	}
	if p.CureRateSevere < 0 || p.CureRateSevere > 1 {
		return errors.Errorf(InvalidFloatParameterError, "severe cure rate", p.CureRateSevere, "must be in [0,1]")
	}
	if err := p.CaseFatalityRate.Validate(); err != nil {
		return errors.Wrap(err, "case fatality rate")
	}
	for _, v := range p.CaseFatalityRate.Values {
		if v < 0 || v > 1 {
			return errors.Errorf(InvalidFloatParameterError, "case fatality rate", v, "must be in [0,1]")
		}
	}
	if err := p.PSequelaeInpatient.Validate(); err != nil {
		return errors.Wrap(err, "sequelae probability")
	}
	if p.HealthSystemMemory <= ZeroTime {
		return errors.New("health system memory must be positive")
	}
	return nil
}

// communityCFR shifts the hospital case fatality rate to the community
// on the log-odds scale.
func (p *ClinicalParams) communityCFR(hospitalCFR float64) float64 {
	x := hospitalCFR * p.CommunityOddsRatio
	return x / (1 - hospitalCFR + x)
}

// Episode aggregates the observed clinical state of one bout. Bouts
// separated by less than the health-system memory belong to the same
// episode.
type Episode struct {
	Time   SimTime
	State  EpisodeState
	Origin InfectionOrigin
}

func (ep *Episode) encode(e *Encoder) {
	e.Time(ep.Time)
	e.U64(uint64(ep.State))
	e.I32(int32(ep.Origin))
}

func decodeEpisode(d *Decoder) Episode {
	var ep Episode
	ep.Time = d.Time()
	ep.State = EpisodeState(d.U64())
	ep.Origin = InfectionOrigin(d.I32())
	return ep
}

// ClinicalModel is the per-host clinical state machine: episode
// tracking, case management dispatch and the doomed counter.
type ClinicalModel struct {
	params *ClinicalParams
	clock  *Clock

	doomed                 int // negative: countdown in days; positive: dead
	tLastTreatment         SimTime
	treatmentSeekingFactor float64
	latestReport           Episode
	pathogenesis           *Pathogenesis
}

// NewClinicalModel creates per-host clinical state. tSF is the host's
// treatment-seeking heterogeneity factor.
func NewClinicalModel(params *ClinicalParams, clock *Clock, pathParams *PathogenesisParams, tSF float64) *ClinicalModel {
	return &ClinicalModel{
		params:                 params,
		clock:                  clock,
		tLastTreatment:         Never,
		treatmentSeekingFactor: tSF,
		latestReport:           Episode{Time: Never},
		pathogenesis:           NewPathogenesis(pathParams),
	}
}

// LatestReport returns the current episode record.
func (c *ClinicalModel) LatestReport() Episode { return c.latestReport }

// Pathogenesis exposes the per-host pathogenesis state.
func (c *ClinicalModel) Pathogenesis() *Pathogenesis { return c.pathogenesis }

// Doomed reports the raw doomed counter (tests and monitoring).
func (c *ClinicalModel) Doomed() int { return c.doomed }

// IsDead checks for death by any cause, marking hosts over the age
// limit.
func (c *ClinicalModel) IsDead(age SimTime) bool {
	if age >= c.clock.MaxHumanAge() {
		c.doomed = doomedTooOld
	}
	return c.doomed > notDoomed
}

// reportEpisode flushes an episode to monitoring.
func (c *ClinicalModel) reportEpisode(rep Reporter, hostID int) {
	if c.latestReport.State != StateNone {
		rep.ReportEpisode(hostID, c.latestReport)
	}
}

// updateEpisode merges a new bout into the episode record, flushing the
// previous episode if it fell outside the health-system memory.
func (c *ClinicalModel) updateEpisode(rep Reporter, host *Host, state EpisodeState) {
	now := c.clock.Ts0()
	if c.latestReport.Time.Add(c.params.HealthSystemMemory) < now {
		c.reportEpisode(rep, host.ID())
		c.latestReport = Episode{Time: now, State: state, Origin: host.WithinHost().InfectionOrigin()}
	} else {
		c.latestReport.Time = now
		c.latestReport.State |= state
	}
}

// Update runs the clinical layer for one time step, after the
// within-host update.
func (c *ClinicalModel) Update(host *Host, ageYears float64, newBorn bool) {
	rep := host.Reporter()
	if c.doomed < notDoomed {
		// countdown to indirect mortality
		c.doomed -= c.clock.OneTS().InDays()
	}
	// if this human is about to die indirectly, no further episodes
	if c.doomed <= -doomedBoutSteps*c.clock.OneTS().InDays() {
		rep.ReportInt(MeasureIndirectDeaths, host.ID(), 1)
		c.doomed = doomedIndirect
		return
	}
	if newBorn {
		if host.Rng().Bernoulli(c.params.NeonatalMortality) {
			rep.ReportInt(MeasureIndirectDeaths, host.ID(), 1)
			c.doomed = doomedNeonatal
			return
		}
	}

	c.doClinicalUpdate(host, ageYears)
}

func (c *ClinicalModel) doClinicalUpdate(host *Host, ageYears float64) {
	wh := host.WithinHost()
	pg := c.pathogenesis.DetermineMorbidity(host.Rng(), ageYears,
		wh.TimeStepMaxDensity(), wh.TotalDensity(), host.ComorbidityFactor(),
		c.clock.OneTS().InDays(), c.doomed != notDoomed)
	pgState := pg.State

	if pgState&StateMalaria != 0 {
		if pgState&StateComplicated != 0 {
			c.severeMalaria(host, pgState, ageYears)
		} else if c.params.IndirectMortBugfix || !pg.IndirectMortality {
			// the "not indirect mortality" gate is a historical
			// accident, kept switchable
			c.uncomplicatedEvent(host, pgState)
		}
	} else if pgState&StateSick != 0 {
		// sick but not from malaria
		c.uncomplicatedEvent(host, pgState)
	}

	if pg.IndirectMortality && c.doomed == notDoomed {
		c.doomed = -c.clock.OneTS().InDays()
	}

	if c.tLastTreatment == c.clock.Ts0() {
		host.RemoveFirstEvent(RemoveOnFirstTreatment)
	}
	if pgState&StateSick != 0 {
		host.RemoveFirstEvent(RemoveOnFirstBout)
	}
}

// uncomplicatedEvent resolves access to care and runs the appropriate
// uncomplicated decision tree.
func (c *ClinicalModel) uncomplicatedEvent(host *Host, pgState EpisodeState) {
	rep := host.Reporter()

	// if the last treatment was in recent memory, consider second-line
	regimen := firstLine
	if c.tLastTreatment.Add(c.params.HealthSystemMemory) > c.clock.Ts0() {
		pgState |= StateSecondCase
		regimen = secondLine
	}
	c.updateEpisode(rep, host, pgState)

	x := host.Rng().Uniform()
	if x < c.params.accessUCAny(regimen)*c.treatmentSeekingFactor {
		hostData := CMHostData{Host: host, AgeYears: host.Age(c.clock.Ts0()).InYears(), PgState: pgState}

		var output CMDTOut
		if x < c.params.accessUCSelfTreat(regimen)*c.treatmentSeekingFactor {
			output = c.params.TreeUCSelfTreat.exec(hostData)
		} else {
			output = c.params.TreeUCOfficial.exec(hostData)
		}

		if output.Treated {
			c.tLastTreatment = c.clock.Ts0()
			if regimen == firstLine {
				rep.ReportInt(MeasureTreatments1, host.ID(), 1)
			} else {
				rep.ReportInt(MeasureTreatments2, host.ID(), 1)
			}
		}
	}
	// else: no care sought
}

// severeMalaria resolves one of the nine mutually exclusive severe
// outcomes from a single uniform draw over the cumulative thresholds
// q[0..8].
func (c *ClinicalModel) severeMalaria(host *Host, pgState EpisodeState, ageYears float64) {
	rep := host.Reporter()

	// probability of getting treatment (the only case-management part)
	p2 := c.params.AccessSevere * c.treatmentSeekingFactor
	// probability of parasitological cure given treatment
	p3 := c.params.CureRateSevere
	// hospital case-fatality rate
	p4 := c.params.CaseFatalityRate.Eval(ageYears)
	// community threshold case-fatality rate
	p5a := c.params.communityCFR(p4)
	// in-hospital treatment-failure case-fatality rate; originally the
	// community CFR, but the published model description uses the
	// hospital CFR
	p5b := p5a
	if c.params.CFRUseHospital {
		p5b = p4
	}
	// P(sequelae) for treated patients and for parasitological failures
	p6 := c.params.PSequelaeInpatient.Eval(ageYears)
	p7 := p6

	var q [9]float64
	// community deaths
	q[0] = (1 - p2) * p5a
	// community sequelae
	q[1] = q[0] + (1-p2)*(1-p5a)*p7
	// community survival
	q[2] = q[1] + (1-p2)*(1-p5a)*(1-p7)
	// in-hospital parasitological failure deaths
	q[3] = q[2] + p2*(1-p3)*p5b
	// in-hospital parasitological failure sequelae
	q[4] = q[3] + p2*(1-p3)*(1-p5b)*p7
	// in-hospital parasitological failure survivors
	q[5] = q[4] + p2*(1-p3)*(1-p5b)*(1-p7)
	// in-hospital parasitological success deaths
	q[6] = q[5] + p2*p3*p4
	// in-hospital parasitological success sequelae
	q[7] = q[6] + p2*p3*(1-p4)*p6
	// in-hospital parasitological success survival
	q[8] = q[7] + p2*p3*(1-p4)*(1-p6)

	exHospitalDeath := p2 * (p3*p4 + (1-p3)*p5b)
	exDeath := exHospitalDeath + (1-p2)*p5a
	rep.ReportFloat(MeasureExpectedHospitalDeaths, host.ID(), exHospitalDeath)
	rep.ReportFloat(MeasureExpectedDirectDeaths, host.ID(), exDeath)
	exSeq := (p2*(p3*(1-p4)+(1-p3)*(1-p5b)) + (1-p2)*(1-p5a)) * p6
	rep.ReportFloat(MeasureExpectedSequelae, host.ID(), exSeq)

	prandom := host.Rng().Uniform()

	// diagnostics are not modelled for severe cases
	if prandom >= q[2] { // treated in hospital
		c.tLastTreatment = c.clock.Ts0()
		rep.ReportInt(MeasureTreatments3, host.ID(), 1)
		stateTreated := pgState | StateEventInHospital

		if prandom >= q[5] { // parasites cleared
			host.WithinHost().Treatment(host.TreatmentRegistry(), c.params.TreatmentSevere)

			if prandom < q[6] { // death despite parasite clearance
				c.updateEpisode(rep, host, stateTreated|StateDirectDeath)
				c.doomed = doomedComplicated
			} else if prandom < q[7] { // sequelae
				c.updateEpisode(rep, host, stateTreated|StateSequelae)
			} else { // full recovery
				c.updateEpisode(rep, host, stateTreated|StateRecovery)
			}
		} else { // treated but parasites not cleared
			if prandom < q[3] { // death
				c.updateEpisode(rep, host, stateTreated|StateDirectDeath)
				c.doomed = doomedComplicated
			} else if prandom < q[4] { // sequelae without clearance
				c.updateEpisode(rep, host, stateTreated|StateSequelae)
			} else { // full recovery from the episode
				c.updateEpisode(rep, host, pgState)
			}
		}
	} else { // not treated: no change in parasitological status
		if prandom < q[0] { // death in the community
			c.updateEpisode(rep, host, pgState|StateDirectDeath)
			c.doomed = doomedComplicated
		} else if prandom < q[1] { // sequelae in the community
			c.updateEpisode(rep, host, pgState|StateSequelae)
		} else { // full recovery in the community
			c.updateEpisode(rep, host, pgState)
		}
	}

	if math.Abs(q[8]-1.0) > 1e-9 {
		panic(invariantf("severe outcome probabilities sum to %v, not 1", q[8]))
	}
}

// Flush reports any open episode; called when the host dies or the
// simulation ends.
func (c *ClinicalModel) Flush(rep Reporter, hostID int) {
	c.reportEpisode(rep, hostID)
	c.latestReport = Episode{Time: Never}
}

func (c *ClinicalModel) encode(e *Encoder) {
	e.Int(c.doomed)
	e.Time(c.tLastTreatment)
	e.F64(c.treatmentSeekingFactor)
	c.latestReport.encode(e)
	c.pathogenesis.encode(e)
}

func decodeClinicalModel(params *ClinicalParams, clock *Clock, pathParams *PathogenesisParams, d *Decoder) *ClinicalModel {
	c := NewClinicalModel(params, clock, pathParams, 1.0)
	c.doomed = d.Int()
	c.tLastTreatment = d.Time()
	c.treatmentSeekingFactor = d.F64()
	c.latestReport = decodeEpisode(d)
	c.pathogenesis = decodePathogenesis(pathParams, d)
	return c
}
