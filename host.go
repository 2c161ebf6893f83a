package malariago

import (
	"math"
	"sort"

	"github.com/rs/zerolog"
)

// RemoveEvent identifies events that can trigger removal from a
// sub-population (cohort).
type RemoveEvent int

const (
	// RemoveOnFirstTreatment drops membership when the host first
	// receives treatment.
	RemoveOnFirstTreatment RemoveEvent = iota
	// RemoveOnFirstBout drops membership at the host's first clinical
	// bout.
	RemoveOnFirstBout
)

// CohortSpec defines a sub-population and its removal triggers.
type CohortSpec struct {
	Name                   string
	RemoveOnFirstTreatment bool
	RemoveOnFirstBout      bool
}

// Host is one simulated human: date of birth, its own random stream,
// heterogeneity factors, within-host and clinical state, and cohort
// memberships. Hosts are created at birth, mutated only by their own
// update, and removed on death or at the age limit.
type Host struct {
	id  int
	dob SimTime
	rng *Rand

	comorbidityFactor float64

	withinHost *WithinHost
	clinical   *ClinicalModel

	cohorts     map[string]bool
	cohortSpecs map[string]*CohortSpec

	clock        *Clock
	treatmentReg *TreatmentRegistry
	reporter     Reporter

	// bsv maps a genotype to the blood-stage vaccine survival factor; 1
	// means no vaccine effect.
	bsv func(GenotypeID) float64
	// deployHook receives intervention deployments from decision trees.
	deployHook func(names []string)
}

// HostSetup bundles the shared collaborators a host needs.
type HostSetup struct {
	Clock        *Clock
	WHParams     *WithinHostParams
	ClinParams   *ClinicalParams
	PathParams   *PathogenesisParams
	Genotypes    *Genotypes
	Factory      InfectionFactory
	DrugReg      *DrugRegistry
	Treatments   *TreatmentLibrary
	TreatmentReg *TreatmentRegistry
	Logger       zerolog.Logger
	// ComorbiditySigma and TreatSeekSigma are the lognormal sigmas of
	// the per-host heterogeneity multipliers.
	ComorbiditySigma float64
	TreatSeekSigma   float64
	Cohorts          []CohortSpec
}

// NewHost creates a host born at dob with its own RNG stream.
func NewHost(id int, dob SimTime, rng *Rand, setup *HostSetup) *Host {
	h := &Host{
		id:           id,
		dob:          dob,
		rng:          rng,
		clock:        setup.Clock,
		treatmentReg: setup.TreatmentReg,
		cohorts:      make(map[string]bool),
		cohortSpecs:  make(map[string]*CohortSpec),
		bsv:          func(GenotypeID) float64 { return 1.0 },
		deployHook:   func([]string) {},
	}
	for i := range setup.Cohorts {
		h.cohortSpecs[setup.Cohorts[i].Name] = &setup.Cohorts[i]
	}
	h.comorbidityFactor = rng.LogNormal(0, setup.ComorbiditySigma)
	tSF := rng.LogNormal(0, setup.TreatSeekSigma)

	var pkpd *LSTMModel
	if !setup.WHParams.Descriptive {
		pkpd = NewLSTMModel(setup.DrugReg, setup.Treatments)
	}
	h.withinHost = NewWithinHost(rng, setup.Clock, setup.WHParams, setup.Genotypes,
		setup.Factory, pkpd, setup.Logger)
	h.clinical = NewClinicalModel(setup.ClinParams, setup.Clock, setup.PathParams, tSF)
	return h
}

// ID returns the host's identifier.
func (h *Host) ID() int { return h.id }

// Rng returns the host's random stream.
func (h *Host) Rng() *Rand { return h.rng }

// Clock returns the shared simulation clock.
func (h *Host) Clock() *Clock { return h.clock }

// WithinHost returns the host's within-host state.
func (h *Host) WithinHost() *WithinHost { return h.withinHost }

// Clinical returns the host's clinical state.
func (h *Host) Clinical() *ClinicalModel { return h.clinical }

// TreatmentRegistry returns the shared treatment table.
func (h *Host) TreatmentRegistry() *TreatmentRegistry { return h.treatmentReg }

// Reporter returns the monitoring sink currently attached to the host.
func (h *Host) Reporter() Reporter { return h.reporter }

// SetReporter attaches the per-worker monitoring sink for this step.
func (h *Host) SetReporter(rep Reporter) { h.reporter = rep }

// ComorbidityFactor returns the host's comorbidity multiplier.
func (h *Host) ComorbidityFactor() float64 { return h.comorbidityFactor }

// Age returns the host's age at a time.
func (h *Host) Age(t SimTime) SimTime { return t.Sub(h.dob) }

// DateOfBirth returns the host's date of birth.
func (h *Host) DateOfBirth() SimTime { return h.dob }

// SetVaccine installs a blood-stage vaccine survival factor.
func (h *Host) SetVaccine(bsv func(GenotypeID) float64) {
	if bsv == nil {
		h.bsv = func(GenotypeID) float64 { return 1.0 }
		return
	}
	h.bsv = bsv
}

// SetDeployHook installs the intervention deployment callback used by
// deploy leaves of decision trees.
func (h *Host) SetDeployHook(hook func(names []string)) {
	if hook == nil {
		h.deployHook = func([]string) {}
		return
	}
	h.deployHook = hook
}

// Deploy forwards intervention deployment to the installed hook.
func (h *Host) Deploy(names []string) { h.deployHook(names) }

// AddToCohort adds the host to a sub-population.
func (h *Host) AddToCohort(name string) { h.cohorts[name] = true }

// InCohort reports sub-population membership.
func (h *Host) InCohort(name string) bool { return h.cohorts[name] }

// RemoveFirstEvent drops the host from cohorts flagged for removal on
// the given event.
func (h *Host) RemoveFirstEvent(ev RemoveEvent) {
	for name := range h.cohorts {
		spec := h.cohortSpecs[name]
		if spec == nil {
			continue
		}
		if (ev == RemoveOnFirstTreatment && spec.RemoveOnFirstTreatment) ||
			(ev == RemoveOnFirstBout && spec.RemoveOnFirstBout) {
			delete(h.cohorts, name)
		}
	}
}

// Inoculations is the per-step transmission input for one host.
type Inoculations struct {
	// Imported and Indigenous are non-negative counts of new
	// inoculations by origin.
	Imported   int
	Indigenous int
	// Genotype sampling weights; empty uses initial frequencies.
	WeightsImported   []float64
	WeightsIndigenous []float64
}

// Update advances the host one time step: within-host biology first
// (PK/PD inside), then the clinical update. Returns false when the
// host has died and must be removed.
func (h *Host) Update(inoc Inoculations, rep Reporter) bool {
	h.reporter = rep

	age := h.Age(h.clock.Ts1())
	if h.clinical.IsDead(age) {
		h.clinical.Flush(rep, h.id)
		return false
	}
	newBorn := h.Age(h.clock.Ts0()) == ZeroTime
	ageYears := h.Age(h.clock.Ts0()).InYears()

	nImp, nLoc := inoc.Imported, inoc.Indigenous
	requested := nImp + nLoc
	h.withinHost.Update(h.rng, &nImp, &nLoc,
		inoc.WeightsImported, inoc.WeightsIndigenous, ageYears, h.bsv)
	if created := nImp + nLoc; created < requested {
		rep.ReportInt(MeasureDroppedInoculations, h.id, requested-created)
	}
	if nImp+nLoc > 0 {
		rep.ReportInt(MeasureNewInfections, h.id, nImp+nLoc)
	}

	h.clinical.Update(h, ageYears, newBorn)
	if h.clinical.Doomed() > notDoomed {
		h.clinical.Flush(rep, h.id)
		return false
	}
	return true
}

// Summarize reports this host's state to the survey after its update.
func (h *Host) Summarize(rep Reporter, monitoring *Diagnostic) {
	wh := h.withinHost
	if wh.NumInfections() > 0 {
		rep.ReportInt(MeasureInfectedHosts, h.id, 1)
		switch wh.InfectionOrigin() {
		case OriginImported:
			rep.ReportInt(MeasureInfectedHostsImported, h.id, 1)
		case OriginIntroduced:
			rep.ReportInt(MeasureInfectedHostsIntroduced, h.id, 1)
		default:
			rep.ReportInt(MeasureInfectedHostsIndigenous, h.id, 1)
		}
		for _, inf := range wh.infections {
			rep.ReportIntG(MeasureInfections, h.id, inf.Genotype(), 1)
			if monitoring.IsPositive(h.rng, inf.Density(), 1.0) {
				rep.ReportIntG(MeasurePatentInfections, h.id, inf.Genotype(), 1)
			}
		}
	}
	// treatments clearing infections immediately can leave a positive
	// density with no infections; report the last calculated density
	if monitoring.IsPositive(h.rng, wh.TotalDensity(), 1.0) {
		rep.ReportInt(MeasurePatentHosts, h.id, 1)
		if wh.TotalDensity() > 0 {
			rep.ReportFloat(MeasureLogDensity, h.id, math.Log(wh.TotalDensity()))
		}
	}
	if wh.pkpd != nil {
		wh.pkpd.Summarize(rep, h.id, wh.BodyMass(h.Age(h.clock.NowOrTs1()).InYears()))
	}
}

func (h *Host) encode(e *Encoder) {
	e.Int(h.id)
	e.Time(h.dob)
	h.rng.encode(e)
	e.F64(h.comorbidityFactor)
	names := make([]string, 0, len(h.cohorts))
	for name := range h.cohorts {
		names = append(names, name)
	}
	sort.Strings(names)
	e.Len(len(names))
	for _, name := range names {
		e.Bytes([]byte(name))
	}
	h.withinHost.encode(e)
	h.clinical.encode(e)
}

// DecodeHost restores a host from a checkpoint stream.
func DecodeHost(d *Decoder, setup *HostSetup) *Host {
	h := &Host{
		clock:        setup.Clock,
		treatmentReg: setup.TreatmentReg,
		cohorts:      make(map[string]bool),
		cohortSpecs:  make(map[string]*CohortSpec),
		bsv:          func(GenotypeID) float64 { return 1.0 },
		deployHook:   func([]string) {},
	}
	for i := range setup.Cohorts {
		h.cohortSpecs[setup.Cohorts[i].Name] = &setup.Cohorts[i]
	}
	h.id = d.Int()
	h.dob = d.Time()
	h.rng = decodeRand(d)
	h.comorbidityFactor = d.F64()
	n := d.Len()
	for i := 0; i < n; i++ {
		h.cohorts[string(d.Bytes())] = true
	}
	h.withinHost = decodeWithinHost(d, setup.Clock, setup.WHParams, setup.Genotypes,
		setup.Factory, setup.DrugReg, setup.Treatments, setup.Logger)
	h.clinical = decodeClinicalModel(setup.ClinParams, setup.Clock, setup.PathParams, d)
	return h
}
