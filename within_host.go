package malariago

import (
	"math"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// MaxInfections is the maximum number of concurrent infections per
// host; inoculations beyond the cap are dropped and reported.
const MaxInfections = 21

// AgeCurve interpolates a value from age (years) piecewise linearly,
// clamping outside the configured range. Used for body mass, case
// fatality and sequelae curves.
type AgeCurve struct {
	Ages   []float64
	Values []float64
}

// Validate checks the interpolation points.
func (m *AgeCurve) Validate() error {
	if len(m.Ages) == 0 || len(m.Ages) != len(m.Values) {
		return errors.New("age curve: ages and values must be non-empty and equal length")
	}
	for i := 1; i < len(m.Ages); i++ {
		if m.Ages[i] <= m.Ages[i-1] {
			return errors.New("age curve: ages must be strictly increasing")
		}
	}
	return nil
}

// Eval interpolates mass at the given age.
func (m *AgeCurve) Eval(ageYears float64) float64 {
	if ageYears <= m.Ages[0] {
		return m.Values[0]
	}
	last := len(m.Ages) - 1
	if ageYears >= m.Ages[last] {
		return m.Values[last]
	}
	for i := 1; i <= last; i++ {
		if ageYears < m.Ages[i] {
			f := (ageYears - m.Ages[i-1]) / (m.Ages[i] - m.Ages[i-1])
			return m.Values[i-1] + f*(m.Values[i]-m.Values[i-1])
		}
	}
	return m.Values[last]
}

// DefaultMassByAge is a standard reference growth curve (kg by age).
func DefaultMassByAge() AgeCurve {
	return AgeCurve{
		Ages:   []float64{0, 1, 2, 5, 10, 15, 20, 90},
		Values: []float64{3.5, 9.6, 12.4, 18.4, 30.9, 49.5, 60.0, 60.0},
	}
}

// TransmissionParams parameterise the human-to-mosquito infectiousness
// curve, which reads parasite densities 10, 15 and 20 days back.
type TransmissionParams struct {
	Beta1, Beta2, Beta3 float64
	// CritDensity is the weighted density below which infectiousness is
	// zero.
	CritDensity float64
	// Mu and Sigma are the probit parameters of the density-to-
	// infectiousness link.
	Mu, Sigma float64
}

// DefaultTransmissionParams returns the standard parameterisation.
func DefaultTransmissionParams() TransmissionParams {
	return TransmissionParams{
		Beta1:       1.0,
		Beta2:       0.46,
		Beta3:       0.17,
		CritDensity: 0.001,
		Mu:          0.0,
		Sigma:       1.0,
	}
}

// WithinHostParams bundles the configuration of the within-host layer.
type WithinHostParams struct {
	// LatentP is the liver-stage latent period.
	LatentP SimTime
	// Immunity parameterises innate and acquired immunity.
	Immunity ImmunityParams
	// MassByAge converts host age to body mass (kg).
	MassByAge AgeCurve
	// HetMassMultStdDev is the standard deviation of the per-host mass
	// heterogeneity multiplier; the multiplier is resampled until birth
	// weight is at least 0.5 kg.
	HetMassMultStdDev float64
	// Transmission parameterises infectiousness to mosquitoes.
	Transmission TransmissionParams
	// KeepInocAccountingBug retains the historical add-back of dropped
	// inoculations into the reported indigenous count.
	KeepInocAccountingBug bool
	// Descriptive marks the 5-day-step descriptive model, which runs
	// without the PK/PD layer and draws densities once per step.
	Descriptive bool
}

// minHetMassMult returns the smallest admissible mass multiplier.
func (p *WithinHostParams) minHetMassMult() float64 {
	return 0.5 / p.MassByAge.Eval(0.0)
}

// WithinHost owns a host's infections, immunity state and drug model,
// and orchestrates the per-step biological update.
type WithinHost struct {
	clock     *Clock
	params    *WithinHostParams
	genotypes *Genotypes
	factory   InfectionFactory
	pkpd      *LSTMModel
	logger    zerolog.Logger

	infections []Infection
	numInfs    int

	cumulativeH    float64
	cumulativeY    float64
	cumulativeYLag float64

	innateImmSurvFact float64
	hetMassMultiplier float64

	totalDensity       float64
	hrp2Density        float64
	timeStepMaxDensity float64

	// lagged per-genotype densities for infectiousness, split by
	// imported vs locally-acquired infections; ring buffers of
	// yLagLen steps times the genotype count
	yLagLen    int
	yLagImport []float64
	yLagLocal  []float64

	treatExpiryLiver SimTime
	treatExpiryBlood SimTime

	// aggregate origin classification of the current infections
	infectionOrigin InfectionOrigin
}

// NewWithinHost creates the within-host state for a newborn host.
func NewWithinHost(rng *Rand, clock *Clock, params *WithinHostParams, genotypes *Genotypes,
	factory InfectionFactory, pkpd *LSTMModel, logger zerolog.Logger) *WithinHost {

	wh := &WithinHost{
		clock:            clock,
		params:           params,
		genotypes:        genotypes,
		factory:          factory,
		pkpd:             pkpd,
		logger:           logger,
		treatExpiryLiver: Never,
		treatExpiryBlood: Never,
		infectionOrigin:  OriginIndigenous,
	}
	wh.innateImmSurvFact = params.Immunity.sampleInnateImmunity(rng)

	minMult := params.minHetMassMult()
	for {
		wh.hetMassMultiplier = rng.Gauss(1.0, params.HetMassMultStdDev)
		if wh.hetMassMultiplier >= minMult {
			break
		}
	}

	wh.yLagLen = 20/int(clock.OneTS()) + 1
	n := wh.yLagLen * genotypes.N()
	wh.yLagImport = make([]float64, n)
	wh.yLagLocal = make([]float64, n)
	return wh
}

// BodyMass returns the host's body mass at the given age.
func (wh *WithinHost) BodyMass(ageYears float64) float64 {
	return wh.params.MassByAge.Eval(ageYears) * wh.hetMassMultiplier
}

// NumInfections returns the current infection count.
func (wh *WithinHost) NumInfections() int { return wh.numInfs }

// TotalDensity returns the summed blood-stage density of this step.
func (wh *WithinHost) TotalDensity() float64 { return wh.totalDensity }

// HRP2Density returns the summed density of HRP2-expressing infections.
func (wh *WithinHost) HRP2Density() float64 { return wh.hrp2Density }

// TimeStepMaxDensity returns the maximum single-infection density seen
// this step.
func (wh *WithinHost) TimeStepMaxDensity() float64 { return wh.timeStepMaxDensity }

// CumulativeH returns the decayed count of past blood-stage
// inoculations.
func (wh *WithinHost) CumulativeH() float64 { return wh.cumulativeH }

// CumulativeY returns the decayed integral of density over time.
func (wh *WithinHost) CumulativeY() float64 { return wh.cumulativeY }

// InfectionOrigin returns the aggregate origin classification from the
// last update.
func (wh *WithinHost) InfectionOrigin() InfectionOrigin { return wh.infectionOrigin }

// PkPd exposes the host's drug model (nil for the descriptive model).
func (wh *WithinHost) PkPd() *LSTMModel { return wh.pkpd }

// immunitySurvivalFactor is the acquired-immunity density multiplier
// for one infection, depending on the host's exposure history and the
// infection's own cumulative exposure.
func (wh *WithinHost) immunitySurvivalFactor(ageYears, cumulativeH, cumulativeY, cumExposureJ float64) float64 {
	var dY, dH float64
	if cumulativeH <= 1.0 {
		dY = 1.0
		dH = 1.0
	} else {
		dH = 1.0 / (1.0 + (cumulativeH-1.0)/wh.params.Immunity.CumulativeHstar)
		dY = 1.0 / (1.0 + (cumulativeY-cumExposureJ)/wh.params.Immunity.CumulativeYstar)
	}
	dA := 1.0 - wh.params.Immunity.AlphaM*math.Exp(-wh.params.Immunity.DecayM*ageYears)
	return math.Min(dY*dH*dA, 1.0)
}

// updateImmuneStatus decays exposure-driven immunity by the configured
// per-step survival proportions.
func (wh *WithinHost) updateImmuneStatus() {
	imm := &wh.params.Immunity
	if imm.ImmEffectorRemain < 1 {
		wh.cumulativeH *= imm.ImmEffectorRemain
		wh.cumulativeY *= imm.ImmEffectorRemain
	}
	if imm.AsexImmRemain < 1 {
		wh.cumulativeH *= imm.AsexImmRemain /
			(1 + wh.cumulativeH*(1-imm.AsexImmRemain)/imm.CumulativeHstar)
		wh.cumulativeY *= imm.AsexImmRemain /
			(1 + wh.cumulativeY*(1-imm.AsexImmRemain)/imm.CumulativeYstar)
	}
	wh.cumulativeYLag = wh.cumulativeY
}

// ImmunityPenalisation discounts the immunity gained in the current
// episode; applied by the clinical layer on treated episodes.
func (wh *WithinHost) ImmunityPenalisation() {
	wh.cumulativeY = wh.cumulativeYLag - wh.params.Immunity.ImmPenalty*(wh.cumulativeY-wh.cumulativeYLag)
	if wh.cumulativeY < 0 {
		wh.cumulativeY = 0.0
	}
}

// ClearImmunity resets the host's exposure-driven immunity.
func (wh *WithinHost) ClearImmunity() {
	wh.cumulativeH = 0.0
	wh.cumulativeY = 0.0
	wh.cumulativeYLag = 0.0
}

// ImportInfection adds a single infection outside the regular update;
// genotypes are sampled from initial frequencies. Used by importation
// hooks.
func (wh *WithinHost) ImportInfection(rng *Rand, origin InfectionOrigin) {
	wh.SeedInfection(rng, wh.genotypes.Sample(rng, nil), origin)
}

// SeedInfection adds a single infection of a known genotype outside
// the regular update. Used by the population bootstrap, which
// partitions the initial infections between strains up front.
func (wh *WithinHost) SeedInfection(rng *Rand, genotype GenotypeID, origin InfectionOrigin) {
	if wh.numInfs < MaxInfections {
		wh.cumulativeH += 1
		wh.numInfs++
		wh.infections = append(wh.infections,
			wh.factory.Create(rng, wh.clock.NowOrTs0(), genotype, origin, wh.genotypes.HRP2Deficient(genotype)))
	}
	wh.assertCounts()
}

func (wh *WithinHost) assertCounts() {
	if wh.numInfs != len(wh.infections) || wh.numInfs < 0 || wh.numInfs > MaxInfections {
		panic(invariantf("numInfs %d does not match infection list length %d", wh.numInfs, len(wh.infections)))
	}
}

// TreatSimple applies simple liver- and blood-stage treatment. A
// duration of 0 has no effect on that stage; a negative duration (-1
// step) clears the stage immediately, once; a positive duration
// protects the stage for that long, counted from the end of the
// current step. Returns whether a blood-stage effect was applied.
func (wh *WithinHost) TreatSimple(liverDur, bloodDur SimTime) bool {
	if liverDur < -wh.clock.OneTS() || bloodDur < -wh.clock.OneTS() {
		panic(invariantf("treatSimple durations %s/%s below -1 step", liverDur, bloodDur))
	}
	bsTreatment := false
	if bloodDur != ZeroTime {
		if bloodDur < ZeroTime {
			wh.clearInfections(true)
		} else {
			wh.treatExpiryBlood = maxTime(wh.treatExpiryBlood, wh.clock.NowOrTs1().Add(bloodDur))
		}
		bsTreatment = true
	}
	if liverDur != ZeroTime {
		if liverDur < ZeroTime {
			wh.clearInfections(false)
		} else {
			wh.treatExpiryLiver = maxTime(wh.treatExpiryLiver, wh.clock.NowOrTs1().Add(liverDur))
		}
	}
	return bsTreatment
}

// clearInfections removes infections of one stage immediately. The
// step's density aggregates are left as calculated, so a host can be
// momentarily parasite-positive with no infections.
func (wh *WithinHost) clearInfections(bloodStage bool) {
	kept := wh.infections[:0]
	for _, inf := range wh.infections {
		if inf.BloodStage() == bloodStage {
			wh.numInfs--
			continue
		}
		kept = append(kept, inf)
	}
	wh.infections = kept
}

// Treatment applies a registered treatment's stage-clearance durations.
func (wh *WithinHost) Treatment(reg *TreatmentRegistry, id TreatmentID) {
	tr := reg.Get(id)
	wh.TreatSimple(tr.LiverDuration, tr.BloodDuration)
}

// TreatPkPd prescribes a drug course via the PK/PD model.
func (wh *WithinHost) TreatPkPd(schedule, dosage int, ageYears, delayD float64) error {
	if wh.pkpd == nil {
		return Unimplemented("PK/PD treatment with the descriptive within-host model")
	}
	return wh.pkpd.Prescribe(schedule, dosage, ageYears, wh.BodyMass(ageYears), delayD)
}

func maxTime(a, b SimTime) SimTime {
	if a > b {
		return a
	}
	return b
}

// Update advances the within-host state one time step. The inoculation
// counts are passed by pointer: the values are clamped to the infection
// cap and updated to the number of infections actually created, which
// the caller reports. Genotype weight vectors may be empty to use
// initial frequencies. bsv maps a genotype to the blood-stage vaccine
// survival factor (1 when unvaccinated).
func (wh *WithinHost) Update(rng *Rand, nNewInfsImported, nNewInfsLocal *int,
	weightsImported, weightsLocal []float64, ageYears float64, bsv func(GenotypeID) float64) {

	// adding infections at the beginning of the update instead of the
	// end is not significant: nothing updates before the latent period
	nImp, nLoc := *nNewInfsImported, *nNewInfsLocal
	if nLoc > MaxInfections-wh.numInfs {
		nLoc = MaxInfections - wh.numInfs
	}
	if nImp > MaxInfections-wh.numInfs-nLoc {
		nImp = MaxInfections - wh.numInfs - nLoc
	}
	nIgnored := *nNewInfsImported + *nNewInfsLocal - nImp - nLoc

	ts0 := wh.clock.Ts0()
	for i := 0; i < nImp; i++ {
		g := wh.genotypes.Sample(rng, weightsImported)
		wh.infections = append(wh.infections,
			wh.factory.Create(rng, ts0, g, OriginImported, wh.genotypes.HRP2Deficient(g)))
	}
	for i := 0; i < nLoc; i++ {
		g := wh.genotypes.Sample(rng, weightsLocal)
		wh.infections = append(wh.infections,
			wh.factory.Create(rng, ts0, g, OriginIndigenous, wh.genotypes.HRP2Deficient(g)))
	}
	wh.numInfs += nImp + nLoc
	wh.assertCounts()

	wh.updateImmuneStatus()

	wh.totalDensity = 0.0
	wh.hrp2Density = 0.0
	wh.timeStepMaxDensity = 0.0

	// cumulative_h does not include infections added this step and
	// cumulative_Y only includes past densities
	cumulativeH := wh.cumulativeH
	cumulativeY := wh.cumulativeY

	treatmentLiver := wh.treatExpiryLiver > ts0
	treatmentBlood := wh.treatExpiryBlood > ts0

	bodyMass := wh.BodyMass(ageYears)

	if wh.params.Descriptive {
		wh.updateDescriptive(rng, ageYears, cumulativeH, cumulativeY, bodyMass, bsv, treatmentLiver, treatmentBlood)
	} else {
		wh.updateCommon(rng, ageYears, cumulativeH, cumulativeY, bodyMass, bsv, treatmentLiver, treatmentBlood)
	}

	// cumulative counters exclude this step's additions until now
	wh.cumulativeH += float64(nImp + nLoc)

	if math.IsNaN(wh.totalDensity) || math.IsInf(wh.totalDensity, 0) {
		panic(invariantf("total density is not finite"))
	}

	wh.cacheLaggedDensities()
	wh.classifyOrigin()

	*nNewInfsImported = nImp
	*nNewInfsLocal = nLoc
	if wh.params.KeepInocAccountingBug && nIgnored > 0 {
		// historical accounting bug, kept for consistency with old
		// simulations
		*nNewInfsLocal += nIgnored
	}
}

// updateCommon is the per-day loop of the 1-day-step models (also run
// five times inside a 5-day step).
func (wh *WithinHost) updateCommon(rng *Rand, ageYears, cumulativeH, cumulativeY, bodyMass float64,
	bsv func(GenotypeID) float64, treatmentLiver, treatmentBlood bool) {

	for now, end := wh.clock.Ts0(), wh.clock.Ts1(); now < end; now = now.Add(OneDay) {
		// every day: medicate drugs, update each infection, decay drugs
		wh.pkpd.Medicate(rng)

		kept := wh.infections[:0]
		for _, inf := range wh.infections {
			var expires bool
			if inf.BloodStage() {
				expires = treatmentBlood
			} else {
				expires = treatmentLiver
			}

			if !expires {
				drugFactor := wh.pkpd.GetDrugFactor(rng, inf, bodyMass)
				immFactor := wh.immunitySurvivalFactor(ageYears, cumulativeH, cumulativeY, inf.CumulativeExposureJ())
				survivalFactor := bsv(inf.Genotype()) * wh.innateImmSurvFact * immFactor * drugFactor
				expires = updateInfection(inf, rng, survivalFactor, now, bodyMass, wh.params.LatentP)
			}

			if expires {
				wh.numInfs--
				continue
			}
			density := inf.Density()
			if math.IsNaN(density) {
				wh.logger.Error().Msg("infection density became non-finite; removing infection")
				wh.numInfs--
				continue
			}
			wh.totalDensity += density
			if !inf.HRP2Deficient() {
				wh.hrp2Density += density
			}
			wh.timeStepMaxDensity = math.Max(wh.timeStepMaxDensity, density)
			wh.cumulativeY += density
			kept = append(kept, inf)
		}
		wh.infections = kept

		wh.pkpd.DecayDrugs(bodyMass)
	}
}

// updateDescriptive is the 5-day-step update: densities are drawn once
// per step from the empirical profile and the PK/PD layer is absent.
func (wh *WithinHost) updateDescriptive(rng *Rand, ageYears, cumulativeH, cumulativeY, bodyMass float64,
	bsv func(GenotypeID) float64, treatmentLiver, treatmentBlood bool) {

	stepDays := wh.clock.OneTS().InDays()
	kept := wh.infections[:0]
	for _, inf := range wh.infections {
		var expires bool
		if inf.BloodStage() {
			expires = treatmentBlood
		} else {
			expires = treatmentLiver
		}

		if !expires {
			immFactor := wh.immunitySurvivalFactor(ageYears, cumulativeH, cumulativeY, inf.CumulativeExposureJ())
			survivalFactor := bsv(inf.Genotype()) * wh.innateImmSurvFact * immFactor

			desc := inf.(*DescriptiveInfection)
			bsAge := wh.clock.Ts0().Sub(inf.StartDate()).Sub(wh.params.LatentP)
			if bsAge >= ZeroTime {
				expires = desc.updateDensity5Day(rng, survivalFactor, bsAge, &wh.timeStepMaxDensity)
			}
		}

		if expires {
			wh.numInfs--
			continue
		}
		density := inf.Density()
		wh.totalDensity += density
		if !inf.HRP2Deficient() {
			wh.hrp2Density += density
		}
		wh.cumulativeY += float64(stepDays) * density
		kept = append(kept, inf)
	}
	wh.infections = kept
}

// cacheLaggedDensities stores this step's per-genotype densities in the
// lagged ring buffers used by infectiousness calculations.
func (wh *WithinHost) cacheLaggedDensities() {
	g := wh.genotypes.N()
	idx := wh.clock.ModuloSteps(wh.clock.Ts1(), wh.yLagLen) * g
	for i := 0; i < g; i++ {
		wh.yLagImport[idx+i] = 0.0
		wh.yLagLocal[idx+i] = 0.0
	}
	for _, inf := range wh.infections {
		if inf.Origin() == OriginImported {
			wh.yLagImport[idx+int(inf.Genotype())] += inf.Density()
		} else {
			wh.yLagLocal[idx+int(inf.Genotype())] += inf.Density()
		}
	}
}

// classifyOrigin derives the aggregate infection-origin class:
// Introduced if any infection is introduced, else Indigenous if any is
// indigenous, else Imported.
func (wh *WithinHost) classifyOrigin() {
	var nImported, nIntroduced, nIndigenous int
	for _, inf := range wh.infections {
		switch inf.Origin() {
		case OriginIntroduced:
			nIntroduced++
		case OriginIndigenous:
			nIndigenous++
		default:
			nImported++
		}
	}
	if nIntroduced > 0 {
		wh.infectionOrigin = OriginIntroduced
	} else if nIndigenous > 0 {
		wh.infectionOrigin = OriginIndigenous
	} else {
		wh.infectionOrigin = OriginImported
	}
}

// laggedDensity sums the per-genotype lagged densities the given number
// of days back.
func (wh *WithinHost) laggedDensity(daysAgo int) float64 {
	t := wh.clock.NowOrTs1().Sub(FromDays(daysAgo))
	step := SimTime(t.InDays() / wh.clock.OneTS().InDays())
	idx := int(Mod(step, SimTime(wh.yLagLen)))
	g := wh.genotypes.N()
	var sum float64
	for i := 0; i < g; i++ {
		sum += wh.yLagImport[idx*g+i] + wh.yLagLocal[idx*g+i]
	}
	return sum
}

// ProbTransmissionToMosquito returns the probability that a feeding
// mosquito becomes infected, from densities 10, 15 and 20 days back,
// scaled by the transmission-blocking vaccine factor.
func (wh *WithinHost) ProbTransmissionToMosquito(tbvFactor float64) float64 {
	tp := &wh.params.Transmission
	x := tp.Beta1*wh.laggedDensity(10) +
		tp.Beta2*wh.laggedDensity(15) +
		tp.Beta3*wh.laggedDensity(20)
	if x < tp.CritDensity {
		return 0.0
	}
	z := (math.Log(x) - tp.Mu) / tp.Sigma
	p := 0.5 * math.Erfc(-z/math.Sqrt2)
	pte := p * p * tbvFactor
	if pte < 0 {
		return 0
	}
	if pte > 1 {
		return 1
	}
	return pte
}

// DiagnosticResult runs a diagnostic against the appropriate density
// aggregate (HRP2-based diagnostics see only HRP2-expressing
// parasites).
func (wh *WithinHost) DiagnosticResult(rng *Rand, diag *Diagnostic) bool {
	dens := wh.totalDensity
	if diag.UsesHRP2 {
		dens = wh.hrp2Density
	}
	return diag.IsPositive(rng, dens, 1.0)
}

// CountInfections returns the total and patent infection counts using
// the monitoring diagnostic.
func (wh *WithinHost) CountInfections(rng *Rand, diag *Diagnostic) (total, patent int) {
	total = len(wh.infections)
	for _, inf := range wh.infections {
		if diag.IsPositive(rng, inf.Density(), 1.0) {
			patent++
		}
	}
	return
}

func (wh *WithinHost) encode(e *Encoder) {
	e.Int(wh.numInfs)
	e.F64(wh.cumulativeH)
	e.F64(wh.cumulativeY)
	e.F64(wh.cumulativeYLag)
	e.F64(wh.innateImmSurvFact)
	e.F64(wh.hetMassMultiplier)
	e.F64(wh.totalDensity)
	e.F64(wh.hrp2Density)
	e.F64(wh.timeStepMaxDensity)
	e.F64s(wh.yLagImport)
	e.F64s(wh.yLagLocal)
	e.Time(wh.treatExpiryLiver)
	e.Time(wh.treatExpiryBlood)
	e.I32(int32(wh.infectionOrigin))
	if wh.pkpd != nil {
		wh.pkpd.encode(e)
	}
	for _, inf := range wh.infections {
		inf.encode(e)
	}
}

func decodeWithinHost(d *Decoder, clock *Clock, params *WithinHostParams, genotypes *Genotypes,
	factory InfectionFactory, reg *DrugRegistry, lib *TreatmentLibrary, logger zerolog.Logger) *WithinHost {

	wh := &WithinHost{
		clock:     clock,
		params:    params,
		genotypes: genotypes,
		factory:   factory,
		logger:    logger,
	}
	wh.numInfs = d.Int()
	if wh.numInfs < 0 || wh.numInfs > MaxInfections {
		d.fail(invariantf("checkpoint: numInfs %d out of range", wh.numInfs))
		return wh
	}
	wh.cumulativeH = d.F64()
	wh.cumulativeY = d.F64()
	wh.cumulativeYLag = d.F64()
	wh.innateImmSurvFact = d.F64()
	wh.hetMassMultiplier = d.F64()
	wh.totalDensity = d.F64()
	wh.hrp2Density = d.F64()
	wh.timeStepMaxDensity = d.F64()
	wh.yLagImport = d.F64s()
	wh.yLagLocal = d.F64s()
	wh.yLagLen = 20/int(clock.OneTS()) + 1
	wh.treatExpiryLiver = d.Time()
	wh.treatExpiryBlood = d.Time()
	wh.infectionOrigin = InfectionOrigin(d.I32())
	if !params.Descriptive {
		wh.pkpd = decodeLSTMModel(reg, lib, d)
	}
	for i := 0; i < wh.numInfs; i++ {
		wh.infections = append(wh.infections, wh.factory.Decode(d))
	}
	return wh
}
