package malariago

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/integrate/quad"
)

// Drug is one drug (plus, for conversion models, its metabolite)
// currently present in a host's body. All compartment contents are
// stored as amounts in mg; concentrations are derived on demand from
// the volume of distribution and the host's body mass.
type Drug struct {
	typ       *DrugType
	metTyp    *DrugType // nil unless the type defines a metabolite
	typeIndex int

	gut        float64 // absorption compartment
	central    float64
	periph2    float64
	periph3    float64
	metabolite float64 // metabolite central compartment

	// doses taking effect during the current day, sorted by time
	today []doseEvent
}

type doseEvent struct {
	time     float64 // day fraction in [0, 1)
	qty      float64 // mg
	duration float64 // infusion length in days; 0 for a bolus
}

func newDrug(reg *DrugRegistry, index int) *Drug {
	d := &Drug{typ: reg.Get(index), typeIndex: index}
	if d.typ.hasConversion() {
		d.metTyp = reg.Get(d.typ.Metabolite)
	}
	return d
}

// addDose queues an oral/bolus dose at a day fraction in [0, 1).
func (d *Drug) addDose(time, qty float64) {
	d.today = append(d.today, doseEvent{time: time, qty: qty})
	sort.Slice(d.today, func(i, j int) bool { return d.today[i].time < d.today[j].time })
}

// addIV queues an intravenous infusion delivering qty mg over the given
// duration starting at a day fraction in [0, 1).
func (d *Drug) addIV(time, duration, qty float64) {
	d.today = append(d.today, doseEvent{time: time, qty: qty, duration: duration})
	sort.Slice(d.today, func(i, j int) bool { return d.today[i].time < d.today[j].time })
}

// Concentration returns the central-compartment concentration in mg/l
// at the start of the day, before pending doses.
func (d *Drug) Concentration(bodyMass float64) float64 {
	return d.central / (d.typ.VolDist * bodyMass)
}

// MetaboliteConcentration returns the metabolite concentration in mg/l,
// or zero for non-conversion drugs.
func (d *Drug) MetaboliteConcentration(bodyMass float64) float64 {
	if d.metTyp == nil {
		return 0
	}
	return d.metabolite / (d.metTyp.VolDist * bodyMass)
}

// pkState is a snapshot of the compartment amounts.
type pkState struct {
	gut, c1, c2, c3, met float64
}

func (d *Drug) state() pkState {
	return pkState{gut: d.gut, c1: d.central, c2: d.periph2, c3: d.periph3, met: d.metabolite}
}

func (d *Drug) setState(st pkState) {
	d.gut, d.central, d.periph2, d.periph3, d.metabolite = st.gut, st.c1, st.c2, st.c3, st.met
}

type pkRates struct {
	ka                 float64 // absorption
	kElim              float64 // elimination from central
	conv               float64 // conversion to metabolite
	kMet               float64 // metabolite elimination
	k12, k21, k13, k31 float64
	mwr                float64
}

func (d *Drug) rates(bodyMass float64) pkRates {
	t := d.typ
	scale := 1.0
	if t.MassExponent != 0 {
		scale = math.Pow(bodyMass, -t.MassExponent)
	}
	r := pkRates{
		ka:    t.AbsorptionRate,
		kElim: t.EliminationRate * scale,
		k12:   t.K12,
		k21:   t.K21,
		k13:   t.K13,
		k31:   t.K31,
	}
	if d.metTyp != nil {
		r.conv = t.ConversionRate * scale
		r.mwr = t.MolWeightRatio
		metScale := 1.0
		if d.metTyp.MassExponent != 0 {
			metScale = math.Pow(bodyMass, -d.metTyp.MassExponent)
		}
		r.kMet = d.metTyp.EliminationRate * metScale
	}
	return r
}

// stateAt computes the compartment amounts at a day fraction t,
// starting from the stored start-of-day state and applying today's
// doses along the way.
func (d *Drug) stateAt(t, bodyMass float64) pkState {
	st := d.state()
	r := d.rates(bodyMass)

	// breakpoints: dose times and infusion ends inside (0, t)
	type boundary struct {
		time float64
		// bolus applied at this instant (mg); infusion changes handled
		// via the rate recomputation below
		bolus float64
	}
	var bounds []boundary
	for _, ev := range d.today {
		if ev.time < t {
			b := boundary{time: ev.time}
			if ev.duration <= 0 {
				b.bolus = ev.qty
			}
			bounds = append(bounds, b)
			if ev.duration > 0 && ev.time+ev.duration < t {
				bounds = append(bounds, boundary{time: ev.time + ev.duration})
			}
		}
	}
	sort.Slice(bounds, func(i, j int) bool { return bounds[i].time < bounds[j].time })

	now := 0.0
	apply := func(b boundary) {
		if b.bolus > 0 {
			if r.ka > 0 {
				st.gut += b.bolus
			} else {
				st.c1 += b.bolus
			}
		}
	}
	ivRateAt := func(time float64) float64 {
		var rate float64
		for _, ev := range d.today {
			if ev.duration > 0 && ev.time <= time && time < ev.time+ev.duration {
				rate += ev.qty / ev.duration
			}
		}
		return rate
	}

	for _, b := range bounds {
		d.advanceSegment(&st, r, b.time-now, ivRateAt((now+b.time)/2))
		apply(b)
		now = b.time
	}
	d.advanceSegment(&st, r, t-now, ivRateAt((now+t)/2))
	return st
}

// advanceSegment integrates the compartment amounts forward by dt days
// with no dose discontinuities inside the segment. ivRate is the total
// active infusion rate (mg/day) during the segment.
func (d *Drug) advanceSegment(st *pkState, r pkRates, dt, ivRate float64) {
	if dt <= 0 {
		return
	}
	if d.typ.Compartments == 1 && ivRate == 0 && d.closedFormOK(r) {
		d.advanceClosedForm(st, r, dt)
		return
	}
	rkf45(st, dt, func(y pkState) pkState {
		return pkState{
			gut: -r.ka * y.gut,
			c1: r.ka*y.gut - (r.kElim+r.conv+r.k12+r.k13)*y.c1 +
				r.k21*y.c2 + r.k31*y.c3 + ivRate,
			c2:  r.k12*y.c1 - r.k21*y.c2,
			c3:  r.k13*y.c1 - r.k31*y.c3,
			met: r.conv*r.mwr*y.c1 - r.kMet*y.met,
		}
	})
}

// closedFormOK reports whether the exponential rates are distinct
// enough for the closed form; near-degenerate rates are integrated
// numerically instead.
func (d *Drug) closedFormOK(r pkRates) bool {
	lambda := r.kElim + r.conv
	if r.ka > 0 && math.Abs(lambda-r.ka) < 1e-9 {
		return false
	}
	if d.metTyp != nil {
		if math.Abs(r.kMet-lambda) < 1e-9 {
			return false
		}
		if r.ka > 0 && math.Abs(r.kMet-r.ka) < 1e-9 {
			return false
		}
	}
	return true
}

// advanceClosedForm advances the 1-compartment (optionally absorbed and
// converted) model by dt using the exact solution.
func (d *Drug) advanceClosedForm(st *pkState, r pkRates, dt float64) {
	lambda := r.kElim + r.conv
	eL := math.Exp(-lambda * dt)

	var k float64 // gut-driven particular-solution coefficient
	var eA float64
	if r.ka > 0 {
		eA = math.Exp(-r.ka * dt)
		k = r.ka * st.gut / (lambda - r.ka)
	}

	cLam := st.c1 - k // coefficient of exp(-lambda t)
	cA := k           // coefficient of exp(-ka t)

	newC1 := cLam * eL
	if r.ka > 0 {
		newC1 += cA * eA
	}

	if d.metTyp != nil {
		w := r.conv * r.mwr
		eM := math.Exp(-r.kMet * dt)
		bLam := w * cLam / (r.kMet - lambda)
		var bA float64
		if r.ka > 0 {
			bA = w * cA / (r.kMet - r.ka)
		}
		st.met = (st.met-bLam-bA)*eM + bLam*eL + bA*eA
	}

	if r.ka > 0 {
		st.gut *= eA
	}
	st.c1 = newC1
}

// factorBreakpoints returns the sorted day fractions at which the
// concentration trajectory has a kink or jump.
func (d *Drug) factorBreakpoints() []float64 {
	points := []float64{0.0, 1.0}
	for _, ev := range d.today {
		if ev.time > 0 && ev.time < 1 {
			points = append(points, ev.time)
		}
		if ev.duration > 0 {
			end := ev.time + ev.duration
			if end > 0 && end < 1 {
				points = append(points, end)
			}
		}
	}
	sort.Float64s(points)
	// dedup
	out := points[:1]
	for _, p := range points[1:] {
		if p > out[len(out)-1] {
			out = append(out, p)
		}
	}
	return out
}

func killRate(pd PDPhenotype, conc float64) float64 {
	if conc <= 0 {
		return 0
	}
	cn := math.Pow(conc, pd.Slope)
	return pd.VMax * cn / (cn + math.Pow(pd.IC50, pd.Slope))
}

// calculateFactor integrates the PD killing rate over one day and
// returns the survival multiplier for the given genotype. Conversion
// models contribute both parent and metabolite killing. A non-finite
// integral falls back to holding the start-of-day concentrations
// constant; the registry logs that once per drug per run.
func (d *Drug) calculateFactor(reg *DrugRegistry, g GenotypeID, bodyMass float64) float64 {
	pdParent := d.typ.PDFor(g)
	var pdMet PDPhenotype
	if d.metTyp != nil {
		pdMet = d.metTyp.PDFor(g)
	}

	integrand := func(t float64) float64 {
		st := d.stateAt(t, bodyMass)
		f := killRate(pdParent, st.c1/(d.typ.VolDist*bodyMass))
		if d.metTyp != nil {
			f += killRate(pdMet, st.met/(d.metTyp.VolDist*bodyMass))
		}
		return f
	}

	// 4-point Gauss-Legendre per panel; panels are roughly hourly so
	// fast absorption/conversion spikes are resolved
	points := d.factorBreakpoints()
	var integral float64
	for i := 1; i < len(points); i++ {
		a, b := points[i-1], points[i]
		panels := int((b-a)*24) + 1
		width := (b - a) / float64(panels)
		for p := 0; p < panels; p++ {
			integral += quad.Fixed(integrand, a+float64(p)*width, a+float64(p+1)*width, 4, quad.Legendre{}, 0)
		}
	}

	if math.IsNaN(integral) || math.IsInf(integral, 0) {
		reg.warnFallback(d.typeIndex)
		integral = killRate(pdParent, d.Concentration(bodyMass))
		if d.metTyp != nil {
			integral += killRate(pdMet, d.MetaboliteConcentration(bodyMass))
		}
	}
	return math.Exp(-integral)
}

// decayOneDay advances the drug to the end of the day, consuming
// today's doses. Returns true when every remaining concentration is
// negligible and the drug can be dropped from the host.
func (d *Drug) decayOneDay(bodyMass float64) bool {
	st := d.stateAt(1.0, bodyMass)
	d.setState(st)
	d.today = d.today[:0]

	vd := d.typ.VolDist * bodyMass
	negl := d.typ.NegligibleConc
	if d.central/vd > negl || d.gut/vd > negl ||
		d.periph2/vd > negl || d.periph3/vd > negl {
		return false
	}
	if d.metTyp != nil {
		if d.metabolite/(d.metTyp.VolDist*bodyMass) > d.metTyp.NegligibleConc {
			return false
		}
	}
	return true
}

func (d *Drug) encode(e *Encoder) {
	e.Int(d.typeIndex)
	e.F64(d.gut)
	e.F64(d.central)
	e.F64(d.periph2)
	e.F64(d.periph3)
	e.F64(d.metabolite)
	e.Len(len(d.today))
	for _, ev := range d.today {
		e.F64(ev.time)
		e.F64(ev.qty)
		e.F64(ev.duration)
	}
}

func decodeDrug(reg *DrugRegistry, dec *Decoder) *Drug {
	index := dec.Int()
	if dec.Err() != nil || index < 0 || index >= reg.N() {
		dec.fail(invariantf("checkpoint: drug index %d out of range", index))
		return nil
	}
	d := newDrug(reg, index)
	d.gut = dec.F64()
	d.central = dec.F64()
	d.periph2 = dec.F64()
	d.periph3 = dec.F64()
	d.metabolite = dec.F64()
	n := dec.Len()
	for i := 0; i < n; i++ {
		var ev doseEvent
		ev.time = dec.F64()
		ev.qty = dec.F64()
		ev.duration = dec.F64()
		d.today = append(d.today, ev)
	}
	return d
}

// rkf45 integrates y forward by dt with the embedded Runge-Kutta-
// Fehlberg 4(5) pair, adapting the step to 1e-6 relative / 1e-20
// absolute error per component.
func rkf45(y *pkState, dt float64, f func(pkState) pkState) {
	const (
		relTol   = 1e-6
		absTol   = 1e-20
		minStep  = 1e-10
		maxSteps = 100000
	)

	add := func(a pkState, scale float64, b pkState) pkState {
		return pkState{
			gut: a.gut + scale*b.gut,
			c1:  a.c1 + scale*b.c1,
			c2:  a.c2 + scale*b.c2,
			c3:  a.c3 + scale*b.c3,
			met: a.met + scale*b.met,
		}
	}

	t := 0.0
	h := dt
	state := *y
	for steps := 0; t < dt && steps < maxSteps; steps++ {
		if t+h > dt {
			h = dt - t
		}

		k1 := f(state)
		k2 := f(add(state, h*1.0/4, k1))
		s := add(state, h*3.0/32, k1)
		k3 := f(add(s, h*9.0/32, k2))
		s = add(add(state, h*1932.0/2197, k1), h*-7200.0/2197, k2)
		k4 := f(add(s, h*7296.0/2197, k3))
		s = add(add(add(state, h*439.0/216, k1), h*-8.0, k2), h*3680.0/513, k3)
		k5 := f(add(s, h*-845.0/4104, k4))
		s = add(add(add(add(state, h*-8.0/27, k1), h*2.0, k2), h*-3544.0/2565, k3), h*1859.0/4104, k4)
		k6 := f(add(s, h*-11.0/40, k5))

		// 4th-order solution
		y4 := add(add(add(add(state, h*25.0/216, k1), h*1408.0/2565, k3), h*2197.0/4104, k4), h*-1.0/5, k5)
		// 5th-order solution
		y5 := add(add(add(add(add(state, h*16.0/135, k1), h*6656.0/12825, k3), h*28561.0/56430, k4), h*-9.0/50, k5), h*2.0/55, k6)

		errEst := 0.0
		for _, pair := range [][2]float64{
			{y4.gut, y5.gut}, {y4.c1, y5.c1}, {y4.c2, y5.c2},
			{y4.c3, y5.c3}, {y4.met, y5.met},
		} {
			scale := absTol + relTol*math.Max(math.Abs(pair[0]), math.Abs(pair[1]))
			e := math.Abs(pair[0]-pair[1]) / scale
			if e > errEst {
				errEst = e
			}
		}

		if errEst <= 1.0 || h <= minStep {
			t += h
			state = y5
		}
		// step-size control with the usual safety factor
		if errEst > 0 {
			h *= 0.9 * math.Pow(errEst, -0.2)
		} else {
			h *= 5
		}
		if h < minStep {
			h = minStep
		}
	}
	*y = state
}
