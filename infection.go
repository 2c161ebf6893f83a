package malariago

// Infection is one parasite clone within a host. Each within-host model
// variant supplies its own density dynamics; the shared bookkeeping
// (creation time, genotype, origin, cumulative exposure) lives in
// infectionCore.
//
// An infection is invisible to drugs and immunity accounting until the
// liver-stage latent period has passed; updateInfection gates on that
// before dispatching to the model's density update.
type Infection interface {
	// StartDate is the time the inoculation took effect.
	StartDate() SimTime
	// Genotype identifies the infecting strain.
	Genotype() GenotypeID
	// Origin reports where the inoculation came from.
	Origin() InfectionOrigin
	// Density is the current blood-stage density in parasites/microlitre.
	// Zero during the liver stage.
	Density() float64
	// CumulativeExposureJ is the cumulative parasite density summed over
	// this infection's lifetime, used by immunity.
	CumulativeExposureJ() float64
	// BloodStage reports whether the infection has any blood-stage
	// parasites (liver-stage infections have none).
	BloodStage() bool
	// HRP2Deficient infections are excluded from the hrp2Density
	// aggregate and invisible to HRP2-based diagnostics.
	HRP2Deficient() bool

	// updateDensity advances the blood-stage density by one day.
	// bloodStageAge is the time since the end of the latent period.
	// Returns true when the infection is extinct and must be removed.
	updateDensity(rng *Rand, survivalFactor float64, bloodStageAge SimTime, bodyMass float64) bool

	encode(e *Encoder)
}

// updateInfection advances an infection one day, skipping the density
// update while the infection is still in its liver stage.
func updateInfection(inf Infection, rng *Rand, survivalFactor float64, now SimTime, bodyMass float64, latentP SimTime) bool {
	bsAge := now.Sub(inf.StartDate()).Sub(latentP)
	if bsAge < ZeroTime {
		return false
	}
	return inf.updateDensity(rng, survivalFactor, bsAge, bodyMass)
}

// infectionCore is the state shared by all infection models.
type infectionCore struct {
	startDate           SimTime
	density             float64
	cumulativeExposureJ float64
	genotype            GenotypeID
	origin              InfectionOrigin
	hrp2Deficient       bool
}

func newInfectionCore(now SimTime, genotype GenotypeID, origin InfectionOrigin, hrp2Deficient bool) infectionCore {
	return infectionCore{
		startDate:     now,
		genotype:      genotype,
		origin:        origin,
		hrp2Deficient: hrp2Deficient,
	}
}

func (c *infectionCore) StartDate() SimTime           { return c.startDate }
func (c *infectionCore) Genotype() GenotypeID         { return c.genotype }
func (c *infectionCore) Origin() InfectionOrigin      { return c.origin }
func (c *infectionCore) Density() float64             { return c.density }
func (c *infectionCore) CumulativeExposureJ() float64 { return c.cumulativeExposureJ }
func (c *infectionCore) BloodStage() bool             { return c.density > 0.0 }
func (c *infectionCore) HRP2Deficient() bool          { return c.hrp2Deficient }

func (c *infectionCore) encodeCore(e *Encoder) {
	e.Time(c.startDate)
	e.F64(c.density)
	e.F64(c.cumulativeExposureJ)
	e.I32(int32(c.genotype))
	e.I32(int32(c.origin))
	e.Bool(c.hrp2Deficient)
}

func decodeInfectionCore(d *Decoder) infectionCore {
	var c infectionCore
	c.startDate = d.Time()
	c.density = d.F64()
	c.cumulativeExposureJ = d.F64()
	c.genotype = GenotypeID(d.I32())
	c.origin = InfectionOrigin(d.I32())
	c.hrp2Deficient = d.Bool()
	return c
}

// InfectionFactory creates and restores infections of the model variant
// selected at scenario load. Resolving the variant once here keeps
// dispatch out of the per-day update loop.
type InfectionFactory struct {
	// Create builds a new infection at the given time.
	Create func(rng *Rand, now SimTime, genotype GenotypeID, origin InfectionOrigin, hrp2Deficient bool) Infection
	// Decode restores an infection from a checkpoint stream.
	Decode func(d *Decoder) Infection
}
