package malariago

// DummyInfection is a deterministic infection model used for testing the
// surrounding machinery: densities follow a fixed geometric growth rule
// modulo a cap, scaled by the survival factor.
type DummyInfection struct {
	infectionCore
}

const (
	dummyGrowthRate        = 8.0
	dummyDensityCap        = 20000
	dummyParasiteThreshold = 1.0
	dummyInitialDensity    = 16.0
)

// NewDummyInfectionFactory returns the factory for the dummy model.
func NewDummyInfectionFactory() InfectionFactory {
	return InfectionFactory{
		Create: func(rng *Rand, now SimTime, genotype GenotypeID, origin InfectionOrigin, hrp2Deficient bool) Infection {
			inf := &DummyInfection{infectionCore: newInfectionCore(now, genotype, origin, hrp2Deficient)}
			inf.density = dummyInitialDensity
			return inf
		},
		Decode: func(d *Decoder) Infection {
			return &DummyInfection{infectionCore: decodeInfectionCore(d)}
		},
	}
}

func (inf *DummyInfection) updateDensity(rng *Rand, survivalFactor float64, bloodStageAge SimTime, bodyMass float64) bool {
	inf.density = float64(int(inf.density*dummyGrowthRate)%dummyDensityCap) * survivalFactor
	inf.cumulativeExposureJ += inf.density

	return inf.density < dummyParasiteThreshold
}

func (inf *DummyInfection) encode(e *Encoder) {
	inf.encodeCore(e)
}
