package malariago

import "math"

// PennyInfection implements the intrahost model of Penny et al (2011):
// three interacting immune responses (innate N, clonal C and variant-
// specific V) acting on circulating and sequestered parasite stages.
// Parameter names follow the paper.
const (
	// innate immunity
	pennyBetaN        = 0.5198
	pennyPsiN         = 0.0946
	pennyKappaN       = 2.9506
	pennySigmaEpsilon = 1.4217

	// clonal immunity
	pennyBetaC  = 0.1872
	pennyPsiC   = 0.2224
	pennyKappaC = 1.9535
	pennyRhoC   = 0.1292

	// variant-specific immunity
	pennyBetaV   = 0.0427
	pennyKappaV  = 4.1529
	pennyRhoV    = 2.5482
	pennyLambdaV = 4.2119

	// delays to antibody responses (days); ring buffer lengths
	pennyDeltaC = 7
	pennyDeltaV = 6

	// lognormal parameters for initial densities and immune thresholds
	pennyMuY     = 3.9700
	pennySigmaY  = 1.3436
	pennyMuX     = 1.9969
	pennySigmaX  = 0.7424
	pennyMuTN    = 7.5872
	pennySigmaTN = 2.8977
	pennyMuTC    = 5.5573
	pennySigmaTC = 0.4068
	pennyMuTV    = 6.12898
	pennySigmaTV = 1.3768

	// gamma-distribution alternatives (shape, scale), option-controlled
	pennyAY  = 8.7305
	pennyBY  = 0.4547
	pennyAX  = 7.2350
	pennyBX  = 0.2760
	pennyATN = 6.8558
	pennyBTN = 1.1067
	pennyATC = 186.6233
	pennyBTC = 0.0297
	pennyATV = 19.8167
	pennyBTV = 0.3093

	// replication per two-day cycle
	pennyMRep = 16.0
	// critical density at which the infection ends (parasites/microlitre)
	pennyOmega = 0.00025
)

var (
	pennyExpNegRhoC = math.Exp(-pennyRhoC)
	pennyExpNegRhoV = math.Exp(-pennyRhoV)
	pennyProbLambda = 1.0 / pennyLambdaV
)

// PennyOptions selects the sampling distributions used by the model.
type PennyOptions struct {
	// ImmuneThresholdGamma samples immune thresholds from gamma instead
	// of lognormal distributions.
	ImmuneThresholdGamma bool
	// UpdateDensityGamma samples density noise from gamma instead of
	// lognormal distributions.
	UpdateDensityGamma bool
}

// PennyInfection carries the per-infection state of the Penny model.
type PennyInfection struct {
	infectionCore

	cirDensities [pennyDeltaC]float64
	seqDensities [pennyDeltaV]float64

	thresholdN float64
	thresholdC float64
	thresholdV float64

	variantSpecificSummation float64
	clonalSummation          float64

	opts PennyOptions
}

// NewPennyInfectionFactory returns the factory for the Penny model.
// The model requires a 1-day time step; the config layer enforces that.
func NewPennyInfectionFactory(opts PennyOptions) InfectionFactory {
	return InfectionFactory{
		Create: func(rng *Rand, now SimTime, genotype GenotypeID, origin InfectionOrigin, hrp2Deficient bool) Infection {
			inf := &PennyInfection{
				infectionCore: newInfectionCore(now, genotype, origin, hrp2Deficient),
				opts:          opts,
			}
			// Immune thresholds are infection-dependent; resample until
			// the invariant T_N > T_C and T_N > T_V holds.
			if opts.ImmuneThresholdGamma {
				for {
					inf.thresholdN = math.Exp(rng.Gamma(pennyATN, pennyBTN))
					inf.thresholdC = math.Exp(rng.Gamma(pennyATC, pennyBTC))
					inf.thresholdV = math.Exp(rng.Gamma(pennyATV, pennyBTV))
					if inf.thresholdN > inf.thresholdC && inf.thresholdN > inf.thresholdV {
						break
					}
				}
			} else {
				for {
					inf.thresholdN = rng.LogNormal(pennyMuTN, pennySigmaTN)
					inf.thresholdC = rng.LogNormal(pennyMuTC, pennySigmaTC)
					inf.thresholdV = rng.LogNormal(pennyMuTV, pennySigmaTV)
					if inf.thresholdN > inf.thresholdC && inf.thresholdN > inf.thresholdV {
						break
					}
				}
			}
			return inf
		},
		Decode: decodePennyInfection,
	}
}

func (inf *PennyInfection) updateDensity(rng *Rand, survivalFactor float64, bloodStageAge SimTime, bodyMass float64) bool {
	if bloodStageAge == ZeroTime {
		// assign initial densities (circulating and sequestered)
		today := int(ModNN(bloodStageAge, pennyDeltaC))
		if inf.opts.UpdateDensityGamma {
			inf.cirDensities[today] = math.Exp(rng.Gamma(pennyAY, pennyBY))
		} else {
			inf.cirDensities[today] = rng.LogNormal(pennyMuY, pennySigmaY)
		}
		inf.density = inf.cirDensities[today]
		todayV := int(ModNN(bloodStageAge, pennyDeltaV))
		if inf.opts.UpdateDensityGamma {
			inf.seqDensities[todayV] = math.Exp(rng.Gamma(pennyAX, pennyBX))
		} else {
			inf.seqDensities[todayV] = rng.LogNormal(pennyMuX, pennySigmaX)
		}
	} else {
		// save yesterday's sequestered density before the variant
		// summation may zero the buffer
		yesterdayV := int(ModNN(bloodStageAge.Sub(OneDay), pennyDeltaV))
		seqDensityYesterday := inf.seqDensities[yesterdayV]
		yesterdayC := int(ModNN(bloodStageAge.Sub(OneDay), pennyDeltaC))

		// innate immunity
		baseN := inf.cirDensities[yesterdayC] / inf.thresholdN
		baseNPow := math.Pow(baseN, pennyKappaN)
		rNx := (1.0-pennyBetaN)/(1.0+baseNPow) + pennyBetaN
		rNy := (1.0-pennyPsiN)/(1.0+baseNPow) + pennyPsiN

		// clonal immunity
		baseC := inf.updateClonalSummation(bloodStageAge) / inf.thresholdC
		baseCPow := math.Pow(baseC, pennyKappaC)
		rCx := (1.0-pennyBetaC)/(1.0+baseCPow) + pennyBetaC
		rCy := (1.0-pennyPsiC)/(1.0+baseCPow) + pennyPsiC

		// variant-specific immunity
		baseV := inf.updateVariantSummation(rng, bloodStageAge) / inf.thresholdV
		rVx := (1.0-pennyBetaV)/(1.0+math.Pow(baseV, pennyKappaV)) + pennyBetaV

		// new circulating density: yesterday's sequestered parasites
		// replicate and must escape all three responses; new sequestered
		// density: yesterday's circulating parasites escape the y-side
		// responses
		cirNew := seqDensityYesterday * pennyMRep * rVx * rCx * rNx
		seqNew := inf.cirDensities[yesterdayC] * rCy * rNy

		if cirNew < pennyOmega {
			cirNew = 0.0
		} else {
			if inf.opts.UpdateDensityGamma {
				a := math.Pow(math.Log(cirNew), 2) / math.Pow(pennySigmaEpsilon, 2)
				b := math.Pow(pennySigmaEpsilon, 2) / math.Log(cirNew)
				cirNew = math.Exp(rng.Gamma(a, b)) * survivalFactor
			} else {
				cirNew = rng.LogNormal(math.Log(cirNew), pennySigmaEpsilon) * survivalFactor
			}
			// please don't simplify this, we want more chance at ending
			// the infection
			if cirNew < pennyOmega {
				cirNew = 0.0
			}
		}
		seqNew *= survivalFactor
		if seqNew < pennyOmega {
			if cirNew == 0.0 {
				return true
			}
			seqNew = 0.0
		}

		todayC := int(ModNN(bloodStageAge, pennyDeltaC))
		inf.cirDensities[todayC] = cirNew
		inf.density = cirNew
		todayV := int(ModNN(bloodStageAge, pennyDeltaV))
		inf.seqDensities[todayV] = seqNew
	}

	inf.cumulativeExposureJ += inf.density
	return false
}

// updateVariantSummation rolls the variant-specific effective exposure
// forward one day. Arrival of a new dominant variant (a Bernoulli trial
// with daily probability 1/lambda_V) zeroes the summation and the
// sequestered history.
func (inf *PennyInfection) updateVariantSummation(rng *Rand, bloodStageAge SimTime) float64 {
	if rng.Bernoulli(pennyProbLambda) {
		inf.variantSpecificSummation = 0
		for i := range inf.seqDensities {
			inf.seqDensities[i] = 0.0
		}
	}
	index := int(ModNN(bloodStageAge, pennyDeltaV))
	inf.variantSpecificSummation = inf.variantSpecificSummation*pennyExpNegRhoV + inf.seqDensities[index]
	return inf.variantSpecificSummation
}

// updateClonalSummation rolls the clonal effective exposure forward one
// day, adding the delta_C-day lagged circulating density.
func (inf *PennyInfection) updateClonalSummation(bloodStageAge SimTime) float64 {
	index := int(ModNN(bloodStageAge, pennyDeltaC))
	inf.clonalSummation = inf.clonalSummation*pennyExpNegRhoC + inf.cirDensities[index]
	return inf.clonalSummation
}

func (inf *PennyInfection) encode(e *Encoder) {
	inf.encodeCore(e)
	for i := 0; i < pennyDeltaC; i++ {
		e.F64(inf.cirDensities[i])
	}
	for i := 0; i < pennyDeltaV; i++ {
		e.F64(inf.seqDensities[i])
	}
	e.F64(inf.thresholdN)
	e.F64(inf.thresholdV)
	e.F64(inf.thresholdC)
	e.F64(inf.variantSpecificSummation)
	e.F64(inf.clonalSummation)
	e.Bool(inf.opts.ImmuneThresholdGamma)
	e.Bool(inf.opts.UpdateDensityGamma)
}

func decodePennyInfection(d *Decoder) Infection {
	inf := &PennyInfection{infectionCore: decodeInfectionCore(d)}
	for i := 0; i < pennyDeltaC; i++ {
		inf.cirDensities[i] = d.F64()
	}
	for i := 0; i < pennyDeltaV; i++ {
		inf.seqDensities[i] = d.F64()
	}
	inf.thresholdN = d.F64()
	inf.thresholdV = d.F64()
	inf.thresholdC = d.F64()
	inf.variantSpecificSummation = d.F64()
	inf.clonalSummation = d.F64()
	inf.opts.ImmuneThresholdGamma = d.Bool()
	inf.opts.UpdateDensityGamma = d.Bool()
	return inf
}
