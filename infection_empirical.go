package malariago

import (
	"bufio"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// EmpiricalInfection implements the Paget-McCloud autoregressive model:
// log-density follows an order-3 autoregression whose coefficients are
// indexed by the age of the infection in days.

// empiricalMaxDuration bounds the infection age in days; older
// infections self-terminate.
const empiricalMaxDuration = 418

const empiricalMaxSamples = 10

// EmpiricalParams holds the model constants plus the day-indexed
// autoregression coefficient table.
type EmpiricalParams struct {
	// Alpha1 corresponds to 1 day before first patency, Alpha2 to 2 days
	// before, etc.
	Alpha1, Alpha2, Alpha3 float64
	Mu1, Mu2, Mu3          float64
	Sigma0Res, SigmaTRes   float64

	InflationMean     float64
	InflationVariance float64
	ExtinctionLevel   float64
	OverallMultiplier float64

	MaxAmplificationPerCycle float64

	// Autoregression coefficients indexed by infection age in days.
	MuBeta1, SigmaBeta1 []float64
	MuBeta2, SigmaBeta2 []float64
	MuBeta3, SigmaBeta3 []float64
}

// DefaultEmpiricalParams returns the published constants. The
// autoregression table itself ships as a CSV resource; see
// LoadAutoRegressionTable.
func DefaultEmpiricalParams() EmpiricalParams {
	return EmpiricalParams{
		Alpha1:                   0.2647,
		Alpha2:                   2.976,
		Alpha3:                   0.9181,
		Mu1:                      6.08e-04,
		Mu2:                      0.624,
		Mu3:                      0.3064,
		Sigma0Res:                0.9998,
		SigmaTRes:                0.002528,
		InflationMean:            1.09635,
		InflationVariance:        0.172029,
		ExtinctionLevel:          0.0100976,
		OverallMultiplier:        0.697581,
		MaxAmplificationPerCycle: 1000.0,
	}
}

func (p *EmpiricalParams) subPatentLimit() float64 { return 10.0 / p.OverallMultiplier }

func (p *EmpiricalParams) sigmaNoise(ageDays int) float64 {
	return p.Sigma0Res + p.SigmaTRes*float64(ageDays)
}

// Validate checks the coefficient table covers the whole duration range.
func (p *EmpiricalParams) Validate() error {
	n := len(p.MuBeta1)
	if n == 0 || n > empiricalMaxDuration {
		return errors.Errorf(InvalidIntParameterError, "autoregression table rows", n, "must be in 1..418")
	}
	for _, s := range [][]float64{p.SigmaBeta1, p.MuBeta2, p.SigmaBeta2, p.MuBeta3, p.SigmaBeta3} {
		if len(s) != n {
			return errors.Errorf(InvalidIntParameterError, "autoregression table columns length", len(s), "all columns must have equal length")
		}
	}
	return nil
}

// LoadAutoRegressionTable reads the day-indexed coefficient CSV
// (columns: day, mu_beta1, sigma_beta1, mu_beta2, sigma_beta2, mu_beta3,
// sigma_beta3; one header line) into the parameter struct.
func (p *EmpiricalParams) LoadAutoRegressionTable(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "opening autoregression table")
	}
	defer f.Close()

	const cols = empiricalMaxDuration
	p.MuBeta1 = make([]float64, cols)
	p.SigmaBeta1 = make([]float64, cols)
	p.MuBeta2 = make([]float64, cols)
	p.SigmaBeta2 = make([]float64, cols)
	p.MuBeta3 = make([]float64, cols)
	p.SigmaBeta3 = make([]float64, cols)

	scanner := bufio.NewScanner(f)
	lineNum := 0
	maxDay := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		lineNum++
		if lineNum == 1 || line == "" || strings.HasPrefix(line, "#") {
			// header or comment
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) != 7 {
			return errors.Errorf(FileParsingError, lineNum, "expected 7 comma-separated fields")
		}
		day, err := strconv.Atoi(strings.TrimSpace(fields[0]))
		if err != nil {
			return errors.Errorf(FileParsingError, lineNum, err.Error())
		}
		if day < 0 || day >= empiricalMaxDuration {
			return errors.Errorf(FileParsingError, lineNum, "day out of range")
		}
		vals := make([]float64, 6)
		for i := 0; i < 6; i++ {
			vals[i], err = strconv.ParseFloat(strings.TrimSpace(fields[i+1]), 64)
			if err != nil {
				return errors.Errorf(FileParsingError, lineNum, err.Error())
			}
		}
		p.MuBeta1[day] = vals[0]
		p.SigmaBeta1[day] = vals[1]
		p.MuBeta2[day] = vals[2]
		p.SigmaBeta2[day] = vals[3]
		p.MuBeta3[day] = vals[4]
		p.SigmaBeta3[day] = vals[5]
		if day > maxDay {
			maxDay = day
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "reading autoregression table")
	}
	trim := maxDay + 1
	p.MuBeta1 = p.MuBeta1[:trim]
	p.SigmaBeta1 = p.SigmaBeta1[:trim]
	p.MuBeta2 = p.MuBeta2[:trim]
	p.SigmaBeta2 = p.SigmaBeta2[:trim]
	p.MuBeta3 = p.MuBeta3[:trim]
	p.SigmaBeta3 = p.SigmaBeta3[:trim]
	return nil
}

// EmpiricalInfection carries the per-infection state of the
// autoregressive model.
type EmpiricalInfection struct {
	infectionCore

	laggedLogDensities         [3]float64
	patentGrowthRateMultiplier float64

	params *EmpiricalParams
}

// NewEmpiricalInfectionFactory returns the factory for the empirical
// model. The model requires a 1-day time step; the config layer
// enforces that.
func NewEmpiricalInfectionFactory(params *EmpiricalParams) InfectionFactory {
	return InfectionFactory{
		Create: func(rng *Rand, now SimTime, genotype GenotypeID, origin InfectionOrigin, hrp2Deficient bool) Infection {
			inf := &EmpiricalInfection{
				infectionCore:              newInfectionCore(now, genotype, origin, hrp2Deficient),
				patentGrowthRateMultiplier: 1.0,
				params:                     params,
			}
			// sample parasite densities for the last 3 prepatent days;
			// the lag decreases with time
			ub := math.Log(params.subPatentLimit())
			inf.laggedLogDensities[0] = inf.sampleSubPatentValue(rng, params.Alpha1, params.Mu1, ub)
			inf.laggedLogDensities[1] = inf.sampleSubPatentValue(rng, params.Alpha2, params.Mu2, ub)
			inf.laggedLogDensities[2] = inf.sampleSubPatentValue(rng, params.Alpha3, params.Mu3, ub)
			return inf
		},
		Decode: func(d *Decoder) Infection {
			inf := &EmpiricalInfection{infectionCore: decodeInfectionCore(d)}
			inf.laggedLogDensities[0] = d.F64()
			inf.laggedLogDensities[1] = d.F64()
			inf.laggedLogDensities[2] = d.F64()
			inf.patentGrowthRateMultiplier = d.F64()
			inf.params = params
			return inf
		},
	}
}

func (inf *EmpiricalInfection) updateDensity(rng *Rand, survivalFactor float64, bloodStageAge SimTime, bodyMass float64) bool {
	p := inf.params
	age := bloodStageAge.InDays()
	if age >= len(p.MuBeta1) || !(inf.laggedLogDensities[0] > -999999.9) {
		return true // cut-off point
	}

	l := &inf.laggedLogDensities
	// constrain the density to be defined and not exploding
	upperLimit := math.Log(p.MaxAmplificationPerCycle * math.Exp(l[1]) / p.InflationMean)
	var amplification float64
	ok := false
	for tries0 := 0; tries0 < empiricalMaxSamples; tries0++ {
		var logDensity float64
		accepted := false
		for tries1 := 0; tries1 < empiricalMaxSamples; tries1++ {
			b1 := rng.Gauss(p.MuBeta1[age], p.SigmaBeta1[age])
			b2 := rng.Gauss(p.MuBeta2[age], p.SigmaBeta2[age])
			b3 := rng.Gauss(p.MuBeta3[age], p.SigmaBeta3[age])
			expected := b1*(l[0]+l[1]+l[2])/3 +
				b2*(l[2]-l[0])/2 +
				b3*(l[2]+l[0]-2*l[1])/4

			// include sampling error
			logDensity = rng.Gauss(expected, p.sigmaNoise(age))
			// include drug and immunity effects via the growth-rate
			// multiplier
			logDensity += math.Log(inf.patentGrowthRateMultiplier)

			if logDensity <= upperLimit {
				accepted = true
				break
			}
		}
		if !accepted {
			logDensity = upperLimit
		}

		inf.density = inf.inflatedDensity(rng, logDensity)
		inf.density *= survivalFactor

		// infections killed before they become patent
		if age == 0 && inf.density < p.subPatentLimit() {
			inf.density = 0.0
		}

		amplification = inf.density / math.Exp(l[1])
		if inf.density >= 0.0 && amplification <= p.MaxAmplificationPerCycle {
			ok = true
			break
		}
	}
	if !ok {
		inf.density = p.MaxAmplificationPerCycle * math.Exp(l[1])
	}

	l[2] = l[1]
	l[1] = l[0]
	l[0] = math.Log(inf.density)

	inf.cumulativeExposureJ += inf.density

	// positive test for survival: NaN densities compare false and thus
	// terminate the infection
	if inf.density*p.OverallMultiplier > p.ExtinctionLevel {
		return false
	}
	return true
}

func (inf *EmpiricalInfection) sampleSubPatentValue(rng *Rand, alpha, mu, upperBound float64) float64 {
	beta := alpha * (1 - mu) / mu
	nonInflated := upperBound + math.Log(rng.Beta(alpha, beta))
	var inflated float64
	for tries := 0; tries < 10; tries++ {
		inflated = inf.inflatedDensity(rng, nonInflated)
		if inflated <= upperBound {
			return inflated
		}
	}
	return upperBound
}

func (inf *EmpiricalInfection) inflatedDensity(rng *Rand, nonInflatedLogDensity float64) float64 {
	inflatedLog := math.Log(inf.params.InflationMean) +
		rng.Gauss(nonInflatedLogDensity, math.Sqrt(inf.params.InflationVariance))
	return math.Exp(inflatedLog)
}

func (inf *EmpiricalInfection) encode(e *Encoder) {
	inf.encodeCore(e)
	e.F64(inf.laggedLogDensities[0])
	e.F64(inf.laggedLogDensities[1])
	e.F64(inf.laggedLogDensities[2])
	e.F64(inf.patentGrowthRateMultiplier)
}
