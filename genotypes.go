package malariago

import (
	"fmt"

	rv "github.com/kentwait/randomvariate"
)

// GenotypeID identifies a parasite strain. IDs index the immutable
// Genotypes table and the per-genotype PD phenotypes of each drug.
type GenotypeID uint32

// InfectionOrigin tags where an infection's inoculation came from.
type InfectionOrigin int

const (
	// OriginImported infections arrive from outside the simulated setting.
	OriginImported InfectionOrigin = iota
	// OriginIntroduced infections stem from mosquitoes infected by
	// imported cases.
	OriginIntroduced
	// OriginIndigenous infections stem from local transmission chains.
	OriginIndigenous
)

func (o InfectionOrigin) String() string {
	switch o {
	case OriginImported:
		return "imported"
	case OriginIntroduced:
		return "introduced"
	case OriginIndigenous:
		return "indigenous"
	}
	return fmt.Sprintf("origin(%d)", int(o))
}

// GenotypeData holds the per-strain attributes fixed at scenario load.
type GenotypeData struct {
	// InitFreq is the strain's frequency at simulation start, used when
	// a sampler is given no weights.
	InitFreq float64
	// HRP2Deficient strains are invisible to HRP2-based diagnostics and
	// excluded from the hrp2Density aggregate.
	HRP2Deficient bool
}

// Genotypes is the immutable strain table shared by reference between
// all hosts. It is built once at scenario load and read-only afterwards.
type Genotypes struct {
	data      []GenotypeData
	initFreqs []float64
}

// NewGenotypes builds the strain table. Initial frequencies must be
// non-negative and sum to 1 within 1e-6.
func NewGenotypes(data []GenotypeData) (*Genotypes, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf(InvalidIntParameterError, "genotype count", 0, "must be at least 1")
	}
	g := new(Genotypes)
	g.data = make([]GenotypeData, len(data))
	copy(g.data, data)
	g.initFreqs = make([]float64, len(data))
	var sum float64
	for i, gd := range data {
		if gd.InitFreq < 0 {
			return nil, fmt.Errorf(InvalidFloatParameterError, "genotype initial frequency", gd.InitFreq, "must be non-negative")
		}
		g.initFreqs[i] = gd.InitFreq
		sum += gd.InitFreq
	}
	if sum < 1.0-1e-6 || sum > 1.0+1e-6 {
		return nil, fmt.Errorf(InvalidFloatParameterError, "genotype initial frequency sum", sum, "must sum to 1")
	}
	return g, nil
}

// SingleGenotype is the trivial table used when strains are not modelled.
func SingleGenotype() *Genotypes {
	g, err := NewGenotypes([]GenotypeData{{InitFreq: 1.0}})
	if err != nil {
		panic(err)
	}
	return g
}

// N returns the number of genotypes.
func (g *Genotypes) N() int { return len(g.data) }

// HRP2Deficient reports whether the strain lacks HRP2 expression.
func (g *Genotypes) HRP2Deficient(id GenotypeID) bool {
	return g.data[id].HRP2Deficient
}

// Sample draws a genotype using the supplied weights, or the initial
// frequencies when weights is empty (the signal used by importation
// hooks). The weights vector, when present, must have one entry per
// genotype.
func (g *Genotypes) Sample(rng *Rand, weights []float64) GenotypeID {
	if len(weights) == 0 {
		weights = g.initFreqs
	}
	if len(weights) != len(g.data) {
		panic(invariantf("genotype weights length %d != genotype count %d", len(weights), len(g.data)))
	}
	return GenotypeID(rng.Categorical(weights))
}

// SeedCounts partitions n initial infections between genotypes by a
// multinomial draw over the initial frequencies. Used single-threaded at
// population bootstrap only (the underlying sampler draws from the
// process-global stream, which the CLI seeds once at start-up).
func (g *Genotypes) SeedCounts(n int) []int {
	if n <= 0 {
		return make([]int, len(g.initFreqs))
	}
	return rv.Multinomial(n, g.initFreqs)
}
