package malariago

import (
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// Rand is a per-host random number stream. Every host owns one stream,
// seeded from a master sequence at creation, which makes simulation
// results independent of how hosts are scheduled onto threads. The
// underlying PCG state round-trips through checkpoints byte-exactly.
type Rand struct {
	src *rand.PCGSource
	rnd *rand.Rand
}

// NewRand creates a stream from a 64-bit seed.
func NewRand(seed uint64) *Rand {
	src := new(rand.PCGSource)
	src.Seed(seed)
	return &Rand{src: src, rnd: rand.New(src)}
}

// Uniform returns a uniform draw from [0, 1).
func (r *Rand) Uniform() float64 { return r.rnd.Float64() }

// Intn returns a uniform integer in [0, n).
func (r *Rand) Intn(n int) int { return r.rnd.Intn(n) }

// Bernoulli returns true with probability p.
func (r *Rand) Bernoulli(p float64) bool { return r.rnd.Float64() < p }

// Gauss returns a normal draw with the given mean and standard deviation.
func (r *Rand) Gauss(mu, sigma float64) float64 {
	return distuv.Normal{Mu: mu, Sigma: sigma, Src: r.src}.Rand()
}

// LogNormal returns exp of a Gauss(mu, sigma) draw.
func (r *Rand) LogNormal(mu, sigma float64) float64 {
	return math.Exp(r.Gauss(mu, sigma))
}

// Gamma returns a gamma draw with shape a and scale b.
func (r *Rand) Gamma(a, b float64) float64 {
	return distuv.Gamma{Alpha: a, Beta: 1.0 / b, Src: r.src}.Rand()
}

// Beta returns a beta draw with shape parameters a and b.
func (r *Rand) Beta(a, b float64) float64 {
	return distuv.Beta{Alpha: a, Beta: b, Src: r.src}.Rand()
}

// Poisson returns a Poisson draw with the given rate.
func (r *Rand) Poisson(lambda float64) int {
	if lambda <= 0 {
		return 0
	}
	return int(distuv.Poisson{Lambda: lambda, Src: r.src}.Rand())
}

// Categorical samples an index proportionally to the given weights.
// Weights need not be normalised but must not all be zero.
func (r *Rand) Categorical(weights []float64) int {
	var total float64
	for _, w := range weights {
		total += w
	}
	x := r.rnd.Float64() * total
	var cum float64
	for i, w := range weights {
		cum += w
		if x < cum {
			return i
		}
	}
	return len(weights) - 1
}

// Uint64 returns a raw 64-bit draw. Used to seed subordinate streams.
func (r *Rand) Uint64() uint64 { return r.rnd.Uint64() }

func (r *Rand) encode(e *Encoder) {
	state, err := r.src.MarshalBinary()
	if err != nil {
		e.fail(err)
		return
	}
	e.Bytes(state)
}

func decodeRand(d *Decoder) *Rand {
	r := NewRand(0)
	state := d.Bytes()
	if d.Err() == nil {
		if err := r.src.UnmarshalBinary(state); err != nil {
			d.fail(err)
		}
	}
	return r
}

// SeedSequence hands out seeds for per-host streams from one master
// stream, so that population construction order alone determines every
// host's stream.
type SeedSequence struct {
	master *Rand
}

// NewSeedSequence creates a seed sequence from a master seed.
func NewSeedSequence(seed uint64) *SeedSequence {
	return &SeedSequence{master: NewRand(seed)}
}

// Next returns a fresh stream.
func (s *SeedSequence) Next() *Rand { return NewRand(s.master.Uint64()) }
