package malariago

import (
	"math"
	"testing"
)

// newBloodStageDummy creates a dummy infection and advances it through
// the liver stage so the next update affects the density.
func newBloodStageDummy(t *testing.T, rng *Rand, clock *Clock, latentP SimTime) Infection {
	t.Helper()
	factory := NewDummyInfectionFactory()
	inf := factory.Create(rng, clock.Ts1(), 0, OriginIndigenous, false)
	for d, end := clock.Ts1(), clock.Ts1().Add(latentP); d < end; d = d.Add(OneDay) {
		stepClock(clock)
		if updateInfection(inf, rng, 1.0, d, math.NaN(), latentP) {
			t.Fatal("infection went extinct during the liver stage")
		}
	}
	return inf
}

func TestDummyInfectionLatency(t *testing.T) {
	clock := sampleClock(1)
	latentP := FromDays(15)
	inf := newBloodStageDummy(t, NewRand(0), clock, latentP)
	// blood stage starts latentP days after creation; until then the
	// initial density is held and invisible to updates
	if exp := 16.0; exp != inf.Density() {
		t.Errorf(UnequalFloatParameterError, "density after liver stage", exp, inf.Density())
	}
}

func TestDummyInfectionGrowth(t *testing.T) {
	clock := sampleClock(1)
	latentP := FromDays(15)
	rng := NewRand(0)
	inf := newBloodStageDummy(t, rng, clock, latentP)

	stepClock(clock)
	updateInfection(inf, rng, 1.0, clock.Ts1(), math.NaN(), latentP)
	if exp := 128.0; exp != inf.Density() {
		t.Errorf(UnequalFloatParameterError, "density after one update", exp, inf.Density())
	}

	stepClock(clock)
	updateInfection(inf, rng, 1.0, clock.Ts1(), math.NaN(), latentP)
	if exp := 1024.0; exp != inf.Density() {
		t.Errorf(UnequalFloatParameterError, "density after two updates", exp, inf.Density())
	}
}

func TestDummyInfectionSurvivalFactor(t *testing.T) {
	clock := sampleClock(1)
	latentP := FromDays(15)
	rng := NewRand(0)
	inf := newBloodStageDummy(t, rng, clock, latentP)

	stepClock(clock)
	updateInfection(inf, rng, 1.0, clock.Ts1(), math.NaN(), latentP)
	stepClock(clock)
	updateInfection(inf, rng, 0.1, clock.Ts1(), math.NaN(), latentP)
	// one tenth of the unhindered density
	if exp := 102.4; math.Abs(inf.Density()-exp) > 1e-9 {
		t.Errorf(UnequalFloatParameterError, "density under survival factor 0.1", exp, inf.Density())
	}
}

func TestDummyInfectionExtinction(t *testing.T) {
	clock := sampleClock(1)
	latentP := FromDays(15)
	rng := NewRand(0)
	inf := newBloodStageDummy(t, rng, clock, latentP)

	stepClock(clock)
	// survival factor small enough to push the density below threshold
	if !updateInfection(inf, rng, 1e-3, clock.Ts1(), math.NaN(), latentP) {
		t.Errorf("expected extinction at density %f", inf.Density())
	}
}

func TestDummyInfectionCheckpoint(t *testing.T) {
	clock := sampleClock(1)
	rng := NewRand(0)
	factory := NewDummyInfectionFactory()
	inf := factory.Create(rng, clock.Ts1(), 2, OriginImported, true)

	restored := roundTripInfection(t, factory, inf)
	if restored.Density() != inf.Density() ||
		restored.Genotype() != inf.Genotype() ||
		restored.Origin() != inf.Origin() ||
		restored.StartDate() != inf.StartDate() ||
		restored.HRP2Deficient() != inf.HRP2Deficient() {
		t.Error("dummy infection state changed across a checkpoint round trip")
	}
}
