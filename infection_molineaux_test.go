package malariago

import (
	"math"
	"testing"
)

func TestMolineauxOptionsValidation(t *testing.T) {
	p := DefaultMolineauxParams()
	if err := p.Validate(MolineauxOptions{}); err != nil {
		t.Errorf(UnexpectedErrorWhileError, "validating default options", err)
	}
	if err := p.Validate(MolineauxOptions{PairwiseSample: true}); err == nil {
		t.Errorf(ExpectedErrorWhileError, "pairwise sampling without sample pairs")
	}
	p.PairwiseSamples = [][2]float64{{4.5, 5.0}}
	if err := p.Validate(MolineauxOptions{PairwiseSample: true}); err != nil {
		t.Errorf(UnexpectedErrorWhileError, "validating pairwise options", err)
	}
	if err := p.Validate(MolineauxOptions{PairwiseSample: true, MeanDurationGamma: true}); err == nil {
		t.Errorf(ExpectedErrorWhileError, "combining pairwise and gamma sampling")
	}
}

func TestMolineauxGrowthFromSeed(t *testing.T) {
	p := DefaultMolineauxParams()
	factory := NewMolineauxInfectionFactory(&p, MolineauxOptions{})
	rng := NewRand(13)
	inf := factory.Create(rng, ZeroTime, 0, OriginIndigenous, false)

	inf.updateDensity(rng, 1.0, ZeroTime, 50)
	if inf.Density() <= 0 {
		t.Fatal("no density after blood-stage seeding")
	}
	seeded := inf.Density()
	for day := 1; day <= 8; day++ {
		inf.updateDensity(rng, 1.0, FromDays(day), 50)
	}
	if inf.Density() <= seeded {
		t.Errorf("density did not grow in the first week: %g -> %g", seeded, inf.Density())
	}
}

func TestMolineauxPeakIsControlled(t *testing.T) {
	p := DefaultMolineauxParams()
	factory := NewMolineauxInfectionFactory(&p, MolineauxOptions{})
	rng := NewRand(19)

	for trial := 0; trial < 10; trial++ {
		inf := factory.Create(rng, ZeroTime, 0, OriginIndigenous, false).(*MolineauxInfection)
		peak := 0.0
		for day := 0; day < 730; day++ {
			if inf.updateDensity(rng, 1.0, FromDays(day), 50) {
				break
			}
			if math.IsNaN(inf.Density()) || math.IsInf(inf.Density(), 0) {
				t.Fatal("density not finite")
			}
			peak = math.Max(peak, inf.Density())
		}
		// the innate response must keep the peak within a few orders of
		// magnitude of the sampled first local maximum
		if peak > inf.pStarC*1e3 {
			t.Errorf("trial %d: peak %g far above control threshold %g", trial, peak, inf.pStarC)
		}
	}
}

func TestMolineauxVariantSwitching(t *testing.T) {
	p := DefaultMolineauxParams()
	factory := NewMolineauxInfectionFactory(&p, MolineauxOptions{})
	rng := NewRand(37)
	inf := factory.Create(rng, ZeroTime, 0, OriginIndigenous, false).(*MolineauxInfection)

	for day := 0; day < 30; day++ {
		if inf.updateDensity(rng, 1.0, FromDays(day), 50) {
			t.Skip("infection ended before variants could switch")
		}
	}
	active := 0
	for i := 0; i < molVariants; i++ {
		if inf.variants[i] > 0 {
			active++
		}
	}
	if active < 2 {
		t.Errorf("only %d variants expressed after a month", active)
	}
}

func TestMolineauxCheckpoint(t *testing.T) {
	p := DefaultMolineauxParams()
	factory := NewMolineauxInfectionFactory(&p, MolineauxOptions{ParasiteReplicationGamma: true})
	rng := NewRand(41)
	inf := factory.Create(rng, ZeroTime, 0, OriginIndigenous, false)
	for day := 0; day < 20; day++ {
		inf.updateDensity(rng, 1.0, FromDays(day), 50)
	}

	restored := roundTripInfection(t, factory, inf).(*MolineauxInfection)
	orig := inf.(*MolineauxInfection)
	if restored.Density() != orig.Density() ||
		restored.pStarC != orig.pStarC ||
		restored.pStarM != orig.pStarM ||
		restored.cumulativeDensity != orig.cumulativeDensity {
		t.Error("molineaux infection state changed across a checkpoint round trip")
	}
	for i := 0; i < molVariants; i++ {
		if restored.variants[i] != orig.variants[i] || restored.multFactors[i] != orig.multFactors[i] {
			t.Fatalf("variant %d state changed across round trip", i)
		}
	}
}
