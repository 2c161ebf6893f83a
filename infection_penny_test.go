package malariago

import (
	"math"
	"testing"
)

func newPennyInfection(rng *Rand, opts PennyOptions) *PennyInfection {
	factory := NewPennyInfectionFactory(opts)
	return factory.Create(rng, ZeroTime, 0, OriginIndigenous, false).(*PennyInfection)
}

func TestPennyThresholdInvariant(t *testing.T) {
	rng := NewRand(17)
	for i := 0; i < 200; i++ {
		inf := newPennyInfection(rng, PennyOptions{})
		if inf.thresholdN <= inf.thresholdC || inf.thresholdN <= inf.thresholdV {
			t.Fatalf("threshold invariant broken: T_N=%f T_C=%f T_V=%f",
				inf.thresholdN, inf.thresholdC, inf.thresholdV)
		}
	}
	for i := 0; i < 200; i++ {
		inf := newPennyInfection(rng, PennyOptions{ImmuneThresholdGamma: true})
		if inf.thresholdN <= inf.thresholdC || inf.thresholdN <= inf.thresholdV {
			t.Fatalf("threshold invariant broken under gamma sampling: T_N=%f T_C=%f T_V=%f",
				inf.thresholdN, inf.thresholdC, inf.thresholdV)
		}
	}
}

func TestPennyInitialDensities(t *testing.T) {
	rng := NewRand(11)
	inf := newPennyInfection(rng, PennyOptions{})
	extinct := inf.updateDensity(rng, 1.0, ZeroTime, 50)
	if extinct {
		t.Fatal("infection extinct on its first blood-stage day")
	}
	if inf.Density() <= 0 {
		t.Errorf("initial circulating density %f not positive", inf.Density())
	}
	if !inf.BloodStage() {
		t.Error("blood stage not reported after initial densities assigned")
	}
}

func TestPennyRunsToExtinction(t *testing.T) {
	rng := NewRand(23)
	// an aggressive drug (survival factor well below replication)
	// terminates every infection in bounded time
	for trial := 0; trial < 10; trial++ {
		inf := newPennyInfection(rng, PennyOptions{})
		extinct := false
		for day := 0; day < 3650; day++ {
			if inf.updateDensity(rng, 0.01, FromDays(day), 50) {
				extinct = true
				break
			}
			if math.IsNaN(inf.Density()) {
				t.Fatal("density became NaN")
			}
		}
		if !extinct {
			t.Errorf("trial %d: infection survived 10 simulated years under strong drug pressure", trial)
		}
	}
}

func TestPennyDensityNonNegative(t *testing.T) {
	rng := NewRand(29)
	inf := newPennyInfection(rng, PennyOptions{UpdateDensityGamma: true})
	for day := 0; day < 365; day++ {
		if inf.updateDensity(rng, 1.0, FromDays(day), 50) {
			break
		}
		if inf.Density() < 0 {
			t.Fatalf("negative density %f on day %d", inf.Density(), day)
		}
	}
}

func TestPennyCheckpoint(t *testing.T) {
	rng := NewRand(31)
	factory := NewPennyInfectionFactory(PennyOptions{})
	inf := factory.Create(rng, ZeroTime, 0, OriginIntroduced, false)
	for day := 0; day < 30; day++ {
		if inf.updateDensity(rng, 1.0, FromDays(day), 50) {
			t.Skip("infection ended before checkpointing")
		}
	}

	restored := roundTripInfection(t, factory, inf).(*PennyInfection)
	orig := inf.(*PennyInfection)
	if restored.Density() != orig.Density() ||
		restored.thresholdN != orig.thresholdN ||
		restored.clonalSummation != orig.clonalSummation ||
		restored.variantSpecificSummation != orig.variantSpecificSummation {
		t.Error("penny infection state changed across a checkpoint round trip")
	}
	for i := 0; i < pennyDeltaC; i++ {
		if restored.cirDensities[i] != orig.cirDensities[i] {
			t.Fatalf("circulating ring buffer slot %d changed across round trip", i)
		}
	}
	for i := 0; i < pennyDeltaV; i++ {
		if restored.seqDensities[i] != orig.seqDensities[i] {
			t.Fatalf("sequestered ring buffer slot %d changed across round trip", i)
		}
	}
}
