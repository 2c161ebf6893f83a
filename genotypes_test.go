package malariago

import "testing"

func TestGenotypesValidation(t *testing.T) {
	if _, err := NewGenotypes(nil); err == nil {
		t.Errorf(ExpectedErrorWhileError, "building an empty genotype table")
	}
	if _, err := NewGenotypes([]GenotypeData{{InitFreq: 0.4}, {InitFreq: 0.4}}); err == nil {
		t.Errorf(ExpectedErrorWhileError, "building genotypes with frequencies summing to 0.8")
	}
	if _, err := NewGenotypes([]GenotypeData{{InitFreq: -0.5}, {InitFreq: 1.5}}); err == nil {
		t.Errorf(ExpectedErrorWhileError, "building genotypes with a negative frequency")
	}
}

func TestGenotypeSampling(t *testing.T) {
	g, err := NewGenotypes([]GenotypeData{
		{InitFreq: 0.7},
		{InitFreq: 0.3, HRP2Deficient: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	rng := NewRand(51)

	// empty weights select by initial frequencies
	counts := make([]int, 2)
	const n = 20000
	for i := 0; i < n; i++ {
		counts[g.Sample(rng, nil)]++
	}
	if rate := float64(counts[0]) / n; rate < 0.68 || rate > 0.72 {
		t.Errorf("genotype 0 frequency %f, expected about 0.7", rate)
	}

	// supplied weights override the initial frequencies
	counts = make([]int, 2)
	for i := 0; i < n; i++ {
		counts[g.Sample(rng, []float64{0.0, 1.0})]++
	}
	if counts[0] != 0 {
		t.Errorf("genotype 0 sampled %d times under zero weight", counts[0])
	}

	if g.HRP2Deficient(0) || !g.HRP2Deficient(1) {
		t.Error("HRP2 deficiency flags wrong")
	}
}

func TestGenotypeSeedCounts(t *testing.T) {
	g, err := NewGenotypes([]GenotypeData{{InitFreq: 0.5}, {InitFreq: 0.5}})
	if err != nil {
		t.Fatal(err)
	}
	counts := g.SeedCounts(1000)
	total := 0
	for _, c := range counts {
		total += c
	}
	if total != 1000 {
		t.Errorf(UnequalIntParameterError, "seeded infections", 1000, total)
	}
}

func TestTreatmentRegistry(t *testing.T) {
	oneTS := FromDays(5)
	reg, err := NewTreatmentRegistry([]Treatment{
		{Name: "act", LiverDuration: ZeroTime, BloodDuration: FromDays(5)},
		{Name: "forever", LiverDuration: -oneTS, BloodDuration: -oneTS},
	}, oneTS)
	if err != nil {
		t.Fatal(err)
	}
	id, err := reg.Find("act")
	if err != nil {
		t.Fatal(err)
	}
	if reg.Get(id).BloodDuration != FromDays(5) {
		t.Error("treatment lookup returned wrong record")
	}
	if _, err := reg.Find("nope"); err == nil {
		t.Errorf(ExpectedErrorWhileError, "looking up a missing treatment")
	}

	if _, err := NewTreatmentRegistry([]Treatment{
		{Name: "bad", LiverDuration: FromDays(-10), BloodDuration: ZeroTime},
	}, oneTS); err == nil {
		t.Errorf(ExpectedErrorWhileError, "registering a treatment below -1 step")
	}
}
