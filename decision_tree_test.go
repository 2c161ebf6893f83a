package malariago

import "testing"

func sampleCompiler(setup *HostSetup) *treeCompiler {
	return &treeCompiler{
		lib:         &nodeLibrary{},
		diagnostics: sampleDiagnostics(),
		treatments:  setup.Treatments,
		clock:       setup.Clock,
		hsMemory:    setup.Clock.FromTS(6),
	}
}

// propTreated runs the tree n times and returns the proportion of runs
// reporting treatment.
func propTreated(t *testing.T, node DecisionNode, hd CMHostData, n int) float64 {
	t.Helper()
	treated := 0
	for i := 0; i < n; i++ {
		if node.exec(hd).Treated {
			treated++
		}
	}
	return float64(treated) / float64(n)
}

func treatPKPDTree() DecisionTreeConfig {
	return DecisionTreeConfig{
		TreatPKPD: []DTTreatPKPDConfig{{Schedule: "sched1", Dosage: "dosage1"}},
	}
}

func noTreatmentTree() DecisionTreeConfig {
	return DecisionTreeConfig{NoTreatment: true}
}

func TestCaseTypeSwitch(t *testing.T) {
	setup := sampleHostSetup()
	host := sampleHost(0, 7, setup)
	tc := sampleCompiler(setup)

	cfg := DecisionTreeConfig{
		CaseType: &struct {
			FirstLine  DecisionTreeConfig `toml:"first_line"`
			SecondLine DecisionTreeConfig `toml:"second_line"`
		}{
			FirstLine:  treatPKPDTree(), // first line: treatment
			SecondLine: noTreatmentTree(),
		},
	}
	node, err := tc.compile(&cfg, true)
	if err != nil {
		t.Fatal(err)
	}

	hd := CMHostData{Host: host, AgeYears: 21, PgState: StateSick | StateMalaria}
	if got := propTreated(t, node, hd, 1); got != 1 {
		t.Errorf(UnequalFloatParameterError, "first-line treatment proportion", 1.0, got)
	}
	hd.PgState = StateSick | StateMalaria | StateSecondCase
	if got := propTreated(t, node, hd, 1); got != 0 {
		t.Errorf(UnequalFloatParameterError, "second-line treatment proportion", 0.0, got)
	}
}

func TestRandomBranchProportion(t *testing.T) {
	setup := sampleHostSetup()
	host := sampleHost(0, 11, setup)
	tc := sampleCompiler(setup)

	// 0.5 -> (0.9 treat / 0.1 nothing); 0.5 -> (0.7 treat / 0.3 nothing)
	// expected treatment proportion 0.8
	inner1 := DecisionTreeConfig{Random: &struct {
		Outcomes []DTOutcomeConfig `toml:"outcome"`
	}{[]DTOutcomeConfig{
		{P: 0.9, Tree: treatPKPDTree()},
		{P: 0.1, Tree: noTreatmentTree()},
	}}}
	inner2 := DecisionTreeConfig{Random: &struct {
		Outcomes []DTOutcomeConfig `toml:"outcome"`
	}{[]DTOutcomeConfig{
		{P: 0.7, Tree: treatPKPDTree()},
		{P: 0.3, Tree: noTreatmentTree()},
	}}}
	cfg := DecisionTreeConfig{Random: &struct {
		Outcomes []DTOutcomeConfig `toml:"outcome"`
	}{[]DTOutcomeConfig{
		{P: 0.5, Tree: inner1},
		{P: 0.5, Tree: inner2},
	}}}

	node, err := tc.compile(&cfg, true)
	if err != nil {
		t.Fatal(err)
	}
	hd := CMHostData{Host: host, AgeYears: 21, PgState: StateSick | StateMalaria}
	const n = 10000
	const lim = 0.02
	if got := propTreated(t, node, hd, n); got < 0.8-lim || got > 0.8+lim {
		t.Errorf("treatment proportion %f, expected 0.8 +/- %f", got, lim)
	}
}

func TestRandomProbabilitySumValidation(t *testing.T) {
	setup := sampleHostSetup()
	tc := sampleCompiler(setup)

	under := DecisionTreeConfig{Random: &struct {
		Outcomes []DTOutcomeConfig `toml:"outcome"`
	}{[]DTOutcomeConfig{
		{P: 0.5, Tree: noTreatmentTree()},
		{P: 0.4, Tree: treatPKPDTree()},
	}}}
	if _, err := tc.compile(&under, true); err == nil {
		t.Errorf(ExpectedErrorWhileError, "compiling a random node summing to 0.9")
	}

	over := DecisionTreeConfig{Random: &struct {
		Outcomes []DTOutcomeConfig `toml:"outcome"`
	}{[]DTOutcomeConfig{
		{P: 0.7, Tree: noTreatmentTree()},
		{P: 0.7, Tree: treatPKPDTree()},
	}}}
	if _, err := tc.compile(&over, true); err == nil {
		t.Errorf(ExpectedErrorWhileError, "compiling a random node summing to 1.4")
	}

	// the documented slack admits sums in [1.0, 1.001]
	slack := DecisionTreeConfig{Random: &struct {
		Outcomes []DTOutcomeConfig `toml:"outcome"`
	}{[]DTOutcomeConfig{
		{P: 0.5005, Tree: noTreatmentTree()},
		{P: 0.5003, Tree: treatPKPDTree()},
	}}}
	if _, err := tc.compile(&slack, true); err != nil {
		t.Errorf(UnexpectedErrorWhileError, "compiling a random node summing to 1.0008", err)
	}
}

func TestDiagnosticNode(t *testing.T) {
	setup := sampleHostSetup()
	host := sampleHost(0, 13, setup)
	tc := sampleCompiler(setup)

	cfg := DecisionTreeConfig{Diagnostic: &struct {
		Diagnostic string             `toml:"diagnostic"`
		Positive   DecisionTreeConfig `toml:"positive"`
		Negative   DecisionTreeConfig `toml:"negative"`
	}{
		Diagnostic: "RDT",
		Positive:   treatPKPDTree(),
		Negative:   noTreatmentTree(),
	}}
	node, err := tc.compile(&cfg, true)
	if err != nil {
		t.Fatal(err)
	}
	hd := CMHostData{Host: host, AgeYears: 21, PgState: StateSick | StateMalaria}

	const n = 20000
	const lim = 0.02
	cases := []struct {
		density float64
		exp     float64
	}{
		{0.0, 1 - 0.942},
		{80.0, 0.63769},
		{2000.0, 0.99702},
	}
	for _, c := range cases {
		host.WithinHost().totalDensity = c.density
		host.WithinHost().hrp2Density = c.density
		got := propTreated(t, node, hd, n)
		if got < c.exp-lim || got > c.exp+lim {
			t.Errorf("density %v: treatment proportion %f, expected %f +/- %f", c.density, got, c.exp, lim)
		}
		if !node.exec(hd).Screened {
			t.Error("diagnostic node did not mark the output as screened")
		}
	}
}

func TestAgeSwitch(t *testing.T) {
	setup := sampleHostSetup()
	host := sampleHost(0, 17, setup)
	tc := sampleCompiler(setup)

	cfg := DecisionTreeConfig{Age: &struct {
		Branches []DTAgeBranchConfig `toml:"age"`
	}{[]DTAgeBranchConfig{
		{LowerBound: 0.0, Tree: treatPKPDTree()},   // ages 0 to 2.5
		{LowerBound: 2.5, Tree: noTreatmentTree()}, // ages 2.5 to 50
		{LowerBound: 50.0, Tree: treatPKPDTree()},  // ages 50+
	}}}
	node, err := tc.compile(&cfg, true)
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		age float64
		exp float64
	}{
		{1, 1}, {2.5, 0}, {50, 1}, {1e6, 1}, // there is no upper bound
	}
	for _, c := range cases {
		hd := CMHostData{Host: host, AgeYears: c.age, PgState: StateSick | StateMalaria}
		if got := propTreated(t, node, hd, 1); got != c.exp {
			t.Errorf("age %v: treatment proportion %f, expected %f", c.age, got, c.exp)
		}
	}
}

func TestAgeSwitchValidation(t *testing.T) {
	setup := sampleHostSetup()
	tc := sampleCompiler(setup)

	cfg := DecisionTreeConfig{Age: &struct {
		Branches []DTAgeBranchConfig `toml:"age"`
	}{[]DTAgeBranchConfig{
		{LowerBound: 1.0, Tree: treatPKPDTree()},
	}}}
	if _, err := tc.compile(&cfg, true); err == nil {
		t.Errorf(ExpectedErrorWhileError, "compiling an age switch whose first lower bound is not 0")
	}
}

func TestTreatSimpleNode(t *testing.T) {
	setup := sampleHostSetup()
	host := sampleHost(0, 19, setup)
	tc := sampleCompiler(setup)

	cfg := DecisionTreeConfig{TreatSimple: []DTTreatSimpleConfig{{DurationLiver: 0, DurationBlood: 1}}}
	node, err := tc.compile(&cfg, true)
	if err != nil {
		t.Fatal(err)
	}
	hd := CMHostData{Host: host, AgeYears: 21, PgState: StateSick | StateMalaria}
	out := node.exec(hd)
	if !out.Treated {
		t.Error("treatSimple did not report treatment")
	}
	wh := host.WithinHost()
	if wh.treatExpiryBlood != setup.Clock.NowOrTs1().Add(setup.Clock.OneTS()) {
		t.Error("blood-stage expiry not set one step past the end of this step")
	}
	if wh.treatExpiryLiver != Never {
		t.Error("liver-stage expiry should be untouched for a zero duration")
	}

	// immediate clearance (-1) plus a liver-stage window
	wh.ImportInfection(host.Rng(), OriginIndigenous) // dummy model: blood stage from creation
	cfg2 := DecisionTreeConfig{TreatSimple: []DTTreatSimpleConfig{{DurationLiver: 3, DurationBlood: -1}}}
	node2, err := tc.compile(&cfg2, true)
	if err != nil {
		t.Fatal(err)
	}
	node2.exec(hd)
	if wh.NumInfections() != 0 {
		t.Error("blood-stage duration -1 should clear infections immediately")
	}
	if wh.treatExpiryLiver != setup.Clock.NowOrTs1().Add(setup.Clock.FromTS(3)) {
		t.Error("liver-stage expiry not set three steps ahead")
	}
}

func TestCaseTypeRejectedForSevere(t *testing.T) {
	setup := sampleHostSetup()
	tc := sampleCompiler(setup)
	cfg := DecisionTreeConfig{
		CaseType: &struct {
			FirstLine  DecisionTreeConfig `toml:"first_line"`
			SecondLine DecisionTreeConfig `toml:"second_line"`
		}{
			FirstLine:  treatPKPDTree(),
			SecondLine: noTreatmentTree(),
		},
	}
	if _, err := tc.compile(&cfg, false); err == nil {
		t.Errorf(ExpectedErrorWhileError, "using caseType outside uncomplicated context")
	}
}

func TestNodeDeduplication(t *testing.T) {
	setup := sampleHostSetup()
	tc := sampleCompiler(setup)

	cfgA := noTreatmentTree()
	cfgB := noTreatmentTree()
	a, err := tc.compile(&cfgA, true)
	if err != nil {
		t.Fatal(err)
	}
	b, err := tc.compile(&cfgB, true)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("structurally identical nodes not de-duplicated")
	}
}

func TestMultipleNodeORsTreated(t *testing.T) {
	setup := sampleHostSetup()
	host := sampleHost(0, 23, setup)
	tc := sampleCompiler(setup)

	cfg := DecisionTreeConfig{Multiple: &struct {
		Children []DecisionTreeConfig `toml:"children"`
	}{[]DecisionTreeConfig{
		noTreatmentTree(),
		{TreatFailure: true},
	}}}
	node, err := tc.compile(&cfg, true)
	if err != nil {
		t.Fatal(err)
	}
	hd := CMHostData{Host: host, AgeYears: 21, PgState: StateSick}
	if !node.exec(hd).Treated {
		t.Error("multiple node did not OR the treated outputs of its children")
	}
}

func TestInfectionOriginNode(t *testing.T) {
	setup := sampleHostSetup()
	host := sampleHost(0, 29, setup)
	tc := sampleCompiler(setup)

	cfg := DecisionTreeConfig{InfectionOrigin: &struct {
		Imported   DecisionTreeConfig `toml:"imported"`
		Introduced DecisionTreeConfig `toml:"introduced"`
		Indigenous DecisionTreeConfig `toml:"indigenous"`
	}{
		Imported:   treatPKPDTree(),
		Introduced: noTreatmentTree(),
		Indigenous: noTreatmentTree(),
	}}
	node, err := tc.compile(&cfg, true)
	if err != nil {
		t.Fatal(err)
	}
	hd := CMHostData{Host: host, AgeYears: 21, PgState: StateSick | StateMalaria}

	host.WithinHost().infectionOrigin = OriginImported
	if got := propTreated(t, node, hd, 1); got != 1 {
		t.Error("imported branch not taken")
	}
	host.WithinHost().infectionOrigin = OriginIntroduced
	if got := propTreated(t, node, hd, 1); got != 0 {
		t.Error("introduced branch not taken")
	}
}
