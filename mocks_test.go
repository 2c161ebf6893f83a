package malariago

import (
	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"
)

// Shared fixtures for tests. Drug parameters reproduce the reference
// parameterisation used to validate the PK/PD code against LSTM's
// external model.

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

// sampleClock returns a clock mid-update so Ts0/Ts1 are usable, set to
// an arbitrary non-zero time.
func sampleClock(daysPerStep int) *Clock {
	clock, err := NewClock(daysPerStep, 90.0)
	if err != nil {
		panic(err)
	}
	clock.time0 = clock.FromYearsN(83.2591)
	clock.time1 = clock.time0
	clock.StartUpdate()
	return clock
}

func stepClock(c *Clock) {
	c.EndUpdate()
	c.StartUpdate()
}

func pd1(vmax, ic50, slope float64) []PDPhenotype {
	return []PDPhenotype{{VMax: vmax, IC50: ic50, Slope: slope}}
}

// samplePkPdSetup builds the reference drug registry, schedules and
// dosage table.
func samplePkPdSetup() (*DrugRegistry, *TreatmentLibrary) {
	types := []DrugType{
		// Artemether without conversion
		{
			Abbrev: "AR1", VolDist: 17.4, NegligibleConc: 1e-17,
			EliminationRate: 3.96, Compartments: 1, Metabolite: -1,
			PD: pd1(27.6, 0.0023, 4.0),
		},
		// Dihydroartemisinin as metabolite of artemether
		{
			Abbrev: "DHA_AR", VolDist: 15, NegligibleConc: 1e-17,
			EliminationRate: 44.15, Compartments: 1, Metabolite: -1,
			PD: pd1(27.6, 0.009, 4.0),
		},
		// Artemether with conversion to DHA
		{
			Abbrev: "AR", VolDist: 46.6, NegligibleConc: 1e-17,
			EliminationRate: 0, AbsorptionRate: 23.98, Compartments: 1,
			Metabolite: 1, ConversionRate: 11.98, MolWeightRatio: 0.9547587,
			PD: pd1(27.6, 0.0023, 4.0),
		},
		// Artesunate without conversion
		{
			Abbrev: "AS1", VolDist: 2.75, NegligibleConc: 1e-17,
			EliminationRate: 16.6, Compartments: 1, Metabolite: -1,
			PD: pd1(27.6, 0.0016, 4.0),
		},
		// Dihydroartemisinin as metabolite of artesunate
		{
			Abbrev: "DHA_AS", VolDist: 1.49, NegligibleConc: 1e-35,
			EliminationRate: 25.4, Compartments: 1, Metabolite: -1,
			PD: pd1(27.6, 0.009, 4.0),
		},
		// Artesunate with conversion to DHA
		{
			Abbrev: "AS", VolDist: 7.1, NegligibleConc: 1e-45,
			EliminationRate: 0, AbsorptionRate: 252, Compartments: 1,
			Metabolite: 4, ConversionRate: 30.96, MolWeightRatio: 0.741155,
			PD: pd1(27.6, 0.0016, 4.0),
		},
		// Dihydroartemisinin given directly
		{
			Abbrev: "DHA", VolDist: 1.49, NegligibleConc: 1e-17,
			EliminationRate: 19.8, Compartments: 1, Metabolite: -1,
			PD: pd1(27.6, 0.009, 4.0),
		},
		// Chloroquine
		{
			Abbrev: "CQ", VolDist: 300, NegligibleConc: 0.00036,
			EliminationRate: HalfLifeToRate(30.006), Compartments: 1, Metabolite: -1,
			PD: pd1(3.45, 0.02, 1.6),
		},
		// Lumefantrine
		{
			Abbrev: "LF", VolDist: 21, NegligibleConc: 0.00032,
			EliminationRate: 0.16, Compartments: 1, Metabolite: -1,
			PD: pd1(3.45, 0.032, 4.0),
		},
		// Mefloquine
		{
			Abbrev: "MQ", VolDist: 20.8, NegligibleConc: 0.005,
			EliminationRate: HalfLifeToRate(13.078), Compartments: 1, Metabolite: -1,
			PD: pd1(3.45, 0.027, 5.0),
		},
		// Piperaquine, 1-compartment
		{
			Abbrev: "PPQ", VolDist: 150, NegligibleConc: 0.005,
			EliminationRate: 0.03, Compartments: 1, Metabolite: -1,
			PD: pd1(3.45, 0.020831339, 6.0),
		},
		// Piperaquine, 2-compartment (Hodel 2013)
		{
			Abbrev: "PPQ2", VolDist: 173, NegligibleConc: 0.005,
			EliminationRate: 0.2452253, MassExponent: 0.25, AbsorptionRate: 11.16,
			Compartments: 2, K12: 0.2014864, K21: 0.07870968, Metabolite: -1,
			PD: pd1(3.45, 0.020831339, 6.0),
		},
		// Piperaquine, 3-compartment (Tarning 2012 AAC)
		{
			Abbrev: "PPQ3", VolDist: 57.5625, NegligibleConc: 0.005,
			EliminationRate: 16.314788273615637, MassExponent: 1.0, AbsorptionRate: 3.4825,
			Compartments: 3, K12: 1.854166666666667, K21: 1.1545945945945946,
			K13: 0.9027777777777778, K31: 0.07948639559767655, Metabolite: -1,
			PD: pd1(3.45, 0.020831339, 6.0),
		},
	}
	reg, err := NewDrugRegistry(types, testLogger())
	if err != nil {
		panic(err)
	}

	mqIdx, _ := reg.Find("MQ")
	schedules := []Schedule{
		{Name: "sched1", Medications: []MedicateData{
			{Drug: mqIdx, Qty: 6, Time: 0},
		}},
		{Name: "sched2", Medications: []MedicateData{
			{Drug: mqIdx, Qty: 2, Time: 0},
			{Drug: mqIdx, Qty: 5, Time: 0.5},
		}},
	}
	dosage1, err := NewDosageTable("dosage1", false, []float64{0, 5}, []float64{1, 5})
	if err != nil {
		panic(err)
	}
	lib, err := NewTreatmentLibrary(schedules, []*DosageTable{dosage1})
	if err != nil {
		panic(err)
	}
	return reg, lib
}

func sampleWithinHostParams(descriptive bool) *WithinHostParams {
	return &WithinHostParams{
		LatentP:           FromDays(15),
		Immunity:          DefaultImmunityParams(),
		MassByAge:         DefaultMassByAge(),
		HetMassMultStdDev: 0.0,
		Transmission:      DefaultTransmissionParams(),
		Descriptive:       descriptive,
	}
}

func sampleDiagnostics() *DiagnosticRegistry {
	microscopy, err := NewStochasticDiagnostic("microscopy", 20, 0.75)
	if err != nil {
		panic(err)
	}
	rdt, err := NewStochasticDiagnostic("RDT", 50, 0.942)
	if err != nil {
		panic(err)
	}
	reg, err := NewDiagnosticRegistry([]*Diagnostic{microscopy, rdt}, "")
	if err != nil {
		panic(err)
	}
	return reg
}

func sampleClinicalParams(clock *Clock, treatReg *TreatmentRegistry, diagReg *DiagnosticRegistry,
	drugLib *TreatmentLibrary) *ClinicalParams {

	severe := treatReg.Add(Treatment{Name: "severe", LiverDuration: ZeroTime, BloodDuration: clock.OneTS()})

	compiler := &treeCompiler{
		lib:         &nodeLibrary{},
		diagnostics: diagReg,
		treatments:  drugLib,
		clock:       clock,
		hsMemory:    clock.FromTS(6),
	}
	noTreat, err := compiler.compile(&DecisionTreeConfig{NoTreatment: true}, true)
	if err != nil {
		panic(err)
	}

	return &ClinicalParams{
		HealthSystemMemory: clock.FromTS(6),
		IndirectMortBugfix: true,
		AccessUCOfficial1:  0.5,
		AccessUCOfficial2:  0.5,
		AccessUCSelfTreat:  0.0,
		AccessSevere:       0.8,
		CureRateSevere:     0.9,
		CaseFatalityRate:   AgeCurve{Ages: []float64{0, 5, 90}, Values: []float64{0.09, 0.04, 0.04}},
		CommunityOddsRatio: 2.09,
		PSequelaeInpatient: AgeCurve{Ages: []float64{0, 5}, Values: []float64{0.0132, 0.005}},
		TreeUCOfficial:     noTreat,
		TreeUCSelfTreat:    noTreat,
		TreatmentSevere:    severe,
	}
}

// sampleHostSetup wires a complete harness around the dummy infection
// model on a 1-day step.
func sampleHostSetup() *HostSetup {
	clock := sampleClock(1)
	drugReg, drugLib := samplePkPdSetup()
	diagReg := sampleDiagnostics()
	treatReg, err := NewTreatmentRegistry(nil, clock.OneTS())
	if err != nil {
		panic(err)
	}
	pathParams := DefaultPathogenesisParams()
	return &HostSetup{
		Clock:        clock,
		WHParams:     sampleWithinHostParams(false),
		ClinParams:   sampleClinicalParams(clock, treatReg, diagReg, drugLib),
		PathParams:   &pathParams,
		Genotypes:    SingleGenotype(),
		Factory:      NewDummyInfectionFactory(),
		DrugReg:      drugReg,
		Treatments:   drugLib,
		TreatmentReg: treatReg,
		Logger:       testLogger(),
	}
}

func sampleHost(id int, seed uint64, setup *HostSetup) *Host {
	dob := setup.Clock.Ts0().Sub(FromYears(21))
	h := NewHost(id, dob, NewRand(seed), setup)
	h.SetReporter(NewSurvey(ksuidNil(), 0))
	return h
}

func ksuidNil() ksuid.KSUID { return ksuid.Nil }
