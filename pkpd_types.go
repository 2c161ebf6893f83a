package malariago

import (
	"math"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// PDPhenotype is the pharmacodynamic response of one parasite genotype
// to one drug.
type PDPhenotype struct {
	// VMax is the maximal killing rate (per day).
	VMax float64
	// IC50 is the concentration (mg/l) at which killing is half-maximal.
	IC50 float64
	// Slope is the sigmoidicity of the concentration-effect curve.
	Slope float64
}

// DrugType is the immutable description of one drug, loaded once at
// scenario start.
type DrugType struct {
	// Abbrev is the drug's short name (CQ, MQ, AR, ...).
	Abbrev string
	// VolDist is the volume of distribution in l/kg.
	VolDist float64
	// NegligibleConc is the concentration (mg/l) below which the drug is
	// dropped from the body.
	NegligibleConc float64
	// EliminationRate is the first-order elimination constant (per day).
	EliminationRate float64
	// MassExponent scales elimination with body mass:
	// k_eff = k * mass^-MassExponent.
	MassExponent float64
	// AbsorptionRate (ka, per day) moves drug from the absorption
	// compartment to the central compartment. Zero means doses are
	// boluses straight into the central compartment.
	AbsorptionRate float64
	// Compartments is 1, 2 or 3. Rates below apply to 2C/3C models.
	Compartments int
	K12, K21     float64
	K13, K31     float64
	// Metabolite is the index of the metabolite drug type, or -1. When
	// set, eliminated parent drug is converted at ConversionRate and
	// scaled by the molecular weight ratio.
	Metabolite     int
	ConversionRate float64
	MolWeightRatio float64
	// PD holds one phenotype per genotype; a single entry applies to all
	// genotypes.
	PD []PDPhenotype
}

// HalfLifeToRate converts an elimination half-life in days to a rate.
func HalfLifeToRate(halfLifeDays float64) float64 {
	return math.Ln2 / halfLifeDays
}

// PDFor returns the phenotype for a genotype.
func (dt *DrugType) PDFor(g GenotypeID) PDPhenotype {
	if int(g) < len(dt.PD) {
		return dt.PD[g]
	}
	return dt.PD[0]
}

func (dt *DrugType) hasConversion() bool { return dt.Metabolite >= 0 }

// DrugRegistry is the immutable drug-type table plus the once-per-run
// quadrature fallback warning state.
type DrugRegistry struct {
	types []DrugType
	index map[string]int

	mu     sync.Mutex
	warned []bool
	logger zerolog.Logger
}

// NewDrugRegistry validates and indexes the drug types.
func NewDrugRegistry(types []DrugType, logger zerolog.Logger) (*DrugRegistry, error) {
	r := &DrugRegistry{
		types:  make([]DrugType, len(types)),
		index:  make(map[string]int, len(types)),
		warned: make([]bool, len(types)),
		logger: logger,
	}
	copy(r.types, types)
	for i := range r.types {
		dt := &r.types[i]
		if dt.Abbrev == "" {
			return nil, errors.Errorf(InvalidStringParameterError, "drug abbreviation", dt.Abbrev, "must not be empty")
		}
		if _, dup := r.index[dt.Abbrev]; dup {
			return nil, errors.Errorf(InvalidStringParameterError, "drug abbreviation", dt.Abbrev, "duplicate")
		}
		if dt.VolDist <= 0 {
			return nil, errors.Wrapf(errors.Errorf(InvalidFloatParameterError, "volume of distribution", dt.VolDist, "must be positive"), "drug %s", dt.Abbrev)
		}
		if dt.NegligibleConc <= 0 {
			return nil, errors.Wrapf(errors.Errorf(InvalidFloatParameterError, "negligible concentration", dt.NegligibleConc, "must be positive"), "drug %s", dt.Abbrev)
		}
		if dt.Compartments < 1 || dt.Compartments > 3 {
			return nil, errors.Wrapf(errors.Errorf(InvalidIntParameterError, "compartments", dt.Compartments, "must be 1, 2 or 3"), "drug %s", dt.Abbrev)
		}
		if dt.Compartments > 1 && dt.AbsorptionRate <= 0 {
			return nil, errors.Wrapf(errors.New("2C/3C models require an absorption rate"), "drug %s", dt.Abbrev)
		}
		if dt.hasConversion() {
			if dt.Metabolite >= len(r.types) {
				return nil, errors.Wrapf(errors.Errorf(IntKeyNotFoundError, dt.Metabolite), "metabolite of drug %s", dt.Abbrev)
			}
			if dt.Compartments != 1 {
				return nil, errors.Wrapf(errors.New("conversion model requires a 1-compartment parent"), "drug %s", dt.Abbrev)
			}
			if dt.ConversionRate <= 0 || dt.MolWeightRatio <= 0 {
				return nil, errors.Wrapf(errors.New("conversion requires positive rate and weight ratio"), "drug %s", dt.Abbrev)
			}
		}
		if len(dt.PD) == 0 {
			return nil, errors.Wrapf(errors.New("at least one PD phenotype required"), "drug %s", dt.Abbrev)
		}
		for _, pd := range dt.PD {
			if pd.IC50 <= 0 || pd.Slope <= 0 || pd.VMax < 0 {
				return nil, errors.Wrapf(errors.New("PD phenotype out of range"), "drug %s", dt.Abbrev)
			}
		}
		r.index[dt.Abbrev] = i
	}
	return r, nil
}

// N returns the number of drug types.
func (r *DrugRegistry) N() int { return len(r.types) }

// Get returns a drug type by index.
func (r *DrugRegistry) Get(i int) *DrugType { return &r.types[i] }

// Find looks a drug up by abbreviation.
func (r *DrugRegistry) Find(abbrev string) (int, error) {
	i, ok := r.index[abbrev]
	if !ok {
		return 0, errors.Errorf(StringKeyNotFoundError, "drug", abbrev)
	}
	return i, nil
}

// warnFallback logs the quadrature fallback once per drug per run.
func (r *DrugRegistry) warnFallback(drugIndex int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.warned[drugIndex] {
		return
	}
	r.warned[drugIndex] = true
	r.logger.Warn().
		Str("drug", r.types[drugIndex].Abbrev).
		Msg("PD quadrature produced a non-finite integral; falling back to the constant-concentration approximation")
}

// MedicateData is one pending medication: a quantity of one drug to be
// taken at some time measured in days from the start of the current
// step (a value of 0.5 means noon today; values of 1 or more fall on
// later days).
type MedicateData struct {
	Drug     int     // drug type index
	Qty      float64 // mg
	Time     float64 // days from the start of the step
	Duration float64 // IV infusion length in days; 0 for oral/bolus
}

func (m MedicateData) multiplied(doseMult float64) MedicateData {
	m.Qty *= doseMult
	return m
}

func (m *MedicateData) encode(e *Encoder) {
	e.Int(m.Drug)
	e.F64(m.Qty)
	e.F64(m.Time)
	e.F64(m.Duration)
}

func decodeMedicateData(d *Decoder) MedicateData {
	var m MedicateData
	m.Drug = d.Int()
	m.Qty = d.F64()
	m.Time = d.F64()
	m.Duration = d.F64()
	return m
}

// Schedule is a named list of medications prescribed together.
type Schedule struct {
	Name        string
	Medications []MedicateData
}

// DosageTable maps a patient property (age in years, or body mass in
// kg) to a dose multiplier. Alternatively MultMassKg multiplies doses
// by body mass directly (schedule quantities are then mg/kg).
type DosageTable struct {
	Name string
	// ByMass keys the table on body mass instead of age.
	ByMass bool
	// MultMassKg multiplies by mass instead of using the table.
	MultMassKg bool

	// upperBounds[i] is the exclusive upper bound of bucket i; the last
	// entry is +Inf so a lookup can only fail on NaN keys.
	upperBounds []float64
	mults       []float64
}

// NewDosageTable builds a lookup table from lower bounds and
// multipliers. The first lower bound must be zero and bounds must be
// strictly increasing.
func NewDosageTable(name string, byMass bool, lowerBounds, mults []float64) (*DosageTable, error) {
	if len(lowerBounds) == 0 || len(lowerBounds) != len(mults) {
		return nil, errors.Errorf("dosage table %s: lower bounds and multipliers must be non-empty and equal length", name)
	}
	if lowerBounds[0] != 0.0 {
		return nil, errors.Errorf("dosage table %s: first lower bound must equal 0", name)
	}
	for i := 1; i < len(lowerBounds); i++ {
		if lowerBounds[i] <= lowerBounds[i-1] {
			return nil, errors.Errorf("dosage table %s: bounds must be listed in increasing order", name)
		}
	}
	t := &DosageTable{Name: name, ByMass: byMass}
	t.upperBounds = make([]float64, len(lowerBounds))
	t.mults = make([]float64, len(mults))
	copy(t.mults, mults)
	for i := 1; i < len(lowerBounds); i++ {
		t.upperBounds[i-1] = lowerBounds[i]
	}
	t.upperBounds[len(lowerBounds)-1] = math.Inf(1)
	return t, nil
}

// NewMultiplyByMassTable builds the mg/kg table variant.
func NewMultiplyByMassTable(name string) *DosageTable {
	return &DosageTable{Name: name, ByMass: true, MultMassKg: true}
}

// Multiplier returns the dose multiplier for an age or body mass key.
func (t *DosageTable) Multiplier(key float64) (float64, error) {
	if t.MultMassKg {
		return key, nil
	}
	i := sort.SearchFloat64s(t.upperBounds, key)
	// SearchFloat64s finds the first bound >= key; buckets are
	// half-open [lb, ub) so an exact hit on a bound belongs to the next
	// bucket.
	for i < len(t.upperBounds) && t.upperBounds[i] <= key {
		i++
	}
	if i >= len(t.mults) {
		return 0, errors.Errorf("dosage table %s: no bucket for key %f", t.Name, key)
	}
	return t.mults[i], nil
}

// TreatmentLibrary is the immutable registry of treatment schedules and
// dosage tables.
type TreatmentLibrary struct {
	schedules []Schedule
	schedIdx  map[string]int
	dosages   []*DosageTable
	dosIdx    map[string]int
}

// NewTreatmentLibrary indexes schedules and dosage tables by name.
func NewTreatmentLibrary(schedules []Schedule, dosages []*DosageTable) (*TreatmentLibrary, error) {
	lib := &TreatmentLibrary{
		schedules: schedules,
		schedIdx:  make(map[string]int, len(schedules)),
		dosages:   dosages,
		dosIdx:    make(map[string]int, len(dosages)),
	}
	for i, s := range schedules {
		if _, dup := lib.schedIdx[s.Name]; dup {
			return nil, errors.Errorf(InvalidStringParameterError, "schedule name", s.Name, "duplicate")
		}
		lib.schedIdx[s.Name] = i
	}
	for i, t := range dosages {
		if _, dup := lib.dosIdx[t.Name]; dup {
			return nil, errors.Errorf(InvalidStringParameterError, "dosage table name", t.Name, "duplicate")
		}
		lib.dosIdx[t.Name] = i
	}
	return lib, nil
}

// FindSchedule looks up a schedule index by name.
func (lib *TreatmentLibrary) FindSchedule(name string) (int, error) {
	i, ok := lib.schedIdx[name]
	if !ok {
		return 0, errors.Errorf(StringKeyNotFoundError, "treatment schedule", name)
	}
	return i, nil
}

// FindDosage looks up a dosage table index by name.
func (lib *TreatmentLibrary) FindDosage(name string) (int, error) {
	i, ok := lib.dosIdx[name]
	if !ok {
		return 0, errors.Errorf(StringKeyNotFoundError, "dosage table", name)
	}
	return i, nil
}

// ScheduleAt returns a schedule by index.
func (lib *TreatmentLibrary) ScheduleAt(i int) *Schedule { return &lib.schedules[i] }

// DosageAt returns a dosage table by index.
func (lib *TreatmentLibrary) DosageAt(i int) *DosageTable { return lib.dosages[i] }
