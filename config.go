package malariago

import (
	"math"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// ScenarioConfig is the top-level TOML configuration that can create a
// new simulation.
type ScenarioConfig struct {
	SimParams    *simConfig          `toml:"simulation"`
	ModelParams  *modelConfig        `toml:"model"`
	HealthSystem *healthSystemConfig `toml:"health_system"`
	Transmission *transmissionConfig `toml:"transmission"`
	Drugs        []*drugConfig       `toml:"drug"`
	Schedules    []*scheduleConfig   `toml:"schedule"`
	Dosages      []*dosageConfig     `toml:"dosage"`
	Diagnostics  []*diagnosticConfig `toml:"diagnostic"`
	Treatments   []*treatmentConfig  `toml:"treatment"`
	Genotypes    []*genotypeConfig   `toml:"genotype"`
	Cohorts      []*cohortConfig     `toml:"cohort"`

	validated bool
}

// LoadScenarioConfig parses a TOML scenario file.
func LoadScenarioConfig(path string) (*ScenarioConfig, error) {
	conf := new(ScenarioConfig)
	_, err := toml.DecodeFile(path, conf)
	if err != nil {
		return nil, err
	}
	return conf, nil
}

type simConfig struct {
	DaysPerStep      int     `toml:"days_per_step"`
	NumSteps         int     `toml:"num_steps"`
	NumInstances     int     `toml:"num_instances"`
	HostPopSize      int     `toml:"host_popsize"`
	InitInfections   int     `toml:"init_infections"`
	Seed             uint64  `toml:"seed"`
	MaxHumanAgeYears float64 `toml:"max_human_age_years"`
	LogPath          string  `toml:"log_path"`
	LogFreq          int     `toml:"log_freq"`
}

func (c *simConfig) Validate() error {
	if c.DaysPerStep != 1 && c.DaysPerStep != 5 {
		return errors.Errorf(InvalidIntParameterError, "days_per_step", c.DaysPerStep, "must be 1 or 5")
	}
	if c.NumSteps < 1 {
		return errors.Errorf(InvalidIntParameterError, "num_steps", c.NumSteps, "must be greater than or equal to 1")
	}
	if c.NumInstances < 1 {
		return errors.Errorf(InvalidIntParameterError, "num_instances", c.NumInstances, "must be greater than or equal to 1")
	}
	if c.HostPopSize < 1 {
		return errors.Errorf(InvalidIntParameterError, "host_popsize", c.HostPopSize, "must be greater than or equal to 1")
	}
	if c.MaxHumanAgeYears <= 0 {
		return errors.Errorf(InvalidFloatParameterError, "max_human_age_years", c.MaxHumanAgeYears, "must be positive")
	}
	if c.InitInfections < 0 {
		return errors.Errorf(InvalidIntParameterError, "init_infections", c.InitInfections, "must be non-negative")
	}
	if c.LogFreq < 1 {
		c.LogFreq = 1
	}
	return nil
}

type modelConfig struct {
	WithinHostModel string `toml:"within_host_model"` // descriptive, dummy, empirical, molineaux, penny
	LatentPDays     int    `toml:"latent_p_days"`

	// option flags
	MaxDensCorrection        bool `toml:"max_dens_correction"`
	InnateMaxDens            bool `toml:"innate_max_dens"`
	ImmuneThresholdGamma     bool `toml:"immune_threshold_gamma"`
	UpdateDensityGamma       bool `toml:"update_density_gamma"`
	FirstLocalMaximumGamma   bool `toml:"first_local_maximum_gamma"`
	MeanDurationGamma        bool `toml:"mean_duration_gamma"`
	ParasiteReplicationGamma bool `toml:"parasite_replication_gamma"`
	MolineauxPairwiseSample  bool `toml:"molineaux_pairwise_sample"`
	// InocAccountingFix enables the corrected inoculation accounting;
	// when unset, the historical add-back of dropped inoculations is
	// kept for consistency with old simulations.
	InocAccountingFix  bool `toml:"inoc_accounting_fix"`
	IndirectMortBugfix bool `toml:"indirect_mort_bugfix"`
	CFRUseHospital     bool `toml:"cfr_pf_use_hospital"`
	NonMalariaFever    bool `toml:"non_malaria_fever"`
	ProphylacticAction bool `toml:"prophylactic_action"`

	// heterogeneity
	ComorbiditySigma  float64 `toml:"comorbidity_sigma"`
	TreatSeekSigma    float64 `toml:"treatment_seeking_sigma"`
	HetMassMultStdDev float64 `toml:"het_mass_mult_stddev"`

	// sub-tables; zero values select defaults
	MassAges   []float64 `toml:"mass_ages"`
	MassValues []float64 `toml:"mass_kg"`

	ImmunityHstar            float64     `toml:"cumulative_h_star"`
	ImmunityYstar            float64     `toml:"cumulative_y_star"`
	ImmunityAlphaM           float64     `toml:"alpha_m"`
	ImmunityDecayM           float64     `toml:"decay_m"`
	ImmunitySigmaI           float64     `toml:"sigma_i"`
	ImmunityPenalty          float64     `toml:"immunity_penalty"`
	ImmuneEffectorDecay      float64     `toml:"immune_effector_decay"`
	AsexualImmunityDecay     float64     `toml:"asexual_immunity_decay"`
	EmpiricalARTablePath     string      `toml:"empirical_ar_table"`
	MolineauxPairwiseSamples [][]float64 `toml:"molineaux_pairwise_samples"`

	Pathogenesis *pathogenesisConfig `toml:"pathogenesis"`
}

type pathogenesisConfig struct {
	InitPyrogenThres  float64   `toml:"init_pyrogen_threshold"`
	Ystar2            float64   `toml:"y_star2"`
	Alpha             float64   `toml:"alpha"`
	Ystar1            float64   `toml:"y_star1"`
	SMuY              float64   `toml:"s_mu_y"`
	SevereYstar       float64   `toml:"severe_y_star"`
	ComorbSevere      float64   `toml:"comorb_severe"`
	CriticalAgeComorb float64   `toml:"critical_age_comorb"`
	IndirectRisk      float64   `toml:"indirect_risk"`
	NMFAges           []float64 `toml:"nmf_ages"`
	NMFIncidence      []float64 `toml:"nmf_incidence"`
}

func (c *modelConfig) Validate(daysPerStep int) error {
	model := strings.ToLower(c.WithinHostModel)
	switch model {
	case "descriptive":
		if daysPerStep != 5 {
			return errors.New("the descriptive within-host model only supports scenarios using an interval of 5")
		}
	case "dummy":
	case "empirical", "molineaux", "penny":
		if daysPerStep != 1 {
			return errors.Errorf("the %s within-host model only supports scenarios using an interval of 1", model)
		}
	default:
		return errors.Errorf(InvalidStringParameterError, "within_host_model", c.WithinHostModel, "must be one of descriptive, dummy, empirical, molineaux, penny")
	}
	if c.ProphylacticAction && daysPerStep == 1 {
		return Unimplemented("prophylactic effects on 1-day time step")
	}
	if c.LatentPDays == 0 {
		c.LatentPDays = 15
	}
	if c.LatentPDays < 0 {
		return errors.Errorf(InvalidIntParameterError, "latent_p_days", c.LatentPDays, "must be non-negative")
	}
	return nil
}

type healthSystemConfig struct {
	MemorySteps       int     `toml:"memory_steps"`
	AccessUCOfficial1 float64 `toml:"p_seek_official_care_uncomplicated1"`
	AccessUCOfficial2 float64 `toml:"p_seek_official_care_uncomplicated2"`
	AccessUCSelfTreat float64 `toml:"p_self_treat_uncomplicated"`
	AccessSevere      float64 `toml:"p_seek_official_care_severe"`
	CureRateSevere    float64 `toml:"cure_rate_severe"`

	CFRAges    []float64 `toml:"cfr_ages"`
	CFRValues  []float64 `toml:"cfr"`
	SeqAges    []float64 `toml:"sequelae_ages"`
	SeqValues  []float64 `toml:"p_sequelae_inpatient"`
	LogOddsCFR float64   `toml:"log_odds_ratio_cf_community"`

	NeonatalMortality float64 `toml:"neonatal_mortality"`

	MonitoringDiagnostic string `toml:"monitoring_diagnostic"`
	TreatmentSevere      string `toml:"treatment_severe"`

	TreeUCOfficial  *DecisionTreeConfig `toml:"tree_uc_official"`
	TreeUCSelfTreat *DecisionTreeConfig `toml:"tree_uc_self_treat"`
}

func (c *healthSystemConfig) Validate() error {
	if c.MemorySteps < 1 {
		return errors.Errorf(InvalidIntParameterError, "memory_steps", c.MemorySteps, "must be at least 1")
	}
	if c.TreeUCOfficial == nil || c.TreeUCSelfTreat == nil {
		return errors.New("health_system: tree_uc_official and tree_uc_self_treat are required")
	}
	if len(c.CFRAges) == 0 || len(c.CFRAges) != len(c.CFRValues) {
		return errors.New("health_system: cfr_ages and cfr must be non-empty and equal length")
	}
	if c.CFRAges[0] != 0 {
		return errors.New("health_system: cfr_ages must start at 0 so the whole age range is covered")
	}
	if len(c.SeqAges) == 0 || len(c.SeqAges) != len(c.SeqValues) {
		return errors.New("health_system: sequelae_ages and p_sequelae_inpatient must be non-empty and equal length")
	}
	if c.SeqAges[0] != 0 {
		return errors.New("health_system: sequelae_ages must start at 0 so the whole age range is covered")
	}
	return nil
}

type transmissionConfig struct {
	// EIRPerYear is the expected number of infective bites per person
	// per year delivered by the (external) vector model stand-in.
	EIRPerYear float64 `toml:"eir_per_year"`
	// ImportedFraction is the fraction of inoculations tagged imported.
	ImportedFraction float64 `toml:"imported_fraction"`
}

func (c *transmissionConfig) Validate() error {
	if c.EIRPerYear < 0 {
		return errors.Errorf(InvalidFloatParameterError, "eir_per_year", c.EIRPerYear, "must be non-negative")
	}
	if c.ImportedFraction < 0 || c.ImportedFraction > 1 {
		return errors.Errorf(InvalidFloatParameterError, "imported_fraction", c.ImportedFraction, "must be in [0,1]")
	}
	return nil
}

type drugConfig struct {
	Abbrev         string  `toml:"abbrev"`
	VolDist        float64 `toml:"vol_dist"`
	NegligibleConc float64 `toml:"negligible_conc"`
	HalfLife       float64 `toml:"half_life_days"`
	EliminationK   float64 `toml:"elimination_rate"`
	MassExponent   float64 `toml:"mass_exponent"`
	AbsorptionRate float64 `toml:"absorption_rate"`
	Compartments   int     `toml:"compartments"`
	K12            float64 `toml:"k12"`
	K21            float64 `toml:"k21"`
	K13            float64 `toml:"k13"`
	K31            float64 `toml:"k31"`
	Metabolite     string  `toml:"metabolite"`
	ConversionRate float64 `toml:"conversion_rate"`
	MolWeightRatio float64 `toml:"mol_weight_ratio"`

	VMax  []float64 `toml:"vmax"`
	IC50  []float64 `toml:"ic50"`
	Slope []float64 `toml:"slope"`
}

func (c *drugConfig) Validate() error {
	if c.Abbrev == "" {
		return errors.New("drug: abbrev is required")
	}
	if c.HalfLife != 0 && c.EliminationK != 0 {
		return errors.Errorf("drug %s: give half_life_days or elimination_rate, not both", c.Abbrev)
	}
	if c.Compartments == 0 {
		c.Compartments = 1
	}
	if len(c.VMax) == 0 || len(c.VMax) != len(c.IC50) || len(c.VMax) != len(c.Slope) {
		return errors.Errorf("drug %s: vmax, ic50 and slope must be non-empty and equal length", c.Abbrev)
	}
	return nil
}

type scheduleConfig struct {
	Name        string             `toml:"name"`
	Medications []medicationConfig `toml:"medicate"`
}

type medicationConfig struct {
	Drug       string  `toml:"drug"`
	Mg         float64 `toml:"mg"`
	Hour       float64 `toml:"hour"`
	DurationHr float64 `toml:"duration_hours"`
}

type dosageConfig struct {
	Name        string    `toml:"name"`
	By          string    `toml:"by"` // age, bodymass or kg
	LowerBounds []float64 `toml:"lower_bounds"`
	Multipliers []float64 `toml:"multipliers"`
}

type diagnosticConfig struct {
	Name        string  `toml:"name"`
	Type        string  `toml:"type"` // deterministic or stochastic
	Threshold   float64 `toml:"threshold"`
	Density     float64 `toml:"density"`
	Specificity float64 `toml:"specificity"`
	UsesHRP2    bool    `toml:"uses_hrp2"`
}

type treatmentConfig struct {
	Name            string `toml:"name"`
	DurationLiverTS int    `toml:"duration_liver"`
	DurationBloodTS int    `toml:"duration_blood"`
}

type genotypeConfig struct {
	InitFreq      float64 `toml:"init_freq"`
	HRP2Deficient bool    `toml:"hrp2_deficient"`
}

type cohortConfig struct {
	Name                   string `toml:"name"`
	RemoveOnFirstTreatment bool   `toml:"remove_on_first_treatment"`
	RemoveOnFirstBout      bool   `toml:"remove_on_first_bout"`
}

// Validate checks the validity of the whole configuration.
func (c *ScenarioConfig) Validate() error {
	if c.SimParams == nil || c.ModelParams == nil || c.HealthSystem == nil {
		return errors.New("scenario: simulation, model and health_system sections are required")
	}
	if err := c.SimParams.Validate(); err != nil {
		return err
	}
	if err := c.ModelParams.Validate(c.SimParams.DaysPerStep); err != nil {
		return err
	}
	if err := c.HealthSystem.Validate(); err != nil {
		return err
	}
	if c.Transmission != nil {
		if err := c.Transmission.Validate(); err != nil {
			return err
		}
	}
	for _, d := range c.Drugs {
		if err := d.Validate(); err != nil {
			return err
		}
	}
	model := strings.ToLower(c.ModelParams.WithinHostModel)
	if model == "descriptive" && len(c.Drugs) > 0 {
		return errors.New("the descriptive within-host model does not support the PK/PD layer")
	}
	c.validated = true
	return nil
}

// NewSimulation builds the registries, population and transmission
// stand-in described by the configuration.
func (c *ScenarioConfig) NewSimulation(logger zerolog.Logger) (*Simulation, error) {
	if !c.validated {
		if err := c.Validate(); err != nil {
			return nil, err
		}
	}

	clock, err := NewClock(c.SimParams.DaysPerStep, c.SimParams.MaxHumanAgeYears)
	if err != nil {
		return nil, err
	}

	// genotype table
	var genotypes *Genotypes
	if len(c.Genotypes) == 0 {
		genotypes = SingleGenotype()
	} else {
		data := make([]GenotypeData, len(c.Genotypes))
		for i, g := range c.Genotypes {
			data[i] = GenotypeData{InitFreq: g.InitFreq, HRP2Deficient: g.HRP2Deficient}
		}
		genotypes, err = NewGenotypes(data)
		if err != nil {
			return nil, err
		}
	}

	// drug registry
	drugTypes := make([]DrugType, len(c.Drugs))
	nameToIdx := make(map[string]int, len(c.Drugs))
	for i, d := range c.Drugs {
		nameToIdx[d.Abbrev] = i
	}
	for i, d := range c.Drugs {
		k := d.EliminationK
		if d.HalfLife > 0 {
			k = HalfLifeToRate(d.HalfLife)
		}
		met := -1
		if d.Metabolite != "" {
			idx, ok := nameToIdx[d.Metabolite]
			if !ok {
				return nil, errors.Errorf(StringKeyNotFoundError, "drug", d.Metabolite)
			}
			met = idx
		}
		pd := make([]PDPhenotype, len(d.VMax))
		for j := range d.VMax {
			pd[j] = PDPhenotype{VMax: d.VMax[j], IC50: d.IC50[j], Slope: d.Slope[j]}
		}
		drugTypes[i] = DrugType{
			Abbrev:          d.Abbrev,
			VolDist:         d.VolDist,
			NegligibleConc:  d.NegligibleConc,
			EliminationRate: k,
			MassExponent:    d.MassExponent,
			AbsorptionRate:  d.AbsorptionRate,
			Compartments:    d.Compartments,
			K12:             d.K12,
			K21:             d.K21,
			K13:             d.K13,
			K31:             d.K31,
			Metabolite:      met,
			ConversionRate:  d.ConversionRate,
			MolWeightRatio:  d.MolWeightRatio,
			PD:              pd,
		}
	}
	drugReg, err := NewDrugRegistry(drugTypes, logger)
	if err != nil {
		return nil, err
	}

	// treatment schedules and dosages
	schedules := make([]Schedule, len(c.Schedules))
	for i, s := range c.Schedules {
		sched := Schedule{Name: s.Name}
		for _, m := range s.Medications {
			idx, err := drugReg.Find(m.Drug)
			if err != nil {
				return nil, err
			}
			sched.Medications = append(sched.Medications, MedicateData{
				Drug:     idx,
				Qty:      m.Mg,
				Time:     m.Hour / 24.0,
				Duration: m.DurationHr / 24.0,
			})
		}
		schedules[i] = sched
	}
	dosages := make([]*DosageTable, len(c.Dosages))
	for i, dc := range c.Dosages {
		switch strings.ToLower(dc.By) {
		case "kg":
			dosages[i] = NewMultiplyByMassTable(dc.Name)
		case "age", "":
			dosages[i], err = NewDosageTable(dc.Name, false, dc.LowerBounds, dc.Multipliers)
		case "bodymass":
			dosages[i], err = NewDosageTable(dc.Name, true, dc.LowerBounds, dc.Multipliers)
		default:
			err = errors.Errorf(InvalidStringParameterError, "dosage by", dc.By, "must be age, bodymass or kg")
		}
		if err != nil {
			return nil, err
		}
	}
	treatLib, err := NewTreatmentLibrary(schedules, dosages)
	if err != nil {
		return nil, err
	}

	// diagnostics
	diags := make([]*Diagnostic, len(c.Diagnostics))
	for i, dc := range c.Diagnostics {
		switch strings.ToLower(dc.Type) {
		case "deterministic", "":
			diags[i], err = NewDeterministicDiagnostic(dc.Name, dc.Threshold)
		case "stochastic":
			diags[i], err = NewStochasticDiagnostic(dc.Name, dc.Density, dc.Specificity)
		default:
			err = errors.Errorf(InvalidStringParameterError, "diagnostic type", dc.Type, "must be deterministic or stochastic")
		}
		if err != nil {
			return nil, err
		}
		diags[i].UsesHRP2 = dc.UsesHRP2
	}
	diagReg, err := NewDiagnosticRegistry(diags, c.HealthSystem.MonitoringDiagnostic)
	if err != nil {
		return nil, err
	}

	// treatments
	treatments := make([]Treatment, len(c.Treatments))
	for i, t := range c.Treatments {
		treatments[i] = Treatment{
			Name:          t.Name,
			LiverDuration: clock.FromTS(t.DurationLiverTS),
			BloodDuration: clock.FromTS(t.DurationBloodTS),
		}
	}
	treatReg, err := NewTreatmentRegistry(treatments, clock.OneTS())
	if err != nil {
		return nil, err
	}

	// within-host parameter block
	whParams, factory, err := c.buildWithinHost(clock)
	if err != nil {
		return nil, err
	}

	// clinical parameters and decision trees
	hsMemory := clock.FromTS(c.HealthSystem.MemorySteps)
	compiler := &treeCompiler{
		lib:         &nodeLibrary{},
		diagnostics: diagReg,
		treatments:  treatLib,
		clock:       clock,
		hsMemory:    hsMemory,
	}
	treeOfficial, err := compiler.compile(c.HealthSystem.TreeUCOfficial, true)
	if err != nil {
		return nil, err
	}
	treeSelfTreat, err := compiler.compile(c.HealthSystem.TreeUCSelfTreat, true)
	if err != nil {
		return nil, err
	}
	severeTreat, err := treatReg.Find(c.HealthSystem.TreatmentSevere)
	if err != nil {
		return nil, err
	}
	clinParams := &ClinicalParams{
		HealthSystemMemory: hsMemory,
		IndirectMortBugfix: c.ModelParams.IndirectMortBugfix,
		AccessUCOfficial1:  c.HealthSystem.AccessUCOfficial1,
		AccessUCOfficial2:  c.HealthSystem.AccessUCOfficial2,
		AccessUCSelfTreat:  c.HealthSystem.AccessUCSelfTreat,
		AccessSevere:       c.HealthSystem.AccessSevere,
		CureRateSevere:     c.HealthSystem.CureRateSevere,
		CaseFatalityRate:   AgeCurve{Ages: c.HealthSystem.CFRAges, Values: c.HealthSystem.CFRValues},
		CommunityOddsRatio: math.Exp(c.HealthSystem.LogOddsCFR),
		CFRUseHospital:     c.ModelParams.CFRUseHospital,
		PSequelaeInpatient: AgeCurve{Ages: c.HealthSystem.SeqAges, Values: c.HealthSystem.SeqValues},
		NeonatalMortality:  c.HealthSystem.NeonatalMortality,
		TreeUCOfficial:     treeOfficial,
		TreeUCSelfTreat:    treeSelfTreat,
		TreatmentSevere:    severeTreat,
	}
	if err := clinParams.Validate(); err != nil {
		return nil, err
	}

	pathParams := c.buildPathogenesis()
	if err := pathParams.Validate(); err != nil {
		return nil, err
	}

	cohorts := make([]CohortSpec, len(c.Cohorts))
	for i, co := range c.Cohorts {
		cohorts[i] = CohortSpec{
			Name:                   co.Name,
			RemoveOnFirstTreatment: co.RemoveOnFirstTreatment,
			RemoveOnFirstBout:      co.RemoveOnFirstBout,
		}
	}

	setup := &HostSetup{
		Clock:            clock,
		WHParams:         whParams,
		ClinParams:       clinParams,
		PathParams:       pathParams,
		Genotypes:        genotypes,
		Factory:          factory,
		DrugReg:          drugReg,
		Treatments:       treatLib,
		TreatmentReg:     treatReg,
		Logger:           logger,
		ComorbiditySigma: c.ModelParams.ComorbiditySigma,
		TreatSeekSigma:   c.ModelParams.TreatSeekSigma,
		Cohorts:          cohorts,
	}

	var source TransmissionSource
	if c.Transmission != nil {
		source = &ConstantEIRSource{
			EIRPerStep:       c.Transmission.EIRPerYear * float64(c.SimParams.DaysPerStep) / DaysInYear,
			ImportedFraction: c.Transmission.ImportedFraction,
		}
	} else {
		source = &ConstantEIRSource{}
	}

	return newSimulation(c, setup, diagReg, source, logger)
}

// buildWithinHost assembles the within-host parameter block and the
// infection factory for the selected model.
func (c *ScenarioConfig) buildWithinHost(clock *Clock) (*WithinHostParams, InfectionFactory, error) {
	imm := DefaultImmunityParams()
	mp := c.ModelParams
	if mp.ImmunityHstar != 0 {
		imm.CumulativeHstar = mp.ImmunityHstar
	}
	if mp.ImmunityYstar != 0 {
		imm.CumulativeYstar = mp.ImmunityYstar
	}
	if mp.ImmunityAlphaM != 0 {
		imm.AlphaM = mp.ImmunityAlphaM
	}
	if mp.ImmunityDecayM != 0 {
		imm.DecayM = mp.ImmunityDecayM
	}
	if mp.ImmunitySigmaI != 0 {
		imm.SigmaI = mp.ImmunitySigmaI
	}
	imm.ImmPenalty = mp.ImmunityPenalty
	if mp.ImmuneEffectorDecay != 0 {
		imm.ImmEffectorRemain = math.Exp(-mp.ImmuneEffectorDecay)
	}
	if mp.AsexualImmunityDecay != 0 {
		imm.AsexImmRemain = math.Exp(-mp.AsexualImmunityDecay)
	}
	if err := imm.Validate(); err != nil {
		return nil, InfectionFactory{}, err
	}

	mass := DefaultMassByAge()
	if len(mp.MassAges) > 0 {
		mass = AgeCurve{Ages: mp.MassAges, Values: mp.MassValues}
	}
	if err := mass.Validate(); err != nil {
		return nil, InfectionFactory{}, errors.Wrap(err, "body mass")
	}

	params := &WithinHostParams{
		LatentP:               FromDays(mp.LatentPDays),
		Immunity:              imm,
		MassByAge:             mass,
		HetMassMultStdDev:     mp.HetMassMultStdDev,
		Transmission:          DefaultTransmissionParams(),
		KeepInocAccountingBug: !mp.InocAccountingFix,
	}

	var factory InfectionFactory
	switch strings.ToLower(mp.WithinHostModel) {
	case "descriptive":
		params.Descriptive = true
		dp := DefaultDescriptiveParams()
		dp.MaxDensCorrection = mp.MaxDensCorrection
		dp.InnateMaxDens = mp.InnateMaxDens
		if err := dp.Validate(); err != nil {
			return nil, InfectionFactory{}, err
		}
		descParams := dp
		factory = NewDescriptiveInfectionFactory(&descParams)
	case "dummy":
		factory = NewDummyInfectionFactory()
	case "empirical":
		ep := DefaultEmpiricalParams()
		if mp.EmpiricalARTablePath == "" {
			return nil, InfectionFactory{}, errors.New("the empirical within-host model requires empirical_ar_table")
		}
		if err := ep.LoadAutoRegressionTable(mp.EmpiricalARTablePath); err != nil {
			return nil, InfectionFactory{}, err
		}
		if err := ep.Validate(); err != nil {
			return nil, InfectionFactory{}, err
		}
		empParams := ep
		factory = NewEmpiricalInfectionFactory(&empParams)
	case "molineaux":
		molp := DefaultMolineauxParams()
		for _, pair := range mp.MolineauxPairwiseSamples {
			if len(pair) != 2 {
				return nil, InfectionFactory{}, errors.New("molineaux_pairwise_samples entries must be (first local maximum, mean duration) pairs")
			}
			molp.PairwiseSamples = append(molp.PairwiseSamples, [2]float64{pair[0], pair[1]})
		}
		opts := MolineauxOptions{
			FirstLocalMaximumGamma:   mp.FirstLocalMaximumGamma,
			MeanDurationGamma:        mp.MeanDurationGamma,
			ParasiteReplicationGamma: mp.ParasiteReplicationGamma,
			PairwiseSample:           mp.MolineauxPairwiseSample,
		}
		if err := molp.Validate(opts); err != nil {
			return nil, InfectionFactory{}, err
		}
		molParams := molp
		factory = NewMolineauxInfectionFactory(&molParams, opts)
	case "penny":
		factory = NewPennyInfectionFactory(PennyOptions{
			ImmuneThresholdGamma: mp.ImmuneThresholdGamma,
			UpdateDensityGamma:   mp.UpdateDensityGamma,
		})
	}
	return params, factory, nil
}

func (c *ScenarioConfig) buildPathogenesis() *PathogenesisParams {
	p := DefaultPathogenesisParams()
	pc := c.ModelParams.Pathogenesis
	if pc != nil {
		if pc.InitPyrogenThres != 0 {
			p.InitPyrogenThres = pc.InitPyrogenThres
		}
		if pc.Ystar2 != 0 {
			p.Ystar2 = pc.Ystar2
		}
		if pc.Alpha != 0 {
			p.Alpha = pc.Alpha
		}
		if pc.Ystar1 != 0 {
			p.Ystar1 = pc.Ystar1
		}
		if pc.SMuY != 0 {
			p.SMuY = pc.SMuY
		}
		if pc.SevereYstar != 0 {
			p.SevereYstar = pc.SevereYstar
		}
		if pc.ComorbSevere != 0 {
			p.ComorbSevere = pc.ComorbSevere
		}
		if pc.CriticalAgeComorb != 0 {
			p.CriticalAgeComorb = pc.CriticalAgeComorb
		}
		if pc.IndirectRisk != 0 {
			p.IndirectRisk = pc.IndirectRisk
		}
		if len(pc.NMFAges) > 0 {
			p.NMFIncidence = AgeCurve{Ages: pc.NMFAges, Values: pc.NMFIncidence}
		}
	}
	p.NonMalariaFever = c.ModelParams.NonMalariaFever
	return &p
}

// NumInstances returns the number of independent realisations to run.
func (c *ScenarioConfig) NumInstances() int { return c.SimParams.NumInstances }

// NumSteps returns the number of time steps in a single run.
func (c *ScenarioConfig) NumSteps() int { return c.SimParams.NumSteps }

// LogFreq returns the number of steps between survey flushes.
func (c *ScenarioConfig) LogFreq() int { return c.SimParams.LogFreq }

// LogPath returns the path where results are written.
func (c *ScenarioConfig) LogPath() string { return c.SimParams.LogPath }
