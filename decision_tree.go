package malariago

import (
	"math"
	"sort"

	"github.com/pkg/errors"
)

// The case-management decision tree is a DAG of immutable nodes built
// once at scenario load. Structurally identical subtrees are
// de-duplicated into a shared library, so equality checks between
// children can compare pointers.

// CMHostData is the context a decision tree executes against.
type CMHostData struct {
	Host     *Host
	AgeYears float64
	PgState  EpisodeState
}

// CMDTOut is the outcome of running a (sub)tree.
type CMDTOut struct {
	// Treated reports whether any treatment was deployed.
	Treated bool
	// Screened reports whether a diagnostic was used.
	Screened bool
}

// DecisionNode is one node of the compiled tree.
type DecisionNode interface {
	exec(hd CMHostData) CMDTOut
	// equal compares against another node; children may be compared by
	// pointer because they are de-duplicated.
	equal(other DecisionNode) bool
}

// nodeLibrary de-duplicates decision nodes globally.
type nodeLibrary struct {
	nodes []DecisionNode
}

func (lib *nodeLibrary) save(n DecisionNode) DecisionNode {
	for _, existing := range lib.nodes {
		if existing.equal(n) {
			return existing
		}
	}
	lib.nodes = append(lib.nodes, n)
	return n
}

// ———  branching nodes  ———

type dtMultiple struct {
	children []DecisionNode
}

func (n *dtMultiple) exec(hd CMHostData) CMDTOut {
	var result CMDTOut
	for _, c := range n.children {
		r2 := c.exec(hd)
		result.Treated = result.Treated || r2.Treated
		result.Screened = result.Screened || r2.Screened
	}
	return result
}

func (n *dtMultiple) equal(other DecisionNode) bool {
	p, ok := other.(*dtMultiple)
	if !ok || len(n.children) != len(p.children) {
		return false
	}
	for i := range n.children {
		if n.children[i] != p.children[i] {
			return false
		}
	}
	return true
}

type dtCaseType struct {
	firstLine  DecisionNode
	secondLine DecisionNode
}

func (n *dtCaseType) exec(hd CMHostData) CMDTOut {
	if hd.PgState&StateSecondCase != 0 {
		return n.secondLine.exec(hd)
	}
	return n.firstLine.exec(hd)
}

func (n *dtCaseType) equal(other DecisionNode) bool {
	p, ok := other.(*dtCaseType)
	return ok && n.firstLine == p.firstLine && n.secondLine == p.secondLine
}

type dtInfectionOrigin struct {
	imported   DecisionNode
	introduced DecisionNode
	indigenous DecisionNode
}

func (n *dtInfectionOrigin) exec(hd CMHostData) CMDTOut {
	switch hd.Host.WithinHost().InfectionOrigin() {
	case OriginImported:
		return n.imported.exec(hd)
	case OriginIntroduced:
		return n.introduced.exec(hd)
	default:
		return n.indigenous.exec(hd)
	}
}

func (n *dtInfectionOrigin) equal(other DecisionNode) bool {
	p, ok := other.(*dtInfectionOrigin)
	return ok && n.imported == p.imported && n.introduced == p.introduced && n.indigenous == p.indigenous
}

type dtDiagnostic struct {
	diagnostic *Diagnostic
	positive   DecisionNode
	negative   DecisionNode
}

func (n *dtDiagnostic) exec(hd CMHostData) CMDTOut {
	var result CMDTOut
	if hd.Host.WithinHost().DiagnosticResult(hd.Host.Rng(), n.diagnostic) {
		result = n.positive.exec(hd)
	} else {
		result = n.negative.exec(hd)
	}
	result.Screened = true
	return result
}

func (n *dtDiagnostic) equal(other DecisionNode) bool {
	p, ok := other.(*dtDiagnostic)
	return ok && n.diagnostic == p.diagnostic && n.positive == p.positive && n.negative == p.negative
}

type dtUncomplicated struct {
	memory   SimTime
	positive DecisionNode
	negative DecisionNode
}

func (n *dtUncomplicated) exec(hd CMHostData) CMDTOut {
	if (hd.PgState&StateSick != 0 && hd.PgState&StateComplicated == 0) || hd.PgState&StateMalaria != 0 {
		latest := hd.Host.Clinical().LatestReport()
		if latest.Time.Add(n.memory) >= hd.Host.Clock().NowOrTs0() {
			return n.positive.exec(hd)
		}
	}
	return n.negative.exec(hd)
}

func (n *dtUncomplicated) equal(other DecisionNode) bool {
	p, ok := other.(*dtUncomplicated)
	return ok && n.memory == p.memory && n.positive == p.positive && n.negative == p.negative
}

type dtSevere struct {
	positive DecisionNode
	negative DecisionNode
}

func (n *dtSevere) exec(hd CMHostData) CMDTOut {
	if hd.PgState&StateComplicated != 0 {
		return n.positive.exec(hd)
	}
	return n.negative.exec(hd)
}

func (n *dtSevere) equal(other DecisionNode) bool {
	p, ok := other.(*dtSevere)
	return ok && n.positive == p.positive && n.negative == p.negative
}

type dtRandom struct {
	// cumProbs are cumulative probabilities; the matching branch is the
	// first whose cumulative probability exceeds the draw.
	cumProbs []float64
	branches []DecisionNode
}

func (n *dtRandom) exec(hd CMHostData) CMDTOut {
	x := hd.Host.Rng().Uniform()
	i := sort.SearchFloat64s(n.cumProbs, x)
	for i < len(n.cumProbs) && n.cumProbs[i] <= x {
		i++
	}
	if i >= len(n.branches) {
		i = len(n.branches) - 1
	}
	return n.branches[i].exec(hd)
}

func (n *dtRandom) equal(other DecisionNode) bool {
	p, ok := other.(*dtRandom)
	if !ok || len(n.branches) != len(p.branches) {
		return false
	}
	for i := range n.branches {
		if n.cumProbs[i] != p.cumProbs[i] || n.branches[i] != p.branches[i] {
			return false
		}
	}
	return true
}

type dtAge struct {
	// upperBounds[i] is the exclusive upper bound of branch i; the last
	// is +Inf.
	upperBounds []float64
	branches    []DecisionNode
}

func (n *dtAge) exec(hd CMHostData) CMDTOut {
	for i, ub := range n.upperBounds {
		if hd.AgeYears < ub {
			return n.branches[i].exec(hd)
		}
	}
	panic(invariantf("age-based decision tree switch found no branch for age %f", hd.AgeYears))
}

func (n *dtAge) equal(other DecisionNode) bool {
	p, ok := other.(*dtAge)
	if !ok || len(n.branches) != len(p.branches) {
		return false
	}
	for i := range n.branches {
		if n.upperBounds[i] != p.upperBounds[i] || n.branches[i] != p.branches[i] {
			return false
		}
	}
	return true
}

type dtCohort struct {
	component string
	positive  DecisionNode
	negative  DecisionNode
}

func (n *dtCohort) exec(hd CMHostData) CMDTOut {
	if hd.Host.InCohort(n.component) {
		return n.positive.exec(hd)
	}
	return n.negative.exec(hd)
}

func (n *dtCohort) equal(other DecisionNode) bool {
	p, ok := other.(*dtCohort)
	return ok && n.component == p.component && n.positive == p.positive && n.negative == p.negative
}

// ———  action nodes  ———

type dtNoTreatment struct{}

func (n *dtNoTreatment) exec(hd CMHostData) CMDTOut { return CMDTOut{} }

func (n *dtNoTreatment) equal(other DecisionNode) bool {
	_, ok := other.(*dtNoTreatment)
	return ok
}

// dtTreatFailure reports a treatment without any parasitological
// effect.
type dtTreatFailure struct{}

func (n *dtTreatFailure) exec(hd CMHostData) CMDTOut { return CMDTOut{Treated: true} }

func (n *dtTreatFailure) equal(other DecisionNode) bool {
	_, ok := other.(*dtTreatFailure)
	return ok
}

type dtReport struct {
	outIDs []int
}

func (n *dtReport) exec(hd CMHostData) CMDTOut {
	for _, id := range n.outIDs {
		hd.Host.Reporter().ReportTreeOutcome(hd.Host.ID(), id)
	}
	return CMDTOut{}
}

func (n *dtReport) equal(other DecisionNode) bool {
	p, ok := other.(*dtReport)
	if !ok || len(n.outIDs) != len(p.outIDs) {
		return false
	}
	for i := range n.outIDs {
		if n.outIDs[i] != p.outIDs[i] {
			return false
		}
	}
	return true
}

type treatPKPDInfo struct {
	schedule int
	dosage   int
	delayH   float64
}

type dtTreatPKPD struct {
	treatments []treatPKPDInfo
}

func (n *dtTreatPKPD) exec(hd CMHostData) CMDTOut {
	for _, t := range n.treatments {
		err := hd.Host.WithinHost().TreatPkPd(t.schedule, t.dosage, hd.AgeYears, t.delayH/24.0)
		if err != nil {
			panic(err)
		}
	}
	return CMDTOut{Treated: true}
}

func (n *dtTreatPKPD) equal(other DecisionNode) bool {
	p, ok := other.(*dtTreatPKPD)
	if !ok || len(n.treatments) != len(p.treatments) {
		return false
	}
	for i := range n.treatments {
		if n.treatments[i] != p.treatments[i] {
			return false
		}
	}
	return true
}

type dtTreatSimple struct {
	liver []SimTime
	blood []SimTime
}

func (n *dtTreatSimple) exec(hd CMHostData) CMDTOut {
	treated := false
	for i := range n.liver {
		treated = hd.Host.WithinHost().TreatSimple(n.liver[i], n.blood[i])
	}
	return CMDTOut{Treated: treated}
}

func (n *dtTreatSimple) equal(other DecisionNode) bool {
	p, ok := other.(*dtTreatSimple)
	if !ok || len(n.liver) != len(p.liver) {
		return false
	}
	for i := range n.liver {
		if n.liver[i] != p.liver[i] || n.blood[i] != p.blood[i] {
			return false
		}
	}
	return true
}

// dtDeploy deploys named interventions, pre-sorted to a stable order at
// load.
type dtDeploy struct {
	components []string
}

func (n *dtDeploy) exec(hd CMHostData) CMDTOut {
	hd.Host.Deploy(n.components)
	// deployment does not count as treatment, so it does not make a
	// later episode a second-line case
	return CMDTOut{}
}

func (n *dtDeploy) equal(other DecisionNode) bool {
	p, ok := other.(*dtDeploy)
	if !ok || len(n.components) != len(p.components) {
		return false
	}
	for i := range n.components {
		if n.components[i] != p.components[i] {
			return false
		}
	}
	return true
}

// ———  configuration & compilation  ———

// DTTreatPKPDConfig names a PK/PD treatment to enqueue.
type DTTreatPKPDConfig struct {
	Schedule string  `toml:"schedule"`
	Dosage   string  `toml:"dosage"`
	DelayH   float64 `toml:"delay_hours"`
}

// DTTreatSimpleConfig gives simple-treatment durations in time steps
// (0 means no effect; -1 clears the stage immediately, once).
type DTTreatSimpleConfig struct {
	DurationLiver int `toml:"duration_liver"`
	DurationBlood int `toml:"duration_blood"`
}

// DTOutcomeConfig is one branch of a random node.
type DTOutcomeConfig struct {
	P    float64            `toml:"p"`
	Tree DecisionTreeConfig `toml:"tree"`
}

// DTAgeBranchConfig is one age bracket of an age node.
type DTAgeBranchConfig struct {
	LowerBound float64            `toml:"lb"`
	Tree       DecisionTreeConfig `toml:"tree"`
}

// DecisionTreeConfig is the declarative form of one decision-tree node.
// Exactly one branching or action field must be set (multiple actions
// may be combined under Multiple).
type DecisionTreeConfig struct {
	Multiple *struct {
		Children []DecisionTreeConfig `toml:"children"`
	} `toml:"multiple"`

	CaseType *struct {
		FirstLine  DecisionTreeConfig `toml:"first_line"`
		SecondLine DecisionTreeConfig `toml:"second_line"`
	} `toml:"case_type"`

	InfectionOrigin *struct {
		Imported   DecisionTreeConfig `toml:"imported"`
		Introduced DecisionTreeConfig `toml:"introduced"`
		Indigenous DecisionTreeConfig `toml:"indigenous"`
	} `toml:"infection_origin"`

	Diagnostic *struct {
		Diagnostic string             `toml:"diagnostic"`
		Positive   DecisionTreeConfig `toml:"positive"`
		Negative   DecisionTreeConfig `toml:"negative"`
	} `toml:"diagnostic"`

	Uncomplicated *struct {
		MemorySteps int                `toml:"memory_steps"`
		Positive    DecisionTreeConfig `toml:"positive"`
		Negative    DecisionTreeConfig `toml:"negative"`
	} `toml:"uncomplicated"`

	Severe *struct {
		Positive DecisionTreeConfig `toml:"positive"`
		Negative DecisionTreeConfig `toml:"negative"`
	} `toml:"severe"`

	Random *struct {
		Outcomes []DTOutcomeConfig `toml:"outcome"`
	} `toml:"random"`

	Age *struct {
		Branches []DTAgeBranchConfig `toml:"age"`
	} `toml:"age"`

	Cohort *struct {
		Component string             `toml:"component"`
		Positive  DecisionTreeConfig `toml:"positive"`
		Negative  DecisionTreeConfig `toml:"negative"`
	} `toml:"cohort"`

	NoTreatment  bool                  `toml:"no_treatment"`
	TreatFailure bool                  `toml:"treat_failure"`
	TreatPKPD    []DTTreatPKPDConfig   `toml:"treat_pkpd"`
	TreatSimple  []DTTreatSimpleConfig `toml:"treat_simple"`
	Deploy       []string              `toml:"deploy"`
	Report       []int                 `toml:"report"`
}

// treeCompiler compiles DecisionTreeConfig values against the shared
// registries.
type treeCompiler struct {
	lib         *nodeLibrary
	diagnostics *DiagnosticRegistry
	treatments  *TreatmentLibrary
	clock       *Clock
	hsMemory    SimTime
}

// compile builds a node, validating on the way. isUC marks
// uncomplicated-case context (caseType nodes are only allowed there).
func (tc *treeCompiler) compile(cfg *DecisionTreeConfig, isUC bool) (DecisionNode, error) {
	switch {
	case cfg.Multiple != nil:
		n := &dtMultiple{}
		for i := range cfg.Multiple.Children {
			child, err := tc.compile(&cfg.Multiple.Children[i], isUC)
			if err != nil {
				return nil, err
			}
			n.children = append(n.children, child)
		}
		return tc.lib.save(n), nil

	case cfg.CaseType != nil:
		if !isUC {
			return nil, errors.New("decision tree: caseType can only be used for uncomplicated cases")
		}
		first, err := tc.compile(&cfg.CaseType.FirstLine, isUC)
		if err != nil {
			return nil, err
		}
		second, err := tc.compile(&cfg.CaseType.SecondLine, isUC)
		if err != nil {
			return nil, err
		}
		return tc.lib.save(&dtCaseType{firstLine: first, secondLine: second}), nil

	case cfg.InfectionOrigin != nil:
		imported, err := tc.compile(&cfg.InfectionOrigin.Imported, isUC)
		if err != nil {
			return nil, err
		}
		introduced, err := tc.compile(&cfg.InfectionOrigin.Introduced, isUC)
		if err != nil {
			return nil, err
		}
		indigenous, err := tc.compile(&cfg.InfectionOrigin.Indigenous, isUC)
		if err != nil {
			return nil, err
		}
		return tc.lib.save(&dtInfectionOrigin{imported: imported, introduced: introduced, indigenous: indigenous}), nil

	case cfg.Diagnostic != nil:
		diag, err := tc.diagnostics.Find(cfg.Diagnostic.Diagnostic)
		if err != nil {
			return nil, err
		}
		pos, err := tc.compile(&cfg.Diagnostic.Positive, isUC)
		if err != nil {
			return nil, err
		}
		neg, err := tc.compile(&cfg.Diagnostic.Negative, isUC)
		if err != nil {
			return nil, err
		}
		return tc.lib.save(&dtDiagnostic{diagnostic: diag, positive: pos, negative: neg}), nil

	case cfg.Uncomplicated != nil:
		memory := tc.clock.FromTS(cfg.Uncomplicated.MemorySteps)
		if memory > tc.hsMemory {
			return nil, errors.New("uncomplicated node memory must be less than or equal to the health-system memory")
		}
		pos, err := tc.compile(&cfg.Uncomplicated.Positive, isUC)
		if err != nil {
			return nil, err
		}
		neg, err := tc.compile(&cfg.Uncomplicated.Negative, isUC)
		if err != nil {
			return nil, err
		}
		return tc.lib.save(&dtUncomplicated{memory: memory, positive: pos, negative: neg}), nil

	case cfg.Severe != nil:
		pos, err := tc.compile(&cfg.Severe.Positive, true)
		if err != nil {
			return nil, err
		}
		neg, err := tc.compile(&cfg.Severe.Negative, true)
		if err != nil {
			return nil, err
		}
		return tc.lib.save(&dtSevere{positive: pos, negative: neg}), nil

	case cfg.Random != nil:
		n := &dtRandom{}
		cum := 0.0
		for i := range cfg.Random.Outcomes {
			cum += cfg.Random.Outcomes[i].P
			branch, err := tc.compile(&cfg.Random.Outcomes[i].Tree, isUC)
			if err != nil {
				return nil, err
			}
			n.cumProbs = append(n.cumProbs, cum)
			n.branches = append(n.branches, branch)
		}
		// Require the sum be no less than one so generated random
		// numbers cannot exceed the last option.
		if cum < 1.0 || cum > 1.001 {
			return nil, errors.Errorf("decision tree (random node): expected probability sum to be 1.0 but found %v", cum)
		}
		return tc.lib.save(n), nil

	case cfg.Age != nil:
		n := &dtAge{}
		branches := cfg.Age.Branches
		if len(branches) == 0 {
			return nil, errors.New("decision tree age switch must have at least one age group")
		}
		if branches[0].LowerBound != 0.0 {
			return nil, errors.New("decision tree age switch must have first lower bound equal 0")
		}
		for i := range branches {
			if i > 0 {
				if branches[i].LowerBound <= branches[i-1].LowerBound {
					return nil, errors.New("decision tree age switch must list age groups in increasing order")
				}
				n.upperBounds = append(n.upperBounds, branches[i].LowerBound)
			}
			node, err := tc.compile(&branches[i].Tree, isUC)
			if err != nil {
				return nil, err
			}
			n.branches = append(n.branches, node)
		}
		n.upperBounds = append(n.upperBounds, math.Inf(1))
		return tc.lib.save(n), nil

	case cfg.Cohort != nil:
		pos, err := tc.compile(&cfg.Cohort.Positive, isUC)
		if err != nil {
			return nil, err
		}
		neg, err := tc.compile(&cfg.Cohort.Negative, isUC)
		if err != nil {
			return nil, err
		}
		return tc.lib.save(&dtCohort{component: cfg.Cohort.Component, positive: pos, negative: neg}), nil

	case cfg.NoTreatment:
		return tc.lib.save(&dtNoTreatment{}), nil

	case len(cfg.Report) > 0:
		return tc.lib.save(&dtReport{outIDs: cfg.Report}), nil

	case cfg.TreatFailure:
		return tc.lib.save(&dtTreatFailure{}), nil

	case len(cfg.TreatPKPD) > 0:
		n := &dtTreatPKPD{}
		for _, t := range cfg.TreatPKPD {
			sched, err := tc.treatments.FindSchedule(t.Schedule)
			if err != nil {
				return nil, err
			}
			dos, err := tc.treatments.FindDosage(t.Dosage)
			if err != nil {
				return nil, err
			}
			n.treatments = append(n.treatments, treatPKPDInfo{schedule: sched, dosage: dos, delayH: t.DelayH})
		}
		return tc.lib.save(n), nil

	case len(cfg.TreatSimple) > 0:
		n := &dtTreatSimple{}
		for _, t := range cfg.TreatSimple {
			durL := tc.clock.FromTS(t.DurationLiver)
			durB := tc.clock.FromTS(t.DurationBlood)
			neg1 := -tc.clock.OneTS()
			if durL < neg1 || durB < neg1 {
				return nil, errors.New("treatSimple: cannot have durationBlood or durationLiver less than -1")
			}
			n.liver = append(n.liver, durL)
			n.blood = append(n.blood, durB)
		}
		return tc.lib.save(n), nil

	case len(cfg.Deploy) > 0:
		components := append([]string(nil), cfg.Deploy...)
		sort.Strings(components)
		return tc.lib.save(&dtDeploy{components: components}), nil
	}
	return nil, errors.New("unterminated decision tree")
}
