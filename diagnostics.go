package malariago

import "github.com/pkg/errors"

// Diagnostic models a parasitological test. Deterministic diagnostics
// compare the density against a threshold; stochastic diagnostics use
// the response curve
//
//	P(positive) = 1 - s * d / (rho + d)
//
// where d is the density at which detection is halfway between the
// false-positive floor and certainty and s is the specificity: at zero
// density the positive rate is 1 - s, at high density it approaches 1.
// The density is scaled by a host-specific bias before the curve is
// applied.
type Diagnostic struct {
	Name string
	// Stochastic selects the response-curve form; otherwise the
	// deterministic threshold is used.
	Stochastic bool
	// Threshold for deterministic tests (parasites/microlitre). Zero
	// means "any parasites present".
	Threshold float64
	// Density (d) and Specificity (s) for stochastic tests.
	Density     float64
	Specificity float64
	// UsesHRP2 marks tests based on HRP2 antigen: HRP2-deficient
	// parasites are invisible to them.
	UsesHRP2 bool
}

// NewDeterministicDiagnostic creates a threshold test.
func NewDeterministicDiagnostic(name string, threshold float64) (*Diagnostic, error) {
	if threshold < 0 {
		return nil, errors.Errorf(InvalidFloatParameterError, "diagnostic threshold", threshold, "must be non-negative")
	}
	return &Diagnostic{Name: name, Threshold: threshold}, nil
}

// NewStochasticDiagnostic creates a response-curve test.
func NewStochasticDiagnostic(name string, density, specificity float64) (*Diagnostic, error) {
	if density <= 0 {
		return nil, errors.Errorf(InvalidFloatParameterError, "diagnostic density", density, "must be positive")
	}
	if specificity < 0 || specificity > 1 {
		return nil, errors.Errorf(InvalidFloatParameterError, "diagnostic specificity", specificity, "must be in [0,1]")
	}
	return &Diagnostic{Name: name, Stochastic: true, Density: density, Specificity: specificity}, nil
}

// IsPositive runs the test at the given density. densBias is the
// host-specific density bias multiplier (1 when unbiased).
func (diag *Diagnostic) IsPositive(rng *Rand, density, densBias float64) bool {
	dens := density * densBias
	if !diag.Stochastic {
		if diag.Threshold == 0.0 {
			// zero threshold means "any parasites present"
			return dens > 0.0
		}
		return dens >= diag.Threshold
	}
	pPositive := 1.0 - diag.Specificity*diag.Density/(dens+diag.Density)
	return rng.Bernoulli(pPositive)
}

// DiagnosticRegistry is the immutable shared diagnostic table.
type DiagnosticRegistry struct {
	diagnostics []*Diagnostic
	index       map[string]int
	// monitoring is the diagnostic used for survey patency.
	monitoring *Diagnostic
}

// NewDiagnosticRegistry indexes diagnostics by name; monitoringName
// selects the survey diagnostic (empty selects a deterministic
// zero-threshold default).
func NewDiagnosticRegistry(diagnostics []*Diagnostic, monitoringName string) (*DiagnosticRegistry, error) {
	r := &DiagnosticRegistry{
		diagnostics: diagnostics,
		index:       make(map[string]int, len(diagnostics)),
	}
	for i, diag := range diagnostics {
		if _, dup := r.index[diag.Name]; dup {
			return nil, errors.Errorf(InvalidStringParameterError, "diagnostic name", diag.Name, "duplicate")
		}
		r.index[diag.Name] = i
	}
	if monitoringName == "" {
		var err error
		r.monitoring, err = NewDeterministicDiagnostic("monitoring", 0.0)
		if err != nil {
			return nil, err
		}
	} else {
		i, ok := r.index[monitoringName]
		if !ok {
			return nil, errors.Errorf(StringKeyNotFoundError, "diagnostic", monitoringName)
		}
		r.monitoring = r.diagnostics[i]
	}
	return r, nil
}

// Find looks a diagnostic up by name.
func (r *DiagnosticRegistry) Find(name string) (*Diagnostic, error) {
	i, ok := r.index[name]
	if !ok {
		return nil, errors.Errorf(StringKeyNotFoundError, "diagnostic", name)
	}
	return r.diagnostics[i], nil
}

// Monitoring returns the survey diagnostic.
func (r *DiagnosticRegistry) Monitoring() *Diagnostic { return r.monitoring }
