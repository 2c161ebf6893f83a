package malariago

import "github.com/pkg/errors"

// TreatmentID is an opaque handle into the treatment registry.
type TreatmentID int

// Treatment describes the simple (non-PK/PD) effects of a treatment:
// how long new liver-stage infections are blocked and how long
// blood-stage infections are cleared at each update. A duration of -1
// steps clears that stage immediately, once; 0 means no effect on that
// stage.
type Treatment struct {
	Name          string
	LiverDuration SimTime
	BloodDuration SimTime
}

// TreatmentRegistry is the immutable shared treatment table, built at
// scenario load.
type TreatmentRegistry struct {
	treatments []Treatment
	index      map[string]TreatmentID
}

// NewTreatmentRegistry validates and indexes treatments.
func NewTreatmentRegistry(treatments []Treatment, oneTS SimTime) (*TreatmentRegistry, error) {
	r := &TreatmentRegistry{
		treatments: make([]Treatment, len(treatments)),
		index:      make(map[string]TreatmentID, len(treatments)),
	}
	copy(r.treatments, treatments)
	for i, t := range r.treatments {
		if t.LiverDuration < -oneTS || t.BloodDuration < -oneTS {
			return nil, errors.Errorf("treatment %s: cannot have durationBlood or durationLiver less than -1", t.Name)
		}
		if _, dup := r.index[t.Name]; dup {
			return nil, errors.Errorf(InvalidStringParameterError, "treatment name", t.Name, "duplicate")
		}
		r.index[t.Name] = TreatmentID(i)
	}
	return r, nil
}

// Add registers a treatment and returns its ID. Only used during
// scenario load.
func (r *TreatmentRegistry) Add(t Treatment) TreatmentID {
	id := TreatmentID(len(r.treatments))
	r.treatments = append(r.treatments, t)
	if t.Name != "" {
		r.index[t.Name] = id
	}
	return id
}

// Get returns a treatment by ID.
func (r *TreatmentRegistry) Get(id TreatmentID) *Treatment {
	if int(id) < 0 || int(id) >= len(r.treatments) {
		panic(invariantf("treatment id %d out of range", id))
	}
	return &r.treatments[id]
}

// Find looks a treatment up by name.
func (r *TreatmentRegistry) Find(name string) (TreatmentID, error) {
	id, ok := r.index[name]
	if !ok {
		return 0, errors.Errorf(StringKeyNotFoundError, "treatment", name)
	}
	return id, nil
}
