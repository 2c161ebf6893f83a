package malariago

// LSTMModel holds one host's pharmacokinetic state: the drugs currently
// in the body and the queue of pending medications.
//
// Calling order each day:
//   - Prescribe (optional)
//   - Medicate
//   - GetDrugFactor for each infection
//   - DecayDrugs
//
// GetDrugFactor must run before DecayDrugs because it evaluates
// concentrations from the start of the day.
type LSTMModel struct {
	reg *DrugRegistry
	lib *TreatmentLibrary

	// drugs with non-negligible concentrations
	drugs []*Drug
	// pending medications
	medicateQueue []MedicateData
}

// NewLSTMModel creates an empty per-host drug model bound to the shared
// registries.
func NewLSTMModel(reg *DrugRegistry, lib *TreatmentLibrary) *LSTMModel {
	return &LSTMModel{reg: reg, lib: lib}
}

// Prescribe expands a treatment schedule into the medication queue.
// Dose sizes are scaled by the dosage table keyed on age (years) or
// body mass (kg); delayD shifts every entry by whole or fractional
// days.
func (m *LSTMModel) Prescribe(schedule, dosage int, ageYears, bodyMass, delayD float64) error {
	table := m.lib.DosageAt(dosage)
	key := ageYears
	if table.ByMass {
		key = bodyMass
	}
	doseMult, err := table.Multiplier(key)
	if err != nil {
		return err
	}
	for _, med := range m.lib.ScheduleAt(schedule).Medications {
		med = med.multiplied(doseMult)
		med.Time += delayD
		m.medicateQueue = append(m.medicateQueue, med)
	}
	return nil
}

// Medicate takes every queued medication due within the coming day and
// applies it to the drug list; remaining queue entries move one day
// closer. Poor adherence is not modelled here; prescribe a
// poor-adherence schedule instead.
func (m *LSTMModel) Medicate(rng *Rand) {
	if len(m.medicateQueue) == 0 {
		return
	}
	remaining := m.medicateQueue[:0]
	for _, med := range m.medicateQueue {
		if med.Time < 1.0 {
			m.medicateDrug(med)
		} else {
			med.Time -= 1.0
			remaining = append(remaining, med)
		}
	}
	m.medicateQueue = remaining
}

// medicateDrug applies one medication, creating the drug record if the
// drug is not yet present in the body.
func (m *LSTMModel) medicateDrug(med MedicateData) {
	var drug *Drug
	for _, d := range m.drugs {
		if d.typeIndex == med.Drug {
			drug = d
			break
		}
	}
	if drug == nil {
		drug = newDrug(m.reg, med.Drug)
		m.drugs = append(m.drugs, drug)
	}
	if med.Duration > 0 {
		drug.addIV(med.Time, med.Duration, med.Qty)
	} else {
		drug.addDose(med.Time, med.Qty)
	}
}

// GetDrugFactor returns the product over all active drugs of the PD
// survival multiplier for the infection's genotype. Each time step the
// infection's parasite density is multiplied by this value; the
// within-host model clears infections once their density is negligible.
func (m *LSTMModel) GetDrugFactor(rng *Rand, inf Infection, bodyMass float64) float64 {
	factor := 1.0 // no effect
	for _, d := range m.drugs {
		factor *= d.calculateFactor(m.reg, inf.Genotype(), bodyMass)
	}
	return factor
}

// DecayDrugs advances every drug's compartments one day and drops drugs
// whose concentrations have become negligible.
func (m *LSTMModel) DecayDrugs(bodyMass float64) {
	kept := m.drugs[:0]
	for _, d := range m.drugs {
		if !d.decayOneDay(bodyMass) {
			kept = append(kept, d)
		}
	}
	m.drugs = kept
}

// DrugConcentration returns the concentration of a drug type (mg/l),
// looking through conversion records for metabolite indices. Used by
// monitoring and tests.
func (m *LSTMModel) DrugConcentration(drugIndex int, bodyMass float64) float64 {
	for _, d := range m.drugs {
		if d.typeIndex == drugIndex {
			return d.Concentration(bodyMass)
		}
		if d.metTyp != nil && d.typ.Metabolite == drugIndex {
			return d.MetaboliteConcentration(bodyMass)
		}
	}
	return 0.0
}

// HasDrugs reports whether any drug is present in the body.
func (m *LSTMModel) HasDrugs() bool { return len(m.drugs) > 0 }

// QueueLen returns the number of pending medications.
func (m *LSTMModel) QueueLen() int { return len(m.medicateQueue) }

// PrescribedMg sums the quantities in the medication queue.
func (m *LSTMModel) PrescribedMg() float64 {
	var total float64
	for _, med := range m.medicateQueue {
		total += med.Qty
	}
	return total
}

// Summarize reports per-drug concentration measures for this host.
func (m *LSTMModel) Summarize(rep Reporter, hostID int, bodyMass float64) {
	for _, d := range m.drugs {
		rep.ReportDrugConcentration(hostID, d.typeIndex, d.Concentration(bodyMass))
		if d.metTyp != nil {
			rep.ReportDrugConcentration(hostID, d.typ.Metabolite, d.MetaboliteConcentration(bodyMass))
		}
	}
}

func (m *LSTMModel) encode(e *Encoder) {
	e.Len(len(m.drugs))
	for _, d := range m.drugs {
		d.encode(e)
	}
	e.Len(len(m.medicateQueue))
	for i := range m.medicateQueue {
		m.medicateQueue[i].encode(e)
	}
}

func decodeLSTMModel(reg *DrugRegistry, lib *TreatmentLibrary, d *Decoder) *LSTMModel {
	m := NewLSTMModel(reg, lib)
	n := d.Len()
	for i := 0; i < n; i++ {
		drug := decodeDrug(reg, d)
		if d.Err() != nil {
			return m
		}
		m.drugs = append(m.drugs, drug)
	}
	n = d.Len()
	for i := 0; i < n; i++ {
		m.medicateQueue = append(m.medicateQueue, decodeMedicateData(d))
	}
	return m
}
