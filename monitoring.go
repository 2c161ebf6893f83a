package malariago

import (
	"math"

	"github.com/segmentio/ksuid"
)

// Measure identifies one monitored quantity.
type Measure int

const (
	// MeasureInfectedHosts counts hosts with at least one infection.
	MeasureInfectedHosts Measure = iota
	// MeasureInfectedHostsImported etc. split by aggregate origin.
	MeasureInfectedHostsImported
	MeasureInfectedHostsIntroduced
	MeasureInfectedHostsIndigenous
	// MeasurePatentHosts counts hosts positive under the monitoring
	// diagnostic.
	MeasurePatentHosts
	// MeasureInfections counts individual infections (by genotype).
	MeasureInfections
	// MeasurePatentInfections counts patent infections (by genotype).
	MeasurePatentInfections
	// MeasureNewInfections counts inoculations becoming infections.
	MeasureNewInfections
	// MeasureDroppedInoculations counts inoculations beyond the
	// per-host infection cap.
	MeasureDroppedInoculations
	// MeasureTreatments1/2/3 count first-line, second-line and hospital
	// treatments.
	MeasureTreatments1
	MeasureTreatments2
	MeasureTreatments3
	// MeasureExpectedDirectDeaths is the expectation of direct severe
	// deaths (community plus hospital).
	MeasureExpectedDirectDeaths
	// MeasureExpectedHospitalDeaths is the in-hospital part.
	MeasureExpectedHospitalDeaths
	// MeasureExpectedSequelae is the expectation of sequelae.
	MeasureExpectedSequelae
	// MeasureIndirectDeaths counts indirect (including neonatal)
	// deaths.
	MeasureIndirectDeaths
	// MeasureDirectDeaths counts realised direct deaths.
	MeasureDirectDeaths
	// MeasureSequelae counts realised sequelae.
	MeasureSequelae
	// MeasureEpisodesUC and MeasureEpisodesSevere count closed episodes.
	MeasureEpisodesUC
	MeasureEpisodesSevere
	// MeasureLogDensity sums log parasite densities of patent hosts.
	MeasureLogDensity
	// MeasureHostsWithDrug counts hosts carrying each drug.
	MeasureHostsWithDrug
	// MeasureLogDrugConc sums log drug concentrations.
	MeasureLogDrugConc

	numMeasures
)

// Reporter receives monitoring events from the biological layers.
// Implementations accumulate per host-worker and are merged after the
// step barrier.
type Reporter interface {
	// ReportInt adds an integer count for a measure.
	ReportInt(m Measure, hostID int, n int)
	// ReportIntG adds an integer count keyed by genotype.
	ReportIntG(m Measure, hostID int, g GenotypeID, n int)
	// ReportFloat adds a float value for a measure.
	ReportFloat(m Measure, hostID int, v float64)
	// ReportEpisode records a closed clinical episode.
	ReportEpisode(hostID int, ep Episode)
	// ReportDrugConcentration records a positive drug concentration.
	ReportDrugConcentration(hostID int, drugIndex int, conc float64)
	// ReportTreeOutcome records a decision-tree report leaf.
	ReportTreeOutcome(hostID int, outcomeID int)
}

// EpisodePackage is the row written for one closed episode.
type EpisodePackage struct {
	InstanceID int
	Step       int
	HostID     int
	State      EpisodeState
	Origin     InfectionOrigin
}

// SurveyPackage is one aggregated counter row.
type SurveyPackage struct {
	InstanceID int
	Step       int
	Measure    Measure
	Genotype   int // -1 when not keyed by genotype
	Count      int
	Value      float64
}

// Survey accumulates monitoring counters. It is not safe for
// concurrent use; the simulation keeps one per worker and merges them
// at the step barrier.
type Survey struct {
	// RunID identifies the simulation run in log output.
	RunID ksuid.KSUID

	ints     map[surveyKey]int
	floats   map[surveyKey]float64
	episodes []EpisodePackage
	outcomes map[int]int // decision-tree report leaf counters

	step     int
	instance int
}

type surveyKey struct {
	measure  Measure
	genotype int
	drug     int
}

// NewSurvey creates an empty survey accumulator.
func NewSurvey(runID ksuid.KSUID, instance int) *Survey {
	return &Survey{
		RunID:    runID,
		ints:     make(map[surveyKey]int),
		floats:   make(map[surveyKey]float64),
		outcomes: make(map[int]int),
		instance: instance,
	}
}

// SetStep sets the step stamp applied to flushed rows.
func (s *Survey) SetStep(step int) { s.step = step }

// ReportInt adds an integer count for a measure.
func (s *Survey) ReportInt(m Measure, hostID int, n int) {
	s.ints[surveyKey{measure: m, genotype: -1, drug: -1}] += n
}

// ReportIntG adds an integer count keyed by genotype.
func (s *Survey) ReportIntG(m Measure, hostID int, g GenotypeID, n int) {
	s.ints[surveyKey{measure: m, genotype: int(g), drug: -1}] += n
}

// ReportFloat adds a float value for a measure.
func (s *Survey) ReportFloat(m Measure, hostID int, v float64) {
	s.floats[surveyKey{measure: m, genotype: -1, drug: -1}] += v
}

// ReportEpisode records a closed clinical episode.
func (s *Survey) ReportEpisode(hostID int, ep Episode) {
	s.episodes = append(s.episodes, EpisodePackage{
		InstanceID: s.instance,
		Step:       s.step,
		HostID:     hostID,
		State:      ep.State,
		Origin:     ep.Origin,
	})
	if ep.State&StateComplicated != 0 {
		s.ReportInt(MeasureEpisodesSevere, hostID, 1)
	} else if ep.State&StateSick != 0 {
		s.ReportInt(MeasureEpisodesUC, hostID, 1)
	}
	if ep.State&StateDirectDeath != 0 {
		s.ReportInt(MeasureDirectDeaths, hostID, 1)
	}
	if ep.State&StateSequelae != 0 {
		s.ReportInt(MeasureSequelae, hostID, 1)
	}
}

// ReportDrugConcentration records a positive drug concentration.
func (s *Survey) ReportDrugConcentration(hostID int, drugIndex int, conc float64) {
	if conc <= 0 {
		return
	}
	s.ints[surveyKey{measure: MeasureHostsWithDrug, genotype: -1, drug: drugIndex}]++
	s.floats[surveyKey{measure: MeasureLogDrugConc, genotype: -1, drug: drugIndex}] += math.Log(conc)
}

// ReportTreeOutcome records a decision-tree report leaf.
func (s *Survey) ReportTreeOutcome(hostID int, outcomeID int) {
	s.outcomes[outcomeID]++
}

// Merge folds another survey into this one.
func (s *Survey) Merge(other *Survey) {
	for k, v := range other.ints {
		s.ints[k] += v
	}
	for k, v := range other.floats {
		s.floats[k] += v
	}
	s.episodes = append(s.episodes, other.episodes...)
	for k, v := range other.outcomes {
		s.outcomes[k] += v
	}
}

// Reset clears accumulated data (episodes included) for reuse.
func (s *Survey) Reset() {
	s.ints = make(map[surveyKey]int)
	s.floats = make(map[surveyKey]float64)
	s.episodes = s.episodes[:0]
	s.outcomes = make(map[int]int)
}

// IntCount returns an accumulated integer counter.
func (s *Survey) IntCount(m Measure) int {
	return s.ints[surveyKey{measure: m, genotype: -1, drug: -1}]
}

// IntCountG returns a genotype-keyed counter.
func (s *Survey) IntCountG(m Measure, g GenotypeID) int {
	return s.ints[surveyKey{measure: m, genotype: int(g), drug: -1}]
}

// FloatSum returns an accumulated float value.
func (s *Survey) FloatSum(m Measure) float64 {
	return s.floats[surveyKey{measure: m, genotype: -1, drug: -1}]
}

// Episodes returns the buffered episode rows.
func (s *Survey) Episodes() []EpisodePackage { return s.episodes }

// Rows streams the accumulated counters as survey packages.
func (s *Survey) Rows() []SurveyPackage {
	rows := make([]SurveyPackage, 0, len(s.ints)+len(s.floats))
	for k, v := range s.ints {
		rows = append(rows, SurveyPackage{
			InstanceID: s.instance, Step: s.step,
			Measure: k.measure, Genotype: k.genotype, Count: v,
		})
	}
	for k, v := range s.floats {
		rows = append(rows, SurveyPackage{
			InstanceID: s.instance, Step: s.step,
			Measure: k.measure, Genotype: k.genotype, Value: v,
		})
	}
	return rows
}

// SurveyLogger records survey data to file, whether it writes text
// files or a database.
type SurveyLogger interface {
	// SetBasePath sets the base path of the logger.
	SetBasePath(path string, i int)
	// Init initialises the logger (creates files and writes headers, or
	// creates database tables).
	Init() error
	// WriteSurveys records aggregated counters.
	WriteSurveys(c <-chan SurveyPackage)
	// WriteEpisodes records closed clinical episodes.
	WriteEpisodes(c <-chan EpisodePackage)
	// Close flushes and closes the underlying sink.
	Close() error
}
