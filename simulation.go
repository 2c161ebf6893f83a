package malariago

import (
	"io"
	"sort"
	"sync"

	"github.com/exascience/pargo/parallel"
	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"
)

// TransmissionSource supplies the per-host, per-step inoculation
// counts. The mosquito vector model is outside the engine; this
// interface is its stand-in. Implementations must draw randomness from
// the host's own stream so results do not depend on scheduling.
type TransmissionSource interface {
	// Inoculations returns this step's new inoculations for one host.
	Inoculations(host *Host) Inoculations
}

// ConstantEIRSource delivers inoculations at a constant entomological
// inoculation rate, splitting a fixed fraction off as imported.
type ConstantEIRSource struct {
	// EIRPerStep is the expected number of infective bites per host per
	// time step.
	EIRPerStep float64
	// ImportedFraction is the fraction of bites tagged imported.
	ImportedFraction float64
}

// Inoculations draws Poisson counts from the host's stream.
func (s *ConstantEIRSource) Inoculations(host *Host) Inoculations {
	if s.EIRPerStep <= 0 {
		return Inoculations{}
	}
	n := host.Rng().Poisson(s.EIRPerStep)
	imported := 0
	for i := 0; i < n; i++ {
		if host.Rng().Bernoulli(s.ImportedFraction) {
			imported++
		}
	}
	return Inoculations{Imported: imported, Indigenous: n - imported}
}

// Simulation owns the population and drives the per-step update:
// within-host biology (PK/PD inside), then the clinical layer, then
// monitoring, for each host, with a barrier between steps. The host
// loop is data-parallel; each host owns its random stream.
type Simulation struct {
	config *ScenarioConfig
	setup  *HostSetup
	clock  *Clock

	hosts  []*Host
	nextID int

	diagnostics *DiagnosticRegistry
	source      TransmissionSource

	seedSeq *SeedSequence
	runID   ksuid.KSUID
	logger  zerolog.Logger

	survey *Survey
	sink   SurveyLogger
}

func newSimulation(config *ScenarioConfig, setup *HostSetup, diagnostics *DiagnosticRegistry,
	source TransmissionSource, logger zerolog.Logger) (*Simulation, error) {

	sim := &Simulation{
		config:      config,
		setup:       setup,
		clock:       setup.Clock,
		diagnostics: diagnostics,
		source:      source,
		seedSeq:     NewSeedSequence(config.SimParams.Seed),
		runID:       ksuid.New(),
		logger:      logger,
	}
	sim.survey = NewSurvey(sim.runID, 0)

	// population bootstrap: ages spread uniformly over the human age
	// range, using the master sequence so layout is reproducible
	bootstrap := sim.seedSeq.Next()
	for i := 0; i < config.SimParams.HostPopSize; i++ {
		age := FromDays(bootstrap.Intn(setup.Clock.MaxHumanAge().InDays()))
		host := NewHost(sim.nextID, ZeroTime.Sub(age), sim.seedSeq.Next(), setup)
		sim.nextID++
		sim.hosts = append(sim.hosts, host)
	}

	// seed the initial infections, partitioned between strains by a
	// multinomial draw over the initial frequencies and scattered over
	// the population
	counts := setup.Genotypes.SeedCounts(config.SimParams.InitInfections)
	for g, n := range counts {
		for i := 0; i < n; i++ {
			host := sim.hosts[bootstrap.Intn(len(sim.hosts))]
			host.WithinHost().SeedInfection(host.Rng(), GenotypeID(g), OriginIndigenous)
		}
	}
	return sim, nil
}

// SetLogger attaches a survey logger; without one, results stay in the
// in-memory survey.
func (sim *Simulation) SetLogger(sink SurveyLogger) { sim.sink = sink }

// RunID identifies this realisation.
func (sim *Simulation) RunID() ksuid.KSUID { return sim.runID }

// Hosts exposes the population (monitoring, tests).
func (sim *Simulation) Hosts() []*Host { return sim.hosts }

// Survey exposes the accumulated monitoring counters.
func (sim *Simulation) Survey() *Survey { return sim.survey }

// Clock exposes the simulation clock.
func (sim *Simulation) Clock() *Clock { return sim.clock }

// Run advances the simulation by the configured number of steps.
func (sim *Simulation) Run(instance int) error {
	numSteps := sim.config.NumSteps()
	logFreq := sim.config.LogFreq()
	for step := 1; step <= numSteps; step++ {
		sim.Step()
		if sim.sink != nil && step%logFreq == 0 {
			sim.flush(step)
		}
	}
	if sim.sink != nil && numSteps%logFreq != 0 {
		sim.flush(numSteps)
	}
	return nil
}

// Step advances the simulation one time step. The update is a barrier:
// no host sees another host's new state until the step completes.
func (sim *Simulation) Step() {
	sim.clock.StartUpdate()
	sim.survey.SetStep(sim.clock.InSteps(sim.clock.Ts1()))

	var mu sync.Mutex
	var surveys []*Survey
	var dead []int

	monitoring := sim.diagnostics.Monitoring()
	parallel.Range(0, len(sim.hosts), 0, func(low, high int) {
		local := NewSurvey(sim.runID, 0)
		local.SetStep(sim.clock.InSteps(sim.clock.Ts1()))
		var localDead []int
		for i := low; i < high; i++ {
			host := sim.hosts[i]
			inoc := sim.source.Inoculations(host)
			if !host.Update(inoc, local) {
				localDead = append(localDead, i)
				continue
			}
			host.Summarize(local, monitoring)
		}
		mu.Lock()
		surveys = append(surveys, local)
		dead = append(dead, localDead...)
		mu.Unlock()
	})

	for _, s := range surveys {
		sim.survey.Merge(s)
	}
	// replace dead hosts by newborns so the population stays constant;
	// demography beyond this is external to the engine. Indices are
	// sorted so newborn seeding does not depend on scheduling.
	sort.Ints(dead)
	for _, i := range dead {
		sim.hosts[i] = NewHost(sim.nextID, sim.clock.Ts1(), sim.seedSeq.Next(), sim.setup)
		sim.nextID++
	}

	sim.clock.EndUpdate()
}

// flush streams the accumulated survey to the attached logger and
// resets the accumulator.
func (sim *Simulation) flush(step int) {
	rows := sim.survey.Rows()
	episodes := sim.survey.Episodes()

	surveyC := make(chan SurveyPackage)
	episodeC := make(chan EpisodePackage)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		sim.sink.WriteSurveys(surveyC)
	}()
	go func() {
		defer wg.Done()
		sim.sink.WriteEpisodes(episodeC)
	}()
	for _, row := range rows {
		surveyC <- row
	}
	close(surveyC)
	for _, ep := range episodes {
		episodeC <- ep
	}
	close(episodeC)
	wg.Wait()

	sim.survey.Reset()
}

// Checkpoint writes the full simulation state (clock, population,
// every host's RNG) to a binary stream.
func (sim *Simulation) Checkpoint(w io.Writer) error {
	e := NewEncoder(w)
	e.Time(sim.clock.NowOrTs1())
	e.Int(sim.nextID)
	sim.seedSeq.master.encode(e)
	e.Len(len(sim.hosts))
	for _, host := range sim.hosts {
		host.encode(e)
	}
	return e.Err()
}

// Resume restores a checkpointed population, replacing the current
// one.
func (sim *Simulation) Resume(r io.Reader) error {
	d := NewDecoder(r)
	t := d.Time()
	sim.clock.time0 = t
	sim.clock.time1 = t
	sim.nextID = d.Int()
	sim.seedSeq.master = decodeRand(d)
	n := d.Len()
	if d.Err() != nil {
		return d.Err()
	}
	hosts := make([]*Host, 0, n)
	for i := 0; i < n; i++ {
		hosts = append(hosts, DecodeHost(d, sim.setup))
		if d.Err() != nil {
			return d.Err()
		}
	}
	sim.hosts = hosts
	return d.Err()
}
