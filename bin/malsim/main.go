package main

import (
	"flag"
	"log"
	"math/rand"
	"os"
	"runtime"
	"time"

	malaria "github.com/kentwait/malariago"
	"github.com/rs/zerolog"
)

func main() {
	numCPUPtr := flag.Int("threads", runtime.NumCPU(), "number of CPU threads")
	loggerType := flag.String("logger", "csv", "survey logger type (csv|sqlite)")
	seedNum := flag.Uint64("seed", uint64(time.Now().UTC().UnixNano()), "random seed. Uses Unix time in nanoseconds as default")
	flag.Parse()

	// Set number of CPUs to be used
	runtime.GOMAXPROCS(*numCPUPtr)

	zlog := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	// Load config file
	configPath := flag.Arg(0)
	conf, err := malaria.LoadScenarioConfig(configPath)
	if err != nil {
		log.Fatal(err)
	}
	// Validate configuration
	err = conf.Validate()
	if err != nil {
		log.Fatal(err)
	}
	if conf.SimParams.Seed == 0 {
		conf.SimParams.Seed = *seedNum
	}
	// Seed the process-global stream used by the population bootstrap
	rand.Seed(int64(conf.SimParams.Seed))

	firstStart := time.Now()
	for i := 1; i <= conf.NumInstances(); i++ {
		log.Printf("starting instance %03d\n\n", i)
		start := time.Now()
		sim, err := conf.NewSimulation(zlog)
		if err != nil {
			log.Fatalf("error creating a new simulation from the configuration file: %s", err)
		}
		// Create a new logger for every realization
		var sink malaria.SurveyLogger
		switch *loggerType {
		case "csv":
			sink = malaria.NewCSVLogger(conf.LogPath(), i, sim.RunID().String())
		case "sqlite":
			sink = malaria.NewSQLiteLogger(conf.LogPath(), i, sim.RunID().String())
		default:
			log.Fatalf("%s is not a valid logger type (csv|sqlite)", *loggerType)
		}
		if err := sink.Init(); err != nil {
			log.Fatal(err)
		}
		sim.SetLogger(sink)
		if err := sim.Run(i); err != nil {
			log.Fatal(err)
		}
		if err := sink.Close(); err != nil {
			log.Fatal(err)
		}
		log.Printf("Finished instance %03d in %s.\n\n", i, time.Since(start))
	}
	log.Printf("Completed all runs in %s.", time.Since(firstStart))
}
