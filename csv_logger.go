package malariago

import (
	"bytes"
	"fmt"
	"os"
	"strings"
)

// CSVLogger is a SurveyLogger that writes monitoring data as
// comma-delimited files.
type CSVLogger struct {
	surveyPath  string
	episodePath string
	runID       string
}

// NewCSVLogger creates a new logger that writes data into CSV files.
func NewCSVLogger(basepath string, i int, runID string) *CSVLogger {
	l := new(CSVLogger)
	l.runID = runID
	l.SetBasePath(basepath, i)
	return l
}

// SetBasePath sets the base path of the logger.
func (l *CSVLogger) SetBasePath(basepath string, i int) {
	if info, err := os.Stat(basepath); err == nil && info.IsDir() {
		basepath += "log"
	}
	l.surveyPath = strings.TrimSuffix(basepath, ".") + fmt.Sprintf(".%03d.%s.csv", i, "survey")
	l.episodePath = strings.TrimSuffix(basepath, ".") + fmt.Sprintf(".%03d.%s.csv", i, "episode")
}

// Init creates CSV files and writes header information for each file.
func (l *CSVLogger) Init() error {
	newFile := func(path, header string) error {
		var b bytes.Buffer
		_, err := b.WriteString(header)
		if err != nil {
			return err
		}
		return NewFile(path, b.Bytes())
	}

	err := newFile(l.surveyPath, "run,instance,step,measure,genotype,count,value\n")
	if err != nil {
		return err
	}
	err = newFile(l.episodePath, "run,instance,step,hostID,state,origin\n")
	if err != nil {
		return err
	}
	return nil
}

// WriteSurveys records aggregated counters.
func (l *CSVLogger) WriteSurveys(c <-chan SurveyPackage) {
	// Format
	// <run>  <instanceID>  <step>  <measure>  <genotype>  <count>  <value>
	const template = "%s,%d,%d,%d,%d,%d,%g\n"
	var b bytes.Buffer
	for pack := range c {
		row := fmt.Sprintf(template,
			l.runID,
			pack.InstanceID,
			pack.Step,
			int(pack.Measure),
			pack.Genotype,
			pack.Count,
			pack.Value,
		)
		b.WriteString(row)
	}
	AppendToFile(l.surveyPath, b.Bytes())
}

// WriteEpisodes records closed clinical episodes.
func (l *CSVLogger) WriteEpisodes(c <-chan EpisodePackage) {
	// Format
	// <run>  <instanceID>  <step>  <hostID>  <state>  <origin>
	const template = "%s,%d,%d,%d,%d,%s\n"
	var b bytes.Buffer
	for pack := range c {
		row := fmt.Sprintf(template,
			l.runID,
			pack.InstanceID,
			pack.Step,
			pack.HostID,
			uint32(pack.State),
			pack.Origin.String(),
		)
		b.WriteString(row)
	}
	AppendToFile(l.episodePath, b.Bytes())
}

// Close is a no-op for the CSV logger; files are synced per write.
func (l *CSVLogger) Close() error { return nil }

// NewFile creates a new file on the given path if it does not exist.
// Returns an error if the file exists.
func NewFile(path string, b []byte) error {
	if exists, _ := Exists(path); exists {
		return fmt.Errorf("%s already exists", path)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(b)
	if err != nil {
		return err
	}
	return f.Sync()
}

// AppendToFile creates a new file on the given path if it does not
// exist, or appends to the end of the existing file if the file
// exists.
func AppendToFile(path string, b []byte) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(b)
	if err != nil {
		return err
	}
	return f.Sync()
}

// Exists checks whether a path exists.
func Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return true, err
}
