package malariago

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"

	// sqlite3 driver
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteLogger is a SurveyLogger that writes monitoring data to SQLite
// databases. Survey counters and episode rows are written to
// independent databases so realisations can be analysed separately.
type SQLiteLogger struct {
	surveyPath  string
	episodePath string
	instanceID  int
	runID       string
}

// NewSQLiteLogger creates a new logger that writes to SQLite
// databases.
func NewSQLiteLogger(basepath string, i int, runID string) *SQLiteLogger {
	l := new(SQLiteLogger)
	l.runID = runID
	l.SetBasePath(basepath, i)
	return l
}

// SetBasePath sets the base path of the logger.
func (l *SQLiteLogger) SetBasePath(basepath string, i int) {
	if info, err := os.Stat(basepath); err == nil && info.IsDir() {
		basepath += fmt.Sprintf("log.%03d", i)
	}
	l.surveyPath = strings.TrimSuffix(basepath, ".") + fmt.Sprintf(".%s.db", "survey")
	l.episodePath = strings.TrimSuffix(basepath, ".") + fmt.Sprintf(".%s.db", "episode")
	l.instanceID = i
}

// Init creates the tables. Each realisation of the simulation gets its
// own pair of tables.
func (l *SQLiteLogger) Init() error {
	newTable := func(path, tableName, cols string) error {
		db, err := OpenSQLiteDB(path)
		if err != nil {
			return err
		}
		defer db.Close()
		_sqlStmt := `
	create table %s %s;
	delete from %s;
	`
		fullTableName := fmt.Sprintf("%s%03d", tableName, l.instanceID)
		sqlStmt := fmt.Sprintf(_sqlStmt, fullTableName, cols, fullTableName)
		_, err = db.Exec(sqlStmt)
		if err != nil {
			return fmt.Errorf("%q: %s", err, sqlStmt)
		}
		return nil
	}

	err := newTable(l.surveyPath, "Survey", "(id integer not null primary key, run text, step int, measure int, genotype int, count int, value real)")
	if err != nil {
		return err
	}
	err = newTable(l.episodePath, "Episode", "(id integer not null primary key, run text, step int, hostID int, state int, origin text)")
	if err != nil {
		return err
	}
	return nil
}

// WriteSurveys records aggregated counters.
func (l *SQLiteLogger) WriteSurveys(c <-chan SurveyPackage) {
	tableName := fmt.Sprintf("Survey%03d", l.instanceID)
	_stmt := "insert into " + tableName + "(run, step, measure, genotype, count, value) values(?, ?, ?, ?, ?, ?)"
	db, err := OpenSQLiteDB(l.surveyPath)
	if err != nil {
		log.Fatal(err)
		return
	}
	defer db.Close()
	tx, err := db.Begin()
	if err != nil {
		log.Fatal(err)
		return
	}
	stmt, err := tx.Prepare(_stmt)
	if err != nil {
		log.Fatal(err)
		return
	}
	defer stmt.Close()
	for pack := range c {
		_, err = stmt.Exec(
			l.runID,
			pack.Step,
			int(pack.Measure),
			pack.Genotype,
			pack.Count,
			pack.Value,
		)
		if err != nil {
			log.Fatal(err)
			return
		}
	}
	err = tx.Commit()
	if err != nil {
		log.Fatal(err)
	}
}

// WriteEpisodes records closed clinical episodes.
func (l *SQLiteLogger) WriteEpisodes(c <-chan EpisodePackage) {
	tableName := fmt.Sprintf("Episode%03d", l.instanceID)
	_stmt := "insert into " + tableName + "(run, step, hostID, state, origin) values(?, ?, ?, ?, ?)"
	db, err := OpenSQLiteDB(l.episodePath)
	if err != nil {
		log.Fatal(err)
		return
	}
	defer db.Close()
	tx, err := db.Begin()
	if err != nil {
		log.Fatal(err)
		return
	}
	stmt, err := tx.Prepare(_stmt)
	if err != nil {
		log.Fatal(err)
		return
	}
	defer stmt.Close()
	for pack := range c {
		_, err = stmt.Exec(
			l.runID,
			pack.Step,
			pack.HostID,
			uint32(pack.State),
			pack.Origin.String(),
		)
		if err != nil {
			log.Fatal(err)
			return
		}
	}
	err = tx.Commit()
	if err != nil {
		log.Fatal(err)
	}
}

// Close is a no-op; connections are opened per write.
func (l *SQLiteLogger) Close() error { return nil }

// OpenSQLiteDB opens an SQLite database at the given path.
func OpenSQLiteDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	return db, nil
}
