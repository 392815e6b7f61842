package server

import (
	"database/sql"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BurntSushi/migration"
	"github.com/IMQS/log"

	"github.com/IMQS/censearch/catalog"
	"github.com/IMQS/censearch/search"
)

// Engine is the censearch service: the index database, the current alias table, and the logs.
type Engine struct {
	// The config is never modified in place. A change creates a new instance, and swaps it in under the write lock.
	Config     *Config
	ConfigLock sync.RWMutex

	IndexDB      *sql.DB
	ErrorLog     *log.Logger
	AccessLog    *log.Logger
	ConfigFile   string
	ConfigString string // ConfigString takes precedence over ConfigFile. ConfigString was created for use by unit tests

	// Backend runs the planned searches. Initialize points it at IndexDB, unless it has already been set.
	Backend search.Backend

	// The planner and the keyword index are both built from category_aliases, and are replaced together
	planner     *search.Planner
	keywords    *catalog.KeywordIndex
	plannerLock sync.RWMutex

	limiter *clientLimiter

	// Tracks the number of find operations currently in progress.
	// This is used in conjunction with maxFindOpsInProgress to track down DB connection leaks.
	numFindOpsInProgress uint32
	maxFindOpsInProgress uint32
}

func pickLogFile(filename, defaultFilename string) string {
	if filename != "" {
		return filename
	}
	return defaultFilename
}

func (e *Engine) initLogging() {
	config := e.GetConfig()

	isWindows := runtime.GOOS == "windows"
	e.ErrorLog = log.New(pickLogFile(config.Log.ErrorFile, log.Stderr), !isWindows)
	e.AccessLog = log.New(pickLogFile(config.Log.AccessFile, log.Stdout), !isWindows)
	if config.VerboseLogging {
		e.ErrorLog.Level = log.Trace
		e.AccessLog.Level = log.Trace
	}
}

// Initialize sets up the service engine.
// When isTest is true, the index database is dropped and recreated, so that every test run starts empty.
func (e *Engine) Initialize(isTest bool) error {
	if e.ConfigString != "" {
		cfg := &Config{}
		if err := cfg.LoadString(e.ConfigString); err != nil {
			return err
		}
		e.Config = cfg
	}
	if e.Config == nil {
		return errors.New("No configuration loaded")
	}
	e.initLogging()

	config := e.GetConfig()
	// It's important that we run postJSONLoad after setting up our logging. That way, the user
	// gets to see config errors in the logs.
	if err := config.postJSONLoad(); err != nil {
		e.ErrorLog.Errorf("Invalid configuration: %v", err)
		return err
	}

	if err := e.openIndexDB(isTest || config.PurgeDatabaseOnStartup); err != nil {
		return fmt.Errorf("Could not open index database: %v", err.Error())
	}
	if e.Backend == nil {
		e.Backend = &PostgresBackend{DB: e.IndexDB, ErrorLog: e.ErrorLog}
	}
	e.limiter = newClientLimiter(config.RateLimit)
	return e.ReloadAliases()
}

func (e *Engine) Close() {
	if e.IndexDB != nil {
		e.IndexDB.Close()
		e.IndexDB = nil
	}
	if e.ErrorLog != nil {
		e.ErrorLog.Close()
		e.ErrorLog = nil
	}
	if e.AccessLog != nil {
		e.AccessLog.Close()
		e.AccessLog = nil
	}
}

// openIndexDB opens a connection to the index db, after performing the migrations,
// and customizing the DB connection limits
func (e *Engine) openIndexDB(purge bool) error {
	config := e.GetConfig()
	driver, name, dsn, err := config.Database.resolve()
	if err != nil {
		return err
	}
	migrations := createMigrations()

	if purge {
		e.ErrorLog.Infof("Dropping index database %v", name)
		if err := dropDB(driver, name, dsn); err != nil {
			return fmt.Errorf("Could not drop index database: %v", err)
		}
	}

	e.IndexDB, err = migration.Open(driver, dsn, migrations)
	if err != nil {
		if !isDBNotExistError(err, name) {
			return fmt.Errorf("While connecting to the index DB: %v", err)
		}
		e.ErrorLog.Infof("Creating index database %v", name)
		if eCreate := createDB(driver, name, dsn); eCreate != nil {
			return fmt.Errorf("Could not create index database: %v", eCreate)
		}
		if e.IndexDB, err = migration.Open(driver, dsn, migrations); err != nil {
			return err
		}
	}

	e.setDBConnectionLimits(&config.Database, e.IndexDB)
	return nil
}

func (e *Engine) setDBConnectionLimits(cfg *ConfigDatabase, db *sql.DB) {
	if cfg.MaxIdleConns != 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns != 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
}

// ReloadAliases reads category_aliases, and rebuilds the planner and keyword index from it
func (e *Engine) ReloadAliases() error {
	aliases, err := e.readAliases()
	if err != nil {
		return fmt.Errorf("When reading aliases: %v", err)
	}
	return e.setAliases(aliases)
}

func (e *Engine) readAliases() ([]*catalog.Alias, error) {
	rows, err := e.IndexDB.Query("SELECT expected_query, alias_query FROM censearch.category_aliases ORDER BY expected_query")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	aliases := []*catalog.Alias{}
	for rows.Next() {
		var expected, replacement string
		if err := rows.Scan(&expected, &replacement); err != nil {
			return nil, err
		}
		a, err := catalog.NewAlias(expected, replacement)
		if err != nil {
			e.ErrorLog.Warnf("Ignoring alias %v -> %v: %v", expected, replacement, err)
			continue
		}
		aliases = append(aliases, a)
	}
	return aliases, rows.Err()
}

func (e *Engine) setAliases(aliases []*catalog.Alias) error {
	planner, err := search.NewPlanner(e.GetConfig().plannerOptions(), aliases)
	if err != nil {
		return err
	}
	keywords := catalog.NewKeywordIndex(aliases)

	e.plannerLock.Lock()
	e.planner = planner
	e.keywords = keywords
	e.plannerLock.Unlock()

	e.ErrorLog.Infof("Loaded %v aliases (%v keywords)", planner.NumAliases(), keywords.Len())
	return nil
}

func (e *Engine) getPlanner() *search.Planner {
	e.plannerLock.RLock()
	defer e.plannerLock.RUnlock()
	return e.planner
}

func (e *Engine) getKeywords() *catalog.KeywordIndex {
	e.plannerLock.RLock()
	defer e.plannerLock.RUnlock()
	return e.keywords
}

func (e *Engine) Vacuum() error {
	// Log profusely, because this is likely to be a performance hotspot for the server
	e.ErrorLog.Info("Starting VACUUM ANALYZE")
	start := time.Now()
	_, err := e.IndexDB.Exec("VACUUM ANALYZE censearch.acs_tables, censearch.acs_variables")
	if err != nil {
		e.ErrorLog.Errorf("Error running VACUUM ANALYZE: %v", err)
	} else {
		e.ErrorLog.Infof("VACUUM ANALYZE completed in %v seconds", time.Now().Sub(start).Seconds())
	}
	return err
}

// StartAutoVacuum registers a daily VACUUM ANALYZE at Config.VacuumAt.
// Ingestion deletes and rewrites every variable of a table, which leaves a lot of dead tuples behind.
func (e *Engine) StartAutoVacuum() {
	config := e.GetConfig()
	e.ErrorLog.Infof("Scheduling VACUUM ANALYZE daily at %v", config.VacuumAt)
	config.scheduleVacuum(e.Vacuum)
}

func (e *Engine) LoadConfigFromFile() error {
	cfg := &Config{}
	err := cfg.LoadFile(e.ConfigFile)
	if err != nil {
		return err
	}
	// No need for a lock here. This function is only called once at start up.
	e.Config = cfg
	return nil
}

// GetConfig returns the current configuration. Treat it as read-only.
func (e *Engine) GetConfig() *Config {
	e.ConfigLock.RLock()
	c := e.Config
	e.ConfigLock.RUnlock()
	return c
}

// Atomically set *value to max(*value, newPossibleMax)
// Returns true if we raised the max value
func atomicMaxUint32(value *uint32, newPossibleMax uint32) bool {
	for {
		old := atomic.LoadUint32(value)
		if old >= newPossibleMax {
			return false
		}
		if atomic.CompareAndSwapUint32(value, old, newPossibleMax) {
			return true
		}
	}
}
