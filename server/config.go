package server

import (
	"encoding/json"
	"fmt"
	"time"

	serviceconfig "github.com/IMQS/serviceconfigsgo"
	"github.com/jasonlvhit/gocron"

	"github.com/IMQS/censearch/catalog"
	"github.com/IMQS/censearch/search"
)

/*
Sample config

If you don't specify logfiles, then stderr is used for the Error log,
and stdout is used for the Access log.

The database is either a serviceconfig alias ("Alias"), or explicit connection details.

{
	"VerboseLogging": false,
	"DisableAutoVacuum": false,
	"VacuumAt": "02:00",
	"HTTP": {
		"Bind": "",
		"Port": "2008"
	},
	"Log": {
		"ErrorFile": "/var/log/censearch/error.log",
		"AccessFile": "/var/log/censearch/access.log"
	},
	"Database": {
		"Driver":        "postgres",
		"Host":          "127.0.0.1",
		"Database":      "censearch",
		"User":          "censearch",
		"Password":      "password",
		"MaxIdleConns":  4,
		"MaxOpenConns":  16
	},
	"Search": {
		"Weights": [0.1, 0.2, 0.4, 1.0],   -- D, C, B, A (ts_rank order)
		"TimeoutMS": 5000,
		"MaxRows": 200,
		"CanonicalTableIDLength": 6
	},
	"RateLimit": {
		"RequestsPerSecond": 20,
		"Burst": 40
	},
	"Ingest": {
		"Concurrency": 4
	}
}
*/

const (
	serviceConfigFileName = "censearch.json"
	serviceConfigVersion  = 1
	serviceName           = "ImqsCensearch"

	defaultHttpPort       = "2008"
	defaultTimeoutMS      = 5000
	defaultVacuumAt       = "02:00"
	defaultConcurrency    = 4
	maintenanceDatabase   = "postgres"
	defaultDatabaseDriver = "postgres"
)

type ConfigHttp struct {
	Bind string
	Port string
}

type ConfigLog struct {
	ErrorFile  string
	AccessFile string
}

type ConfigDatabase struct {
	Alias    string `json:",omitempty"` // serviceconfig DB alias. Takes precedence over the explicit fields below.
	Driver   string `json:",omitempty"`
	Host     string `json:",omitempty"`
	Database string `json:",omitempty"`
	User     string `json:",omitempty"`
	Password string `json:",omitempty"`
	Port     uint16 `json:",omitempty"`

	MaxIdleConns int `json:",omitempty"`
	MaxOpenConns int `json:",omitempty"`
}

func (c *ConfigDatabase) DSN() string {
	conStr := fmt.Sprintf("host=%v user=%v password=%v dbname=%v sslmode=disable", c.Host, c.User, c.Password, c.Database)
	if c.Port != 0 {
		conStr += fmt.Sprintf(" port=%v", c.Port)
	}
	return conStr
}

// resolve returns the driver, database name, and DSN of the index database
func (c *ConfigDatabase) resolve() (driver, name, dsn string, err error) {
	if c.Alias != "" {
		conf, err := serviceconfig.GetDBAlias(c.Alias)
		if err != nil {
			return "", "", "", fmt.Errorf("Could not find database alias %v: %v", c.Alias, err)
		}
		return conf.Driver, conf.Name, conf.DSN(), nil
	}
	return c.Driver, c.Database, c.DSN(), nil
}

type ConfigSearch struct {
	Weights                []float64 `json:",omitempty"` // D, C, B, A
	TimeoutMS              int       `json:",omitempty"`
	MaxRows                int       `json:",omitempty"`
	HighlightStart         string    `json:",omitempty"`
	HighlightStop          string    `json:",omitempty"`
	MaxWords               int       `json:",omitempty"`
	MinWords               int       `json:",omitempty"`
	CanonicalTableIDLength int       `json:",omitempty"`
	RootSegments           int       `json:",omitempty"` // Label segments shared by every root variable ("Estimate")
}

type ConfigRateLimit struct {
	RequestsPerSecond float64 // Zero disables rate limiting
	Burst             int
}

type ConfigIngest struct {
	Concurrency int // Tables resolved in parallel
}

type Config struct {
	VerboseLogging         bool
	DisableAutoVacuum      bool
	VacuumAt               string // Time of day for VACUUM ANALYZE, "HH:MM"
	PurgeDatabaseOnStartup bool
	HTTP                   ConfigHttp
	Log                    ConfigLog
	Database               ConfigDatabase
	Search                 ConfigSearch
	RateLimit              ConfigRateLimit
	Ingest                 ConfigIngest
}

func (c *Config) LoadFile(filename string) error {
	// We don't run postJSONLoad here, because if there is a problem with the config, then we'd
	// like to at least be able to emit log messages, if that's at all possible.
	return serviceconfig.GetConfig(filename, serviceName, serviceConfigVersion, serviceConfigFileName, c)
}

// LoadString was created for unit tests
func (c *Config) LoadString(s string) error {
	if err := json.Unmarshal([]byte(s), c); err != nil {
		return fmt.Errorf("When parsing config: %v", err)
	}
	return nil
}

// Fill in defaults, and reject configurations that cannot work
func (c *Config) postJSONLoad() error {
	if c.HTTP.Port == "" {
		c.HTTP.Port = defaultHttpPort
	}
	if c.Database.Alias == "" && c.Database.Driver == "" {
		c.Database.Driver = defaultDatabaseDriver
	}
	if c.VacuumAt == "" {
		c.VacuumAt = defaultVacuumAt
	}
	if _, err := time.Parse("15:04", c.VacuumAt); err != nil {
		return fmt.Errorf("VacuumAt must be HH:MM, not '%v'", c.VacuumAt)
	}

	s := &c.Search
	if len(s.Weights) == 0 {
		s.Weights = append([]float64{}, search.DefaultWeights[:]...)
	}
	if len(s.Weights) != 4 {
		return fmt.Errorf("Search.Weights must have 4 elements (D, C, B, A), but has %v", len(s.Weights))
	}
	if err := c.weights().Validate(); err != nil {
		return err
	}
	if s.TimeoutMS <= 0 {
		s.TimeoutMS = defaultTimeoutMS
	}
	if s.MaxRows <= 0 {
		s.MaxRows = search.DefaultMaxRows
	}
	if s.CanonicalTableIDLength <= 0 {
		s.CanonicalTableIDLength = search.DefaultCanonicalIDLength
	}
	if s.RootSegments <= 0 {
		s.RootSegments = catalog.DefaultRootSegments
	}

	if c.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("RateLimit.RequestsPerSecond may not be negative")
	}
	if c.RateLimit.RequestsPerSecond > 0 && c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = int(c.RateLimit.RequestsPerSecond) + 1
	}

	if c.Ingest.Concurrency <= 0 {
		c.Ingest.Concurrency = defaultConcurrency
	}
	return nil
}

func (c *Config) weights() search.Weights {
	w := search.Weights{}
	copy(w[:], c.Search.Weights)
	return w
}

func (c *Config) plannerOptions() search.PlannerOptions {
	return search.PlannerOptions{
		Weights:           c.weights(),
		CanonicalIDLength: c.Search.CanonicalTableIDLength,
		MaxRows:           c.Search.MaxRows,
		HighlightStart:    c.Search.HighlightStart,
		HighlightStop:     c.Search.HighlightStop,
		MaxWords:          c.Search.MaxWords,
		MinWords:          c.Search.MinWords,
	}
}

func (c *Config) searchTimeout() time.Duration {
	return time.Duration(c.Search.TimeoutMS) * time.Millisecond
}

func (c *Config) resolver() *catalog.Resolver {
	return &catalog.Resolver{RootSegments: c.Search.RootSegments}
}

// scheduleVacuum registers the nightly vacuum with the default gocron scheduler
func (c *Config) scheduleVacuum(job func() error) {
	gocron.Every(1).Day().At(c.VacuumAt).Do(job)
}
