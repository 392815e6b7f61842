package server

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/migration"
	"github.com/lib/pq"
)

const (
	pqInvalidCatalogName = "3D000" // database does not exist
	pqQueryCanceled      = "57014"
)

// The schema is created once, and only ever moves forward. Never edit a migration that has shipped.
func createMigrations() []migration.Migrator {
	var migrations []migration.Migrator

	migrations = append(migrations, makeMigrationFromSQL(`
	CREATE SCHEMA IF NOT EXISTS censearch;

	CREATE TABLE censearch.acs_tables (
		id            VARCHAR NOT NULL PRIMARY KEY,
		description   VARCHAR NOT NULL,
		universe      VARCHAR NOT NULL DEFAULT '',
		keyword       VARCHAR NOT NULL DEFAULT '',
		unkeyed_text  VARCHAR NOT NULL DEFAULT '',
		edition_type  VARCHAR NOT NULL
	);

	CREATE TABLE censearch.acs_variables (
		id            VARCHAR NOT NULL PRIMARY KEY,
		table_id      VARCHAR NOT NULL,
		parent_id     VARCHAR NULL REFERENCES censearch.acs_variables(id) DEFERRABLE INITIALLY DEFERRED,
		label         VARCHAR NOT NULL,
		full_label    VARCHAR NOT NULL,
		depth         INTEGER NOT NULL,
		data_type     VARCHAR NOT NULL DEFAULT '',
		edition_type  VARCHAR NOT NULL
	);
	CREATE INDEX idx_acs_variables_table_id ON censearch.acs_variables (table_id);
	CREATE INDEX idx_acs_variables_parent_id ON censearch.acs_variables (parent_id);

	CREATE TABLE censearch.category_aliases (
		expected_query VARCHAR NOT NULL,
		alias_query    VARCHAR NOT NULL,
		PRIMARY KEY (expected_query, alias_query)
	);
	`))

	// The table index expression must match the one produced by tsvectorExpr for the default
	// table fields, otherwise Postgres won't use it.
	migrations = append(migrations, makeMigrationFromSQL(`
	CREATE INDEX idx_acs_tables_fts ON censearch.acs_tables USING GIN ((
		setweight(to_tsvector('english', keyword), 'A') || setweight(to_tsvector('english', unkeyed_text), 'C')
	));
	CREATE INDEX idx_acs_variables_fts ON censearch.acs_variables USING GIN ((to_tsvector('english', full_label)));
	`))

	return migrations
}

func makeMigrationFromSQL(statements string) migration.Migrator {
	return func(tx migration.LimitedTx) error {
		_, err := tx.Exec(statements)
		return err
	}
}

// withDBName returns a copy of a key=value DSN, pointing at a different database
func withDBName(dsn, dbname string) (string, error) {
	parts := strings.Fields(dsn)
	found := false
	for i, p := range parts {
		if strings.HasPrefix(p, "dbname=") {
			parts[i] = "dbname=" + dbname
			found = true
		}
	}
	if !found {
		return "", fmt.Errorf("Cannot find dbname in connection string")
	}
	return strings.Join(parts, " "), nil
}

// Run a single statement against the maintenance database of the server that holds dsn
func execOnMaintenanceDB(driver, dsn, statement string) error {
	mdsn, err := withDBName(dsn, maintenanceDatabase)
	if err != nil {
		return err
	}
	db, err := sql.Open(driver, mdsn)
	if err != nil {
		return err
	}
	defer db.Close()
	_, err = db.Exec(statement)
	return err
}

func createDB(driver, name, dsn string) error {
	return execOnMaintenanceDB(driver, dsn, "CREATE DATABASE "+pq.QuoteIdentifier(name))
}

func dropDB(driver, name, dsn string) error {
	return execOnMaintenanceDB(driver, dsn, "DROP DATABASE IF EXISTS "+pq.QuoteIdentifier(name))
}

func isDBNotExistError(err error, dbName string) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqInvalidCatalogName
	}
	return err != nil && strings.Contains(err.Error(), fmt.Sprintf(`database "%v" does not exist`, dbName))
}

func isQueryCanceled(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqQueryCanceled
}
