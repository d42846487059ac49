// Package dolt implements the notebook Storage interface on top of an
// embedded Dolt database (github.com/dolthub/driver), so the corpus
// itself is version-controlled: every entry write lands as a Dolt
// commit, and history/diff queries are available over the same data
// that normal reads use.
//
// Embedded access requires CGO (the driver links Dolt's Go engine
// directly into the process). Builds without CGO get a stub that
// reports a clear configuration error rather than failing to link.
package dolt

import (
	"time"
)

// Config holds the embedded Dolt database configuration.
type Config struct {
	Path           string        // directory holding the Dolt database
	CommitterName  string        // git-style committer name for writes
	CommitterEmail string        // git-style committer email for writes
	Database       string        // database name within the Dolt instance
	ReadOnly       bool          // skip database creation and schema init; writes are not blocked
	OpenTimeout    time.Duration // how long to retry opening before giving up
}

func (c Config) withDefaults() Config {
	if c.Database == "" {
		c.Database = "notebook"
	}
	if c.CommitterName == "" {
		c.CommitterName = "notebookd"
	}
	if c.CommitterEmail == "" {
		c.CommitterEmail = "notebookd@localhost"
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = 30 * time.Second
	}
	return c
}

// schema is the MySQL-dialect DDL Dolt's SQL engine understands. Every
// statement is idempotent so opening an existing database is safe.
const schema = `
CREATE TABLE IF NOT EXISTS notebooks (
	id VARCHAR(255) PRIMARY KEY,
	name VARCHAR(500) NOT NULL,
	owner VARCHAR(255) NOT NULL,
	participants JSON NOT NULL,
	created_at DATETIME NOT NULL,
	sequence_counter BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS entries (
	id VARCHAR(255) PRIMARY KEY,
	notebook_id VARCHAR(255) NOT NULL,
	content LONGBLOB NOT NULL,
	content_type VARCHAR(255) NOT NULL DEFAULT '',
	topic VARCHAR(500) NOT NULL DEFAULT '',
	refs JSON NOT NULL,
	revision_of VARCHAR(255) NOT NULL DEFAULT '',
	fragment_of VARCHAR(255) NOT NULL DEFAULT '',
	fragment_index BIGINT,
	author VARCHAR(255) NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	sequence BIGINT NOT NULL,
	entries_revised INT NOT NULL DEFAULT 0,
	references_broken INT NOT NULL DEFAULT 0,
	catalog_shift DOUBLE NOT NULL DEFAULT 0,
	orphan TINYINT(1) NOT NULL DEFAULT 0,
	claims_status VARCHAR(32) NOT NULL DEFAULT 'pending',
	integration_status VARCHAR(32) NOT NULL DEFAULT 'probation',
	max_friction DOUBLE NOT NULL DEFAULT 0,
	INDEX idx_entries_notebook (notebook_id),
	INDEX idx_entries_notebook_seq (notebook_id, sequence),
	INDEX idx_entries_revision_of (revision_of),
	INDEX idx_entries_fragment_of (fragment_of)
);

CREATE TABLE IF NOT EXISTS claims (
	id VARCHAR(255) PRIMARY KEY,
	entry_id VARCHAR(255) NOT NULL,
	ordinal INT NOT NULL,
	text TEXT NOT NULL,
	confidence DOUBLE NOT NULL,
	INDEX idx_claims_entry (entry_id)
);

CREATE TABLE IF NOT EXISTS comparisons (
	entry_a VARCHAR(255) NOT NULL,
	entry_b VARCHAR(255) NOT NULL,
	entropy DOUBLE NOT NULL,
	friction DOUBLE NOT NULL,
	contradictions JSON NOT NULL,
	PRIMARY KEY (entry_a, entry_b),
	INDEX idx_comparisons_b (entry_b)
);

CREATE TABLE IF NOT EXISTS jobs (
	id VARCHAR(255) PRIMARY KEY,
	notebook_id VARCHAR(255) NOT NULL,
	job_type VARCHAR(64) NOT NULL,
	payload JSON NOT NULL,
	status VARCHAR(32) NOT NULL,
	attempts INT NOT NULL DEFAULT 0,
	max_attempts INT NOT NULL DEFAULT 5,
	lease_expires_at DATETIME,
	worker_id VARCHAR(255) NOT NULL DEFAULT '',
	last_error TEXT,
	created_at DATETIME NOT NULL,
	INDEX idx_jobs_notebook_status (notebook_id, status, job_type),
	INDEX idx_jobs_created_at (created_at)
);

CREATE TABLE IF NOT EXISTS embeddings (
	entry_id VARCHAR(255) PRIMARY KEY,
	notebook_id VARCHAR(255) NOT NULL,
	vector JSON NOT NULL,
	INDEX idx_embeddings_notebook (notebook_id)
);

CREATE TABLE IF NOT EXISTS notebook_config (
	notebook_id VARCHAR(255) NOT NULL,
	config_key VARCHAR(255) NOT NULL,
	config_value TEXT NOT NULL,
	PRIMARY KEY (notebook_id, config_key)
);

CREATE TABLE IF NOT EXISTS changes (
	notebook_id VARCHAR(255) NOT NULL,
	sequence BIGINT NOT NULL,
	entry_id VARCHAR(255) NOT NULL,
	kind VARCHAR(32) NOT NULL,
	at DATETIME NOT NULL,
	PRIMARY KEY (notebook_id, sequence),
	INDEX idx_changes_notebook (notebook_id)
);
`
