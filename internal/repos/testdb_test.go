package repos

import (
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// The production schema leans on Postgres defaults (now(), uuid), so the
// in-memory fixture declares its tables explicitly instead of auto-migrating.
// The models declare a DB-side default for their timestamps, which makes gorm
// omit zero-valued created_at/updated_at on INSERT; the fixture columns carry
// CURRENT_TIMESTAMP so those inserts still satisfy NOT NULL.
var testSchema = []string{
	`CREATE TABLE extraction_queue (
		id TEXT PRIMARY KEY,
		source_url TEXT NOT NULL,
		source_format TEXT NOT NULL DEFAULT '',
		source_name TEXT NOT NULL DEFAULT '',
		source_tier INTEGER NOT NULL DEFAULT 3,
		status TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		max_attempts INTEGER NOT NULL DEFAULT 3,
		confidence REAL,
		extraction_method TEXT NOT NULL DEFAULT '',
		extractor_version TEXT NOT NULL DEFAULT '',
		content_language TEXT NOT NULL DEFAULT '',
		extraction_intent TEXT NOT NULL,
		related_extraction_id TEXT,
		result_payload TEXT,
		result_count INTEGER NOT NULL DEFAULT 0,
		error_detail TEXT NOT NULL DEFAULT '',
		duration_ms INTEGER,
		claimed_by TEXT NOT NULL DEFAULT '',
		claimed_at DATETIME,
		completed_at DATETIME,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE import_batches (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		source_manifest TEXT,
		total_tasks INTEGER NOT NULL DEFAULT 0,
		processed_tasks INTEGER NOT NULL DEFAULT 0,
		succeeded_tasks INTEGER NOT NULL DEFAULT 0,
		failed_tasks INTEGER NOT NULL DEFAULT 0,
		blocked_tasks INTEGER NOT NULL DEFAULT 0,
		started_at DATETIME,
		completed_at DATETIME,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE import_jobs (
		id TEXT PRIMARY KEY,
		batch_id TEXT NOT NULL,
		job_type TEXT NOT NULL,
		status TEXT NOT NULL,
		retry_count INTEGER NOT NULL DEFAULT 0,
		payload TEXT,
		result TEXT,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE import_task_runs (
		id TEXT PRIMARY KEY,
		job_id TEXT NOT NULL,
		krithi_key TEXT,
		source_url TEXT,
		status TEXT NOT NULL,
		attempt INTEGER NOT NULL DEFAULT 0,
		checksum TEXT NOT NULL DEFAULT '',
		evidence_path TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		duration_ms INTEGER,
		claimed_at DATETIME,
		finished_at DATETIME,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE imported_krithis (
		id TEXT PRIMARY KEY,
		import_source_id TEXT NOT NULL,
		extraction_task_id TEXT,
		raw_title TEXT NOT NULL DEFAULT '',
		raw_lyrics TEXT NOT NULL DEFAULT '',
		raw_composer TEXT NOT NULL DEFAULT '',
		raw_raga TEXT NOT NULL DEFAULT '',
		raw_tala TEXT NOT NULL DEFAULT '',
		raw_deity TEXT NOT NULL DEFAULT '',
		raw_temple TEXT NOT NULL DEFAULT '',
		raw_language TEXT NOT NULL DEFAULT '',
		resolution_data TEXT,
		duplicate_candidates TEXT,
		quality_score REAL,
		quality_tier TEXT NOT NULL DEFAULT '',
		import_status TEXT NOT NULL,
		mapped_krithi_id TEXT,
		reviewed_at DATETIME,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE krithi (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		normalized_title TEXT NOT NULL,
		composer_id TEXT,
		raga_id TEXT,
		tala_id TEXT,
		deity TEXT NOT NULL DEFAULT '',
		temple TEXT NOT NULL DEFAULT '',
		language TEXT NOT NULL DEFAULT '',
		structure TEXT,
		lyrics TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE krithi_source_evidence (
		id TEXT PRIMARY KEY,
		krithi_id TEXT NOT NULL,
		import_source_id TEXT NOT NULL,
		source_url TEXT NOT NULL,
		source_tier INTEGER NOT NULL DEFAULT 3,
		extraction_method TEXT NOT NULL DEFAULT '',
		confidence REAL,
		contributed_fields TEXT,
		raw_extraction TEXT,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (krithi_id, source_url)
	)`,
	`CREATE TABLE structural_vote_log (
		id TEXT PRIMARY KEY,
		krithi_id TEXT NOT NULL,
		voted_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		participating_sources TEXT,
		consensus_structure TEXT,
		consensus_type TEXT NOT NULL,
		confidence TEXT NOT NULL,
		dissenting_sources TEXT,
		reviewer_id TEXT,
		notes TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE variant_match (
		id TEXT PRIMARY KEY,
		extraction_id TEXT NOT NULL,
		krithi_id TEXT NOT NULL,
		confidence REAL NOT NULL,
		confidence_tier TEXT NOT NULL,
		match_status TEXT NOT NULL,
		is_anomaly INTEGER NOT NULL DEFAULT 0,
		structure_mismatch INTEGER NOT NULL DEFAULT 0,
		reviewer_notes TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE composer (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		normalized_name TEXT NOT NULL UNIQUE,
		period TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE raga (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		normalized_name TEXT NOT NULL UNIQUE,
		melakarta INTEGER,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE tala (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		normalized_name TEXT NOT NULL UNIQUE,
		akshara_count INTEGER,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE entity_alias (
		id TEXT PRIMARY KEY,
		entity_type TEXT NOT NULL,
		alias TEXT NOT NULL,
		normalized_alias TEXT NOT NULL,
		canonical_id TEXT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (entity_type, normalized_alias)
	)`,
	`CREATE TABLE app_user (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		password TEXT NOT NULL,
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'reviewer',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap sql.DB: %v", err)
	}
	// One connection keeps every statement on the same in-memory database.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	for _, stmt := range testSchema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create test schema: %v", err)
		}
	}
	return db
}
