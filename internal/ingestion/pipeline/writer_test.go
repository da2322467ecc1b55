package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/sangitam/krithi-backend/internal/ingestion/approval"
	"github.com/sangitam/krithi-backend/internal/ingestion/dedupe"
	"github.com/sangitam/krithi-backend/internal/ingestion/parser"
	"github.com/sangitam/krithi-backend/internal/ingestion/resolve"
	"github.com/sangitam/krithi-backend/internal/ingestion/voting"
	"github.com/sangitam/krithi-backend/internal/logger"
	"github.com/sangitam/krithi-backend/internal/repos"
	"github.com/sangitam/krithi-backend/internal/types"
)

// The writer walks the whole catalog side of the schema, so the in-memory
// fixture declares every table it can touch. Timestamp columns keep a DB-side
// default since gorm omits zero timestamps on INSERT.
var writerTestSchema = []string{
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
}

type writerFixture struct {
	db          *gorm.DB
	writer      *Writer
	extractions repos.ExtractionQueueRepo
	staged      repos.ImportedKrithiRepo
	krithis     repos.KrithiRepo
	votes       repos.StructuralVoteLogRepo
	matches     repos.VariantMatchRepo
	evidence    repos.SourceEvidenceRepo
	refs        repos.ReferenceRepo
}

func newWriterFixture(t *testing.T) *writerFixture {
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
	for _, stmt := range writerTestSchema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create test schema: %v", err)
		}
	}

	nop := logger.NewNop()
	f := &writerFixture{
		db:          db,
		extractions: repos.NewExtractionQueueRepo(db, nop),
		staged:      repos.NewImportedKrithiRepo(db, nop),
		krithis:     repos.NewKrithiRepo(db, nop),
		votes:       repos.NewStructuralVoteLogRepo(db, nop),
		matches:     repos.NewVariantMatchRepo(db, nop),
		evidence:    repos.NewSourceEvidenceRepo(db, nop),
		refs:        repos.NewReferenceRepo(db, nop),
	}
	gate, err := approval.NewGate(approval.DefaultConfig())
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	f.writer = NewWriter(
		db,
		nop,
		f.extractions,
		f.staged,
		f.krithis,
		f.votes,
		f.matches,
		f.evidence,
		resolve.NewResolver(f.refs, nil, nop),
		dedupe.NewDetector(f.krithis, nop),
		gate,
		voting.DefaultWeights(),
	)
	return f
}

func (f *writerFixture) seedReferences(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.refs.SeedComposer(ctx, nil, "Muthuswami Dikshitar"); err != nil {
		t.Fatalf("seed composer: %v", err)
	}
	if _, err := f.refs.SeedRaga(ctx, nil, "Hamsadhwani"); err != nil {
		t.Fatalf("seed raga: %v", err)
	}
	if _, err := f.refs.SeedTala(ctx, nil, "Adi"); err != nil {
		t.Fatalf("seed tala: %v", err)
	}
}

// seedDoneExtraction walks a task through the queue's real transitions so the
// writer sees the same shape the worker produces.
func (f *writerFixture) seedDoneExtraction(t *testing.T, task *types.ExtractionTask, payload *ExtractionPayload) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	created, err := f.extractions.Create(ctx, nil, task)
	if err != nil {
		t.Fatalf("create extraction: %v", err)
	}
	if _, err := f.extractions.ClaimByID(ctx, nil, created.ID, "writer-test"); err != nil {
		t.Fatalf("claim extraction: %v", err)
	}
	raw, err := payload.ToJSON()
	if err != nil {
		t.Fatalf("encode payload: %v", err)
	}
	if err := f.extractions.MarkDone(ctx, nil, created.ID, repos.ExtractionResult{
		Payload:     raw,
		ResultCount: 1,
		Method:      "structural",
		Version:     ExtractorVersion,
		Confidence:  &payload.Confidence,
	}); err != nil {
		t.Fatalf("mark done: %v", err)
	}
	return created.ID
}

func approvablePayload() *ExtractionPayload {
	return &ExtractionPayload{
		Title:    "Vatapi Ganapatim",
		Composer: "Muthuswami Dikshitar",
		Raga:     "Hamsadhwani",
		Tala:     "Adi",
		Sections: []parser.Section{
			{Type: parser.SectionPallavi, Lines: []string{"vatapi ganapatim bhaje"}},
			{Type: parser.SectionAnupallavi, Lines: []string{"bhutadi samsevita charanam"}},
			{Type: parser.SectionCharanam, Lines: []string{"pranava swarupa vakratundam"}},
		},
		Confidence: 0.9,
	}
}

func (f *writerFixture) extractionStatus(t *testing.T, id uuid.UUID) types.ExtractionStatus {
	t.Helper()
	task, err := f.extractions.GetByID(context.Background(), nil, id)
	if err != nil || task == nil {
		t.Fatalf("reload extraction %s: %v", id, err)
	}
	return task.Status
}

func (f *writerFixture) countRows(t *testing.T, model interface{}) int64 {
	t.Helper()
	var n int64
	if err := f.db.Model(model).Count(&n).Error; err != nil {
		t.Fatalf("count rows: %v", err)
	}
	return n
}

func TestIngestPrimaryAutoApproves(t *testing.T) {
	f := newWriterFixture(t)
	f.seedReferences(t)
	ctx := context.Background()

	extID := f.seedDoneExtraction(t, &types.ExtractionTask{
		SourceURL:  "https://example.org/krithi/vatapi",
		SourceTier: 1,
	}, approvablePayload())

	outcome, err := f.writer.Ingest(ctx, extID)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if !outcome.AutoApproved || outcome.KrithiID == nil || outcome.StagedID == nil {
		t.Fatalf("outcome = %+v", outcome)
	}

	krithi, err := f.krithis.GetByID(ctx, nil, *outcome.KrithiID)
	if err != nil || krithi == nil {
		t.Fatalf("catalog record missing: %v", err)
	}
	if krithi.Title != "Vatapi Ganapatim" {
		t.Fatalf("title = %q", krithi.Title)
	}
	if krithi.ComposerID == nil || krithi.RagaID == nil || krithi.TalaID == nil {
		t.Fatalf("unresolved references on %+v", krithi)
	}
	if len(krithi.Structure) == 0 || krithi.Lyrics == "" {
		t.Fatalf("structure/lyrics not written: %+v", krithi)
	}

	staged, err := f.staged.GetByID(ctx, nil, *outcome.StagedID)
	if err != nil || staged == nil {
		t.Fatalf("staged row missing: %v", err)
	}
	if staged.ImportStatus != types.ImportMapped {
		t.Fatalf("staged status = %s, want MAPPED", staged.ImportStatus)
	}
	if staged.MappedKrithiID == nil || *staged.MappedKrithiID != *outcome.KrithiID {
		t.Fatalf("staged mapping = %v", staged.MappedKrithiID)
	}
	if staged.QualityTier != "HIGH" {
		t.Fatalf("quality tier = %q", staged.QualityTier)
	}

	evidence, err := f.evidence.ListByKrithi(ctx, nil, *outcome.KrithiID)
	if err != nil {
		t.Fatalf("ListByKrithi: %v", err)
	}
	if len(evidence) != 1 || evidence[0].SourceURL != "https://example.org/krithi/vatapi" {
		t.Fatalf("evidence = %+v", evidence)
	}
	votes, err := f.votes.ListByKrithi(ctx, nil, *outcome.KrithiID)
	if err != nil {
		t.Fatalf("ListByKrithi votes: %v", err)
	}
	if len(votes) != 1 {
		t.Fatalf("got %d vote rounds, want 1", len(votes))
	}
	if got := f.extractionStatus(t, extID); got != types.ExtractionIngested {
		t.Fatalf("extraction status = %s, want INGESTED", got)
	}
}

func TestIngestIsIdempotent(t *testing.T) {
	f := newWriterFixture(t)
	f.seedReferences(t)
	ctx := context.Background()

	extID := f.seedDoneExtraction(t, &types.ExtractionTask{
		SourceURL:  "https://example.org/krithi/vatapi",
		SourceTier: 1,
	}, approvablePayload())

	if _, err := f.writer.Ingest(ctx, extID); err != nil {
		t.Fatalf("first Ingest: %v", err)
	}
	again, err := f.writer.Ingest(ctx, extID)
	if err != nil {
		t.Fatalf("second Ingest: %v", err)
	}
	if !again.AlreadyIngested {
		t.Fatalf("second outcome = %+v, want AlreadyIngested", again)
	}
	if n := f.countRows(t, &types.Krithi{}); n != 1 {
		t.Fatalf("catalog rows = %d, want 1", n)
	}
	if n := f.countRows(t, &types.KrithiSourceEvidence{}); n != 1 {
		t.Fatalf("evidence rows = %d, want 1", n)
	}
}

func TestIngestPrimaryLowQualityHeldForReview(t *testing.T) {
	f := newWriterFixture(t)
	f.seedReferences(t)
	ctx := context.Background()

	payload := approvablePayload()
	payload.Confidence = 0.4
	extID := f.seedDoneExtraction(t, &types.ExtractionTask{
		SourceURL:  "https://example.org/krithi/partial",
		SourceTier: 2,
	}, payload)

	outcome, err := f.writer.Ingest(ctx, extID)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if outcome.AutoApproved || outcome.KrithiID != nil {
		t.Fatalf("outcome = %+v, want held", outcome)
	}
	if !strings.Contains(outcome.Reason, "quality score") {
		t.Fatalf("reason = %q", outcome.Reason)
	}
	staged, err := f.staged.GetByID(ctx, nil, *outcome.StagedID)
	if err != nil || staged == nil {
		t.Fatalf("staged row missing: %v", err)
	}
	if staged.ImportStatus != types.ImportInReview {
		t.Fatalf("staged status = %s, want IN_REVIEW", staged.ImportStatus)
	}
	if n := f.countRows(t, &types.Krithi{}); n != 0 {
		t.Fatalf("catalog rows = %d, want 0", n)
	}
	// Held for human review is still consumed from the queue's point of view.
	if got := f.extractionStatus(t, extID); got != types.ExtractionIngested {
		t.Fatalf("extraction status = %s, want INGESTED", got)
	}
}

func TestIngestEnrichAutoApproves(t *testing.T) {
	f := newWriterFixture(t)
	f.seedReferences(t)
	ctx := context.Background()

	primaryID := f.seedDoneExtraction(t, &types.ExtractionTask{
		SourceURL:  "https://example.org/krithi/vatapi",
		SourceTier: 1,
	}, approvablePayload())
	primary, err := f.writer.Ingest(ctx, primaryID)
	if err != nil {
		t.Fatalf("ingest primary: %v", err)
	}

	enrichID := f.seedDoneExtraction(t, &types.ExtractionTask{
		SourceURL:           "https://mirror.example.net/vatapi-ganapatim",
		SourceTier:          2,
		ExtractionIntent:    types.IntentEnrich,
		RelatedExtractionID: &primaryID,
	}, approvablePayload())

	outcome, err := f.writer.Ingest(ctx, enrichID)
	if err != nil {
		t.Fatalf("ingest enrich: %v", err)
	}
	if !outcome.AutoApproved || outcome.VariantMatchID == nil {
		t.Fatalf("outcome = %+v", outcome)
	}
	if outcome.KrithiID == nil || *outcome.KrithiID != *primary.KrithiID {
		t.Fatalf("enrich attached to %v, want %v", outcome.KrithiID, primary.KrithiID)
	}

	match, err := f.matches.GetByID(ctx, nil, *outcome.VariantMatchID)
	if err != nil || match == nil {
		t.Fatalf("variant match missing: %v", err)
	}
	if match.MatchStatus != types.MatchAutoApproved || match.StructureMismatch || match.IsAnomaly {
		t.Fatalf("match = %+v", match)
	}
	if match.ConfidenceTier != types.ConfidenceHigh {
		t.Fatalf("match tier = %s", match.ConfidenceTier)
	}

	evidence, err := f.evidence.ListByKrithi(ctx, nil, *primary.KrithiID)
	if err != nil {
		t.Fatalf("ListByKrithi: %v", err)
	}
	if len(evidence) != 2 {
		t.Fatalf("evidence rows = %d, want 2", len(evidence))
	}
	votes, err := f.votes.ListByKrithi(ctx, nil, *primary.KrithiID)
	if err != nil {
		t.Fatalf("ListByKrithi votes: %v", err)
	}
	if len(votes) != 2 {
		t.Fatalf("vote rounds = %d, want 2", len(votes))
	}
	if got := f.extractionStatus(t, enrichID); got != types.ExtractionIngested {
		t.Fatalf("enrich status = %s, want INGESTED", got)
	}
}

func TestIngestEnrichStructureMismatchHeld(t *testing.T) {
	f := newWriterFixture(t)
	f.seedReferences(t)
	ctx := context.Background()

	primaryID := f.seedDoneExtraction(t, &types.ExtractionTask{
		SourceURL:  "https://example.org/krithi/vatapi",
		SourceTier: 1,
	}, approvablePayload())
	primary, err := f.writer.Ingest(ctx, primaryID)
	if err != nil {
		t.Fatalf("ingest primary: %v", err)
	}

	variant := approvablePayload()
	variant.Sections = []parser.Section{
		{Type: parser.SectionPallavi, Lines: []string{"vatapi ganapatim bhaje"}},
	}
	enrichID := f.seedDoneExtraction(t, &types.ExtractionTask{
		SourceURL:           "https://mirror.example.net/vatapi-short",
		SourceTier:          2,
		ExtractionIntent:    types.IntentEnrich,
		RelatedExtractionID: &primaryID,
	}, variant)

	outcome, err := f.writer.Ingest(ctx, enrichID)
	if err != nil {
		t.Fatalf("ingest enrich: %v", err)
	}
	if outcome.AutoApproved {
		t.Fatalf("mismatched variant auto-approved: %+v", outcome)
	}
	if !strings.Contains(outcome.Reason, "held for review") {
		t.Fatalf("reason = %q", outcome.Reason)
	}
	match, err := f.matches.GetByID(ctx, nil, *outcome.VariantMatchID)
	if err != nil || match == nil {
		t.Fatalf("variant match missing: %v", err)
	}
	if match.MatchStatus != types.MatchPending || !match.StructureMismatch {
		t.Fatalf("match = %+v", match)
	}

	// A held match contributes no evidence and no vote round.
	evidence, err := f.evidence.ListByKrithi(ctx, nil, *primary.KrithiID)
	if err != nil {
		t.Fatalf("ListByKrithi: %v", err)
	}
	if len(evidence) != 1 {
		t.Fatalf("evidence rows = %d, want 1", len(evidence))
	}
	votes, err := f.votes.ListByKrithi(ctx, nil, *primary.KrithiID)
	if err != nil {
		t.Fatalf("ListByKrithi votes: %v", err)
	}
	if len(votes) != 1 {
		t.Fatalf("vote rounds = %d, want 1", len(votes))
	}
}

// A failure anywhere in the write path must leave nothing behind: no catalog
// row, no staged row, and the extraction still DONE so it can be retried.
func TestIngestRollsBackOnWriteFailure(t *testing.T) {
	f := newWriterFixture(t)
	f.seedReferences(t)
	ctx := context.Background()

	extID := f.seedDoneExtraction(t, &types.ExtractionTask{
		SourceURL:  "https://example.org/krithi/vatapi",
		SourceTier: 1,
	}, approvablePayload())

	if err := f.db.Exec(`DROP TABLE krithi_source_evidence`).Error; err != nil {
		t.Fatalf("drop evidence table: %v", err)
	}
	if _, err := f.writer.Ingest(ctx, extID); err == nil {
		t.Fatal("Ingest succeeded without the evidence table")
	}

	if n := f.countRows(t, &types.Krithi{}); n != 0 {
		t.Fatalf("catalog rows = %d, want 0 after rollback", n)
	}
	if n := f.countRows(t, &types.ImportedKrithi{}); n != 0 {
		t.Fatalf("staged rows = %d, want 0 after rollback", n)
	}
	if got := f.extractionStatus(t, extID); got != types.ExtractionDone {
		t.Fatalf("extraction status = %s, want DONE", got)
	}
}
