package repos

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/sangitam/krithi-backend/internal/logger"
	"github.com/sangitam/krithi-backend/internal/types"
)

func newStagedFixture(t *testing.T) (ImportedKrithiRepo, *types.ImportedKrithi) {
	t.Helper()
	repo := NewImportedKrithiRepo(newTestDB(t), logger.NewNop())
	extractionID := uuid.New()
	staged, err := repo.Create(context.Background(), nil, &types.ImportedKrithi{
		ImportSourceID:   uuid.New(),
		ExtractionTaskID: &extractionID,
		RawTitle:         "Vatapi Ganapatim",
		RawComposer:      "Muthuswami Dikshitar",
		RawRaga:          "Hamsadhwani",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return repo, staged
}

func TestStagedCreateValidation(t *testing.T) {
	repo := NewImportedKrithiRepo(newTestDB(t), logger.NewNop())
	ctx := context.Background()

	if _, err := repo.Create(ctx, nil, &types.ImportedKrithi{RawTitle: "x"}); err == nil || !strings.Contains(err.Error(), "import_source_id") {
		t.Fatalf("missing source id: %v", err)
	}
	if _, err := repo.Create(ctx, nil, &types.ImportedKrithi{ImportSourceID: uuid.New()}); err == nil || !strings.Contains(err.Error(), "title or lyrics") {
		t.Fatalf("empty content: %v", err)
	}
}

func TestStagedLifecycle(t *testing.T) {
	repo, staged := newStagedFixture(t)
	ctx := context.Background()

	if staged.ImportStatus != types.ImportPending {
		t.Fatalf("new staged status = %s", staged.ImportStatus)
	}

	if err := repo.SetResolutionData(ctx, nil, staged.ID, datatypes.JSON(`{"composer_candidates":[]}`)); err != nil {
		t.Fatalf("SetResolutionData: %v", err)
	}
	if err := repo.SetQuality(ctx, nil, staged.ID, 0.82, "HIGH"); err != nil {
		t.Fatalf("SetQuality: %v", err)
	}

	krithiID := uuid.New()
	if err := repo.UpdateImportStatus(ctx, nil, staged.ID, types.ImportMapped, &krithiID); err != nil {
		t.Fatalf("UpdateImportStatus: %v", err)
	}

	got, err := repo.GetByID(ctx, nil, staged.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.ImportStatus != types.ImportMapped || got.MappedKrithiID == nil || *got.MappedKrithiID != krithiID {
		t.Fatalf("mapped staged = %+v", got)
	}
	if got.QualityScore == nil || *got.QualityScore != 0.82 || got.QualityTier != "HIGH" {
		t.Fatalf("quality = %v/%s", got.QualityScore, got.QualityTier)
	}
	if got.ReviewedAt == nil {
		t.Fatal("review transition did not stamp reviewed_at")
	}
	if got.RawTitle != "Vatapi Ganapatim" {
		t.Fatalf("raw title changed to %q", got.RawTitle)
	}
}

func TestStagedTerminalStatusesDoNotMove(t *testing.T) {
	repo, staged := newStagedFixture(t)
	ctx := context.Background()

	if err := repo.UpdateImportStatus(ctx, nil, staged.ID, types.ImportRejected, nil); err != nil {
		t.Fatalf("reject: %v", err)
	}
	err := repo.UpdateImportStatus(ctx, nil, staged.ID, types.ImportPending, nil)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("reopening a rejected import: %v", err)
	}
}

func TestStagedGetByExtractionTaskID(t *testing.T) {
	repo, staged := newStagedFixture(t)
	ctx := context.Background()

	got, err := repo.GetByExtractionTaskID(ctx, nil, *staged.ExtractionTaskID)
	if err != nil {
		t.Fatalf("GetByExtractionTaskID: %v", err)
	}
	if got == nil || got.ID != staged.ID {
		t.Fatalf("got %+v", got)
	}

	none, err := repo.GetByExtractionTaskID(ctx, nil, uuid.New())
	if err != nil || none != nil {
		t.Fatalf("unknown extraction = %+v, %v", none, err)
	}
}

func TestStagedListByStatus(t *testing.T) {
	repo, staged := newStagedFixture(t)
	ctx := context.Background()

	pending, err := repo.ListByStatus(ctx, nil, types.ImportPending, 10)
	if err != nil {
		t.Fatalf("ListByStatus: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != staged.ID {
		t.Fatalf("pending = %+v", pending)
	}

	if _, err := repo.ListByStatus(ctx, nil, "WAITING", 10); err == nil {
		t.Fatal("invalid status accepted")
	}
}
