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

func newQueueFixture(t *testing.T) (ExtractionQueueRepo, *types.ExtractionTask) {
	t.Helper()
	repo := NewExtractionQueueRepo(newTestDB(t), logger.NewNop())
	task, err := repo.Create(context.Background(), nil, &types.ExtractionTask{
		SourceURL:    "https://example.org/krithi/1",
		SourceFormat: "blog_html",
		SourceTier:   2,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return repo, task
}

func TestExtractionCreateValidation(t *testing.T) {
	repo := NewExtractionQueueRepo(newTestDB(t), logger.NewNop())
	ctx := context.Background()
	related := uuid.New()

	tests := []struct {
		name    string
		task    *types.ExtractionTask
		wantErr string
	}{
		{
			name:    "missing source url",
			task:    &types.ExtractionTask{SourceFormat: "blog_html"},
			wantErr: "source_url",
		},
		{
			name: "enrich requires related extraction",
			task: &types.ExtractionTask{
				SourceURL:        "https://example.org/a",
				ExtractionIntent: types.IntentEnrich,
			},
			wantErr: "related_extraction_id",
		},
		{
			name: "primary must not carry related extraction",
			task: &types.ExtractionTask{
				SourceURL:           "https://example.org/b",
				ExtractionIntent:    types.IntentPrimary,
				RelatedExtractionID: &related,
			},
			wantErr: "must not be set",
		},
		{
			name: "bogus intent",
			task: &types.ExtractionTask{
				SourceURL:        "https://example.org/c",
				ExtractionIntent: "SECONDARY",
			},
			wantErr: "invalid extraction intent",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := repo.Create(ctx, nil, tt.task)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want substring %q", err, tt.wantErr)
			}
		})
	}

	t.Run("defaults applied", func(t *testing.T) {
		task, err := repo.Create(ctx, nil, &types.ExtractionTask{SourceURL: "https://example.org/d"})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if task.Status != types.ExtractionPending || task.ExtractionIntent != types.IntentPrimary || task.MaxAttempts != 3 {
			t.Fatalf("defaults = %s/%s/%d", task.Status, task.ExtractionIntent, task.MaxAttempts)
		}
	})
}

func TestExtractionClaimByID(t *testing.T) {
	repo, task := newQueueFixture(t)
	ctx := context.Background()

	claimed, err := repo.ClaimByID(ctx, nil, task.ID, "worker-1")
	if err != nil {
		t.Fatalf("ClaimByID: %v", err)
	}
	if claimed == nil {
		t.Fatal("pending task not claimable")
	}
	if claimed.Status != types.ExtractionProcessing || claimed.Attempts != 1 || claimed.ClaimedBy != "worker-1" {
		t.Fatalf("claimed = %s attempts=%d by=%q", claimed.Status, claimed.Attempts, claimed.ClaimedBy)
	}

	again, err := repo.ClaimByID(ctx, nil, task.ID, "worker-2")
	if err != nil {
		t.Fatalf("second ClaimByID: %v", err)
	}
	if again != nil {
		t.Fatal("already-claimed task was claimed again")
	}

	missing, err := repo.ClaimByID(ctx, nil, uuid.New(), "worker-1")
	if err != nil || missing != nil {
		t.Fatalf("claiming unknown id = %+v, %v", missing, err)
	}
}

func TestExtractionMarkDoneTransitions(t *testing.T) {
	repo, task := newQueueFixture(t)
	ctx := context.Background()

	confidence := 0.85
	result := ExtractionResult{
		Payload:     datatypes.JSON(`{"title":"Vatapi Ganapatim"}`),
		ResultCount: 3,
		Method:      "structural",
		Version:     "structural-v2",
		Confidence:  &confidence,
		DurationMs:  120,
	}

	// PENDING cannot go straight to DONE.
	if err := repo.MarkDone(ctx, nil, task.ID, result); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("MarkDone on PENDING: %v", err)
	}

	if _, err := repo.ClaimByID(ctx, nil, task.ID, "worker-1"); err != nil {
		t.Fatalf("ClaimByID: %v", err)
	}
	if err := repo.MarkDone(ctx, nil, task.ID, result); err != nil {
		t.Fatalf("MarkDone: %v", err)
	}

	got, err := repo.GetByID(ctx, nil, task.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != types.ExtractionDone || got.ResultCount != 3 || got.CompletedAt == nil {
		t.Fatalf("done task = %+v", got)
	}
	if got.Confidence == nil || *got.Confidence != confidence {
		t.Fatalf("confidence = %v", got.Confidence)
	}
}

func TestExtractionMarkIngestedIdempotence(t *testing.T) {
	repo, task := newQueueFixture(t)
	ctx := context.Background()

	// Only DONE tasks can be ingested.
	if err := repo.MarkIngested(ctx, nil, task.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("MarkIngested on PENDING: %v", err)
	}

	if _, err := repo.ClaimByID(ctx, nil, task.ID, "worker-1"); err != nil {
		t.Fatalf("ClaimByID: %v", err)
	}
	if err := repo.MarkDone(ctx, nil, task.ID, ExtractionResult{Payload: datatypes.JSON(`{}`)}); err != nil {
		t.Fatalf("MarkDone: %v", err)
	}

	if err := repo.MarkIngested(ctx, nil, task.ID); err != nil {
		t.Fatalf("MarkIngested: %v", err)
	}
	// Redelivery of an already-ingested task is a no-op success.
	if err := repo.MarkIngested(ctx, nil, task.ID); err != nil {
		t.Fatalf("repeat MarkIngested: %v", err)
	}

	got, err := repo.GetByID(ctx, nil, task.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != types.ExtractionIngested {
		t.Fatalf("status = %s, want INGESTED", got.Status)
	}
}

func TestExtractionRetryAndCancel(t *testing.T) {
	repo, task := newQueueFixture(t)
	ctx := context.Background()

	if _, err := repo.ClaimByID(ctx, nil, task.ID, "worker-1"); err != nil {
		t.Fatalf("ClaimByID: %v", err)
	}
	if err := repo.MarkFailed(ctx, nil, task.ID, "fetch source: connection refused"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	if err := repo.Retry(ctx, nil, task.ID); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	got, err := repo.GetByID(ctx, nil, task.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != types.ExtractionPending || got.ClaimedBy != "" || got.ClaimedAt != nil {
		t.Fatalf("retried task = %+v", got)
	}
	if got.Attempts != 1 {
		t.Fatalf("retry reset attempts to %d", got.Attempts)
	}

	if err := repo.Cancel(ctx, nil, task.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	// Cancelled tasks cannot be cancelled twice, but can be retried.
	if err := repo.Cancel(ctx, nil, task.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("double Cancel: %v", err)
	}
	if err := repo.Retry(ctx, nil, task.ID); err != nil {
		t.Fatalf("Retry after cancel: %v", err)
	}
}

func TestExtractionStats(t *testing.T) {
	db := newTestDB(t)
	repo := NewExtractionQueueRepo(db, logger.NewNop())
	ctx := context.Background()

	urls := []string{"https://example.org/1", "https://example.org/2", "https://example.org/3"}
	var tasks []*types.ExtractionTask
	for _, u := range urls {
		task, err := repo.Create(ctx, nil, &types.ExtractionTask{SourceURL: u})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		tasks = append(tasks, task)
	}

	if _, err := repo.ClaimByID(ctx, nil, tasks[0].ID, "w"); err != nil {
		t.Fatalf("ClaimByID: %v", err)
	}
	if err := repo.MarkFailed(ctx, nil, tasks[0].ID, "parse error"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	stats, err := repo.GetStats(ctx, nil)
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.Pending != 2 || stats.Failed != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.Retryable != 1 {
		t.Fatalf("retryable = %d, want 1 (one attempt of three used)", stats.Retryable)
	}

	n, err := repo.RetryAllFailed(ctx, nil)
	if err != nil || n != 1 {
		t.Fatalf("RetryAllFailed = %d, %v", n, err)
	}
}

func TestExtractionGetBySourceURL(t *testing.T) {
	repo, task := newQueueFixture(t)
	ctx := context.Background()

	got, err := repo.GetBySourceURL(ctx, nil, task.SourceURL)
	if err != nil {
		t.Fatalf("GetBySourceURL: %v", err)
	}
	if got == nil || got.ID != task.ID {
		t.Fatalf("got %+v", got)
	}

	none, err := repo.GetBySourceURL(ctx, nil, "https://example.org/unknown")
	if err != nil || none != nil {
		t.Fatalf("unknown url = %+v, %v", none, err)
	}
}

func TestExtractionRetryRespectsAttemptBudget(t *testing.T) {
	db := newTestDB(t)
	repo := NewExtractionQueueRepo(db, logger.NewNop())
	ctx := context.Background()

	task, err := repo.Create(ctx, nil, &types.ExtractionTask{
		SourceURL:    "https://example.org/krithi/exhausted",
		SourceFormat: "blog_html",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := db.Model(&types.ExtractionTask{}).
		Where("id = ?", task.ID).
		Updates(map[string]interface{}{
			"status":   types.ExtractionFailed,
			"attempts": task.MaxAttempts,
		}).Error; err != nil {
		t.Fatalf("exhaust attempts: %v", err)
	}

	if err := repo.Retry(ctx, nil, task.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Retry past the attempt budget: %v", err)
	}
	got, err := repo.GetByID(ctx, nil, task.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != types.ExtractionFailed {
		t.Fatalf("exhausted task moved to %s", got.Status)
	}

	// RetryAllFailed is the deliberate bulk override for exhausted tasks.
	n, err := repo.RetryAllFailed(ctx, nil)
	if err != nil {
		t.Fatalf("RetryAllFailed: %v", err)
	}
	if n != 1 {
		t.Fatalf("RetryAllFailed reset %d tasks, want 1", n)
	}
	got, err = repo.GetByID(ctx, nil, task.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != types.ExtractionPending {
		t.Fatalf("task after RetryAllFailed = %s", got.Status)
	}
}
