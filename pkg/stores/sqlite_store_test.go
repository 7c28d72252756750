package stores

import (
	"context"
	"testing"
	"time"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path:     ":memory:",
		TenantID: "tenant-1",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	return store
}

func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

func TestStoreRequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Fatal("expected error for missing database path")
	}
}

func TestRunRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	run := &Run{
		ID:        "run-1",
		TenantID:  "tenant-1",
		Status:    RunStatusRunning,
		StartedAt: now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}

	got, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if got.TenantID != "tenant-1" || got.Status != RunStatusRunning {
		t.Errorf("GetRun() = %+v", got)
	}
	if got.CompletedAt != nil {
		t.Errorf("CompletedAt = %v, want nil for running run", got.CompletedAt)
	}

	if err := store.UpdateRunStatus(ctx, "run-1", RunStatusSucceeded, nil); err != nil {
		t.Fatalf("UpdateRunStatus() error = %v", err)
	}
	got, err = store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun() after update error = %v", err)
	}
	if got.Status != RunStatusSucceeded {
		t.Errorf("Status = %s, want succeeded", got.Status)
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt = nil, want set for completed run")
	}
}

func TestUpdateRunStatusNotFound(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	if err := store.UpdateRunStatus(context.Background(), "missing", RunStatusFailed, nil); err == nil {
		t.Fatal("expected error for unknown run ID")
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i, id := range []string{"run-old", "run-mid", "run-new"} {
		started := base.Add(time.Duration(i) * time.Minute)
		err := store.CreateRun(ctx, &Run{
			ID: id, TenantID: "tenant-1", Status: RunStatusSucceeded,
			StartedAt: started, CreatedAt: started, UpdatedAt: started,
		})
		if err != nil {
			t.Fatalf("CreateRun(%s) error = %v", id, err)
		}
	}

	runs, err := store.ListRuns(ctx, 2, 0)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("ListRuns() returned %d runs, want 2", len(runs))
	}
	if runs[0].ID != "run-new" || runs[1].ID != "run-mid" {
		t.Errorf("ListRuns() order = %s, %s", runs[0].ID, runs[1].ID)
	}
}

func TestPhaseRecords(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()
	ctx := context.Background()

	if err := store.RecordRunStarted(ctx, "run-1"); err != nil {
		t.Fatalf("RecordRunStarted() error = %v", err)
	}
	for _, phase := range []string{"auth", "blueprint", "identity"} {
		if err := store.RecordPhase(ctx, "run-1", phase, "succeeded", ""); err != nil {
			t.Fatalf("RecordPhase(%s) error = %v", phase, err)
		}
	}
	if err := store.RecordPhase(ctx, "run-1", "license", "skipped", "no license SKU configured"); err != nil {
		t.Fatalf("RecordPhase(license) error = %v", err)
	}

	records, err := store.ListPhasesByRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("ListPhasesByRun() error = %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("phase records = %d, want 4", len(records))
	}
	last := records[len(records)-1]
	if last.Phase != "license" || last.Outcome != PhaseOutcomeSkipped {
		t.Errorf("last record = %+v", last)
	}
	if last.Detail != "no license SKU configured" {
		t.Errorf("Detail = %q", last.Detail)
	}
}

func TestRecordRunCompletedMapsStatus(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()
	ctx := context.Background()

	if err := store.RecordRunStarted(ctx, "run-1"); err != nil {
		t.Fatalf("RecordRunStarted() error = %v", err)
	}
	if err := store.RecordRunCompleted(ctx, "run-1", "failed"); err != nil {
		t.Fatalf("RecordRunCompleted() error = %v", err)
	}

	run, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run.Status != RunStatusFailed {
		t.Errorf("Status = %s, want failed", run.Status)
	}
}

func TestEventPersistence(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()
	ctx := context.Background()

	if err := store.RecordRunStarted(ctx, "run-1"); err != nil {
		t.Fatalf("RecordRunStarted() error = %v", err)
	}

	base := time.Now().UTC()
	events := []*EventRecord{
		{ID: "e1", RunID: "run-1", Type: "phase.started", Level: "info", Message: "Phase blueprint started", Phase: "blueprint", Timestamp: base},
		{ID: "e2", RunID: "run-1", Type: "warning", Level: "warning", Message: "no license SKU configured", Phase: "license", Timestamp: base.Add(time.Second)},
	}
	for _, e := range events {
		if err := store.AppendEvent(ctx, e); err != nil {
			t.Fatalf("AppendEvent(%s) error = %v", e.ID, err)
		}
	}

	got, err := store.GetEvents(ctx, "run-1", 0, 0)
	if err != nil {
		t.Fatalf("GetEvents() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("events = %d, want 2", len(got))
	}
	if got[0].ID != "e1" || got[1].Level != "warning" {
		t.Errorf("events = %+v, %+v", got[0], got[1])
	}
}
