package journal

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpen_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "journal.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	db.Close()
}

func TestStartAndGetRun(t *testing.T) {
	db := openTestDB(t)

	runID, err := db.StartRun("bootstrap", "/mnt/onl/chroot")
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}
	if runID == "" {
		t.Fatal("StartRun returned an empty run ID")
	}

	rec, err := db.GetRun(runID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if rec.Operation != "bootstrap" {
		t.Errorf("Operation = %q, want bootstrap", rec.Operation)
	}
	if rec.Root != "/mnt/onl/chroot" {
		t.Errorf("Root = %q, want /mnt/onl/chroot", rec.Root)
	}
	if rec.Status != RunStatusRunning {
		t.Errorf("Status = %q, want %q", rec.Status, RunStatusRunning)
	}
	if !rec.EndTime.IsZero() {
		t.Error("a running record must not carry an end time")
	}
}

func TestFinishRun(t *testing.T) {
	db := openTestDB(t)

	runID, err := db.StartRun("bootstrap", "/mnt/onl/chroot")
	if err != nil {
		t.Fatal(err)
	}

	if err := db.FinishRun(runID, RunStatusSuccess); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}

	rec, err := db.GetRun(runID)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != RunStatusSuccess {
		t.Errorf("Status = %q, want %q", rec.Status, RunStatusSuccess)
	}
	if rec.EndTime.IsZero() {
		t.Error("finished record must carry an end time")
	}
}

func TestFinishRun_UnknownRun(t *testing.T) {
	db := openTestDB(t)

	err := db.FinishRun("does-not-exist", RunStatusFailed)
	if !IsRecordNotFound(err) {
		t.Errorf("got %v, want ErrRecordNotFound", err)
	}
}

func TestGetRun_EmptyID(t *testing.T) {
	db := openTestDB(t)

	if _, err := db.GetRun(""); !errors.Is(err, ErrEmptyRunID) {
		t.Errorf("got %v, want ErrEmptyRunID", err)
	}
}

func TestListRuns_MostRecentFirst(t *testing.T) {
	db := openTestDB(t)

	first, err := db.StartRun("bootstrap", "/a")
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	second, err := db.StartRun("teardown", "/b")
	if err != nil {
		t.Fatal(err)
	}

	runs, err := db.ListRuns()
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	if runs[0].UUID != second || runs[1].UUID != first {
		t.Errorf("runs not ordered most recent first: %s, %s", runs[0].UUID, runs[1].UUID)
	}
}

func TestAppendAndListSteps(t *testing.T) {
	db := openTestDB(t)

	runID, err := db.StartRun("bootstrap", "/mnt/onl/chroot")
	if err != nil {
		t.Fatal(err)
	}
	other, err := db.StartRun("bootstrap", "/other")
	if err != nil {
		t.Fatal(err)
	}

	steps := []string{"rebuild-dev", "rebuild-run", "mount-pseudo"}
	for _, name := range steps {
		if err := db.AppendStep(runID, StepRecord{Name: name, Status: "ok"}); err != nil {
			t.Fatalf("AppendStep(%s) failed: %v", name, err)
		}
	}
	if err := db.AppendStep(other, StepRecord{Name: "rebuild-dev", Status: "failed"}); err != nil {
		t.Fatal(err)
	}

	got, err := db.ListSteps(runID)
	if err != nil {
		t.Fatalf("ListSteps failed: %v", err)
	}
	if len(got) != len(steps) {
		t.Fatalf("got %d steps, want %d", len(got), len(steps))
	}
	for i, name := range steps {
		if got[i].Name != name {
			t.Errorf("step %d = %q, want %q (append order)", i, got[i].Name, name)
		}
		if got[i].Time.IsZero() {
			t.Errorf("step %d missing timestamp", i)
		}
	}
}

func TestClose_Idempotent(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}
