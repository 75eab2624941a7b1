package repository

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) (*TaskStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tasks.json")
	return NewTaskStore(path), path
}

func sampleTask(id, userID string) ScanTask {
	model := 2
	return ScanTask{
		ID:             id,
		UserID:         userID,
		Name:           "morning scan",
		Cron:           "0 8 * * 1-5",
		Latitude:       30.5,
		Longitude:      114.3,
		LocationName:   "east gate",
		MinElectricity: 50,
		CarModelID:     &model,
		MaxLoops:       10,
		Token:          "token-" + userID,
	}
}

func TestLoadMissingFile(t *testing.T) {
	store, _ := newTestStore(t)
	if err := store.Load(); err != nil {
		t.Fatalf("Load on missing file: %v", err)
	}
	if got := store.List(); len(got) != 0 {
		t.Fatalf("List after empty load = %d tasks, want 0", len(got))
	}
}

func TestLoadCorruptFile(t *testing.T) {
	store, path := newTestStore(t)
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := store.Load(); err == nil {
		t.Fatal("Load on corrupt file succeeded, want error")
	}
	if got := store.List(); len(got) != 0 {
		t.Fatalf("List after corrupt load = %d tasks, want 0", len(got))
	}
}

func TestAddPersistsAcrossReload(t *testing.T) {
	store, path := newTestStore(t)
	task := sampleTask("t1", "100")
	if err := store.Add(task); err != nil {
		t.Fatalf("Add: %v", err)
	}

	reloaded := NewTaskStore(path)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	got, ok := reloaded.Get("t1")
	if !ok {
		t.Fatal("task t1 missing after reload")
	}
	if got.Name != task.Name || got.Cron != task.Cron || got.Token != task.Token {
		t.Fatalf("reloaded task = %+v, want %+v", got, task)
	}
	if got.CarModelID == nil || *got.CarModelID != 2 {
		t.Fatalf("reloaded carmodel_id = %v, want 2", got.CarModelID)
	}
}

func TestUpdateAndRemove(t *testing.T) {
	store, _ := newTestStore(t)
	if err := store.Add(sampleTask("t1", "100")); err != nil {
		t.Fatalf("Add: %v", err)
	}

	updated := sampleTask("t1", "100")
	updated.Name = "evening scan"
	if err := store.Update(updated); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, _ := store.Get("t1")
	if got.Name != "evening scan" {
		t.Fatalf("Name after update = %q", got.Name)
	}

	if err := store.Update(sampleTask("missing", "100")); !errors.Is(err, ErrNotExist) {
		t.Fatalf("Update missing = %v, want ErrNotExist", err)
	}

	if err := store.Remove("t1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok := store.Get("t1"); ok {
		t.Fatal("task t1 still present after Remove")
	}
	if err := store.Remove("t1"); !errors.Is(err, ErrNotExist) {
		t.Fatalf("second Remove = %v, want ErrNotExist", err)
	}
}

func TestListByUser(t *testing.T) {
	store, _ := newTestStore(t)
	store.Add(sampleTask("t1", "100"))
	store.Add(sampleTask("t2", "200"))
	store.Add(sampleTask("t3", "100"))

	got := store.ListByUser("100")
	if len(got) != 2 {
		t.Fatalf("ListByUser(100) = %d tasks, want 2", len(got))
	}
	for _, task := range got {
		if task.UserID != "100" {
			t.Fatalf("ListByUser returned task of user %s", task.UserID)
		}
	}
}

func TestSetLastRun(t *testing.T) {
	store, path := newTestStore(t)
	store.Add(sampleTask("t1", "100"))

	if err := store.SetLastRun("t1", "2026-08-31T08:00:00Z", "Failed: No suitable car found"); err != nil {
		t.Fatalf("SetLastRun: %v", err)
	}

	reloaded := NewTaskStore(path)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	got, _ := reloaded.Get("t1")
	if got.LastRunTime != "2026-08-31T08:00:00Z" {
		t.Fatalf("LastRunTime = %q", got.LastRunTime)
	}
	if got.LastRunStatus != "Failed: No suitable car found" {
		t.Fatalf("LastRunStatus = %q", got.LastRunStatus)
	}
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	store, path := newTestStore(t)
	for i := 0; i < 5; i++ {
		if err := store.Add(sampleTask("t"+strings.Repeat("x", i+1), "100")); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.Name() != filepath.Base(path) {
			t.Fatalf("unexpected file left in store dir: %s", e.Name())
		}
	}
}
