package service

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/rohenhonghyuan/7ma-web/internal/api/sevenmate"
	"github.com/rohenhonghyuan/7ma-web/internal/repository"
)

type schedulerFixture struct {
	scheduler *Scheduler
	registry  *Registry
	store     *repository.TaskStore

	user        *sevenmate.UserInfo
	surrounding []sevenmate.CarInfo
	details     map[string]*sevenmate.CarInfo
}

func newSchedulerFixture(t *testing.T) *schedulerFixture {
	t.Helper()

	f := &schedulerFixture{
		user:    &sevenmate.UserInfo{ID: 42},
		details: make(map[string]*sevenmate.CarInfo),
	}

	factory := func(token string) (Client, error) {
		return &fakeClient{
			user:        f.user,
			surrounding: f.surrounding,
			details:     f.details,
		}, nil
	}

	cfg := testConfig()
	cfg.HoldDuration = time.Hour // 扫描创建的任务保持活动，便于断言
	f.store = repository.NewTaskStore(filepath.Join(t.TempDir(), "tasks.json"))
	f.registry = NewRegistry(zap.NewNop(), cfg, factory)
	f.scheduler = NewScheduler(zap.NewNop(), cfg, f.store, f.registry, factory)
	t.Cleanup(func() {
		f.scheduler.Shutdown()
		f.registry.StopAll()
	})
	return f
}

func (f *schedulerFixture) addCar(number string, model sevenmate.CarModel, electricity string) {
	f.surrounding = append(f.surrounding, sevenmate.CarInfo{Number: number, CarModelID: model})
	f.details[number] = &sevenmate.CarInfo{Number: number, CarModelID: model, Electricity: electricity}
}

func scanTask(minElectricity int) repository.ScanTask {
	return repository.ScanTask{
		ID:             "scan-1",
		UserID:         "42",
		Name:           "test scan",
		Cron:           "0 8 * * *",
		Latitude:       30.5,
		Longitude:      114.3,
		MinElectricity: minElectricity,
		MaxLoops:       3,
		Token:          "tok",
	}
}

func TestExecuteNoCars(t *testing.T) {
	f := newSchedulerFixture(t)

	outcome := f.scheduler.execute(context.Background(), scanTask(50))
	if outcome != "Failed: No suitable car found" {
		t.Fatalf("outcome = %q", outcome)
	}
	if got := f.registry.List("42"); len(got) != 0 {
		t.Fatalf("registry has %d tasks, want 0", len(got))
	}
}

func TestExecuteCreatesTaskForQualifyingCar(t *testing.T) {
	f := newSchedulerFixture(t)
	f.addCar("A123", sevenmate.ModelEbike, "80%")

	outcome := f.scheduler.execute(context.Background(), scanTask(50))
	if outcome != "Success: Created task for car A123" {
		t.Fatalf("outcome = %q", outcome)
	}
	if !f.registry.HasActive("42", "A123") {
		t.Fatal("no active task created for A123")
	}
}

func TestExecuteSkipsLowElectricity(t *testing.T) {
	f := newSchedulerFixture(t)
	f.addCar("A123", sevenmate.ModelEbike, "30%")

	outcome := f.scheduler.execute(context.Background(), scanTask(50))
	if outcome != "Failed: No suitable car found" {
		t.Fatalf("outcome = %q", outcome)
	}
}

func TestExecuteFiltersByModel(t *testing.T) {
	f := newSchedulerFixture(t)
	f.addCar("A123", sevenmate.ModelEbike, "90%")

	task := scanTask(50)
	bicycle := int(sevenmate.ModelBicycle)
	task.CarModelID = &bicycle

	outcome := f.scheduler.execute(context.Background(), task)
	if outcome != "Failed: No suitable car found" {
		t.Fatalf("outcome = %q", outcome)
	}
}

func TestExecuteSkipsCarWithActiveTask(t *testing.T) {
	f := newSchedulerFixture(t)
	f.addCar("A123", sevenmate.ModelEbike, "90%")

	if _, err := f.registry.Create("42", "A123", "tok", 3); err != nil {
		t.Fatalf("Create: %v", err)
	}

	outcome := f.scheduler.execute(context.Background(), scanTask(50))
	if outcome != "Failed: No suitable car found" {
		t.Fatalf("outcome = %q", outcome)
	}
}

func TestExecutePicksAmongMultipleCars(t *testing.T) {
	f := newSchedulerFixture(t)
	f.addCar("A123", sevenmate.ModelEbike, "20%")
	f.addCar("B456", sevenmate.ModelEbike, "85%")
	f.addCar("C789", sevenmate.ModelEbike, "15%")

	outcome := f.scheduler.execute(context.Background(), scanTask(50))
	if outcome != "Success: Created task for car B456" {
		t.Fatalf("outcome = %q", outcome)
	}
}

func TestAddRejectsBadCron(t *testing.T) {
	f := newSchedulerFixture(t)

	task := scanTask(50)
	task.Cron = "not a cron"
	if _, err := f.scheduler.Add(task); err == nil {
		t.Fatal("Add with invalid cron succeeded")
	}
}

func TestAddAssignsIDAndPersists(t *testing.T) {
	f := newSchedulerFixture(t)

	added, err := f.scheduler.Add(scanTask(50))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if added.ID == "" || added.ID == "scan-1" {
		t.Fatalf("Add did not assign a fresh ID: %q", added.ID)
	}
	if _, ok := f.store.Get(added.ID); !ok {
		t.Fatal("added task not in store")
	}
}

func TestUpdateOwnershipAndLastRunPreserved(t *testing.T) {
	f := newSchedulerFixture(t)

	added, err := f.scheduler.Add(scanTask(50))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := f.store.SetLastRun(added.ID, "2026-08-31T08:00:00Z", "Success: Created task for car A123"); err != nil {
		t.Fatalf("SetLastRun: %v", err)
	}

	if _, err := f.scheduler.Update("missing", "42", scanTask(60)); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("Update missing = %v, want ErrTaskNotFound", err)
	}
	if _, err := f.scheduler.Update(added.ID, "999", scanTask(60)); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("Update by other user = %v, want ErrPermissionDenied", err)
	}

	updated, err := f.scheduler.Update(added.ID, "42", scanTask(60))
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.MinElectricity != 60 {
		t.Fatalf("MinElectricity = %d", updated.MinElectricity)
	}
	if updated.LastRunTime != "2026-08-31T08:00:00Z" {
		t.Fatalf("LastRunTime lost on update: %q", updated.LastRunTime)
	}
	if !strings.HasPrefix(updated.LastRunStatus, "Success") {
		t.Fatalf("LastRunStatus lost on update: %q", updated.LastRunStatus)
	}
}

func TestRemoveOwnership(t *testing.T) {
	f := newSchedulerFixture(t)

	added, err := f.scheduler.Add(scanTask(50))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := f.scheduler.Remove(added.ID, "999"); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("Remove by other user = %v, want ErrPermissionDenied", err)
	}
	if err := f.scheduler.Remove(added.ID, "42"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := f.scheduler.Remove(added.ID, "42"); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("second Remove = %v, want ErrTaskNotFound", err)
	}
	if _, ok := f.store.Get(added.ID); ok {
		t.Fatal("removed task still in store")
	}
}

func TestParseElectricity(t *testing.T) {
	cases := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"87%", 87, false},
		{"100%", 100, false},
		{"5", 5, false},
		{"", 0, true},
		{"abc", 0, true},
	}
	for _, tc := range cases {
		got, err := parseElectricity(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("parseElectricity(%q) succeeded", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseElectricity(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("parseElectricity(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
