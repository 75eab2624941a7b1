package service

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/rohenhonghyuan/7ma-web/internal/state"
)

func newTestRegistry(t *testing.T, factory ClientFactory) *Registry {
	t.Helper()
	cfg := testConfig()
	cfg.HoldDuration = time.Hour // 任务保持活动，便于冲突/停止测试
	registry := NewRegistry(zap.NewNop(), cfg, factory)
	t.Cleanup(registry.StopAll)
	return registry
}

func TestRegistryCreateConflict(t *testing.T) {
	registry := newTestRegistry(t, func(token string) (Client, error) {
		return &fakeClient{}, nil
	})

	if _, err := registry.Create("100", "A123", "tok", 5); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	if _, err := registry.Create("100", "A123", "tok", 5); !errors.Is(err, ErrTaskConflict) {
		t.Fatalf("duplicate Create = %v, want ErrTaskConflict", err)
	}

	// 其他车辆和其他账号不受影响
	if _, err := registry.Create("100", "B456", "tok", 5); err != nil {
		t.Fatalf("Create for other car: %v", err)
	}
	if _, err := registry.Create("200", "A123", "tok", 5); err != nil {
		t.Fatalf("Create for other user: %v", err)
	}
}

func TestRegistryStop(t *testing.T) {
	registry := newTestRegistry(t, func(token string) (Client, error) {
		return &fakeClient{}, nil
	})

	if err := registry.Stop("100", "A123"); !errors.Is(err, ErrNoActiveTask) {
		t.Fatalf("Stop with no task = %v, want ErrNoActiveTask", err)
	}

	loop, err := registry.Create("100", "A123", "tok", 5)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	waitFor(t, time.Second, func() bool {
		return loop.Status().Status == state.StatusRunning
	})

	if err := registry.Stop("100", "A123"); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	waitFor(t, time.Second, func() bool {
		return loop.Status().Status == state.StatusStopped
	})

	if err := registry.Stop("100", "A123"); !errors.Is(err, ErrNoActiveTask) {
		t.Fatalf("second Stop = %v, want ErrNoActiveTask", err)
	}

	// 任务结束后可为同一车辆再次创建
	if _, err := registry.Create("100", "A123", "tok", 5); err != nil {
		t.Fatalf("Create after stop: %v", err)
	}
}

func TestRegistryListKeepsFinishedTasks(t *testing.T) {
	cfg := testConfig()
	registry := NewRegistry(zap.NewNop(), cfg, func(token string) (Client, error) {
		return &fakeClient{}, nil
	})
	t.Cleanup(registry.StopAll)

	loop, err := registry.Create("100", "A123", "tok", 1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	waitFor(t, time.Second, func() bool {
		return loop.Status().Status == state.StatusCompleted
	})

	statuses := registry.List("100")
	if len(statuses) != 1 {
		t.Fatalf("List = %d entries, want 1", len(statuses))
	}
	if statuses[0].Status != state.StatusCompleted {
		t.Fatalf("listed status = %s", statuses[0].Status)
	}

	if got := registry.List("other"); len(got) != 0 {
		t.Fatalf("List for other user = %d entries", len(got))
	}
}

func TestRegistryHasActive(t *testing.T) {
	registry := newTestRegistry(t, func(token string) (Client, error) {
		return &fakeClient{}, nil
	})

	if registry.HasActive("100", "A123") {
		t.Fatal("HasActive true on empty registry")
	}
	if _, err := registry.Create("100", "A123", "tok", 5); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !registry.HasActive("100", "A123") {
		t.Fatal("HasActive false for running task")
	}
	if registry.HasActive("100", "B456") {
		t.Fatal("HasActive true for wrong car")
	}
}

func TestRegistrySubscribe(t *testing.T) {
	registry := newTestRegistry(t, func(token string) (Client, error) {
		return &fakeClient{}, nil
	})

	updates := registry.Subscribe()
	if _, err := registry.Create("100", "A123", "tok", 5); err != nil {
		t.Fatalf("Create: %v", err)
	}

	select {
	case status := <-updates:
		if status.UserID != "100" || status.CarNumber != "A123" {
			t.Fatalf("update = %+v", status)
		}
	case <-time.After(time.Second):
		t.Fatal("no status update received")
	}
}

func TestRegistryFactoryError(t *testing.T) {
	wantErr := errors.New("bad token")
	registry := newTestRegistry(t, func(token string) (Client, error) {
		return nil, wantErr
	})

	if _, err := registry.Create("100", "A123", "tok", 5); !errors.Is(err, wantErr) {
		t.Fatalf("Create = %v, want %v", err, wantErr)
	}
	if got := registry.List("100"); len(got) != 0 {
		t.Fatalf("List after failed create = %d entries", len(got))
	}
}
