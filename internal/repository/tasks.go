package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ScanTask 周期扫描定义。每次变更整体落盘，启动时重新装载。
type ScanTask struct {
	ID             string  `json:"id"`
	UserID         string  `json:"user_id"`
	Name           string  `json:"name"`
	Cron           string  `json:"cron"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	LocationName   string  `json:"location_name,omitempty"`
	MinElectricity int     `json:"min_electricity"`
	CarModelID     *int    `json:"carmodel_id,omitempty"`
	MaxLoops       int     `json:"max_loops"`
	Token          string  `json:"token"`
	LastRunTime    string  `json:"last_run_time,omitempty"`
	LastRunStatus  string  `json:"last_run_status,omitempty"`
}

// ErrNotExist 指定 ID 的任务不存在
var ErrNotExist = errors.New("scan task does not exist")

// TaskStore 周期任务的文件存储。
// 写入走临时文件 + fsync + rename，崩溃不会留下半截文件。
type TaskStore struct {
	mu    sync.Mutex
	path  string
	tasks []ScanTask
}

// NewTaskStore 创建存储，path 为 JSON 文件路径
func NewTaskStore(path string) *TaskStore {
	return &TaskStore{path: path}
}

// Load 装载已有任务。文件不存在视为空集；文件损坏返回错误，
// 内存中保持空集。
func (s *TaskStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks = nil

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read tasks file: %w", err)
	}

	var tasks []ScanTask
	if err := json.Unmarshal(data, &tasks); err != nil {
		return fmt.Errorf("decode tasks file: %w", err)
	}
	s.tasks = tasks
	return nil
}

// List 所有任务的副本
func (s *TaskStore) List() []ScanTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ScanTask(nil), s.tasks...)
}

// ListByUser 指定账号的任务
func (s *TaskStore) ListByUser(userID string) []ScanTask {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []ScanTask
	for _, t := range s.tasks {
		if t.UserID == userID {
			result = append(result, t)
		}
	}
	return result
}

// Get 按 ID 查找
func (s *TaskStore) Get(id string) (ScanTask, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.tasks {
		if t.ID == id {
			return t, true
		}
	}
	return ScanTask{}, false
}

// Add 追加任务并落盘
func (s *TaskStore) Add(task ScanTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks = append(s.tasks, task)
	return s.saveLocked()
}

// Update 按 ID 替换并落盘
func (s *TaskStore) Update(task ScanTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.tasks {
		if s.tasks[i].ID == task.ID {
			s.tasks[i] = task
			return s.saveLocked()
		}
	}
	return ErrNotExist
}

// Remove 按 ID 删除并落盘
func (s *TaskStore) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.tasks {
		if s.tasks[i].ID == id {
			s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
			return s.saveLocked()
		}
	}
	return ErrNotExist
}

// SetLastRun 记录最近一次执行的时间和结果并落盘
func (s *TaskStore) SetLastRun(id, runTime, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.tasks {
		if s.tasks[i].ID == id {
			s.tasks[i].LastRunTime = runTime
			s.tasks[i].LastRunStatus = status
			return s.saveLocked()
		}
	}
	return ErrNotExist
}

// saveLocked 整体写入：同目录临时文件 + fsync + rename
func (s *TaskStore) saveLocked() error {
	data, err := json.MarshalIndent(s.tasks, "", "  ")
	if err != nil {
		return fmt.Errorf("encode tasks: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
