package state

import (
	"context"
	"fmt"
	"sync"

	"github.com/looplab/fsm"
)

// 预约任务状态常量
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusStopped   = "stopped"
	StatusFailed    = "failed"
)

// 事件常量
const (
	EventStart    = "start"
	EventComplete = "complete"
	EventStop     = "stop"
	EventFail     = "fail"
)

// TaskStatus 任务状态快照
type TaskStatus struct {
	UserID      string `json:"user_id"`
	CarNumber   string `json:"car_number"`
	MaxLoops    int    `json:"max_loops"`
	CurrentLoop int    `json:"current_loop"`
	Status      string `json:"status"`
	Message     string `json:"message"`
}

// Machine 预约任务状态机。
// 生命周期 pending → running → {completed, stopped, failed}，
// 快照读取不阻塞运行中的任务。
type Machine struct {
	mu       sync.RWMutex
	fsm      *fsm.FSM
	status   TaskStatus
	onChange func(TaskStatus)
}

// NewMachine 创建状态机。onChange 在状态或消息变化后被调用（可为 nil）。
func NewMachine(userID, carNumber string, maxLoops int, onChange func(TaskStatus)) *Machine {
	m := &Machine{
		onChange: onChange,
		status: TaskStatus{
			UserID:    userID,
			CarNumber: carNumber,
			MaxLoops:  maxLoops,
			Status:    StatusPending,
			Message:   "task created",
		},
	}

	m.fsm = fsm.NewFSM(
		StatusPending,
		fsm.Events{
			{Name: EventStart, Src: []string{StatusPending}, Dst: StatusRunning},
			{Name: EventComplete, Src: []string{StatusRunning}, Dst: StatusCompleted},
			{Name: EventStop, Src: []string{StatusPending, StatusRunning}, Dst: StatusStopped},
			{Name: EventFail, Src: []string{StatusPending, StatusRunning}, Dst: StatusFailed},
		},
		fsm.Callbacks{},
	)

	return m
}

// Status 获取状态快照
func (m *Machine) Status() TaskStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// CurrentLoop 当前迭代序号
func (m *Machine) CurrentLoop() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status.CurrentLoop
}

// Active 是否处于 pending/running 状态
func (m *Machine) Active() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status.Status == StatusPending || m.status.Status == StatusRunning
}

// Trigger 触发状态迁移
func (m *Machine) Trigger(event, message string) error {
	m.mu.Lock()
	if err := m.fsm.Event(context.Background(), event); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("trigger event %s: %w", event, err)
	}
	m.status.Status = m.fsm.Current()
	if message != "" {
		m.status.Message = message
	}
	snapshot := m.status
	m.mu.Unlock()

	m.notify(snapshot)
	return nil
}

// BeginRound 进入下一轮迭代，返回轮次序号。
// 即使该轮预约失败，轮次也已被消耗。
func (m *Machine) BeginRound() int {
	m.mu.Lock()
	m.status.CurrentLoop++
	round := m.status.CurrentLoop
	m.status.Message = fmt.Sprintf("round %d/%d started", round, m.status.MaxLoops)
	snapshot := m.status
	m.mu.Unlock()

	m.notify(snapshot)
	return round
}

// SetMessage 更新状态消息
func (m *Machine) SetMessage(message string) {
	m.mu.Lock()
	m.status.Message = message
	snapshot := m.status
	m.mu.Unlock()

	m.notify(snapshot)
}

func (m *Machine) notify(snapshot TaskStatus) {
	if m.onChange != nil {
		m.onChange(snapshot)
	}
}
