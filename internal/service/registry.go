package service

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/rohenhonghyuan/7ma-web/internal/config"
	"github.com/rohenhonghyuan/7ma-web/internal/metrics"
	"github.com/rohenhonghyuan/7ma-web/internal/state"
)

var (
	// ErrTaskConflict 同一账号同一车辆已有活动任务
	ErrTaskConflict = errors.New("an active task already exists for this car")
	// ErrNoActiveTask 没有可停止的活动任务
	ErrNoActiveTask = errors.New("no active task for this car")
)

// Registry 预约任务注册表。每个账号一条只追加的任务列表，
// 历史任务保留用于状态展示；检查与追加在同一把锁内完成，
// 保证同一 (账号, 车辆) 至多一个活动任务。
type Registry struct {
	logger  *zap.Logger
	cfg     *config.Config
	factory ClientFactory

	mu          sync.Mutex
	tasks       map[string][]*ReservationLoop
	subscribers []chan state.TaskStatus

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRegistry 创建注册表
func NewRegistry(logger *zap.Logger, cfg *config.Config, factory ClientFactory) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		logger:  logger,
		cfg:     cfg,
		factory: factory,
		tasks:   make(map[string][]*ReservationLoop),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Create 创建并启动预约任务。该车辆已有 pending/running 任务时
// 返回 ErrTaskConflict。
func (r *Registry) Create(userID, carNumber, token string, maxLoops int) (*ReservationLoop, error) {
	if maxLoops <= 0 {
		maxLoops = r.cfg.DefaultMaxLoops
	}

	client, err := r.factory(token)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	for _, task := range r.tasks[userID] {
		if task.carNumber == carNumber && task.Active() {
			r.mu.Unlock()
			client.Close()
			return nil, ErrTaskConflict
		}
	}

	loop := newReservationLoop(r.logger, r.cfg, client, userID, carNumber, maxLoops, r.publish)
	loopCtx, loopCancel := context.WithCancel(r.ctx)
	loop.cancel = loopCancel
	r.tasks[userID] = append(r.tasks[userID], loop)
	r.wg.Add(1)
	r.mu.Unlock()

	metrics.ReservationLoopsStarted.Inc()
	metrics.ActiveReservationLoops.Inc()

	go func() {
		defer r.wg.Done()
		defer loopCancel()
		loop.Run(loopCtx)
		metrics.ActiveReservationLoops.Dec()
		metrics.ReservationLoopsFinished.WithLabelValues(loop.Status().Status).Inc()
	}()

	r.logger.Info("Reservation task created",
		zap.String("user_id", userID),
		zap.String("car_number", carNumber),
		zap.Int("max_loops", maxLoops))
	return loop, nil
}

// Stop 停止指定车辆的活动任务
func (r *Registry) Stop(userID, carNumber string) error {
	r.mu.Lock()
	var target *ReservationLoop
	for _, task := range r.tasks[userID] {
		if task.carNumber == carNumber && task.Active() {
			target = task
			break
		}
	}
	r.mu.Unlock()

	if target == nil {
		return ErrNoActiveTask
	}
	target.Stop()

	r.logger.Info("Reservation task stop requested",
		zap.String("user_id", userID),
		zap.String("car_number", carNumber))
	return nil
}

// List 返回账号全部任务的状态快照，含已结束的
func (r *Registry) List(userID string) []state.TaskStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	tasks := r.tasks[userID]
	result := make([]state.TaskStatus, 0, len(tasks))
	for _, task := range tasks {
		result = append(result, task.Status())
	}
	return result
}

// HasActive 指定车辆是否已有活动任务
func (r *Registry) HasActive(userID, carNumber string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, task := range r.tasks[userID] {
		if task.carNumber == carNumber && task.Active() {
			return true
		}
	}
	return false
}

// Subscribe 订阅状态更新
func (r *Registry) Subscribe() <-chan state.TaskStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch := make(chan state.TaskStatus, 64)
	r.subscribers = append(r.subscribers, ch)
	return ch
}

// publish 向订阅者广播状态变化，慢消费者丢弃
func (r *Registry) publish(status state.TaskStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ch := range r.subscribers {
		select {
		case ch <- status:
		default:
		}
	}
}

// StopAll 停止所有任务并等待退出，用于进程关闭
func (r *Registry) StopAll() {
	r.cancel()
	r.wg.Wait()
	r.logger.Info("All reservation tasks stopped")
}
