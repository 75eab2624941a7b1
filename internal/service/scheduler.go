package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rohenhonghyuan/7ma-web/internal/config"
	"github.com/rohenhonghyuan/7ma-web/internal/metrics"
	"github.com/rohenhonghyuan/7ma-web/internal/repository"
	"github.com/rohenhonghyuan/7ma-web/pkg/cron"
)

var (
	// ErrTaskNotFound 周期任务不存在
	ErrTaskNotFound = errors.New("periodic task not found")
	// ErrPermissionDenied 周期任务属于其他账号
	ErrPermissionDenied = errors.New("periodic task belongs to another user")
)

// Scheduler 周期扫描调度器。每个任务一个 cron 触发协程，
// 触发时在目标区域内寻找满足电量/型号条件的车辆，
// 为第一辆合格且未被占用的车启动预约循环。
type Scheduler struct {
	logger   *zap.Logger
	cfg      *config.Config
	store    *repository.TaskStore
	registry *Registry
	factory  ClientFactory

	mu   sync.Mutex
	jobs map[string]context.CancelFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler 创建调度器
func NewScheduler(
	logger *zap.Logger,
	cfg *config.Config,
	store *repository.TaskStore,
	registry *Registry,
	factory ClientFactory,
) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		logger:   logger,
		cfg:      cfg,
		store:    store,
		registry: registry,
		factory:  factory,
		jobs:     make(map[string]context.CancelFunc),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start 重新装配存储中的全部任务触发器
func (s *Scheduler) Start() {
	tasks := s.store.List()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, task := range tasks {
		if err := s.armLocked(task); err != nil {
			s.logger.Error("Failed to arm periodic task",
				zap.String("task_id", task.ID),
				zap.String("cron", task.Cron),
				zap.Error(err))
		}
	}
	s.logger.Info("Scheduler started", zap.Int("tasks", len(tasks)))
}

// Shutdown 停止所有触发器并等待退出
func (s *Scheduler) Shutdown() {
	s.cancel()
	s.wg.Wait()
	s.logger.Info("Scheduler shut down")
}

// Add 创建周期任务：分配 ID、落盘、装配触发器
func (s *Scheduler) Add(task repository.ScanTask) (repository.ScanTask, error) {
	if _, err := cron.Parse(task.Cron); err != nil {
		return repository.ScanTask{}, err
	}
	if task.MaxLoops <= 0 {
		task.MaxLoops = s.cfg.DefaultMaxLoops
	}
	task.ID = uuid.NewString()

	if err := s.store.Add(task); err != nil {
		return repository.ScanTask{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.armLocked(task); err != nil {
		return repository.ScanTask{}, err
	}

	s.logger.Info("Periodic task added",
		zap.String("task_id", task.ID),
		zap.String("name", task.Name),
		zap.String("cron", task.Cron))
	return task, nil
}

// Update 更新周期任务，要求调用者是任务所有者
func (s *Scheduler) Update(id, userID string, updates repository.ScanTask) (repository.ScanTask, error) {
	existing, ok := s.store.Get(id)
	if !ok {
		return repository.ScanTask{}, ErrTaskNotFound
	}
	if existing.UserID != userID {
		return repository.ScanTask{}, ErrPermissionDenied
	}
	if _, err := cron.Parse(updates.Cron); err != nil {
		return repository.ScanTask{}, err
	}

	updates.ID = id
	updates.UserID = userID
	if updates.MaxLoops <= 0 {
		updates.MaxLoops = s.cfg.DefaultMaxLoops
	}
	updates.LastRunTime = existing.LastRunTime
	updates.LastRunStatus = existing.LastRunStatus

	if err := s.store.Update(updates); err != nil {
		return repository.ScanTask{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.disarmLocked(id)
	if err := s.armLocked(updates); err != nil {
		return repository.ScanTask{}, err
	}

	s.logger.Info("Periodic task updated", zap.String("task_id", id))
	return updates, nil
}

// Remove 删除周期任务，要求调用者是任务所有者
func (s *Scheduler) Remove(id, userID string) error {
	existing, ok := s.store.Get(id)
	if !ok {
		return ErrTaskNotFound
	}
	if existing.UserID != userID {
		return ErrPermissionDenied
	}

	if err := s.store.Remove(id); err != nil {
		return err
	}

	s.mu.Lock()
	s.disarmLocked(id)
	s.mu.Unlock()

	s.logger.Info("Periodic task removed", zap.String("task_id", id))
	return nil
}

// TasksForUser 指定账号的周期任务
func (s *Scheduler) TasksForUser(userID string) []repository.ScanTask {
	return s.store.ListByUser(userID)
}

// armLocked 为任务启动触发协程，调用方持有 s.mu
func (s *Scheduler) armLocked(task repository.ScanTask) error {
	schedule, err := cron.Parse(task.Cron)
	if err != nil {
		return err
	}

	jobCtx, jobCancel := context.WithCancel(s.ctx)
	s.jobs[task.ID] = jobCancel

	s.wg.Add(1)
	go s.runJob(jobCtx, task.ID, schedule)
	return nil
}

// disarmLocked 停止任务触发协程，调用方持有 s.mu
func (s *Scheduler) disarmLocked(id string) {
	if cancel, ok := s.jobs[id]; ok {
		cancel()
		delete(s.jobs, id)
	}
}

// runJob 按 cron 节奏触发执行
func (s *Scheduler) runJob(ctx context.Context, taskID string, schedule cron.Schedule) {
	defer s.wg.Done()

	for {
		next, err := schedule.Next(time.Now())
		if err != nil {
			s.logger.Error("No next trigger time for periodic task",
				zap.String("task_id", taskID),
				zap.Error(err))
			return
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		// 每次触发读最新定义，更新在下一次触发生效
		task, ok := s.store.Get(taskID)
		if !ok {
			return
		}
		s.runOnce(ctx, task)
	}
}

// runOnce 执行一次扫描并持久化结果
func (s *Scheduler) runOnce(ctx context.Context, task repository.ScanTask) {
	s.logger.Info("Executing periodic task",
		zap.String("task_id", task.ID),
		zap.String("name", task.Name))

	outcome := s.execute(ctx, task)

	switch {
	case strings.HasPrefix(outcome, "Success"):
		metrics.ScanExecutions.WithLabelValues("success").Inc()
	case outcome == "Failed: No suitable car found":
		metrics.ScanExecutions.WithLabelValues("no_match").Inc()
	default:
		metrics.ScanExecutions.WithLabelValues("error").Inc()
	}

	if err := s.store.SetLastRun(task.ID, time.Now().Format(time.RFC3339), outcome); err != nil {
		s.logger.Error("Failed to persist periodic task outcome",
			zap.String("task_id", task.ID),
			zap.Error(err))
	}
}

// execute 单次扫描。任何异常都收敛为结果字符串，
// 不向上传播、不影响进程。
func (s *Scheduler) execute(ctx context.Context, task repository.ScanTask) (outcome string) {
	defer func() {
		if r := recover(); r != nil {
			outcome = fmt.Sprintf("Failed: %v", r)
			s.logger.Error("Periodic task panicked",
				zap.String("task_id", task.ID),
				zap.Any("panic", r))
		}
	}()

	client, err := s.factory(task.Token)
	if err != nil {
		return fmt.Sprintf("Failed: %v", err)
	}
	defer client.Close()

	user, err := client.GetUserInfo(ctx, false)
	if err != nil {
		return fmt.Sprintf("Failed: %v", err)
	}
	userID := strconv.FormatInt(user.ID, 10)

	cars, err := client.GetSurroundingCars(ctx, task.Longitude, task.Latitude)
	if err != nil {
		return fmt.Sprintf("Failed: %v", err)
	}

	// 过滤型号并打乱顺序，避免多辆合格时总是盯住同一辆
	var eligible []string
	for _, car := range cars {
		if task.CarModelID != nil && int(car.CarModelID) != *task.CarModelID {
			continue
		}
		eligible = append(eligible, car.Number)
	}
	rand.Shuffle(len(eligible), func(i, j int) {
		eligible[i], eligible[j] = eligible[j], eligible[i]
	})

	for _, number := range eligible {
		// 已有活动任务的车辆跳过
		if s.registry.HasActive(userID, number) {
			continue
		}

		detail, err := client.GetCarInfo(ctx, number, true)
		if err != nil {
			s.logger.Warn("Could not inspect car",
				zap.String("task_id", task.ID),
				zap.String("car_number", number),
				zap.Error(err))
			continue
		}

		electricity, err := parseElectricity(detail.Electricity)
		if err != nil {
			s.logger.Warn("Could not parse car electricity",
				zap.String("car_number", number),
				zap.String("electricity", detail.Electricity),
				zap.Error(err))
			continue
		}
		if electricity < task.MinElectricity {
			continue
		}

		s.logger.Info("Found suitable car",
			zap.String("task_id", task.ID),
			zap.String("car_number", number),
			zap.Int("electricity", electricity))

		if _, err := s.registry.Create(userID, number, task.Token, task.MaxLoops); err != nil {
			return fmt.Sprintf("Failed: %v", err)
		}
		return fmt.Sprintf("Success: Created task for car %s", number)
	}

	s.logger.Info("No suitable car found for periodic task",
		zap.String("task_id", task.ID))
	return "Failed: No suitable car found"
}

// parseElectricity 解析形如 "87%" 的电量字符串
func parseElectricity(value string) (int, error) {
	if value == "" {
		return 0, errors.New("empty electricity value")
	}
	return strconv.Atoi(strings.TrimSuffix(value, "%"))
}
