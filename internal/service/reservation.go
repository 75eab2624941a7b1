package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rohenhonghyuan/7ma-web/internal/api/sevenmate"
	"github.com/rohenhonghyuan/7ma-web/internal/config"
	"github.com/rohenhonghyuan/7ma-web/internal/state"
)

// Client 预约循环和周期扫描依赖的远端操作
type Client interface {
	GetUserInfo(ctx context.Context, needCredits bool) (*sevenmate.UserInfo, error)
	GetSurroundingCars(ctx context.Context, longitude, latitude float64) ([]sevenmate.CarInfo, error)
	GetCarInfo(ctx context.Context, carNumber string, needLocation bool) (*sevenmate.CarInfo, error)
	OrderCar(ctx context.Context, carNumber string) (string, error)
	BackCar(ctx context.Context) (string, error)
	Close()
}

// ClientFactory 按凭证构造客户端
type ClientFactory func(token string) (Client, error)

// ReservationLoop 单车预约循环：反复执行预约→等待→主动还车，
// 在免费保留窗口内无限占住一辆车。每个循环持有独立的客户端，
// 退出时释放。
type ReservationLoop struct {
	logger    *zap.Logger
	cfg       *config.Config
	client    Client
	userID    string
	carNumber string
	maxLoops  int
	machine   *state.Machine
	cancel    context.CancelFunc
}

func newReservationLoop(
	logger *zap.Logger,
	cfg *config.Config,
	client Client,
	userID, carNumber string,
	maxLoops int,
	onChange func(state.TaskStatus),
) *ReservationLoop {
	return &ReservationLoop{
		logger:    logger,
		cfg:       cfg,
		client:    client,
		userID:    userID,
		carNumber: carNumber,
		maxLoops:  maxLoops,
		machine:   state.NewMachine(userID, carNumber, maxLoops, onChange),
	}
}

// Status 状态快照，任何时刻可读
func (l *ReservationLoop) Status() state.TaskStatus {
	return l.machine.Status()
}

// Active 是否仍在 pending/running
func (l *ReservationLoop) Active() bool {
	return l.machine.Active()
}

// Stop 请求停止。取消信号在下一个检查点被观察到，
// 延迟不超过一个 tick。
func (l *ReservationLoop) Stop() {
	if l.cancel != nil {
		l.cancel()
	}
}

// Run 执行循环直到轮次用尽、被取消或出现不可恢复错误
func (l *ReservationLoop) Run(ctx context.Context) {
	defer l.client.Close()

	if err := l.machine.Trigger(state.EventStart, "task running"); err != nil {
		l.logger.Error("Failed to start reservation task",
			zap.String("user_id", l.userID),
			zap.String("car_number", l.carNumber),
			zap.Error(err))
		return
	}
	l.logger.Info("Reservation task started",
		zap.String("user_id", l.userID),
		zap.String("car_number", l.carNumber),
		zap.Int("max_loops", l.maxLoops))

	var runErr error

	for l.machine.CurrentLoop() < l.maxLoops && ctx.Err() == nil {
		round := l.machine.BeginRound()
		l.logger.Info("Reservation round started",
			zap.String("user_id", l.userID),
			zap.String("car_number", l.carNumber),
			zap.Int("round", round),
			zap.Int("max_loops", l.maxLoops))

		// 1. 预约
		message, err := l.client.OrderCar(ctx, l.carNumber)
		if err != nil {
			var apiErr *sevenmate.APIError
			if errors.As(err, &apiErr) {
				// 车辆被占用等业务失败：退避后重试，本轮轮次已消耗
				l.machine.SetMessage(fmt.Sprintf("round %d: reserve failed: %s", round, apiErr.Message))
				l.logger.Warn("Reserve failed, backing off",
					zap.String("car_number", l.carNumber),
					zap.Int("round", round),
					zap.Error(err))
				if !l.wait(ctx, l.cfg.ReserveRetryDelay) {
					break
				}
				continue
			}
			runErr = err
			break
		}
		l.machine.SetMessage(fmt.Sprintf("round %d: reserved - %s", round, message))

		// 2. 在免费保留窗口内等待
		if !l.hold(ctx, round) {
			break
		}

		// 3. 主动还车
		returned, err := l.returnCar(ctx, round)
		if err != nil {
			runErr = err
			break
		}
		if !returned {
			break
		}
	}

	switch {
	case runErr != nil:
		l.machine.Trigger(state.EventFail, fmt.Sprintf("task failed: %v", runErr))
		l.logger.Error("Reservation task failed",
			zap.String("user_id", l.userID),
			zap.String("car_number", l.carNumber),
			zap.Error(runErr))
	case ctx.Err() != nil:
		l.machine.Trigger(state.EventStop, "task stopped")
		l.logger.Info("Reservation task stopped",
			zap.String("user_id", l.userID),
			zap.String("car_number", l.carNumber))
	default:
		l.machine.Trigger(state.EventComplete, "all rounds completed")
		l.logger.Info("Reservation task completed",
			zap.String("user_id", l.userID),
			zap.String("car_number", l.carNumber))
	}
}

// hold 等待保留窗口结束。每个 tick 检查一次取消，
// 剩余时间每分钟刷新到状态消息。返回 false 表示被取消。
func (l *ReservationLoop) hold(ctx context.Context, round int) bool {
	remaining := l.cfg.HoldDuration
	for remaining > 0 {
		if remaining == l.cfg.HoldDuration || remaining%time.Minute == 0 {
			minutes := int((remaining + time.Minute - 1) / time.Minute)
			l.machine.SetMessage(fmt.Sprintf("round %d: returning car in %d minute(s)", round, minutes))
		}
		step := l.cfg.TickInterval
		if step > remaining {
			step = remaining
		}
		if !l.wait(ctx, step) {
			return false
		}
		remaining -= step
	}
	return true
}

// returnCar 主动还车。业务失败重试至多 ReturnMaxRetries 次，
// 每次尝试前检查取消；全部失败返回错误让整个任务终止——
// 继续占车会产生计费风险。返回 (false, nil) 表示被取消。
func (l *ReservationLoop) returnCar(ctx context.Context, round int) (bool, error) {
	for attempt := 1; attempt <= l.cfg.ReturnMaxRetries; attempt++ {
		if ctx.Err() != nil {
			return false, nil
		}

		l.machine.SetMessage(fmt.Sprintf("round %d: returning car (attempt %d/%d)", round, attempt, l.cfg.ReturnMaxRetries))
		_, err := l.client.BackCar(ctx)
		if err == nil {
			l.machine.SetMessage(fmt.Sprintf("round %d: car returned, preparing next round", round))
			l.logger.Info("Car returned",
				zap.String("user_id", l.userID),
				zap.String("car_number", l.carNumber),
				zap.Int("round", round))
			if !l.wait(ctx, l.cfg.SettleDelay) {
				return false, nil
			}
			return true, nil
		}

		var apiErr *sevenmate.APIError
		if !errors.As(err, &apiErr) {
			return false, err
		}
		l.machine.SetMessage(fmt.Sprintf("round %d: return failed (%s), retrying", round, apiErr.Message))
		l.logger.Warn("Return car failed",
			zap.String("car_number", l.carNumber),
			zap.Int("round", round),
			zap.Int("attempt", attempt),
			zap.Error(err))
		if !l.wait(ctx, l.cfg.ReturnRetryDelay) {
			return false, nil
		}
	}

	l.machine.SetMessage("return failed repeatedly, task aborted to avoid charges")
	return false, fmt.Errorf("return car failed after %d attempts", l.cfg.ReturnMaxRetries)
}

// wait 可取消的等待，返回 false 表示在等待中被取消
func (l *ReservationLoop) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
