package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReservationLoopsStarted 启动过的预约循环总数
	ReservationLoopsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sevenma",
		Name:      "reservation_loops_started_total",
		Help:      "Number of reservation loops started.",
	})

	// ReservationLoopsFinished 按终态统计的预约循环数
	ReservationLoopsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sevenma",
		Name:      "reservation_loops_finished_total",
		Help:      "Number of reservation loops finished, by terminal status.",
	}, []string{"status"})

	// ActiveReservationLoops 当前运行中的预约循环数
	ActiveReservationLoops = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sevenma",
		Name:      "reservation_loops_active",
		Help:      "Number of reservation loops currently running.",
	})

	// ScanExecutions 周期扫描执行数，按结果分类
	ScanExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sevenma",
		Name:      "scan_executions_total",
		Help:      "Number of periodic scan executions, by result.",
	}, []string{"result"})
)
