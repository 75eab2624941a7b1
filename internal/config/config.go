package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	ServerPort string
	Debug      bool
	StaticDir  string

	// 7mate API
	APIBaseURL string

	// 周期任务存储路径
	TasksFile string

	// 用户信息缓存
	UserCacheTTL time.Duration

	// 预约循环参数
	HoldDuration      time.Duration // 免费保留时长，到期前主动还车
	TickInterval      time.Duration // 等待期间检查停止信号的粒度
	ReserveRetryDelay time.Duration // 预约失败后的重试间隔
	ReturnRetryDelay  time.Duration // 还车失败后的重试间隔
	ReturnMaxRetries  int           // 还车最大重试次数
	SettleDelay       time.Duration // 还车成功后等待订单状态生效
	DefaultMaxLoops   int           // 默认预约循环次数
}

func Load() (*Config, error) {
	// 尝试加载 .env 文件（可选）
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort:        getEnv("PORT", "8000"),
		Debug:             getEnvBool("DEBUG", false),
		StaticDir:         getEnv("STATIC_DIR", ""),
		APIBaseURL:        getEnv("API_BASE_URL", "https://newmapi.7mate.cn/api/"),
		TasksFile:         getEnv("TASKS_FILE", "periodic_tasks.json"),
		UserCacheTTL:      getEnvDuration("USER_CACHE_TTL", 5*time.Minute),
		HoldDuration:      getEnvDuration("HOLD_DURATION", 24*time.Minute),
		TickInterval:      getEnvDuration("TICK_INTERVAL", time.Second),
		ReserveRetryDelay: getEnvDuration("RESERVE_RETRY_DELAY", 60*time.Second),
		ReturnRetryDelay:  getEnvDuration("RETURN_RETRY_DELAY", 15*time.Second),
		ReturnMaxRetries:  getEnvInt("RETURN_MAX_RETRIES", 12),
		SettleDelay:       getEnvDuration("SETTLE_DELAY", 5*time.Second),
		DefaultMaxLoops:   getEnvInt("DEFAULT_MAX_LOOPS", 10),
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		n, err := strconv.Atoi(value)
		if err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return defaultValue
}
