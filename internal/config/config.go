package config

import (
	"os"
	"strconv"
)

// Config 遥测服务配置
type Config struct {
	// UDP 接收
	UDP struct {
		Host string
		Port int
	}

	// HTTP API
	HTTP struct {
		Addr string
	}

	// 存储路径
	Storage struct {
		DBPath        string // SQLite 数据库文件
		AnomaliesFile string // 异常事件归档 CSV
		AnomaliesDir  string // 每个事件的 JSON 快照目录
		DataDir       string // 辅助 CSV 记录目录
	}

	// 事件流
	Stream struct {
		EventBacklog     int // 有界事件日志容量
		KeepAliveSeconds int // SSE 保活间隔（秒）
		HistoryRows      int // 连接时回放的历史行数
	}

	// 事件判定
	Episode struct {
		MinDurationSeconds int // 异常事件最短持续时间（秒）
	}

	// 外部通知（可选，URL 为空时禁用）
	Webhook struct {
		URL            string
		TimeoutSeconds int
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.UDP.Host = getEnv("UDP_HOST", "0.0.0.0")
	cfg.UDP.Port = getEnvInt("UDP_PORT", 3333)

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	cfg.Storage.DBPath = getEnv("DB_PATH", "data/esp32_data.db")
	cfg.Storage.AnomaliesFile = getEnv("ANOMALIES_FILE", "data/anomalies_log.csv")
	cfg.Storage.AnomaliesDir = getEnv("ANOMALIES_DIR", "data/anomalies_data")
	cfg.Storage.DataDir = getEnv("DATA_DIR", "data")

	cfg.Stream.EventBacklog = getEnvInt("EVENT_BACKLOG", 1000)
	cfg.Stream.KeepAliveSeconds = getEnvInt("KEEPALIVE_SECONDS", 15)
	cfg.Stream.HistoryRows = getEnvInt("HISTORY_ROWS", 200)

	cfg.Episode.MinDurationSeconds = getEnvInt("MIN_EPISODE_SECONDS", 2)

	cfg.Webhook.URL = getEnv("WEBHOOK_URL", "")
	cfg.Webhook.TimeoutSeconds = getEnvInt("WEBHOOK_TIMEOUT_SECONDS", 5)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return i
}
