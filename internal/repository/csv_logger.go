package repository

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/alexlav17/SafeWatch-ReceiveData/internal/models"

	"go.uber.org/zap"
)

var rawLogHeader = []string{"timestamp", "ecg", "bpm", "accel_x", "accel_y", "accel_z"}

// CSVLogger 可开关的原始数据包二级 CSV 记录（管理操作触发）
type CSVLogger struct {
	dir    string
	logger *zap.Logger

	mu       sync.Mutex
	file     *os.File
	writer   *csv.Writer
	filename string
}

// NewCSVLogger 创建 CSV 记录器；dir 为输出目录
func NewCSVLogger(dir string, logger *zap.Logger) *CSVLogger {
	return &CSVLogger{
		dir:    dir,
		logger: logger,
	}
}

// Start 开始记录；已在记录中则返回当前文件名
func (l *CSVLogger) Start() (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		return l.filename, nil
	}

	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}

	filename := "data_esp32_" + time.Now().Format("20060102_150405") + ".csv"
	f, err := os.Create(filepath.Join(l.dir, filename))
	if err != nil {
		return "", fmt.Errorf("failed to create csv log file: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(rawLogHeader); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write csv header: %w", err)
	}
	w.Flush()

	l.file = f
	l.writer = w
	l.filename = filename
	l.logger.Info("CSV recording started", zap.String("filename", filename))
	return filename, nil
}

// Stop 停止记录；未在记录中则为空操作
func (l *CSVLogger) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}

	l.writer.Flush()
	err := l.file.Close()
	l.file = nil
	l.writer = nil
	l.filename = ""
	l.logger.Info("CSV recording stopped")
	if err != nil {
		return fmt.Errorf("failed to close csv log file: %w", err)
	}
	return nil
}

// Recording 是否在记录中及当前文件名
func (l *CSVLogger) Recording() (bool, string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file != nil, l.filename
}

// Log 记录一个数据包；未在记录中则为空操作，写失败只记日志不中断摄取
func (l *CSVLogger) Log(p *models.SensorPacket) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.writer == nil {
		return
	}

	record := []string{
		p.Timestamp.Format(time.RFC3339Nano),
		formatOptionalInt(p.ECG),
		formatOptionalBPM(p.BPM),
		strconv.FormatFloat(p.X, 'f', 3, 64),
		strconv.FormatFloat(p.Y, 'f', 3, 64),
		strconv.FormatFloat(p.Z, 'f', 3, 64),
	}
	if err := l.writer.Write(record); err != nil {
		l.logger.Error("Failed to write csv record", zap.Error(err))
		return
	}
	l.writer.Flush()
}

func formatOptionalInt(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}
