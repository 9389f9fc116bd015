package repository

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/alexlav17/SafeWatch-ReceiveData/internal/models"

	"go.uber.org/zap"
)

// 归档 CSV 表头（顺序固定，读写两侧共用）
var archiveHeader = []string{
	"start_time", "end_time", "duration_seconds",
	"anomaly_type", "bpm_min", "bpm_max", "bpm_avg",
	"accel_x_max", "accel_y_max", "accel_z_max",
	"severity", "description",
}

// 事件 ID 由开始时间派生，只含数字和下划线
var episodeIDPattern = regexp.MustCompile(`^[0-9_]+$`)

// AnomalyArchive 异常事件归档：CSV 汇总行 + 按事件 ID 的原始采样 JSON 快照。
// 追加写；唯一的破坏性操作是带自动备份的 Clear。
type AnomalyArchive struct {
	csvPath string
	dataDir string
	mu      sync.Mutex
	logger  *zap.Logger
}

// NewAnomalyArchive 创建归档仓库
func NewAnomalyArchive(csvPath, dataDir string, logger *zap.Logger) *AnomalyArchive {
	return &AnomalyArchive{
		csvPath: csvPath,
		dataDir: dataDir,
		logger:  logger,
	}
}

// Init 初始化归档文件（不存在时写入表头）和快照目录
func (a *AnomalyArchive) Init() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.initLocked()
}

func (a *AnomalyArchive) initLocked() error {
	if err := os.MkdirAll(a.dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	if _, err := os.Stat(a.csvPath); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat archive file: %w", err)
	}

	f, err := os.Create(a.csvPath)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(archiveHeader); err != nil {
		return fmt.Errorf("failed to write archive header: %w", err)
	}
	w.Flush()
	return w.Error()
}

// episodeSnapshot 每事件 JSON 快照（后续可视化用）
type episodeSnapshot struct {
	ID        string                 `json:"id"`
	StartTime string                 `json:"start_time"`
	EndTime   string                 `json:"end_time"`
	Duration  float64                `json:"duration"`
	Category  string                 `json:"type"`
	Severity  string                 `json:"severity"`
	Data      []models.EpisodeSample `json:"data"`
}

// ArchiveEpisode 写入一条归档行和对应的采样快照文件
func (a *AnomalyArchive) ArchiveEpisode(episode *models.Episode, summary *models.EpisodeSummary) error {
	if episode == nil || summary == nil {
		return fmt.Errorf("episode and summary are required")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.initLocked(); err != nil {
		return err
	}

	// 1. 原始采样快照（按事件 ID 存放）
	snapshot := episodeSnapshot{
		ID:        episode.ID,
		StartTime: summary.StartTime,
		EndTime:   summary.EndTime,
		Duration:  summary.DurationSeconds,
		Category:  episode.Category,
		Severity:  episode.Severity,
		Data:      episode.Samples,
	}
	snapshotJSON, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal episode snapshot: %w", err)
	}
	snapshotPath := filepath.Join(a.dataDir, "anomaly_"+episode.ID+".json")
	if err := os.WriteFile(snapshotPath, snapshotJSON, 0644); err != nil {
		return fmt.Errorf("failed to write episode snapshot: %w", err)
	}

	// 2. CSV 汇总行
	f, err := os.OpenFile(a.csvPath, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open archive file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	record := []string{
		summary.StartTime,
		summary.EndTime,
		fmt.Sprintf("%.1f", summary.DurationSeconds),
		summary.Category,
		formatOptionalBPM(summary.BPMMin),
		formatOptionalBPM(summary.BPMMax),
		formatOptionalBPM(summary.BPMAvg),
		fmt.Sprintf("%.3f", summary.AccelXMax),
		fmt.Sprintf("%.3f", summary.AccelYMax),
		fmt.Sprintf("%.3f", summary.AccelZMax),
		summary.Severity,
		summary.Description,
	}
	if err := w.Write(record); err != nil {
		return fmt.Errorf("failed to write archive record: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush archive record: %w", err)
	}

	a.logger.Info("Episode archived",
		zap.String("episode_id", episode.ID),
		zap.String("category", episode.Category),
		zap.String("snapshot", snapshotPath),
	)
	return nil
}

// LastN 最近 n 条归档记录，最新在前
func (a *AnomalyArchive) LastN(n int) ([]models.EpisodeRecord, error) {
	if n <= 0 {
		n = 50
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	f, err := os.Open(a.csvPath)
	if err != nil {
		if os.IsNotExist(err) {
			return []models.EpisodeRecord{}, nil
		}
		return nil, fmt.Errorf("failed to open archive file: %w", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read archive file: %w", err)
	}
	if len(rows) <= 1 {
		return []models.EpisodeRecord{}, nil
	}

	records := []models.EpisodeRecord{}
	// 跳过表头，倒序遍历（最新在前）
	for i := len(rows) - 1; i >= 1 && len(records) < n; i-- {
		row := rows[i]
		if len(row) < len(archiveHeader) {
			continue
		}
		records = append(records, models.EpisodeRecord{
			StartTime:       row[0],
			EndTime:         row[1],
			DurationSeconds: row[2],
			AnomalyType:     row[3],
			BPMMin:          row[4],
			BPMMax:          row[5],
			BPMAvg:          row[6],
			AccelXMax:       row[7],
			AccelYMax:       row[8],
			AccelZMax:       row[9],
			Severity:        row[10],
			Description:     row[11],
		})
	}
	return records, nil
}

// All 全部归档记录（导出用），按时间顺序
func (a *AnomalyArchive) All() ([]models.EpisodeRecord, error) {
	records, err := a.LastN(1 << 30)
	if err != nil {
		return nil, err
	}
	// LastN 最新在前，导出按时间正序
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

// Snapshot 按事件 ID 读取原始采样快照
func (a *AnomalyArchive) Snapshot(id string) (json.RawMessage, error) {
	if !episodeIDPattern.MatchString(id) {
		return nil, fmt.Errorf("invalid episode id: %s", id)
	}

	data, err := os.ReadFile(filepath.Join(a.dataDir, "anomaly_"+id+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("episode not found: %s", id)
		}
		return nil, fmt.Errorf("failed to read episode snapshot: %w", err)
	}
	return json.RawMessage(data), nil
}

// Clear 清空归档：先将现有 CSV 重命名为带时间戳的备份，再重建表头。
// 备份先于截断，这是稳态路径之外唯一的管理操作。
func (a *AnomalyArchive) Clear() (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	backup := ""
	if _, err := os.Stat(a.csvPath); err == nil {
		backup = filepath.Join(filepath.Dir(a.csvPath),
			"anomalies_backup_"+time.Now().Format("20060102_150405")+".csv")
		if err := os.Rename(a.csvPath, backup); err != nil {
			return "", fmt.Errorf("failed to back up archive file: %w", err)
		}
		a.logger.Info("Archive backed up", zap.String("backup", backup))
	}

	if err := a.initLocked(); err != nil {
		return backup, err
	}
	return backup, nil
}

func formatOptionalBPM(v *float64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%.0f", *v)
}
