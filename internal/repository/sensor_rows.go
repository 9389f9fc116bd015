package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/alexlav17/SafeWatch-ReceiveData/internal/models"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// 传感器行存储表结构（追加写，稳态路径无更新/删除）
const sensorSchema = `
CREATE TABLE IF NOT EXISTS sensor_data (
    id        TEXT,
    type      TEXT,
    timestamp TEXT,
    x         REAL,
    y         REAL,
    z         REAL,
    bpm       REAL,
    ir        INTEGER,
    ecg       INTEGER,
    raw       TEXT
);

CREATE INDEX IF NOT EXISTS idx_sensor_data_timestamp ON sensor_data(timestamp);
`

// OpenDB 打开（或创建）SQLite 数据库并应用表结构
func OpenDB(path string) (*sql.DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec(sensorSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return db, nil
}

// SensorRow sensor_data 表的一行
type SensorRow struct {
	RowID     int64    `json:"rowid"`
	SourceID  string   `json:"id"`
	Kind      string   `json:"type"`
	Timestamp string   `json:"timestamp"`
	X         float64  `json:"x"`
	Y         float64  `json:"y"`
	Z         float64  `json:"z"`
	BPM       *float64 `json:"bpm"`
	IR        *int64   `json:"ir"`
	ECG       *int64   `json:"ecg"`
	Raw       string   `json:"raw"`
}

// SensorRows 传感器数据行仓库（追加写 + 按 rowid 窗口读取）
type SensorRows struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSensorRows 创建传感器行仓库
func NewSensorRows(db *sql.DB, logger *zap.Logger) *SensorRows {
	return &SensorRows{
		db:     db,
		logger: logger,
	}
}

// Store 追加一行并返回 rowid。
// 存储失败只报告给调用方，不回滚也不阻断广播路径。
func (r *SensorRows) Store(ctx context.Context, p *models.SensorPacket) (int64, error) {
	if p == nil {
		return 0, fmt.Errorf("packet is required")
	}

	var bpm sql.NullFloat64
	if p.BPM != nil {
		bpm = sql.NullFloat64{Float64: *p.BPM, Valid: true}
	}
	var ir, ecg sql.NullInt64
	if p.IR != nil {
		ir = sql.NullInt64{Int64: *p.IR, Valid: true}
	}
	if p.ECG != nil {
		ecg = sql.NullInt64{Int64: *p.ECG, Valid: true}
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO sensor_data (id, type, timestamp, x, y, z, bpm, ir, ecg, raw)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.SourceID,
		p.Kind,
		p.Timestamp.Format(time.RFC3339Nano),
		p.X, p.Y, p.Z,
		bpm, ir, ecg,
		string(p.Raw),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert sensor row: %w", err)
	}

	rowid, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}

	return rowid, nil
}

const sensorColumns = "rowid, id, type, timestamp, x, y, z, bpm, ir, ecg, raw"

// Latest 最新一行；表为空时返回 (nil, nil)
func (r *SensorRows) Latest(ctx context.Context) (*SensorRow, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+sensorColumns+" FROM sensor_data ORDER BY rowid DESC LIMIT 1")

	sr, err := scanSensorRow(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query latest sensor row: %w", err)
	}
	return sr, nil
}

// Recent 最近 limit 行，按 rowid 升序返回（SSE 连接时的历史回放）
func (r *SensorRows) Recent(ctx context.Context, limit int) ([]SensorRow, error) {
	if limit <= 0 {
		limit = 200
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+sensorColumns+" FROM sensor_data ORDER BY rowid DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent sensor rows: %w", err)
	}
	defer rows.Close()

	collected, err := collectSensorRows(rows)
	if err != nil {
		return nil, err
	}

	// 倒序查询结果翻转为升序
	for i, j := 0, len(collected)-1; i < j; i, j = i+1, j-1 {
		collected[i], collected[j] = collected[j], collected[i]
	}
	return collected, nil
}

// After 序列窗口读取：rowid 大于 after 的行，升序，最多 limit 行
func (r *SensorRows) After(ctx context.Context, after int64, limit int) ([]SensorRow, error) {
	if limit <= 0 {
		limit = 200
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+sensorColumns+" FROM sensor_data WHERE rowid > ? ORDER BY rowid ASC LIMIT ?",
		after, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sensor rows after %d: %w", after, err)
	}
	defer rows.Close()

	return collectSensorRows(rows)
}

// MaxRowID 当前最大 rowid（空表返回 0）
func (r *SensorRows) MaxRowID(ctx context.Context) (int64, error) {
	var max sql.NullInt64
	err := r.db.QueryRowContext(ctx, "SELECT MAX(rowid) FROM sensor_data").Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("failed to query max rowid: %w", err)
	}
	if !max.Valid {
		return 0, nil
	}
	return max.Int64, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSensorRow(row rowScanner) (*SensorRow, error) {
	var sr SensorRow
	var bpm sql.NullFloat64
	var ir, ecg sql.NullInt64

	err := row.Scan(
		&sr.RowID,
		&sr.SourceID,
		&sr.Kind,
		&sr.Timestamp,
		&sr.X, &sr.Y, &sr.Z,
		&bpm, &ir, &ecg,
		&sr.Raw,
	)
	if err != nil {
		return nil, err
	}

	if bpm.Valid {
		sr.BPM = &bpm.Float64
	}
	if ir.Valid {
		sr.IR = &ir.Int64
	}
	if ecg.Valid {
		sr.ECG = &ecg.Int64
	}
	return &sr, nil
}

func collectSensorRows(rows *sql.Rows) ([]SensorRow, error) {
	out := []SensorRow{}
	for rows.Next() {
		sr, err := scanSensorRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sensor row: %w", err)
		}
		out = append(out, *sr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sensor rows: %w", err)
	}
	return out, nil
}
