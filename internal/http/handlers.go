package httpapi

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/alexlav17/SafeWatch-ReceiveData/internal/bus"
	"github.com/alexlav17/SafeWatch-ReceiveData/internal/receiver"
	"github.com/alexlav17/SafeWatch-ReceiveData/internal/repository"
	"github.com/alexlav17/SafeWatch-ReceiveData/internal/session"
	"github.com/alexlav17/SafeWatch-ReceiveData/internal/tracker"
)

// 单个 POST 请求体上限（与 UDP 数据报上限一致）
const maxIngestBody = 64 * 1024

// Handlers 遥测 HTTP 接口
type Handlers struct {
	rows     *repository.SensorRows
	archive  *repository.AnomalyArchive
	recorder *repository.CSVLogger
	stats    *session.Stats
	bus      *bus.Bus
	tracker  *tracker.Tracker
	ingest   receiver.Handler
	logger   *zap.Logger

	historyRows int
	keepAlive   time.Duration
}

// NewHandlers 创建HTTP处理器
func NewHandlers(
	rows *repository.SensorRows,
	archive *repository.AnomalyArchive,
	recorder *repository.CSVLogger,
	stats *session.Stats,
	eventBus *bus.Bus,
	trk *tracker.Tracker,
	ingest receiver.Handler,
	historyRows int,
	keepAlive time.Duration,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		rows:        rows,
		archive:     archive,
		recorder:    recorder,
		stats:       stats,
		bus:         eventBus,
		tracker:     trk,
		ingest:      ingest,
		historyRows: historyRows,
		keepAlive:   keepAlive,
		logger:      logger,
	}
}

// Latest 最近一条已存储的测量行
func (h *Handlers) Latest(w http.ResponseWriter, r *http.Request) {
	row, err := h.rows.Latest(r.Context())
	if err != nil {
		h.logger.Error("Failed to load latest row", zap.Error(err))
		fail(w, http.StatusInternalServerError, "database error")
		return
	}
	if row == nil {
		writeJSON(w, http.StatusOK, statusBody{Status: "empty"})
		return
	}
	okData(w, row)
}

// statusResponse 会话状态快照
type statusResponse struct {
	session.Snapshot
	EpisodeActive bool   `json:"episode_active"`
	Recording     bool   `json:"recording"`
	RecordingFile string `json:"recording_file,omitempty"`
}

// Status 会话统计
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	recording, filename := h.recorder.Recording()
	writeJSON(w, http.StatusOK, statusResponse{
		Snapshot:      h.stats.Snapshot(),
		EpisodeActive: h.tracker.Open(),
		Recording:     recording,
		RecordingFile: filename,
	})
}

// Anomalies 最近 N 条已归档事件（新→旧）
func (h *Handlers) Anomalies(w http.ResponseWriter, r *http.Request) {
	limit := parseInt(r.URL.Query().Get("limit"), 50)
	records, err := h.archive.LastN(limit)
	if err != nil {
		h.logger.Error("Failed to read anomaly archive", zap.Error(err))
		fail(w, http.StatusInternalServerError, "archive error")
		return
	}
	okData(w, records)
}

// AnomalyByID 单个事件的原始样本快照
func (h *Handlers) AnomalyByID(w http.ResponseWriter, r *http.Request, id string) {
	snapshot, err := h.archive.Snapshot(id)
	if err != nil {
		fail(w, http.StatusNotFound, "anomaly not found")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(snapshot)
}

// ClearAnomalies 先备份再清空归档
func (h *Handlers) ClearAnomalies(w http.ResponseWriter, r *http.Request) {
	backup, err := h.archive.Clear()
	if err != nil {
		h.logger.Error("Failed to clear anomaly archive", zap.Error(err))
		fail(w, http.StatusInternalServerError, "failed to clear archive")
		return
	}
	h.logger.Info("Anomaly archive cleared", zap.String("backup", backup))
	okData(w, map[string]string{"backup": backup})
}

// RecordingStart 开启辅助 CSV 记录（幂等）
func (h *Handlers) RecordingStart(w http.ResponseWriter, r *http.Request) {
	filename, err := h.recorder.Start()
	if err != nil {
		h.logger.Error("Failed to start CSV recording", zap.Error(err))
		fail(w, http.StatusInternalServerError, "failed to start recording")
		return
	}
	okData(w, map[string]any{"recording": true, "filename": filename})
}

// RecordingStop 停止辅助 CSV 记录（幂等）
func (h *Handlers) RecordingStop(w http.ResponseWriter, r *http.Request) {
	if err := h.recorder.Stop(); err != nil {
		h.logger.Error("Failed to stop CSV recording", zap.Error(err))
		fail(w, http.StatusInternalServerError, "failed to stop recording")
		return
	}
	okData(w, map[string]any{"recording": false})
}

// IngestPacket HTTP 备用上报通道：请求体与 UDP 数据报同构，
// 走完全相同的处理管线
func (h *Handlers) IngestPacket(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxIngestBody))
	if err != nil || len(bytes.TrimSpace(body)) == 0 {
		fail(w, http.StatusBadRequest, "no JSON payload or unreadable body")
		return
	}

	receivedAt := time.Now()
	pkt, err := receiver.ParsePacket(body, r.RemoteAddr, receivedAt)
	if err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}

	h.stats.RecordPacket(receivedAt)
	h.ingest(pkt)

	writeJSON(w, http.StatusOK, statusBody{Status: "received", Data: pkt})
}
