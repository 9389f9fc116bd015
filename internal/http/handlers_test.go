package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/alexlav17/SafeWatch-ReceiveData/internal/bus"
	"github.com/alexlav17/SafeWatch-ReceiveData/internal/models"
	"github.com/alexlav17/SafeWatch-ReceiveData/internal/repository"
	"github.com/alexlav17/SafeWatch-ReceiveData/internal/session"
	"github.com/alexlav17/SafeWatch-ReceiveData/internal/tracker"
)

type testEnv struct {
	handlers *Handlers
	router   *Router
	rows     *repository.SensorRows
	archive  *repository.AnomalyArchive
	bus      *bus.Bus
	stats    *session.Stats
	ingested []*models.SensorPacket
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop()
	dir := t.TempDir()

	db, err := repository.OpenDB(filepath.Join(dir, "sensor.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	env := &testEnv{
		rows:    repository.NewSensorRows(db, logger),
		archive: repository.NewAnomalyArchive(filepath.Join(dir, "anomalies_log.csv"), filepath.Join(dir, "anomalies_data"), logger),
		bus:     bus.New(100, logger),
		stats:   session.NewStats(),
	}
	require.NoError(t, env.archive.Init())

	recorder := repository.NewCSVLogger(dir, logger)
	trk := tracker.New(2*time.Second, env.archive, env.bus, logger)

	env.handlers = NewHandlers(
		env.rows, env.archive, recorder, env.stats, env.bus, trk,
		func(p *models.SensorPacket) { env.ingested = append(env.ingested, p) },
		200, 15*time.Second, logger,
	)
	env.router = NewRouter(logger)
	env.router.RegisterTelemetryRoutes(env.handlers)
	return env
}

func (e *testEnv) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func storedPacket() *models.SensorPacket {
	bpm := 72.0
	return &models.SensorPacket{
		SourceID:  "esp32-01",
		Kind:      models.KindCardiac,
		Timestamp: time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC),
		X:         0.1,
		BPM:       &bpm,
		Raw:       json.RawMessage(`{"id":"esp32-01","bpm":72}`),
	}
}

func TestLatest_Empty(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/sensor-data/latest", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"empty"`)
}

func TestLatest_ReturnsStoredRow(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.rows.Store(context.Background(), storedPacket())
	require.NoError(t, err)

	w := env.do(t, http.MethodGet, "/api/sensor-data/latest", "")

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `"status":"ok"`)
	assert.Contains(t, body, `"esp32-01"`)
	assert.Contains(t, body, `"bpm":72`)
}

func TestStatus(t *testing.T) {
	env := newTestEnv(t)
	env.stats.RecordPacket(time.Now())
	env.stats.RecordPacket(time.Now())

	w := env.do(t, http.MethodGet, "/api/status", "")

	require.Equal(t, http.StatusOK, w.Code)
	var resp statusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(2), resp.PacketsReceived)
	assert.False(t, resp.EpisodeActive)
	assert.False(t, resp.Recording)
}

func TestAnomalies_DefaultLimit(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/anomalies", "")

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Status string                 `json:"status"`
		Data   []models.EpisodeRecord `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Empty(t, resp.Data)
}

func TestAnomalyByID_NotFound(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/anomaly/20990101_000000", "")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAnomalyByID_ReturnsSnapshot(t *testing.T) {
	env := newTestEnv(t)
	episode, summary := sampleEpisode()
	require.NoError(t, env.archive.ArchiveEpisode(episode, summary))

	w := env.do(t, http.MethodGet, "/api/anomaly/"+episode.ID, "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), episode.ID)
}

func TestClearAnomalies(t *testing.T) {
	env := newTestEnv(t)
	episode, summary := sampleEpisode()
	require.NoError(t, env.archive.ArchiveEpisode(episode, summary))

	w := env.do(t, http.MethodPost, "/api/anomalies/clear", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "anomalies_backup_")

	records, err := env.archive.LastN(10)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRecording_StartStop(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/recording/start", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"recording":true`)
	assert.Contains(t, w.Body.String(), "data_esp32_")

	w = env.do(t, http.MethodPost, "/api/recording/stop", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"recording":false`)
}

func TestIngestPacket(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/sensor-data", `{"id":"esp32-01","bpm":72,"ir":12450}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"received"`)
	require.Len(t, env.ingested, 1)
	assert.Equal(t, "esp32-01", env.ingested[0].SourceID)
	assert.Equal(t, int64(1), env.stats.Snapshot().PacketsReceived)
}

func TestIngestPacket_BadBody(t *testing.T) {
	env := newTestEnv(t)

	for _, body := range []string{"", "not json"} {
		w := env.do(t, http.MethodPost, "/api/sensor-data", body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	}
	assert.Empty(t, env.ingested)
}

func TestMethodGuards(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		method string
		target string
	}{
		{http.MethodGet, "/api/anomalies/clear"},
		{http.MethodPost, "/api/status"},
		{http.MethodGet, "/api/recording/start"},
		{http.MethodPost, "/api/sensor-data/latest"},
	}
	for _, tt := range tests {
		w := env.do(t, tt.method, tt.target, "")
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code, "%s %s", tt.method, tt.target)
	}
}

func TestExportAnomalies(t *testing.T) {
	env := newTestEnv(t)
	episode, summary := sampleEpisode()
	require.NoError(t, env.archive.ArchiveEpisode(episode, summary))

	w := env.do(t, http.MethodGet, "/api/anomalies/export", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "anomalies_")
	// xlsx 是 zip 容器
	assert.True(t, strings.HasPrefix(w.Body.String(), "PK"), "expected zip magic bytes")
}

func sampleEpisode() (*models.Episode, *models.EpisodeSummary) {
	start := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	end := start.Add(3 * time.Second)
	bpmMin := 36.0
	bpmMax := 82.0
	bpmAvg := 59.0

	episode := &models.Episode{
		ID:        "20260314_103000",
		StartTime: start,
		EndTime:   end,
		Category:  models.CategoryFallCritical,
		Severity:  models.SeverityCritical,
		Samples: []models.EpisodeSample{
			{Timestamp: start, BPM: &bpmMin, AccelX: 1.8, Category: models.CategoryFallCritical},
		},
	}
	summary := &models.EpisodeSummary{
		ID:              episode.ID,
		StartTime:       start.Format(time.RFC3339),
		EndTime:         end.Format(time.RFC3339),
		DurationSeconds: 3.0,
		Category:        episode.Category,
		Severity:        episode.Severity,
		BPMMin:          &bpmMin,
		BPMMax:          &bpmMax,
		BPMAvg:          &bpmAvg,
		AccelXMax:       1.8,
		Description:     "Anomaly detected: fall_critical | low bpm: 36 | intense movement",
	}
	return episode, summary
}
