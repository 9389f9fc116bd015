package httpapi

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Router 使用标准库 http.ServeMux（避免引入第三方路由依赖）
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterTelemetryRoutes 注册遥测 API 路由
func (r *Router) RegisterTelemetryRoutes(h *Handlers) {
	// SSE 实时流
	r.Handle("/api/stream", methodGuard(http.MethodGet, h.Stream))

	// 测量数据
	r.Handle("/api/sensor-data", methodGuard(http.MethodPost, h.IngestPacket))
	r.Handle("/api/sensor-data/latest", methodGuard(http.MethodGet, h.Latest))

	// 会话状态
	r.Handle("/api/status", methodGuard(http.MethodGet, h.Status))

	// 异常事件归档
	r.Handle("/api/anomalies", methodGuard(http.MethodGet, h.Anomalies))
	r.Handle("/api/anomalies/export", methodGuard(http.MethodGet, h.ExportAnomalies))
	r.Handle("/api/anomalies/clear", methodGuard(http.MethodPost, h.ClearAnomalies))

	// anomaly/{id}
	r.Handle("/api/anomaly/", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		id := strings.TrimPrefix(req.URL.Path, "/api/anomaly/")
		if id == "" || strings.Contains(id, "/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.AnomalyByID(w, req, id)
	})

	// 辅助 CSV 记录开关
	r.Handle("/api/recording/start", methodGuard(http.MethodPost, h.RecordingStart))
	r.Handle("/api/recording/stop", methodGuard(http.MethodPost, h.RecordingStop))
}

func methodGuard(method string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != method {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h(w, req)
	}
}
