package service

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/alexlav17/SafeWatch-ReceiveData/internal/bus"
	"github.com/alexlav17/SafeWatch-ReceiveData/internal/classifier"
	"github.com/alexlav17/SafeWatch-ReceiveData/internal/config"
	httpapi "github.com/alexlav17/SafeWatch-ReceiveData/internal/http"
	"github.com/alexlav17/SafeWatch-ReceiveData/internal/models"
	"github.com/alexlav17/SafeWatch-ReceiveData/internal/receiver"
	"github.com/alexlav17/SafeWatch-ReceiveData/internal/repository"
	"github.com/alexlav17/SafeWatch-ReceiveData/internal/session"
	"github.com/alexlav17/SafeWatch-ReceiveData/internal/tracker"
)

// measurementEvent 发布到事件总线的测量事件载荷
type measurementEvent struct {
	RowID int64 `json:"rowid"`
	*models.SensorPacket
	Classification *models.Classification `json:"classification,omitempty"`
}

// episodePublisher 事件总线 + 可选 webhook 的扇出发布器。
// webhook 投递在独立协程中进行，绝不阻塞处理管线。
type episodePublisher struct {
	bus      *bus.Bus
	notifier *WebhookNotifier
}

func (p *episodePublisher) Publish(eventType string, payload any) (uint64, error) {
	seq, err := p.bus.Publish(eventType, payload)
	if p.notifier.Enabled() {
		go func() {
			_ = p.notifier.Notify(eventType, payload)
		}()
	}
	return seq, err
}

// Monitor 遥测监控服务：UDP 接收 → 分类 → 事件判定 → 持久化 → 事件流
type Monitor struct {
	cfg    *config.Config
	logger *zap.Logger

	db       *sql.DB
	rows     *repository.SensorRows
	archive  *repository.AnomalyArchive
	recorder *repository.CSVLogger
	stats    *session.Stats
	bus      *bus.Bus
	tracker  *tracker.Tracker
	notifier *WebhookNotifier
	receiver *receiver.UDPReceiver

	httpServer *http.Server
}

// NewMonitor 创建监控服务
func NewMonitor(cfg *config.Config, logger *zap.Logger) (*Monitor, error) {
	db, err := repository.OpenDB(cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sensor database: %w", err)
	}

	archive := repository.NewAnomalyArchive(cfg.Storage.AnomaliesFile, cfg.Storage.AnomaliesDir, logger)
	if err := archive.Init(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init anomaly archive: %w", err)
	}

	m := &Monitor{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		rows:     repository.NewSensorRows(db, logger),
		archive:  archive,
		recorder: repository.NewCSVLogger(cfg.Storage.DataDir, logger),
		stats:    session.NewStats(),
		bus:      bus.New(cfg.Stream.EventBacklog, logger),
		notifier: NewWebhookNotifier(cfg.Webhook.URL, time.Duration(cfg.Webhook.TimeoutSeconds)*time.Second, logger),
	}

	m.tracker = tracker.New(
		time.Duration(cfg.Episode.MinDurationSeconds)*time.Second,
		m.archive,
		&episodePublisher{bus: m.bus, notifier: m.notifier},
		logger,
	)

	m.receiver = receiver.NewUDPReceiver(cfg.UDP.Host, cfg.UDP.Port, m.stats, m.HandlePacket, logger)

	handlers := httpapi.NewHandlers(
		m.rows, m.archive, m.recorder, m.stats, m.bus, m.tracker,
		m.HandlePacket,
		cfg.Stream.HistoryRows,
		time.Duration(cfg.Stream.KeepAliveSeconds)*time.Second,
		logger,
	)
	router := httpapi.NewRouter(logger)
	router.RegisterTelemetryRoutes(handlers)
	m.httpServer = &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: router,
	}

	return m, nil
}

// HandlePacket 单个数据包的处理管线：分类 → 事件判定 → 行存储 →
// 事件广播 → 辅助 CSV 记录。各落地端相互独立：行存储失败只记日志，
// 事件仍然广播。
func (m *Monitor) HandlePacket(p *models.SensorPacket) {
	c := classifier.Classify(p)

	m.tracker.Process(p, c)

	rowID, err := m.rows.Store(context.Background(), p)
	if err != nil {
		m.logger.Error("Failed to store sensor row",
			zap.String("source", p.SourceID),
			zap.Error(err),
		)
	}

	event := measurementEvent{
		RowID:        rowID,
		SensorPacket: p,
	}
	if c.IsAnomalous() {
		event.Classification = &c
	}
	if _, err := m.bus.Publish(bus.EventMeasurement, event); err != nil {
		m.logger.Error("Failed to publish measurement event", zap.Error(err))
	}

	m.recorder.Log(p)
}

// Start 启动服务，阻塞直到上下文取消
func (m *Monitor) Start(ctx context.Context) error {
	// SSE 连接的请求上下文随服务上下文取消，长连接才能在关停时退出
	m.httpServer.BaseContext = func(net.Listener) context.Context { return ctx }

	errChan := make(chan error, 2)

	go func() {
		if err := m.receiver.Start(ctx); err != nil {
			errChan <- fmt.Errorf("udp receiver: %w", err)
		}
	}()

	go func() {
		m.logger.Info("HTTP server started", zap.String("addr", m.cfg.HTTP.Addr))
		if err := m.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errChan:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.httpServer.Shutdown(shutdownCtx); err != nil {
		m.logger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	return nil
}

// Stop 释放资源
func (m *Monitor) Stop() {
	if err := m.recorder.Stop(); err != nil {
		m.logger.Error("Failed to stop CSV recorder", zap.Error(err))
	}
	if err := m.db.Close(); err != nil {
		m.logger.Error("Failed to close database", zap.Error(err))
	}
}
