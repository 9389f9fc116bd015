package receiver

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/alexlav17/SafeWatch-ReceiveData/internal/models"
	"github.com/alexlav17/SafeWatch-ReceiveData/internal/session"
)

// 单个数据报上限（ESP32 端远小于此值）
const maxDatagramSize = 64 * 1024

// Handler 处理一个已解析的数据包（由接收协程同步调用）
type Handler func(p *models.SensorPacket)

// UDPReceiver UDP数据包接收器
type UDPReceiver struct {
	addr    string
	stats   *session.Stats
	handler Handler
	logger  *zap.Logger

	conn *net.UDPConn
}

// NewUDPReceiver 创建UDP接收器
func NewUDPReceiver(host string, port int, stats *session.Stats, handler Handler, logger *zap.Logger) *UDPReceiver {
	return &UDPReceiver{
		addr:    fmt.Sprintf("%s:%d", host, port),
		stats:   stats,
		handler: handler,
		logger:  logger,
	}
}

// Start 启动接收循环，阻塞直到上下文取消。
// 单协程读取；畸形数据报只记日志并丢弃，循环不退出。
func (r *UDPReceiver) Start(ctx context.Context) error {
	udpAddr, err := net.ResolveUDPAddr("udp", r.addr)
	if err != nil {
		return fmt.Errorf("failed to resolve listen address: %w", err)
	}

	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", r.addr, err)
	}
	r.conn = conn

	// 上下文取消时关闭套接字，解除阻塞的 ReadFromUDP
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	r.logger.Info("UDP receiver started", zap.String("addr", r.addr))

	buf := make([]byte, maxDatagramSize)
	for {
		n, remote, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				r.logger.Info("UDP receiver stopped")
				return nil
			}
			return fmt.Errorf("failed to read datagram: %w", err)
		}

		receivedAt := time.Now()
		pkt, err := ParsePacket(buf[:n], remote.String(), receivedAt)
		if err != nil {
			r.logger.Warn("Discarding malformed datagram",
				zap.String("remote", remote.String()),
				zap.Int("size", n),
				zap.Error(err),
			)
			continue
		}

		r.stats.RecordPacket(receivedAt)
		r.handler(pkt)
	}
}
