package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/alexlav17/SafeWatch-ReceiveData/internal/bus"
)

// connectedPayload 连接建立时的对账信息：前端据此判断
// 回放历史与实时流之间是否有缺口
type connectedPayload struct {
	LastRowID int64  `json:"last_rowid"`
	LastSeq   uint64 `json:"last_seq"`
}

// Stream SSE 端点。每个连接独立订阅事件总线：
//  1. `connected` 事件（最后 rowid + 最后序列号）
//  2. 最近历史行回放（升序，作为 measurement 事件）
//  3. 实时事件循环；空闲时发送 `: ping` 保活注释
//
// ?from=<seq> 从指定序列号续传（跳过历史回放之后的重复事件）
func (h *Handlers) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		fail(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()

	lastRowID, err := h.rows.MaxRowID(ctx)
	if err != nil {
		h.logger.Error("Failed to read max rowid", zap.Error(err))
	}
	lastSeq, hasEvents := h.bus.LastSeq()

	if err := writeSSE(w, "connected", connectedPayload{LastRowID: lastRowID, LastSeq: lastSeq}); err != nil {
		return
	}
	flusher.Flush()

	// 历史回放（升序）
	history, err := h.rows.Recent(ctx, h.historyRows)
	if err != nil {
		h.logger.Error("Failed to load history rows", zap.Error(err))
	}
	for i := range history {
		if err := writeSSE(w, bus.EventMeasurement, &history[i]); err != nil {
			return
		}
	}
	if len(history) > 0 {
		flusher.Flush()
	}

	// 订阅起点：显式 from 参数优先，否则只收新事件
	from := uint64(0)
	if s := r.URL.Query().Get("from"); s != "" {
		if v, err := strconv.ParseUint(s, 10, 64); err == nil {
			from = v
		}
	} else if hasEvents {
		from = lastSeq + 1
	}

	sub := h.bus.Subscribe(from)
	h.logger.Debug("SSE subscriber connected",
		zap.String("subscriber", sub.ID),
		zap.String("remote", r.RemoteAddr),
		zap.Uint64("from", from),
	)

	for {
		ev, ping, err := sub.Next(ctx, h.keepAlive)
		if err != nil {
			// 客户端断开
			h.logger.Debug("SSE subscriber disconnected", zap.String("subscriber", sub.ID))
			return
		}
		if ping {
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
			continue
		}
		if err := writeSSEEvent(w, ev); err != nil {
			return
		}
		flusher.Flush()
	}
}

// writeSSE 输出一帧 `event: <tag>\ndata: <json>\n\n`
func writeSSE(w io.Writer, eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, data)
	return err
}

// writeSSEEvent 实时事件带 id 行，EventSource 重连时可作为续传游标
func writeSSEEvent(w io.Writer, ev *bus.Event) error {
	_, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", ev.Seq, ev.Type, ev.Data)
	return err
}
