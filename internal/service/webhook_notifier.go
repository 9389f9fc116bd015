package service

import (
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// WebhookEnvelope 推送给外部系统的事件通知
type WebhookEnvelope struct {
	Event   string `json:"event"` // episode-start / episode-end
	SentAt  string `json:"sent_at"`
	Payload any    `json:"payload"`
}

// WebhookNotifier 异常事件外部通知客户端。
// URL 为空时禁用（Notify 直接返回 nil）。
type WebhookNotifier struct {
	httpClient *resty.Client
	url        string
	logger     *zap.Logger
}

// NewWebhookNotifier 创建通知客户端
func NewWebhookNotifier(url string, timeout time.Duration, logger *zap.Logger) *WebhookNotifier {
	if url == "" {
		return &WebhookNotifier{logger: logger}
	}

	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Content-Type", "application/json")

	return &WebhookNotifier{
		httpClient: client,
		url:        url,
		logger:     logger,
	}
}

// Enabled 是否已配置通知地址
func (n *WebhookNotifier) Enabled() bool {
	return n.url != ""
}

// Notify 推送一条事件通知。通知失败不影响处理管线，只记日志。
func (n *WebhookNotifier) Notify(event string, payload any) error {
	if !n.Enabled() {
		return nil
	}

	envelope := WebhookEnvelope{
		Event:   event,
		SentAt:  time.Now().Format(time.RFC3339),
		Payload: payload,
	}

	resp, err := n.httpClient.R().
		SetBody(envelope).
		Post(n.url)
	if err != nil {
		n.logger.Error("Webhook delivery failed",
			zap.String("event", event),
			zap.Error(err),
		)
		return fmt.Errorf("failed to deliver webhook: %w", err)
	}
	if resp.IsError() {
		n.logger.Error("Webhook endpoint returned error",
			zap.String("event", event),
			zap.Int("status_code", resp.StatusCode()),
		)
		return fmt.Errorf("webhook endpoint returned status %d", resp.StatusCode())
	}

	n.logger.Debug("Webhook delivered",
		zap.String("event", event),
		zap.Int("status_code", resp.StatusCode()),
	)
	return nil
}
