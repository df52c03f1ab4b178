package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// Notifier — 生命周期事件通知协作方
// 消费报修/维修/取件等事件并推送到外部webhook，纯旁路：
// 推送失败只记日志，绝不回滚核心事务
// =============================================================================

// LifecycleEvent 生命周期通知事件
type LifecycleEvent struct {
	Kind     string `json:"kind"` // ticket_opened/repair_completed/pickup_pending/ticket_closed等
	TicketID string `json:"ticket_id,omitempty"`
	AssetID  string `json:"asset_id,omitempty"`
	OrderID  string `json:"order_id,omitempty"`
	Status   string `json:"status,omitempty"`
	Message  string `json:"message,omitempty"`
	At       int64  `json:"at"`
}

// Notifier 通知协作方接口
type Notifier interface {
	Publish(event LifecycleEvent)
}

// WebhookNotifier webhook通知器
type WebhookNotifier struct {
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewWebhookNotifier 创建webhook通知器，endpoint为空时所有事件静默丢弃
func NewWebhookNotifier(endpoint string, logger *zap.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Publish 异步推送事件（fire-and-forget）
func (n *WebhookNotifier) Publish(event LifecycleEvent) {
	if n.endpoint == "" {
		return
	}
	if event.At == 0 {
		event.At = time.Now().Unix()
	}
	go n.send(event)
}

func (n *WebhookNotifier) send(event LifecycleEvent) {
	body, err := json.Marshal(event)
	if err != nil {
		n.logger.Warn("notify: marshal event failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		n.logger.Warn("notify: build request failed", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		n.logger.Warn("notify: webhook push failed",
			zap.String("kind", event.Kind),
			zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		n.logger.Warn("notify: webhook rejected event",
			zap.String("kind", event.Kind),
			zap.Int("status", resp.StatusCode))
	}
}

// NopNotifier 空实现，测试与未配置场景使用
type NopNotifier struct{}

func (NopNotifier) Publish(LifecycleEvent) {}
