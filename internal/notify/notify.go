package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	commonredis "church-roster/common/redis"
	"church-roster/internal/domain"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventPipelineRun 清洗流水线运行完成
const EventPipelineRun = "pipeline_run"

// Event 流水线通知
type Event struct {
	EventID       string    `json:"event_id"`
	Type          string    `json:"type"`
	RunID         string    `json:"run_id,omitempty"`
	Ran           bool      `json:"ran"`
	Reason        string    `json:"reason"`
	RowCount      int       `json:"row_count"`
	Hash          string    `json:"hash"`
	AddedAliases  int       `json:"added_aliases"`
	ConflictCount int       `json:"conflict_count"`
	ErrorCount    int       `json:"error_count"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewEvent 生成带 event_id 的事件
func NewEvent(eventType string) Event {
	return Event{
		EventID:   uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
	}
}

// Notifier 通知发送方
type Notifier interface {
	Notify(ctx context.Context, evt Event) error
}

// StreamNotifier 写入 Redis Stream
type StreamNotifier struct {
	client *redis.Client
	stream string
	maxLen int64
	logger *zap.Logger
}

func NewStreamNotifier(client *redis.Client, stream string, maxLen int64, logger *zap.Logger) *StreamNotifier {
	return &StreamNotifier{client: client, stream: stream, maxLen: maxLen, logger: logger}
}

func (n *StreamNotifier) Notify(ctx context.Context, evt Event) error {
	id, err := commonredis.PublishToStream(ctx, n.client, n.stream, n.maxLen, streamValues(evt))
	if err != nil {
		return domain.NewExternalServiceError(err, "publish to stream %s", n.stream)
	}
	n.logger.Debug("Notification published to stream",
		zap.String("stream", n.stream),
		zap.String("message_id", id),
		zap.String("event_id", evt.EventID),
	)
	return nil
}

func streamValues(evt Event) map[string]interface{} {
	return map[string]interface{}{
		"event_id":       evt.EventID,
		"type":           evt.Type,
		"run_id":         evt.RunID,
		"ran":            evt.Ran,
		"reason":         evt.Reason,
		"row_count":      evt.RowCount,
		"hash":           evt.Hash,
		"added_aliases":  evt.AddedAliases,
		"conflict_count": evt.ConflictCount,
		"error_count":    evt.ErrorCount,
		"timestamp":      evt.Timestamp,
	}
}

// Publisher MQTT 发布接口（common/mqtt.Client 实现）
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// MQTTNotifier 发布 JSON 到 MQTT 主题
type MQTTNotifier struct {
	publisher Publisher
	topic     string
	qos       byte
	logger    *zap.Logger
}

func NewMQTTNotifier(publisher Publisher, topic string, qos byte, logger *zap.Logger) *MQTTNotifier {
	return &MQTTNotifier{publisher: publisher, topic: topic, qos: qos, logger: logger}
}

func (n *MQTTNotifier) Notify(_ context.Context, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := n.publisher.Publish(n.topic, n.qos, false, payload); err != nil {
		return domain.NewExternalServiceError(err, "publish to mqtt topic %s", n.topic)
	}
	return nil
}

// LogNotifier 只写日志（未配置外部通道时）
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, evt Event) error {
	n.logger.Info("Pipeline notification",
		zap.String("event_id", evt.EventID),
		zap.String("type", evt.Type),
		zap.String("run_id", evt.RunID),
		zap.Bool("ran", evt.Ran),
		zap.String("reason", evt.Reason),
		zap.Int("row_count", evt.RowCount),
		zap.Int("added_aliases", evt.AddedAliases),
		zap.Int("conflict_count", evt.ConflictCount),
	)
	return nil
}

// Multi 依次发送给多个通道，全部尝试后合并错误
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, evt Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
