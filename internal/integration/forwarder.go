package integration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/meshcom-gateway/meshcom-server/internal/models"
)

// ErrNotConnected MQTT 客户端未连接
var ErrNotConnected = errors.New("mqtt client not connected")

// MQTTClient 转发所需的 MQTT 客户端方法，mqtt.Client 满足
type MQTTClient interface {
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MessageWriter 转发所需的 Kafka 写入方法，*kafka.Writer 满足
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Forwarder 将已接受的消息转发到 MQTT 和 Kafka
type Forwarder struct {
	mqtt        MQTTClient
	topicPrefix string
	qos         byte

	kafka MessageWriter

	timeout time.Duration
}

// NewForwarder 创建转发服务，未配置任何目标时 Publish 不做任何事
func NewForwarder() *Forwarder {
	return &Forwarder{timeout: 5 * time.Second}
}

// WithMQTT 启用 MQTT 转发
func (f *Forwarder) WithMQTT(client MQTTClient, topicPrefix string, qos byte) *Forwarder {
	f.mqtt = client
	f.topicPrefix = strings.TrimSuffix(topicPrefix, "/")
	f.qos = qos
	return f
}

// WithKafka 启用 Kafka 转发
func (f *Forwarder) WithKafka(w MessageWriter) *Forwarder {
	f.kafka = w
	return f
}

// Enabled 是否配置了转发目标
func (f *Forwarder) Enabled() bool {
	return f.mqtt != nil || f.kafka != nil
}

// Name 实现 gateway.Publisher
func (f *Forwarder) Name() string {
	return "integration"
}

// Publish 实现 gateway.Publisher；不等待 broker 确认
func (f *Forwarder) Publish(ev models.MessageEvent) error {
	if !f.Enabled() {
		return nil
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	var errs []error
	if f.mqtt != nil {
		if err := f.publishMQTT(ev, data); err != nil {
			errs = append(errs, err)
		}
	}
	if f.kafka != nil {
		if err := f.publishKafka(ev, data); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// publishMQTT 转发到 MQTT
func (f *Forwarder) publishMQTT(ev models.MessageEvent, data []byte) error {
	if !f.mqtt.IsConnected() {
		return ErrNotConnected
	}

	topic := MessageTopic(f.topicPrefix, ev.Src)
	token := f.mqtt.Publish(topic, f.qos, false, data)

	go func() {
		if !token.WaitTimeout(f.timeout) {
			log.Error().Str("topic", topic).Msg("MQTT publish timeout")
			return
		}
		if err := token.Error(); err != nil {
			log.Error().Err(err).Str("topic", topic).Msg("Failed to publish to MQTT")
			return
		}
		log.Debug().Str("src", ev.Src).Str("topic", topic).Msg("Message forwarded to MQTT")
	}()

	return nil
}

// publishKafka 转发到 Kafka，以源呼号作为 key
func (f *Forwarder) publishKafka(ev models.MessageEvent, data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()

	err := f.kafka.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.Src),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(models.EventMeshComMessage)},
			{Key: "dst", Value: []byte(ev.Dst)},
		},
	})
	if err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

// Close 关闭所有连接
func (f *Forwarder) Close() {
	if f.mqtt != nil {
		f.mqtt.Disconnect(250)
		log.Info().Msg("MQTT client disconnected")
	}
	if f.kafka != nil {
		if err := f.kafka.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close Kafka writer")
		}
	}
}

// MessageTopic 返回某个源呼号的 MQTT 主题
func MessageTopic(prefix, src string) string {
	if src == "" {
		src = "_"
	}
	src = strings.NewReplacer("/", "_", "+", "_", "#", "_").Replace(src)
	if prefix == "" {
		return "message/" + src
	}
	return prefix + "/message/" + src
}
