package integration

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/segmentio/kafka-go"

	"github.com/meshcom-gateway/meshcom-server/internal/models"
)

type doneToken struct {
	err error
}

func (t *doneToken) Wait() bool                     { return true }
func (t *doneToken) WaitTimeout(time.Duration) bool { return true }
func (t *doneToken) Error() error                   { return t.err }
func (t *doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type publishCall struct {
	topic   string
	qos     byte
	payload []byte
}

type fakeMQTT struct {
	mu        sync.Mutex
	connected bool
	calls     []publishCall
	closed    bool
}

func (f *fakeMQTT) IsConnected() bool { return f.connected }

func (f *fakeMQTT) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, publishCall{topic: topic, qos: qos, payload: payload.([]byte)})
	return &doneToken{}
}

func (f *fakeMQTT) Disconnect(uint) { f.closed = true }

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return f.err
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func testEvent() models.MessageEvent {
	return models.MessageEvent{Src: "OE1XYZ", Dst: "262", Msg: "hello", MsgID: "1"}
}

func TestMessageTopic(t *testing.T) {
	tests := []struct {
		prefix string
		src    string
		want   string
	}{
		{"meshcom", "OE1XYZ-1", "meshcom/message/OE1XYZ-1"},
		{"", "OE1XYZ", "message/OE1XYZ"},
		{"meshcom", "A/B+C#", "meshcom/message/A_B_C_"},
		{"meshcom", "", "meshcom/message/_"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := MessageTopic(tt.prefix, tt.src); got != tt.want {
				t.Errorf("MessageTopic = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestForwarderDisabled(t *testing.T) {
	f := NewForwarder()
	if f.Enabled() {
		t.Fatal("empty forwarder must be disabled")
	}
	if err := f.Publish(testEvent()); err != nil {
		t.Fatalf("Publish: %v", err)
	}
}

func TestForwarderPublish(t *testing.T) {
	client := &fakeMQTT{connected: true}
	writer := &fakeWriter{}
	f := NewForwarder().WithMQTT(client, "meshcom/", 1).WithKafka(writer)

	if err := f.Publish(testEvent()); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if len(client.calls) != 1 {
		t.Fatalf("mqtt calls = %d, want 1", len(client.calls))
	}
	call := client.calls[0]
	if call.topic != "meshcom/message/OE1XYZ" || call.qos != 1 {
		t.Errorf("mqtt call = %s qos %d", call.topic, call.qos)
	}

	var ev models.MessageEvent
	if err := json.Unmarshal(call.payload, &ev); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if ev.Msg != "hello" || ev.Src != "OE1XYZ" {
		t.Errorf("payload = %+v", ev)
	}

	if len(writer.msgs) != 1 {
		t.Fatalf("kafka messages = %d, want 1", len(writer.msgs))
	}
	if string(writer.msgs[0].Key) != "OE1XYZ" {
		t.Errorf("kafka key = %q", writer.msgs[0].Key)
	}

	f.Close()
	if !client.closed || !writer.closed {
		t.Error("Close must disconnect both sinks")
	}
}

func TestForwarderErrors(t *testing.T) {
	client := &fakeMQTT{connected: false}
	writer := &fakeWriter{err: errors.New("broker down")}
	f := NewForwarder().WithMQTT(client, "meshcom", 0).WithKafka(writer)

	err := f.Publish(testEvent())
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected in %v", err)
	}
	if err == nil || len(writer.msgs) != 1 {
		t.Errorf("kafka must still be attempted, err = %v", err)
	}
}
