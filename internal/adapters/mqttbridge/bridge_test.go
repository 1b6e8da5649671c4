package mqttbridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ghalamif/AegisWatt/internal/domain"
)

func TestBridgeRoutesLinesByTopic(t *testing.T) {
	client := newFakeClient()
	b := New(client, Config{TopicPrefix: "lab/"}, nil)

	var got []string
	ch, err := b.Open(context.Background(), "m3-2.grenoble.iot-lab.info", func(node domain.NodeID, line string) {
		got = append(got, string(node)+"|"+line)
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	client.deliver("lab/m3-2/out", "cons ACK\r\nhello\n")
	if len(got) != 2 || got[0] != "m3-2.grenoble.iot-lab.info|cons ACK" || got[1] != "m3-2.grenoble.iot-lab.info|hello" {
		t.Fatalf("unexpected inbound lines %v", got)
	}

	if err := ch.WriteLine("time 10"); err != nil {
		t.Fatalf("write: %v", err)
	}
	if len(client.published) != 1 || client.published[0] != "lab/m3-2/in=time 10\n" {
		t.Fatalf("unexpected publishes %v", client.published)
	}

	if err := ch.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, ok := client.handlers["lab/m3-2/out"]; ok {
		t.Fatalf("expected unsubscribe on close")
	}
	if err := ch.WriteLine("time 20"); err == nil {
		t.Fatalf("expected write on closed channel to fail")
	}
}

func TestBridgeSubscribeError(t *testing.T) {
	client := newFakeClient()
	client.subErr = errors.New("not authorized")
	b := New(client, Config{}, nil)
	if _, err := b.Open(context.Background(), "m3-1", nil); err == nil {
		t.Fatalf("expected subscribe error")
	}
	if b.OutTopic("m3-1") != "iotlab/m3-1/out" {
		t.Fatalf("unexpected default prefix topic %q", b.OutTopic("m3-1"))
	}
}

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type fakeMessage struct {
	mqtt.Message
	topic   string
	payload []byte
}

func (m *fakeMessage) Topic() string   { return m.topic }
func (m *fakeMessage) Payload() []byte { return m.payload }

type fakeClient struct {
	mqtt.Client
	mu        sync.Mutex
	handlers  map[string]mqtt.MessageHandler
	published []string
	subErr    error
}

func newFakeClient() *fakeClient {
	return &fakeClient{handlers: make(map[string]mqtt.MessageHandler)}
}

func (c *fakeClient) Subscribe(topic string, _ byte, cb mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subErr != nil {
		return &fakeToken{err: c.subErr}
	}
	c.handlers[topic] = cb
	return &fakeToken{}
}

func (c *fakeClient) Unsubscribe(topics ...string) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range topics {
		delete(c.handlers, t)
	}
	return &fakeToken{}
}

func (c *fakeClient) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, topic+"="+payload.(string))
	return &fakeToken{}
}

func (c *fakeClient) deliver(topic, payload string) {
	c.mu.Lock()
	h := c.handlers[topic]
	c.mu.Unlock()
	if h != nil {
		h(c, &fakeMessage{topic: topic, payload: []byte(payload)})
	}
}
