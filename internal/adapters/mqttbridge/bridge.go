package mqttbridge

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ghalamif/AegisWatt/internal/domain"
	"github.com/ghalamif/AegisWatt/internal/ports"
)

// Config describes the broker that relays node serial lines.
type Config struct {
	Broker      string        `yaml:"broker"`
	ClientID    string        `yaml:"client_id"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	TopicPrefix string        `yaml:"topic_prefix"`
	QoS         byte          `yaml:"qos"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Bridge exposes node serial lines relayed over MQTT: a node prints on
// <prefix>/<node>/out and reads from <prefix>/<node>/in.
type Bridge struct {
	client  mqtt.Client
	prefix  string
	qos     byte
	timeout time.Duration
	obs     ports.Observability
}

// Dial connects to the broker.
func Dial(cfg Config, obs ports.Observability) (*Bridge, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(cfg.Timeout)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	client := mqtt.NewClient(opts)
	b := New(client, cfg, obs)
	if err := b.wait(client.Connect()); err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Broker, err)
	}
	return b, nil
}

// New wraps an existing client, connected or not.
func New(client mqtt.Client, cfg Config, obs ports.Observability) *Bridge {
	prefix := strings.TrimSuffix(cfg.TopicPrefix, "/")
	if prefix == "" {
		prefix = "iotlab"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Bridge{client: client, prefix: prefix, qos: cfg.QoS, timeout: timeout, obs: obs}
}

func (b *Bridge) Name() string { return "mqtt" }

func (b *Bridge) OutTopic(node domain.NodeID) string {
	return b.prefix + "/" + node.Short() + "/out"
}

func (b *Bridge) InTopic(node domain.NodeID) string {
	return b.prefix + "/" + node.Short() + "/in"
}

func (b *Bridge) Open(_ context.Context, node domain.NodeID, onLine ports.LineFunc) (ports.NodeChannel, error) {
	ch := &channel{bridge: b, node: node}
	topic := b.OutTopic(node)
	handler := func(_ mqtt.Client, msg mqtt.Message) {
		if onLine == nil {
			return
		}
		for _, line := range strings.Split(strings.TrimRight(string(msg.Payload()), "\n"), "\n") {
			onLine(node, strings.TrimRight(line, "\r"))
		}
	}
	if err := b.wait(b.client.Subscribe(topic, b.qos, handler)); err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return ch, nil
}

// Close disconnects from the broker.
func (b *Bridge) Close() {
	b.client.Disconnect(250)
}

func (b *Bridge) wait(tok mqtt.Token) error {
	if !tok.WaitTimeout(b.timeout) {
		return fmt.Errorf("timed out after %s", b.timeout)
	}
	return tok.Error()
}

type channel struct {
	bridge *Bridge
	node   domain.NodeID

	mu     sync.Mutex
	closed bool
}

func (c *channel) WriteLine(line string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("channel to %s is closed", c.node)
	}
	topic := c.bridge.InTopic(c.node)
	if err := c.bridge.wait(c.bridge.client.Publish(topic, c.bridge.qos, false, line+"\n")); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (c *channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	topic := c.bridge.OutTopic(c.node)
	if err := c.bridge.wait(c.bridge.client.Unsubscribe(topic)); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", topic, err)
	}
	return nil
}

var _ ports.Transport = (*Bridge)(nil)
