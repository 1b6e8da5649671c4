package serial

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/ghalamif/AegisWatt/internal/domain"
	"github.com/ghalamif/AegisWatt/internal/ports"
)

// DefaultPort is the testbed's serial-over-TCP redirection port.
const DefaultPort = 20000

// TCPTransport opens a node's serial line through its TCP redirection.
type TCPTransport struct {
	port         int
	dialTimeout  time.Duration
	writeTimeout time.Duration
	obs          ports.Observability
	resolve      func(domain.NodeID) string
}

// Option customizes TCPTransport.
type Option func(*TCPTransport)

// WithResolver maps a node id to the host to dial. The default dials the
// short hostname.
func WithResolver(fn func(domain.NodeID) string) Option {
	return func(t *TCPTransport) {
		if fn != nil {
			t.resolve = fn
		}
	}
}

// WithWriteTimeout bounds each line written to a node. A node that stops
// draining its serial line fails the write instead of stalling the sender.
func WithWriteTimeout(d time.Duration) Option {
	return func(t *TCPTransport) {
		if d > 0 {
			t.writeTimeout = d
		}
	}
}

func NewTCPTransport(port int, dialTimeout time.Duration, obs ports.Observability, opts ...Option) *TCPTransport {
	if port <= 0 {
		port = DefaultPort
	}
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	t := &TCPTransport{
		port:         port,
		dialTimeout:  dialTimeout,
		writeTimeout: 5 * time.Second,
		obs:          obs,
		resolve:      func(n domain.NodeID) string { return n.Short() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

func (t *TCPTransport) Name() string { return "serial-tcp" }

func (t *TCPTransport) Open(ctx context.Context, node domain.NodeID, onLine ports.LineFunc) (ports.NodeChannel, error) {
	addr := net.JoinHostPort(t.resolve(node), strconv.Itoa(t.port))
	d := net.Dialer{Timeout: t.dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	c := &tcpChannel{node: node, conn: conn, writeTimeout: t.writeTimeout, done: make(chan struct{})}
	go c.readLoop(onLine, t.obs)
	return c, nil
}

type tcpChannel struct {
	node         domain.NodeID
	conn         net.Conn
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

func (c *tcpChannel) readLoop(onLine ports.LineFunc, obs ports.Observability) {
	defer close(c.done)
	scanner := bufio.NewScanner(c.conn)
	for scanner.Scan() {
		if onLine != nil {
			onLine(c.node, scanner.Text())
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) && obs != nil {
		obs.LogError("serial_read_failed", err, ports.Field{Key: "node", Value: c.node})
	}
}

func (c *tcpChannel) WriteLine(line string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return fmt.Errorf("write to %s: %w", c.node, err)
	}
	if _, err := c.conn.Write([]byte(line + "\n")); err != nil {
		return fmt.Errorf("write to %s: %w", c.node, err)
	}
	return nil
}

// Close shuts the connection and waits for the reader to exit.
func (c *tcpChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
		<-c.done
	})
	return err
}

var _ ports.Transport = (*TCPTransport)(nil)
