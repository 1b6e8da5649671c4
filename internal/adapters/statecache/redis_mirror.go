package statecache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ghalamif/AegisWatt/internal/domain"
	"github.com/ghalamif/AegisWatt/internal/ports"
)

// RedisMirror publishes node status under
//
//	<prefix>:<experiment>:node:<node>  JSON status, expiring after ttl
//	<prefix>:<experiment>:nodes        set of node ids
type RedisMirror struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisMirror(rdb *redis.Client, prefix string, experimentID int, ttl time.Duration) *RedisMirror {
	if prefix == "" {
		prefix = "aegiswatt"
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisMirror{rdb: rdb, prefix: fmt.Sprintf("%s:%d", prefix, experimentID), ttl: ttl}
}

func (m *RedisMirror) nodeKey(node domain.NodeID) string {
	return m.prefix + ":node:" + string(node)
}

func (m *RedisMirror) setKey() string {
	return m.prefix + ":nodes"
}

func (m *RedisMirror) Publish(ctx context.Context, statuses []ports.NodeStatus) error {
	if len(statuses) == 0 {
		return nil
	}
	_, err := m.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, st := range statuses {
			data, err := json.Marshal(st)
			if err != nil {
				return fmt.Errorf("marshal %s: %w", st.Node, err)
			}
			pipe.Set(ctx, m.nodeKey(st.Node), data, m.ttl)
			pipe.SAdd(ctx, m.setKey(), string(st.Node))
		}
		pipe.Expire(ctx, m.setKey(), m.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("publish node status: %w", err)
	}
	return nil
}

// Get reads one node's mirrored status.
func (m *RedisMirror) Get(ctx context.Context, node domain.NodeID) (ports.NodeStatus, error) {
	var st ports.NodeStatus
	data, err := m.rdb.Get(ctx, m.nodeKey(node)).Bytes()
	if err != nil {
		return st, err
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return st, fmt.Errorf("decode %s: %w", node, err)
	}
	return st, nil
}

// Nodes lists mirrored node ids.
func (m *RedisMirror) Nodes(ctx context.Context) ([]string, error) {
	return m.rdb.SMembers(ctx, m.setKey()).Result()
}

func (m *RedisMirror) Close() error {
	return m.rdb.Close()
}

var _ ports.StateMirror = (*RedisMirror)(nil)
