package ports

import (
	"context"

	"github.com/ghalamif/AegisWatt/internal/domain"
)

// LineFunc receives every line a node prints, in arrival order for that node.
type LineFunc func(node domain.NodeID, line string)

// NodeChannel is an open serial channel to one node.
type NodeChannel interface {
	// WriteLine sends line followed by a newline.
	WriteLine(line string) error
	Close() error
}

type Transport interface {
	Open(ctx context.Context, node domain.NodeID, onLine LineFunc) (NodeChannel, error)
	Name() string
}
