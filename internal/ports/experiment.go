package ports

import (
	"context"

	"github.com/ghalamif/AegisWatt/internal/domain"
)

// NodeStopper powers a node off.
type NodeStopper interface {
	StopNode(ctx context.Context, node domain.NodeID) error
}

// Experiment is the testbed's view of the running experiment.
type Experiment interface {
	NodeStopper
	ID() int
	WaitUntilRunning(ctx context.Context) error
	ListNodes(ctx context.Context) ([]domain.NodeID, error)
}
