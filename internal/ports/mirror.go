package ports

import (
	"context"

	"github.com/ghalamif/AegisWatt/internal/domain"
)

// NodeStatus is a point-in-time view of one tracked node.
type NodeStatus struct {
	Node          domain.NodeID `json:"node"`
	State         string        `json:"state"`
	EnergyWs      float64       `json:"energy_ws"`
	NetEnergyWs   float64       `json:"net_energy_ws"`
	BudgetWs      float64       `json:"budget_ws,omitempty"`
	HasBudget     bool          `json:"has_budget"`
	Percent       float64       `json:"percent,omitempty"`
	LastTimestamp float64       `json:"last_timestamp,omitempty"`
}

// StateMirror publishes live node status for external viewers.
type StateMirror interface {
	Publish(ctx context.Context, statuses []NodeStatus) error
	Close() error
}
