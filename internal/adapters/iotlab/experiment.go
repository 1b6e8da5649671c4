package iotlab

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ghalamif/AegisWatt/internal/domain"
	"github.com/ghalamif/AegisWatt/internal/ports"
)

// Experiment states reported by the API.
const (
	StateRunning    = "Running"
	StateTerminated = "Terminated"
	StateError      = "Error"
	StateStopped    = "Stopped"
)

// ErrNoExperiment is returned when the user has no running experiment.
var ErrNoExperiment = errors.New("no running experiment")

type experimentInfo struct {
	ID    int    `json:"id"`
	State string `json:"state"`
}

type nodeInfo struct {
	NetworkAddress string `json:"network_address"`
	Archi          string `json:"archi"`
	Site           string `json:"site"`
}

type nodesResponse struct {
	Items []nodeInfo `json:"items"`
}

type experimentsResponse struct {
	Items []experimentInfo `json:"items"`
}

// CurrentExperiment returns the id of the user's running experiment. With
// more than one, the newest wins.
func (c *Client) CurrentExperiment(ctx context.Context) (int, error) {
	var resp experimentsResponse
	if err := c.get(ctx, "/experiments?state="+StateRunning, &resp); err != nil {
		return 0, err
	}
	if len(resp.Items) == 0 {
		return 0, ErrNoExperiment
	}
	id := resp.Items[0].ID
	for _, e := range resp.Items[1:] {
		if e.ID > id {
			id = e.ID
		}
	}
	return id, nil
}

// Experiment binds the client to one experiment id.
type Experiment struct {
	client   *Client
	id       int
	interval time.Duration
}

func NewExperiment(client *Client, id int, pollInterval time.Duration) *Experiment {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &Experiment{client: client, id: id, interval: pollInterval}
}

func (e *Experiment) ID() int { return e.id }

// State fetches the current experiment state.
func (e *Experiment) State(ctx context.Context) (string, error) {
	var info experimentInfo
	if err := e.client.get(ctx, fmt.Sprintf("/experiments/%d", e.id), &info); err != nil {
		return "", err
	}
	return info.State, nil
}

// WaitUntilRunning polls the experiment state until it is running. A
// terminal state is an error.
func (e *Experiment) WaitUntilRunning(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		state, err := e.State(ctx)
		if err != nil {
			return fmt.Errorf("experiment %d state: %w", e.id, err)
		}
		switch state {
		case StateRunning:
			return nil
		case StateTerminated, StateError, StateStopped:
			return fmt.Errorf("experiment %d ended in state %s", e.id, state)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ListNodes returns the experiment's node hostnames, sorted.
func (e *Experiment) ListNodes(ctx context.Context) ([]domain.NodeID, error) {
	var resp nodesResponse
	if err := e.client.get(ctx, fmt.Sprintf("/experiments/%d/nodes", e.id), &resp); err != nil {
		return nil, fmt.Errorf("list nodes of %d: %w", e.id, err)
	}
	out := make([]domain.NodeID, 0, len(resp.Items))
	for _, n := range resp.Items {
		if n.NetworkAddress != "" {
			out = append(out, domain.NodeID(n.NetworkAddress))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// StopNode powers one node off. The API answers with result codes mapped
// to node lists; anything but "0" is a failure.
func (e *Experiment) StopNode(ctx context.Context, node domain.NodeID) error {
	var resp map[string][]string
	path := fmt.Sprintf("/experiments/%d/nodes/stop", e.id)
	if err := e.client.post(ctx, path, []string{string(node)}, &resp); err != nil {
		return fmt.Errorf("stop %s: %w", node, err)
	}
	for code, nodes := range resp {
		if code == "0" {
			continue
		}
		for _, n := range nodes {
			if n == string(node) {
				return fmt.Errorf("stop %s: result code %s", node, code)
			}
		}
	}
	return nil
}

var _ ports.Experiment = (*Experiment)(nil)

