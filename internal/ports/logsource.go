package ports

import (
	"errors"

	"github.com/ghalamif/AegisWatt/internal/domain"
)

// ErrNoSource is returned by a LogSourceOpener when the node has no log yet.
var ErrNoSource = errors.New("log source does not exist")

// LogSource yields the lines appended to a node's consumption log since the
// previous call. ReadAvailable never waits for new data.
type LogSource interface {
	ReadAvailable() ([]string, error)
	Close() error
}

type LogSourceOpener interface {
	Open(node domain.NodeID) (LogSource, error)
}
