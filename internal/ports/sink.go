package ports

import "github.com/ghalamif/AegisWatt/internal/domain"

// EventSink persists journal batches.
type EventSink interface {
	WriteBatch(events []*domain.NodeEvent) error
	Name() string
}
