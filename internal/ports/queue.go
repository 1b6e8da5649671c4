package ports

import "github.com/ghalamif/AegisWatt/internal/domain"

type EventQueue interface {
	Enqueue(e *domain.NodeEvent) bool
	DequeueBatch(max int) []*domain.NodeEvent
	Len() int
}
