// Package messaging defines the broker-agnostic event publishing contract.
package messaging

import (
	"context"
)

const (
	// InventoryStream captures every inventory.* subject.
	InventoryStream      = "INVENTORY"
	InventorySubjects    = "inventory.>"
	LowStockAlertSubject = "inventory.stock.low"
)

type Event interface {
	Subject() string
	Payload() ([]byte, error)
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NoopPublisher drops every event. Used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) error { return nil }
