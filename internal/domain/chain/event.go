package chain

import (
	"encoding/json"
	"time"
)

// EventType classifies a lifecycle event in an invoice's audit trail
type EventType string

const (
	EventCreated   EventType = "created"
	EventModified  EventType = "modified"
	EventCancelled EventType = "cancelled"
	EventRectified EventType = "rectified"
)

// EventStatus is the terminal outcome of the operation the event records
type EventStatus string

const (
	StatusPending EventStatus = "pending"
	StatusSuccess EventStatus = "success"
	StatusFailed  EventStatus = "failed"
)

// RelationshipType classifies a directed edge between two invoices
type RelationshipType string

const (
	RelationReplaces  RelationshipType = "replaces"
	RelationRectifies RelationshipType = "rectifies"
	RelationCancels   RelationshipType = "cancels"
	RelationModifies  RelationshipType = "modifies"
)

// Event is an immutable audit record of one attempted operation on an
// invoice. Exactly one is recorded per network attempt, success or failure;
// events are append-only and never mutated after recording.
type Event struct {
	ID              string          `json:"id"`
	InvoiceID       string          `json:"invoice_id"`
	EventType       EventType       `json:"event_type"`
	RequestPayload  json.RawMessage `json:"request_payload,omitempty"`
	ResponsePayload json.RawMessage `json:"response_payload,omitempty"`
	Status          EventStatus     `json:"status"`
	ParentInvoiceID string          `json:"parent_invoice_id,omitempty"`
	ErrorDetail     string          `json:"error_detail,omitempty"`
	Timestamp       time.Time       `json:"timestamp"`
}

// Relationship is a directed edge from InvoiceID to RelatedInvoiceID. Edges
// are indexed under both endpoints for O(1) neighbor lookup, but the stored
// orientation is always the original one.
type Relationship struct {
	InvoiceID        string           `json:"invoice_id"`
	RelatedInvoiceID string           `json:"related_invoice_id"`
	Type             RelationshipType `json:"type"`
	CreatedAt        time.Time        `json:"created_at"`
}

// relationshipTypeFor maps a lifecycle event with a parent to the edge type
// it implies. A created event naming a parent means the new invoice replaces
// the parent (substitute invoices).
func relationshipTypeFor(eventType EventType) RelationshipType {
	switch eventType {
	case EventRectified:
		return RelationRectifies
	case EventCancelled:
		return RelationCancels
	case EventModified:
		return RelationModifies
	default:
		return RelationReplaces
	}
}
