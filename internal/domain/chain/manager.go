package chain

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxChainLength bounds the longest replaces/rectifies path allowed
// through an invoice (counted in invoices, not edges).
const DefaultMaxChainLength = 10

// manyModificationsThreshold is the number of successful modifications after
// which further modifications draw a warning
const manyModificationsThreshold = 5

// ValidationResult is the outcome of a pre-flight chain check. Errors block
// the operation; warnings do not.
type ValidationResult struct {
	Valid       bool     `json:"valid"`
	Errors      []string `json:"errors,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
	ChainLength int      `json:"chain_length"`
}

func (r *ValidationResult) addError(msg string) {
	r.Valid = false
	r.Errors = append(r.Errors, msg)
}

// ValidationError is returned when a chain check blocks an operation before
// any network attempt is made.
type ValidationError struct {
	InvoiceID string
	Errors    []string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("chain validation failed for invoice %s: %v", e.InvoiceID, e.Errors)
}

// snapshot is the exported form of the manager's full state
type snapshot struct {
	Events        map[string][]Event        `json:"events"`
	Relationships map[string][]Relationship `json:"relationships"`
}

// Manager holds the in-memory graph of invoice lifecycle events and
// relationships. It is the system's append-only audit log: events are never
// mutated or deleted except through an explicit Reset or Import.
//
// All state is guarded by a single RWMutex; the cycle-detection traversal
// holds the read lock for its whole run so it always sees a consistent graph.
type Manager struct {
	mu             sync.RWMutex
	events         map[string][]Event
	relationships  map[string][]Relationship
	maxChainLength int
	now            func() time.Time
}

// NewManager creates an empty chain manager
func NewManager() *Manager {
	return &Manager{
		events:         make(map[string][]Event),
		relationships:  make(map[string][]Relationship),
		maxChainLength: DefaultMaxChainLength,
		now:            time.Now,
	}
}

// RecordEvent assigns an id and timestamp, appends the event to the
// invoice's log, and if the event names a parent records the relationship
// edge under both endpoints. The completed event is returned.
func (m *Manager) RecordEvent(event Event) Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = m.now()
	}

	m.events[event.InvoiceID] = append(m.events[event.InvoiceID], event)

	if event.ParentInvoiceID != "" {
		rel := Relationship{
			InvoiceID:        event.InvoiceID,
			RelatedInvoiceID: event.ParentInvoiceID,
			Type:             relationshipTypeFor(event.EventType),
			CreatedAt:        event.Timestamp,
		}
		m.relationships[rel.InvoiceID] = append(m.relationships[rel.InvoiceID], rel)
		m.relationships[rel.RelatedInvoiceID] = append(m.relationships[rel.RelatedInvoiceID], rel)
	}

	return event
}

// GetInvoiceChain returns the invoice's events in insertion order
func (m *Manager) GetInvoiceChain(invoiceID string) []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := m.events[invoiceID]
	out := make([]Event, len(events))
	copy(out, events)
	return out
}

// GetRelationships returns every edge touching the invoice, in either
// direction
func (m *Manager) GetRelationships(invoiceID string) []Relationship {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rels := m.relationships[invoiceID]
	out := make([]Relationship, len(rels))
	copy(out, rels)
	return out
}

// ValidateOperation checks whether opType may be attempted on the invoice,
// before any network call is made. targetID names the invoice being
// rectified and is required for rectification.
func (m *Manager) ValidateOperation(invoiceID string, opType EventType, targetID string) ValidationResult {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := ValidationResult{Valid: true}

	switch opType {
	case EventModified:
		if m.isCancelled(invoiceID) {
			result.addError(fmt.Sprintf("invoice %s is cancelled and cannot be modified", invoiceID))
		}
		if n := m.modificationCount(invoiceID); n >= manyModificationsThreshold {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("invoice %s has already been modified %d times, consider a rectification instead", invoiceID, n))
		}

	case EventCancelled:
		if m.isCancelled(invoiceID) {
			result.addError(fmt.Sprintf("invoice %s is already cancelled", invoiceID))
		}
		if n := m.activeRectifications(invoiceID); n > 0 {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("invoice %s has %d active rectification(s) that will be orphaned", invoiceID, n))
		}

	case EventRectified:
		if targetID == "" {
			result.addError("rectification requires a target invoice id")
			break
		}
		if m.isCancelled(targetID) {
			result.addError(fmt.Sprintf("target invoice %s is cancelled and cannot be rectified", targetID))
		}
		if m.wouldCreateCycle(invoiceID, targetID) {
			result.addError(fmt.Sprintf("rectifying %s from %s would create a cycle in the invoice chain", targetID, invoiceID))
		}
	}

	result.ChainLength = m.longestChainFrom(invoiceID)
	if result.ChainLength > m.maxChainLength {
		result.addError(fmt.Sprintf("invoice chain length %d exceeds the maximum of %d", result.ChainLength, m.maxChainLength))
	}

	return result
}

// Stats summarizes the current graph size
func (m *Manager) Stats() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	totalEvents := 0
	for _, events := range m.events {
		totalEvents += len(events)
	}
	totalEdges := 0
	for _, rels := range m.relationships {
		totalEdges += len(rels)
	}
	return map[string]int{
		"invoices": len(m.events),
		"events":   totalEvents,
		// each edge is indexed under both endpoints
		"relationships": totalEdges / 2,
	}
}

// Export serializes the full event log and relationship graph
func (m *Manager) Export() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return json.Marshal(snapshot{
		Events:        m.events,
		Relationships: m.relationships,
	})
}

// Import replaces the manager's state with a previously exported snapshot
func (m *Manager) Import(data []byte) error {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("invalid chain snapshot: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if snap.Events == nil {
		snap.Events = make(map[string][]Event)
	}
	if snap.Relationships == nil {
		snap.Relationships = make(map[string][]Relationship)
	}
	m.events = snap.Events
	m.relationships = snap.Relationships
	return nil
}

// Reset discards all events and relationships
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events = make(map[string][]Event)
	m.relationships = make(map[string][]Relationship)
}

// isCancelled reports whether the invoice has a successful cancelled event.
// Caller must hold at least the read lock.
func (m *Manager) isCancelled(invoiceID string) bool {
	for _, event := range m.events[invoiceID] {
		if event.EventType == EventCancelled && event.Status == StatusSuccess {
			return true
		}
	}
	return false
}

// modificationCount counts the invoice's successful modified events. Caller
// must hold at least the read lock.
func (m *Manager) modificationCount(invoiceID string) int {
	count := 0
	for _, event := range m.events[invoiceID] {
		if event.EventType == EventModified && event.Status == StatusSuccess {
			count++
		}
	}
	return count
}

// activeRectifications counts non-cancelled invoices that rectify the given
// one. Caller must hold at least the read lock.
func (m *Manager) activeRectifications(invoiceID string) int {
	count := 0
	for _, rel := range m.relationships[invoiceID] {
		if rel.Type == RelationRectifies && rel.RelatedInvoiceID == invoiceID && !m.isCancelled(rel.InvoiceID) {
			count++
		}
	}
	return count
}

// wouldCreateCycle reports whether adding an edge source→target would close
// a cycle in the replaces/rectifies sub-graph: a depth-first walk from target
// along forward edges that reaches source, or revisits a node already on the
// current path, means the new edge is unsafe. Two branches re-converging on
// the same invoice is legitimate and must not be flagged, so membership is
// tracked per path, not globally. The graph is caller-supplied and never
// trusted to be acyclic. Caller must hold at least the read lock.
func (m *Manager) wouldCreateCycle(sourceID, targetID string) bool {
	if sourceID == targetID {
		return true
	}
	return m.onCyclicPath(targetID, sourceID, make(map[string]bool))
}

func (m *Manager) onCyclicPath(current, sourceID string, onPath map[string]bool) bool {
	if current == sourceID {
		return true
	}
	if onPath[current] {
		// the existing graph already loops through this node
		return true
	}
	onPath[current] = true
	defer delete(onPath, current)

	for _, rel := range m.relationships[current] {
		if rel.InvoiceID != current {
			continue // reverse-indexed edge, not outgoing
		}
		if rel.Type != RelationReplaces && rel.Type != RelationRectifies {
			continue
		}
		if m.onCyclicPath(rel.RelatedInvoiceID, sourceID, onPath) {
			return true
		}
	}
	return false
}

// longestChainFrom returns the number of invoices on the longest
// replaces/rectifies path starting at the invoice, itself included. The
// visited set bounds the walk so a cyclic graph terminates instead of
// recursing forever. Caller must hold at least the read lock.
func (m *Manager) longestChainFrom(invoiceID string) int {
	visited := make(map[string]bool)
	return m.longestPath(invoiceID, visited)
}

func (m *Manager) longestPath(invoiceID string, visited map[string]bool) int {
	if visited[invoiceID] {
		return 0
	}
	visited[invoiceID] = true
	defer delete(visited, invoiceID)

	longest := 0
	for _, rel := range m.relationships[invoiceID] {
		if rel.InvoiceID != invoiceID {
			continue
		}
		if rel.Type != RelationReplaces && rel.Type != RelationRectifies {
			continue
		}
		if length := m.longestPath(rel.RelatedInvoiceID, visited); length > longest {
			longest = length
		}
	}
	return longest + 1
}
