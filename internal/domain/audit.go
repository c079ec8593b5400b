package domain

import "time"

// AuditEvent records one administrative or lifecycle mutation for later review.
type AuditEvent struct {
	ID         string
	Action     string
	EntityType string
	EntityID   string
	Detail     map[string]any
	At         time.Time
}
