package domain

import "time"

type StopStatus string

const (
	StopPending    StopStatus = "pending"
	StopInProgress StopStatus = "in_progress"
	StopCompleted  StopStatus = "completed"
	StopSkipped    StopStatus = "skipped"
	StopCancelled  StopStatus = "cancelled"
)

// Stop is one scheduled visit to a customer location within a route.
type Stop struct {
	ID                       string
	RouteID                  string
	CustomerID               string
	Order                    int
	Status                   StopStatus
	EstimatedDurationMinutes int
	ActualDurationMinutes    *int
	ActualArrivalTime        *time.Time
	ActualDepartureTime      *time.Time
	CompletedAt              *time.Time
	ServiceNotes             string
	SkipReason               string
}

// Resolved reports whether the stop no longer needs a visit. A route whose
// stops are all resolved is finished.
func (s *Stop) Resolved() bool {
	return s.Status != StopPending && s.Status != StopInProgress
}

// ValidateStopTransition enforces the stop state machine:
// pending -> in_progress; pending|in_progress -> completed|skipped|cancelled;
// completed|skipped -> pending (explicit undo).
func ValidateStopTransition(from, to StopStatus) error {
	ok := false
	switch to {
	case StopInProgress:
		ok = from == StopPending
	case StopCompleted, StopSkipped, StopCancelled:
		ok = from == StopPending || from == StopInProgress
	case StopPending:
		ok = from == StopCompleted || from == StopSkipped
	}
	if !ok {
		return &TransitionError{Entity: "stop", From: string(from), To: string(to)}
	}
	return nil
}
