package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoEligibleStops is returned when route creation receives no
	// customer with usable coordinates.
	ErrNoEligibleStops = errors.New("no stops with coordinates to route")

	// ErrDuplicateStop is returned when a customer is already on the route.
	ErrDuplicateStop = errors.New("customer is already on this route")

	// ErrSkipReasonRequired is returned when a stop is skipped without a reason.
	ErrSkipReasonRequired = errors.New("skip reason is required to skip a stop")

	// ErrRouteClosed is returned when a mutation targets a completed or
	// cancelled route.
	ErrRouteClosed = errors.New("route is completed or cancelled")

	ErrRouteNotFound    = errors.New("route not found")
	ErrStopNotFound     = errors.New("stop not found")
	ErrCustomerNotFound = errors.New("customer not found")
	ErrCrewNotFound     = errors.New("crew member not found")

	// ErrCustomerArchived is returned when an archived customer is added to a route.
	ErrCustomerArchived = errors.New("customer is archived and cannot be added to routes")
)

// TransitionError reports a state-machine guard violation.
type TransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid %s transition %s -> %s", e.Entity, e.From, e.To)
}

// MissingCoordinatesError names the customers that block an optimization
// because they have no geocoded location.
type MissingCoordinatesError struct {
	CustomerIDs []string
}

func (e *MissingCoordinatesError) Error() string {
	return fmt.Sprintf(
		"cannot optimize: customers missing coordinates: %s",
		strings.Join(e.CustomerIDs, ", "),
	)
}
