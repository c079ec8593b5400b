package ports

import "context"

// CachedPlan is a stored optimization outcome for a depot+points set.
type CachedPlan struct {
	Order           []int   `json:"order"`
	DistanceMiles   float64 `json:"distance_miles"`
	DurationMinutes float64 `json:"duration_minutes"`
}

// Port: optional cache in front of the external directions provider. A miss
// is (zero, false, nil); cache failures are logged by callers and ignored.
type RouteCache interface {
	Get(ctx context.Context, key string) (CachedPlan, bool, error)
	Put(ctx context.Context, key string, plan CachedPlan) error
}
