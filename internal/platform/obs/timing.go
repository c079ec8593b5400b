// Package obs holds small observability helpers shared by adapters.
package obs

import (
	"context"
	"log"
	"time"
)

type ctxKey string

// RequestIDKey carries a per-request correlation id through the context.
const RequestIDKey ctxKey = "req_id"

// Time logs the duration of the named operation when the returned func runs.
// Use it deferred with a pointer to the named error return:
//
//	defer obs.Time(ctx, "directions.OptimizeWaypoints")(&err)
func Time(ctx context.Context, name string) func(errp *error) {
	start := time.Now()
	reqID, _ := ctx.Value(RequestIDKey).(string)

	return func(errp *error) {
		ms := time.Since(start).Milliseconds()
		if errp != nil && *errp != nil {
			log.Printf("req_id=%s op=%s dur=%dms err=%v", reqID, name, ms, *errp)
			return
		}
		log.Printf("req_id=%s op=%s dur=%dms", reqID, name, ms)
	}
}
