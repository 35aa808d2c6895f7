package daqcore

import (
	"context"
	"fmt"
	"time"

	"github.com/fastdaq/daqcore/internal/constants"
)

// Collect polls the registry until every worker has an event or timeout
// elapses, then drains exactly one event per worker into a Bundle. The
// bundle is always returned populated with whatever was available; a
// non-nil error only reports that the fleet was still incomplete when
// the timeout fired, for logging purposes — the caller decides whether
// an incomplete bundle is usable.
func Collect(ctx context.Context, r *Registry, timeout time.Duration) (Bundle, error) {
	deadline := time.Now().Add(timeout)

	for {
		if r.AllWorkersHaveEvent() {
			break
		}
		if time.Now().After(deadline) {
			var bundle Bundle
			r.GetEventData(&bundle)
			return bundle, fmt.Errorf("daqcore: collect timed out after %s with an incomplete bundle", timeout)
		}
		select {
		case <-ctx.Done():
			var bundle Bundle
			r.GetEventData(&bundle)
			return bundle, ctx.Err()
		case <-time.After(constants.ShortSleep):
		}
	}

	var bundle Bundle
	r.GetEventData(&bundle)
	return bundle, nil
}
