package obs

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

const unmatchedRoute = "unmatched"

// RouteLabel returns the chi route pattern that served r. It is only
// complete once the router has handled the request. Requests that matched no
// route share a single label so probes cannot inflate metric cardinality.
func RouteLabel(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return unmatchedRoute
}
