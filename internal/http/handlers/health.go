package handlers

import (
	"net/http"
)

// Health reports process liveness along with breaker states and database
// connectivity. A degraded dependency does not fail the check; operators
// read the detail, load balancers read the status code.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}

	if a.Breakers != nil {
		resp["breakers"] = a.Breakers.Snapshots()
	}
	if a.DB != nil {
		if err := a.DB.Ping(r.Context()); err != nil {
			resp["database"] = "unreachable"
			a.json(w, http.StatusServiceUnavailable, resp)
			return
		}
		resp["database"] = "ok"
	}

	a.json(w, http.StatusOK, resp)
}
