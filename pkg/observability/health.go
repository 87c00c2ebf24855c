package observability

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
)

const (
	healthStatusOK          = "ok"
	healthStatusUnavailable = "unavailable"
)

// ReadyCheck reports whether a subsystem can serve traffic.
type ReadyCheck func(ctx context.Context) error

// HealthHandler serves liveness at /healthz. It always answers 200 {"status":"ok"}.
func HealthHandler() http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, _ *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		rw.WriteHeader(http.StatusOK)
		writeHealthJSON(rw, map[string]string{"status": healthStatusOK})
	})
}

// ReadyHandler serves readiness at /readyz. The first failing check turns the
// answer into 503 with the failure reason; otherwise it is 200 {"status":"ok"}.
func ReadyHandler(checks ...ReadyCheck) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, hr *http.Request) {
		rw.Header().Set("Content-Type", "application/json")

		for _, check := range checks {
			err := check(hr.Context())
			if err != nil {
				rw.WriteHeader(http.StatusServiceUnavailable)
				writeHealthJSON(rw, map[string]string{"status": healthStatusUnavailable, "reason": err.Error()})

				return
			}
		}

		rw.WriteHeader(http.StatusOK)
		writeHealthJSON(rw, map[string]string{"status": healthStatusOK})
	})
}

func writeHealthJSON(w io.Writer, body map[string]string) {
	// The status line is already out; a failed body write has no recovery.
	_ = json.NewEncoder(w).Encode(body)
}
