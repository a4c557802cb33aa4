package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"wakeproxy/cloudflare"
	"wakeproxy/logging"
	"wakeproxy/manager"
	"wakeproxy/metrics"
	"wakeproxy/types"
)

// Waker runs the wake sequence for a route.
type Waker interface {
	Wake(ctx context.Context, route string) (types.WakeOutcome, error)
}

// Stopper stops a route's backend.
type Stopper interface {
	Stop(ctx context.Context, route string) error
}

// NewRouter builds the admin API. domains may be nil when DNS sync is off.
func NewRouter(sm *manager.StateManager, waker Waker, stopper Stopper, domains *cloudflare.Manager) *mux.Router {
	router := mux.NewRouter()

	routes := NewRouteHandler(sm, waker, stopper)
	router.HandleFunc("/health", healthHandler).Methods(http.MethodGet)
	router.HandleFunc("/routes", routes.ListRoutes).Methods(http.MethodGet)
	router.HandleFunc("/routes/{route}", routes.GetRoute).Methods(http.MethodGet)
	router.HandleFunc("/routes/{route}/wake", routes.WakeRoute).Methods(http.MethodPost)
	router.HandleFunc("/routes/{route}/stop", routes.StopRoute).Methods(http.MethodPost)

	NewDomainHandler(domains, sm).RegisterDomainHandlers(router)

	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	router.Use(loggingMiddleware)
	return router
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// loggingMiddleware logs incoming requests
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logging.Debug("API", "%s %s %s", r.Method, r.RequestURI, time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("API", err, "Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
