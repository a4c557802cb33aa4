package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"wakeproxy/logging"
	"wakeproxy/manager"
	"wakeproxy/types"
)

// RouteHandler handles API requests related to routes.
type RouteHandler struct {
	stateManager *manager.StateManager
	waker        Waker
	stopper      Stopper
}

// NewRouteHandler creates a new RouteHandler.
func NewRouteHandler(sm *manager.StateManager, waker Waker, stopper Stopper) *RouteHandler {
	return &RouteHandler{stateManager: sm, waker: waker, stopper: stopper}
}

// WakeResponse reports the result of a manual wake.
type WakeResponse struct {
	Route   string            `json:"route"`
	Outcome types.WakeOutcome `json:"outcome"`
	Error   string            `json:"error,omitempty"`
}

// ListRoutes godoc
// @Summary List routes
// @Description Returns the runtime status of every configured route
// @Tags routes
// @Produce json
// @Success 200 {array} types.RouteStatus
// @Router /routes [get]
func (h *RouteHandler) ListRoutes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.stateManager.Snapshot())
}

// GetRoute godoc
// @Summary Get a route
// @Tags routes
// @Produce json
// @Param route path string true "Route name"
// @Success 200 {object} types.RouteStatus
// @Failure 404 {object} map[string]string "error: Route not found"
// @Router /routes/{route} [get]
func (h *RouteHandler) GetRoute(w http.ResponseWriter, r *http.Request) {
	route := mux.Vars(r)["route"]
	status, ok := h.stateManager.Status(route)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Route '%s' not found", route))
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// WakeRoute godoc
// @Summary Wake a route
// @Description Starts the route's backend and waits until it is ready
// @Tags routes
// @Produce json
// @Param route path string true "Route name"
// @Success 200 {object} WakeResponse "started or already_up"
// @Failure 404 {object} map[string]string "error: Route not found"
// @Failure 409 {object} WakeResponse "cooldown"
// @Failure 502 {object} WakeResponse "error"
// @Router /routes/{route}/wake [post]
func (h *RouteHandler) WakeRoute(w http.ResponseWriter, r *http.Request) {
	route := mux.Vars(r)["route"]
	if _, ok := h.stateManager.GetRoute(route); !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Route '%s' not found", route))
		return
	}

	logging.Info("API", "Manual wake requested for route '%s'", route)
	outcome, err := h.waker.Wake(r.Context(), route)
	resp := WakeResponse{Route: route, Outcome: outcome}
	if err != nil {
		resp.Error = err.Error()
	}

	switch outcome {
	case types.WakeStarted, types.WakeAlreadyUp:
		writeJSON(w, http.StatusOK, resp)
	case types.WakeCooldown:
		writeJSON(w, http.StatusConflict, resp)
	default:
		writeJSON(w, http.StatusBadGateway, resp)
	}
}

// StopRoute godoc
// @Summary Stop a route
// @Tags routes
// @Produce json
// @Param route path string true "Route name"
// @Success 200 {object} map[string]string "message: Route stopped"
// @Failure 404 {object} map[string]string "error: Route not found"
// @Failure 502 {object} map[string]string "error: Failed to stop route"
// @Router /routes/{route}/stop [post]
func (h *RouteHandler) StopRoute(w http.ResponseWriter, r *http.Request) {
	route := mux.Vars(r)["route"]

	if _, ok := h.stateManager.GetRoute(route); !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Route '%s' not found", route))
		return
	}

	logging.Info("API", "Manual stop requested for route '%s'", route)
	err := h.stopper.Stop(r.Context(), route)
	h.stateManager.RecordStop(route, time.Now(), err)
	switch {
	case errors.Is(err, manager.ErrUnknownRoute):
		writeError(w, http.StatusNotFound, fmt.Sprintf("Route '%s' not found", route))
	case err != nil:
		logging.Error("API", err, "Failed to stop route '%s'", route)
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]string{"message": "Route stopped: " + route})
	}
}
