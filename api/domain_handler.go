package api

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"wakeproxy/cloudflare"
	"wakeproxy/logging"
	"wakeproxy/manager"
	"wakeproxy/types"
)

// DomainHandler handles API requests related to domains.
type DomainHandler struct {
	cloudflareManager *cloudflare.Manager
	stateManager      *manager.StateManager
}

// NewDomainHandler creates a new DomainHandler.
func NewDomainHandler(cm *cloudflare.Manager, sm *manager.StateManager) *DomainHandler {
	return &DomainHandler{
		cloudflareManager: cm,
		stateManager:      sm,
	}
}

// RegisterDomainHandlers registers the domain handlers with the given router
func (h *DomainHandler) RegisterDomainHandlers(router *mux.Router) {
	router.HandleFunc("/domains", h.ListAllDomains).Methods(http.MethodGet)
	router.HandleFunc("/domains/{route}", h.GetDomainForRoute).Methods(http.MethodGet)
	router.HandleFunc("/domains/{route}", h.CreateDomainForRoute).Methods(http.MethodPost)
	router.HandleFunc("/domains/{route}", h.DeleteDomainForRoute).Methods(http.MethodDelete)
}

// ListAllDomains godoc
// @Summary List all domains
// @Description Returns a list of all domains managed by the application
// @Tags domains
// @Produce json
// @Success 200 {array} types.RouteDomain "List of domains"
// @Router /domains [get]
func (h *DomainHandler) ListAllDomains(w http.ResponseWriter, r *http.Request) {
	if h.cloudflareManager == nil {
		writeJSON(w, http.StatusOK, []types.RouteDomain{})
		return
	}
	writeJSON(w, http.StatusOK, h.cloudflareManager.GetAllDomains())
}

// GetDomainForRoute godoc
// @Summary Get domain information for a route
// @Tags domains
// @Produce json
// @Param route path string true "Route name"
// @Success 200 {object} types.RouteDomain "Domain information"
// @Failure 404 {object} map[string]string "error: Route or domain not found"
// @Router /domains/{route} [get]
func (h *DomainHandler) GetDomainForRoute(w http.ResponseWriter, r *http.Request) {
	route, ok := h.knownRoute(w, r)
	if !ok {
		return
	}

	if h.cloudflareManager == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Domain for route '%s' not found", route))
		return
	}
	domain, exists := h.cloudflareManager.GetRouteDomain(route)
	if !exists {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Domain for route '%s' not found", route))
		return
	}
	writeJSON(w, http.StatusOK, domain)
}

// CreateDomainForRoute godoc
// @Summary Create the domain for a route
// @Tags domains
// @Produce json
// @Param route path string true "Route name"
// @Success 201 {object} types.RouteDomain "The created domain"
// @Failure 404 {object} map[string]string "error: Route not found"
// @Failure 500 {object} map[string]string "error: Failed to create domain"
// @Router /domains/{route} [post]
func (h *DomainHandler) CreateDomainForRoute(w http.ResponseWriter, r *http.Request) {
	route, ok := h.knownRoute(w, r)
	if !ok {
		return
	}

	if h.cloudflareManager == nil || !h.cloudflareManager.IsEnabled() {
		writeJSON(w, http.StatusOK, map[string]string{"message": "Domain creation skipped (Cloudflare integration disabled)"})
		return
	}

	domain, err := h.cloudflareManager.RegisterRouteDomain(r.Context(), route)
	if err != nil {
		logging.Error("API", err, "Failed to create domain for route '%s'", route)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to create domain: %v", err))
		return
	}
	writeJSON(w, http.StatusCreated, domain)
}

// DeleteDomainForRoute godoc
// @Summary Delete the domain for a route
// @Tags domains
// @Produce json
// @Param route path string true "Route name"
// @Success 200 {object} map[string]string "message: Domain deleted successfully"
// @Failure 404 {object} map[string]string "error: Domain not found"
// @Failure 500 {object} map[string]string "error: Failed to delete domain"
// @Router /domains/{route} [delete]
func (h *DomainHandler) DeleteDomainForRoute(w http.ResponseWriter, r *http.Request) {
	route := mux.Vars(r)["route"]

	if h.cloudflareManager == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Domain for route '%s' not found", route))
		return
	}
	if _, exists := h.cloudflareManager.GetRouteDomain(route); !exists {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Domain for route '%s' not found", route))
		return
	}

	if err := h.cloudflareManager.DeleteRouteDomain(r.Context(), route); err != nil {
		logging.Error("API", err, "Failed to delete domain for route '%s'", route)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to delete domain: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Domain deleted successfully"})
}

func (h *DomainHandler) knownRoute(w http.ResponseWriter, r *http.Request) (string, bool) {
	route := mux.Vars(r)["route"]
	if _, exists := h.stateManager.GetRoute(route); !exists {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Route '%s' not found", route))
		return route, false
	}
	return route, true
}
