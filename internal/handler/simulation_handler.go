package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/shiva/freightroute/internal/model"
	"github.com/shiva/freightroute/internal/service"
	"github.com/shiva/freightroute/pkg/logger"
)

// CreateSimulationBody is the optional JSON body for POST /api/v1/routes/{id}/simulate.
type CreateSimulationBody struct {
	Name *string `json:"name"`
}

// SimulationResponse is a simulation record with its derived state.
type SimulationResponse struct {
	*model.RouteSimulation
	State model.SimulationState `json:"state"`
}

func simulationResponse(s *model.RouteSimulation) SimulationResponse {
	return SimulationResponse{RouteSimulation: s, State: s.State()}
}

// SimulationHandler serves the what-if simulation endpoints.
type SimulationHandler struct {
	sims *service.SimulationService
	log  logger.Logger
}

// NewSimulationHandler creates a new simulation handler.
func NewSimulationHandler(sims *service.SimulationService, log logger.Logger) *SimulationHandler {
	return &SimulationHandler{sims: sims, log: log}
}

// Register mounts the simulation endpoints on api.
func (h *SimulationHandler) Register(api *mux.Router) {
	api.HandleFunc("/routes/{id}/simulate", h.Create).Methods(http.MethodPost)
	api.HandleFunc("/routes/{id}/simulations", h.List).Methods(http.MethodGet)
	api.HandleFunc("/simulations/{id}", h.Get).Methods(http.MethodGet)
	api.HandleFunc("/simulations/{id}/deltas", h.ComputeDeltas).Methods(http.MethodPost)
	api.HandleFunc("/simulations/{id}/apply", h.Apply).Methods(http.MethodPost)
	api.HandleFunc("/simulations/{id}", h.Discard).Methods(http.MethodDelete)
}

// Create handles POST /api/v1/routes/{id}/simulate
//
// Clones the route into a SIMULATION plan. The body is optional.
//
// Response codes:
//
//	201  simulation created
//	404  route not found
//	409  route is not DRAFT or ACTIVE
func (h *SimulationHandler) Create(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var body CreateSimulationBody
	if !decodeJSON(w, r, &body, true) {
		return
	}
	sim, err := h.sims.Create(r.Context(), id, body.Name)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, simulationResponse(sim))
}

// List handles GET /api/v1/routes/{id}/simulations
func (h *SimulationHandler) List(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	sims, err := h.sims.List(r.Context(), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	out := make([]SimulationResponse, len(sims))
	for i := range sims {
		out[i] = simulationResponse(&sims[i])
	}
	writeJSON(w, http.StatusOK, out)
}

// Get handles GET /api/v1/simulations/{id}
func (h *SimulationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	sim, err := h.sims.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, simulationResponse(sim))
}

// ComputeDeltas handles POST /api/v1/simulations/{id}/deltas
func (h *SimulationHandler) ComputeDeltas(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	sim, err := h.sims.ComputeDeltas(r.Context(), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, simulationResponse(sim))
}

// Apply handles POST /api/v1/simulations/{id}/apply
//
// Archives the source route and activates the simulated one in one
// transaction. Returns the now ACTIVE route.
//
// Response codes:
//
//	200  applied
//	404  simulation not found
//	409  already applied, or the source is no longer DRAFT/ACTIVE
//	408  timed out waiting for the route locks
func (h *SimulationHandler) Apply(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	plan, err := h.sims.Apply(r.Context(), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// Discard handles DELETE /api/v1/simulations/{id}
func (h *SimulationHandler) Discard(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.sims.Discard(r.Context(), id); err != nil {
		writeError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
