package handler

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/shiva/freightroute/internal/cargo"
	"github.com/shiva/freightroute/internal/model"
	"github.com/shiva/freightroute/internal/service"
	"github.com/shiva/freightroute/pkg/logger"
)

// ─── Request/Response DTOs ──────────────────────────────────

// ReplaceStopsBody is the JSON body for PUT /api/v1/routes/{id}/stops.
type ReplaceStopsBody struct {
	Stops   []service.StopInput `json:"stops"`
	Version *int                `json:"version"`
}

// SetStatusBody is the JSON body for PUT /api/v1/routes/{id}/status.
type SetStatusBody struct {
	Status   model.RouteStatus `json:"status"`
	Override bool              `json:"override"`
}

// CargoResponse lists the loads on board after one stop.
type CargoResponse struct {
	RouteID   uuid.UUID   `json:"routeId"`
	StopIndex int         `json:"stopIndex"`
	LoadIDs   []uuid.UUID `json:"loadIds"`
}

// ─── RouteHandler ───────────────────────────────────────────

// RouteHandler serves route plans and their stop ledger.
type RouteHandler struct {
	routes *service.RouteService
	log    logger.Logger
}

// NewRouteHandler creates a new route handler.
func NewRouteHandler(routes *service.RouteService, log logger.Logger) *RouteHandler {
	return &RouteHandler{routes: routes, log: log}
}

// Register mounts the route endpoints on api.
func (h *RouteHandler) Register(api *mux.Router) {
	api.HandleFunc("/routes", h.Create).Methods(http.MethodPost)
	api.HandleFunc("/routes/van/{vanId}", h.ListByVan).Methods(http.MethodGet)
	api.HandleFunc("/routes/{id}", h.Get).Methods(http.MethodGet)
	api.HandleFunc("/routes/{id}", h.Update).Methods(http.MethodPut)
	api.HandleFunc("/routes/{id}", h.Delete).Methods(http.MethodDelete)
	api.HandleFunc("/routes/{id}/stops", h.ReplaceStops).Methods(http.MethodPut)
	api.HandleFunc("/routes/{id}/status", h.SetStatus).Methods(http.MethodPut)
	api.HandleFunc("/routes/{id}/metrics", h.RecomputeMetrics).Methods(http.MethodPost)
	api.HandleFunc("/routes/{id}/cargo", h.CargoAt).Methods(http.MethodGet)
	api.HandleFunc("/routes/{id}/timeline", h.Timeline).Methods(http.MethodGet)
}

// Create handles POST /api/v1/routes
//
//	Request body:
//	{
//	  "name": "Leeds loop", "vanId": "…", "departureDate": "2026-03-02T06:00:00Z",
//	  "stops": [
//	    {"loadId": "…", "stopType": "PICKUP", "address": "…", "city": "Leeds",
//	     "postcode": "LS1 1AA", "country": "GB", "lat": 53.8, "lng": -1.55}
//	  ]
//	}
func (h *RouteHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body service.CreateRoutePlanInput
	if !decodeJSON(w, r, &body, false) {
		return
	}
	plan, err := h.routes.Create(r.Context(), body)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, plan)
}

// Get handles GET /api/v1/routes/{id}
func (h *RouteHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	plan, err := h.routes.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// ListByVan handles GET /api/v1/routes/van/{vanId}[?status=DRAFT]
//
// Without a status only ACTIVE plans are listed.
func (h *RouteHandler) ListByVan(w http.ResponseWriter, r *http.Request) {
	vanID, ok := pathID(w, r, "vanId")
	if !ok {
		return
	}
	var status *model.RouteStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := model.RouteStatus(raw)
		status = &s
	}
	plans, err := h.routes.ListByVan(r.Context(), vanID, status)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, plans)
}

// Update handles PUT /api/v1/routes/{id}
//
// Partial update: omitted fields are kept, "stops" replaces the whole list
// and "version", when given, must match the stored version (409 otherwise).
func (h *RouteHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var body service.UpdateRoutePlanInput
	if !decodeJSON(w, r, &body, false) {
		return
	}
	plan, err := h.routes.Update(r.Context(), id, body)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// Delete handles DELETE /api/v1/routes/{id}
func (h *RouteHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.routes.Delete(r.Context(), id); err != nil {
		writeError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ReplaceStops handles PUT /api/v1/routes/{id}/stops
func (h *RouteHandler) ReplaceStops(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var body ReplaceStopsBody
	if !decodeJSON(w, r, &body, false) {
		return
	}
	plan, err := h.routes.ReplaceStops(r.Context(), id, body.Stops, body.Version)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// SetStatus handles PUT /api/v1/routes/{id}/status
func (h *RouteHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var body SetStatusBody
	if !decodeJSON(w, r, &body, false) {
		return
	}
	plan, err := h.routes.SetStatus(r.Context(), id, body.Status, body.Override)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// RecomputeMetrics handles POST /api/v1/routes/{id}/metrics
func (h *RouteHandler) RecomputeMetrics(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	plan, err := h.routes.RecomputeMetrics(r.Context(), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// CargoAt handles GET /api/v1/routes/{id}/cargo?stopIndex=n
func (h *RouteHandler) CargoAt(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	stopIndex, ok := queryInt(w, r, "stopIndex")
	if !ok {
		return
	}
	loads, err := h.routes.CargoAt(r.Context(), id, stopIndex)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, CargoResponse{RouteID: id, StopIndex: stopIndex, LoadIDs: loads})
}

// Timeline handles GET /api/v1/routes/{id}/timeline
func (h *RouteHandler) Timeline(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	frames, err := h.routes.Timeline(r.Context(), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if frames == nil {
		frames = []cargo.Frame{}
	}
	writeJSON(w, http.StatusOK, frames)
}
