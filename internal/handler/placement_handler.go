package handler

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/shiva/freightroute/internal/model"
	"github.com/shiva/freightroute/internal/service"
	"github.com/shiva/freightroute/pkg/logger"
)

// PlacementHandler serves the cargo floor layout of a route.
type PlacementHandler struct {
	layout *service.PlacementService
	log    logger.Logger
}

// NewPlacementHandler creates a new placement handler.
func NewPlacementHandler(layout *service.PlacementService, log logger.Logger) *PlacementHandler {
	return &PlacementHandler{layout: layout, log: log}
}

// Register mounts the placement endpoints on api.
func (h *PlacementHandler) Register(api *mux.Router) {
	api.HandleFunc("/routes/{id}/placements", h.List).Methods(http.MethodGet)
	api.HandleFunc("/routes/{id}/placements", h.Place).Methods(http.MethodPost)
	api.HandleFunc("/routes/{id}/placements/{pid}", h.Move).Methods(http.MethodPut)
	api.HandleFunc("/routes/{id}/placements/{pid}", h.Remove).Methods(http.MethodDelete)
	api.HandleFunc("/routes/{id}/loads/{loadId}/placements", h.RemoveByLoad).Methods(http.MethodDelete)
	api.HandleFunc("/routes/{id}/layout", h.LayoutAt).Methods(http.MethodGet)
}

// List handles GET /api/v1/routes/{id}/placements[?loadId=…]
func (h *PlacementHandler) List(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var out []model.CargoPlacement
	var err error
	if raw := r.URL.Query().Get("loadId"); raw != "" {
		loadID, perr := uuid.Parse(raw)
		if perr != nil {
			badRequest(w, "invalid loadId: must be a UUID")
			return
		}
		out, err = h.layout.ListByLoad(r.Context(), id, loadID)
	} else {
		out, err = h.layout.List(r.Context(), id)
	}
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// Place handles POST /api/v1/routes/{id}/placements
//
//	Request body:
//	{"loadId": "…", "xCm": 0, "yCm": 0, "widthCm": 120, "heightCm": 80, "rotated": false}
//
// hasConflict and isOverflow are computed by the server and returned.
func (h *PlacementHandler) Place(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var body service.PlaceCargoInput
	if !decodeJSON(w, r, &body, false) {
		return
	}
	placed, err := h.layout.Place(r.Context(), id, body)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, placed)
}

// Move handles PUT /api/v1/routes/{id}/placements/{pid}
func (h *PlacementHandler) Move(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	pid, ok := pathID(w, r, "pid")
	if !ok {
		return
	}
	var body service.MoveCargoInput
	if !decodeJSON(w, r, &body, false) {
		return
	}
	moved, err := h.layout.Move(r.Context(), id, pid, body)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, moved)
}

// Remove handles DELETE /api/v1/routes/{id}/placements/{pid}
func (h *PlacementHandler) Remove(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	pid, ok := pathID(w, r, "pid")
	if !ok {
		return
	}
	if err := h.layout.Remove(r.Context(), id, pid); err != nil {
		writeError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveByLoad handles DELETE /api/v1/routes/{id}/loads/{loadId}/placements
func (h *PlacementHandler) RemoveByLoad(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	loadID, ok := pathID(w, r, "loadId")
	if !ok {
		return
	}
	n, err := h.layout.RemoveByLoad(r.Context(), id, loadID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"removed": n})
}

// LayoutAt handles GET /api/v1/routes/{id}/layout?stopIndex=n
func (h *PlacementHandler) LayoutAt(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	stopIndex, ok := queryInt(w, r, "stopIndex")
	if !ok {
		return
	}
	out, err := h.layout.LayoutAt(r.Context(), id, stopIndex)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
