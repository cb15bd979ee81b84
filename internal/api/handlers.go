package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jlauha/seuranta/internal/lease"
	"github.com/jlauha/seuranta/internal/log"
	"github.com/jlauha/seuranta/internal/model"
	"github.com/jlauha/seuranta/internal/presence"
	"github.com/jlauha/seuranta/internal/storage"
)

// Handler handles HTTP requests. It translates the presence engine's
// operations into JSON request/response bodies; the engine itself defines no
// wire format.
type Handler struct {
	engine  *presence.Engine
	storage storage.Storage
	cache   *lease.Cache
}

// NewHandler creates a new API handler.
func NewHandler(engine *presence.Engine, store storage.Storage, cache *lease.Cache) *Handler {
	return &Handler{engine: engine, storage: store, cache: cache}
}

// RegisterRoutes registers all API routes.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/present", h.getPresent)
	mux.HandleFunc("GET /api/whoami", h.whoami)

	mux.HandleFunc("GET /api/entities", h.listEntities)
	mux.HandleFunc("POST /api/entities", h.createEntity)
	mux.HandleFunc("GET /api/entities/{id}", h.getEntity)
	mux.HandleFunc("PUT /api/entities/{id}", h.renameEntity)

	mux.HandleFunc("GET /api/devices", h.listDevices)
	mux.HandleFunc("GET /api/leases", h.listLeases)
}

// getPresent handles GET /api/present
func (h *Handler) getPresent(w http.ResponseWriter, r *http.Request) {
	names, err := h.engine.PresentNames()
	if err != nil {
		h.internalError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"present": names})
}

// whoami handles GET /api/whoami
func (h *Handler) whoami(w http.ResponseWriter, r *http.Request) {
	entity, err := h.engine.Resolve(r.RemoteAddr)
	if err != nil {
		h.internalError(w, err)
		return
	}
	if entity == nil {
		h.writeError(w, http.StatusNotFound, "no identity for this address")
		return
	}

	h.writeJSON(w, http.StatusOK, entity)
}

// listEntities handles GET /api/entities
func (h *Handler) listEntities(w http.ResponseWriter, r *http.Request) {
	entities, err := h.storage.ListEntities()
	if err != nil {
		h.internalError(w, err)
		return
	}
	if entities == nil {
		entities = []model.TrackedEntity{}
	}

	h.writeJSON(w, http.StatusOK, entities)
}

// getEntity handles GET /api/entities/{id}
func (h *Handler) getEntity(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	entity, err := h.storage.GetEntity(id)
	if errors.Is(err, storage.ErrEntityNotFound) {
		h.writeError(w, http.StatusNotFound, "entity not found")
		return
	}
	if err != nil {
		h.internalError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, entity)
}

type nameRequest struct {
	Name string `json:"name"`
}

// createEntity handles POST /api/entities. The caller's address is matched
// against the lease cache so the submission can be bound to a device.
func (h *Handler) createEntity(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var ls *model.Lease
	if found, ok := h.engine.ResolveLease(r.RemoteAddr); ok {
		ls = &found
	} else {
		log.Warn("Entity submission with no matching lease", "remote_addr", r.RemoteAddr)
	}

	entity, created, err := h.engine.Reconcile(req.Name, ls)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	// a resubmission merges into the existing entity rather than creating one
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	h.writeJSON(w, status, entity)
}

// renameEntity handles PUT /api/entities/{id}
func (h *Handler) renameEntity(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req nameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	entity, err := h.engine.Rename(id, req.Name)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, entity)
}

// listDevices handles GET /api/devices
func (h *Handler) listDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.storage.ListDevices()
	if err != nil {
		h.internalError(w, err)
		return
	}
	if devices == nil {
		devices = []model.Device{}
	}

	h.writeJSON(w, http.StatusOK, devices)
}

// listLeases handles GET /api/leases
func (h *Handler) listLeases(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.cache.Snapshot())
}

// writeEngineError maps engine and storage errors onto HTTP statuses:
// validation failures are 400, missing records 404, uniqueness conflicts
// 409, everything else 500.
func (h *Handler) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, presence.ErrEmptyName):
		h.writeError(w, http.StatusBadRequest, "name contains no valid characters")
	case errors.Is(err, storage.ErrEntityNotFound):
		h.writeError(w, http.StatusNotFound, "entity not found")
	case errors.Is(err, storage.ErrNameConflict):
		h.writeError(w, http.StatusConflict, "name already taken")
	case errors.Is(err, storage.ErrMACConflict):
		h.writeError(w, http.StatusConflict, "hardware address already registered")
	default:
		h.internalError(w, err)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error("Failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

func (h *Handler) internalError(w http.ResponseWriter, err error) {
	log.Error("Internal server error", "error", err)
	h.writeError(w, http.StatusInternalServerError, "internal server error")
}
