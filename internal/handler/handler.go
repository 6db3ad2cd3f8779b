// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/festreg/internal/apperr"
	"github.com/Shivanand-hulikatti/festreg/internal/lifecycle"
	"github.com/Shivanand-hulikatti/festreg/internal/model"
	"github.com/Shivanand-hulikatti/festreg/internal/repository"
	"github.com/Shivanand-hulikatti/festreg/internal/service"
)

// EventHandler serves the public event pages and the admin screens.
type EventHandler struct {
	events   *service.EventService
	settings *service.SettingService
	log      *zap.Logger
}

// NewEventHandler constructs an EventHandler.
func NewEventHandler(events *service.EventService, settings *service.SettingService, log *zap.Logger) *EventHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &EventHandler{events: events, settings: settings, log: log}
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// writeServiceError maps the error taxonomy onto status codes. notFound is
// the message used for repository.ErrNotFound.
func writeServiceError(w http.ResponseWriter, log *zap.Logger, err error, notFound string) {
	var (
		ve *apperr.ValidationError
		re *apperr.ReferenceError
		de *apperr.DependencyError
		ie *apperr.Inconsistency
	)
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusUnprocessableEntity, model.ErrorResponse{Error: "validation failed", Fields: ve.Fields})
	case errors.As(err, &ie):
		log.Error("inconsistent records", zap.String("op", ie.Op), zap.Strings("leftover", ie.Leftover), zap.Error(ie.Err))
		writeError(w, http.StatusInternalServerError, ie.Error())
	case errors.As(err, &re):
		writeError(w, http.StatusConflict, re.Error())
	case errors.As(err, &de):
		log.Warn("dependency failed", zap.String("op", de.Op), zap.Error(de.Err))
		writeError(w, http.StatusBadGateway, de.Error())
	case errors.Is(err, lifecycle.ErrInvalidTransition), errors.Is(err, lifecycle.ErrSendInFlight):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, lifecycle.ErrUnknownAction):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, lifecycle.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, notFound)
	case errors.Is(err, repository.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		log.Error("unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// ─── Public ───────────────────────────────────────────────────────────────────

// ListEvents handles GET /events
// Returns every event sorted by name.
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.events.ListEvents(r.Context())
	if err != nil {
		writeServiceError(w, h.log, err, "")
		return
	}

	// Return an empty array rather than null for better client compatibility.
	if events == nil {
		events = []model.Event{}
	}

	writeJSON(w, http.StatusOK, events)
}

// EventByLink handles GET /events/{link}
// Returns the event together with its registrations, newest first.
func (h *EventHandler) EventByLink(w http.ResponseWriter, r *http.Request) {
	out, err := h.events.EventRegistrations(r.Context(), chi.URLParam(r, "link"))
	if err != nil {
		writeServiceError(w, h.log, err, "event not found")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// ─── Admin ────────────────────────────────────────────────────────────────────

// CreateEvent handles POST /admin/events
func (h *EventHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req model.CreateEventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	event, err := h.events.CreateEvent(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.log, err, "")
		return
	}

	writeJSON(w, http.StatusCreated, event)
}

// UpdateEvent handles PUT /admin/events/{id}
func (h *EventHandler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateEventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	event, err := h.events.UpdateEvent(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, h.log, err, "event not found")
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// DeleteEvent handles DELETE /admin/events/{id}
// Registrations that referenced the event keep the reference.
func (h *EventHandler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	if err := h.events.DeleteEvent(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, h.log, err, "event not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListRegistrations handles GET /admin/registrations
func (h *EventHandler) ListRegistrations(w http.ResponseWriter, r *http.Request) {
	regs, err := h.events.ListRegistrations(r.Context())
	if err != nil {
		writeServiceError(w, h.log, err, "")
		return
	}

	if regs == nil {
		regs = []model.Registration{}
	}

	writeJSON(w, http.StatusOK, regs)
}

// DeleteRegistration handles DELETE /admin/registrations/{id}
// Removes the registration from every event it references first.
func (h *EventHandler) DeleteRegistration(w http.ResponseWriter, r *http.Request) {
	if err := h.events.DeleteRegistration(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, h.log, err, "registration not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Dashboard handles GET /admin/dashboard
func (h *EventHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.events.Dashboard(r.Context())
	if err != nil {
		writeServiceError(w, h.log, err, "")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// Consistency handles GET /admin/consistency
func (h *EventHandler) Consistency(w http.ResponseWriter, r *http.Request) {
	violations, err := h.events.CheckConsistency(r.Context())
	if err != nil {
		writeServiceError(w, h.log, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"consistent": len(violations) == 0,
		"violations": violations,
	})
}

// ListSettings handles GET /admin/settings
func (h *EventHandler) ListSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settings.ListSettings(r.Context())
	if err != nil {
		writeServiceError(w, h.log, err, "")
		return
	}
	if settings == nil {
		settings = []model.Setting{}
	}
	writeJSON(w, http.StatusOK, settings)
}

// PutSetting handles PUT /admin/settings/{name}
func (h *EventHandler) PutSetting(w http.ResponseWriter, r *http.Request) {
	var req model.SettingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	st, err := h.settings.UpsertSetting(r.Context(), chi.URLParam(r, "name"), req.Value)
	if err != nil {
		writeServiceError(w, h.log, err, "")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
