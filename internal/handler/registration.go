package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/festreg/internal/lifecycle"
	"github.com/Shivanand-hulikatti/festreg/internal/model"
	"github.com/Shivanand-hulikatti/festreg/internal/service"
)

// RegistrationHandler serves the registration desk: one lifecycle session per
// operator plus stall sales.
type RegistrationHandler struct {
	sessions *lifecycle.Sessions
	sales    *service.SalesService
	log      *zap.Logger
}

// NewRegistrationHandler constructs a RegistrationHandler.
func NewRegistrationHandler(sessions *lifecycle.Sessions, sales *service.SalesService, log *zap.Logger) *RegistrationHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &RegistrationHandler{sessions: sessions, sales: sales, log: log}
}

type sessionResponse struct {
	ID string `json:"id"`
	lifecycle.View
}

func (h *RegistrationHandler) session(w http.ResponseWriter, r *http.Request) (*lifecycle.Session, bool) {
	sess, err := h.sessions.Get(chi.URLParam(r, "sid"))
	if err != nil {
		writeServiceError(w, h.log, err, "session not found")
		return nil, false
	}
	return sess, true
}

// respond writes the session state after fn ran. Errors are written with the
// current state left untouched.
func (h *RegistrationHandler) respond(w http.ResponseWriter, sess *lifecycle.Session, err error) {
	if err != nil {
		writeServiceError(w, h.log.With(zap.String("session", sess.ID)), err, "")
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{ID: sess.ID, View: sess.View()})
}

// CreateSession handles POST /registration/sessions
func (h *RegistrationHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Create()
	writeJSON(w, http.StatusCreated, sessionResponse{ID: sess.ID, View: sess.View()})
}

// GetSession handles GET /registration/sessions/{sid}
func (h *RegistrationHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	h.respond(w, sess, nil)
}

// DeleteSession handles DELETE /registration/sessions/{sid}
func (h *RegistrationHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if !h.sessions.Delete(chi.URLParam(r, "sid")) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PutForm handles PUT /registration/sessions/{sid}/form
// Replaces the typed-in fields and the event selection while in IDLE.
func (h *RegistrationHandler) PutForm(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var form lifecycle.Form
	if err := decodeJSON(w, r, &form); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	err := sess.Do(func(m *lifecycle.Machine) error {
		return m.SetForm(r.Context(), form)
	})
	h.respond(w, sess, err)
}

type paymentModeRequest struct {
	Mode model.PaymentMode `json:"mode"`
}

// PutPaymentMode handles PUT /registration/sessions/{sid}/payment-mode
// Switches between cash and UPI, also while the payment screen is shown.
func (h *RegistrationHandler) PutPaymentMode(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req paymentModeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	err := sess.Do(func(m *lifecycle.Machine) error {
		return m.SetPaymentMode(r.Context(), req.Mode)
	})
	h.respond(w, sess, err)
}

// Action handles POST /registration/sessions/{sid}/{action}
func (h *RegistrationHandler) Action(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	err := sess.Apply(r.Context(), lifecycle.Action(chi.URLParam(r, "action")))
	h.respond(w, sess, err)
}

// QuoteSale handles POST /registration/services/quote
// Prices the order and returns the payment request. Nothing is stored.
func (h *RegistrationHandler) QuoteSale(w http.ResponseWriter, r *http.Request) {
	var order model.ServiceOrder
	if err := decodeJSON(w, r, &order); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	q, err := h.sales.QuoteSale(r.Context(), order)
	if err != nil {
		writeServiceError(w, h.log, err, "")
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// RecordSale handles POST /registration/services
// Called once the payment was collected; stores the sale.
func (h *RegistrationHandler) RecordSale(w http.ResponseWriter, r *http.Request) {
	var order model.ServiceOrder
	if err := decodeJSON(w, r, &order); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	receipt, err := h.sales.RecordSale(r.Context(), order)
	if err != nil {
		writeServiceError(w, h.log, err, "")
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

// ListSales handles GET /registration/services
func (h *RegistrationHandler) ListSales(w http.ResponseWriter, r *http.Request) {
	records, err := h.sales.ListSales(r.Context())
	if err != nil {
		writeServiceError(w, h.log, err, "")
		return
	}
	if records == nil {
		records = []model.ServiceRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}
