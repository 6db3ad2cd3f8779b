package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Shivanand-hulikatti/festreg/internal/auth"
	"github.com/Shivanand-hulikatti/festreg/internal/lifecycle"
	"github.com/Shivanand-hulikatti/festreg/internal/metrics"
	"github.com/Shivanand-hulikatti/festreg/internal/model"
	"github.com/Shivanand-hulikatti/festreg/internal/notify"
	"github.com/Shivanand-hulikatti/festreg/internal/repository"
	"github.com/Shivanand-hulikatti/festreg/internal/service"
	"github.com/Shivanand-hulikatti/festreg/internal/store/memory"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("github.com/patrickmn/go-cache.(*janitor).Run"),
	)
}

const (
	adminSecret = "admin-pw"
	deskSecret  = "desk-pw"
)

type testServer struct {
	srv      *httptest.Server
	settings *service.SettingService
}

func newTestServer(t *testing.T, withGates bool) *testServer {
	t.Helper()
	ctx := context.Background()
	st := memory.New()
	m := metrics.New()

	events := repository.NewEventRepository(st)
	regs := repository.NewRegistrationRepository(st)
	maintainer := service.NewMaintainer(events, regs, nil, m)
	eventSvc := service.NewEventService(events, regs, maintainer, nil)
	settings := service.NewSettingService(repository.NewSettingRepository(st), nil)
	sales := service.NewSalesService(repository.NewServiceRecordRepository(st), settings, "Celluloid", m, nil)

	if withGates {
		_, err := settings.UpsertSetting(ctx, model.SettingAdminGate, adminSecret)
		require.NoError(t, err)
		_, err = settings.UpsertSetting(ctx, model.SettingRegisterGate, deskSecret)
		require.NoError(t, err)
	}

	sessions := lifecycle.NewSessions(lifecycle.Deps{
		Registrar: maintainer,
		Catalog:   eventSvc,
		Settings:  settings,
		Notifier:  notify.NewLogSender(nil),
		UPILabel:  "Celluloid",
		Metrics:   m,
	}, time.Hour, 0)

	rt := Router{
		Events:       NewEventHandler(eventSvc, settings, nil),
		Registration: NewRegistrationHandler(sessions, sales, nil),
		Gates:        settings,
		Metrics:      m,
	}
	srv := httptest.NewServer(rt.Handler())
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, settings: settings}
}

func (s *testServer) do(t *testing.T, method, path, secret string, body any) (int, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.srv.URL+path, rd)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if secret != "" {
		req.Header.Set(auth.Header, secret)
	}
	resp, err := s.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

func decode[T any](t *testing.T, b []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(b, &v), string(b))
	return v
}

func (s *testServer) createEvent(t *testing.T, req model.CreateEventRequest) model.Event {
	t.Helper()
	status, body := s.do(t, http.MethodPost, "/admin/events", adminSecret, req)
	require.Equal(t, http.StatusCreated, status, string(body))
	return decode[model.Event](t, body)
}

type sessionBody struct {
	ID           string                `json:"id"`
	State        lifecycle.State       `json:"state"`
	Errors       map[string]string     `json:"errors"`
	Registration *model.Registration   `json:"registration"`
	Payment      *struct{ Amount int } `json:"payment"`
	Quote        struct{ Payable int } `json:"quote"`
}

func TestHealthAndEmptyList(t *testing.T) {
	s := newTestServer(t, true)

	status, body := s.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, status)
	require.JSONEq(t, `{"status":"ok"}`, string(body))

	status, body = s.do(t, http.MethodGet, "/events", "", nil)
	require.Equal(t, http.StatusOK, status)
	require.JSONEq(t, `[]`, string(body))
}

func TestGates(t *testing.T) {
	closed := newTestServer(t, false)
	status, body := closed.do(t, http.MethodGet, "/admin/dashboard", adminSecret, nil)
	require.Equal(t, http.StatusServiceUnavailable, status)
	require.Contains(t, string(body), "settings not found")

	s := newTestServer(t, true)
	status, _ = s.do(t, http.MethodGet, "/admin/dashboard", "", nil)
	require.Equal(t, http.StatusUnauthorized, status)
	status, _ = s.do(t, http.MethodGet, "/admin/dashboard", deskSecret, nil)
	require.Equal(t, http.StatusUnauthorized, status)
	status, _ = s.do(t, http.MethodGet, "/admin/dashboard", adminSecret, nil)
	require.Equal(t, http.StatusOK, status)
	status, _ = s.do(t, http.MethodPost, "/registration/sessions", adminSecret, nil)
	require.Equal(t, http.StatusUnauthorized, status)
}

func TestAdminEvents(t *testing.T) {
	s := newTestServer(t, true)

	quiz := s.createEvent(t, model.CreateEventRequest{Name: "Quiz Night", Committee: "Lit", Fee: 100, Room: "A1"})
	require.Equal(t, "quiz-night", quiz.Link)
	require.Equal(t, model.EventStandard, quiz.Type)

	status, _ := s.do(t, http.MethodPost, "/admin/events", adminSecret,
		model.CreateEventRequest{Name: "Quiz Night", Committee: "Lit", Fee: 10, Room: "A2"})
	require.Equal(t, http.StatusConflict, status)

	status, body := s.do(t, http.MethodPost, "/admin/events", adminSecret, model.CreateEventRequest{Name: "Art"})
	require.Equal(t, http.StatusUnprocessableEntity, status)
	errResp := decode[model.ErrorResponse](t, body)
	require.Contains(t, errResp.Fields, "fee")
	require.Contains(t, errResp.Fields, "room")

	status, _ = s.do(t, http.MethodPost, "/admin/events", adminSecret, map[string]any{"name": "X", "bogus": 1})
	require.Equal(t, http.StatusBadRequest, status)

	status, body = s.do(t, http.MethodPut, "/admin/events/"+quiz.ID, adminSecret,
		model.UpdateEventRequest{Name: "Quiz Night", Committee: "Lit", Fee: 120, Room: "A9", Type: model.EventStandard})
	require.Equal(t, http.StatusOK, status, string(body))
	require.Equal(t, 120, decode[model.Event](t, body).Fee)

	status, body = s.do(t, http.MethodGet, "/events/quiz-night", "", nil)
	require.Equal(t, http.StatusOK, status)
	er := decode[model.EventRegistrations](t, body)
	require.Equal(t, "A9", er.Event.Room)
	require.Empty(t, er.Registrations)

	status, _ = s.do(t, http.MethodGet, "/events/nope", "", nil)
	require.Equal(t, http.StatusNotFound, status)

	status, _ = s.do(t, http.MethodDelete, "/admin/events/"+quiz.ID, adminSecret, nil)
	require.Equal(t, http.StatusNoContent, status)
	status, _ = s.do(t, http.MethodDelete, "/admin/events/"+quiz.ID, adminSecret, nil)
	require.Equal(t, http.StatusNotFound, status)
}

func TestRegistrationFlow(t *testing.T) {
	s := newTestServer(t, true)
	quiz := s.createEvent(t, model.CreateEventRequest{Name: "Quiz", Committee: "Lit", Fee: 100, Room: "A1"})
	dance := s.createEvent(t, model.CreateEventRequest{Name: "Dance", Committee: "Cult", Fee: 150, Room: "B1"})

	status, body := s.do(t, http.MethodPost, "/registration/sessions", deskSecret, nil)
	require.Equal(t, http.StatusCreated, status)
	sess := decode[sessionBody](t, body)
	require.Equal(t, lifecycle.StateIdle, sess.State)
	base := "/registration/sessions/" + sess.ID

	// an incomplete form reports field errors and cannot proceed
	status, body = s.do(t, http.MethodPut, base+"/form", deskSecret, lifecycle.Form{Name: "Riya Sen"})
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, decode[sessionBody](t, body).Errors, "email")
	status, body = s.do(t, http.MethodPost, base+"/proceed", deskSecret, nil)
	require.Equal(t, http.StatusUnprocessableEntity, status)
	require.Contains(t, decode[model.ErrorResponse](t, body).Fields, "events")

	status, _ = s.do(t, http.MethodPost, base+"/send", deskSecret, nil)
	require.Equal(t, http.StatusConflict, status)
	status, _ = s.do(t, http.MethodPost, base+"/teleport", deskSecret, nil)
	require.Equal(t, http.StatusNotFound, status)

	status, body = s.do(t, http.MethodPut, base+"/form", deskSecret, lifecycle.Form{
		Name:     "Riya Sen",
		College:  "FIEM",
		Email:    "riya@example.com",
		Phone:    "9876543210",
		EventIDs: []string{quiz.ID, dance.ID},
	})
	require.Equal(t, http.StatusOK, status)
	sess = decode[sessionBody](t, body)
	require.Empty(t, sess.Errors)
	require.Equal(t, 250, sess.Quote.Payable)

	status, body = s.do(t, http.MethodPost, base+"/proceed", deskSecret, nil)
	require.Equal(t, http.StatusOK, status)
	sess = decode[sessionBody](t, body)
	require.Equal(t, lifecycle.StatePayment, sess.State)
	require.Equal(t, 250, sess.Payment.Amount)

	// UPI is refused until the payee address is configured
	status, _ = s.do(t, http.MethodPut, base+"/payment-mode", deskSecret, map[string]string{"mode": "UPI"})
	require.Equal(t, http.StatusUnprocessableEntity, status)

	for _, a := range []string{"complete", "send"} {
		status, body = s.do(t, http.MethodPost, base+"/"+a, deskSecret, nil)
		require.Equal(t, http.StatusOK, status, string(body))
	}
	sess = decode[sessionBody](t, body)
	require.Equal(t, lifecycle.StateComplete, sess.State)
	require.NotNil(t, sess.Registration)
	regID := sess.Registration.ID

	status, body = s.do(t, http.MethodGet, "/events/quiz", "", nil)
	require.Equal(t, http.StatusOK, status)
	er := decode[model.EventRegistrations](t, body)
	require.Len(t, er.Registrations, 1)
	require.Equal(t, regID, er.Registrations[0].ID)

	status, body = s.do(t, http.MethodGet, "/admin/dashboard", adminSecret, nil)
	require.Equal(t, http.StatusOK, status)
	d := decode[model.Dashboard](t, body)
	require.Equal(t, 250, d.TotalCollected)
	require.Equal(t, 1, d.RegistrationCount)

	status, body = s.do(t, http.MethodPost, base+"/next", deskSecret, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, lifecycle.StateIdle, decode[sessionBody](t, body).State)

	// dropping the event leaves the registration pointing at it
	status, _ = s.do(t, http.MethodDelete, "/admin/events/"+dance.ID, adminSecret, nil)
	require.Equal(t, http.StatusNoContent, status)
	status, body = s.do(t, http.MethodGet, "/admin/consistency", adminSecret, nil)
	require.Equal(t, http.StatusOK, status)
	report := decode[struct {
		Consistent bool              `json:"consistent"`
		Violations []model.Violation `json:"violations"`
	}](t, body)
	require.False(t, report.Consistent)
	require.Equal(t, []model.Violation{{Kind: model.ViolationDanglingEvent, EventID: dance.ID, RegistrationID: regID}}, report.Violations)

	status, _ = s.do(t, http.MethodDelete, "/admin/registrations/"+regID, adminSecret, nil)
	require.Equal(t, http.StatusNoContent, status)
	status, body = s.do(t, http.MethodGet, "/admin/consistency", adminSecret, nil)
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, string(body), `"consistent":true`)

	status, _ = s.do(t, http.MethodDelete, base, deskSecret, nil)
	require.Equal(t, http.StatusNoContent, status)
	status, _ = s.do(t, http.MethodGet, base, deskSecret, nil)
	require.Equal(t, http.StatusNotFound, status)
}

func TestSettingsAndSales(t *testing.T) {
	s := newTestServer(t, true)

	status, body := s.do(t, http.MethodPut, "/admin/settings/upi", adminSecret, model.SettingRequest{Value: "fest@upi"})
	require.Equal(t, http.StatusOK, status, string(body))
	status, body = s.do(t, http.MethodGet, "/admin/settings", adminSecret, nil)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, decode[[]model.Setting](t, body), 3)

	order := model.ServiceOrder{ClientName: "Asha", Tattoo: 2, Caricature: 1, PaymentMode: model.PaymentUPI}
	status, body = s.do(t, http.MethodPost, "/registration/services/quote", deskSecret, order)
	require.Equal(t, http.StatusOK, status, string(body))
	quote := decode[service.SaleQuote](t, body)
	require.Equal(t, 140, quote.Total)
	require.Equal(t, "upi://pay?pa=fest@upi&am=140&cu=INR&tn=Celluloid", quote.Payment.UPI)

	// a quote the payer never settles leaves the ledger empty
	status, body = s.do(t, http.MethodGet, "/registration/services", deskSecret, nil)
	require.Equal(t, http.StatusOK, status)
	require.Empty(t, decode[[]model.ServiceRecord](t, body))
	status, _ = s.do(t, http.MethodPost, "/registration/services/quote", "", order)
	require.Equal(t, http.StatusUnauthorized, status)

	status, body = s.do(t, http.MethodPost, "/registration/services", deskSecret, order)
	require.Equal(t, http.StatusCreated, status, string(body))
	receipt := decode[service.SaleReceipt](t, body)
	require.Equal(t, 140, receipt.Record.Total)
	require.Equal(t, "upi://pay?pa=fest@upi&am=140&cu=INR&tn=Celluloid", receipt.Payment.UPI)

	status, _ = s.do(t, http.MethodPost, "/registration/services", deskSecret, model.ServiceOrder{ClientName: "Asha", Nail: 3})
	require.Equal(t, http.StatusUnprocessableEntity, status)

	status, body = s.do(t, http.MethodGet, "/registration/services", deskSecret, nil)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, decode[[]model.ServiceRecord](t, body), 1)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, true)
	s.do(t, http.MethodGet, "/events", "", nil)

	status, body := s.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, status)
	require.True(t, strings.Contains(string(body), `festreg_http_request_duration_seconds_count{method="GET",route="/events",status="200"} 1`), string(body))
}
