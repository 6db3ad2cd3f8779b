// Package lifecycle drives one registration attempt from form entry through
// payment confirmation to receipt dispatch.
//
//	IDLE ──Proceed──▶ PAYMENT ──MarkComplete──▶ EMAIL ──SendBill/Skip──▶ COMPLETE
//	  ▲                  │                                                   │
//	  └──────Cancel──────┘                                                   │
//	  └────────────────────────────────Next──────────────────────────────────┘
//
// Every transition not drawn above returns ErrInvalidTransition and leaves the
// machine untouched. A Machine is not safe for concurrent use; Sessions
// serialises access per operator.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/festreg/internal/apperr"
	"github.com/Shivanand-hulikatti/festreg/internal/metrics"
	"github.com/Shivanand-hulikatti/festreg/internal/model"
	"github.com/Shivanand-hulikatti/festreg/internal/notify"
	"github.com/Shivanand-hulikatti/festreg/internal/pricing"
)

// State is a stage of the registration flow.
type State string

const (
	StateIdle     State = "IDLE"
	StatePayment  State = "PAYMENT"
	StateEmail    State = "EMAIL"
	StateComplete State = "COMPLETE"
)

// ErrInvalidTransition is returned for an action the current state does not
// allow.
var ErrInvalidTransition = errors.New("invalid transition")

// ErrUnknownAction is returned by Apply for an unrecognised action name.
var ErrUnknownAction = errors.New("unknown action")

// ErrSendInFlight is returned when the receipt for the current registration
// is already being sent.
var ErrSendInFlight = errors.New("receipt send already in progress")

// Registrar persists a registration and links it to its events.
type Registrar interface {
	CreateRegistration(ctx context.Context, in model.NewRegistration) (*model.Registration, error)
}

// Catalog resolves selected event ids.
type Catalog interface {
	SelectEvents(ctx context.Context, ids []string) ([]model.Event, error)
}

// Settings reads named settings.
type Settings interface {
	SettingValue(ctx context.Context, name string) (string, error)
}

// Clock returns the current time.
type Clock func() time.Time

// Deps are the collaborators a Machine calls out to.
type Deps struct {
	Registrar Registrar
	Catalog   Catalog
	Settings  Settings
	Notifier  notify.Notifier
	Clock     Clock
	UPILabel  string
	Location  *time.Location
	Metrics   *metrics.Metrics
	Log       *zap.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.Location == nil {
		d.Location = time.UTC
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	return d
}

// Machine is the state of one operator's current registration attempt.
type Machine struct {
	deps Deps

	state     State
	form      Form
	events    []model.Event
	quote     pricing.Quote
	payment   pricing.PaymentRequest
	reg       *model.Registration
	lines     []notify.Line
	sending   string // registration id whose receipt is out for delivery
	updatedAt time.Time
}

// NewMachine returns a machine in IDLE with an empty form.
func NewMachine(deps Deps) *Machine {
	m := &Machine{deps: deps.withDefaults()}
	m.reset()
	return m
}

func (m *Machine) reset() {
	m.state = StateIdle
	m.form = Form{PaymentMode: model.PaymentCash}
	m.events = nil
	m.quote = pricing.Quote{}
	m.payment = pricing.PaymentRequest{}
	m.reg = nil
	m.lines = nil
	m.sending = ""
	m.updatedAt = m.deps.Clock()
}

// State returns the current stage.
func (m *Machine) State() State { return m.state }

// PaymentRequest returns what the participant is asked to pay. It is only
// available in PAYMENT.
func (m *Machine) PaymentRequest() (pricing.PaymentRequest, bool) {
	if m.state != StatePayment {
		return pricing.PaymentRequest{}, false
	}
	return m.payment, true
}

func (m *Machine) require(states ...State) error {
	if slices.Contains(states, m.state) {
		return nil
	}
	return fmt.Errorf("%w from %s", ErrInvalidTransition, m.state)
}

func (m *Machine) moveTo(to State) {
	from := m.state
	m.state = to
	m.updatedAt = m.deps.Clock()
	m.deps.Metrics.Transition(string(from), string(to))
	m.deps.Log.Debug("transition", zap.String("from", string(from)), zap.String("to", string(to)))
}

// resolve loads the selected events and prices them, standard events first.
func (m *Machine) resolve(ctx context.Context, ids []string) ([]model.Event, pricing.Quote, error) {
	if len(ids) == 0 {
		return nil, pricing.Quote{}, nil
	}
	events, err := m.deps.Catalog.SelectEvents(ctx, ids)
	if err != nil {
		return nil, pricing.Quote{}, err
	}
	sel := pricing.Split(events)
	return sel.Events(), pricing.Price(sel), nil
}

// SetForm replaces the form and reprices the selection. Only allowed in IDLE.
func (m *Machine) SetForm(ctx context.Context, f Form) error {
	if err := m.require(StateIdle); err != nil {
		return err
	}
	if f.PaymentMode == "" {
		f.PaymentMode = model.PaymentCash
	}
	if !f.PaymentMode.Valid() {
		return apperr.NewValidation("payment_mode", msgPaymentMode)
	}
	events, quote, err := m.resolve(ctx, f.EventIDs)
	if err != nil {
		return err
	}
	f.EventIDs = eventIDs(events)
	m.form, m.events, m.quote = f, events, quote
	m.updatedAt = m.deps.Clock()
	return nil
}

// ToggleEvent adds or removes one event from the selection. Only allowed in
// IDLE.
func (m *Machine) ToggleEvent(ctx context.Context, id string) error {
	if err := m.require(StateIdle); err != nil {
		return err
	}
	f := m.form
	f.EventIDs = slices.Clone(f.EventIDs)
	if i := slices.Index(f.EventIDs, id); i >= 0 {
		f.EventIDs = slices.Delete(f.EventIDs, i, i+1)
	} else {
		f.EventIDs = append(f.EventIDs, id)
	}
	return m.SetForm(ctx, f)
}

func (m *Machine) paymentRequest(ctx context.Context, mode model.PaymentMode) (pricing.PaymentRequest, error) {
	var address string
	if mode == model.PaymentUPI {
		v, err := m.deps.Settings.SettingValue(ctx, model.SettingUPI)
		if err != nil {
			if apperr.IsDependency(err) {
				return pricing.PaymentRequest{}, err
			}
			return pricing.PaymentRequest{}, apperr.NewValidation("payment_mode", "UPI address is not configured")
		}
		address = v
	}
	return pricing.NewPaymentRequest(mode, m.quote.Payable, address, m.deps.UPILabel), nil
}

// SetPaymentMode switches between cash and UPI. Allowed in IDLE and PAYMENT.
func (m *Machine) SetPaymentMode(ctx context.Context, mode model.PaymentMode) error {
	if err := m.require(StateIdle, StatePayment); err != nil {
		return err
	}
	if !mode.Valid() {
		return apperr.NewValidation("payment_mode", msgPaymentMode)
	}
	if m.state == StatePayment {
		req, err := m.paymentRequest(ctx, mode)
		if err != nil {
			return err
		}
		m.payment = req
	}
	m.form.PaymentMode = mode
	m.updatedAt = m.deps.Clock()
	return nil
}

// Proceed moves IDLE to PAYMENT once the form is valid and there is something
// to pay. Fees are re-read so the amount shown is current.
func (m *Machine) Proceed(ctx context.Context) error {
	if err := m.require(StateIdle); err != nil {
		return err
	}
	events, quote, err := m.resolve(ctx, m.form.EventIDs)
	if err != nil {
		return err
	}
	m.events, m.quote = events, quote
	if errs := Validate(m.form, m.quote); errs != nil {
		return &apperr.ValidationError{Fields: errs}
	}
	req, err := m.paymentRequest(ctx, m.form.PaymentMode)
	if err != nil {
		return err
	}
	m.payment = req
	m.moveTo(StatePayment)
	return nil
}

// Cancel returns from PAYMENT to IDLE without writing anything. The form is
// kept.
func (m *Machine) Cancel() error {
	if err := m.require(StatePayment); err != nil {
		return err
	}
	m.payment = pricing.PaymentRequest{}
	m.moveTo(StateIdle)
	return nil
}

// MarkComplete records the payment as received: it creates the registration
// and moves to EMAIL. On failure the machine stays in PAYMENT and the call
// can be repeated.
func (m *Machine) MarkComplete(ctx context.Context) error {
	if err := m.require(StatePayment); err != nil {
		return err
	}
	reg, err := m.deps.Registrar.CreateRegistration(ctx, model.NewRegistration{
		ParticipantName: m.form.Name,
		CollegeName:     m.form.CollegeName(),
		Email:           m.form.Email,
		Phone:           m.form.Phone,
		EventRefs:       eventIDs(m.events),
		AmountPaid:      m.quote.Payable,
		PaymentMode:     m.form.PaymentMode,
	})
	if err != nil {
		m.deps.Log.Warn("mark complete failed", zap.Error(err))
		return err
	}
	m.reg = reg
	m.lines = notify.LinesFromEvents(m.events)
	m.moveTo(StateEmail)
	return nil
}

// sendTicket is a receipt taken out of the machine for delivery. The send
// itself runs without touching the machine.
type sendTicket struct {
	regID   string
	receipt notify.Receipt
}

// beginSend builds the receipt for the registration awaiting it. Only one
// send per registration may be in flight.
func (m *Machine) beginSend() (sendTicket, error) {
	if err := m.require(StateEmail); err != nil {
		return sendTicket{}, err
	}
	if m.sending != "" {
		return sendTicket{}, ErrSendInFlight
	}
	receipt, err := notify.NewReceipt(m.reg, m.lines, m.deps.Location)
	if err != nil {
		return sendTicket{}, err
	}
	m.sending = m.reg.ID
	return sendTicket{regID: m.reg.ID, receipt: receipt}, nil
}

// finishSend applies the relay's answer. If the machine has moved on (Skip,
// Next) while the send was out, the answer is only logged.
func (m *Machine) finishSend(t sendTicket, status int, sendErr error) error {
	m.deps.Metrics.Receipt(status)
	if m.sending == t.regID {
		m.sending = ""
	}
	if m.state != StateEmail || m.reg == nil || m.reg.ID != t.regID {
		m.deps.Log.Info("receipt answer after session moved on",
			zap.String("registration_id", t.regID),
			zap.Int("status", status),
			zap.Error(sendErr),
		)
		return nil
	}
	if sendErr != nil {
		return &apperr.DependencyError{Op: "send receipt", Err: sendErr}
	}
	if status != http.StatusOK {
		return &apperr.DependencyError{Op: "send receipt", Err: fmt.Errorf("relay returned status %d", status)}
	}
	m.moveTo(StateComplete)
	return nil
}

// SendBill sends the receipt. Only status 200 moves EMAIL to COMPLETE; any
// other outcome keeps EMAIL and returns a DependencyError. Session.SendBill
// runs the same steps without holding the session lock during delivery.
func (m *Machine) SendBill(ctx context.Context) error {
	t, err := m.beginSend()
	if err != nil {
		return err
	}
	status, err := m.deps.Notifier.Send(ctx, t.receipt)
	return m.finishSend(t, status, err)
}

// Skip moves EMAIL to COMPLETE without sending.
func (m *Machine) Skip() error {
	if err := m.require(StateEmail); err != nil {
		return err
	}
	m.moveTo(StateComplete)
	return nil
}

// Next clears everything and returns COMPLETE to IDLE. Nothing is written.
func (m *Machine) Next() error {
	if err := m.require(StateComplete); err != nil {
		return err
	}
	m.moveTo(StateIdle)
	m.reset()
	return nil
}

// Action names a transition for Apply.
type Action string

const (
	ActionProceed  Action = "proceed"
	ActionCancel   Action = "cancel"
	ActionComplete Action = "complete"
	ActionSend     Action = "send"
	ActionSkip     Action = "skip"
	ActionNext     Action = "next"
)

// Apply runs the named transition.
func (m *Machine) Apply(ctx context.Context, a Action) error {
	switch a {
	case ActionProceed:
		return m.Proceed(ctx)
	case ActionCancel:
		return m.Cancel()
	case ActionComplete:
		return m.MarkComplete(ctx)
	case ActionSend:
		return m.SendBill(ctx)
	case ActionSkip:
		return m.Skip()
	case ActionNext:
		return m.Next()
	default:
		return fmt.Errorf("%w %q", ErrUnknownAction, a)
	}
}

// View is a read-only snapshot for display.
type View struct {
	State        State                   `json:"state"`
	Form         Form                    `json:"form"`
	Events       []model.Event           `json:"events"`
	Quote        pricing.Quote           `json:"quote"`
	Payment      *pricing.PaymentRequest `json:"payment,omitempty"`
	Registration *model.Registration     `json:"registration,omitempty"`
	Errors       map[string]string       `json:"errors,omitempty"`
	Sending      bool                    `json:"sending,omitempty"`
	UpdatedAt    time.Time               `json:"updated_at"`
}

// View returns a snapshot. In IDLE it includes the live field errors.
func (m *Machine) View() View {
	v := View{
		State:        m.state,
		Form:         m.form,
		Events:       slices.Clone(m.events),
		Quote:        m.quote,
		Registration: m.reg,
		Sending:      m.sending != "",
		UpdatedAt:    m.updatedAt,
	}
	v.Form.EventIDs = slices.Clone(m.form.EventIDs)
	if v.Events == nil {
		v.Events = []model.Event{}
	}
	switch m.state {
	case StateIdle:
		v.Errors = Validate(m.form, m.quote)
	case StatePayment:
		p := m.payment
		v.Payment = &p
	}
	return v
}

func eventIDs(events []model.Event) []string {
	ids := make([]string, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	return ids
}
