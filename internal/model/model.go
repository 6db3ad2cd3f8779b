// Package model defines the core domain types for the festival registration system.
package model

import "time"

// EventType separates always-open events from the discount-eligible flash tier.
type EventType string

const (
	EventStandard EventType = "STANDARD"
	EventFlash    EventType = "FLASH"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	return t == EventStandard || t == EventFlash
}

// PaymentMode is how a participant settled the amount.
type PaymentMode string

const (
	PaymentCash PaymentMode = "CASH"
	PaymentUPI  PaymentMode = "UPI"
)

// Valid reports whether m is a known payment mode.
func (m PaymentMode) Valid() bool {
	return m == PaymentCash || m == PaymentUPI
}

// ServiceKind identifies a stall service.
type ServiceKind string

const (
	ServiceTattoo     ServiceKind = "tattoo"
	ServiceNail       ServiceKind = "nail"
	ServiceCaricature ServiceKind = "caricature"
)

// Event is a festival activity participants can register for.
//
// RegistrationRefs is the event side of the event/registration relationship;
// every id in it must name a Registration whose EventRefs contains this event.
type Event struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Committee        string    `json:"committee"`
	Fee              int       `json:"fee"`
	Room             string    `json:"room"`
	Link             string    `json:"link"`
	Type             EventType `json:"type"`
	RegistrationRefs []string  `json:"registration_refs"`
	CreatedAt        time.Time `json:"created_at"`
}

// RegistrationCount returns the number of registrations referencing the event.
func (e *Event) RegistrationCount() int {
	return len(e.RegistrationRefs)
}

// IsFlash returns true for flash-tier events.
func (e *Event) IsFlash() bool {
	return e.Type == EventFlash
}

// HasRegistration reports whether id is in the event's back-reference list.
func (e *Event) HasRegistration(id string) bool {
	for _, ref := range e.RegistrationRefs {
		if ref == id {
			return true
		}
	}
	return false
}

// Registration is one participant's paid enrollment in one or more events.
// EventRefs is immutable once created.
type Registration struct {
	ID              string      `json:"id"`
	ParticipantName string      `json:"participant_name"`
	CollegeName     string      `json:"college_name"`
	Email           string      `json:"email"`
	Phone           string      `json:"phone"`
	EventRefs       []string    `json:"event_refs"`
	AmountPaid      int         `json:"amount_paid"`
	PaymentMode     PaymentMode `json:"payment_mode"`
	CreatedAt       time.Time   `json:"created_at"`
}

// HasEvent reports whether id is in the registration's event list.
func (r *Registration) HasEvent(id string) bool {
	for _, ref := range r.EventRefs {
		if ref == id {
			return true
		}
	}
	return false
}

// ServiceLine is one priced line of a stall sale.
type ServiceLine struct {
	Kind      ServiceKind `json:"service_kind"`
	UnitCount int         `json:"unit_count"`
	UnitPrice int         `json:"unit_price"`
}

// Amount returns UnitCount × UnitPrice.
func (l ServiceLine) Amount() int {
	return l.UnitCount * l.UnitPrice
}

// ServiceRecord is a non-event stall sale (tattoo, nail, caricature).
type ServiceRecord struct {
	ID          string        `json:"id"`
	ClientName  string        `json:"client_name"`
	Services    []ServiceLine `json:"services"`
	PaymentMode PaymentMode   `json:"payment_mode"`
	Total       int           `json:"total"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Setting is a named string value, e.g. the UPI payee address.
type Setting struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
}

// Well-known setting names.
const (
	SettingUPI          = "upi"
	SettingAdminGate    = "admin"
	SettingRegisterGate = "registration"
)

// CreateEventRequest is the payload for creating a new event.
type CreateEventRequest struct {
	Name      string    `json:"name"`
	Committee string    `json:"committee"`
	Fee       int       `json:"fee"`
	Room      string    `json:"room"`
	Type      EventType `json:"type"`
}

// UpdateEventRequest is the payload for editing an event. The link is kept.
type UpdateEventRequest struct {
	Name      string    `json:"name"`
	Committee string    `json:"committee"`
	Fee       int       `json:"fee"`
	Room      string    `json:"room"`
	Type      EventType `json:"type"`
}

// NewRegistration is the validated input to the relationship maintainer.
type NewRegistration struct {
	ParticipantName string
	CollegeName     string
	Email           string
	Phone           string
	EventRefs       []string
	AmountPaid      int
	PaymentMode     PaymentMode
}

// ServiceOrder is a stall sale before pricing.
type ServiceOrder struct {
	ClientName       string      `json:"client_name"`
	Tattoo           int         `json:"tattoo"`
	Nail             int         `json:"nail"`
	Caricature       int         `json:"caricature"`
	CaricatureCouple bool        `json:"caricature_couple"`
	PaymentMode      PaymentMode `json:"payment_mode"`
}

// SettingRequest is the payload for writing a setting.
type SettingRequest struct {
	Value string `json:"value"`
}

// EventRegistrations is an event together with its resolved registrations.
type EventRegistrations struct {
	Event         *Event         `json:"event"`
	Registrations []Registration `json:"registrations"`
}

// Dashboard summarises collections for the admin screen.
type Dashboard struct {
	TotalCollected    int          `json:"total_collected"`
	RegistrationCount int          `json:"registration_count"`
	Events            []EventCount `json:"events"`
}

// EventCount is one chart point: an event and its registration count.
type EventCount struct {
	Name          string `json:"name"`
	Committee     string `json:"committee"`
	Fee           int    `json:"fee"`
	Link          string `json:"link"`
	Registrations int    `json:"registrations"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// ViolationKind names a way the event/registration link can be broken.
type ViolationKind string

const (
	// ViolationMissingForward: the event lists the registration, the
	// registration does not list the event.
	ViolationMissingForward ViolationKind = "missing_forward"
	// ViolationMissingBack: the registration lists the event, the event does
	// not list the registration.
	ViolationMissingBack ViolationKind = "missing_back"
	// ViolationDanglingRegistration: an event lists a registration that no
	// longer exists.
	ViolationDanglingRegistration ViolationKind = "dangling_registration"
	// ViolationDanglingEvent: a registration lists a deleted event.
	ViolationDanglingEvent ViolationKind = "dangling_event"
)

// Violation is one broken pair found by a consistency scan.
type Violation struct {
	Kind           ViolationKind `json:"kind"`
	EventID        string        `json:"event_id"`
	RegistrationID string        `json:"registration_id"`
}
