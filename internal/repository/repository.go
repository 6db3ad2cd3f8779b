// Package repository maps domain records onto the document store. Each
// repository owns the field layout of one kind; ids and creation times come
// from the store.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Shivanand-hulikatti/festreg/internal/model"
	"github.com/Shivanand-hulikatti/festreg/internal/store"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a unique name or link is already taken.
var ErrConflict = errors.New("already exists")

func notFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// getKind loads a document and checks it is of the wanted kind, so an id of
// another kind reads as missing.
func getKind(ctx context.Context, s store.Store, kind store.Kind, id string) (*store.Document, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	if doc.Kind != kind {
		return nil, ErrNotFound
	}
	return doc, nil
}

type eventFields struct {
	Name             string          `json:"name"`
	Committee        string          `json:"committee"`
	Fee              int             `json:"fee"`
	Room             string          `json:"room"`
	Link             string          `json:"link"`
	Type             model.EventType `json:"type"`
	RegistrationRefs []string        `json:"registration_refs"`
}

func decodeEvent(doc *store.Document) (*model.Event, error) {
	var f eventFields
	if err := doc.Decode(&f); err != nil {
		return nil, err
	}
	refs := f.RegistrationRefs
	if refs == nil {
		refs = []string{}
	}
	return &model.Event{
		ID:               doc.ID,
		Name:             f.Name,
		Committee:        f.Committee,
		Fee:              f.Fee,
		Room:             f.Room,
		Link:             f.Link,
		Type:             f.Type,
		RegistrationRefs: refs,
		CreatedAt:        doc.CreatedAt,
	}, nil
}

// EventRepository handles persistence for events.
type EventRepository struct {
	s store.Store
}

// NewEventRepository constructs an EventRepository.
func NewEventRepository(s store.Store) *EventRepository {
	return &EventRepository{s: s}
}

// Create inserts an event with an empty registration list.
func (r *EventRepository) Create(ctx context.Context, e model.Event) (*model.Event, error) {
	id, err := r.s.Insert(ctx, store.KindEvent, eventFields{
		Name:             e.Name,
		Committee:        e.Committee,
		Fee:              e.Fee,
		Room:             e.Room,
		Link:             e.Link,
		Type:             e.Type,
		RegistrationRefs: []string{},
	})
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	return r.Get(ctx, id)
}

// Get returns a single event or ErrNotFound.
func (r *EventRepository) Get(ctx context.Context, id string) (*model.Event, error) {
	doc, err := getKind(ctx, r.s, store.KindEvent, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return decodeEvent(doc)
}

func (r *EventRepository) findOne(ctx context.Context, field, value string) (*model.Event, error) {
	docs, err := r.s.Query(ctx, store.Query{Kind: store.KindEvent, Field: field, Equals: value, Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("find event by %s: %w", field, err)
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	return decodeEvent(&docs[0])
}

// GetByLink looks an event up through the link index.
func (r *EventRepository) GetByLink(ctx context.Context, link string) (*model.Event, error) {
	return r.findOne(ctx, "link", link)
}

// GetByName looks an event up through the name index.
func (r *EventRepository) GetByName(ctx context.Context, name string) (*model.Event, error) {
	return r.findOne(ctx, "name", name)
}

// List returns all events ordered by name ascending.
func (r *EventRepository) List(ctx context.Context) ([]model.Event, error) {
	docs, err := r.s.Query(ctx, store.Query{Kind: store.KindEvent, OrderBy: "name", Order: store.Asc})
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	events := make([]model.Event, 0, len(docs))
	for i := range docs {
		e, err := decodeEvent(&docs[i])
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	return events, nil
}

// Update replaces the editable fields. The link and the registration list
// are left as stored.
func (r *EventRepository) Update(ctx context.Context, id string, req model.UpdateEventRequest) error {
	err := r.s.Patch(ctx, id, map[string]any{
		"name":      req.Name,
		"committee": req.Committee,
		"fee":       req.Fee,
		"room":      req.Room,
		"type":      req.Type,
	})
	if err != nil {
		return fmt.Errorf("update event: %w", notFound(err))
	}
	return nil
}

// SetRegistrationRefs overwrites the event's back-reference list.
func (r *EventRepository) SetRegistrationRefs(ctx context.Context, id string, refs []string) error {
	if refs == nil {
		refs = []string{}
	}
	if err := r.s.Patch(ctx, id, map[string]any{"registration_refs": refs}); err != nil {
		return fmt.Errorf("patch event %s refs: %w", id, notFound(err))
	}
	return nil
}

// Delete removes the event record.
func (r *EventRepository) Delete(ctx context.Context, id string) error {
	if err := r.s.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete event: %w", notFound(err))
	}
	return nil
}

type registrationFields struct {
	ParticipantName string            `json:"participant_name"`
	CollegeName     string            `json:"college_name"`
	Email           string            `json:"email"`
	Phone           string            `json:"phone"`
	EventRefs       []string          `json:"event_refs"`
	AmountPaid      int               `json:"amount_paid"`
	PaymentMode     model.PaymentMode `json:"payment_mode"`
}

func decodeRegistration(doc *store.Document) (*model.Registration, error) {
	var f registrationFields
	if err := doc.Decode(&f); err != nil {
		return nil, err
	}
	return &model.Registration{
		ID:              doc.ID,
		ParticipantName: f.ParticipantName,
		CollegeName:     f.CollegeName,
		Email:           f.Email,
		Phone:           f.Phone,
		EventRefs:       f.EventRefs,
		AmountPaid:      f.AmountPaid,
		PaymentMode:     f.PaymentMode,
		CreatedAt:       doc.CreatedAt,
	}, nil
}

// RegistrationRepository handles persistence for registrations.
type RegistrationRepository struct {
	s store.Store
}

// NewRegistrationRepository constructs a RegistrationRepository.
func NewRegistrationRepository(s store.Store) *RegistrationRepository {
	return &RegistrationRepository{s: s}
}

// Create inserts the registration record only. Event back-references are the
// caller's job.
func (r *RegistrationRepository) Create(ctx context.Context, reg model.NewRegistration) (*model.Registration, error) {
	id, err := r.s.Insert(ctx, store.KindRegistration, registrationFields{
		ParticipantName: reg.ParticipantName,
		CollegeName:     reg.CollegeName,
		Email:           reg.Email,
		Phone:           reg.Phone,
		EventRefs:       reg.EventRefs,
		AmountPaid:      reg.AmountPaid,
		PaymentMode:     reg.PaymentMode,
	})
	if err != nil {
		return nil, fmt.Errorf("insert registration: %w", err)
	}
	return r.Get(ctx, id)
}

// Get returns a single registration or ErrNotFound.
func (r *RegistrationRepository) Get(ctx context.Context, id string) (*model.Registration, error) {
	doc, err := getKind(ctx, r.s, store.KindRegistration, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get registration: %w", err)
	}
	return decodeRegistration(doc)
}

// List returns every registration, newest first.
func (r *RegistrationRepository) List(ctx context.Context) ([]model.Registration, error) {
	docs, err := r.s.Query(ctx, store.Query{Kind: store.KindRegistration, Order: store.Desc})
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	regs := make([]model.Registration, 0, len(docs))
	for i := range docs {
		reg, err := decodeRegistration(&docs[i])
		if err != nil {
			return nil, err
		}
		regs = append(regs, *reg)
	}
	return regs, nil
}

// Delete removes the registration record.
func (r *RegistrationRepository) Delete(ctx context.Context, id string) error {
	if err := r.s.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete registration: %w", notFound(err))
	}
	return nil
}

type settingFields struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func decodeSetting(doc *store.Document) (*model.Setting, error) {
	var f settingFields
	if err := doc.Decode(&f); err != nil {
		return nil, err
	}
	return &model.Setting{ID: doc.ID, Name: f.Name, Value: f.Value, CreatedAt: doc.CreatedAt}, nil
}

// SettingRepository handles persistence for settings.
type SettingRepository struct {
	s store.Store
}

// NewSettingRepository constructs a SettingRepository.
func NewSettingRepository(s store.Store) *SettingRepository {
	return &SettingRepository{s: s}
}

// GetByName looks a setting up through the name index.
func (r *SettingRepository) GetByName(ctx context.Context, name string) (*model.Setting, error) {
	docs, err := r.s.Query(ctx, store.Query{Kind: store.KindSetting, Field: "name", Equals: name, Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("find setting: %w", err)
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	return decodeSetting(&docs[0])
}

// List returns all settings ordered by name.
func (r *SettingRepository) List(ctx context.Context) ([]model.Setting, error) {
	docs, err := r.s.Query(ctx, store.Query{Kind: store.KindSetting, OrderBy: "name"})
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	out := make([]model.Setting, 0, len(docs))
	for i := range docs {
		st, err := decodeSetting(&docs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}
	return out, nil
}

// Create inserts a new setting.
func (r *SettingRepository) Create(ctx context.Context, name, value string) (*model.Setting, error) {
	id, err := r.s.Insert(ctx, store.KindSetting, settingFields{Name: name, Value: value})
	if err != nil {
		return nil, fmt.Errorf("insert setting: %w", err)
	}
	doc, err := r.s.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reload setting: %w", notFound(err))
	}
	return decodeSetting(doc)
}

// SetValue patches the value of an existing setting.
func (r *SettingRepository) SetValue(ctx context.Context, id, value string) error {
	if err := r.s.Patch(ctx, id, map[string]any{"value": value}); err != nil {
		return fmt.Errorf("patch setting: %w", notFound(err))
	}
	return nil
}

type serviceRecordFields struct {
	ClientName  string              `json:"client_name"`
	Services    []model.ServiceLine `json:"services"`
	PaymentMode model.PaymentMode   `json:"payment_mode"`
	Total       int                 `json:"total"`
}

func decodeServiceRecord(doc *store.Document) (*model.ServiceRecord, error) {
	var f serviceRecordFields
	if err := doc.Decode(&f); err != nil {
		return nil, err
	}
	return &model.ServiceRecord{
		ID:          doc.ID,
		ClientName:  f.ClientName,
		Services:    f.Services,
		PaymentMode: f.PaymentMode,
		Total:       f.Total,
		CreatedAt:   doc.CreatedAt,
	}, nil
}

// ServiceRecordRepository handles persistence for stall sales.
type ServiceRecordRepository struct {
	s store.Store
}

// NewServiceRecordRepository constructs a ServiceRecordRepository.
func NewServiceRecordRepository(s store.Store) *ServiceRecordRepository {
	return &ServiceRecordRepository{s: s}
}

// Create stores a priced sale.
func (r *ServiceRecordRepository) Create(ctx context.Context, rec model.ServiceRecord) (*model.ServiceRecord, error) {
	id, err := r.s.Insert(ctx, store.KindServiceRecord, serviceRecordFields{
		ClientName:  rec.ClientName,
		Services:    rec.Services,
		PaymentMode: rec.PaymentMode,
		Total:       rec.Total,
	})
	if err != nil {
		return nil, fmt.Errorf("insert service record: %w", err)
	}
	doc, err := r.s.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reload service record: %w", notFound(err))
	}
	return decodeServiceRecord(doc)
}

// List returns every sale, newest first.
func (r *ServiceRecordRepository) List(ctx context.Context) ([]model.ServiceRecord, error) {
	docs, err := r.s.Query(ctx, store.Query{Kind: store.KindServiceRecord, Order: store.Desc})
	if err != nil {
		return nil, fmt.Errorf("list service records: %w", err)
	}
	out := make([]model.ServiceRecord, 0, len(docs))
	for i := range docs {
		rec, err := decodeServiceRecord(&docs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, nil
}
