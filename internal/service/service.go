// Package service implements business logic, validation, and orchestration
// between HTTP handlers and the repository layer.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/festreg/internal/apperr"
	"github.com/Shivanand-hulikatti/festreg/internal/model"
	"github.com/Shivanand-hulikatti/festreg/internal/repository"
)

// EventService orchestrates the admin side of events and registrations.
type EventService struct {
	events        *repository.EventRepository
	registrations *repository.RegistrationRepository
	maintainer    *Maintainer
	log           *zap.Logger
}

// NewEventService constructs an EventService with its dependencies.
func NewEventService(
	events *repository.EventRepository,
	registrations *repository.RegistrationRepository,
	maintainer *Maintainer,
	log *zap.Logger,
) *EventService {
	if log == nil {
		log = zap.NewNop()
	}
	return &EventService{events: events, registrations: registrations, maintainer: maintainer, log: log.Named("events")}
}

// Slug derives an event link: the name lower-cased with spaces turned into
// dashes.
func Slug(name string) string {
	return strings.Join(strings.Split(strings.ToLower(strings.TrimSpace(name)), " "), "-")
}

func validateEvent(name, committee string, fee int, room string, typ model.EventType) error {
	fields := map[string]string{}
	if name == "" {
		fields["name"] = "Name is required"
	}
	if committee == "" {
		fields["committee"] = "Core committee name(s) is/are required"
	}
	if fee < 1 {
		fields["fee"] = "Fee must be greater than 0"
	}
	if room == "" {
		fields["room"] = "Room is required"
	}
	if !typ.Valid() {
		fields["type"] = "Type must be STANDARD or FLASH"
	}
	if len(fields) > 0 {
		return &apperr.ValidationError{Fields: fields}
	}
	return nil
}

// ensureFree returns ErrConflict when another event already uses field=value.
func (s *EventService) ensureFree(ctx context.Context, lookup func(context.Context, string) (*model.Event, error), value, selfID string) error {
	e, err := lookup(ctx, value)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return apperr.Dependency("check event uniqueness", err)
	}
	if e.ID == selfID {
		return nil
	}
	return fmt.Errorf("event %q: %w", value, repository.ErrConflict)
}

// CreateEvent validates the request, derives the link and stores the event.
func (s *EventService) CreateEvent(ctx context.Context, req model.CreateEventRequest) (*model.Event, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Committee = strings.TrimSpace(req.Committee)
	req.Room = strings.TrimSpace(req.Room)
	if req.Type == "" {
		req.Type = model.EventStandard
	}
	if err := validateEvent(req.Name, req.Committee, req.Fee, req.Room, req.Type); err != nil {
		return nil, err
	}

	link := Slug(req.Name)
	if err := s.ensureFree(ctx, s.events.GetByName, req.Name, ""); err != nil {
		return nil, err
	}
	if err := s.ensureFree(ctx, s.events.GetByLink, link, ""); err != nil {
		return nil, err
	}

	e, err := s.events.Create(ctx, model.Event{
		Name:      req.Name,
		Committee: req.Committee,
		Fee:       req.Fee,
		Room:      req.Room,
		Link:      link,
		Type:      req.Type,
	})
	if err != nil {
		return nil, apperr.Dependency("create event", err)
	}
	s.log.Info("event created", zap.String("event_id", e.ID), zap.String("link", e.Link))
	return e, nil
}

// UpdateEvent edits the event's details. The link stays as created so shared
// URLs keep working.
func (s *EventService) UpdateEvent(ctx context.Context, id string, req model.UpdateEventRequest) (*model.Event, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Committee = strings.TrimSpace(req.Committee)
	req.Room = strings.TrimSpace(req.Room)
	if req.Type == "" {
		req.Type = model.EventStandard
	}
	if err := validateEvent(req.Name, req.Committee, req.Fee, req.Room, req.Type); err != nil {
		return nil, err
	}
	if err := s.ensureFree(ctx, s.events.GetByName, req.Name, id); err != nil {
		return nil, err
	}
	if err := s.events.Update(ctx, id, req); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, apperr.Dependency("update event", err)
	}
	return s.GetEvent(ctx, id)
}

// ListEvents returns all events ordered by name.
func (s *EventService) ListEvents(ctx context.Context) ([]model.Event, error) {
	events, err := s.events.List(ctx)
	if err != nil {
		return nil, apperr.Dependency("list events", err)
	}
	return events, nil
}

// GetEvent returns a single event by ID.
func (s *EventService) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	if id == "" {
		return nil, apperr.NewValidation("id", "event id is required")
	}
	e, err := s.events.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, apperr.Dependency("get event", err)
	}
	return e, nil
}

// SelectEvents resolves ids to events, in the given order. Unknown ids fail
// with a ReferenceError naming all of them.
func (s *EventService) SelectEvents(ctx context.Context, ids []string) ([]model.Event, error) {
	ids = dedupe(ids)
	var (
		out     = make([]model.Event, 0, len(ids))
		missing []string
	)
	for _, id := range ids {
		e, err := s.events.Get(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			missing = append(missing, id)
			continue
		}
		if err != nil {
			return nil, apperr.Dependency("read event", err)
		}
		out = append(out, *e)
	}
	if len(missing) > 0 {
		return nil, &apperr.ReferenceError{Kind: "event", Missing: missing}
	}
	return out, nil
}

// EventRegistrations returns the event behind link and the registrations it
// references, newest first. References to deleted registrations are skipped.
func (s *EventService) EventRegistrations(ctx context.Context, link string) (*model.EventRegistrations, error) {
	e, err := s.events.GetByLink(ctx, link)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, apperr.Dependency("get event by link", err)
	}

	regs := make([]model.Registration, 0, len(e.RegistrationRefs))
	for _, id := range e.RegistrationRefs {
		r, err := s.registrations.Get(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, apperr.Dependency("get registration", err)
		}
		regs = append(regs, *r)
	}
	sortNewestFirst(regs)
	return &model.EventRegistrations{Event: e, Registrations: regs}, nil
}

func sortNewestFirst(regs []model.Registration) {
	sort.SliceStable(regs, func(i, j int) bool { return regs[i].CreatedAt.After(regs[j].CreatedAt) })
}

// DeleteEvent removes the event only; see Maintainer.DeleteEvent.
func (s *EventService) DeleteEvent(ctx context.Context, id string) error {
	ok, err := s.maintainer.DeleteEvent(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return repository.ErrNotFound
	}
	return nil
}

// ListRegistrations returns all registrations, newest first.
func (s *EventService) ListRegistrations(ctx context.Context) ([]model.Registration, error) {
	regs, err := s.registrations.List(ctx)
	if err != nil {
		return nil, apperr.Dependency("list registrations", err)
	}
	return regs, nil
}

// DeleteRegistration removes a registration and its back-references.
func (s *EventService) DeleteRegistration(ctx context.Context, id string) error {
	ok, err := s.maintainer.DeleteRegistration(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return repository.ErrNotFound
	}
	return nil
}

// Dashboard totals the money collected and counts registrations per event.
func (s *EventService) Dashboard(ctx context.Context) (*model.Dashboard, error) {
	regs, err := s.ListRegistrations(ctx)
	if err != nil {
		return nil, err
	}
	events, err := s.ListEvents(ctx)
	if err != nil {
		return nil, err
	}

	d := &model.Dashboard{RegistrationCount: len(regs), Events: make([]model.EventCount, 0, len(events))}
	for _, r := range regs {
		d.TotalCollected += r.AmountPaid
	}
	for _, e := range events {
		d.Events = append(d.Events, model.EventCount{
			Name:          e.Name,
			Committee:     e.Committee,
			Fee:           e.Fee,
			Link:          e.Link,
			Registrations: e.RegistrationCount(),
		})
	}
	return d, nil
}

// CheckConsistency reports broken event/registration pairs.
func (s *EventService) CheckConsistency(ctx context.Context) ([]model.Violation, error) {
	return s.maintainer.CheckConsistency(ctx)
}
