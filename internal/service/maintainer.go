package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Shivanand-hulikatti/festreg/internal/apperr"
	"github.com/Shivanand-hulikatti/festreg/internal/metrics"
	"github.com/Shivanand-hulikatti/festreg/internal/model"
	"github.com/Shivanand-hulikatti/festreg/internal/repository"
)

// Maintainer keeps Event.RegistrationRefs and Registration.EventRefs in step.
//
// The store has no multi-document transaction, so every multi-record change is
// a fan-out of independent patches. Appends and removals are read-modify-write
// on the list field; two operators writing the same event concurrently may
// lose one update (last write wins).
type Maintainer struct {
	events        *repository.EventRepository
	registrations *repository.RegistrationRepository
	log           *zap.Logger
	metrics       *metrics.Metrics
}

// NewMaintainer constructs a Maintainer. log and m may be nil.
func NewMaintainer(
	events *repository.EventRepository,
	registrations *repository.RegistrationRepository,
	log *zap.Logger,
	m *metrics.Metrics,
) *Maintainer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Maintainer{events: events, registrations: registrations, log: log.Named("maintainer"), metrics: m}
}

// dedupe keeps the first occurrence of every id.
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// loadEvents reads every id concurrently. Missing ids are returned as a
// ReferenceError; any other failure as a DependencyError.
func (m *Maintainer) loadEvents(ctx context.Context, ids []string) ([]*model.Event, error) {
	events := make([]*model.Event, len(ids))
	missing := make([]bool, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		g.Go(func() error {
			e, err := m.events.Get(gctx, id)
			if errors.Is(err, repository.ErrNotFound) {
				missing[i] = true
				return nil
			}
			if err != nil {
				return err
			}
			events[i] = e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, apperr.Dependency("read events", err)
	}

	var gone []string
	for i, id := range ids {
		if missing[i] {
			gone = append(gone, id)
		}
	}
	if len(gone) > 0 {
		return nil, &apperr.ReferenceError{Kind: "event", Missing: gone}
	}
	return events, nil
}

// CreateRegistration inserts a registration and appends its id to every
// referenced event. Either both sides end up written, or a rollback removes
// what was written; a failed rollback is reported as apperr.Inconsistency.
func (m *Maintainer) CreateRegistration(ctx context.Context, in model.NewRegistration) (*model.Registration, error) {
	in.EventRefs = dedupe(in.EventRefs)
	if len(in.EventRefs) == 0 {
		return nil, apperr.NewValidation("events", "Select at least one event")
	}
	if in.AmountPaid < 0 {
		return nil, apperr.NewValidation("amount_paid", "Amount paid cannot be negative")
	}
	if !in.PaymentMode.Valid() {
		return nil, apperr.NewValidation("payment_mode", "Payment mode must be CASH or UPI")
	}
	if _, err := m.loadEvents(ctx, in.EventRefs); err != nil {
		return nil, err
	}

	reg, err := m.registrations.Create(ctx, in)
	if err != nil {
		return nil, apperr.Dependency("insert registration", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, eventID := range in.EventRefs {
		g.Go(func() error {
			return m.appendRef(gctx, eventID, reg.ID)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, m.rollbackCreate(context.WithoutCancel(ctx), reg, err)
	}

	m.metrics.RegistrationCreated(reg.AmountPaid)
	m.log.Info("registration created",
		zap.String("registration_id", reg.ID),
		zap.Strings("events", reg.EventRefs),
		zap.Int("amount", reg.AmountPaid),
		zap.String("mode", string(reg.PaymentMode)),
	)
	return reg, nil
}

func (m *Maintainer) appendRef(ctx context.Context, eventID, regID string) error {
	e, err := m.events.Get(ctx, eventID)
	if err != nil {
		return fmt.Errorf("read event %s: %w", eventID, err)
	}
	if e.HasRegistration(regID) {
		return nil
	}
	refs := append(slices.Clone(e.RegistrationRefs), regID)
	return m.events.SetRegistrationRefs(ctx, eventID, refs)
}

// removeRef filters regID out of the event's list. A missing event counts as
// already clean.
func (m *Maintainer) removeRef(ctx context.Context, eventID, regID string) error {
	e, err := m.events.Get(ctx, eventID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read event %s: %w", eventID, err)
	}
	if !e.HasRegistration(regID) {
		return nil
	}
	refs := slices.DeleteFunc(slices.Clone(e.RegistrationRefs), func(id string) bool { return id == regID })
	err = m.events.SetRegistrationRefs(ctx, eventID, refs)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	return err
}

// rollbackCreate undoes a half-applied create. Every referenced event is
// cleaned, not only the ones whose append reported success, because a failed
// patch may still have landed.
func (m *Maintainer) rollbackCreate(ctx context.Context, reg *model.Registration, cause error) error {
	m.log.Warn("registration fan-out failed, rolling back",
		zap.String("registration_id", reg.ID),
		zap.Error(cause),
	)

	var (
		leftover []string
		errs     []error
	)
	for _, eventID := range reg.EventRefs {
		if err := m.removeRef(ctx, eventID, reg.ID); err != nil {
			leftover = append(leftover, "event:"+eventID)
			errs = append(errs, err)
		}
	}
	if err := m.registrations.Delete(ctx, reg.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		leftover = append(leftover, "registration:"+reg.ID)
		errs = append(errs, err)
	}

	if len(leftover) > 0 {
		m.metrics.Rollback(false)
		incon := &apperr.Inconsistency{
			Op:       "create registration",
			Leftover: leftover,
			Err:      errors.Join(append([]error{cause}, errs...)...),
		}
		m.log.Error("rollback incomplete", zap.Strings("leftover", leftover), zap.Error(incon.Err))
		return incon
	}

	m.metrics.Rollback(true)
	if errors.Is(cause, repository.ErrNotFound) {
		// An event vanished between the existence check and the append.
		return &apperr.ReferenceError{Kind: "event", Missing: m.vanished(ctx, reg.EventRefs)}
	}
	return apperr.Dependency("append registration to events", cause)
}

func (m *Maintainer) vanished(ctx context.Context, ids []string) []string {
	var out []string
	for _, id := range ids {
		if _, err := m.events.Get(ctx, id); errors.Is(err, repository.ErrNotFound) {
			out = append(out, id)
		}
	}
	return out
}

// DeleteRegistration removes the registration's id from every event it
// references, then deletes the registration. It returns false when the
// registration does not exist. Events that are already gone are skipped. If
// an event cannot be cleaned the registration is kept so the call can be
// repeated.
func (m *Maintainer) DeleteRegistration(ctx context.Context, id string) (bool, error) {
	reg, err := m.registrations.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, apperr.Dependency("read registration", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, eventID := range dedupe(reg.EventRefs) {
		g.Go(func() error {
			return m.removeRef(gctx, eventID, reg.ID)
		})
	}
	if err := g.Wait(); err != nil {
		return false, apperr.Dependency("remove registration from events", err)
	}

	if err := m.registrations.Delete(ctx, reg.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, apperr.Dependency("delete registration", err)
	}

	m.metrics.RegistrationDeleted()
	m.log.Info("registration deleted", zap.String("registration_id", reg.ID), zap.Strings("events", reg.EventRefs))
	return true, nil
}

// DeleteEvent deletes the event record only. Registrations that reference it
// keep the now dangling id; CheckConsistency reports them.
func (m *Maintainer) DeleteEvent(ctx context.Context, id string) (bool, error) {
	if err := m.events.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, apperr.Dependency("delete event", err)
	}
	m.log.Info("event deleted", zap.String("event_id", id))
	return true, nil
}

// CheckConsistency scans both collections and reports every pair that breaks
// the two-way link. It does not write.
func (m *Maintainer) CheckConsistency(ctx context.Context) ([]model.Violation, error) {
	events, err := m.events.List(ctx)
	if err != nil {
		return nil, apperr.Dependency("list events", err)
	}
	regs, err := m.registrations.List(ctx)
	if err != nil {
		return nil, apperr.Dependency("list registrations", err)
	}

	eventByID := make(map[string]*model.Event, len(events))
	for i := range events {
		eventByID[events[i].ID] = &events[i]
	}
	regByID := make(map[string]*model.Registration, len(regs))
	for i := range regs {
		regByID[regs[i].ID] = &regs[i]
	}

	violations := []model.Violation{}
	for _, e := range events {
		for _, regID := range e.RegistrationRefs {
			r, ok := regByID[regID]
			switch {
			case !ok:
				violations = append(violations, model.Violation{Kind: model.ViolationDanglingRegistration, EventID: e.ID, RegistrationID: regID})
			case !r.HasEvent(e.ID):
				violations = append(violations, model.Violation{Kind: model.ViolationMissingForward, EventID: e.ID, RegistrationID: regID})
			}
		}
	}
	for _, r := range regs {
		for _, eventID := range r.EventRefs {
			e, ok := eventByID[eventID]
			switch {
			case !ok:
				violations = append(violations, model.Violation{Kind: model.ViolationDanglingEvent, EventID: eventID, RegistrationID: r.ID})
			case !e.HasRegistration(r.ID):
				violations = append(violations, model.Violation{Kind: model.ViolationMissingBack, EventID: eventID, RegistrationID: r.ID})
			}
		}
	}

	sort.Slice(violations, func(i, j int) bool {
		a, b := violations[i], violations[j]
		if c := strings.Compare(a.EventID, b.EventID); c != 0 {
			return c < 0
		}
		if c := strings.Compare(a.RegistrationID, b.RegistrationID); c != 0 {
			return c < 0
		}
		return a.Kind < b.Kind
	})
	return violations, nil
}
