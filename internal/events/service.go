// Package events serves the events feed: bookmarks from the swipe deck,
// registrations and their tickets, and the interests a user picked.
package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/matheus3301/thriveup/internal/batch"
	"github.com/matheus3301/thriveup/internal/docstore"
	"github.com/matheus3301/thriveup/internal/model"
	"go.uber.org/zap"
)

// MaxInterests is the largest number of interests a user may pick.
const MaxInterests = 10

var (
	// ErrNotRegistered is returned when the user holds no registration for
	// the event.
	ErrNotRegistered = errors.New("not registered for event")
	// ErrTooManyInterests is returned by SaveInterests past MaxInterests.
	ErrTooManyInterests = errors.New("too many interests")
)

// Service is the events data-access layer.
type Service struct {
	store  docstore.Store
	logger *zap.Logger
}

// NewService creates an events service.
func NewService(store docstore.Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger}
}

// ListEvents returns the whole feed.
func (s *Service) ListEvents(ctx context.Context) ([]model.Event, error) {
	docs, err := s.store.Query(ctx, docstore.Collection(model.Events))
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	events := make([]model.Event, 0, len(docs))
	for _, d := range docs {
		events = append(events, model.EventFromDoc(d))
	}
	return events, nil
}

// GetEvent returns one event, or nil when it does not exist.
func (s *Service) GetEvent(ctx context.Context, eventID string) (*model.Event, error) {
	doc, err := s.store.Get(ctx, model.Events, eventID)
	if err != nil {
		return nil, fmt.Errorf("get event %s: %w", eventID, err)
	}
	if doc == nil {
		return nil, nil
	}
	e := model.EventFromDoc(*doc)
	return &e, nil
}

// BookmarkEvent records a right swipe: a copy of the event owned by userID.
func (s *Service) BookmarkEvent(ctx context.Context, userID string, e model.Event) error {
	description := e.Description
	if description == "" {
		description = "No description available."
	}
	id := s.store.NewID(model.Bookmarks)
	if err := s.store.Set(ctx, model.Bookmarks, id, map[string]any{
		"userId":          userID,
		"eventId":         e.ID,
		"title":           e.Title,
		"category":        e.Category,
		"attendanceCount": int64(e.AttendanceCount),
		"organizerName":   e.OrganizerName,
		"date":            e.Date,
		"time":            e.Time,
		"location":        e.Location,
		"locationDetails": e.LocationDetails,
		"description":     description,
		"timestamp":       docstore.ServerTimestamp,
	}); err != nil {
		return fmt.Errorf("bookmark event %s: %w", e.ID, err)
	}
	s.logger.Info("event bookmarked", zap.String("user_id", userID), zap.String("event_id", e.ID))
	return nil
}

// Bookmarks returns the events userID swiped right on, oldest first.
func (s *Service) Bookmarks(ctx context.Context, userID string) ([]model.Event, error) {
	docs, err := s.store.Query(ctx, docstore.Collection(model.Bookmarks).
		Where("userId", docstore.OpEqual, userID).
		Order("timestamp", false))
	if err != nil {
		return nil, fmt.Errorf("fetch bookmarks of %s: %w", userID, err)
	}
	events := make([]model.Event, 0, len(docs))
	for _, d := range docs {
		events = append(events, model.EventFromDoc(d))
	}
	return events, nil
}

// Registrations returns every registration for an event.
func (s *Service) Registrations(ctx context.Context, eventID string) ([]model.Registration, error) {
	return s.registrations(ctx, docstore.Collection(model.Registrations).Where("eventId", docstore.OpEqual, eventID))
}

func (s *Service) registrations(ctx context.Context, q docstore.Query) ([]model.Registration, error) {
	docs, err := s.store.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("fetch registrations: %w", err)
	}
	regs := make([]model.Registration, 0, len(docs))
	for _, d := range docs {
		r, ok := model.RegistrationFromDoc(d)
		if !ok {
			s.logger.Warn("skipping malformed registration", zap.String("doc_id", d.ID))
			continue
		}
		regs = append(regs, r)
	}
	return regs, nil
}

// RegisteredEvents returns the events userID registered for, in the order
// of the registrations. Events that cannot be read are skipped.
func (s *Service) RegisteredEvents(ctx context.Context, userID string) ([]model.Event, error) {
	regs, err := s.registrations(ctx, docstore.Collection(model.Registrations).Where("uid", docstore.OpEqual, userID))
	if err != nil {
		return nil, err
	}
	found, _ := batch.Map(ctx, regs, 0, func(ctx context.Context, r model.Registration) (*model.Event, error) {
		e, err := s.GetEvent(ctx, r.EventID)
		if err != nil {
			s.logger.Error("failed to fetch registered event", zap.Error(err), zap.String("event_id", r.EventID))
			return nil, nil
		}
		return e, nil
	})
	events := make([]model.Event, 0, len(found))
	for _, e := range found {
		if e != nil {
			events = append(events, *e)
		}
	}
	return events, nil
}

// Unregister deletes every registration of userID for eventID.
func (s *Service) Unregister(ctx context.Context, userID, eventID string) error {
	regs, err := s.userRegistrations(ctx, userID, eventID)
	if err != nil {
		return err
	}
	if len(regs) == 0 {
		return fmt.Errorf("%w: %s", ErrNotRegistered, eventID)
	}
	for _, r := range regs {
		if err := s.store.Delete(ctx, model.Registrations, r.ID); err != nil {
			return fmt.Errorf("delete registration %s: %w", r.ID, err)
		}
	}
	s.logger.Info("unregistered from event", zap.String("user_id", userID), zap.String("event_id", eventID))
	return nil
}

func (s *Service) userRegistrations(ctx context.Context, userID, eventID string) ([]model.Registration, error) {
	return s.registrations(ctx, docstore.Collection(model.Registrations).
		Where("eventId", docstore.OpEqual, eventID).
		Where("uid", docstore.OpEqual, userID))
}

// Ticket assembles the ticket of userID for eventID. The QR code is the
// image stored with the registration when it carries one, otherwise it is
// generated from TicketContent.
func (s *Service) Ticket(ctx context.Context, userID, eventID string) (*model.Ticket, error) {
	regs, err := s.userRegistrations(ctx, userID, eventID)
	if err != nil {
		return nil, err
	}
	if len(regs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, eventID)
	}
	reg := regs[0]

	event, err := s.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event == nil {
		e := model.EventFromDoc(docstore.Document{ID: eventID})
		event = &e
	}

	holder := model.UnknownName
	userDoc, err := s.store.Get(ctx, model.Users, userID)
	if err != nil {
		s.logger.Warn("failed to fetch ticket holder", zap.Error(err), zap.String("user_id", userID))
	} else if userDoc != nil {
		holder = userDoc.StringOr("name", model.UnknownName)
	}

	ticket := &model.Ticket{Registration: reg, Event: *event, HolderName: holder}
	if png, ok := decodeStoredQR(reg.QRCode); ok {
		ticket.QRCode = png
		return ticket, nil
	}
	ticket.QRContent = reg.QRCode
	if ticket.QRContent == "" {
		ticket.QRContent = TicketContent(eventID, userID, reg.ID)
	}
	if ticket.QRCode, err = EncodeQR(ticket.QRContent); err != nil {
		return nil, err
	}
	return ticket, nil
}

// SaveInterests replaces the interests of userID.
func (s *Service) SaveInterests(ctx context.Context, userID string, interests []string) error {
	if len(interests) > MaxInterests {
		return fmt.Errorf("%w: %d > %d", ErrTooManyInterests, len(interests), MaxInterests)
	}
	if interests == nil {
		interests = []string{}
	}
	if err := s.store.Set(ctx, model.InterestsColl, userID, map[string]any{
		"userID":    userID,
		"interests": interests,
	}); err != nil {
		return fmt.Errorf("save interests of %s: %w", userID, err)
	}
	return nil
}

// FetchInterests returns the interests of userID; empty when none were saved.
func (s *Service) FetchInterests(ctx context.Context, userID string) (model.Interests, error) {
	doc, err := s.store.Get(ctx, model.InterestsColl, userID)
	if err != nil {
		return model.Interests{}, fmt.Errorf("fetch interests of %s: %w", userID, err)
	}
	out := model.Interests{UserID: userID, Interests: []string{}}
	if doc != nil {
		if list := doc.Strings("interests"); list != nil {
			out.Interests = list
		}
	}
	return out, nil
}
