package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/joshua-takyi/attendance/internal/credential"
	"github.com/joshua-takyi/attendance/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type EventService struct {
	eventRepo models.EventRepo
	users     models.UserDirectory
	issuer    *credential.Issuer
	notifier  Notifier
	logger    *slog.Logger
	clock     func() time.Time
}

type Option func(*EventService)

// WithClock replaces the wall clock, for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *EventService) { s.clock = clock }
}

func WithNotifier(n Notifier) Option {
	return func(s *EventService) { s.notifier = n }
}

func NewEventService(eventRepo models.EventRepo, users models.UserDirectory, issuer *credential.Issuer, logger *slog.Logger, opts ...Option) *EventService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &EventService{
		eventRepo: eventRepo,
		users:     users,
		issuer:    issuer,
		logger:    logger,
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.notifier == nil {
		s.notifier = NewLogNotifier(logger)
	}
	return s
}

// now is truncated to the precision the event store keeps, so timestamps read
// back compare equal to the ones written.
func (s *EventService) now() time.Time {
	return s.clock().UTC().Truncate(time.Millisecond)
}

// CreateEvent builds and stores a new event. An event without registration is
// open to everyone: every member in the directory is enrolled and selected.
func (s *EventService) CreateEvent(ctx context.Context, input models.EventInput) (*models.Event, error) {
	event, err := models.NewEvent(input, uuid.NewString(), s.now())
	if err != nil {
		return nil, err
	}

	if !event.IsRegistrationRequired {
		users, err := s.users.ListAllUsers(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load members for open event: %w", err)
		}
		ids := make([]uuid.UUID, 0, len(users))
		for _, u := range users {
			ids = append(ids, u.ID)
		}
		event.EnrollAll(ids)
	}

	created, err := s.eventRepo.CreateEvent(ctx, event)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "Event created",
		"event_id", created.ID.Hex(),
		"registration_required", created.IsRegistrationRequired,
		"enrolled", len(created.Registrants),
	)
	return created, nil
}

func (s *EventService) ListEvents(ctx context.Context, filter models.EventFilter, privileged bool) ([]*models.Event, error) {
	events, err := s.eventRepo.ListEvents(ctx, filter)
	if err != nil {
		return nil, err
	}
	if !privileged {
		for i, e := range events {
			events[i] = e.Redacted()
		}
	}
	return events, nil
}

func (s *EventService) GetEvent(ctx context.Context, id primitive.ObjectID, privileged bool) (*models.Event, error) {
	event, err := s.eventRepo.GetEventByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !privileged {
		return event.Redacted(), nil
	}
	return event, nil
}

// UpdateEvent applies an organizer edit. The write only lands if the event is
// unchanged since it was read; otherwise ErrEventModified is returned.
func (s *EventService) UpdateEvent(ctx context.Context, id primitive.ObjectID, patch models.EventPatch) (*models.Event, error) {
	current, err := s.eventRepo.GetEventByID(ctx, id)
	if err != nil {
		return nil, err
	}

	next, err := current.Patched(patch)
	if err != nil {
		return nil, err
	}
	next.UpdatedAt = s.now()
	if !next.UpdatedAt.After(current.UpdatedAt) {
		next.UpdatedAt = current.UpdatedAt.Add(time.Millisecond)
	}

	updated, err := s.eventRepo.ReplaceEventFields(ctx, next, current.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "Event updated", "event_id", id.Hex())
	return updated, nil
}

func (s *EventService) DeleteEvent(ctx context.Context, id primitive.ObjectID) error {
	if err := s.eventRepo.DeleteEvent(ctx, id); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "Event deleted", "event_id", id.Hex())
	return nil
}

func (s *EventService) AddSubEvent(ctx context.Context, eventID primitive.ObjectID, input models.SubEventInput) (*models.SubEvent, error) {
	event, err := s.eventRepo.GetEventByID(ctx, eventID)
	if err != nil {
		return nil, err
	}

	sub, err := event.NewSubEvent(input)
	if err != nil {
		return nil, err
	}
	if err := s.eventRepo.PushSubEvent(ctx, eventID, sub, s.now()); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "Sub-event added", "event_id", eventID.Hex(), "sub_event_id", sub.ID.Hex())
	return sub, nil
}

// EnrollUser adds a member to every open event that has not ended yet, for
// members who joined after those events were created.
func (s *EventService) EnrollUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	if _, err := s.users.FindUserByID(ctx, userID); err != nil {
		return 0, err
	}
	n, err := s.eventRepo.EnrollInOpenEvents(ctx, userID, s.now())
	if err != nil {
		return 0, err
	}
	s.logger.InfoContext(ctx, "User enrolled in open events", "user_id", userID, "events", n)
	return n, nil
}

// RotateEventSecret replaces the event's secret name, which revokes every
// credential issued for it. With resetCheckIns, all check-ins are cleared as
// well. The report describes attendance as it stood before the rotation.
func (s *EventService) RotateEventSecret(ctx context.Context, id primitive.ObjectID, resetCheckIns bool) (*models.AttendanceReport, error) {
	before, err := s.eventRepo.RotateSecret(ctx, id, uuid.NewString(), resetCheckIns, s.now())
	if err != nil {
		return nil, err
	}
	report := before.Attendance()

	s.logger.WarnContext(ctx, "Event secret rotated",
		"event_id", id.Hex(),
		"reset_check_ins", resetCheckIns,
		"checked_in_before", report.CheckedInCount,
	)

	recipients := make([]uuid.UUID, 0, len(before.Registrants))
	for _, r := range before.Registrants {
		recipients = append(recipients, r.User)
	}
	if len(recipients) > 0 {
		err := s.notifier.Notify(ctx, Notification{
			Recipients: recipients,
			Subject:    fmt.Sprintf("New check-in code for %s", before.Name),
			Body:       "Your previous check-in code no longer works. Open the app to get a new one.",
		})
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to notify registrants of rotation", "event_id", id.Hex(), "error", err)
		}
	}
	return &report, nil
}

func (s *EventService) AttendanceReport(ctx context.Context, id primitive.ObjectID) (*models.AttendanceReport, error) {
	event, err := s.eventRepo.GetEventByID(ctx, id)
	if err != nil {
		return nil, err
	}
	report := event.Attendance()
	return &report, nil
}
