package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/joshua-takyi/attendance/internal/credential"
	"github.com/joshua-takyi/attendance/internal/helpers"
	"github.com/joshua-takyi/attendance/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CheckIn marks target as present. Only the member themselves may check in,
// and repeating a check-in succeeds without changing the stored time.
func (s *EventService) CheckIn(ctx context.Context, eventID primitive.ObjectID, requester helpers.Identity, target uuid.UUID) (*models.RegistrantView, error) {
	if !requester.IsSelf(target) {
		return nil, models.ErrProxyCheckIn
	}

	r, changed, err := s.eventRepo.MarkCheckedIn(ctx, eventID, target, s.now())
	if err != nil {
		return nil, err
	}
	if changed {
		s.logger.InfoContext(ctx, "Registrant checked in", "event_id", eventID.Hex(), "user_id", target)
	}
	return s.withUserDetails(ctx, *r), nil
}

// CheckInWithCredential admits target on presentation of their credential,
// while the event's buffered window is open.
func (s *EventService) CheckInWithCredential(ctx context.Context, eventID primitive.ObjectID, requester helpers.Identity, target uuid.UUID, token string) (*models.RegistrantView, error) {
	if !requester.IsSelf(target) {
		return nil, models.ErrProxyCheckIn
	}

	event, err := s.eventRepo.GetEventByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !event.Contains(s.now(), true) {
		return nil, models.ErrOutsideWindow
	}
	if !s.issuer.Verify(token, target, event.SecretName) {
		s.logger.WarnContext(ctx, "Credential mismatch", "event_id", eventID.Hex(), "user_id", target)
		return nil, models.ErrCredentialMismatch
	}
	return s.CheckIn(ctx, eventID, requester, target)
}

// CheckInSubEvent records attendance at a sub-event. The credential is the
// parent event's; a repeat scan fails with ErrAlreadyCheckedIn.
func (s *EventService) CheckInSubEvent(ctx context.Context, eventID, subEventID primitive.ObjectID, requester helpers.Identity, target uuid.UUID, token string) error {
	if !requester.IsSelf(target) {
		return models.ErrProxyCheckIn
	}

	event, err := s.eventRepo.GetEventByID(ctx, eventID)
	if err != nil {
		return err
	}
	sub := event.FindSubEvent(subEventID)
	if sub == nil {
		return models.ErrSubEventNotFound
	}
	if !sub.Contains(s.now(), true) {
		return models.ErrOutsideWindow
	}
	if !s.issuer.Verify(token, target, event.SecretName) {
		s.logger.WarnContext(ctx, "Credential mismatch",
			"event_id", eventID.Hex(),
			"sub_event_id", subEventID.Hex(),
			"user_id", target,
		)
		return models.ErrCredentialMismatch
	}
	if event.FindRegistrant(target) == nil {
		return models.ErrRegistrantNotFound
	}
	if sub.HasCheckedIn(target) {
		return models.ErrAlreadyCheckedIn
	}

	if err := s.eventRepo.AddSubEventCheckIn(ctx, eventID, subEventID, target, s.now()); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "Sub-event check-in",
		"event_id", eventID.Hex(),
		"sub_event_id", subEventID.Hex(),
		"user_id", target,
	)
	return nil
}

// IssueCredentials returns one credential for every event the member is on
// the roster of and whose buffered window is open now.
func (s *EventService) IssueCredentials(ctx context.Context, requester helpers.Identity) (*credential.Bundle, error) {
	// a nil attendee would match every event
	if requester.UserID == uuid.Nil {
		return nil, models.ErrForbidden
	}
	now := s.now()
	events, err := s.eventRepo.ListEvents(ctx, models.EventFilter{
		At:       &now,
		Buffered: true,
		Attendee: requester.UserID,
	})
	if err != nil {
		return nil, err
	}

	bundle := &credential.Bundle{
		UserID: requester.UserID,
		Events: make([]credential.EventCredential, 0, len(events)),
	}
	for _, e := range events {
		bundle.Events = append(bundle.Events, credential.EventCredential{
			EventID: e.ID.Hex(),
			Secret:  s.issuer.Issue(requester.UserID, e.SecretName),
		})
	}
	return bundle, nil
}

// CredentialQR renders the member's current credentials as a PNG QR code.
func (s *EventService) CredentialQR(ctx context.Context, requester helpers.Identity, size int) ([]byte, error) {
	bundle, err := s.IssueCredentials(ctx, requester)
	if err != nil {
		return nil, err
	}
	return credential.RenderQR(*bundle, size)
}
