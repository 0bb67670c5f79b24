package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/joshua-takyi/attendance/internal/helpers"
	"github.com/joshua-takyi/attendance/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var errOtherRegistrant = fmt.Errorf("%w: users may only manage their own registration", models.ErrForbidden)

// AttachRegistrant registers target for the event. Members register
// themselves and must supply every field the event asks for; admins may
// register anyone with a subset of the fields.
func (s *EventService) AttachRegistrant(ctx context.Context, eventID primitive.ObjectID, requester helpers.Identity, target uuid.UUID, fields map[string]interface{}) (*models.Registrant, error) {
	privileged := requester.IsAdmin()
	if !privileged && !requester.IsSelf(target) {
		return nil, errOtherRegistrant
	}

	event, err := s.eventRepo.GetEventByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.FindRegistrant(target) != nil {
		return nil, models.ErrDuplicateRegistrant
	}

	mode := models.SchemaComplete
	if privileged {
		mode = models.SchemaPartial
	}
	if err := models.ValidateAgainstSchema(event.AdditionalFieldsSchema, fields, mode); err != nil {
		return nil, err
	}

	if !requester.IsSelf(target) {
		if _, err := s.users.FindUserByID(ctx, target); err != nil {
			return nil, err
		}
	}

	registrant := models.Registrant{
		User:   target,
		Status: models.StatusApplied,
	}
	if len(fields) > 0 {
		registrant.AdditionalFields = make(map[string]interface{}, len(fields))
		for k, v := range fields {
			registrant.AdditionalFields[k] = v
		}
	}

	if err := s.eventRepo.PushRegistrant(ctx, eventID, registrant, s.now()); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "Registrant attached",
		"event_id", eventID.Hex(),
		"user_id", target,
		"by_admin", privileged && !requester.IsSelf(target),
	)
	return &registrant, nil
}

// UpdateRegistrantFields edits a roster entry. Members may change their own
// additional fields; check-in state, selection and status are admin-only.
// Check-in only moves forward: checked_in=false is rejected, and marking an
// already checked-in registrant keeps the original checked_in_at.
func (s *EventService) UpdateRegistrantFields(ctx context.Context, eventID primitive.ObjectID, requester helpers.Identity, target uuid.UUID, update models.RegistrantUpdate) (*models.Registrant, error) {
	if !requester.IsAdmin() {
		if !requester.IsSelf(target) {
			return nil, errOtherRegistrant
		}
		if update.TouchesPrivilegedFields() {
			return nil, models.ErrPrivileged
		}
	}
	if err := models.ValidateStruct(update); err != nil {
		return nil, err
	}
	if update.Empty() {
		return nil, &models.InvalidInputError{Field: "body", Reason: "no fields to update"}
	}
	if update.CheckedIn != nil && !*update.CheckedIn {
		return nil, &models.InvalidInputError{Field: "checked_in", Reason: "check-in cannot be undone"}
	}

	event, err := s.eventRepo.GetEventByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	current := event.FindRegistrant(target)
	if current == nil {
		return nil, models.ErrRegistrantNotFound
	}
	if update.CheckedIn != nil && current.CheckedIn {
		update.CheckedIn = nil
		if update.Empty() {
			return current, nil
		}
	}
	if err := models.ValidateAgainstSchema(event.AdditionalFieldsSchema, update.AdditionalFields, models.SchemaPartial); err != nil {
		return nil, err
	}

	r, err := s.eventRepo.SetRegistrantFields(ctx, eventID, target, update, s.now())
	if err != nil {
		return nil, err
	}
	if update.TouchesPrivilegedFields() {
		s.logger.InfoContext(ctx, "Registrant state changed by admin",
			"event_id", eventID.Hex(),
			"user_id", target,
			"admin_id", requester.UserID,
		)
	}
	return r, nil
}

// ListRegistrants returns the roster in registration order, each entry merged
// with the member's directory record when one exists.
func (s *EventService) ListRegistrants(ctx context.Context, eventID primitive.ObjectID) ([]models.RegistrantView, error) {
	event, err := s.eventRepo.GetEventByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if len(event.Registrants) == 0 {
		return []models.RegistrantView{}, nil
	}

	ids := make([]uuid.UUID, 0, len(event.Registrants))
	for _, r := range event.Registrants {
		ids = append(ids, r.User)
	}
	users, err := s.users.FindUsersByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	views := make([]models.RegistrantView, 0, len(event.Registrants))
	for _, r := range event.Registrants {
		views = append(views, models.RegistrantView{Registrant: r, UserDetails: users[r.User]})
	}
	return views, nil
}

func (s *EventService) GetRegistrant(ctx context.Context, eventID primitive.ObjectID, userID uuid.UUID) (*models.RegistrantView, error) {
	event, err := s.eventRepo.GetEventByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	r := event.FindRegistrant(userID)
	if r == nil {
		return nil, models.ErrRegistrantNotFound
	}
	return s.withUserDetails(ctx, *r), nil
}

// RemoveRegistrant drops the member from the roster and from every sub-event check-in set.
func (s *EventService) RemoveRegistrant(ctx context.Context, eventID primitive.ObjectID, userID uuid.UUID) error {
	if err := s.eventRepo.PullRegistrant(ctx, eventID, userID, s.now()); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "Registrant removed", "event_id", eventID.Hex(), "user_id", userID)
	return nil
}

// withUserDetails merges the directory record into r. A directory failure
// leaves the details empty rather than failing a call whose write already landed.
func (s *EventService) withUserDetails(ctx context.Context, r models.Registrant) *models.RegistrantView {
	view := &models.RegistrantView{Registrant: r}
	user, err := s.users.FindUserByID(ctx, r.User)
	switch {
	case err == nil:
		view.UserDetails = user
	case errors.Is(err, models.ErrNotFound):
	default:
		s.logger.WarnContext(ctx, "Failed to load user details", "user_id", r.User, "error", err)
	}
	return view
}
