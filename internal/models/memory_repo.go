package models

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryRepo is an EventRepo held in process memory, for local development
// (STORE_DRIVER=memory) and tests. A single mutex makes each method atomic,
// matching the per-operation guarantees of the MongoDB store.
type MemoryRepo struct {
	mu     sync.Mutex
	events map[primitive.ObjectID]*Event
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{events: make(map[primitive.ObjectID]*Event)}
}

func (e *Event) clone() *Event {
	out := *e
	out.AdditionalFieldsSchema = make(FieldSchema, len(e.AdditionalFieldsSchema))
	for k, v := range e.AdditionalFieldsSchema {
		out.AdditionalFieldsSchema[k] = v
	}
	out.Registrants = make([]Registrant, len(e.Registrants))
	for i, r := range e.Registrants {
		if r.AdditionalFields != nil {
			fields := make(map[string]interface{}, len(r.AdditionalFields))
			for k, v := range r.AdditionalFields {
				fields[k] = v
			}
			r.AdditionalFields = fields
		}
		if r.CheckedInAt != nil {
			at := *r.CheckedInAt
			r.CheckedInAt = &at
		}
		out.Registrants[i] = r
	}
	out.SubEvents = make([]SubEvent, len(e.SubEvents))
	for i, s := range e.SubEvents {
		s.CheckedIn = append([]uuid.UUID{}, s.CheckedIn...)
		out.SubEvents[i] = s
	}
	out.normalize()
	return &out
}

func (m *MemoryRepo) EnsureIndexes(ctx context.Context) error { return nil }

func (m *MemoryRepo) CreateEvent(ctx context.Context, event *Event) (*Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, storageError("insert event", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if event.ID.IsZero() {
		event.ID = primitive.NewObjectID()
	}
	for _, existing := range m.events {
		if existing.SecretName == event.SecretName {
			return nil, ErrDuplicateSecret
		}
	}
	m.events[event.ID] = event.clone()
	return event.clone(), nil
}

func (m *MemoryRepo) GetEventByID(ctx context.Context, id primitive.ObjectID) (*Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ev, ok := m.events[id]
	if !ok {
		return nil, ErrEventNotFound
	}
	return ev.clone(), nil
}

func (m *MemoryRepo) ListEvents(ctx context.Context, filter EventFilter) ([]*Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []*Event{}
	for _, ev := range m.events {
		if filter.Matches(ev) {
			out = append(out, ev.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

// lookup returns the stored event for a write, failing fast on a cancelled context
// so a cancelled request never mutates state.
func (m *MemoryRepo) lookup(ctx context.Context, id primitive.ObjectID) (*Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, storageError("write", err)
	}
	ev, ok := m.events[id]
	if !ok {
		return nil, ErrEventNotFound
	}
	return ev, nil
}

func (m *MemoryRepo) ReplaceEventFields(ctx context.Context, event *Event, expectedUpdatedAt time.Time) (*Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ev, err := m.lookup(ctx, event.ID)
	if err != nil {
		return nil, err
	}
	if !ev.UpdatedAt.Equal(expectedUpdatedAt) {
		return nil, ErrEventModified
	}
	ev.Name = event.Name
	ev.Description = event.Description
	ev.Location = event.Location
	ev.TimeWindow = event.TimeWindow
	ev.AdditionalFieldsSchema = event.AdditionalFieldsSchema
	ev.UpdatedAt = event.UpdatedAt
	return ev.clone(), nil
}

func (m *MemoryRepo) DeleteEvent(ctx context.Context, id primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.lookup(ctx, id); err != nil {
		return err
	}
	delete(m.events, id)
	return nil
}

func (m *MemoryRepo) PushSubEvent(ctx context.Context, eventID primitive.ObjectID, sub *SubEvent, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ev, err := m.lookup(ctx, eventID)
	if err != nil {
		return err
	}
	if !ev.IsRegistrationRequired {
		return ErrRegistrationNotRequired
	}
	s := *sub
	s.CheckedIn = append([]uuid.UUID{}, sub.CheckedIn...)
	ev.SubEvents = append(ev.SubEvents, s)
	ev.UpdatedAt = now
	return nil
}

func (m *MemoryRepo) PushRegistrant(ctx context.Context, eventID primitive.ObjectID, registrant Registrant, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ev, err := m.lookup(ctx, eventID)
	if err != nil {
		return err
	}
	if ev.FindRegistrant(registrant.User) != nil {
		return ErrDuplicateRegistrant
	}
	ev.Registrants = append(ev.Registrants, registrant)
	ev.UpdatedAt = now
	ev.normalize()
	return nil
}

func (m *MemoryRepo) PullRegistrant(ctx context.Context, eventID primitive.ObjectID, userID uuid.UUID, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ev, err := m.lookup(ctx, eventID)
	if err != nil {
		return err
	}
	if ev.FindRegistrant(userID) == nil {
		return ErrRegistrantNotFound
	}

	kept := ev.Registrants[:0]
	for _, r := range ev.Registrants {
		if r.User != userID {
			kept = append(kept, r)
		}
	}
	ev.Registrants = kept
	for i := range ev.SubEvents {
		ids := ev.SubEvents[i].CheckedIn[:0]
		for _, id := range ev.SubEvents[i].CheckedIn {
			if id != userID {
				ids = append(ids, id)
			}
		}
		ev.SubEvents[i].CheckedIn = ids
	}
	ev.UpdatedAt = now
	ev.normalize()
	return nil
}

func (m *MemoryRepo) SetRegistrantFields(ctx context.Context, eventID primitive.ObjectID, userID uuid.UUID, update RegistrantUpdate, now time.Time) (*Registrant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ev, err := m.lookup(ctx, eventID)
	if err != nil {
		return nil, err
	}
	r := ev.FindRegistrant(userID)
	if r == nil {
		return nil, ErrRegistrantNotFound
	}

	if len(update.AdditionalFields) > 0 && r.AdditionalFields == nil {
		r.AdditionalFields = make(map[string]interface{}, len(update.AdditionalFields))
	}
	for k, v := range update.AdditionalFields {
		r.AdditionalFields[k] = v
	}
	if update.CheckedIn != nil && *update.CheckedIn {
		at := now
		r.CheckedIn = true
		r.CheckedInAt = &at
	}
	if update.Selected != nil {
		r.Selected = *update.Selected
	}
	if update.Status != nil {
		r.Status = *update.Status
	}
	ev.UpdatedAt = now

	out := ev.clone().FindRegistrant(userID)
	return out, nil
}

func (m *MemoryRepo) MarkCheckedIn(ctx context.Context, eventID primitive.ObjectID, userID uuid.UUID, at time.Time) (*Registrant, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ev, err := m.lookup(ctx, eventID)
	if err != nil {
		return nil, false, err
	}
	r := ev.FindRegistrant(userID)
	if r == nil {
		return nil, false, ErrRegistrantNotFound
	}

	changed := false
	if !r.CheckedIn {
		checkedAt := at
		r.CheckedIn = true
		r.CheckedInAt = &checkedAt
		ev.UpdatedAt = at
		changed = true
	}
	return ev.clone().FindRegistrant(userID), changed, nil
}

func (m *MemoryRepo) AddSubEventCheckIn(ctx context.Context, eventID, subEventID primitive.ObjectID, userID uuid.UUID, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ev, err := m.lookup(ctx, eventID)
	if err != nil {
		return err
	}
	sub := ev.FindSubEvent(subEventID)
	if sub == nil || ev.FindRegistrant(userID) == nil || sub.HasCheckedIn(userID) {
		return classifySubEventMiss(ev, subEventID, userID)
	}
	sub.CheckedIn = append(sub.CheckedIn, userID)
	ev.UpdatedAt = now
	return nil
}

func (m *MemoryRepo) EnrollInOpenEvents(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, storageError("enroll user", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, ev := range m.events {
		if ev.IsRegistrationRequired || ev.End.Before(now) || ev.FindRegistrant(userID) != nil {
			continue
		}
		ev.Registrants = append(ev.Registrants, Registrant{User: userID, Selected: true, Status: StatusApplied})
		ev.UpdatedAt = now
		ev.normalize()
		n++
	}
	return n, nil
}

func (m *MemoryRepo) RotateSecret(ctx context.Context, eventID primitive.ObjectID, secretName string, resetCheckIns bool, now time.Time) (*Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ev, err := m.lookup(ctx, eventID)
	if err != nil {
		return nil, err
	}
	before := ev.clone()

	ev.SecretName = secretName
	ev.UpdatedAt = now
	if resetCheckIns {
		for i := range ev.Registrants {
			ev.Registrants[i].CheckedIn = false
			ev.Registrants[i].CheckedInAt = nil
		}
		for i := range ev.SubEvents {
			ev.SubEvents[i].CheckedIn = []uuid.UUID{}
		}
	}
	return before, nil
}
