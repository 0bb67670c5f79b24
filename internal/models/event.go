package models

import (
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	EventsDbName  = "attendance"
	EventsColName = "events"
)

type RegistrantStatus string

const (
	StatusApplied   RegistrantStatus = "Applied"
	StatusAccepted  RegistrantStatus = "Accepted"
	StatusConfirmed RegistrantStatus = "Confirmed"
	StatusWaitlist  RegistrantStatus = "Waitlist"
	StatusRejected  RegistrantStatus = "Rejected"
	StatusExpired   RegistrantStatus = "Expired"
)

type Registrant struct {
	User             uuid.UUID              `bson:"user" json:"user"`
	CheckedIn        bool                   `bson:"checked_in" json:"checked_in"`
	CheckedInAt      *time.Time             `bson:"checked_in_at,omitempty" json:"checked_in_at,omitempty"`
	Selected         bool                   `bson:"selected" json:"selected"`
	Status           RegistrantStatus       `bson:"status" json:"status"`
	AdditionalFields map[string]interface{} `bson:"additional_fields,omitempty" json:"additional_fields,omitempty"`
}

// RegistrantView is a roster entry merged with the user's directory record for display.
type RegistrantView struct {
	Registrant
	UserDetails *User `json:"user_details,omitempty"`
}

type SubEvent struct {
	ID          primitive.ObjectID `bson:"_id" json:"id"`
	Name        string             `bson:"name" json:"name"`
	Description string             `bson:"description,omitempty" json:"description,omitempty"`
	Location    string             `bson:"location,omitempty" json:"location,omitempty"`
	TimeWindow  `bson:",inline"`
	CheckedIn   []uuid.UUID `bson:"checked_in" json:"checked_in,omitempty"`
}

func (s *SubEvent) HasCheckedIn(userID uuid.UUID) bool {
	for _, id := range s.CheckedIn {
		if id == userID {
			return true
		}
	}
	return false
}

type Event struct {
	ID                     primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name                   string             `bson:"name" json:"name"`
	Description            string             `bson:"description,omitempty" json:"description,omitempty"`
	Location               string             `bson:"location,omitempty" json:"location,omitempty"`
	IsRegistrationRequired bool               `bson:"is_registration_required" json:"is_registration_required"`
	TimeWindow             `bson:",inline"`
	SecretName             string       `bson:"secret_name" json:"secret_name,omitempty"`
	AdditionalFieldsSchema FieldSchema  `bson:"additional_fields_schema" json:"additional_fields_schema"`
	Registrants            []Registrant `bson:"registrants" json:"registrants,omitempty"`
	RegistrantCount        int          `bson:"-" json:"registrant_count"`
	SubEvents              []SubEvent   `bson:"sub_events" json:"sub_events"`
	CreatedAt              time.Time    `bson:"created_at" json:"created_at"`
	UpdatedAt              time.Time    `bson:"updated_at" json:"updated_at"`
}

// EventInput is the organizer's request to create an event.
type EventInput struct {
	Name                   string      `json:"name" validate:"required,max=200"`
	Description            string      `json:"description" validate:"max=5000"`
	Location               string      `json:"location" validate:"max=500"`
	IsRegistrationRequired *bool       `json:"is_registration_required" validate:"required"`
	StartTime              time.Time   `json:"start_time"`
	EndTime                time.Time   `json:"end_time"`
	BufferedStartTime      *time.Time  `json:"buffered_start_time"`
	BufferedEndTime        *time.Time  `json:"buffered_end_time"`
	AdditionalFieldsSchema FieldSchema `json:"additional_fields_schema" validate:"omitempty,dive,keys,fieldkey,endkeys,oneof=string number bool array"`
}

// SubEventInput is the organizer's request to add a sub-event.
type SubEventInput struct {
	Name              string     `json:"name" validate:"required,max=200"`
	Description       string     `json:"description" validate:"max=5000"`
	Location          string     `json:"location" validate:"max=500"`
	StartTime         time.Time  `json:"start_time"`
	EndTime           time.Time  `json:"end_time"`
	BufferedStartTime *time.Time `json:"buffered_start_time"`
	BufferedEndTime   *time.Time `json:"buffered_end_time"`
}

// EventPatch lists the fields an organizer may edit after creation. The roster,
// the secret name and the registration flag are deliberately absent.
type EventPatch struct {
	Name                   *string      `json:"name" validate:"omitempty,min=1,max=200"`
	Description            *string      `json:"description" validate:"omitempty,max=5000"`
	Location               *string      `json:"location" validate:"omitempty,max=500"`
	StartTime              *time.Time   `json:"start_time"`
	EndTime                *time.Time   `json:"end_time"`
	BufferedStartTime      *time.Time   `json:"buffered_start_time"`
	BufferedEndTime        *time.Time   `json:"buffered_end_time"`
	AdditionalFieldsSchema *FieldSchema `json:"additional_fields_schema"`
}

// RegistrantUpdate carries a partial edit of a roster entry. Only privileged
// callers may set CheckedIn, Selected or Status.
type RegistrantUpdate struct {
	AdditionalFields map[string]interface{} `json:"additional_fields"`
	CheckedIn        *bool                  `json:"checked_in"`
	Selected         *bool                  `json:"selected"`
	Status           *RegistrantStatus      `json:"status" validate:"omitempty,oneof=Applied Accepted Confirmed Waitlist Rejected Expired"`
}

func (u RegistrantUpdate) TouchesPrivilegedFields() bool {
	return u.CheckedIn != nil || u.Selected != nil || u.Status != nil
}

func (u RegistrantUpdate) Empty() bool {
	return len(u.AdditionalFields) == 0 && !u.TouchesPrivilegedFields()
}

// NewEvent builds a validated event from input. Open events (no registration)
// always carry an empty schema.
func NewEvent(input EventInput, secretName string, now time.Time) (*Event, error) {
	if err := ValidateStruct(input); err != nil {
		return nil, err
	}

	window, err := NewTimeWindow(input.StartTime, input.EndTime, input.BufferedStartTime, input.BufferedEndTime)
	if err != nil {
		return nil, err
	}

	schema := FieldSchema{}
	if *input.IsRegistrationRequired {
		if err := input.AdditionalFieldsSchema.Check(); err != nil {
			return nil, err
		}
		for k, v := range input.AdditionalFieldsSchema {
			schema[k] = v
		}
	}

	return &Event{
		Name:                   input.Name,
		Description:            input.Description,
		Location:               input.Location,
		IsRegistrationRequired: *input.IsRegistrationRequired,
		TimeWindow:             window,
		SecretName:             secretName,
		AdditionalFieldsSchema: schema,
		Registrants:            []Registrant{},
		SubEvents:              []SubEvent{},
		CreatedAt:              now,
		UpdatedAt:              now,
	}, nil
}

// EnrollAll adds every given user as a selected registrant, skipping users
// already on the roster.
func (e *Event) EnrollAll(userIDs []uuid.UUID) {
	for _, id := range userIDs {
		if e.FindRegistrant(id) != nil {
			continue
		}
		e.Registrants = append(e.Registrants, Registrant{User: id, Selected: true, Status: StatusApplied})
	}
	e.RegistrantCount = len(e.Registrants)
}

// NewSubEvent validates input against the parent event.
func (e *Event) NewSubEvent(input SubEventInput) (*SubEvent, error) {
	if !e.IsRegistrationRequired {
		return nil, ErrRegistrationNotRequired
	}
	if err := ValidateStruct(input); err != nil {
		return nil, err
	}

	window, err := NewTimeWindow(input.StartTime, input.EndTime, input.BufferedStartTime, input.BufferedEndTime)
	if err != nil {
		return nil, err
	}
	if !e.TimeWindow.Encloses(window) {
		return nil, ErrSubEventOutsideEvent
	}

	return &SubEvent{
		ID:          primitive.NewObjectID(),
		Name:        input.Name,
		Description: input.Description,
		Location:    input.Location,
		TimeWindow:  window,
		CheckedIn:   []uuid.UUID{},
	}, nil
}

// Patched returns a copy of e with p applied, or a validation error. When a
// bound moves without its buffered counterpart, the buffer keeps its width.
func (e *Event) Patched(p EventPatch) (*Event, error) {
	if err := ValidateStruct(p); err != nil {
		return nil, err
	}

	out := *e
	if p.Name != nil {
		out.Name = *p.Name
	}
	if p.Description != nil {
		out.Description = *p.Description
	}
	if p.Location != nil {
		out.Location = *p.Location
	}

	start, end := e.Start, e.End
	if p.StartTime != nil {
		start = *p.StartTime
	}
	if p.EndTime != nil {
		end = *p.EndTime
	}
	bufStart := start.Add(-e.Start.Sub(e.BufferedStart))
	bufEnd := end.Add(e.BufferedEnd.Sub(e.End))
	if p.BufferedStartTime != nil {
		bufStart = *p.BufferedStartTime
	}
	if p.BufferedEndTime != nil {
		bufEnd = *p.BufferedEndTime
	}
	window, err := NewTimeWindow(start, end, &bufStart, &bufEnd)
	if err != nil {
		return nil, err
	}
	for _, sub := range e.SubEvents {
		if !window.Encloses(sub.TimeWindow) {
			return nil, ErrSubEventOutsideEvent
		}
	}
	out.TimeWindow = window

	if p.AdditionalFieldsSchema != nil {
		schema := *p.AdditionalFieldsSchema
		if !e.IsRegistrationRequired && len(schema) > 0 {
			return nil, ErrRegistrationNotRequired
		}
		if err := schema.Check(); err != nil {
			return nil, err
		}
		for _, r := range e.Registrants {
			if err := ValidateAgainstSchema(schema, r.AdditionalFields, SchemaPartial); err != nil {
				return nil, err
			}
		}
		out.AdditionalFieldsSchema = schema
	}
	return &out, nil
}

func (e *Event) FindRegistrant(userID uuid.UUID) *Registrant {
	for i := range e.Registrants {
		if e.Registrants[i].User == userID {
			return &e.Registrants[i]
		}
	}
	return nil
}

func (e *Event) FindSubEvent(id primitive.ObjectID) *SubEvent {
	for i := range e.SubEvents {
		if e.SubEvents[i].ID == id {
			return &e.SubEvents[i]
		}
	}
	return nil
}

// Redacted returns the view shown to non-privileged callers: no secret name,
// no roster and no sub-event check-in sets.
func (e *Event) Redacted() *Event {
	out := *e
	out.SecretName = ""
	out.RegistrantCount = len(e.Registrants)
	out.Registrants = nil
	out.SubEvents = make([]SubEvent, len(e.SubEvents))
	for i, s := range e.SubEvents {
		s.CheckedIn = nil
		out.SubEvents[i] = s
	}
	return &out
}

// normalize fills defaults for documents written before a field existed.
func (e *Event) normalize() {
	if e.AdditionalFieldsSchema == nil {
		e.AdditionalFieldsSchema = FieldSchema{}
	}
	if e.Registrants == nil {
		e.Registrants = []Registrant{}
	}
	if e.SubEvents == nil {
		e.SubEvents = []SubEvent{}
	}
	for i := range e.Registrants {
		if e.Registrants[i].Status == "" {
			e.Registrants[i].Status = StatusApplied
		}
	}
	e.RegistrantCount = len(e.Registrants)
}
