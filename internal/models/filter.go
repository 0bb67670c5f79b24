package models

import (
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
)

// EventFilter is the single parameterized query behind every event listing.
// Zero-valued fields do not constrain the result; an empty filter lists all events.
type EventFilter struct {
	// From and To bound start_time inclusively (date-range query).
	From *time.Time
	To   *time.Time
	// At selects events happening at an instant, against the buffered
	// window when Buffered is set.
	At       *time.Time
	Buffered bool
	// Before and After compare against start_time inclusively.
	Before *time.Time
	After  *time.Time
	// Attendee restricts to events whose roster contains the user.
	Attendee uuid.UUID
}

// Query renders the filter as a MongoDB query document.
func (f EventFilter) Query() bson.M {
	conds := bson.A{}

	if f.From != nil {
		conds = append(conds, bson.M{"start_time": bson.M{"$gte": *f.From}})
	}
	if f.To != nil {
		conds = append(conds, bson.M{"start_time": bson.M{"$lte": *f.To}})
	}
	if f.At != nil {
		startField, endField := "start_time", "end_time"
		if f.Buffered {
			startField, endField = "buffered_start_time", "buffered_end_time"
		}
		conds = append(conds,
			bson.M{startField: bson.M{"$lte": *f.At}},
			bson.M{endField: bson.M{"$gte": *f.At}},
		)
	}
	if f.Before != nil {
		conds = append(conds, bson.M{"start_time": bson.M{"$lte": *f.Before}})
	}
	if f.After != nil {
		conds = append(conds, bson.M{"start_time": bson.M{"$gte": *f.After}})
	}
	if f.Attendee != uuid.Nil {
		conds = append(conds, bson.M{"registrants.user": f.Attendee})
	}

	if len(conds) == 0 {
		return bson.M{}
	}
	return bson.M{"$and": conds}
}

// Matches evaluates the filter in memory with the same semantics as Query.
func (f EventFilter) Matches(e *Event) bool {
	if f.From != nil && e.Start.Before(*f.From) {
		return false
	}
	if f.To != nil && e.Start.After(*f.To) {
		return false
	}
	if f.At != nil && !e.Contains(*f.At, f.Buffered) {
		return false
	}
	if f.Before != nil && e.Start.After(*f.Before) {
		return false
	}
	if f.After != nil && e.Start.Before(*f.After) {
		return false
	}
	if f.Attendee != uuid.Nil && e.FindRegistrant(f.Attendee) == nil {
		return false
	}
	return true
}
