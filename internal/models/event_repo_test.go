package models

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

const mockNS = "attendance_test.events"

var mockNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func mockRepo(mt *mtest.T) *MongodbRepo {
	return MongodbNewRepo(mt.Client, "attendance_test")
}

func storedEvent(registrants ...Registrant) *Event {
	return &Event{
		ID:         primitive.NewObjectID(),
		Name:       "Launch night",
		SecretName: "s3cret",
		TimeWindow: TimeWindow{
			Start:         mockNow,
			End:           mockNow.Add(2 * time.Hour),
			BufferedStart: mockNow.Add(-time.Hour),
			BufferedEnd:   mockNow.Add(3 * time.Hour),
		},
		AdditionalFieldsSchema: FieldSchema{},
		Registrants:            registrants,
		SubEvents:              []SubEvent{},
		CreatedAt:              mockNow,
		UpdatedAt:              mockNow,
	}
}

// toDoc renders v the way the server hands it back.
func toDoc(mt *mtest.T, v interface{}) bson.D {
	mt.Helper()
	raw, err := bson.Marshal(v)
	if err != nil {
		mt.Fatalf("marshal: %v", err)
	}
	var doc bson.D
	if err := bson.Unmarshal(raw, &doc); err != nil {
		mt.Fatalf("unmarshal: %v", err)
	}
	return doc
}

func updated(n, modified int) bson.D {
	return mtest.CreateSuccessResponse(
		bson.E{Key: "n", Value: n},
		bson.E{Key: "nModified", Value: modified},
	)
}

func counted(n int) bson.D {
	if n == 0 {
		return mtest.CreateCursorResponse(0, mockNS, mtest.FirstBatch)
	}
	return mtest.CreateCursorResponse(0, mockNS, mtest.FirstBatch, bson.D{{Key: "n", Value: n}})
}

func found(mt *mtest.T, event *Event) bson.D {
	return mtest.CreateCursorResponse(0, mockNS, mtest.FirstBatch, toDoc(mt, event))
}

// returned answers a findAndModify; a nil event means nothing matched.
func returned(mt *mtest.T, event *Event) bson.D {
	if event == nil {
		return mtest.CreateSuccessResponse(bson.E{Key: "value", Value: nil})
	}
	return mtest.CreateSuccessResponse(bson.E{Key: "value", Value: toDoc(mt, event)})
}

func commandFailed() bson.D {
	return mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 2, Name: "BadValue", Message: "bad value"})
}

// sent returns the next command with the given name the client issued.
func sent(mt *mtest.T, name string) bson.Raw {
	mt.Helper()
	for e := mt.GetStartedEvent(); e != nil; e = mt.GetStartedEvent() {
		if e.CommandName == name {
			return e.Command
		}
	}
	mt.Fatalf("no %s command was sent", name)
	return nil
}

// firstOf returns the first document of an array field.
func firstOf(mt *mtest.T, doc bson.Raw, key string) bson.Raw {
	mt.Helper()
	values, err := doc.Lookup(key).Array().Values()
	if err != nil || len(values) == 0 {
		mt.Fatalf("%s: no entries (%v)", key, err)
	}
	return values[0].Document()
}

func isUser(v bson.RawValue, id uuid.UUID) bool {
	_, data, ok := v.BinaryOK()
	return ok && bytes.Equal(data, id[:])
}

func mockT(t *testing.T) *mtest.T {
	return mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
}

func TestMongoPushRegistrant(t *testing.T) {
	mt := mockT(t)
	user := uuid.New()

	mt.Run("appends behind a duplicate guard", func(mt *mtest.T) {
		eventID := primitive.NewObjectID()
		mt.AddMockResponses(updated(1, 1))

		err := mockRepo(mt).PushRegistrant(context.Background(), eventID, Registrant{User: user, Status: StatusApplied}, mockNow)
		if err != nil {
			mt.Fatalf("PushRegistrant: %v", err)
		}

		stmt := firstOf(mt, sent(mt, "update"), "updates")
		q := stmt.Lookup("q").Document()
		if q.Lookup("_id").ObjectID() != eventID {
			mt.Errorf("filter _id = %v", q.Lookup("_id"))
		}
		if !isUser(q.Lookup("registrants.user", "$ne"), user) {
			mt.Errorf("filter lacks $ne guard: %v", q)
		}
		if !isUser(stmt.Lookup("u", "$push", "registrants", "user"), user) {
			mt.Errorf("update does not push the registrant: %v", stmt.Lookup("u"))
		}
	})

	mt.Run("guard miss on a live event is a duplicate", func(mt *mtest.T) {
		mt.AddMockResponses(updated(0, 0), counted(1))
		err := mockRepo(mt).PushRegistrant(context.Background(), primitive.NewObjectID(), Registrant{User: user}, mockNow)
		if !errors.Is(err, ErrDuplicateRegistrant) {
			mt.Errorf("expected ErrDuplicateRegistrant, got %v", err)
		}
	})

	mt.Run("guard miss on a missing event", func(mt *mtest.T) {
		mt.AddMockResponses(updated(0, 0), counted(0))
		err := mockRepo(mt).PushRegistrant(context.Background(), primitive.NewObjectID(), Registrant{User: user}, mockNow)
		if !errors.Is(err, ErrEventNotFound) {
			mt.Errorf("expected ErrEventNotFound, got %v", err)
		}
	})

	mt.Run("server error", func(mt *mtest.T) {
		mt.AddMockResponses(commandFailed())
		err := mockRepo(mt).PushRegistrant(context.Background(), primitive.NewObjectID(), Registrant{User: user}, mockNow)
		if !errors.Is(err, ErrStorageUnavailable) {
			mt.Errorf("expected ErrStorageUnavailable, got %v", err)
		}
	})
}

func TestMongoMarkCheckedIn(t *testing.T) {
	mt := mockT(t)
	user := uuid.New()
	earlier := mockNow.Add(-20 * time.Minute)

	mt.Run("first check-in", func(mt *mtest.T) {
		at := mockNow
		after := storedEvent(Registrant{User: user, CheckedIn: true, CheckedInAt: &at, Status: StatusApplied})
		mt.AddMockResponses(returned(mt, after))

		r, changed, err := mockRepo(mt).MarkCheckedIn(context.Background(), after.ID, user, at)
		if err != nil {
			mt.Fatalf("MarkCheckedIn: %v", err)
		}
		if !changed || !r.CheckedIn || r.CheckedInAt == nil || !r.CheckedInAt.Equal(at) {
			mt.Errorf("changed=%v registrant=%+v", changed, r)
		}

		cmd := sent(mt, "findAndModify")
		match := cmd.Lookup("query", "registrants", "$elemMatch").Document()
		if !isUser(match.Lookup("user"), user) {
			mt.Errorf("$elemMatch user = %v", match.Lookup("user"))
		}
		if checked, ok := match.Lookup("checked_in").BooleanOK(); !ok || checked {
			mt.Errorf("$elemMatch must only match unchecked entries: %v", match)
		}
		if set, ok := cmd.Lookup("update", "$set", "registrants.$.checked_in").BooleanOK(); !ok || !set {
			mt.Errorf("update does not set the positional flag: %v", cmd.Lookup("update"))
		}
	})

	mt.Run("repeat keeps the first time", func(mt *mtest.T) {
		current := storedEvent(Registrant{User: user, CheckedIn: true, CheckedInAt: &earlier, Status: StatusApplied})
		mt.AddMockResponses(returned(mt, nil), found(mt, current))

		r, changed, err := mockRepo(mt).MarkCheckedIn(context.Background(), current.ID, user, mockNow)
		if err != nil {
			mt.Fatalf("MarkCheckedIn: %v", err)
		}
		if changed {
			mt.Error("repeat check-in reported a change")
		}
		if r.CheckedInAt == nil || !r.CheckedInAt.Equal(earlier) {
			mt.Errorf("checked_in_at = %v, want %v", r.CheckedInAt, earlier)
		}
	})

	mt.Run("not a registrant", func(mt *mtest.T) {
		current := storedEvent(Registrant{User: uuid.New(), Status: StatusApplied})
		mt.AddMockResponses(returned(mt, nil), found(mt, current))

		_, _, err := mockRepo(mt).MarkCheckedIn(context.Background(), current.ID, user, mockNow)
		if !errors.Is(err, ErrRegistrantNotFound) {
			mt.Errorf("expected ErrRegistrantNotFound, got %v", err)
		}
	})

	mt.Run("unknown event", func(mt *mtest.T) {
		mt.AddMockResponses(returned(mt, nil), mtest.CreateCursorResponse(0, mockNS, mtest.FirstBatch))

		_, _, err := mockRepo(mt).MarkCheckedIn(context.Background(), primitive.NewObjectID(), user, mockNow)
		if !errors.Is(err, ErrEventNotFound) {
			mt.Errorf("expected ErrEventNotFound, got %v", err)
		}
	})

	mt.Run("server error", func(mt *mtest.T) {
		mt.AddMockResponses(commandFailed())

		_, _, err := mockRepo(mt).MarkCheckedIn(context.Background(), primitive.NewObjectID(), user, mockNow)
		if !errors.Is(err, ErrStorageUnavailable) {
			mt.Errorf("expected ErrStorageUnavailable, got %v", err)
		}
	})
}

func TestMongoAddSubEventCheckIn(t *testing.T) {
	mt := mockT(t)
	user := uuid.New()
	subID := primitive.NewObjectID()

	mt.Run("adds through the sub-event filter", func(mt *mtest.T) {
		mt.AddMockResponses(updated(1, 1))

		if err := mockRepo(mt).AddSubEventCheckIn(context.Background(), primitive.NewObjectID(), subID, user, mockNow); err != nil {
			mt.Fatalf("AddSubEventCheckIn: %v", err)
		}

		stmt := firstOf(mt, sent(mt, "update"), "updates")
		if got := firstOf(mt, stmt, "arrayFilters").Lookup("s._id").ObjectID(); got != subID {
			mt.Errorf("array filter s._id = %v, want %v", got, subID)
		}
		if !isUser(stmt.Lookup("u", "$addToSet", "sub_events.$[s].checked_in"), user) {
			mt.Errorf("update = %v", stmt.Lookup("u"))
		}
		if !isUser(stmt.Lookup("q", "sub_events", "$elemMatch", "checked_in", "$ne"), user) {
			mt.Errorf("filter lacks the already-checked-in guard: %v", stmt.Lookup("q"))
		}
	})

	mt.Run("already checked in", func(mt *mtest.T) {
		current := storedEvent(Registrant{User: user, Status: StatusApplied})
		current.SubEvents = []SubEvent{{ID: subID, Name: "Workshop", CheckedIn: []uuid.UUID{user}}}
		mt.AddMockResponses(updated(0, 0), found(mt, current))

		err := mockRepo(mt).AddSubEventCheckIn(context.Background(), current.ID, subID, user, mockNow)
		if !errors.Is(err, ErrAlreadyCheckedIn) {
			mt.Errorf("expected ErrAlreadyCheckedIn, got %v", err)
		}
	})

	mt.Run("unknown sub-event", func(mt *mtest.T) {
		current := storedEvent(Registrant{User: user, Status: StatusApplied})
		mt.AddMockResponses(updated(0, 0), found(mt, current))

		err := mockRepo(mt).AddSubEventCheckIn(context.Background(), current.ID, subID, user, mockNow)
		if !errors.Is(err, ErrSubEventNotFound) {
			mt.Errorf("expected ErrSubEventNotFound, got %v", err)
		}
	})
}

func TestMongoReplaceEventFields(t *testing.T) {
	mt := mockT(t)
	expected := mockNow.Add(-time.Minute)

	mt.Run("stale version", func(mt *mtest.T) {
		event := storedEvent()
		mt.AddMockResponses(updated(0, 0), counted(1))

		_, err := mockRepo(mt).ReplaceEventFields(context.Background(), event, expected)
		if !errors.Is(err, ErrEventModified) {
			mt.Fatalf("expected ErrEventModified, got %v", err)
		}

		stmt := firstOf(mt, sent(mt, "update"), "updates")
		if got, ok := stmt.Lookup("q", "updated_at").TimeOK(); !ok || !got.Equal(expected) {
			mt.Errorf("filter updated_at = %v, want %v", stmt.Lookup("q", "updated_at"), expected)
		}
	})

	mt.Run("event gone", func(mt *mtest.T) {
		mt.AddMockResponses(updated(0, 0), counted(0))

		_, err := mockRepo(mt).ReplaceEventFields(context.Background(), storedEvent(), expected)
		if !errors.Is(err, ErrEventNotFound) {
			mt.Errorf("expected ErrEventNotFound, got %v", err)
		}
	})

	mt.Run("applies and reloads", func(mt *mtest.T) {
		event := storedEvent()
		event.Name = "Renamed"
		mt.AddMockResponses(updated(1, 1), found(mt, event))

		got, err := mockRepo(mt).ReplaceEventFields(context.Background(), event, expected)
		if err != nil {
			mt.Fatalf("ReplaceEventFields: %v", err)
		}
		if got.Name != "Renamed" {
			mt.Errorf("name = %q", got.Name)
		}
	})
}

func TestMongoSetRegistrantFields(t *testing.T) {
	mt := mockT(t)
	user := uuid.New()

	mt.Run("sets through the registrant filter", func(mt *mtest.T) {
		after := storedEvent(Registrant{User: user, Selected: true, Status: StatusAccepted})
		mt.AddMockResponses(returned(mt, after))

		selected := true
		r, err := mockRepo(mt).SetRegistrantFields(context.Background(), after.ID, user, RegistrantUpdate{Selected: &selected}, mockNow)
		if err != nil {
			mt.Fatalf("SetRegistrantFields: %v", err)
		}
		if !r.Selected {
			mt.Errorf("registrant = %+v", r)
		}

		cmd := sent(mt, "findAndModify")
		if !isUser(firstOf(mt, cmd, "arrayFilters").Lookup("r.user"), user) {
			mt.Errorf("array filter = %v", cmd.Lookup("arrayFilters"))
		}
		if v, ok := cmd.Lookup("update", "$set", "registrants.$[r].selected").BooleanOK(); !ok || !v {
			mt.Errorf("update = %v", cmd.Lookup("update"))
		}
		if _, err := cmd.LookupErr("update", "$unset"); err == nil {
			mt.Error("update must not unset anything")
		}
	})

	mt.Run("not a registrant", func(mt *mtest.T) {
		mt.AddMockResponses(returned(mt, nil), counted(1))

		status := StatusRejected
		_, err := mockRepo(mt).SetRegistrantFields(context.Background(), primitive.NewObjectID(), user, RegistrantUpdate{Status: &status}, mockNow)
		if !errors.Is(err, ErrRegistrantNotFound) {
			mt.Errorf("expected ErrRegistrantNotFound, got %v", err)
		}
	})
}

func TestMongoPullRegistrant(t *testing.T) {
	mt := mockT(t)
	user := uuid.New()

	mt.Run("removes roster entry and sub-event check-ins", func(mt *mtest.T) {
		mt.AddMockResponses(updated(1, 1))

		if err := mockRepo(mt).PullRegistrant(context.Background(), primitive.NewObjectID(), user, mockNow); err != nil {
			mt.Fatalf("PullRegistrant: %v", err)
		}

		stmt := firstOf(mt, sent(mt, "update"), "updates")
		if !isUser(stmt.Lookup("u", "$pull", "registrants", "user"), user) {
			mt.Errorf("roster pull = %v", stmt.Lookup("u"))
		}
		if !isUser(stmt.Lookup("u", "$pull", "sub_events.$[].checked_in"), user) {
			mt.Errorf("sub-event pull = %v", stmt.Lookup("u"))
		}
	})

	mt.Run("not registered", func(mt *mtest.T) {
		mt.AddMockResponses(updated(0, 0), counted(1))

		err := mockRepo(mt).PullRegistrant(context.Background(), primitive.NewObjectID(), user, mockNow)
		if !errors.Is(err, ErrRegistrantNotFound) {
			mt.Errorf("expected ErrRegistrantNotFound, got %v", err)
		}
	})
}

func TestMongoRotateSecret(t *testing.T) {
	mt := mockT(t)
	user := uuid.New()

	mt.Run("reset clears check-ins", func(mt *mtest.T) {
		at := mockNow
		before := storedEvent(Registrant{User: user, CheckedIn: true, CheckedInAt: &at, Status: StatusApplied})
		mt.AddMockResponses(returned(mt, before))

		got, err := mockRepo(mt).RotateSecret(context.Background(), before.ID, "fresh", true, mockNow)
		if err != nil {
			mt.Fatalf("RotateSecret: %v", err)
		}
		if got.SecretName != "s3cret" || !got.Registrants[0].CheckedIn {
			mt.Errorf("expected the pre-rotation document, got %+v", got)
		}

		cmd := sent(mt, "findAndModify")
		set := cmd.Lookup("update", "$set").Document()
		if set.Lookup("secret_name").StringValue() != "fresh" {
			mt.Errorf("secret_name = %v", set.Lookup("secret_name"))
		}
		if v, ok := set.Lookup("registrants.$[].checked_in").BooleanOK(); !ok || v {
			mt.Errorf("registrant flags not cleared: %v", set)
		}
		if _, err := cmd.LookupErr("update", "$unset", "registrants.$[].checked_in_at"); err != nil {
			mt.Errorf("checked_in_at not unset: %v", cmd.Lookup("update"))
		}
		if v, ok := cmd.Lookup("new").BooleanOK(); ok && v {
			mt.Error("rotation must return the document as it was before")
		}
	})

	mt.Run("plain rotation", func(mt *mtest.T) {
		before := storedEvent()
		mt.AddMockResponses(returned(mt, before))

		if _, err := mockRepo(mt).RotateSecret(context.Background(), before.ID, "fresh", false, mockNow); err != nil {
			mt.Fatalf("RotateSecret: %v", err)
		}
		cmd := sent(mt, "findAndModify")
		if _, err := cmd.LookupErr("update", "$unset"); err == nil {
			mt.Error("plain rotation must not touch check-ins")
		}
	})

	mt.Run("unknown event", func(mt *mtest.T) {
		mt.AddMockResponses(returned(mt, nil))

		_, err := mockRepo(mt).RotateSecret(context.Background(), primitive.NewObjectID(), "fresh", true, mockNow)
		if !errors.Is(err, ErrEventNotFound) {
			mt.Errorf("expected ErrEventNotFound, got %v", err)
		}
	})
}

func TestMongoEnrollInOpenEvents(t *testing.T) {
	mt := mockT(t)
	user := uuid.New()

	mt.Run("counts modified events", func(mt *mtest.T) {
		mt.AddMockResponses(updated(3, 2))

		n, err := mockRepo(mt).EnrollInOpenEvents(context.Background(), user, mockNow)
		if err != nil {
			mt.Fatalf("EnrollInOpenEvents: %v", err)
		}
		if n != 2 {
			mt.Errorf("enrolled in %d events, want 2", n)
		}

		stmt := firstOf(mt, sent(mt, "update"), "updates")
		if multi, ok := stmt.Lookup("multi").BooleanOK(); !ok || !multi {
			mt.Errorf("expected a multi update: %v", stmt)
		}
		if v, ok := stmt.Lookup("q", "is_registration_required").BooleanOK(); !ok || v {
			mt.Errorf("filter must select open events: %v", stmt.Lookup("q"))
		}
		if !isUser(stmt.Lookup("q", "registrants.user", "$ne"), user) {
			mt.Errorf("filter lacks $ne guard: %v", stmt.Lookup("q"))
		}
	})
}

func TestMongoDeleteEvent(t *testing.T) {
	mt := mockT(t)

	mt.Run("nothing deleted", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}))

		err := mockRepo(mt).DeleteEvent(context.Background(), primitive.NewObjectID())
		if !errors.Is(err, ErrEventNotFound) {
			mt.Errorf("expected ErrEventNotFound, got %v", err)
		}
	})
}

func TestMongoCreateEventDuplicateSecret(t *testing.T) {
	mt := mockT(t)

	mt.Run("unique index violation", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "E11000 duplicate key error collection: attendance_test.events index: secret_name_unique",
		}))

		_, err := mockRepo(mt).CreateEvent(context.Background(), storedEvent())
		if !errors.Is(err, ErrDuplicateSecret) || !errors.Is(err, ErrConflict) {
			mt.Errorf("expected a secret conflict, got %v", err)
		}
	})
}
