package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EventRepo is the event store. Every roster and sub-event mutation is a single
// atomic operation scoped to the affected array element, so concurrent writers
// on the same event never overwrite each other.
type EventRepo interface {
	CreateEvent(ctx context.Context, event *Event) (*Event, error)
	GetEventByID(ctx context.Context, id primitive.ObjectID) (*Event, error)
	ListEvents(ctx context.Context, filter EventFilter) ([]*Event, error)
	// ReplaceEventFields writes the organizer-editable fields of event, provided
	// the stored document still carries expectedUpdatedAt.
	ReplaceEventFields(ctx context.Context, event *Event, expectedUpdatedAt time.Time) (*Event, error)
	DeleteEvent(ctx context.Context, id primitive.ObjectID) error

	PushSubEvent(ctx context.Context, eventID primitive.ObjectID, sub *SubEvent, now time.Time) error
	PushRegistrant(ctx context.Context, eventID primitive.ObjectID, registrant Registrant, now time.Time) error
	PullRegistrant(ctx context.Context, eventID primitive.ObjectID, userID uuid.UUID, now time.Time) error
	SetRegistrantFields(ctx context.Context, eventID primitive.ObjectID, userID uuid.UUID, update RegistrantUpdate, now time.Time) (*Registrant, error)
	// MarkCheckedIn reports whether the call changed the registrant.
	MarkCheckedIn(ctx context.Context, eventID primitive.ObjectID, userID uuid.UUID, at time.Time) (*Registrant, bool, error)
	AddSubEventCheckIn(ctx context.Context, eventID, subEventID primitive.ObjectID, userID uuid.UUID, now time.Time) error
	// EnrollInOpenEvents adds the user to every open event that has not ended.
	EnrollInOpenEvents(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error)
	// RotateSecret returns the event as it was before the rotation.
	RotateSecret(ctx context.Context, eventID primitive.ObjectID, secretName string, resetCheckIns bool, now time.Time) (*Event, error)
	EnsureIndexes(ctx context.Context) error
}

func (mdb *MongodbRepo) events(ctx context.Context) (*mongo.Collection, error) {
	col, err := mdb.GetCollection(ctx, EventsColName)
	if err != nil {
		return nil, storageError("get collection", err)
	}
	return col, nil
}

// EnsureIndexes creates the indexes the event queries rely on.
func (mdb *MongodbRepo) EnsureIndexes(ctx context.Context) error {
	col, err := mdb.events(ctx)
	if err != nil {
		return err
	}

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "secret_name", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("secret_name_unique"),
		},
		{
			Keys:    bson.D{{Key: "start_time", Value: 1}},
			Options: options.Index().SetName("start_time_idx"),
		},
		// credential issuance looks up open events by buffered window
		{
			Keys: bson.D{
				{Key: "buffered_start_time", Value: 1},
				{Key: "buffered_end_time", Value: 1},
			},
			Options: options.Index().SetName("buffered_window_idx"),
		},
		{
			Keys:    bson.D{{Key: "registrants.user", Value: 1}},
			Options: options.Index().SetName("registrants_user_idx"),
		},
	}

	if _, err := col.Indexes().CreateMany(ctx, indexes); err != nil {
		return storageError("create indexes", err)
	}
	return nil
}

func (mdb *MongodbRepo) CreateEvent(ctx context.Context, event *Event) (*Event, error) {
	col, err := mdb.events(ctx)
	if err != nil {
		return nil, err
	}
	if event.ID.IsZero() {
		event.ID = primitive.NewObjectID()
	}

	if _, err := col.InsertOne(ctx, event); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrDuplicateSecret
		}
		return nil, storageError("insert event", err)
	}
	event.normalize()
	return event, nil
}

func (mdb *MongodbRepo) GetEventByID(ctx context.Context, id primitive.ObjectID) (*Event, error) {
	col, err := mdb.events(ctx)
	if err != nil {
		return nil, err
	}

	var event Event
	if err := col.FindOne(ctx, bson.M{"_id": id}).Decode(&event); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrEventNotFound
		}
		return nil, storageError("find event", err)
	}
	event.normalize()
	return &event, nil
}

func (mdb *MongodbRepo) ListEvents(ctx context.Context, filter EventFilter) ([]*Event, error) {
	col, err := mdb.events(ctx)
	if err != nil {
		return nil, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "start_time", Value: 1}})
	cursor, err := col.Find(ctx, filter.Query(), opts)
	if err != nil {
		return nil, storageError("find events", err)
	}
	defer cursor.Close(ctx)

	events := []*Event{}
	for cursor.Next(ctx) {
		var event Event
		if err := cursor.Decode(&event); err != nil {
			return nil, storageError("decode event", err)
		}
		event.normalize()
		events = append(events, &event)
	}
	if err := cursor.Err(); err != nil {
		return nil, storageError("cursor", err)
	}
	return events, nil
}

func (mdb *MongodbRepo) ReplaceEventFields(ctx context.Context, event *Event, expectedUpdatedAt time.Time) (*Event, error) {
	col, err := mdb.events(ctx)
	if err != nil {
		return nil, err
	}

	filter := bson.M{"_id": event.ID, "updated_at": expectedUpdatedAt}
	update := bson.M{"$set": bson.M{
		"name":                     event.Name,
		"description":              event.Description,
		"location":                 event.Location,
		"start_time":               event.Start,
		"end_time":                 event.End,
		"buffered_start_time":      event.BufferedStart,
		"buffered_end_time":        event.BufferedEnd,
		"additional_fields_schema": event.AdditionalFieldsSchema,
		"updated_at":               event.UpdatedAt,
	}}

	res, err := col.UpdateOne(ctx, filter, update)
	if err != nil {
		return nil, storageError("update event", err)
	}
	if res.MatchedCount == 0 {
		if err := mdb.classifyMiss(ctx, col, event.ID); err != nil {
			return nil, err
		}
		return nil, ErrEventModified
	}
	return mdb.GetEventByID(ctx, event.ID)
}

func (mdb *MongodbRepo) DeleteEvent(ctx context.Context, id primitive.ObjectID) error {
	col, err := mdb.events(ctx)
	if err != nil {
		return err
	}

	res, err := col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return storageError("delete event", err)
	}
	if res.DeletedCount == 0 {
		return ErrEventNotFound
	}
	return nil
}

func (mdb *MongodbRepo) PushSubEvent(ctx context.Context, eventID primitive.ObjectID, sub *SubEvent, now time.Time) error {
	col, err := mdb.events(ctx)
	if err != nil {
		return err
	}

	filter := bson.M{"_id": eventID, "is_registration_required": true}
	update := bson.M{
		"$push": bson.M{"sub_events": sub},
		"$set":  bson.M{"updated_at": now},
	}
	res, err := col.UpdateOne(ctx, filter, update)
	if err != nil {
		return storageError("push sub-event", err)
	}
	if res.MatchedCount == 0 {
		if err := mdb.classifyMiss(ctx, col, eventID); err != nil {
			return err
		}
		return ErrRegistrationNotRequired
	}
	return nil
}

func (mdb *MongodbRepo) PushRegistrant(ctx context.Context, eventID primitive.ObjectID, registrant Registrant, now time.Time) error {
	col, err := mdb.events(ctx)
	if err != nil {
		return err
	}

	// the $ne guard makes the uniqueness check and the append one operation
	filter := bson.M{"_id": eventID, "registrants.user": bson.M{"$ne": registrant.User}}
	update := bson.M{
		"$push": bson.M{"registrants": registrant},
		"$set":  bson.M{"updated_at": now},
	}
	res, err := col.UpdateOne(ctx, filter, update)
	if err != nil {
		return storageError("push registrant", err)
	}
	if res.MatchedCount == 0 {
		if err := mdb.classifyMiss(ctx, col, eventID); err != nil {
			return err
		}
		return ErrDuplicateRegistrant
	}
	return nil
}

func (mdb *MongodbRepo) PullRegistrant(ctx context.Context, eventID primitive.ObjectID, userID uuid.UUID, now time.Time) error {
	col, err := mdb.events(ctx)
	if err != nil {
		return err
	}

	filter := bson.M{"_id": eventID, "registrants.user": userID}
	update := bson.M{
		"$pull": bson.M{
			"registrants":               bson.M{"user": userID},
			"sub_events.$[].checked_in": userID,
		},
		"$set": bson.M{"updated_at": now},
	}
	res, err := col.UpdateOne(ctx, filter, update)
	if err != nil {
		return storageError("pull registrant", err)
	}
	if res.MatchedCount == 0 {
		if err := mdb.classifyMiss(ctx, col, eventID); err != nil {
			return err
		}
		return ErrRegistrantNotFound
	}
	return nil
}

// registrantSetDoc renders a registrant update as $set paths addressed through
// the "r" array filter.
func registrantSetDoc(update RegistrantUpdate, now time.Time) bson.M {
	set := bson.M{"updated_at": now}
	for key, value := range update.AdditionalFields {
		set["registrants.$[r].additional_fields."+key] = value
	}
	// check-in is one-way; callers never send checked_in=false
	if update.CheckedIn != nil && *update.CheckedIn {
		set["registrants.$[r].checked_in"] = true
		set["registrants.$[r].checked_in_at"] = now
	}
	if update.Selected != nil {
		set["registrants.$[r].selected"] = *update.Selected
	}
	if update.Status != nil {
		set["registrants.$[r].status"] = *update.Status
	}
	return set
}

func (mdb *MongodbRepo) SetRegistrantFields(ctx context.Context, eventID primitive.ObjectID, userID uuid.UUID, update RegistrantUpdate, now time.Time) (*Registrant, error) {
	col, err := mdb.events(ctx)
	if err != nil {
		return nil, err
	}

	filter := bson.M{"_id": eventID, "registrants.user": userID}
	doc := bson.M{"$set": registrantSetDoc(update, now)}
	opts := options.FindOneAndUpdate().
		SetArrayFilters(options.ArrayFilters{Filters: []interface{}{bson.M{"r.user": userID}}}).
		SetReturnDocument(options.After)

	var event Event
	if err := col.FindOneAndUpdate(ctx, filter, doc, opts).Decode(&event); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			if err := mdb.classifyMiss(ctx, col, eventID); err != nil {
				return nil, err
			}
			return nil, ErrRegistrantNotFound
		}
		return nil, storageError("update registrant", err)
	}
	event.normalize()

	r := event.FindRegistrant(userID)
	if r == nil {
		return nil, ErrRegistrantNotFound
	}
	return r, nil
}

func (mdb *MongodbRepo) MarkCheckedIn(ctx context.Context, eventID primitive.ObjectID, userID uuid.UUID, at time.Time) (*Registrant, bool, error) {
	col, err := mdb.events(ctx)
	if err != nil {
		return nil, false, err
	}

	// only an unchecked entry matches, so a repeat leaves checked_in_at untouched
	filter := bson.M{
		"_id":         eventID,
		"registrants": bson.M{"$elemMatch": bson.M{"user": userID, "checked_in": false}},
	}
	update := bson.M{"$set": bson.M{
		"registrants.$.checked_in":    true,
		"registrants.$.checked_in_at": at,
		"updated_at":                  at,
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var event Event
	err = col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&event)
	if err == nil {
		event.normalize()
		if r := event.FindRegistrant(userID); r != nil {
			return r, true, nil
		}
		return nil, false, ErrRegistrantNotFound
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, storageError("check in", err)
	}

	current, err := mdb.GetEventByID(ctx, eventID)
	if err != nil {
		return nil, false, err
	}
	r := current.FindRegistrant(userID)
	if r == nil {
		return nil, false, ErrRegistrantNotFound
	}
	return r, false, nil
}

func (mdb *MongodbRepo) AddSubEventCheckIn(ctx context.Context, eventID, subEventID primitive.ObjectID, userID uuid.UUID, now time.Time) error {
	col, err := mdb.events(ctx)
	if err != nil {
		return err
	}

	filter := bson.M{
		"_id":              eventID,
		"registrants.user": userID,
		"sub_events": bson.M{"$elemMatch": bson.M{
			"_id":        subEventID,
			"checked_in": bson.M{"$ne": userID},
		}},
	}
	update := bson.M{
		"$addToSet": bson.M{"sub_events.$[s].checked_in": userID},
		"$set":      bson.M{"updated_at": now},
	}
	opts := options.Update().SetArrayFilters(options.ArrayFilters{
		Filters: []interface{}{bson.M{"s._id": subEventID}},
	})

	res, err := col.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		return storageError("sub-event check in", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	current, err := mdb.GetEventByID(ctx, eventID)
	if err != nil {
		return err
	}
	return classifySubEventMiss(current, subEventID, userID)
}

// classifySubEventMiss explains why a guarded sub-event check-in matched nothing.
func classifySubEventMiss(event *Event, subEventID primitive.ObjectID, userID uuid.UUID) error {
	sub := event.FindSubEvent(subEventID)
	if sub == nil {
		return ErrSubEventNotFound
	}
	if event.FindRegistrant(userID) == nil {
		return ErrRegistrantNotFound
	}
	if sub.HasCheckedIn(userID) {
		return ErrAlreadyCheckedIn
	}
	return fmt.Errorf("%w: sub-event check-in did not apply", ErrEventModified)
}

func (mdb *MongodbRepo) EnrollInOpenEvents(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	col, err := mdb.events(ctx)
	if err != nil {
		return 0, err
	}

	filter := bson.M{
		"is_registration_required": false,
		"end_time":                 bson.M{"$gte": now},
		"registrants.user":         bson.M{"$ne": userID},
	}
	update := bson.M{
		"$push": bson.M{"registrants": Registrant{User: userID, Selected: true, Status: StatusApplied}},
		"$set":  bson.M{"updated_at": now},
	}
	res, err := col.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, storageError("enroll user", err)
	}
	return res.ModifiedCount, nil
}

func (mdb *MongodbRepo) RotateSecret(ctx context.Context, eventID primitive.ObjectID, secretName string, resetCheckIns bool, now time.Time) (*Event, error) {
	col, err := mdb.events(ctx)
	if err != nil {
		return nil, err
	}

	set := bson.M{"secret_name": secretName, "updated_at": now}
	update := bson.M{"$set": set}
	if resetCheckIns {
		set["registrants.$[].checked_in"] = false
		set["sub_events.$[].checked_in"] = bson.A{}
		update["$unset"] = bson.M{"registrants.$[].checked_in_at": ""}
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.Before)

	var before Event
	if err := col.FindOneAndUpdate(ctx, bson.M{"_id": eventID}, update, opts).Decode(&before); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrEventNotFound
		}
		return nil, storageError("rotate secret", err)
	}
	before.normalize()
	return &before, nil
}

// classifyMiss returns ErrEventNotFound when the event is gone, or nil when it
// exists and the guard in the original filter was what failed.
func (mdb *MongodbRepo) classifyMiss(ctx context.Context, col *mongo.Collection, eventID primitive.ObjectID) error {
	n, err := col.CountDocuments(ctx, bson.M{"_id": eventID}, options.Count().SetLimit(1))
	if err != nil {
		return storageError("count event", err)
	}
	if n == 0 {
		return ErrEventNotFound
	}
	return nil
}
