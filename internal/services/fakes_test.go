package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/joshua-takyi/attendance/internal/credential"
	"github.com/joshua-takyi/attendance/internal/helpers"
	"github.com/joshua-takyi/attendance/internal/models"
)

type fakeDirectory struct {
	users map[uuid.UUID]*models.User
	err   error
}

func newFakeDirectory(n int) *fakeDirectory {
	d := &fakeDirectory{users: make(map[uuid.UUID]*models.User)}
	for i := 0; i < n; i++ {
		d.add(models.RoleMember)
	}
	return d
}

func (d *fakeDirectory) add(role string) *models.User {
	u := &models.User{ID: uuid.New(), Username: "member", Role: role}
	d.users[u.ID] = u
	return u
}

func (d *fakeDirectory) FindUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if d.err != nil {
		return nil, d.err
	}
	u, ok := d.users[id]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	return u, nil
}

func (d *fakeDirectory) FindUsersByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.User, error) {
	if d.err != nil {
		return nil, d.err
	}
	out := make(map[uuid.UUID]*models.User)
	for _, id := range ids {
		if u, ok := d.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

func (d *fakeDirectory) ListAllUsers(ctx context.Context) ([]*models.User, error) {
	if d.err != nil {
		return nil, d.err
	}
	out := make([]*models.User, 0, len(d.users))
	for _, u := range d.users {
		out = append(out, u)
	}
	return out, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []Notification
}

func (n *recordingNotifier) Notify(ctx context.Context, msg Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return nil
}

// testClock is a settable clock shared by a service under test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fixture struct {
	svc      *EventService
	repo     *models.MemoryRepo
	dir      *fakeDirectory
	issuer   *credential.Issuer
	clock    *testClock
	notifier *recordingNotifier
}

var baseTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newFixture(t *testing.T, members int) *fixture {
	t.Helper()
	issuer, err := credential.NewIssuer([]byte("test-server-secret"))
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	f := &fixture{
		repo:     models.NewMemoryRepo(),
		dir:      newFakeDirectory(members),
		issuer:   issuer,
		clock:    &testClock{now: baseTime},
		notifier: &recordingNotifier{},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.svc = NewEventService(f.repo, f.dir, issuer, logger, WithClock(f.clock.Now), WithNotifier(f.notifier))
	return f
}

func (f *fixture) member(t *testing.T) helpers.Identity {
	t.Helper()
	u := f.dir.add(models.RoleMember)
	return helpers.Identity{UserID: u.ID, Role: u.Role}
}

func (f *fixture) admin(t *testing.T) helpers.Identity {
	t.Helper()
	u := f.dir.add(models.RoleAdmin)
	return helpers.Identity{UserID: u.ID, Role: u.Role}
}

func boolPtr(b bool) *bool { return &b }

func eventInput(start time.Time, registration bool, schema models.FieldSchema) models.EventInput {
	return models.EventInput{
		Name:                   "Spring Hackathon",
		Location:               "Main Hall",
		IsRegistrationRequired: boolPtr(registration),
		StartTime:              start,
		EndTime:                start.Add(time.Hour),
		AdditionalFieldsSchema: schema,
	}
}

func (f *fixture) createEvent(t *testing.T, input models.EventInput) *models.Event {
	t.Helper()
	e, err := f.svc.CreateEvent(context.Background(), input)
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	return e
}
