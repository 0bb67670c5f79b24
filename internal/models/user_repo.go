package models

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	postgrest "github.com/supabase-community/postgrest-go"
)

const (
	ProfileTable   = "profiles"
	profileColumns = "id,email,username,fullname,role,avatar_url,created_at"
	profilePage    = 1000
	idBatch        = 100
)

// UserDirectory is the membership system as this service needs it.
type UserDirectory interface {
	FindUserByID(ctx context.Context, id uuid.UUID) (*User, error)
	// FindUsersByIDs returns the users that exist, keyed by id. Missing ids are skipped.
	FindUsersByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*User, error)
	ListAllUsers(ctx context.Context) ([]*User, error)
}

func (su *SupabaseRepo) FindUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	if id == uuid.Nil {
		return nil, ErrUserNotFound
	}

	raw, _, err := su.supabaseClient.From(ProfileTable).
		Select(profileColumns, "", false).
		Eq("id", id.String()).
		Execute()
	if err != nil {
		return nil, storageError("find user", err)
	}

	// postgrest returns an array even for single results
	var users []User
	if err := json.Unmarshal(raw, &users); err != nil {
		return nil, storageError("decode user", err)
	}
	if len(users) == 0 {
		return nil, ErrUserNotFound
	}
	if len(users) > 1 {
		return nil, storageError("find user", fmt.Errorf("multiple profiles for id %s", id))
	}
	return &users[0], nil
}

// ListAllUsers pages through the profiles table. Pages are ordered by id so
// offsets stay stable across requests.
func (su *SupabaseRepo) ListAllUsers(ctx context.Context) ([]*User, error) {
	var all []*User
	for offset := 0; ; offset += profilePage {
		if err := ctx.Err(); err != nil {
			return nil, storageError("list users", err)
		}

		raw, _, err := su.supabaseClient.From(ProfileTable).
			Select(profileColumns, "", false).
			Order("id", &postgrest.OrderOpts{Ascending: true}).
			Range(offset, offset+profilePage-1, "").
			Execute()
		if err != nil {
			return nil, storageError("list users", err)
		}

		var page []*User
		if err := json.Unmarshal(raw, &page); err != nil {
			return nil, storageError("decode users", err)
		}
		all = append(all, page...)
		if len(page) < profilePage {
			return all, nil
		}
	}
}

func (su *SupabaseRepo) FindUsersByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*User, error) {
	out := make(map[uuid.UUID]*User, len(ids))
	for start := 0; start < len(ids); start += idBatch {
		if err := ctx.Err(); err != nil {
			return nil, storageError("find users", err)
		}
		end := start + idBatch
		if end > len(ids) {
			end = len(ids)
		}
		batch := make([]string, 0, end-start)
		for _, id := range ids[start:end] {
			batch = append(batch, id.String())
		}

		raw, _, err := su.supabaseClient.From(ProfileTable).
			Select(profileColumns, "", false).
			In("id", batch).
			Execute()
		if err != nil {
			return nil, storageError("find users", err)
		}

		var page []*User
		if err := json.Unmarshal(raw, &page); err != nil {
			return nil, storageError("decode users", err)
		}
		for _, u := range page {
			out[u.ID] = u
		}
	}
	return out, nil
}
