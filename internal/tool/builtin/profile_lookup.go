package builtin

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/attestia/attestia/internal/tool"
	"github.com/attestia/attestia/pkg/types"
)

// ProfileSchema is the SQL DDL for the user_profiles table.
const ProfileSchema = `
CREATE TABLE IF NOT EXISTS user_profiles (
    user_id      TEXT PRIMARY KEY,
    org_id       TEXT NOT NULL DEFAULT '',
    display_name TEXT NOT NULL DEFAULT '',
    email        TEXT NOT NULL DEFAULT '',
    role         TEXT NOT NULL DEFAULT 'member',
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_user_profiles_org ON user_profiles(org_id);
`

// Profile is one user's account record.
type Profile struct {
	UserID      string `json:"userId"`
	OrgID       string `json:"orgId,omitempty"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	Role        string `json:"role"`
}

// ProfileStore reads user profiles from Postgres.
type ProfileStore struct {
	db DB
}

// NewProfileStore creates a store on the given connection or pool.
func NewProfileStore(db DB) *ProfileStore {
	return &ProfileStore{db: db}
}

// Migrate applies [ProfileSchema].
func (s *ProfileStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, ProfileSchema); err != nil {
		return fmt.Errorf("builtin: migrate profiles: %w", err)
	}
	return nil
}

// Get returns the profile for userID, or pgx.ErrNoRows wrapped when absent.
func (s *ProfileStore) Get(ctx context.Context, userID string) (Profile, error) {
	var p Profile
	err := s.db.QueryRow(ctx, `
		SELECT user_id, org_id, display_name, email, role
		FROM user_profiles
		WHERE user_id = $1`,
		userID,
	).Scan(&p.UserID, &p.OrgID, &p.DisplayName, &p.Email, &p.Role)
	if err != nil {
		return Profile{}, fmt.Errorf("builtin: get profile %s: %w", userID, err)
	}
	return p, nil
}

// Upsert writes a profile record.
func (s *ProfileStore) Upsert(ctx context.Context, p Profile) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO user_profiles (user_id, org_id, display_name, email, role)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (user_id) DO UPDATE SET
			org_id = EXCLUDED.org_id,
			display_name = EXCLUDED.display_name,
			email = EXCLUDED.email,
			role = EXCLUDED.role`,
		p.UserID, p.OrgID, p.DisplayName, p.Email, p.Role)
	if err != nil {
		return fmt.Errorf("builtin: upsert profile %s: %w", p.UserID, err)
	}
	return nil
}

// ProfileLookup builds the profile_lookup tool. It requires an
// authenticated caller and only serves profiles within the caller's own
// organisation; with no userId parameter it returns the caller's own
// profile.
func ProfileLookup(store *ProfileStore) tool.Tool {
	return tool.Tool{
		Name:           "profile_lookup",
		Description:    "Look up a user profile within the caller's organisation.",
		Classification: tool.ClassInternal,
		RequiresAuth:   true,
		Parameters: []tool.Parameter{
			{Name: "userId", Type: tool.TypeString, Description: "User to look up. Defaults to the caller."},
		},
		Returns: "The user's profile: id, display name, email and role.",
		Handler: func(ctx context.Context, params map[string]any, inv types.InvocationContext) (tool.Result, error) {
			target := inv.Actor.UserID
			if v, ok := params["userId"].(string); ok && v != "" {
				target = v
			}

			p, err := store.Get(ctx, target)
			if errors.Is(err, pgx.ErrNoRows) {
				return tool.Failure(fmt.Sprintf("no profile found for user %s", target)), nil
			}
			if err != nil {
				return tool.Result{}, err
			}
			if p.OrgID != inv.Actor.OrganizationID {
				// Cross-tenant lookups are indistinguishable from missing
				// profiles.
				return tool.Failure(fmt.Sprintf("no profile found for user %s", target)), nil
			}
			return tool.Result{Success: true, Data: p}, nil
		},
	}
}
