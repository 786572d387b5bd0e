package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"healthspan/internal/models"
)

const userColumns = `id, email, google_id, name, avatar_url, birth_date, gender, is_admin, created_at, last_login, deleted_at`

type UserStore struct {
	db *sqlx.DB
}

func NewUserStore(db *sqlx.DB) *UserStore { return &UserStore{db: db} }

// GoogleProfile is the identity returned by the provider's userinfo endpoint.
type GoogleProfile struct {
	Subject   string
	Email     string
	Name      string
	AvatarURL string
}

// UpsertGoogle finds the user by Google subject (or email) and records the
// login, creating the account on first sign-in. A soft-deleted account is
// reactivated.
func (s *UserStore) UpsertGoogle(ctx context.Context, p GoogleProfile) (*models.User, error) {
	var u models.User
	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO users (id, email, google_id, name, avatar_url, last_login)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NOW())
		ON CONFLICT (email) DO UPDATE SET
		  google_id = EXCLUDED.google_id,
		  name = COALESCE(users.name, EXCLUDED.name),
		  avatar_url = EXCLUDED.avatar_url,
		  last_login = NOW(),
		  deleted_at = NULL
		RETURNING `+userColumns,
		uuid.New(), strings.ToLower(strings.TrimSpace(p.Email)), p.Subject, p.Name, p.AvatarURL,
	).StructScan(&u)
	if err != nil {
		return nil, fmt.Errorf("upsert google user: %w", err)
	}
	return &u, nil
}

// Get returns an active user.
func (s *UserStore) Get(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	err := s.db.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// ProfileUpdate carries the optional fields of a partial profile update.
// An empty BirthDate or Gender string clears the column.
type ProfileUpdate struct {
	Name      *string
	AvatarURL *string
	BirthDate *string
	Gender    *string
}

func (s *UserStore) UpdateProfile(ctx context.Context, id uuid.UUID, p ProfileUpdate) error {
	setClauses := []string{}
	args := []interface{}{}
	add := func(column string, v interface{}) {
		args = append(args, v)
		setClauses = append(setClauses, fmt.Sprintf("%s=$%d", column, len(args)))
	}
	if p.Name != nil {
		add("name", *p.Name)
	}
	if p.AvatarURL != nil {
		add("avatar_url", *p.AvatarURL)
	}
	if p.BirthDate != nil {
		if *p.BirthDate == "" {
			setClauses = append(setClauses, "birth_date=NULL")
		} else {
			d, err := time.Parse("2006-01-02", *p.BirthDate)
			if err != nil {
				return fmt.Errorf("invalid birth_date: %w", err)
			}
			add("birth_date", d)
		}
	}
	if p.Gender != nil {
		if *p.Gender == "" {
			setClauses = append(setClauses, "gender=NULL")
		} else {
			add("gender", *p.Gender)
		}
	}
	if len(setClauses) == 0 {
		return nil
	}
	args = append(args, id)
	query := "UPDATE users SET " + strings.Join(setClauses, ", ") + fmt.Sprintf(" WHERE id=$%d AND deleted_at IS NULL", len(args))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *UserStore) SoftDelete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ActiveIDs lists every user that has not been deleted.
func (s *UserStore) ActiveIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := s.db.SelectContext(ctx, &ids, `SELECT id FROM users WHERE deleted_at IS NULL ORDER BY created_at`); err != nil {
		return nil, fmt.Errorf("active users: %w", err)
	}
	return ids, nil
}

type CredentialStore struct {
	db *sqlx.DB
}

func NewCredentialStore(db *sqlx.DB) *CredentialStore { return &CredentialStore{db: db} }

func (s *CredentialStore) Save(ctx context.Context, c *models.WearableCredential) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO wearable_credentials (user_id, account_email, encrypted_token)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET
		  account_email = EXCLUDED.account_email,
		  encrypted_token = EXCLUDED.encrypted_token`,
		c.UserID, c.AccountEmail, c.EncryptedToken)
	if err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

func (s *CredentialStore) Get(ctx context.Context, userID uuid.UUID) (*models.WearableCredential, error) {
	var c models.WearableCredential
	err := s.db.GetContext(ctx, &c,
		`SELECT user_id, account_email, encrypted_token, last_sync, created_at FROM wearable_credentials WHERE user_id = $1`,
		userID)
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (s *CredentialStore) TouchSync(ctx context.Context, userID uuid.UUID, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE wearable_credentials SET last_sync = $2 WHERE user_id = $1`, userID, at)
	if err != nil {
		return fmt.Errorf("touch sync: %w", err)
	}
	return nil
}
