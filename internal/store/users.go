package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kurious/kurio/internal/user"
)

const userColumns = `id, subject, email, name, created_at, updated_at`

// CreateUser inserts a user record. Creation is idempotent on the
// external subject id: a concurrent insert for the same subject resolves
// to the existing row.
func (s *Store) CreateUser(ctx context.Context, u *user.User) (*user.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO users (id, subject, email, name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (subject) DO UPDATE SET subject = EXCLUDED.subject
		RETURNING `+userColumns, u.ID, u.Subject, u.Email, u.Name)

	created, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return created, nil
}

// GetUser retrieves a user by local surrogate id.
func (s *Store) GetUser(ctx context.Context, id string) (*user.User, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, user.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	return u, nil
}

// GetUserBySubject retrieves a user by the external subject id.
func (s *Store) GetUserBySubject(ctx context.Context, subject string) (*user.User, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE subject = $1`, subject)
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, user.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by subject: %w", err)
	}
	return u, nil
}

// ListUsers returns all users ordered by creation time.
func (s *Store) ListUsers(ctx context.Context) ([]*user.User, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []*user.User
	for rows.Next() {
		var u user.User
		if err := rows.Scan(&u.ID, &u.Subject, &u.Email, &u.Name, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, &u)
	}
	return users, rows.Err()
}

// UpdateUser updates a user's mutable fields. The subject id is immutable.
func (s *Store) UpdateUser(ctx context.Context, u *user.User) (*user.User, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE users SET email = $2, name = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING `+userColumns, u.ID, u.Email, u.Name)
	updated, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, user.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update user %s: %w", u.ID, err)
	}
	return updated, nil
}

// DeleteUser removes a user by id.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return user.ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (*user.User, error) {
	var u user.User
	if err := row.Scan(&u.ID, &u.Subject, &u.Email, &u.Name, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}
