// Package user holds the local mirror of externally-authenticated
// identities and the sync bridge that keeps it idempotent on the external
// subject id.
package user

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kurious/kurio/internal/auth"
)

// ErrNotFound is returned when a user record does not exist.
var ErrNotFound = errors.New("user not found")

// User is a locally-known user record. Subject is the external auth
// provider's subject id, unique and immutable.
type User struct {
	ID        string    `json:"id"`
	Subject   string    `json:"subject"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Repository is the persistence surface the sync bridge needs.
type Repository interface {
	CreateUser(ctx context.Context, u *User) (*User, error)
	GetUserBySubject(ctx context.Context, subject string) (*User, error)
}

// Service bridges verified external identities to local user records.
type Service struct {
	repo   Repository
	logger *zap.Logger
}

// NewService creates the identity bridge.
func NewService(repo Repository, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// SyncIdentity returns the local user for a verified external identity,
// creating one on first sight. Idempotent on the subject id.
func (s *Service) SyncIdentity(ctx context.Context, ident auth.Identity) (*User, error) {
	existing, err := s.repo.GetUserBySubject(ctx, ident.Subject)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	created, err := s.repo.CreateUser(ctx, &User{
		Subject: ident.Subject,
		Email:   ident.Email,
		Name:    ident.Name,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("user created from external identity",
		zap.String("id", created.ID), zap.String("subject", created.Subject))
	return created, nil
}
