// Package auth identifies callers: it resolves bearer tokens and provisions a
// user profile the first time an external identity is seen.
package auth

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/linfan/backend/internal/apperr"
	"github.com/linfan/backend/internal/models"
)

// DefaultName is used when the identity carries no usable email.
const DefaultName = "New User"

// UserStore is the persistence the service needs.
type UserStore interface {
	Upsert(ctx context.Context, u *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type Service struct {
	users UserStore
}

func NewService(users UserStore) *Service {
	return &Service{users: users}
}

// EnsureUser returns the profile for externalID, creating it on first sight.
// Repeated calls return the same user.
func (s *Service) EnsureUser(ctx context.Context, externalID, email string) (*models.User, error) {
	if externalID == "" {
		return nil, apperr.ErrUnauthorized
	}
	u := &models.User{
		ID:         uuid.New(),
		ExternalID: externalID,
		Email:      strings.TrimSpace(email),
		Name:       displayName(email),
	}
	if err := s.users.Upsert(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.users.GetByID(ctx, id)
}

func displayName(email string) string {
	local, _, _ := strings.Cut(strings.TrimSpace(email), "@")
	if local == "" {
		return DefaultName
	}
	return local
}
