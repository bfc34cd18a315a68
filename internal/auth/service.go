package auth

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidToken indicates a missing, malformed, unknown, or revoked token.
var ErrInvalidToken = errors.New("auth: invalid token")

// Repository defines data access for API clients.
type Repository interface {
	FindByID(ctx context.Context, id int64) (*APIClient, error)
	TouchLastUsed(ctx context.Context, id int64, at time.Time) error
}

// Service wraps token verification rules.
type Service struct {
	repo Repository
}

// NewService constructs a new Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Authenticate validates a bearer token of the form "<clientID>.<secret>".
// All failure modes collapse into ErrInvalidToken so responses do not leak
// which part was wrong.
func (s *Service) Authenticate(ctx context.Context, token string) (*APIClient, error) {
	idPart, secret, ok := strings.Cut(token, ".")
	if !ok || secret == "" {
		return nil, ErrInvalidToken
	}
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		return nil, ErrInvalidToken
	}

	client, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if !client.IsActive {
		return nil, ErrInvalidToken
	}
	if err := bcrypt.CompareHashAndPassword([]byte(client.SecretHash), []byte(secret)); err != nil {
		return nil, ErrInvalidToken
	}

	// best effort, an audit hint rather than a correctness requirement
	_ = s.repo.TouchLastUsed(ctx, client.ID, time.Now())
	return client, nil
}
