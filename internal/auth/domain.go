package auth

import "time"

// APIClient is a service-to-service caller holding a bearer token. Tokens
// have the form "<clientID>.<secret>"; only the bcrypt hash of the secret
// is stored.
type APIClient struct {
	ID         int64
	Name       string
	SecretHash string
	IsActive   bool
	CreatedAt  time.Time
	LastUsedAt *time.Time
}
