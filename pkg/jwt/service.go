package jwt

import (
	"time"
)

// Service signs and validates profile tokens
type Service struct {
	secretKey string
	expiry    time.Duration
	now       func() time.Time
}

// NewService creates a new JWT service
func NewService(secretKey string, expiry time.Duration) *Service {
	if secretKey == "" {
		secretKey = getSecretKey()
	}

	if expiry == 0 {
		expiry = 30 * 24 * time.Hour
	}

	return &Service{
		secretKey: secretKey,
		expiry:    expiry,
		now:       time.Now,
	}
}

// GenerateToken generates a token bound to a profile
func (s *Service) GenerateToken(profileID string) (string, error) {
	return generateToken(s.secretKey, profileID, s.expiry, s.now())
}

// ValidateToken validates a token and returns its claims
func (s *Service) ValidateToken(tokenString string) (*ProfileClaims, error) {
	return validateToken(s.secretKey, tokenString)
}
