// Package auth implements the shared-secret gate in front of downloads.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/photo-gallery/backend/internal/models"
)

// ErrNoSecret is returned when neither a password nor a bcrypt hash is configured.
var ErrNoSecret = errors.New("download password not configured")

// Gate checks a presented secret against the configured one.
type Gate struct {
	plain []byte
	hash  []byte
}

// NewGate builds a Gate. When bcryptHash is set it takes precedence over
// password. There is no default secret.
func NewGate(password, bcryptHash string) (*Gate, error) {
	if bcryptHash != "" {
		if _, err := bcrypt.Cost([]byte(bcryptHash)); err != nil {
			return nil, fmt.Errorf("invalid bcrypt hash: %w", err)
		}
		return &Gate{hash: []byte(bcryptHash)}, nil
	}
	if password == "" {
		return nil, ErrNoSecret
	}
	return &Gate{plain: []byte(password)}, nil
}

// Check returns models.ErrUnauthorized unless secret matches.
func (g *Gate) Check(secret string) error {
	if secret == "" {
		return models.ErrUnauthorized
	}
	if g.hash != nil {
		if err := bcrypt.CompareHashAndPassword(g.hash, []byte(secret)); err != nil {
			return models.ErrUnauthorized
		}
		return nil
	}
	if subtle.ConstantTimeCompare(g.plain, []byte(secret)) != 1 {
		return models.ErrUnauthorized
	}
	return nil
}

// HashPassword returns a bcrypt hash suitable for DOWNLOAD_PASSWORD_BCRYPT.
func HashPassword(password string, cost int) (string, error) {
	if password == "" {
		return "", ErrNoSecret
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return "", fmt.Errorf("invalid cost %d (min=%d max=%d)", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}
