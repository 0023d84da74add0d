package security

import (
	"errors"
	"fmt"
	"sync"

	"github.com/angelmondragon/commercepilot-backend/pkg/config"
	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordBytes is the longest input bcrypt accepts.
const MaxPasswordBytes = 72

// ErrEmptyPassword is returned when hashing an empty password.
var ErrEmptyPassword = errors.New("password cannot be empty")

// Hasher hashes and verifies account passwords with bcrypt.
type Hasher struct {
	cost int

	dummyOnce sync.Once
	dummy     []byte
}

// NewHasher builds a hasher from the configured bcrypt cost.
func NewHasher(cfg config.PasswordConfig) (*Hasher, error) {
	cost := cfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range", cost)
	}
	return &Hasher{cost: cost}, nil
}

// Hash returns a salted bcrypt hash of the password.
func (h *Hasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	if len(password) > MaxPasswordBytes {
		return "", fmt.Errorf("password exceeds %d bytes", MaxPasswordBytes)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Verify reports whether password matches hash. A malformed hash is a mismatch.
func (h *Hasher) Verify(password, hash string) bool {
	if password == "" || hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// VerifyMissing burns one comparison so unknown emails cost the same as wrong passwords.
func (h *Hasher) VerifyMissing(password string) {
	h.dummyOnce.Do(func() {
		h.dummy, _ = bcrypt.GenerateFromPassword([]byte("commercepilot-missing-account"), h.cost)
	})
	_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(password))
}

// Cost exposes the configured work factor.
func (h *Hasher) Cost() int {
	return h.cost
}
