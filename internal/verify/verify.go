// Package verify implements the verification-code service used during
// registration: 6-digit single-use codes keyed by email, expiring
// after ten minutes.
package verify

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"
)

const (
	codeLength = 6
	codeExpiry = 10 * time.Minute
)

type entry struct {
	code      string
	expiresAt time.Time
}

// Service issues and redeems verification codes. All mutations are
// serialized by one internal mutex.
type Service struct {
	mu     sync.Mutex
	codes  map[string]entry
	logger *slog.Logger

	// now is the clock; replaced in tests to pin expiry.
	now func() time.Time
}

// NewService creates an empty code service.
func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		codes:  make(map[string]entry),
		logger: logger,
		now:    time.Now,
	}
}

// Generate produces a fresh 6-digit code for the email, overwriting
// any previous entry.
func (s *Service) Generate(email string) (string, error) {
	code, err := randomCode()
	if err != nil {
		return "", fmt.Errorf("generating verification code: %w", err)
	}

	s.mu.Lock()
	s.codes[email] = entry{code: code, expiresAt: s.now().Add(codeExpiry)}
	s.mu.Unlock()

	s.logger.Info("generated verification code", "email", email)
	return code, nil
}

// Verify reports whether the code matches an unexpired entry for the
// email. A successful verify consumes the entry; an expired entry is
// dropped and reported absent.
func (s *Service) Verify(email, code string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.codes[email]
	if !ok {
		return false
	}

	if s.now().After(e.expiresAt) {
		delete(s.codes, email)
		return false
	}

	if e.code != code {
		return false
	}

	// Single use.
	delete(s.codes, email)
	return true
}

// CleanupExpired drops expired entries. Best-effort; correctness does
// not depend on it being called.
func (s *Service) CleanupExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for email, e := range s.codes {
		if now.After(e.expiresAt) {
			delete(s.codes, email)
		}
	}
}

func randomCode() (string, error) {
	digits := make([]byte, codeLength)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		digits[i] = byte('0' + n.Int64())
	}
	return string(digits), nil
}
