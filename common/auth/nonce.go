package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/DEEPML1818/dsoc/common/cache"
	"github.com/DEEPML1818/dsoc/common/models"
)

// ErrNonceMissing is returned when no unexpired challenge exists for the address
var ErrNonceMissing = errors.New("no pending sign-in challenge")

// Challenge is the message a wallet must sign to sign in
type Challenge struct {
	Address   string    `json:"address"`
	Nonce     string    `json:"nonce"`
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NonceStore issues single-use sign-in challenges
type NonceStore struct {
	cache cache.Cache
	ttl   time.Duration
	now   func() time.Time
}

// NewNonceStore creates a challenge store on c
func NewNonceStore(c cache.Cache, ttl time.Duration) *NonceStore {
	return &NonceStore{cache: c, ttl: ttl, now: time.Now}
}

// Issue creates a challenge for address, replacing any earlier one
func (s *NonceStore) Issue(ctx context.Context, address string) (*Challenge, error) {
	address = models.NormalizeAddress(address)
	nonce := uuid.NewString()

	ch := &Challenge{
		Address:   address,
		Nonce:     nonce,
		Message:   ChallengeMessage(address, nonce),
		ExpiresAt: s.now().Add(s.ttl),
	}

	if err := s.cache.Set(ctx, nonceKey(address), []byte(ch.Message), s.ttl); err != nil {
		return nil, fmt.Errorf("store nonce: %w", err)
	}
	return ch, nil
}

// Consume returns the pending challenge message for address and removes it
func (s *NonceStore) Consume(ctx context.Context, address string) (string, error) {
	msg, ok, err := s.cache.Take(ctx, nonceKey(models.NormalizeAddress(address)))
	if err != nil {
		return "", fmt.Errorf("load nonce: %w", err)
	}
	if !ok {
		return "", ErrNonceMissing
	}
	return string(msg), nil
}

// ChallengeMessage is the exact text signed with personal_sign
func ChallengeMessage(address, nonce string) string {
	return fmt.Sprintf("Sign in to dSOC\n\nWallet: %s\nNonce: %s", address, nonce)
}

func nonceKey(address string) string {
	return "auth:nonce:" + address
}
