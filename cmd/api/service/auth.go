package service

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/DEEPML1818/dsoc/common/auth"
	"github.com/DEEPML1818/dsoc/common/chain"
	"github.com/DEEPML1818/dsoc/common/logger"
	"github.com/DEEPML1818/dsoc/common/models"
	"github.com/DEEPML1818/dsoc/common/ratelimit"
	"github.com/DEEPML1818/dsoc/common/repository"
)

// Challenges a single address may request per window
const nonceLimit = 10

// AuthService signs wallets in with a signed challenge
type AuthService struct {
	nonces  *auth.NonceStore
	tokens  *auth.TokenIssuer
	users   repository.UserStore
	ledger  chain.Ledger
	limiter ratelimit.Checker
	window  int
	log     *logger.Logger
}

// AuthServiceOpts contains options for creating an AuthService
type AuthServiceOpts struct {
	Nonces  *auth.NonceStore
	Tokens  *auth.TokenIssuer
	Users   repository.UserStore
	Ledger  chain.Ledger
	Limiter ratelimit.Checker // optional
	Window  int               // seconds
	Logger  *logger.Logger
}

// NewAuthService creates a new auth service
func NewAuthService(opts *AuthServiceOpts) *AuthService {
	window := opts.Window
	if window <= 0 {
		window = ratelimit.DefaultLimits.WindowSeconds
	}
	return &AuthService{
		nonces:  opts.Nonces,
		tokens:  opts.Tokens,
		users:   opts.Users,
		ledger:  opts.Ledger,
		limiter: opts.Limiter,
		window:  window,
		log:     opts.Logger,
	}
}

// Session is returned after a successful sign-in
type Session struct {
	Token     string            `json:"token"`
	ExpiresAt time.Time         `json:"expires_at"`
	Address   string            `json:"address"`
	Role      models.Role       `json:"role"`
	Wallet    *chain.WalletInfo `json:"wallet,omitempty"`
}

// Nonce issues a sign-in challenge for address
func (s *AuthService) Nonce(ctx context.Context, address string) (*auth.Challenge, error) {
	if !common.IsHexAddress(address) {
		return nil, invalid("invalid wallet address %q", address)
	}

	if s.limiter != nil {
		res, err := s.limiter.CheckAddressLimit(ctx, models.NormalizeAddress(address), ratelimit.ClassAuth, nonceLimit, s.window)
		if err != nil {
			s.log.Warn("nonce rate limit check failed, allowing", "error", err)
		} else if !res.Allowed {
			return nil, &RateLimitError{
				Limit:             res.Limit,
				CurrentCount:      res.CurrentCount,
				RetryAfterSeconds: res.RetryAfterSeconds,
			}
		}
	}

	return s.nonces.Issue(ctx, address)
}

// Verify checks the signed challenge and returns a session token
func (s *AuthService) Verify(ctx context.Context, address, signature string) (*Session, error) {
	if !common.IsHexAddress(address) {
		return nil, invalid("invalid wallet address %q", address)
	}
	if signature == "" {
		return nil, invalid("signature is required")
	}

	message, err := s.nonces.Consume(ctx, address)
	if errors.Is(err, auth.ErrNonceMissing) {
		return nil, errors.Join(ErrUnauthorized, err)
	}
	if err != nil {
		return nil, err
	}

	if err := auth.VerifySignature(address, message, signature); err != nil {
		s.log.Warn("sign-in signature rejected", "address", models.NormalizeAddress(address), "error", err)
		return nil, errors.Join(ErrUnauthorized, err)
	}

	session, err := s.issue(ctx, address)
	if err != nil {
		return nil, err
	}
	if wallet, err := s.ledger.ConnectWallet(ctx, address); err == nil {
		session.Wallet = wallet
	} else {
		s.log.Warn("failed to read wallet info", "address", session.Address, "error", err)
	}

	s.log.WithAddress(session.Address).Info("wallet signed in", "role", session.Role)
	return session, nil
}

// Refresh issues a new session for an already authenticated address, carrying
// its current stored role
func (s *AuthService) Refresh(ctx context.Context, address string) (*Session, error) {
	session, err := s.issue(ctx, address)
	if err != nil {
		return nil, err
	}
	s.log.WithAddress(session.Address).Info("session refreshed", "role", session.Role)
	return session, nil
}

// issue signs a session token with the stored role of address. Unregistered
// wallets are clients.
func (s *AuthService) issue(ctx context.Context, address string) (*Session, error) {
	address = models.NormalizeAddress(address)

	role := models.RoleClient
	user, err := s.users.GetByAddress(ctx, address)
	switch {
	case err == nil:
		role = user.Role
	case !errors.Is(err, repository.ErrNotFound):
		return nil, err
	}

	token, expiresAt, err := s.tokens.Issue(address, role)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: expiresAt, Address: address, Role: role}, nil
}
