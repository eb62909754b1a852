package service

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DEEPML1818/dsoc/common/auth"
	"github.com/DEEPML1818/dsoc/common/cache"
	"github.com/DEEPML1818/dsoc/common/chain"
	"github.com/DEEPML1818/dsoc/common/logger"
	"github.com/DEEPML1818/dsoc/common/models"
	"github.com/DEEPML1818/dsoc/common/ratelimit"
	"github.com/DEEPML1818/dsoc/common/repository"
)

func sign(t *testing.T, key *ecdsa.PrivateKey, message string) string {
	t.Helper()
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	require.NoError(t, err)
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig)
}

func newAuthService(t *testing.T) (*AuthService, *auth.TokenIssuer, *repository.MemoryStore) {
	t.Helper()
	log := logger.Discard()
	memCache := cache.NewMemoryCache(log)
	t.Cleanup(func() { memCache.Close() })

	store := repository.NewMemoryStore()
	issuer := auth.NewTokenIssuer("test-secret", time.Hour)
	svc := NewAuthService(&AuthServiceOpts{
		Nonces:  auth.NewNonceStore(memCache, time.Minute),
		Tokens:  issuer,
		Users:   store.Users(),
		Ledger:  chain.NewMemoryLedger(31337),
		Limiter: ratelimit.NewMemoryLimiter(),
		Window:  60,
		Logger:  log,
	})
	return svc, issuer, store
}

func TestAuthService_SignIn(t *testing.T) {
	ctx := context.Background()
	svc, issuer, store := newAuthService(t)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	address := crypto.PubkeyToAddress(key.PublicKey).Hex()
	require.NoError(t, store.Users().Create(ctx, &models.User{WalletAddress: address, Role: models.RoleAnalyst}))

	challenge, err := svc.Nonce(ctx, address)
	require.NoError(t, err)

	session, err := svc.Verify(ctx, address, sign(t, key, challenge.Message))
	require.NoError(t, err)
	assert.Equal(t, models.RoleAnalyst, session.Role)
	assert.Equal(t, models.NormalizeAddress(address), session.Address)
	require.NotNil(t, session.Wallet)
	assert.Equal(t, int64(31337), session.Wallet.ChainID)

	claims, err := issuer.Parse(session.Token)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAnalyst, claims.Role)

	// The challenge is single use
	_, err = svc.Verify(ctx, address, sign(t, key, challenge.Message))
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAuthService_WrongSigner(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newAuthService(t)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	other, err := crypto.GenerateKey()
	require.NoError(t, err)
	address := crypto.PubkeyToAddress(key.PublicKey).Hex()

	challenge, err := svc.Nonce(ctx, address)
	require.NoError(t, err)

	_, err = svc.Verify(ctx, address, sign(t, other, challenge.Message))
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.ErrorIs(t, err, auth.ErrBadSignature)
}

func TestAuthService_NonceRateLimit(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newAuthService(t)

	for i := 0; i < nonceLimit; i++ {
		_, err := svc.Nonce(ctx, clientAddr)
		require.NoError(t, err)
	}

	_, err := svc.Nonce(ctx, clientAddr)
	var rle *RateLimitError
	require.True(t, errors.As(err, &rle))
	assert.Equal(t, int64(nonceLimit), rle.Limit)
	assert.Positive(t, rle.RetryAfterSeconds)

	_, err = svc.Nonce(ctx, "0xnope")
	assert.ErrorIs(t, err, ErrValidation)
}
