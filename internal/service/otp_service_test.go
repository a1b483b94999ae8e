package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"comunidad-service/internal/hashing"
	"comunidad-service/internal/identifier"
	"comunidad-service/internal/models"
)

type otpFixture struct {
	service  *OTPService
	store    *fakeOTPStore
	accounts *fakeAccountStore
	cache    *fakeOTPCache
	hasher   *hashing.Hasher
}

func newOTPFixture(t *testing.T) *otpFixture {
	t.Helper()
	cfg := testConfig()
	store := &fakeOTPStore{}
	accounts := newFakeAccountStore()
	cache := newFakeOTPCache()
	hasher := hashing.NewHasher(cfg)

	return &otpFixture{
		service:  NewOTPService(store, accounts, hasher, cache, nil, cfg, zap.NewNop()),
		store:    store,
		accounts: accounts,
		cache:    cache,
		hasher:   hasher,
	}
}

func TestSendCodeRejectsInvalidIdentifier(t *testing.T) {
	f := newOTPFixture(t)

	for _, raw := range []string{"", "12345", "812345678", "9123456789", "not-an-email", "user@host"} {
		_, err := f.service.SendCode(context.Background(), raw)
		assert.ErrorIs(t, err, ErrInvalidIdentifier, "identifier %q", raw)
	}
}

func TestSendCodeStoresHashedChallenge(t *testing.T) {
	f := newOTPFixture(t)

	result, err := f.service.SendCode(context.Background(), "Maria@Example.COM")
	require.NoError(t, err)
	assert.Equal(t, "maria@example.com", result.Identifier)
	assert.Equal(t, models.ChannelEmail, result.Channel)
	assert.WithinDuration(t, time.Now().UTC().Add(5*time.Minute), result.ExpiresAt, 5*time.Second)

	hash := identifier.Hash("maria@example.com")
	code := f.cache.codeFor(hash)
	require.Len(t, code, 6)

	challenge, err := f.store.FindMostRecentUnverified(context.Background(), hash)
	require.NoError(t, err)
	require.NotNil(t, challenge)
	assert.NotEqual(t, code, challenge.CodeHash)
	assert.Zero(t, challenge.Attempts)
	assert.False(t, challenge.Verified)

	match, err := f.hasher.VerifyCode(code, &hashing.HashResult{
		Hash:          challenge.CodeHash,
		Salt:          challenge.CodeSalt,
		PepperVersion: challenge.PepperVersion,
		Algorithm:     challenge.Algorithm,
	})
	require.NoError(t, err)
	assert.True(t, match)
}

func TestSendCodeNormalizesSpacedPhone(t *testing.T) {
	f := newOTPFixture(t)

	result, err := f.service.SendCode(context.Background(), "  9 1234 5678 ")
	require.NoError(t, err)
	assert.Equal(t, "912345678", result.Identifier)
	assert.Equal(t, models.ChannelPhone, result.Channel)
}

func TestSendCodeRateLimited(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.service.SendCode(ctx, "maria@example.com")
		require.NoError(t, err)
	}

	_, err := f.service.SendCode(ctx, "maria@example.com")
	assert.ErrorIs(t, err, ErrTooManyRequests)

	// A different identifier is unaffected
	_, err = f.service.SendCode(ctx, "912345678")
	assert.NoError(t, err)
}

func TestVerifyCodeHappyPath(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()

	_, err := f.service.SendCode(ctx, "maria@example.com")
	require.NoError(t, err)

	hash := identifier.Hash("maria@example.com")
	code := f.cache.codeFor(hash)

	result, err := f.service.VerifyCode(ctx, "MARIA@example.com", code)
	require.NoError(t, err)
	assert.True(t, result.Verified)
	assert.False(t, result.AccountExists)

	// A verified challenge cannot be consumed twice
	_, err = f.service.VerifyCode(ctx, "maria@example.com", code)
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestVerifyCodeReportsExistingAccount(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()

	hash := identifier.Hash("912345678")
	require.NoError(t, f.accounts.Create(ctx, &models.Account{
		IdentifierHash: hash,
		Channel:        models.ChannelPhone,
		UserType:       models.UserTypePoblador,
		Status:         models.StatusActive,
	}))

	_, err := f.service.SendCode(ctx, "912345678")
	require.NoError(t, err)

	result, err := f.service.VerifyCode(ctx, "912345678", f.cache.codeFor(hash))
	require.NoError(t, err)
	assert.True(t, result.AccountExists)
	assert.Equal(t, models.UserTypePoblador, result.UserType)
}

func TestVerifyCodeRejectsMalformedCode(t *testing.T) {
	f := newOTPFixture(t)

	for _, code := range []string{"", "12345", "1234567", "12ab56"} {
		_, err := f.service.VerifyCode(context.Background(), "maria@example.com", code)
		assert.ErrorIs(t, err, ErrInvalidCode, "code %q", code)
	}
}

func TestVerifyCodeWithoutChallenge(t *testing.T) {
	f := newOTPFixture(t)

	_, err := f.service.VerifyCode(context.Background(), "maria@example.com", "123456")
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestVerifyCodeMismatchBurnsAttempts(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()

	_, err := f.service.SendCode(ctx, "maria@example.com")
	require.NoError(t, err)

	hash := identifier.Hash("maria@example.com")
	code := f.cache.codeFor(hash)
	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}

	for i, wantRemaining := range []int{2, 1, 0} {
		_, err := f.service.VerifyCode(ctx, "maria@example.com", wrong)
		var mismatch *CodeMismatchError
		require.ErrorAs(t, err, &mismatch, "attempt %d", i+1)
		assert.Equal(t, wantRemaining, mismatch.Remaining, "attempt %d", i+1)
	}

	// Exhausted: even the correct code is refused
	_, err = f.service.VerifyCode(ctx, "maria@example.com", code)
	assert.ErrorIs(t, err, ErrAttemptsExceeded)
}

func TestVerifyCodeExpired(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()

	hashResult, err := f.hasher.HashCode("123456")
	require.NoError(t, err)

	require.NoError(t, f.store.CreateChallenge(ctx, &models.OTPChallenge{
		IdentifierHash: identifier.Hash("maria@example.com"),
		Channel:        models.ChannelEmail,
		CodeHash:       hashResult.Hash,
		CodeSalt:       hashResult.Salt,
		PepperVersion:  hashResult.PepperVersion,
		Algorithm:      hashResult.Algorithm,
		ExpiresAt:      time.Now().UTC().Add(-time.Minute),
		CreatedAt:      time.Now().UTC().Add(-6 * time.Minute),
	}))

	_, err = f.service.VerifyCode(ctx, "maria@example.com", "123456")
	assert.ErrorIs(t, err, ErrCodeExpired)
}

func TestVerifyCodeExpiryCheckedBeforeAttempts(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()

	hashResult, err := f.hasher.HashCode("123456")
	require.NoError(t, err)

	// Expired and exhausted at once: expiry wins
	require.NoError(t, f.store.CreateChallenge(ctx, &models.OTPChallenge{
		IdentifierHash: identifier.Hash("maria@example.com"),
		Channel:        models.ChannelEmail,
		CodeHash:       hashResult.Hash,
		CodeSalt:       hashResult.Salt,
		PepperVersion:  hashResult.PepperVersion,
		Algorithm:      hashResult.Algorithm,
		Attempts:       3,
		ExpiresAt:      time.Now().UTC().Add(-time.Minute),
		CreatedAt:      time.Now().UTC().Add(-6 * time.Minute),
	}))

	_, err = f.service.VerifyCode(ctx, "maria@example.com", "123456")
	assert.ErrorIs(t, err, ErrCodeExpired)
	assert.False(t, errors.Is(err, ErrAttemptsExceeded))
}

func TestVerifyCodeUsesMostRecentChallenge(t *testing.T) {
	f := newOTPFixture(t)
	ctx := context.Background()

	_, err := f.service.SendCode(ctx, "maria@example.com")
	require.NoError(t, err)
	hash := identifier.Hash("maria@example.com")
	firstCode := f.cache.codeFor(hash)

	_, err = f.service.SendCode(ctx, "maria@example.com")
	require.NoError(t, err)
	secondCode := f.cache.codeFor(hash)

	if firstCode == secondCode {
		t.Skip("codes collided; nothing to distinguish")
	}

	// The superseded code now counts as a mismatch against the fresh challenge
	_, err = f.service.VerifyCode(ctx, "maria@example.com", firstCode)
	var mismatch *CodeMismatchError
	require.ErrorAs(t, err, &mismatch)

	result, err := f.service.VerifyCode(ctx, "maria@example.com", secondCode)
	require.NoError(t, err)
	assert.True(t, result.Verified)
}
