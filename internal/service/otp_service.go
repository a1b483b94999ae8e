package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"comunidad-service/internal/config"
	"comunidad-service/internal/hashing"
	"comunidad-service/internal/identifier"
	"comunidad-service/internal/models"
	"comunidad-service/internal/repository/scylla"
	"comunidad-service/internal/util"
)

// OTPCache is the Redis-backed side channel for the verification flow:
// operator-visible plaintext codes outside production, issuance counters for
// monitoring, and short verify locks that reduce LWT contention.
type OTPCache interface {
	PublishCode(ctx context.Context, identifierHash, code string, ttl time.Duration) error
	TrackIssuance(ctx context.Context, identifierHash string, window time.Duration) (int64, error)
	AcquireVerifyLock(ctx context.Context, identifierHash string, ttl time.Duration) (bool, error)
	ReleaseVerifyLock(ctx context.Context, identifierHash string) error
}

// SendCodeResult reports a successfully issued challenge.
type SendCodeResult struct {
	Identifier string         `json:"identifier"`
	Channel    models.Channel `json:"channel"`
	ExpiresAt  time.Time      `json:"expires_at"`
}

// VerifyCodeResult reports a successful verification plus whether an account
// already exists for the identifier, so clients can route to login or
// registration.
type VerifyCodeResult struct {
	Verified      bool            `json:"verified"`
	AccountExists bool            `json:"account_exists"`
	UserType      models.UserType `json:"user_type,omitempty"`
}

// OTPService issues and verifies one-time codes. Codes are stored hashed;
// attempt counting and the verified flag are guarded with lightweight
// transactions so concurrent verifies cannot over- or under-count.
type OTPService struct {
	store    scylla.OTPStore
	accounts scylla.AccountStore
	hasher   *hashing.Hasher
	cache    OTPCache
	events   *EventPublisher
	config   *config.Config
	logger   *zap.Logger
}

func NewOTPService(
	store scylla.OTPStore,
	accounts scylla.AccountStore,
	hasher *hashing.Hasher,
	cache OTPCache,
	events *EventPublisher,
	cfg *config.Config,
	logger *zap.Logger,
) *OTPService {
	return &OTPService{
		store:    store,
		accounts: accounts,
		hasher:   hasher,
		cache:    cache,
		events:   events,
		config:   cfg,
		logger:   logger,
	}
}

// SendCode validates the identifier, enforces the trailing issuance window,
// and stores a fresh hashed challenge.
func (s *OTPService) SendCode(ctx context.Context, rawIdentifier string) (*SendCodeResult, error) {
	normalized, kind := identifier.Classify(rawIdentifier)
	if kind == identifier.KindInvalid {
		return nil, ErrInvalidIdentifier
	}

	identifierHash := identifier.Hash(normalized)
	now := time.Now().UTC()

	// The store count is authoritative; Redis counters only feed monitoring.
	issued, err := s.store.CountSince(ctx, identifierHash, now.Add(-s.config.OTP.SendWindow))
	if err != nil {
		return nil, fmt.Errorf("failed to count recent challenges: %w", err)
	}
	if issued >= s.config.OTP.SendLimit {
		util.Warn("Code issuance rate limited",
			zap.String("identifier_hash", identifierHash),
			zap.Int("issued_in_window", issued))
		return nil, ErrTooManyRequests
	}

	code, err := generateCode()
	if err != nil {
		return nil, fmt.Errorf("failed to generate code: %w", err)
	}

	hashResult, err := s.hasher.HashCode(code)
	if err != nil {
		return nil, fmt.Errorf("failed to hash code: %w", err)
	}

	challenge := &models.OTPChallenge{
		IdentifierHash: identifierHash,
		ChallengeID:    uuid.New(),
		Channel:        models.Channel(kind),
		CodeHash:       hashResult.Hash,
		CodeSalt:       hashResult.Salt,
		PepperVersion:  hashResult.PepperVersion,
		Algorithm:      hashResult.Algorithm,
		ExpiresAt:      now.Add(s.config.OTP.CodeTTL),
		CreatedAt:      now,
	}

	if err := s.store.CreateChallenge(ctx, challenge); err != nil {
		return nil, fmt.Errorf("failed to create challenge: %w", err)
	}

	if s.cache != nil {
		if _, err := s.cache.TrackIssuance(ctx, identifierHash, s.config.OTP.SendWindow); err != nil {
			util.Warn("Failed to track issuance", zap.Error(err))
		}
	}

	// No SMS/email provider outside production; the plaintext code goes to a
	// TTL'd Redis key and the dev log instead.
	if !s.config.IsProduction() {
		if s.cache != nil {
			if err := s.cache.PublishCode(ctx, identifierHash, code, s.config.OTP.CodeTTL); err != nil {
				util.Warn("Failed to publish plaintext code", zap.Error(err))
			}
		}
		s.logger.Info("Verification code issued (development)",
			zap.String("identifier", normalized),
			zap.String("code", code))
	}

	s.events.Publish(ctx, TopicOTPEvents, EventOTPIssued, identifierHash, map[string]interface{}{
		"identifier_hash": identifierHash,
		"channel":         string(kind),
		"expires_at":      challenge.ExpiresAt.Format(time.RFC3339),
	})

	util.Info("Verification challenge created",
		zap.String("identifier_hash", identifierHash),
		zap.String("channel", string(kind)))

	return &SendCodeResult{
		Identifier: normalized,
		Channel:    models.Channel(kind),
		ExpiresAt:  challenge.ExpiresAt,
	}, nil
}

// VerifyCode checks a candidate code against the most recent unverified
// challenge. Wrong codes burn an attempt; expiry is checked before the
// attempt ceiling, and both before the code comparison.
func (s *OTPService) VerifyCode(ctx context.Context, rawIdentifier, code string) (*VerifyCodeResult, error) {
	normalized, kind := identifier.Classify(rawIdentifier)
	if kind == identifier.KindInvalid {
		return nil, ErrInvalidIdentifier
	}
	if !identifier.IsValidCode(code) {
		return nil, ErrInvalidCode
	}

	identifierHash := identifier.Hash(normalized)

	// Best-effort serialization per identifier; correctness comes from the
	// LWT conditions, the lock just keeps CAS retries rare.
	if s.cache != nil {
		if acquired, err := s.cache.AcquireVerifyLock(ctx, identifierHash, 10*time.Second); err == nil && acquired {
			defer func() {
				if err := s.cache.ReleaseVerifyLock(context.WithoutCancel(ctx), identifierHash); err != nil {
					util.Warn("Failed to release verify lock", zap.Error(err))
				}
			}()
		}
	}

	challenge, err := s.store.FindMostRecentUnverified(ctx, identifierHash)
	if err != nil {
		return nil, fmt.Errorf("failed to load challenge: %w", err)
	}
	if challenge == nil {
		return nil, ErrChallengeNotFound
	}

	if challenge.IsExpired(time.Now().UTC()) {
		return nil, ErrCodeExpired
	}
	if challenge.Attempts >= s.config.OTP.MaxAttempts {
		return nil, ErrAttemptsExceeded
	}

	match, err := s.hasher.VerifyCode(code, &hashing.HashResult{
		Hash:          challenge.CodeHash,
		Salt:          challenge.CodeSalt,
		PepperVersion: challenge.PepperVersion,
		Algorithm:     challenge.Algorithm,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to verify code: %w", err)
	}

	if !match {
		return nil, s.recordFailedAttempt(ctx, identifierHash, challenge)
	}

	applied, err := s.store.MarkVerified(ctx, challenge)
	if err != nil {
		return nil, fmt.Errorf("failed to mark challenge verified: %w", err)
	}
	if !applied {
		// A concurrent verify won the transaction; this one loses the
		// challenge.
		return nil, ErrChallengeNotFound
	}

	result := &VerifyCodeResult{Verified: true}
	account, err := s.accounts.GetByIdentifierHash(ctx, identifierHash)
	if err != nil {
		util.Warn("Failed to look up account after verification",
			zap.String("identifier_hash", identifierHash),
			zap.Error(err))
	} else if account != nil {
		result.AccountExists = true
		result.UserType = account.UserType
	}

	s.events.Publish(ctx, TopicOTPEvents, EventOTPVerified, identifierHash, map[string]interface{}{
		"identifier_hash": identifierHash,
		"channel":         string(challenge.Channel),
		"account_exists":  result.AccountExists,
	})

	util.Info("Verification succeeded",
		zap.String("identifier_hash", identifierHash),
		zap.Bool("account_exists", result.AccountExists))

	return result, nil
}

// recordFailedAttempt increments the attempt counter transactionally. On a
// lost race it reloads the challenge and retries; attempts only grow, so the
// loop terminates.
func (s *OTPService) recordFailedAttempt(ctx context.Context, identifierHash string, challenge *models.OTPChallenge) error {
	for {
		applied, err := s.store.IncrementAttempts(ctx, challenge, challenge.Attempts)
		if err != nil {
			return fmt.Errorf("failed to record attempt: %w", err)
		}
		if applied {
			break
		}

		fresh, err := s.store.FindMostRecentUnverified(ctx, identifierHash)
		if err != nil {
			return fmt.Errorf("failed to reload challenge: %w", err)
		}
		if fresh == nil || fresh.ChallengeID != challenge.ChallengeID {
			return ErrChallengeNotFound
		}
		if fresh.Attempts >= s.config.OTP.MaxAttempts {
			return ErrAttemptsExceeded
		}
		challenge = fresh
	}

	remaining := s.config.OTP.MaxAttempts - challenge.Attempts
	util.Warn("Incorrect verification code",
		zap.String("identifier_hash", identifierHash),
		zap.Int("remaining_attempts", remaining))

	return &CodeMismatchError{Remaining: remaining}
}

// generateCode draws a uniform 6-digit code from crypto/rand.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
