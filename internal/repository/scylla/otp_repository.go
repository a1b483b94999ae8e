package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"comunidad-service/internal/models"
	"comunidad-service/internal/util"
)

// recentChallengeScan bounds how far back we look when resolving the
// most-recent pending challenge; older rows are dead weight either way.
const recentChallengeScan = 16

// OTPRepository stores verification challenges in the otp_challenges table,
// partitioned by identifier hash and clustered by creation time descending.
type OTPRepository struct {
	client *ScyllaClient
}

func NewOTPRepository(client *ScyllaClient) *OTPRepository {
	return &OTPRepository{client: client}
}

func (r *OTPRepository) CreateChallenge(ctx context.Context, challenge *models.OTPChallenge) error {
	if challenge.ChallengeID == uuid.Nil {
		challenge.ChallengeID = uuid.New()
	}

	now := time.Now().UTC()
	if challenge.CreatedAt.IsZero() {
		challenge.CreatedAt = now
	}
	if challenge.ExpiresAt.IsZero() {
		challenge.ExpiresAt = now.Add(5 * time.Minute)
	}

	query := r.client.Prepared.CreateChallenge.WithContext(ctx).Bind(
		challenge.IdentifierHash, challenge.CreatedAt, challenge.ChallengeID,
		string(challenge.Channel), challenge.CodeHash, challenge.CodeSalt,
		challenge.PepperVersion, challenge.Algorithm, challenge.ExpiresAt,
		challenge.Attempts, challenge.Verified)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to create verification challenge",
			zap.String("identifier_hash", challenge.IdentifierHash),
			zap.String("challenge_id", challenge.ChallengeID.String()),
			zap.Error(err))
		return fmt.Errorf("failed to create verification challenge: %w", err)
	}

	util.Debug("Verification challenge created",
		zap.String("identifier_hash", challenge.IdentifierHash),
		zap.String("challenge_id", challenge.ChallengeID.String()),
		zap.Time("expires_at", challenge.ExpiresAt))

	return nil
}

// FindMostRecentUnverified returns the newest pending challenge for an
// identifier, or (nil, nil) when none exists. Clustering order makes the
// first unverified row in the iteration the authoritative one.
func (r *OTPRepository) FindMostRecentUnverified(ctx context.Context, identifierHash string) (*models.OTPChallenge, error) {
	iter := r.client.Prepared.ChallengesByHash.WithContext(ctx).
		Bind(identifierHash, recentChallengeScan).Iter()

	challenge, err := r.scanFirst(iter, func(c *models.OTPChallenge) bool {
		return !c.Verified
	})
	if err != nil {
		util.Error("Failed to look up pending challenge",
			zap.String("identifier_hash", identifierHash),
			zap.Error(err))
		return nil, fmt.Errorf("failed to look up pending challenge: %w", err)
	}

	return challenge, nil
}

// FindRecentVerified returns the newest challenge verified after the given
// instant, or (nil, nil). Registration uses this as proof of a completed
// verification.
func (r *OTPRepository) FindRecentVerified(ctx context.Context, identifierHash string, since time.Time) (*models.OTPChallenge, error) {
	iter := r.client.Prepared.ChallengesByHash.WithContext(ctx).
		Bind(identifierHash, recentChallengeScan).Iter()

	challenge, err := r.scanFirst(iter, func(c *models.OTPChallenge) bool {
		return c.Verified && !c.CreatedAt.Before(since)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to look up verified challenge: %w", err)
	}

	return challenge, nil
}

// IncrementAttempts bumps the attempt counter with a lightweight transaction
// conditioned on the counter still holding its expected value. Returns false
// when a concurrent verify already consumed the slot.
func (r *OTPRepository) IncrementAttempts(ctx context.Context, challenge *models.OTPChallenge, expected int) (bool, error) {
	applied, err := r.client.Session.Query(`
        UPDATE otp_challenges SET attempts = ?
        WHERE identifier_hash = ? AND created_at = ? AND challenge_id = ?
        IF attempts = ? AND verified = false`,
		expected+1, challenge.IdentifierHash, challenge.CreatedAt, challenge.ChallengeID, expected).
		WithContext(ctx).
		MapScanCAS(map[string]interface{}{})
	if err != nil {
		util.Error("Failed to increment challenge attempts",
			zap.String("identifier_hash", challenge.IdentifierHash),
			zap.String("challenge_id", challenge.ChallengeID.String()),
			zap.Error(err))
		return false, fmt.Errorf("failed to increment challenge attempts: %w", err)
	}

	if applied {
		challenge.Attempts = expected + 1
	}
	return applied, nil
}

// MarkVerified flips the verified flag with a lightweight transaction so two
// concurrent verifies cannot both succeed on the same challenge.
func (r *OTPRepository) MarkVerified(ctx context.Context, challenge *models.OTPChallenge) (bool, error) {
	applied, err := r.client.Session.Query(`
        UPDATE otp_challenges SET verified = true
        WHERE identifier_hash = ? AND created_at = ? AND challenge_id = ?
        IF verified = false`,
		challenge.IdentifierHash, challenge.CreatedAt, challenge.ChallengeID).
		WithContext(ctx).
		MapScanCAS(map[string]interface{}{})
	if err != nil {
		util.Error("Failed to mark challenge verified",
			zap.String("identifier_hash", challenge.IdentifierHash),
			zap.String("challenge_id", challenge.ChallengeID.String()),
			zap.Error(err))
		return false, fmt.Errorf("failed to mark challenge verified: %w", err)
	}

	if applied {
		challenge.Verified = true
	}
	return applied, nil
}

// CountSince counts challenges issued for an identifier since the given
// instant; this is the authoritative issuance rate-limit input.
func (r *OTPRepository) CountSince(ctx context.Context, identifierHash string, since time.Time) (int, error) {
	var count int
	query := r.client.Prepared.CountChallengesSince.WithContext(ctx).Bind(identifierHash, since)

	if err := r.client.ScanWithRetry(query, &count); err != nil {
		if err == gocql.ErrNotFound {
			return 0, nil
		}
		util.Error("Failed to count issued challenges",
			zap.String("identifier_hash", identifierHash),
			zap.Error(err))
		return 0, fmt.Errorf("failed to count issued challenges: %w", err)
	}

	return count, nil
}

func (r *OTPRepository) scanFirst(iter *gocql.Iter, match func(*models.OTPChallenge) bool) (*models.OTPChallenge, error) {
	var found *models.OTPChallenge

	for {
		c := &models.OTPChallenge{}
		var channel string
		if !iter.Scan(&c.IdentifierHash, &c.CreatedAt, &c.ChallengeID, &channel,
			&c.CodeHash, &c.CodeSalt, &c.PepperVersion, &c.Algorithm,
			&c.ExpiresAt, &c.Attempts, &c.Verified) {
			break
		}
		c.Channel = models.Channel(channel)
		if match(c) {
			found = c
			break
		}
	}

	if err := iter.Close(); err != nil {
		return nil, err
	}
	return found, nil
}
