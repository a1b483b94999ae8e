package redis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"comunidad-service/internal/client"
	"comunidad-service/internal/util"
)

const (
	otpPlainPrefix   = "otp:plain:"
	otpIssuedPrefix  = "otp:issued:"
	verifyLockPrefix = "otp:verify_lock:"
)

// OTPCache is the Redis side of the verification flow: the operator-visible
// plaintext code channel for non-production environments, non-authoritative
// issuance counters for monitoring, and short verify locks.
type OTPCache struct {
	client *client.RedisClient
}

func NewOTPCache(client *client.RedisClient) *OTPCache {
	return &OTPCache{client: client}
}

// PublishCode exposes a plaintext code under a TTL'd dev key so operators can
// read it without an SMS/email provider. Never called in production.
func (c *OTPCache) PublishCode(ctx context.Context, identifierHash, code string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	key := otpPlainPrefix + identifierHash
	if err := c.client.Set(ctx, key, code, ttl); err != nil {
		util.Error("Failed to publish plaintext code",
			zap.String("identifier_hash", identifierHash),
			zap.Error(err))
		return fmt.Errorf("failed to publish plaintext code: %w", err)
	}

	util.Debug("Plaintext code published for operator",
		zap.String("identifier_hash", identifierHash),
		zap.Duration("ttl", ttl))
	return nil
}

// TrackIssuance bumps the windowed issuance counter. The counter feeds
// monitoring only; the authoritative rate limit is counted in the store.
func (c *OTPCache) TrackIssuance(ctx context.Context, identifierHash string, window time.Duration) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	key := otpIssuedPrefix + identifierHash
	count, err := c.client.IncrWithExpire(ctx, key, window)
	if err != nil {
		util.Error("Failed to track code issuance",
			zap.String("identifier_hash", identifierHash),
			zap.Error(err))
		return 0, fmt.Errorf("failed to track code issuance: %w", err)
	}

	return count, nil
}

// AcquireVerifyLock takes a short exclusive lock for one identifier's verify
// path. Returns false when another verify holds it.
func (c *OTPCache) AcquireVerifyLock(ctx context.Context, identifierHash string, ttl time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	key := verifyLockPrefix + identifierHash
	acquired, err := c.client.SetNX(ctx, key, "locked", ttl)
	if err != nil {
		util.Error("Failed to acquire verify lock",
			zap.String("identifier_hash", identifierHash),
			zap.Error(err))
		return false, fmt.Errorf("failed to acquire verify lock: %w", err)
	}

	return acquired, nil
}

// ReleaseVerifyLock releases a previously acquired verify lock.
func (c *OTPCache) ReleaseVerifyLock(ctx context.Context, identifierHash string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	key := verifyLockPrefix + identifierHash
	if err := c.client.Del(ctx, key); err != nil {
		util.Error("Failed to release verify lock",
			zap.String("identifier_hash", identifierHash),
			zap.Error(err))
		return fmt.Errorf("failed to release verify lock: %w", err)
	}

	return nil
}

// Stats reports coarse counts of active verification keys for monitoring.
func (c *OTPCache) Stats(ctx context.Context) (map[string]interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	stats := make(map[string]interface{})

	if keys, _, err := c.client.Scan(ctx, 0, otpPlainPrefix+"*", 1000); err != nil {
		util.Warn("Failed to scan plaintext code keys", zap.Error(err))
	} else {
		stats["plaintext_codes"] = len(keys)
	}

	if keys, _, err := c.client.Scan(ctx, 0, otpIssuedPrefix+"*", 1000); err != nil {
		util.Warn("Failed to scan issuance counter keys", zap.Error(err))
	} else {
		stats["identifiers_with_issuance"] = len(keys)
	}

	return stats, nil
}
