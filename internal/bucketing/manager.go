package bucketing

import (
	"hash"
	"strconv"
	"sync"
	"time"

	"comunidad-service/internal/config"

	"github.com/google/uuid"
	"github.com/spaolacci/murmur3"
)

// Manager assigns murmur3-based partition buckets so account rows spread
// evenly across Scylla partitions instead of hot-spotting on popular hashes.
type Manager struct {
	userBuckets  int
	eventBuckets int
	hasherPool   sync.Pool
}

func NewManager(cfg *config.Config) *Manager {
	m := &Manager{
		userBuckets:  cfg.Bucketing.UserBuckets,
		eventBuckets: cfg.Bucketing.EventBuckets,
	}

	// Pool of hashers to avoid allocation overhead on the hot path
	m.hasherPool = sync.Pool{
		New: func() interface{} {
			return murmur3.New64()
		},
	}

	return m
}

// UserBucket returns the consistent bucket for a user (0 to userBuckets-1).
func (m *Manager) UserBucket(userID uuid.UUID) int {
	return m.getBucket(userID.String(), m.userBuckets)
}

// IdentifierBucket returns the bucket for a hashed identifier, used when an
// account must be located before its user ID is known.
func (m *Manager) IdentifierBucket(identifierHash string) int {
	return m.getBucket(identifierHash, m.userBuckets)
}

// EventBucket returns the bucket for event partitioning.
func (m *Manager) EventBucket(key string) int {
	return m.getBucket(key, m.eventBuckets)
}

// TimeBucket returns the start of the window containing now, for windowed
// counters.
func (m *Manager) TimeBucket(windowSeconds int) int64 {
	return time.Now().Unix() / int64(windowSeconds) * int64(windowSeconds)
}

// DateBucket returns the UTC calendar date bucket.
func (m *Manager) DateBucket() string {
	return time.Now().UTC().Format("2006-01-02")
}

func (m *Manager) getBucket(key string, numBuckets int) int {
	if numBuckets <= 0 {
		return 0
	}
	return int(m.getHash(key) % uint64(numBuckets))
}

func (m *Manager) getHash(key string) uint64 {
	hasher := m.hasherPool.Get().(hash.Hash64)
	defer m.hasherPool.Put(hasher)

	hasher.Reset()
	hasher.Write([]byte(key))
	return hasher.Sum64()
}

// WindowKey builds a counter key scoped to the current time window, e.g. for
// per-hour issuance counters in Redis.
func (m *Manager) WindowKey(prefix, identifierHash string, windowSeconds int) string {
	return prefix + identifierHash + ":" + strconv.FormatInt(m.TimeBucket(windowSeconds), 10)
}
