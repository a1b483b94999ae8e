package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"comunidad-service/internal/config"
	"comunidad-service/internal/models"
	"comunidad-service/internal/repository/clickhouse"
	"comunidad-service/internal/search"
)

func testConfig() *config.Config {
	return &config.Config{
		Environment: "development",
		Hashing: config.HashingConfig{
			Argon2MemoryCost:   1024,
			Argon2TimeCost:     1,
			Argon2Parallelism:  1,
			PepperRotationDays: 30,
		},
		KMS: config.KMSConfig{Enabled: false},
		OTP: config.OTPConfig{
			CodeTTL:        5 * time.Minute,
			MaxAttempts:    3,
			SendWindow:     time.Hour,
			SendLimit:      3,
			VerifiedWindow: 30 * time.Minute,
		},
	}
}

// fakeOTPStore mirrors the store's conditional-update semantics under a
// mutex.
type fakeOTPStore struct {
	mu         sync.Mutex
	challenges []*models.OTPChallenge
}

func (s *fakeOTPStore) CreateChallenge(ctx context.Context, challenge *models.OTPChallenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if challenge.ChallengeID == uuid.Nil {
		challenge.ChallengeID = uuid.New()
	}
	if challenge.CreatedAt.IsZero() {
		challenge.CreatedAt = time.Now().UTC()
	}
	stored := *challenge
	s.challenges = append(s.challenges, &stored)
	return nil
}

func (s *fakeOTPStore) FindMostRecentUnverified(ctx context.Context, identifierHash string) (*models.OTPChallenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findLocked(identifierHash, func(c *models.OTPChallenge) bool { return !c.Verified }), nil
}

func (s *fakeOTPStore) FindRecentVerified(ctx context.Context, identifierHash string, since time.Time) (*models.OTPChallenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findLocked(identifierHash, func(c *models.OTPChallenge) bool {
		return c.Verified && !c.CreatedAt.Before(since)
	}), nil
}

func (s *fakeOTPStore) findLocked(identifierHash string, match func(*models.OTPChallenge) bool) *models.OTPChallenge {
	candidates := make([]*models.OTPChallenge, 0, len(s.challenges))
	for _, c := range s.challenges {
		if c.IdentifierHash == identifierHash && match(c) {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
	})
	copied := *candidates[0]
	return &copied
}

func (s *fakeOTPStore) IncrementAttempts(ctx context.Context, challenge *models.OTPChallenge, expected int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.challenges {
		if c.ChallengeID == challenge.ChallengeID {
			if c.Verified || c.Attempts != expected {
				return false, nil
			}
			c.Attempts = expected + 1
			challenge.Attempts = c.Attempts
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeOTPStore) MarkVerified(ctx context.Context, challenge *models.OTPChallenge) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.challenges {
		if c.ChallengeID == challenge.ChallengeID {
			if c.Verified {
				return false, nil
			}
			c.Verified = true
			challenge.Verified = true
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeOTPStore) CountSince(ctx context.Context, identifierHash string, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, c := range s.challenges {
		if c.IdentifierHash == identifierHash && !c.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

type fakeAccountStore struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*models.Account
}

func newFakeAccountStore() *fakeAccountStore {
	return &fakeAccountStore{accounts: make(map[uuid.UUID]*models.Account)}
}

func (s *fakeAccountStore) Create(ctx context.Context, account *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if account.UserID == uuid.Nil {
		account.UserID = uuid.New()
	}
	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now
	stored := *account
	s.accounts[account.UserID] = &stored
	return nil
}

func (s *fakeAccountStore) GetByID(ctx context.Context, userID uuid.UUID) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if account, ok := s.accounts[userID]; ok {
		copied := *account
		return &copied, nil
	}
	return nil, nil
}

func (s *fakeAccountStore) GetByIdentifierHash(ctx context.Context, identifierHash string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, account := range s.accounts {
		if account.IdentifierHash == identifierHash {
			copied := *account
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *fakeAccountStore) UpdateStatus(ctx context.Context, userID uuid.UUID, status models.AccountStatus, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if account, ok := s.accounts[userID]; ok {
		account.Status = status
		account.RejectedReason = reason
		if status == models.StatusActive {
			account.ApprovedAt = time.Now().UTC()
		}
	}
	return nil
}

func (s *fakeAccountStore) UpdateCompany(ctx context.Context, userID uuid.UUID, name, ruc, projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if account, ok := s.accounts[userID]; ok {
		account.CompanyName = name
		account.CompanyRUC = ruc
		account.ProjectID = projectID
	}
	return nil
}

func (s *fakeAccountStore) UpdatePassword(ctx context.Context, userID uuid.UUID, hash, salt string, pepperVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if account, ok := s.accounts[userID]; ok {
		account.PasswordHash = hash
		account.PasswordSalt = salt
		account.PepperVersion = pepperVersion
	}
	return nil
}

func (s *fakeAccountStore) UpdateLastLogin(ctx context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if account, ok := s.accounts[userID]; ok {
		account.LastLogin = time.Now().UTC()
	}
	return nil
}

func (s *fakeAccountStore) ListByStatus(ctx context.Context, userType models.UserType, status models.AccountStatus, limit int) ([]*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*models.Account
	for _, account := range s.accounts {
		if account.UserType == userType && account.Status == status {
			copied := *account
			result = append(result, &copied)
			if len(result) == limit {
				break
			}
		}
	}
	return result, nil
}

type residentKey struct {
	projectID string
	userID    uuid.UUID
}

type fakeResidentStore struct {
	mu      sync.Mutex
	records map[residentKey]*models.ResidentRecord
}

func newFakeResidentStore() *fakeResidentStore {
	return &fakeResidentStore{records: make(map[residentKey]*models.ResidentRecord)}
}

func (s *fakeResidentStore) Save(ctx context.Context, record *models.ResidentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *record
	s.records[residentKey{record.ProjectID, record.UserID}] = &stored
	return nil
}

func (s *fakeResidentStore) GetByUser(ctx context.Context, projectID string, userID uuid.UUID) (*models.ResidentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record, ok := s.records[residentKey{projectID, userID}]; ok {
		copied := *record
		return &copied, nil
	}
	return nil, nil
}

func (s *fakeResidentStore) FetchByProjectIDs(ctx context.Context, projectIDs []string) ([]models.ResidentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wanted := make(map[string]bool, len(projectIDs))
	for _, id := range projectIDs {
		wanted[id] = true
	}
	var records []models.ResidentRecord
	for key, record := range s.records {
		if wanted[key.projectID] {
			records = append(records, *record)
		}
	}
	return records, nil
}

type fakeProjectStore struct {
	mu       sync.Mutex
	projects []models.Project
}

func (s *fakeProjectStore) List(ctx context.Context) ([]models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Project(nil), s.projects...), nil
}

func (s *fakeProjectStore) Upsert(ctx context.Context, project *models.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.projects {
		if existing.ProjectID == project.ProjectID {
			s.projects[i] = *project
			return nil
		}
	}
	s.projects = append(s.projects, *project)
	return nil
}

// fakeOTPCache captures published plaintext codes so tests can replay them.
type fakeOTPCache struct {
	mu        sync.Mutex
	published map[string]string
	issuances map[string]int64
	locks     map[string]bool
}

func newFakeOTPCache() *fakeOTPCache {
	return &fakeOTPCache{
		published: make(map[string]string),
		issuances: make(map[string]int64),
		locks:     make(map[string]bool),
	}
}

func (c *fakeOTPCache) PublishCode(ctx context.Context, identifierHash, code string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published[identifierHash] = code
	return nil
}

func (c *fakeOTPCache) TrackIssuance(ctx context.Context, identifierHash string, window time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.issuances[identifierHash]++
	return c.issuances[identifierHash], nil
}

func (c *fakeOTPCache) AcquireVerifyLock(ctx context.Context, identifierHash string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.locks[identifierHash] {
		return false, nil
	}
	c.locks[identifierHash] = true
	return true, nil
}

func (c *fakeOTPCache) ReleaseVerifyLock(ctx context.Context, identifierHash string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.locks, identifierHash)
	return nil
}

func (c *fakeOTPCache) codeFor(identifierHash string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.published[identifierHash]
}

type fakeIndexer struct {
	mu   sync.Mutex
	docs map[string]*models.Account
}

func newFakeIndexer() *fakeIndexer {
	return &fakeIndexer{docs: make(map[string]*models.Account)}
}

func (f *fakeIndexer) IndexAccount(ctx context.Context, account *models.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *account
	f.docs[account.UserID.String()] = &copied
	return nil
}

func (f *fakeIndexer) SearchAccounts(ctx context.Context, query string, limit int) ([]search.AccountDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var docs []search.AccountDocument
	for _, account := range f.docs {
		if account.CompanyName == query || account.CompanyRUC == query || account.ProjectID == query {
			docs = append(docs, search.AccountDocument{
				UserID:      account.UserID.String(),
				UserType:    string(account.UserType),
				Status:      string(account.Status),
				CompanyName: account.CompanyName,
				CompanyRUC:  account.CompanyRUC,
				ProjectID:   account.ProjectID,
			})
		}
	}
	return docs, nil
}

type fakeMetricsSink struct {
	mu        sync.Mutex
	snapshots []clickhouse.Snapshot
}

func (f *fakeMetricsSink) InsertSnapshots(ctx context.Context, computedAt time.Time, snapshots []clickhouse.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots = append(f.snapshots, snapshots...)
	return nil
}
