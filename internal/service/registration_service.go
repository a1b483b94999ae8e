package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"comunidad-service/internal/config"
	"comunidad-service/internal/encryption"
	"comunidad-service/internal/hashing"
	"comunidad-service/internal/identifier"
	"comunidad-service/internal/models"
	"comunidad-service/internal/repository/scylla"
	"comunidad-service/internal/search"
	"comunidad-service/internal/util"
)

var rucPattern = regexp.MustCompile(`^\d{11}$`)

// statusTransitions lists the admin-drivable account status changes.
var statusTransitions = map[models.AccountStatus][]models.AccountStatus{
	models.StatusPending:  {models.StatusActive, models.StatusRejected},
	models.StatusRejected: {models.StatusPending},
}

// SearchIndexer maintains the admin search index. Nil disables indexing.
type SearchIndexer interface {
	IndexAccount(ctx context.Context, account *models.Account) error
	SearchAccounts(ctx context.Context, query string, limit int) ([]search.AccountDocument, error)
}

// PobladorRegistrationRequest carries a resident signup: a verified contact
// identifier plus the survey answers the indicator engine consumes.
type PobladorRegistrationRequest struct {
	Identifier       string   `json:"identifier"`
	Password         string   `json:"password,omitempty"`
	ProjectID        string   `json:"project_id"`
	EducationLevel   string   `json:"education_level"`
	AgeRange         string   `json:"age_range"`
	EmploymentStatus string   `json:"employment_status"`
	KnowledgeLevel   string   `json:"knowledge_level"`
	TrustLevel       string   `json:"trust_level"`
	Participation    []string `json:"participation"`
}

// EmpresaRegistrationRequest carries a company signup, which lands in
// pending until an admin approves it.
type EmpresaRegistrationRequest struct {
	Identifier  string `json:"identifier"`
	Password    string `json:"password"`
	CompanyName string `json:"company_name"`
	CompanyRUC  string `json:"company_ruc"`
	ProjectID   string `json:"project_id"`
	ProjectName string `json:"project_name,omitempty"`
}

// UpdateProfileRequest rewrites the mutable parts of a profile. Zero-valued
// fields are left untouched.
type UpdateProfileRequest struct {
	Password         string   `json:"password,omitempty"`
	CompanyName      string   `json:"company_name,omitempty"`
	CompanyRUC       string   `json:"company_ruc,omitempty"`
	ProjectID        string   `json:"project_id,omitempty"`
	EducationLevel   string   `json:"education_level,omitempty"`
	AgeRange         string   `json:"age_range,omitempty"`
	EmploymentStatus string   `json:"employment_status,omitempty"`
	KnowledgeLevel   string   `json:"knowledge_level,omitempty"`
	TrustLevel       string   `json:"trust_level,omitempty"`
	Participation    []string `json:"participation,omitempty"`
}

// Profile bundles an account with its survey record, when one exists.
type Profile struct {
	Account  *models.Account        `json:"account"`
	Resident *models.ResidentRecord `json:"resident,omitempty"`
}

// RegistrationService owns account lifecycle: poblador and empresa signup,
// login, profile reads and updates, and the admin approval flow.
type RegistrationService struct {
	accounts   scylla.AccountStore
	residents  scylla.ResidentStore
	projects   scylla.ProjectStore
	otpStore   scylla.OTPStore
	hasher     *hashing.Hasher
	encryption *encryption.Manager
	indexer    SearchIndexer
	events     *EventPublisher
	config     *config.Config
	logger     *zap.Logger
}

func NewRegistrationService(
	accounts scylla.AccountStore,
	residents scylla.ResidentStore,
	projects scylla.ProjectStore,
	otpStore scylla.OTPStore,
	hasher *hashing.Hasher,
	encryptionMgr *encryption.Manager,
	indexer SearchIndexer,
	events *EventPublisher,
	cfg *config.Config,
	logger *zap.Logger,
) *RegistrationService {
	return &RegistrationService{
		accounts:   accounts,
		residents:  residents,
		projects:   projects,
		otpStore:   otpStore,
		hasher:     hasher,
		encryption: encryptionMgr,
		indexer:    indexer,
		events:     events,
		config:     cfg,
		logger:     logger,
	}
}

// RegisterPoblador creates an active resident account. The identifier must
// have completed code verification within the configured window.
func (s *RegistrationService) RegisterPoblador(ctx context.Context, req *PobladorRegistrationRequest) (*models.Account, error) {
	normalized, kind := identifier.Classify(req.Identifier)
	if kind == identifier.KindInvalid {
		return nil, ErrInvalidIdentifier
	}
	if strings.TrimSpace(req.ProjectID) == "" {
		return nil, fmt.Errorf("%w: project_id is required", ErrInvalidInput)
	}

	identifierHash := identifier.Hash(normalized)

	existing, err := s.accounts.GetByIdentifierHash(ctx, identifierHash)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing account: %w", err)
	}
	if existing != nil {
		return nil, ErrAccountExists
	}

	since := time.Now().UTC().Add(-s.config.OTP.VerifiedWindow)
	verified, err := s.otpStore.FindRecentVerified(ctx, identifierHash, since)
	if err != nil {
		return nil, fmt.Errorf("failed to check verification: %w", err)
	}
	if verified == nil {
		return nil, ErrVerificationRequired
	}

	account, err := s.buildAccount(ctx, normalized, identifierHash, kind, models.UserTypePoblador, models.StatusActive, req.Password)
	if err != nil {
		return nil, err
	}
	account.ProjectID = req.ProjectID

	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	record := &models.ResidentRecord{
		ProjectID:        req.ProjectID,
		UserID:           account.UserID,
		EducationLevel:   req.EducationLevel,
		AgeRange:         req.AgeRange,
		EmploymentStatus: req.EmploymentStatus,
		KnowledgeLevel:   req.KnowledgeLevel,
		TrustLevel:       req.TrustLevel,
		Participation:    req.Participation,
	}
	if err := s.residents.Save(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to save survey record: %w", err)
	}

	s.indexAccount(ctx, account)
	s.events.Publish(ctx, TopicAccountEvents, EventPobladorRegistered, account.UserID.String(), map[string]interface{}{
		"user_id":    account.UserID.String(),
		"project_id": account.ProjectID,
		"channel":    string(account.Channel),
	})

	util.Info("Poblador registered",
		zap.String("user_id", account.UserID.String()),
		zap.String("project_id", account.ProjectID))

	return account, nil
}

// RegisterEmpresa creates a pending company account awaiting admin approval.
func (s *RegistrationService) RegisterEmpresa(ctx context.Context, req *EmpresaRegistrationRequest) (*models.Account, error) {
	normalized, kind := identifier.Classify(req.Identifier)
	if kind == identifier.KindInvalid {
		return nil, ErrInvalidIdentifier
	}
	if strings.TrimSpace(req.CompanyName) == "" {
		return nil, fmt.Errorf("%w: company_name is required", ErrInvalidInput)
	}
	if !rucPattern.MatchString(req.CompanyRUC) {
		return nil, fmt.Errorf("%w: company_ruc must be 11 digits", ErrInvalidInput)
	}
	if strings.TrimSpace(req.Password) == "" {
		return nil, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}

	identifierHash := identifier.Hash(normalized)

	existing, err := s.accounts.GetByIdentifierHash(ctx, identifierHash)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing account: %w", err)
	}
	if existing != nil {
		return nil, ErrAccountExists
	}

	since := time.Now().UTC().Add(-s.config.OTP.VerifiedWindow)
	verified, err := s.otpStore.FindRecentVerified(ctx, identifierHash, since)
	if err != nil {
		return nil, fmt.Errorf("failed to check verification: %w", err)
	}
	if verified == nil {
		return nil, ErrVerificationRequired
	}

	account, err := s.buildAccount(ctx, normalized, identifierHash, kind, models.UserTypeEmpresa, models.StatusPending, req.Password)
	if err != nil {
		return nil, err
	}
	account.CompanyName = req.CompanyName
	account.CompanyRUC = req.CompanyRUC
	account.ProjectID = req.ProjectID

	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	// Registering a company enrolls its project for monitoring.
	if account.ProjectID != "" {
		project := &models.Project{
			ProjectID: account.ProjectID,
			Name:      valueOr(req.ProjectName, req.CompanyName),
		}
		if err := s.projects.Upsert(ctx, project); err != nil {
			util.Warn("Failed to enroll project",
				zap.String("project_id", account.ProjectID),
				zap.Error(err))
		}
	}

	s.indexAccount(ctx, account)
	s.events.Publish(ctx, TopicAccountEvents, EventEmpresaRegistered, account.UserID.String(), map[string]interface{}{
		"user_id":      account.UserID.String(),
		"company_name": account.CompanyName,
		"company_ruc":  account.CompanyRUC,
	})

	util.Info("Empresa registered, pending approval",
		zap.String("user_id", account.UserID.String()),
		zap.String("company_name", account.CompanyName))

	return account, nil
}

func (s *RegistrationService) buildAccount(
	ctx context.Context,
	normalized, identifierHash string,
	kind identifier.Kind,
	userType models.UserType,
	status models.AccountStatus,
	password string,
) (*models.Account, error) {
	account := &models.Account{
		UserID:         uuid.New(),
		IdentifierHash: identifierHash,
		Channel:        models.Channel(kind),
		UserType:       userType,
		Status:         status,
	}

	if s.encryption != nil {
		encrypted, err := s.encryption.EncryptIdentifier(ctx, normalized)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt identifier: %w", err)
		}
		account.IdentifierEncrypted = encrypted.EncryptedValue
		account.IdentifierDEK = encrypted.EncryptedDEK
		account.IdentifierKeyID = encrypted.KeyID
	}

	if password != "" {
		hashResult, err := s.hasher.HashPassword(password)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		account.PasswordHash = hashResult.Hash
		account.PasswordSalt = hashResult.Salt
		account.PepperVersion = hashResult.PepperVersion
	}

	return account, nil
}

// Login authenticates a password-bearing account. Pending and rejected
// accounts cannot log in.
func (s *RegistrationService) Login(ctx context.Context, rawIdentifier, password string) (*models.Account, error) {
	normalized, kind := identifier.Classify(rawIdentifier)
	if kind == identifier.KindInvalid {
		return nil, ErrInvalidCredentials
	}

	account, err := s.accounts.GetByIdentifierHash(ctx, identifier.Hash(normalized))
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	if account == nil || account.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}

	match, err := s.hasher.VerifyPassword(password, &hashing.HashResult{
		Hash:          account.PasswordHash,
		Salt:          account.PasswordSalt,
		PepperVersion: account.PepperVersion,
		Algorithm:     "argon2id-v1",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}
	if !match {
		return nil, ErrInvalidCredentials
	}

	if account.Status != models.StatusActive {
		return nil, ErrAccountNotActive
	}

	if err := s.accounts.UpdateLastLogin(ctx, account.UserID); err != nil {
		util.Warn("Failed to record login time",
			zap.String("user_id", account.UserID.String()),
			zap.Error(err))
	}

	return account, nil
}

// GetProfile loads an account and, for pobladores, its survey record.
func (s *RegistrationService) GetProfile(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	account, err := s.accounts.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}

	profile := &Profile{Account: account}
	if account.UserType == models.UserTypePoblador && account.ProjectID != "" {
		record, err := s.residents.GetByUser(ctx, account.ProjectID, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to load survey record: %w", err)
		}
		profile.Resident = record
	}

	return profile, nil
}

// UpdateProfile applies a partial profile update: password for any account,
// company fields for empresas, survey answers for pobladores.
func (s *RegistrationService) UpdateProfile(ctx context.Context, userID uuid.UUID, req *UpdateProfileRequest) (*Profile, error) {
	account, err := s.accounts.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}

	if req.Password != "" {
		hashResult, err := s.hasher.HashPassword(req.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		if err := s.accounts.UpdatePassword(ctx, userID, hashResult.Hash, hashResult.Salt, hashResult.PepperVersion); err != nil {
			return nil, fmt.Errorf("failed to update password: %w", err)
		}
	}

	switch account.UserType {
	case models.UserTypeEmpresa:
		if req.CompanyRUC != "" && !rucPattern.MatchString(req.CompanyRUC) {
			return nil, fmt.Errorf("%w: company_ruc must be 11 digits", ErrInvalidInput)
		}
		name := valueOr(req.CompanyName, account.CompanyName)
		ruc := valueOr(req.CompanyRUC, account.CompanyRUC)
		projectID := valueOr(req.ProjectID, account.ProjectID)
		if name != account.CompanyName || ruc != account.CompanyRUC || projectID != account.ProjectID {
			if err := s.accounts.UpdateCompany(ctx, userID, name, ruc, projectID); err != nil {
				return nil, fmt.Errorf("failed to update company fields: %w", err)
			}
			account.CompanyName, account.CompanyRUC, account.ProjectID = name, ruc, projectID
			s.indexAccount(ctx, account)
		}

	case models.UserTypePoblador:
		if account.ProjectID == "" {
			break
		}
		record, err := s.residents.GetByUser(ctx, account.ProjectID, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to load survey record: %w", err)
		}
		if record == nil {
			record = &models.ResidentRecord{ProjectID: account.ProjectID, UserID: userID}
		}
		record.EducationLevel = valueOr(req.EducationLevel, record.EducationLevel)
		record.AgeRange = valueOr(req.AgeRange, record.AgeRange)
		record.EmploymentStatus = valueOr(req.EmploymentStatus, record.EmploymentStatus)
		record.KnowledgeLevel = valueOr(req.KnowledgeLevel, record.KnowledgeLevel)
		record.TrustLevel = valueOr(req.TrustLevel, record.TrustLevel)
		if req.Participation != nil {
			record.Participation = req.Participation
		}
		if err := s.residents.Save(ctx, record); err != nil {
			return nil, fmt.Errorf("failed to save survey record: %w", err)
		}
	}

	return s.GetProfile(ctx, userID)
}

// ListPendingCompanies returns empresa accounts awaiting admin review.
func (s *RegistrationService) ListPendingCompanies(ctx context.Context, limit int) ([]*models.Account, error) {
	if limit <= 0 {
		limit = 100
	}
	accounts, err := s.accounts.ListByStatus(ctx, models.UserTypeEmpresa, models.StatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending companies: %w", err)
	}
	return accounts, nil
}

// ApproveCompany moves a pending empresa account to active.
func (s *RegistrationService) ApproveCompany(ctx context.Context, userID uuid.UUID) (*models.Account, error) {
	account, err := s.loadCompanyForTransition(ctx, userID, models.StatusActive)
	if err != nil {
		return nil, err
	}

	if err := s.accounts.UpdateStatus(ctx, userID, models.StatusActive, ""); err != nil {
		return nil, fmt.Errorf("failed to approve company: %w", err)
	}
	account.Status = models.StatusActive
	account.RejectedReason = ""

	s.indexAccount(ctx, account)
	s.events.Publish(ctx, TopicAccountEvents, EventEmpresaApproved, userID.String(), map[string]interface{}{
		"user_id":      userID.String(),
		"company_name": account.CompanyName,
	})

	util.Info("Company approved", zap.String("user_id", userID.String()))
	return account, nil
}

// RejectCompany moves a pending empresa account to rejected with a reason.
func (s *RegistrationService) RejectCompany(ctx context.Context, userID uuid.UUID, reason string) (*models.Account, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, fmt.Errorf("%w: rejection reason is required", ErrInvalidInput)
	}

	account, err := s.loadCompanyForTransition(ctx, userID, models.StatusRejected)
	if err != nil {
		return nil, err
	}

	if err := s.accounts.UpdateStatus(ctx, userID, models.StatusRejected, reason); err != nil {
		return nil, fmt.Errorf("failed to reject company: %w", err)
	}
	account.Status = models.StatusRejected
	account.RejectedReason = reason

	s.indexAccount(ctx, account)
	s.events.Publish(ctx, TopicAccountEvents, EventEmpresaRejected, userID.String(), map[string]interface{}{
		"user_id":      userID.String(),
		"company_name": account.CompanyName,
		"reason":       reason,
	})

	util.Info("Company rejected",
		zap.String("user_id", userID.String()),
		zap.String("reason", reason))
	return account, nil
}

func (s *RegistrationService) loadCompanyForTransition(ctx context.Context, userID uuid.UUID, target models.AccountStatus) (*models.Account, error) {
	account, err := s.accounts.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	if account == nil || account.UserType != models.UserTypeEmpresa {
		return nil, ErrAccountNotFound
	}

	for _, allowed := range statusTransitions[account.Status] {
		if allowed == target {
			return account, nil
		}
	}
	return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, account.Status, target)
}

// SearchAccounts runs an admin query against the search index.
func (s *RegistrationService) SearchAccounts(ctx context.Context, query string, limit int) ([]search.AccountDocument, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is required", ErrInvalidInput)
	}
	if s.indexer == nil {
		return []search.AccountDocument{}, nil
	}
	return s.indexer.SearchAccounts(ctx, query, limit)
}

func (s *RegistrationService) indexAccount(ctx context.Context, account *models.Account) {
	if s.indexer == nil {
		return
	}
	if err := s.indexer.IndexAccount(ctx, account); err != nil {
		util.Warn("Failed to index account",
			zap.String("user_id", account.UserID.String()),
			zap.Error(err))
	}
}

func valueOr(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}
