package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"comunidad-service/internal/bucketing"
	"comunidad-service/internal/models"
	"comunidad-service/internal/util"
)

// AccountRepository persists accounts in a bucketed partition layout plus an
// identifier_to_user lookup table for hash-based resolution.
type AccountRepository struct {
	client    *ScyllaClient
	bucketing *bucketing.Manager
}

func NewAccountRepository(client *ScyllaClient, bucketingMgr *bucketing.Manager) *AccountRepository {
	return &AccountRepository{
		client:    client,
		bucketing: bucketingMgr,
	}
}

func (r *AccountRepository) Create(ctx context.Context, account *models.Account) error {
	if account.UserID == uuid.Nil {
		account.UserID = uuid.New()
	}

	now := time.Now().UTC()
	account.UserBucket = r.bucketing.UserBucket(account.UserID)
	account.CreatedAt = now
	account.UpdatedAt = now

	query := r.client.Prepared.CreateAccount.WithContext(ctx).Bind(
		account.UserBucket, account.UserID, account.IdentifierHash,
		account.IdentifierEncrypted, account.IdentifierDEK, account.IdentifierKeyID,
		string(account.Channel), string(account.UserType), string(account.Status),
		account.PasswordHash, account.PasswordSalt, account.PepperVersion,
		account.CompanyName, account.CompanyRUC, account.ProjectID,
		account.RejectedReason, account.CreatedAt, account.UpdatedAt,
		account.ApprovedAt, account.LastLogin)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to create account",
			zap.String("user_id", account.UserID.String()),
			zap.Error(err))
		return fmt.Errorf("failed to create account: %w", err)
	}

	lookup := r.client.Prepared.CreateIdentifierLookup.WithContext(ctx).Bind(
		account.IdentifierHash, account.UserBucket, account.UserID, account.CreatedAt)

	if err := r.client.ExecuteWithRetry(lookup, 2); err != nil {
		util.Error("Failed to create identifier lookup",
			zap.String("user_id", account.UserID.String()),
			zap.Error(err))
		return fmt.Errorf("failed to create identifier lookup: %w", err)
	}

	util.Info("Account created",
		zap.String("user_id", account.UserID.String()),
		zap.String("user_type", string(account.UserType)),
		zap.String("status", string(account.Status)))

	return nil
}

func (r *AccountRepository) GetByID(ctx context.Context, userID uuid.UUID) (*models.Account, error) {
	bucket := r.bucketing.UserBucket(userID)
	query := r.client.Prepared.GetAccountByID.WithContext(ctx).Bind(bucket, userID)

	account, err := r.scanAccount(query)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, nil
		}
		util.Error("Failed to get account by ID",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return account, nil
}

func (r *AccountRepository) GetByIdentifierHash(ctx context.Context, identifierHash string) (*models.Account, error) {
	var bucket int
	var userID uuid.UUID

	lookup := r.client.Prepared.GetIdentifierLookup.WithContext(ctx).Bind(identifierHash)
	if err := r.client.ScanWithRetry(lookup, &bucket, &userID); err != nil {
		if err == gocql.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to resolve identifier: %w", err)
	}

	query := r.client.Prepared.GetAccountByID.WithContext(ctx).Bind(bucket, userID)
	account, err := r.scanAccount(query)
	if err != nil {
		if err == gocql.ErrNotFound {
			// Lookup row without account row: treat as absent
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return account, nil
}

func (r *AccountRepository) UpdateStatus(ctx context.Context, userID uuid.UUID, status models.AccountStatus, reason string) error {
	bucket := r.bucketing.UserBucket(userID)
	now := time.Now().UTC()

	var approvedAt time.Time
	if status == models.StatusActive {
		approvedAt = now
	}

	query := r.client.Prepared.UpdateAccountStatus.WithContext(ctx).Bind(
		string(status), reason, approvedAt, now, bucket, userID)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to update account status",
			zap.String("user_id", userID.String()),
			zap.String("status", string(status)),
			zap.Error(err))
		return fmt.Errorf("failed to update account status: %w", err)
	}

	util.Info("Account status updated",
		zap.String("user_id", userID.String()),
		zap.String("status", string(status)))

	return nil
}

func (r *AccountRepository) UpdateCompany(ctx context.Context, userID uuid.UUID, name, ruc, projectID string) error {
	bucket := r.bucketing.UserBucket(userID)
	query := r.client.Prepared.UpdateAccountCompany.WithContext(ctx).Bind(
		name, ruc, projectID, time.Now().UTC(), bucket, userID)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		return fmt.Errorf("failed to update company fields: %w", err)
	}
	return nil
}

func (r *AccountRepository) UpdatePassword(ctx context.Context, userID uuid.UUID, hash, salt string, pepperVersion int) error {
	bucket := r.bucketing.UserBucket(userID)
	query := r.client.Prepared.UpdateAccountPassword.WithContext(ctx).Bind(
		hash, salt, pepperVersion, time.Now().UTC(), bucket, userID)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return nil
}

func (r *AccountRepository) UpdateLastLogin(ctx context.Context, userID uuid.UUID) error {
	bucket := r.bucketing.UserBucket(userID)
	query := r.client.Prepared.UpdateLastLogin.WithContext(ctx).Bind(
		time.Now().UTC(), bucket, userID)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

// ListByStatus scans accounts by type and status. Admin-facing listing only;
// the filtered scan is acceptable at this cardinality.
func (r *AccountRepository) ListByStatus(ctx context.Context, userType models.UserType, status models.AccountStatus, limit int) ([]*models.Account, error) {
	iter := r.client.Session.Query(`
        SELECT user_bucket, user_id, identifier_hash, identifier_encrypted,
            identifier_dek, identifier_key_id, channel, user_type, status,
            password_hash, password_salt, pepper_version, company_name,
            company_ruc, project_id, rejected_reason, created_at, updated_at,
            approved_at, last_login
        FROM accounts WHERE user_type = ? AND status = ? LIMIT ? ALLOW FILTERING`,
		string(userType), string(status), limit).
		WithContext(ctx).Iter()

	var accounts []*models.Account
	for {
		account := &models.Account{}
		var channel, uType, st string
		if !iter.Scan(&account.UserBucket, &account.UserID, &account.IdentifierHash,
			&account.IdentifierEncrypted, &account.IdentifierDEK, &account.IdentifierKeyID,
			&channel, &uType, &st,
			&account.PasswordHash, &account.PasswordSalt, &account.PepperVersion,
			&account.CompanyName, &account.CompanyRUC, &account.ProjectID,
			&account.RejectedReason, &account.CreatedAt, &account.UpdatedAt,
			&account.ApprovedAt, &account.LastLogin) {
			break
		}
		account.Channel = models.Channel(channel)
		account.UserType = models.UserType(uType)
		account.Status = models.AccountStatus(st)
		accounts = append(accounts, account)
	}

	if err := iter.Close(); err != nil {
		util.Error("Failed to list accounts by status",
			zap.String("user_type", string(userType)),
			zap.String("status", string(status)),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	return accounts, nil
}

func (r *AccountRepository) scanAccount(query *gocql.Query) (*models.Account, error) {
	account := &models.Account{}
	var channel, userType, status string

	err := r.client.ScanWithRetry(query,
		&account.UserBucket, &account.UserID, &account.IdentifierHash,
		&account.IdentifierEncrypted, &account.IdentifierDEK, &account.IdentifierKeyID,
		&channel, &userType, &status,
		&account.PasswordHash, &account.PasswordSalt, &account.PepperVersion,
		&account.CompanyName, &account.CompanyRUC, &account.ProjectID,
		&account.RejectedReason, &account.CreatedAt, &account.UpdatedAt,
		&account.ApprovedAt, &account.LastLogin)
	if err != nil {
		return nil, err
	}

	account.Channel = models.Channel(channel)
	account.UserType = models.UserType(userType)
	account.Status = models.AccountStatus(status)
	return account, nil
}
