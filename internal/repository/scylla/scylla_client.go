package scylla

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"comunidad-service/internal/config"
	"comunidad-service/internal/util"
)

// PreparedStatements holds the statements used by the repositories. LWT
// conditional updates are built per-call because their bind values vary.
type PreparedStatements struct {
	CreateChallenge      *gocql.Query
	ChallengesByHash     *gocql.Query
	CountChallengesSince *gocql.Query

	CreateAccount          *gocql.Query
	CreateIdentifierLookup *gocql.Query
	GetAccountByID         *gocql.Query
	GetIdentifierLookup    *gocql.Query
	UpdateAccountStatus    *gocql.Query
	UpdateAccountCompany   *gocql.Query
	UpdateAccountPassword  *gocql.Query
	UpdateLastLogin        *gocql.Query

	CreateResident     *gocql.Query
	ResidentsByProject *gocql.Query
	ResidentByUser     *gocql.Query

	CreateProject *gocql.Query
	ListProjects  *gocql.Query
}

type ScyllaClient struct {
	Session      *gocql.Session
	config       *config.ScyllaConfig
	Prepared     *PreparedStatements
	prepareMutex sync.RWMutex
	isPrepared   bool
}

func NewScyllaClient(cfg *config.Config, logger *zap.Logger) (*ScyllaClient, error) {
	scyllaConfig := cfg.Scylla

	cluster := gocql.NewCluster(scyllaConfig.Nodes...)
	cluster.Keyspace = scyllaConfig.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 4
	cluster.SocketKeepalive = 30 * time.Second
	cluster.MaxPreparedStmts = 1000
	cluster.MaxRoutingKeyInfo = 1000
	cluster.PageSize = 1000
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        time.Second,
		Max:        10 * time.Second,
		NumRetries: 3,
	}

	if !cfg.IsDevelopment() {
		cluster.SslOpts = &gocql.SslOptions{
			CaPath:                 "/root/certs/ca.pem",
			CertPath:               "/root/certs/server.pem",
			KeyPath:                "/root/certs/server.key",
			EnableHostVerification: true,
		}
	}

	if scyllaConfig.Username != "" && scyllaConfig.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: scyllaConfig.Username,
			Password: scyllaConfig.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylla session: %w", err)
	}

	client := &ScyllaClient{
		Session: session,
		config:  &scyllaConfig,
	}

	if err := client.prepareStatements(); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	util.Info("ScyllaDB client initialized with prepared statements",
		zap.Strings("nodes", scyllaConfig.Nodes),
		zap.String("keyspace", scyllaConfig.Keyspace))

	return client, nil
}

func (s *ScyllaClient) prepareStatements() error {
	s.prepareMutex.Lock()
	defer s.prepareMutex.Unlock()

	if s.isPrepared {
		return nil
	}

	prepared := &PreparedStatements{}

	prepared.CreateChallenge = s.Session.Query(`
        INSERT INTO otp_challenges (
            identifier_hash, created_at, challenge_id, channel, code_hash,
            code_salt, pepper_version, algorithm, expires_at, attempts, verified
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	prepared.ChallengesByHash = s.Session.Query(`
        SELECT identifier_hash, created_at, challenge_id, channel, code_hash,
            code_salt, pepper_version, algorithm, expires_at, attempts, verified
        FROM otp_challenges WHERE identifier_hash = ? LIMIT ?`)

	prepared.CountChallengesSince = s.Session.Query(`
        SELECT COUNT(*) FROM otp_challenges
        WHERE identifier_hash = ? AND created_at >= ?`)

	prepared.CreateAccount = s.Session.Query(`
        INSERT INTO accounts (
            user_bucket, user_id, identifier_hash, identifier_encrypted,
            identifier_dek, identifier_key_id, channel, user_type, status,
            password_hash, password_salt, pepper_version, company_name,
            company_ruc, project_id, rejected_reason, created_at, updated_at,
            approved_at, last_login
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	prepared.CreateIdentifierLookup = s.Session.Query(`
        INSERT INTO identifier_to_user (identifier_hash, user_bucket, user_id, created_at)
        VALUES (?, ?, ?, ?)`)

	prepared.GetAccountByID = s.Session.Query(`
        SELECT user_bucket, user_id, identifier_hash, identifier_encrypted,
            identifier_dek, identifier_key_id, channel, user_type, status,
            password_hash, password_salt, pepper_version, company_name,
            company_ruc, project_id, rejected_reason, created_at, updated_at,
            approved_at, last_login
        FROM accounts WHERE user_bucket = ? AND user_id = ?`)

	prepared.GetIdentifierLookup = s.Session.Query(`
        SELECT user_bucket, user_id FROM identifier_to_user WHERE identifier_hash = ?`)

	prepared.UpdateAccountStatus = s.Session.Query(`
        UPDATE accounts SET status = ?, rejected_reason = ?, approved_at = ?, updated_at = ?
        WHERE user_bucket = ? AND user_id = ?`)

	prepared.UpdateAccountCompany = s.Session.Query(`
        UPDATE accounts SET company_name = ?, company_ruc = ?, project_id = ?, updated_at = ?
        WHERE user_bucket = ? AND user_id = ?`)

	prepared.UpdateAccountPassword = s.Session.Query(`
        UPDATE accounts SET password_hash = ?, password_salt = ?, pepper_version = ?, updated_at = ?
        WHERE user_bucket = ? AND user_id = ?`)

	prepared.UpdateLastLogin = s.Session.Query(`
        UPDATE accounts SET last_login = ? WHERE user_bucket = ? AND user_id = ?`)

	prepared.CreateResident = s.Session.Query(`
        INSERT INTO residents (
            project_id, user_id, education_level, age_range, employment_status,
            knowledge_level, trust_level, participation, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	prepared.ResidentsByProject = s.Session.Query(`
        SELECT project_id, user_id, education_level, age_range, employment_status,
            knowledge_level, trust_level, participation, created_at, updated_at
        FROM residents WHERE project_id = ?`)

	prepared.ResidentByUser = s.Session.Query(`
        SELECT project_id, user_id, education_level, age_range, employment_status,
            knowledge_level, trust_level, participation, created_at, updated_at
        FROM residents WHERE project_id = ? AND user_id = ?`)

	prepared.CreateProject = s.Session.Query(`
        INSERT INTO projects (project_id, name, created_at) VALUES (?, ?, ?)`)

	prepared.ListProjects = s.Session.Query(`
        SELECT project_id, name, created_at FROM projects`)

	s.Prepared = prepared
	s.isPrepared = true

	util.Info("ScyllaDB prepared statements created successfully")
	return nil
}

func (s *ScyllaClient) Close() {
	if s.Session != nil {
		s.Session.Close()
		util.Info("ScyllaDB client closed")
	}
}

func (s *ScyllaClient) Query(stmt string, values ...interface{}) *gocql.Query {
	return s.Session.Query(stmt, values...)
}

func (s *ScyllaClient) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var clusterName string
	err := s.Session.Query(`SELECT cluster_name FROM system.local`).WithContext(ctx).Scan(&clusterName)
	if err != nil {
		return fmt.Errorf("scylla health check failed: %w", err)
	}

	util.Debug("ScyllaDB health check passed", zap.String("cluster_name", clusterName))
	return nil
}

func (s *ScyllaClient) ExecuteWithRetry(query *gocql.Query, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if err := query.Exec(); err != nil {
			lastErr = err
			if i < maxRetries {
				time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
				continue
			}
		} else {
			return nil
		}
	}
	return lastErr
}

func (s *ScyllaClient) ScanWithRetry(query *gocql.Query, dest ...interface{}) error {
	var lastErr error
	for i := 0; i < 3; i++ {
		if err := query.Scan(dest...); err != nil {
			lastErr = err
			if i < 2 {
				time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
				continue
			}
		} else {
			return nil
		}
	}
	return lastErr
}
