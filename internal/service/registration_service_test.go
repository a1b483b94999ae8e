package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"comunidad-service/internal/encryption"
	"comunidad-service/internal/hashing"
	"comunidad-service/internal/identifier"
	"comunidad-service/internal/models"
)

type registrationFixture struct {
	service   *RegistrationService
	accounts  *fakeAccountStore
	residents *fakeResidentStore
	projects  *fakeProjectStore
	otpStore  *fakeOTPStore
	indexer   *fakeIndexer
}

func newRegistrationFixture(t *testing.T) *registrationFixture {
	t.Helper()
	cfg := testConfig()
	accounts := newFakeAccountStore()
	residents := newFakeResidentStore()
	projects := &fakeProjectStore{}
	otpStore := &fakeOTPStore{}
	indexer := newFakeIndexer()

	svc := NewRegistrationService(
		accounts, residents, projects, otpStore,
		hashing.NewHasher(cfg),
		encryption.NewManager(cfg, nil),
		indexer, nil, cfg, zap.NewNop(),
	)

	return &registrationFixture{
		service:   svc,
		accounts:  accounts,
		residents: residents,
		projects:  projects,
		otpStore:  otpStore,
		indexer:   indexer,
	}
}

func (f *registrationFixture) markVerified(t *testing.T, rawIdentifier string) {
	t.Helper()
	normalized, kind := identifier.Classify(rawIdentifier)
	require.NotEqual(t, identifier.KindInvalid, kind)
	require.NoError(t, f.otpStore.CreateChallenge(context.Background(), &models.OTPChallenge{
		IdentifierHash: identifier.Hash(normalized),
		Channel:        models.Channel(kind),
		Verified:       true,
		ExpiresAt:      time.Now().UTC().Add(5 * time.Minute),
	}))
}

func pobladorRequest() *PobladorRegistrationRequest {
	return &PobladorRegistrationRequest{
		Identifier:       "912345678",
		ProjectID:        "las-bambas",
		EducationLevel:   "secundaria",
		AgeRange:         "26-35",
		EmploymentStatus: "formal",
		KnowledgeLevel:   "medio",
		TrustLevel:       "medio",
		Participation:    []string{"talleres"},
	}
}

func empresaRequest() *EmpresaRegistrationRequest {
	return &EmpresaRegistrationRequest{
		Identifier:  "contacto@minera.com",
		Password:    "s3cret-pass",
		CompanyName: "Minera Andina SAC",
		CompanyRUC:  "20123456789",
		ProjectID:   "las-bambas",
		ProjectName: "Las Bambas",
	}
}

func TestRegisterPobladorRequiresVerification(t *testing.T) {
	f := newRegistrationFixture(t)

	_, err := f.service.RegisterPoblador(context.Background(), pobladorRequest())
	assert.ErrorIs(t, err, ErrVerificationRequired)
}

func TestRegisterPobladorHappyPath(t *testing.T) {
	f := newRegistrationFixture(t)
	ctx := context.Background()
	f.markVerified(t, "912345678")

	account, err := f.service.RegisterPoblador(ctx, pobladorRequest())
	require.NoError(t, err)
	assert.Equal(t, models.UserTypePoblador, account.UserType)
	assert.Equal(t, models.StatusActive, account.Status)
	assert.Equal(t, models.ChannelPhone, account.Channel)
	assert.Equal(t, identifier.Hash("912345678"), account.IdentifierHash)
	assert.NotEmpty(t, account.IdentifierEncrypted)

	record, err := f.residents.GetByUser(ctx, "las-bambas", account.UserID)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "secundaria", record.EducationLevel)
	assert.Equal(t, []string{"talleres"}, record.Participation)

	assert.Contains(t, f.indexer.docs, account.UserID.String())
}

func TestRegisterPobladorDuplicate(t *testing.T) {
	f := newRegistrationFixture(t)
	ctx := context.Background()
	f.markVerified(t, "912345678")

	_, err := f.service.RegisterPoblador(ctx, pobladorRequest())
	require.NoError(t, err)

	f.markVerified(t, "912345678")
	_, err = f.service.RegisterPoblador(ctx, pobladorRequest())
	assert.ErrorIs(t, err, ErrAccountExists)
}

func TestRegisterPobladorStaleVerification(t *testing.T) {
	f := newRegistrationFixture(t)

	// Verified outside the acceptance window
	require.NoError(t, f.otpStore.CreateChallenge(context.Background(), &models.OTPChallenge{
		IdentifierHash: identifier.Hash("912345678"),
		Channel:        models.ChannelPhone,
		Verified:       true,
		CreatedAt:      time.Now().UTC().Add(-time.Hour),
	}))

	_, err := f.service.RegisterPoblador(context.Background(), pobladorRequest())
	assert.ErrorIs(t, err, ErrVerificationRequired)
}

func TestRegisterEmpresaPendingAndEnrollsProject(t *testing.T) {
	f := newRegistrationFixture(t)
	ctx := context.Background()
	f.markVerified(t, "contacto@minera.com")

	account, err := f.service.RegisterEmpresa(ctx, empresaRequest())
	require.NoError(t, err)
	assert.Equal(t, models.UserTypeEmpresa, account.UserType)
	assert.Equal(t, models.StatusPending, account.Status)
	assert.Equal(t, "Minera Andina SAC", account.CompanyName)

	projects, err := f.projects.List(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "las-bambas", projects[0].ProjectID)
	assert.Equal(t, "Las Bambas", projects[0].Name)
}

func TestRegisterEmpresaValidation(t *testing.T) {
	f := newRegistrationFixture(t)
	ctx := context.Background()
	f.markVerified(t, "contacto@minera.com")

	tests := []struct {
		name   string
		mutate func(*EmpresaRegistrationRequest)
	}{
		{"short ruc", func(r *EmpresaRegistrationRequest) { r.CompanyRUC = "123" }},
		{"non-numeric ruc", func(r *EmpresaRegistrationRequest) { r.CompanyRUC = "2012345678a" }},
		{"missing name", func(r *EmpresaRegistrationRequest) { r.CompanyName = "  " }},
		{"missing password", func(r *EmpresaRegistrationRequest) { r.Password = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := empresaRequest()
			tt.mutate(req)
			_, err := f.service.RegisterEmpresa(ctx, req)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestLogin(t *testing.T) {
	f := newRegistrationFixture(t)
	ctx := context.Background()
	f.markVerified(t, "contacto@minera.com")

	account, err := f.service.RegisterEmpresa(ctx, empresaRequest())
	require.NoError(t, err)

	// Pending accounts cannot log in even with the right password
	_, err = f.service.Login(ctx, "contacto@minera.com", "s3cret-pass")
	assert.ErrorIs(t, err, ErrAccountNotActive)

	_, err = f.service.ApproveCompany(ctx, account.UserID)
	require.NoError(t, err)

	logged, err := f.service.Login(ctx, "Contacto@Minera.com", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, account.UserID, logged.UserID)

	stored, err := f.accounts.GetByID(ctx, account.UserID)
	require.NoError(t, err)
	assert.False(t, stored.LastLogin.IsZero())

	_, err = f.service.Login(ctx, "contacto@minera.com", "wrong-pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = f.service.Login(ctx, "nobody@minera.com", "s3cret-pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestApprovalFlow(t *testing.T) {
	f := newRegistrationFixture(t)
	ctx := context.Background()
	f.markVerified(t, "contacto@minera.com")

	account, err := f.service.RegisterEmpresa(ctx, empresaRequest())
	require.NoError(t, err)

	pending, err := f.service.ListPendingCompanies(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	approved, err := f.service.ApproveCompany(ctx, account.UserID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, approved.Status)

	// Active accounts cannot be approved or rejected again
	_, err = f.service.ApproveCompany(ctx, account.UserID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = f.service.RejectCompany(ctx, account.UserID, "late paperwork")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRejectCompany(t *testing.T) {
	f := newRegistrationFixture(t)
	ctx := context.Background()
	f.markVerified(t, "contacto@minera.com")

	account, err := f.service.RegisterEmpresa(ctx, empresaRequest())
	require.NoError(t, err)

	_, err = f.service.RejectCompany(ctx, account.UserID, "  ")
	assert.ErrorIs(t, err, ErrInvalidInput)

	rejected, err := f.service.RejectCompany(ctx, account.UserID, "invalid RUC registration")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, rejected.Status)
	assert.Equal(t, "invalid RUC registration", rejected.RejectedReason)

	// Rejected companies cannot be approved directly
	_, err = f.service.ApproveCompany(ctx, account.UserID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestApproveUnknownOrPobladorAccount(t *testing.T) {
	f := newRegistrationFixture(t)
	ctx := context.Background()

	f.markVerified(t, "912345678")
	poblador, err := f.service.RegisterPoblador(ctx, pobladorRequest())
	require.NoError(t, err)

	_, err = f.service.ApproveCompany(ctx, poblador.UserID)
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestGetAndUpdateProfile(t *testing.T) {
	f := newRegistrationFixture(t)
	ctx := context.Background()
	f.markVerified(t, "912345678")

	account, err := f.service.RegisterPoblador(ctx, pobladorRequest())
	require.NoError(t, err)

	profile, err := f.service.GetProfile(ctx, account.UserID)
	require.NoError(t, err)
	require.NotNil(t, profile.Resident)
	assert.Equal(t, "medio", profile.Resident.TrustLevel)

	updated, err := f.service.UpdateProfile(ctx, account.UserID, &UpdateProfileRequest{
		TrustLevel:    "alto",
		Participation: []string{"talleres", "asambleas"},
	})
	require.NoError(t, err)
	assert.Equal(t, "alto", updated.Resident.TrustLevel)
	assert.Equal(t, []string{"talleres", "asambleas"}, updated.Resident.Participation)
	// Untouched fields survive the partial update
	assert.Equal(t, "secundaria", updated.Resident.EducationLevel)
}

func TestSearchAccounts(t *testing.T) {
	f := newRegistrationFixture(t)
	ctx := context.Background()
	f.markVerified(t, "contacto@minera.com")

	_, err := f.service.RegisterEmpresa(ctx, empresaRequest())
	require.NoError(t, err)

	_, err = f.service.SearchAccounts(ctx, "  ", 10)
	assert.ErrorIs(t, err, ErrInvalidInput)

	docs, err := f.service.SearchAccounts(ctx, "Minera Andina SAC", 10)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "20123456789", docs[0].CompanyRUC)
}
