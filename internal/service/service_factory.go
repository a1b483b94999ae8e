package service

import (
	"go.uber.org/zap"

	"comunidad-service/internal/config"
	"comunidad-service/internal/encryption"
	"comunidad-service/internal/hashing"
	"comunidad-service/internal/repository/scylla"
)

// ServiceFactory creates and caches service instances.
type ServiceFactory struct {
	otpStore      scylla.OTPStore
	accountStore  scylla.AccountStore
	residentStore scylla.ResidentStore
	projectStore  scylla.ProjectStore
	hasher        *hashing.Hasher
	encryptionMgr *encryption.Manager
	cache         OTPCache
	indexer       SearchIndexer
	metrics       MetricsSink
	events        *EventPublisher
	config        *config.Config
	logger        *zap.Logger

	otpService          *OTPService
	registrationService *RegistrationService
	indicatorService    *IndicatorService
}

func NewServiceFactory(
	otpStore scylla.OTPStore,
	accountStore scylla.AccountStore,
	residentStore scylla.ResidentStore,
	projectStore scylla.ProjectStore,
	hasher *hashing.Hasher,
	encryptionMgr *encryption.Manager,
	cache OTPCache,
	indexer SearchIndexer,
	metrics MetricsSink,
	events *EventPublisher,
	cfg *config.Config,
	logger *zap.Logger,
) *ServiceFactory {
	return &ServiceFactory{
		otpStore:      otpStore,
		accountStore:  accountStore,
		residentStore: residentStore,
		projectStore:  projectStore,
		hasher:        hasher,
		encryptionMgr: encryptionMgr,
		cache:         cache,
		indexer:       indexer,
		metrics:       metrics,
		events:        events,
		config:        cfg,
		logger:        logger,
	}
}

// OTPService returns the verification service instance (singleton).
func (f *ServiceFactory) OTPService() *OTPService {
	if f.otpService == nil {
		f.otpService = NewOTPService(
			f.otpStore,
			f.accountStore,
			f.hasher,
			f.cache,
			f.events,
			f.config,
			f.logger,
		)
	}
	return f.otpService
}

// RegistrationService returns the account service instance (singleton).
func (f *ServiceFactory) RegistrationService() *RegistrationService {
	if f.registrationService == nil {
		f.registrationService = NewRegistrationService(
			f.accountStore,
			f.residentStore,
			f.projectStore,
			f.otpStore,
			f.hasher,
			f.encryptionMgr,
			f.indexer,
			f.events,
			f.config,
			f.logger,
		)
	}
	return f.registrationService
}

// IndicatorService returns the dashboard service instance (singleton).
func (f *ServiceFactory) IndicatorService() *IndicatorService {
	if f.indicatorService == nil {
		f.indicatorService = NewIndicatorService(
			f.projectStore,
			f.residentStore,
			f.metrics,
			f.logger,
		)
	}
	return f.indicatorService
}

// Cleanup releases per-service resources.
func (f *ServiceFactory) Cleanup() {
	if f.encryptionMgr != nil {
		f.encryptionMgr.ClearCache()
	}
}
