package service

import (
	"sync"

	"go.uber.org/zap"

	"otp-guard/internal/events"
	"otp-guard/internal/otp"
	redisrepo "otp-guard/internal/repository/redis"
)

// ServiceFactory creates and caches the service instances.
type ServiceFactory struct {
	guard        *otp.Guard
	cache        *redisrepo.OTPCache
	recorder     events.Recorder
	eventFactory *events.Factory
	history      events.HistoryReader
	logger       *zap.Logger

	authOnce     sync.Once
	authService  *AuthService
	adminOnce    sync.Once
	adminService *AdminService
}

func NewServiceFactory(
	guard *otp.Guard,
	cache *redisrepo.OTPCache,
	recorder events.Recorder,
	eventFactory *events.Factory,
	logger *zap.Logger,
) *ServiceFactory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ServiceFactory{
		guard:        guard,
		cache:        cache,
		recorder:     recorder,
		eventFactory: eventFactory,
		logger:       logger,
	}
}

// WithHistory lets the admin service read security events back. Call it
// before AdminService.
func (f *ServiceFactory) WithHistory(history events.HistoryReader) *ServiceFactory {
	f.history = history
	return f
}

func (f *ServiceFactory) AuthService() *AuthService {
	f.authOnce.Do(func() {
		f.authService = NewAuthService(f.guard, f.recorder, f.eventFactory, f.logger.Named("auth"))
	})
	return f.authService
}

func (f *ServiceFactory) AdminService() *AdminService {
	f.adminOnce.Do(func() {
		f.adminService = NewAdminService(f.cache, f.recorder, f.eventFactory, f.logger.Named("admin"))
		f.adminService.history = f.history
	})
	return f.adminService
}
