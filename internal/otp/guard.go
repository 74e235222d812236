package otp

import (
	"otp-guard/internal/config"

	"go.uber.org/zap"
)

// Guard owns the per-identity OTP state machine. It is safe for concurrent
// use; all shared state is in the Store.
type Guard struct {
	store    Store
	mailer   MailSender
	policy   config.OTPConfig
	logger   *zap.Logger
	generate func() (string, error)
}

func NewGuard(store Store, mailer MailSender, policy config.OTPConfig, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{
		store:    store,
		mailer:   mailer,
		policy:   policy,
		logger:   logger,
		generate: GenerateCode,
	}
}

// Policy returns the limits the guard enforces.
func (g *Guard) Policy() config.OTPConfig {
	return g.policy
}
