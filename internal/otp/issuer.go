package otp

import (
	"context"
	"net/http"

	"otp-guard/internal/util"
)

// IssueOTP generates a code, mails it, and only then stores it together with
// the cooldown flag. A failed send leaves the store untouched.
//
// IssueOTP does not gate; run CheckRestriction and TrackRequest first.
func (g *Guard) IssueOTP(ctx context.Context, displayName, identity, templateID string) error {
	code, err := g.generate()
	if err != nil {
		return err
	}

	data := map[string]interface{}{
		"name": displayName,
		"otp":  code,
	}
	if err := g.mailer.Send(ctx, identity, g.policy.MailSubject, templateID, data); err != nil {
		g.logger.Error("OTP mail dispatch failed",
			util.Identity(identity),
			util.String("template", templateID),
			util.ErrorField(err),
		)
		return &ValidationError{
			Kind:    ErrDeliveryFailed,
			Message: "Failed to send OTP email! Please try again later",
			Status:  http.StatusBadGateway,
			cause:   err,
		}
	}

	if err := g.store.Set(ctx, CodeKey(identity), code, g.policy.CodeTTL); err != nil {
		return storeError("store code", err)
	}
	if err := g.store.Set(ctx, CooldownKey(identity), flagValue, g.policy.CooldownTTL); err != nil {
		return storeError("set cooldown", err)
	}

	g.logger.Info("OTP issued",
		util.Identity(identity),
		util.String("template", templateID),
		util.Duration("ttl", g.policy.CodeTTL),
	)
	return nil
}
