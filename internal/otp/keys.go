package otp

const (
	CodePrefix         = "otp:"
	CooldownPrefix     = "otp_cooldown:"
	RequestCountPrefix = "otp_request_count:"
	SpamLockPrefix     = "otp_spam_lock:"
	AttemptsPrefix     = "otp_attempts:"
	LockPrefix         = "otp_lock:"
)

// flagValue is what gets written for the boolean key families. Only the key's
// presence is ever read back.
const flagValue = "true"

func CodeKey(identity string) string         { return CodePrefix + identity }
func CooldownKey(identity string) string     { return CooldownPrefix + identity }
func RequestCountKey(identity string) string { return RequestCountPrefix + identity }
func SpamLockKey(identity string) string     { return SpamLockPrefix + identity }
func AttemptsKey(identity string) string     { return AttemptsPrefix + identity }
func LockKey(identity string) string         { return LockPrefix + identity }

// Prefixes lists every key family, in the order they are documented.
func Prefixes() []string {
	return []string{CodePrefix, CooldownPrefix, RequestCountPrefix, SpamLockPrefix, AttemptsPrefix, LockPrefix}
}
