// Package otp gates one-time-code issuance and verification for an identity
// (an email address).
//
// All state lives in an expiring key-value store under six key families, one
// per concern:
//
//	otp:<identity>                 current code            (code TTL)
//	otp_cooldown:<identity>        just-issued flag        (cooldown TTL)
//	otp_request_count:<identity>   requests in the window  (request window)
//	otp_spam_lock:<identity>       too many requests       (spam lock TTL)
//	otp_attempts:<identity>        failed verifications    (attempts TTL)
//	otp_lock:<identity>            too many failures       (lock TTL)
//
// A missing counter key means zero. Expiry is left entirely to the store.
//
// Callers sequence the Guard themselves: CheckRestriction, then TrackRequest,
// then IssueOTP when a code is requested; VerifyOTP when one is submitted.
package otp
