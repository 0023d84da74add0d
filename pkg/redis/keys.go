package redis

import "strings"

const (
	keyNamespace    = "cp"
	sessionPrefix   = "session"
	revokedPrefix   = "sessions_revoked"
	rateLimitPrefix = "rate_limit"
	lockPrefix      = "lock"
)

// SessionKey is where a session record lives: cp:session:<id>.
func SessionKey(id string) string {
	return buildKey(sessionPrefix, id)
}

// SessionsRevokedKey holds the instant before which an account's sessions
// are void: cp:sessions_revoked:<account id>.
func SessionsRevokedKey(accountID string) string {
	return buildKey(revokedPrefix, accountID)
}

// RateLimitKey returns a namespaced key for rate limit counters.
func RateLimitKey(scope string) string {
	return buildKey(rateLimitPrefix, scope)
}

// LockKey returns a namespaced key for distributed locks.
func LockKey(name string) string {
	return buildKey(lockPrefix, name)
}

func buildKey(parts ...string) string {
	clean := []string{keyNamespace}
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		clean = append(clean, part)
	}
	return strings.Join(clean, ":")
}
