// Package idempotency implements C6: the request-fingerprint dedup
// cache of spec §4.6, guarding any money-moving endpoint against
// double-submission.
package idempotency

import (
	"crypto/sha256"
	"fmt"

	"github.com/google/uuid"
)

// fingerprintLength is spec §4.6's "16-char SHA-256 request-fingerprint".
const fingerprintLength = 16

// Fingerprint derives the request fingerprint from method+path+body+user,
// truncated to fingerprintLength hex characters per spec §4.6.
func Fingerprint(method, path string, body []byte, userID uuid.UUID) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte(path))
	h.Write(body)
	h.Write([]byte(userID.String()))

	return fmt.Sprintf("%x", h.Sum(nil))[:fingerprintLength]
}

// Key builds the cache key of spec §4.6: idempotency:{user_id}:{key}.
func Key(userID uuid.UUID, clientKey string) string {
	return fmt.Sprintf("idempotency:%s:%s", userID, clientKey)
}
