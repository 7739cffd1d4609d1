// Package mfa implements the step-based one-time-code check gating C4's
// dual-admin approval endpoint (spec §6's "Auth, MFA" header pair). No
// library in the retrieved corpus covers RFC 6238 TOTP, so this is one
// of the few places the implementation reaches for crypto/hmac
// directly rather than a third-party package — see DESIGN.md.
package mfa

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"time"
)

// step is RFC 6238's default 30-second window.
const step = 30 * time.Second

// skew tolerates clock drift by also accepting the adjacent window on
// either side.
const skew = 1

// Code derives the 6-digit code for approverID at time t, keyed by the
// process-wide MFA_ENCRYPTION_KEY.
func Code(key string, approverID string, t time.Time) string {
	return deriveCode(key, approverID, counterAt(t))
}

// Verify reports whether code matches approverID's code at t, within
// one step of clock skew either side.
func Verify(key, approverID, code string, t time.Time) bool {
	counter := counterAt(t)

	for offset := -skew; offset <= skew; offset++ {
		candidate := deriveCode(key, approverID, counter+int64(offset))
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(code)) == 1 {
			return true
		}
	}

	return false
}

func counterAt(t time.Time) int64 {
	return t.Unix() / int64(step.Seconds())
}

func deriveCode(key, approverID string, counter int64) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(approverID))

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(counter))
	mac.Write(buf[:])

	sum := mac.Sum(nil)
	truncated := binary.BigEndian.Uint32(sum[len(sum)-4:]) & 0x7fffffff

	return fmt.Sprintf("%06d", truncated%1_000_000)
}
