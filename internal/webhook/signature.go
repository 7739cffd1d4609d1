// Package webhook implements C5: inbound provider-callback ingestion
// with signature verification, forensic persistence, idempotent
// status mapping, and the C3/C4 drive-through of spec §4.5.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"fmt"
)

// VerifyMidtrans checks the Midtrans signature rule of spec §4.5:
// SHA512(order_id || status_code || gross_amount || server_key)
// compared against signatureKey via constant-time equality.
func VerifyMidtrans(orderID, statusCode, grossAmount, serverKey, signatureKey string) bool {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	computed := fmt.Sprintf("%x", sum)

	return subtle.ConstantTimeCompare([]byte(computed), []byte(signatureKey)) == 1
}

// VerifyHMACSHA256 checks a generic provider's HMAC-SHA256 signature
// over the raw request body against a shared secret, used for
// providers that are not Midtrans (spec §4.5's "per provider rule").
func VerifyHMACSHA256(body []byte, secret, signatureHeader string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	computed := fmt.Sprintf("%x", mac.Sum(nil))

	return subtle.ConstantTimeCompare([]byte(computed), []byte(signatureHeader)) == 1
}
