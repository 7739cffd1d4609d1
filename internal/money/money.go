// Package money implements integer minor-unit arithmetic. Per spec §9,
// all money is a 64-bit signed integer minor unit; no floating point
// ever touches a balance. Addition/subtraction are overflow-checked —
// it would take more than 9×10¹⁸ minor units (about 9×10¹⁶ IDR) to
// overflow, but the guard stays.
package money

import (
	"errors"
	"math"
)

// ErrOverflow is returned by Add/Sub when the result would overflow an
// int64.
var ErrOverflow = errors.New("money: amount overflow")

// ErrNegative is returned when an operation would produce, or was
// given, a negative minor-unit amount where one is not allowed.
var ErrNegative = errors.New("money: amount must not be negative")

// Minor is an amount of money expressed in the smallest currency unit
// (e.g. 1 IDR = 100 minor, matching spec §3).
type Minor int64

// Add returns a+b, failing on overflow.
func Add(a, b Minor) (Minor, error) {
	if b > 0 && a > math.MaxInt64-b {
		return 0, ErrOverflow
	}

	if b < 0 && a < math.MinInt64-b {
		return 0, ErrOverflow
	}

	return a + b, nil
}

// Sub returns a-b, failing on overflow.
func Sub(a, b Minor) (Minor, error) {
	return Add(a, -b)
}

// IsPositive reports whether m is a valid positive amount, per spec B1
// (amount = 0 → INVALID_AMOUNT).
func (m Minor) IsPositive() bool {
	return m > 0
}

// Int64 returns the underlying int64 value.
func (m Minor) Int64() int64 { return int64(m) }
