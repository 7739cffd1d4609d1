package domain

import (
	"time"

	"github.com/google/uuid"
)

// KYCTier is the identity verification level of a user.
type KYCTier string

const (
	KYCNone     KYCTier = "NONE"
	KYCPending  KYCTier = "PENDING"
	KYCVerified KYCTier = "VERIFIED"
)

// User is the identity record backing a Wallet.
type User struct {
	ID              uuid.UUID  `json:"id"`
	Email           string     `json:"email"`
	Phone           string     `json:"phone"`
	KYCTier         KYCTier    `json:"kycTier"`
	IsAdmin         bool       `json:"isAdmin"`
	SuspendedFrom   *time.Time `json:"suspendedFrom,omitempty"`
	SuspendedUntil  *time.Time `json:"suspendedUntil,omitempty"`
	DeletedAt       *time.Time `json:"deletedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// IsSuspended reports whether the user is under an active suspension
// window at t.
func (u User) IsSuspended(t time.Time) bool {
	if u.SuspendedFrom == nil || u.SuspendedUntil == nil {
		return false
	}

	return !t.Before(*u.SuspendedFrom) && t.Before(*u.SuspendedUntil)
}

// BankAccount belongs to a user and is the withdrawal disbursement target.
type BankAccount struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"userId"`
	BankCode  string     `json:"bankCode"`
	AccountNo string     `json:"accountNo"`
	Active    bool       `json:"active"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}
