package models

import (
	"time"

	"github.com/google/uuid"
)

// ApprovalRequest is a one-time token awaiting a human decision
type ApprovalRequest struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	Token      string     `db:"token" json:"-"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	ExpiresAt  time.Time  `db:"expires_at" json:"expires_at"`
	Approved   bool       `db:"approved" json:"approved"`
	ResolvedAt *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
	PromotedAt *time.Time `db:"promoted_at" json:"promoted_at,omitempty"`
}

// TableName returns the database table name
func (ApprovalRequest) TableName() string {
	return "approvals"
}

// Expired reports whether the token can no longer be approved at now. A
// request resolved without approval stays expired.
func (a *ApprovalRequest) Expired(now time.Time) bool {
	if a.ResolvedAt != nil && !a.Approved {
		return true
	}
	return !now.Before(a.ExpiresAt)
}

// Used reports whether the approval has already been spent on a promotion
func (a *ApprovalRequest) Used() bool {
	return a.PromotedAt != nil
}

// ApprovedInTime reports whether the request was approved before it expired
func (a *ApprovalRequest) ApprovedInTime() bool {
	if !a.Approved {
		return false
	}
	if a.ResolvedAt == nil {
		return true
	}
	return a.ResolvedAt.Before(a.ExpiresAt)
}
