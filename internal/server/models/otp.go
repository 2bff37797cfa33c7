package models

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/cloudvault/internal/common"
)

// Purpose scopes a one-time passcode to an action.
type Purpose string

const (
	PurposeLogin       Purpose = "login"
	PurposeAdminAccess Purpose = "admin_access"
	PurposeShare       Purpose = "share"
)

// ParsePurpose maps "" to the default login purpose.
func ParsePurpose(s string) (Purpose, error) {
	switch Purpose(s) {
	case "":
		return PurposeLogin, nil
	case PurposeLogin, PurposeAdminAccess, PurposeShare:
		return Purpose(s), nil
	}
	return "", fmt.Errorf("%w: unknown purpose %q", common.ErrorValidation, s)
}

// OTP is an issued one-time passcode. Only the fingerprint of the code is kept.
type OTP struct {
	ID            string
	Subject       string
	CodeHash      string
	Purpose       Purpose
	CreatedAt     time.Time
	ExpiresAt     time.Time
	UsedAt        *time.Time
	OriginAddress *string
}

// IsLive reports whether the record can still be consumed at now.
func (o *OTP) IsLive(now time.Time) bool {
	return o.UsedAt == nil && o.ExpiresAt.After(now)
}
