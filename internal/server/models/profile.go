package models

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/cloudvault/internal/common"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleUser, RoleAdmin:
		return Role(s), nil
	}
	return "", fmt.Errorf("%w: unknown role %q", common.ErrorValidation, s)
}

// Profile mirrors an identity-provider user locally. ID is the subject.
type Profile struct {
	ID        string
	Email     string
	Role      Role
	CreatedAt time.Time
}
