package models

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/cloudvault/internal/common"
)

type Permission string

const (
	PermissionView     Permission = "view"
	PermissionDownload Permission = "download"
)

// ParsePermission maps "" to view.
func ParsePermission(s string) (Permission, error) {
	switch Permission(s) {
	case "":
		return PermissionView, nil
	case PermissionView, PermissionDownload:
		return Permission(s), nil
	}
	return "", fmt.Errorf("%w: unknown permission %q", common.ErrorValidation, s)
}

// ShareLink grants access to one file through an unguessable token.
type ShareLink struct {
	ID            string
	FileID        string
	OwnerID       string
	Token         string
	Permission    Permission
	ExpiresAt     *time.Time
	PasswordHash  *string
	MaxDownloads  *int
	DownloadCount int
	IsActive      bool
	CreatedAt     time.Time
}

// Usable reports whether the link may be resolved at now. It does not check
// the download cap; see Exhausted.
func (l *ShareLink) Usable(now time.Time) bool {
	if !l.IsActive {
		return false
	}
	return l.ExpiresAt == nil || l.ExpiresAt.After(now)
}

func (l *ShareLink) Exhausted() bool {
	return l.MaxDownloads != nil && l.DownloadCount >= *l.MaxDownloads
}
