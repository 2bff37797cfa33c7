package models

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/cloudvault/internal/common"
)

type EventType string

const (
	EventOTPGenerated      EventType = "otp_generated"
	EventOTPVerifySuccess  EventType = "otp_verification_success"
	EventOTPVerifyFailed   EventType = "otp_verification_failed"
	EventAdminAccess       EventType = "admin_access"
	EventAdminAccessDenied EventType = "admin_access_denied"
	EventUpload            EventType = "upload"
	EventDownload          EventType = "download"
	EventDelete            EventType = "delete"
	EventShareCreated      EventType = "share_created"
	EventShareDownload     EventType = "share_download"
	EventShareDeactivated  EventType = "share_deactivated"
	EventNodeUpdated       EventType = "node_updated"
)

var knownEventTypes = map[EventType]struct{}{
	EventOTPGenerated:      {},
	EventOTPVerifySuccess:  {},
	EventOTPVerifyFailed:   {},
	EventAdminAccess:       {},
	EventAdminAccessDenied: {},
	EventUpload:            {},
	EventDownload:          {},
	EventDelete:            {},
	EventShareCreated:      {},
	EventShareDownload:     {},
	EventShareDeactivated:  {},
	EventNodeUpdated:       {},
}

func ParseEventType(s string) (EventType, error) {
	if _, ok := knownEventTypes[EventType(s)]; !ok {
		return "", fmt.Errorf("%w: unknown event type %q", common.ErrorValidation, s)
	}
	return EventType(s), nil
}

// AuditEvent is an append-only record of a security-relevant action.
type AuditEvent struct {
	ID            string
	Subject       *string
	EventType     EventType
	Description   string
	OriginAddress *string
	UserAgent     *string
	Metadata      map[string]any
	Success       bool
	CreatedAt     time.Time
}

// AuditFilter narrows an audit listing. Zero values mean "any".
type AuditFilter struct {
	Subject   string
	EventType EventType
	Limit     int
	Offset    int
}
