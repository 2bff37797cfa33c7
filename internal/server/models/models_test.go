package models

import (
	"testing"
	"time"

	"github.com/dmitrijs2005/cloudvault/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnums(t *testing.T) {
	p, err := ParsePurpose("")
	require.NoError(t, err)
	assert.Equal(t, PurposeLogin, p)

	p, err = ParsePurpose("admin_access")
	require.NoError(t, err)
	assert.Equal(t, PurposeAdminAccess, p)

	_, err = ParsePurpose("reset")
	assert.ErrorIs(t, err, common.ErrorValidation)

	s, err := ParseNodeStatus("maintenance")
	require.NoError(t, err)
	assert.Equal(t, NodeMaintenance, s)
	_, err = ParseNodeStatus("ONLINE")
	assert.ErrorIs(t, err, common.ErrorValidation)

	_, err = ParseReplicaStatus("lost")
	assert.ErrorIs(t, err, common.ErrorValidation)

	perm, err := ParsePermission("")
	require.NoError(t, err)
	assert.Equal(t, PermissionView, perm)
	_, err = ParsePermission("edit")
	assert.ErrorIs(t, err, common.ErrorValidation)

	_, err = ParseRole("root")
	assert.ErrorIs(t, err, common.ErrorValidation)

	e, err := ParseEventType("otp_generated")
	require.NoError(t, err)
	assert.Equal(t, EventOTPGenerated, e)
	_, err = ParseEventType("login")
	assert.ErrorIs(t, err, common.ErrorValidation)
}

func TestOTP_IsLive(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	o := &OTP{ExpiresAt: now.Add(5 * time.Minute)}

	assert.True(t, o.IsLive(now))
	assert.True(t, o.IsLive(now.Add(299*time.Second)))
	assert.False(t, o.IsLive(now.Add(5*time.Minute)))
	assert.False(t, o.IsLive(now.Add(301*time.Second)))

	used := now
	o.UsedAt = &used
	assert.False(t, o.IsLive(now))
}

func TestShareLink_UsableAndExhausted(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	one := 1

	l := &ShareLink{IsActive: true}
	assert.True(t, l.Usable(now))
	assert.False(t, l.Exhausted())

	l.ExpiresAt = &past
	assert.False(t, l.Usable(now))

	l = &ShareLink{IsActive: false}
	assert.False(t, l.Usable(now))

	l = &ShareLink{IsActive: true, MaxDownloads: &one, DownloadCount: 1}
	assert.True(t, l.Usable(now))
	assert.True(t, l.Exhausted())
}
