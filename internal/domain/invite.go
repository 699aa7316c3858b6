// Package domain contains the core data model for the Komandorr server.
package domain

import (
	"strings"
	"time"
)

// InviteStatus is the derived lifecycle state of an invite.
type InviteStatus string

// Invite statuses, in precedence order: a disabled invite reports
// disabled even when it is also expired or exhausted.
const (
	InviteStatusActive    InviteStatus = "active"
	InviteStatusDisabled  InviteStatus = "disabled"
	InviteStatusExpired   InviteStatus = "expired"
	InviteStatusExhausted InviteStatus = "exhausted"
)

// Invite represents an invitation to join the Plex server.
// Invites are created by admins and redeemed by new users through the
// OAuth redemption flow.
type Invite struct {
	ID        string     `json:"id"`
	Code      string     `json:"code"`                 // Public code, stored upper-cased
	CreatedBy string     `json:"created_by"`           // Admin identifier
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"` // nil = never expires
	UsageLimit int       `json:"usage_limit"`          // 0 = unlimited
	UsedCount  int       `json:"used_count"`

	// Libraries to share on redemption. Empty means all libraries.
	Libraries []string `json:"libraries,omitempty"`

	// Permissions granted to the redeemed account.
	AllowSync         bool `json:"allow_sync"`
	AllowChannels     bool `json:"allow_channels"`
	AllowCameraUpload bool `json:"allow_camera_upload"`
	PlexHome          bool `json:"plex_home"` // Invite as Plex Home user instead of friend

	// Active is the admin kill switch. A disabled invite cannot be redeemed
	// but keeps its redemption history.
	Active bool `json:"active"`
}

// NormalizeCode upper-cases an invite code for storage and lookup.
// Codes are case-insensitive on the wire.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// AllLibraries reports whether the invite shares every library.
func (i *Invite) AllLibraries() bool {
	return len(i.Libraries) == 0
}

// IsExpired returns true if the invite has passed its expiration time.
func (i *Invite) IsExpired() bool {
	return i.ExpiresAt != nil && time.Now().After(*i.ExpiresAt)
}

// IsExhausted returns true if the invite has reached its usage limit.
func (i *Invite) IsExhausted() bool {
	return i.UsageLimit > 0 && i.UsedCount >= i.UsageLimit
}

// IsRedeemable returns true if the invite can currently be redeemed.
func (i *Invite) IsRedeemable() bool {
	return i.Active && !i.IsExpired() && !i.IsExhausted()
}

// Status returns the derived lifecycle state of the invite.
func (i *Invite) Status() InviteStatus {
	if !i.Active {
		return InviteStatusDisabled
	}
	if i.IsExpired() {
		return InviteStatusExpired
	}
	if i.IsExhausted() {
		return InviteStatusExhausted
	}
	return InviteStatusActive
}

// Touch updates the UpdatedAt timestamp.
func (i *Invite) Touch() {
	i.UpdatedAt = time.Now()
}
