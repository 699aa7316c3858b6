package domain

import "time"

// Member is a Plex account provisioned through an invite.
// One member record exists per (invite, plex account) pair; redeeming the
// same invite twice with the same account is a no-op at the server.
type Member struct {
	ID         string    `json:"id"`
	InviteID   string    `json:"invite_id"`
	PlexUserID string    `json:"plex_user_id"`
	Email      string    `json:"email"`
	Username   string    `json:"username"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Touch updates the UpdatedAt timestamp.
func (m *Member) Touch() {
	m.UpdatedAt = time.Now()
}
