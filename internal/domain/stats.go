package domain

// InviteStats summarizes invite usage for the admin dashboard.
type InviteStats struct {
	TotalInvites     int `json:"total_invites"`
	ActiveInvites    int `json:"active_invites"`
	ExpiredInvites   int `json:"expired_invites"`
	ExhaustedInvites int `json:"exhausted_invites"`
	DisabledInvites  int `json:"disabled_invites"`
	TotalRedemptions int `json:"total_redemptions"`
	TotalMembers     int `json:"total_members"`
}
