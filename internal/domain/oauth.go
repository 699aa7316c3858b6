package domain

import "time"

// PinSession is one Plex PIN-grant attempt. A session is created when the
// user begins authentication and is never reused; a retry after failure
// always gets a fresh session.
type PinSession struct {
	PinID     int64     `json:"pin_id"`     // Plex-assigned PIN identifier
	Code      string    `json:"pin_code"`   // Short code the user approves
	State     string    `json:"state"`      // Opaque CSRF token, round-trips unchanged
	AuthURL   string    `json:"auth_url"`   // app.plex.tv authorization URL
	CreatedAt time.Time `json:"created_at"`
}

// AuthorizedIdentity is the Plex account that approved a PIN.
// It is ephemeral: the auth token is used once for redemption and
// never persisted.
type AuthorizedIdentity struct {
	AuthToken  string `json:"auth_token"`
	PlexUserID string `json:"plex_user_id"`
	Email      string `json:"email"`
	Username   string `json:"username"`
}

// RedemptionOutcome tags the result of finalizing a redemption.
type RedemptionOutcome string

// Redemption outcomes. AlreadyDone means the account had already redeemed
// this invite; callers treat it as success.
const (
	RedemptionOk          RedemptionOutcome = "ok"
	RedemptionAlreadyDone RedemptionOutcome = "already_done"
	RedemptionErr         RedemptionOutcome = "error"
)

// RedemptionResult is the tagged outcome of a finalize call.
type RedemptionResult struct {
	Outcome RedemptionOutcome `json:"outcome"`
	Message string            `json:"message,omitempty"` // Set for RedemptionErr
	Member  *Member           `json:"member,omitempty"`  // Set for RedemptionOk
}

// Succeeded reports whether the redemption counts as a success.
// Both Ok and AlreadyDone are successes.
func (r *RedemptionResult) Succeeded() bool {
	return r.Outcome == RedemptionOk || r.Outcome == RedemptionAlreadyDone
}
