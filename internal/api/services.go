package api

import (
	"github.com/komandorr/komandorr-server/internal/service"
)

// Services groups the business logic services used by the API server.
// This reduces the parameter count for NewServer and improves testability.
type Services struct {
	Invite *service.InviteService
	OAuth  *service.OAuthService
}
