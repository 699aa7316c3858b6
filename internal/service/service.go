// Package service contains the business logic for invite management and
// the Plex OAuth redemption flow.
package service

import (
	"context"
	"errors"
	"reflect"

	"github.com/go-playground/validator/v10"

	domainerrors "github.com/komandorr/komandorr-server/internal/errors"
	"github.com/komandorr/komandorr-server/internal/plex"
)

// validate is a shared validator instance for request validation.
var validate = func() *validator.Validate {
	v := validator.New()
	// Use JSON tag names for field names in error messages
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := fld.Tag.Get("json")
		if name == "" {
			return fld.Name
		}
		// Remove any options (like omitempty, -)
		for i := range len(name) {
			if name[i] == ',' {
				return name[:i]
			}
		}
		return name
	})
	return v
}()

// PlexClient is the slice of the Plex API the services need.
// *plex.Client satisfies it; tests substitute a fake.
type PlexClient interface {
	CreatePin(ctx context.Context) (*plex.Pin, error)
	GetPin(ctx context.Context, pinID int64) (*plex.Pin, error)
	AuthURL(pinCode string) string
	GetAccount(ctx context.Context, token string) (*plex.Account, error)
	GetServerIdentity(ctx context.Context, serverURL, token string) (*plex.ServerIdentity, error)
	GetLibraries(ctx context.Context, serverURL, token string) ([]plex.Library, error)
	InviteFriend(ctx context.Context, token string, req plex.ShareRequest) error
	InviteHome(ctx context.Context, token string, req plex.ShareRequest) error
	RemoveFriend(ctx context.Context, token, plexUserID string) error
}

// formatValidationError converts validator errors to user-friendly domain errors.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		// Return first validation error as a domain error
		for _, e := range validationErrs {
			field := e.Field()
			switch e.Tag() {
			case "required":
				return domainerrors.Validationf("%s is required", field)
			case "min":
				return domainerrors.Validationf("%s must be at least %s", field, e.Param())
			case "max":
				return domainerrors.Validationf("%s exceeds maximum of %s", field, e.Param())
			case "alphanum":
				return domainerrors.Validationf("%s must be alphanumeric", field)
			default:
				return domainerrors.Validationf("%s is invalid", field)
			}
		}
	}
	return err
}
