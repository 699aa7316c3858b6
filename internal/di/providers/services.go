package providers

import (
	"github.com/samber/do/v2"

	"github.com/komandorr/komandorr-server/internal/config"
	"github.com/komandorr/komandorr-server/internal/logger"
	"github.com/komandorr/komandorr-server/internal/plex"
	"github.com/komandorr/komandorr-server/internal/service"
	"github.com/komandorr/komandorr-server/internal/settings"
)

// ProvidePlexClient provides the rate-limited plex.tv API client.
func ProvidePlexClient(i do.Injector) (*plex.Client, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	client := plex.New(cfg.Plex.ClientID, cfg.Plex.Product, log.Logger)

	log.Info("Plex client initialized", "client_id", client.ClientID())

	return client, nil
}

// ProvideInviteService provides the invite management service.
func ProvideInviteService(i do.Injector) (*service.InviteService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	plexClient := do.MustInvoke[*plex.Client](i)
	settingsManager := do.MustInvoke[*settings.Manager](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewInviteService(storeHandle.Store, plexClient, settingsManager, log.Logger), nil
}

// ProvideOAuthService provides the PIN-grant redemption service.
func ProvideOAuthService(i do.Injector) (*service.OAuthService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	plexClient := do.MustInvoke[*plex.Client](i)
	inviteService := do.MustInvoke[*service.InviteService](i)
	settingsManager := do.MustInvoke[*settings.Manager](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewOAuthService(
		storeHandle.Store,
		plexClient,
		inviteService,
		settingsManager,
		cfg.OAuth.StateTTL,
		log.Logger,
	), nil
}
