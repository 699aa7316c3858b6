// Package di provides dependency injection configuration for the Komandorr server.
package di

import (
	"github.com/samber/do/v2"

	"github.com/komandorr/komandorr-server/internal/config"
	"github.com/komandorr/komandorr-server/internal/di/providers"
	"github.com/komandorr/komandorr-server/internal/logger"
	"github.com/komandorr/komandorr-server/internal/plex"
	"github.com/komandorr/komandorr-server/internal/service"
	"github.com/komandorr/komandorr-server/internal/settings"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)

	// Database layer
	do.Provide(injector, providers.ProvideStore)

	// Runtime settings
	do.Provide(injector, providers.ProvideSettingsManager)
	do.Provide(injector, providers.ProvideSettingsWatcher)

	// Plex client
	do.Provide(injector, providers.ProvidePlexClient)

	// Business services
	do.Provide(injector, providers.ProvideInviteService)
	do.Provide(injector, providers.ProvideOAuthService)

	// Workers
	do.Provide(injector, providers.ProvideStateCleanupJob)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)
	do.Provide(injector, providers.ProvideMDNSService)

	return injector
}

// Bootstrap initializes all services and returns handles for lifecycle management.
// This triggers lazy initialization of all core services.
func Bootstrap(injector *do.RootScope) error {
	_ = do.MustInvoke[*config.Config](injector)
	_ = do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[*providers.StoreHandle](injector)
	_ = do.MustInvoke[*settings.Manager](injector)
	_ = do.MustInvoke[*providers.SettingsWatcherHandle](injector)
	_ = do.MustInvoke[*plex.Client](injector)

	// Business services
	_ = do.MustInvoke[*service.InviteService](injector)
	_ = do.MustInvoke[*service.OAuthService](injector)

	// Workers
	_ = do.MustInvoke[*providers.StateCleanupJob](injector)

	// Server
	_ = do.MustInvoke[*providers.HTTPServerHandle](injector)
	_ = do.MustInvoke[*providers.MDNSServiceHandle](injector)

	return nil
}
