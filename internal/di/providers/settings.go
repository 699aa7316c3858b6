package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/komandorr/komandorr-server/internal/config"
	"github.com/komandorr/komandorr-server/internal/logger"
	"github.com/komandorr/komandorr-server/internal/settings"
)

// ProvideSettingsManager provides the runtime settings manager.
func ProvideSettingsManager(i do.Injector) (*settings.Manager, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	manager, err := settings.NewManager(cfg, log.Logger)
	if err != nil {
		return nil, err
	}

	log.Info("Settings loaded", "path", manager.Path())

	return manager, nil
}

// SettingsWatcherHandle wraps the settings file watcher with shutdown capability.
type SettingsWatcherHandle struct {
	*settings.Watcher
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *SettingsWatcherHandle) Shutdown() error {
	h.cancel()
	return h.Watcher.Stop()
}

// ProvideSettingsWatcher provides the watcher that picks up external
// edits to the settings file.
func ProvideSettingsWatcher(i do.Injector) (*SettingsWatcherHandle, error) {
	manager := do.MustInvoke[*settings.Manager](i)
	log := do.MustInvoke[*logger.Logger](i)

	w, err := settings.NewWatcher(manager)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)

	log.Info("Settings watcher started")

	return &SettingsWatcherHandle{
		Watcher: w,
		cancel:  cancel,
	}, nil
}
