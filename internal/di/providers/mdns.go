package providers

import (
	"fmt"

	"github.com/samber/do/v2"

	"github.com/komandorr/komandorr-server/internal/config"
	"github.com/komandorr/komandorr-server/internal/logger"
	"github.com/komandorr/komandorr-server/internal/mdns"
	"github.com/komandorr/komandorr-server/internal/settings"
)

// MDNSServiceHandle wraps mdns.Service with Shutdownable.
type MDNSServiceHandle struct {
	*mdns.Service
	started bool
}

// Shutdown implements do.Shutdownable.
func (h *MDNSServiceHandle) Shutdown() error {
	if h.started && h.Service != nil {
		h.Stop()
	}
	return nil
}

// ProvideMDNSService provides the mDNS advertisement service.
func ProvideMDNSService(i do.Injector) (*MDNSServiceHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	settingsManager := do.MustInvoke[*settings.Manager](i)

	if !cfg.Server.AdvertiseMDNS {
		log.Info("mDNS advertisement disabled by configuration")
		return &MDNSServiceHandle{Service: nil, started: false}, nil
	}

	svc := mdns.NewService(log.Logger)

	// Parse port
	port := 8080
	if _, err := fmt.Sscanf(cfg.Server.Port, "%d", &port); err != nil {
		log.Warn("Failed to parse server port for mDNS, using default", "port", cfg.Server.Port)
	}

	if err := svc.Start(settingsManager.Get().ServerName, port); err != nil {
		log.Warn("mDNS advertisement unavailable", "error", err)
		// Non-fatal: server works without mDNS (e.g., Docker, cloud)
		return &MDNSServiceHandle{Service: svc, started: false}, nil
	}

	// Re-advertise when the server is renamed through settings.
	settingsManager.OnChange(func(s settings.Settings) {
		if err := svc.Refresh(s.ServerName, port); err != nil {
			log.Warn("Failed to refresh mDNS after settings update", "error", err)
		}
	})

	return &MDNSServiceHandle{Service: svc, started: true}, nil
}
