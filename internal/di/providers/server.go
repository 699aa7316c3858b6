package providers

import (
	"context"
	"net/http"

	"github.com/samber/do/v2"

	"github.com/komandorr/komandorr-server/internal/api"
	"github.com/komandorr/komandorr-server/internal/config"
	"github.com/komandorr/komandorr-server/internal/logger"
	"github.com/komandorr/komandorr-server/internal/service"
	"github.com/komandorr/komandorr-server/internal/settings"
)

// HTTPServerHandle wraps http.Server with Shutdownable.
type HTTPServerHandle struct {
	*http.Server
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Server.Shutdown(ctx)
}

// ProvideHTTPServer provides the HTTP server.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	settingsManager := do.MustInvoke[*settings.Manager](i)
	log := do.MustInvoke[*logger.Logger](i)

	inviteService := do.MustInvoke[*service.InviteService](i)
	oauthService := do.MustInvoke[*service.OAuthService](i)

	services := &api.Services{
		Invite: inviteService,
		OAuth:  oauthService,
	}

	handler := api.NewServer(cfg, storeHandle.Store, services, settingsManager, log.Logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start in background
	go func() {
		log.Info("HTTP server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", "error", err)
		}
	}()

	log.Info("Server running", "addr", srv.Addr)

	return &HTTPServerHandle{Server: srv}, nil
}
