package providers

import (
	"context"
	"time"

	"github.com/samber/do/v2"

	"github.com/komandorr/komandorr-server/internal/logger"
	"github.com/komandorr/komandorr-server/internal/service"
)

// stateCleanupInterval is how often expired OAuth state tokens are swept.
const stateCleanupInterval = time.Minute

// StateCleanupJob runs periodic cleanup of expired OAuth state tokens.
type StateCleanupJob struct {
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (j *StateCleanupJob) Shutdown() error {
	j.cancel()
	return nil
}

// ProvideStateCleanupJob provides the periodic state token cleanup job.
func ProvideStateCleanupJob(i do.Injector) (*StateCleanupJob, error) {
	oauthService := do.MustInvoke[*service.OAuthService](i)
	log := do.MustInvoke[*logger.Logger](i)

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		ticker := time.NewTicker(stateCleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if count := oauthService.CleanupStates(); count > 0 {
					log.Debug("Expired state tokens swept", "count", count)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	log.Info("State cleanup job started")

	return &StateCleanupJob{cancel: cancel}, nil
}
