package player

import (
	"github.com/lpetrelli/autopause/internal/domain"
	"go.uber.org/zap"
)

// NewSpotify controls the Spotify desktop client. Stock MPRIS conformer.
func NewSpotify(logger *zap.Logger, conn BusClient, opts Options) domain.Controller {
	return newMPRIS(logger, conn, opts, mprisPrefix+"spotify")
}

// NewVLC controls VLC. VLC is known to ignore Pause while it is buffering
// a network stream; the shared retry + settle verification covers that, no
// extra handling is needed here.
func NewVLC(logger *zap.Logger, conn BusClient, opts Options) domain.Controller {
	return newMPRIS(logger, conn, opts, mprisPrefix+"vlc")
}

// NewMPV controls mpv (with its MPRIS script loaded). mpv restarts the
// current file when it receives Play while stopped, so resume acts only
// from Paused.
func NewMPV(logger *zap.Logger, conn BusClient, opts Options) domain.Controller {
	c := newMPRIS(logger, conn, opts, mprisPrefix+"mpv")
	c.resumeOnlyFromPaused = true
	return c
}

// NewFirefox controls Firefox's media session. Firefox publishes
// "org.mpris.MediaPlayer2.firefox.instance<pid>", so the live bus name is
// resolved by prefix scan once per pass.
func NewFirefox(logger *zap.Logger, conn BusClient, opts Options) domain.Controller {
	c := newMPRIS(logger, conn, opts, mprisPrefix+"firefox")
	c.instanced = true
	return c
}

func newMPRIS(logger *zap.Logger, conn BusClient, opts Options, busName string) *mprisController {
	return &mprisController{
		base:     base{logger: logger, opts: opts},
		identity: domain.PlayerIdentity(busName),
		busName:  busName,
		conn:     conn,
	}
}

// All returns every supported backend, skipping identities listed in
// disabled. Order is fixed; the registry preserves it.
func All(logger *zap.Logger, conn BusClient, opts Options, disabled []string) []domain.Controller {
	skip := make(map[string]struct{}, len(disabled))
	for _, id := range disabled {
		skip[id] = struct{}{}
	}

	candidates := []domain.Controller{
		NewSpotify(logger, conn, opts),
		NewVLC(logger, conn, opts),
		NewMPV(logger, conn, opts),
		NewFirefox(logger, conn, opts),
	}

	players := make([]domain.Controller, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := skip[string(c.Identity())]; ok {
			logger.Info("Player disabled by configuration",
				zap.String("player", string(c.Identity())))
			continue
		}
		players = append(players, c)
	}
	return players
}
