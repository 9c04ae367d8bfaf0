package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/stagekit/stagecast/internal/adapters/chat"
	"github.com/stagekit/stagecast/internal/adapters/debughttp"
	"github.com/stagekit/stagecast/internal/adapters/directory"
	"github.com/stagekit/stagecast/internal/adapters/mediafake"
	"github.com/stagekit/stagecast/internal/app/alerts"
	"github.com/stagekit/stagecast/internal/app/coord"
	"github.com/stagekit/stagecast/internal/app/feed"
	"github.com/stagekit/stagecast/internal/app/roster"
	"github.com/stagekit/stagecast/internal/app/votes"
	"github.com/stagekit/stagecast/internal/config"
	"github.com/stagekit/stagecast/internal/domain"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	username := os.Getenv("STAGECAST_USERNAME")
	if username == "" {
		username = domain.RandomUsername()
	}
	local, err := domain.NewLocalParticipant(username, domain.RandomAvatar())
	if err != nil {
		log.Fatal().Err(err).Msg("invalid username")
	}
	log.Info().Str("username", local.Username).Str("user_id", string(local.UserID)).Msg("local identity ready")

	fd := feed.New(cfg.ScrollCooldown)
	rs := roster.New(local)
	vb := votes.New()
	ab := alerts.New(cfg.ErrorTTL)

	dir := directory.New(cfg)
	media := mediafake.New(cfg.MaxBitrateKbps)
	messaging := chat.New(cfg.ChatEndpoint)

	coordinator := coord.New(cfg, dir, media, messaging, fd, rs, vb, ab, local)
	// The loop outlives the signal context so the final leave can still
	// run on it.
	runCtx, stopCoordinator := context.WithCancel(context.Background())
	defer stopCoordinator()
	go coordinator.Run(runCtx)

	if err := cfg.Verify(); err != nil {
		log.Warn().Err(err).Msg("directory credentials missing, joining disabled until configured")
	} else {
		coordinator.VerifyCode(nil)
		coordinator.SetAutoJoin(true)
	}

	r := debughttp.SetupRouter(cfg, debughttp.Deps{
		Coordinator: coordinator,
		Feed:        fd,
		Roster:      rs,
		Alerts:      ab,
		Chat:        messaging,
	})
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("stagecast runtime started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	// Leave the active session cleanly before the process exits.
	left := make(chan struct{})
	coordinator.Leave(func() { close(left) })
	select {
	case <-left:
	case <-time.After(5 * time.Second):
		log.Warn().Msg("session teardown timed out")
	}
	stopCoordinator()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Runtime exited gracefully")
}
