package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"pulsequiz/internal/ai"
	"pulsequiz/internal/app"
	"pulsequiz/internal/config"
	"pulsequiz/internal/domain"
	"pulsequiz/internal/infra/memory"
	"pulsequiz/internal/realtime"
	"pulsequiz/internal/theme"
	transport "pulsequiz/internal/transport/http"
)

// NewServeCmd builds the CLI subcommand to start the server.
func NewServeCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the trivia session server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	clock := clockwork.NewRealClock()

	var gen ai.Generator
	var themes *theme.Drafter
	if cfg.AI.APIKey != "" {
		gen = ai.NewClient(ai.Config{
			BaseURL: cfg.AI.BaseURL,
			APIKey:  cfg.AI.APIKey,
			Model:   cfg.AI.Model,
			Timeout: config.TTLDuration(cfg.AI.Timeout, 30*time.Second),
		})
		themes = theme.NewDrafter(gen, config.TTLDuration(cfg.Theme.CacheTTL, 10*time.Minute))
	} else {
		log.Warn().Msg("no AI key configured, drafting and verification disabled")
	}

	store := memory.NewSessionStore()
	hub := realtime.NewHub(cfg.Game.EventCap, clock)
	defaults := domain.GameSettings{
		TimerSeconds:        cfg.Game.TimerSeconds,
		AutoProgressPercent: cfg.Game.AutoProgressPercent,
	}
	service := app.NewService(store, hub, gen, clock, defaults)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      transport.NewRouter(service, themes, cfg.Server.AllowedOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("port", finalPort).Msg("starting trivia session server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info().Msg("shutting down server")
	case <-ctx.Done():
		log.Info().Msg("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
