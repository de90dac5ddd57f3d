package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	router "github.com/dkeye/soupvoice/internal/adapters/http"
	"github.com/dkeye/soupvoice/internal/adapters/presence"
	"github.com/dkeye/soupvoice/internal/app"
	"github.com/dkeye/soupvoice/internal/app/orch"
	"github.com/dkeye/soupvoice/internal/config"
	"github.com/dkeye/soupvoice/internal/core"
)

const releaseVersion = "0.1.0"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := newCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("soupvoice")
		os.Exit(1)
	}
}

func newCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "soupvoice",
		Short:         "Room presence, mic slots and WebRTC signaling for turtle soup voice rooms.",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			setupLogger(cfg)

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return serve(ctx, cfg)
		},
	}

	fs := cmd.Flags()
	fs.String("config-env", "", "config file suffix, reads config/config.<env>.yaml (env: CONFIG_ENV)")
	fs.IntP("port", "p", 8080, "port to listen on (env: SOUPVOICE_PORT)")
	fs.String("mode", "release", "gin mode: debug, release or test (env: SOUPVOICE_MODE)")
	fs.BoolP("verbose", "v", false, "debug logging")

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("soupvoice v{{.Version}}\n")
	return cmd
}

func setupLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Mode == "release" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	conflict, err := core.ParseConflictPolicy(cfg.Mic.Conflict)
	if err != nil {
		return err
	}
	policy, err := app.ParsePolicy(cfg.Signal.Backpressure)
	if err != nil {
		return err
	}

	var mirror orch.PresenceMirror = orch.NopMirror{}
	if cfg.Redis.Addr != "" {
		rm, err := presence.NewRedisMirror(ctx, &redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, cfg.Redis.TTL)
		if err != nil {
			return err
		}
		defer rm.Close()
		mirror = rm
	}

	o := &orch.Orchestrator{
		Registry:     app.NewRegistry(),
		Rooms:        app.NewRoomManager(),
		Policy:       policy,
		Negotiations: app.NewNegotiations(cfg.Signal.NegotiationTimeout),
		Mirror:       mirror,
		Conflict:     conflict,
	}

	r := router.SetupRouter(ctx, cfg, o)
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Str("version", releaseVersion).Msg("soupvoice server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Int("rooms", len(o.Rooms.List())).Int("connections", o.Registry.Count()).Msg("Server exited gracefully")
	return nil
}
