package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"palace/internal/lobby"
	"palace/internal/logging"
	"palace/internal/scheduler"
	"palace/internal/transport"
)

const envPrefix = "PALACE"

func newRootCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "palaced",
		Short: "Palace game server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(v)
		},
	}

	flags := cmd.Flags()
	flags.String("listen-addr", ":8080", "address to listen for websocket connections on")
	flags.Int("turn-timer-secs", lobby.DefaultTurnTimerSecs, "default per-turn timer, in seconds, for lobbies that don't request their own")
	flags.Duration("prune-threshold", lobby.EmptyLobbyPruneThreshold, "how long an empty lobby may sit idle before it's pruned")
	flags.String("log-level", "info", "log level: trace, debug, info, warn, error")
	flags.Bool("log-json", false, "emit structured JSON logs instead of text")

	v.BindPFlags(flags)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return cmd
}

func run(v *viper.Viper) error {
	logging.Configure(v.GetString("log-level"), v.GetBool("log-json"))

	turnTimer := time.Duration(v.GetInt("turn-timer-secs")) * time.Second
	registry := lobby.NewRegistryWithDefaults(turnTimer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go scheduler.Run(ctx, registry, v.GetDuration("prune-threshold"))

	mux := http.NewServeMux()
	mux.Handle("/ws", transport.Handler(registry))

	addr := v.GetString("listen-addr")
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  0, // websocket connections stay open far longer than any fixed timeout
		WriteTimeout: 0,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.L().WithField("addr", addr).Info("palaced listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("serving: %w", err)
	case <-sigCh:
		logging.L().Info("shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}
