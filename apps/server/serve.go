package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"scholaverse/apps/server/internal/auth"
	"scholaverse/apps/server/internal/gateway"
	"scholaverse/apps/server/internal/httpapi"
	"scholaverse/apps/server/internal/imagestore"
	"scholaverse/apps/server/internal/logging"
	"scholaverse/apps/server/internal/rulestore"
	"scholaverse/scoring"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	store, storeMode, err := rulestore.NewStoreFromConfig(cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	authService, authMode, err := auth.NewServiceFromConfig(cfg.Auth, cfg.Store)
	if err != nil {
		return err
	}
	defer authService.Close()

	images, imagesMode, err := imagestore.NewServiceFromConfig(cfg.Images, logging.Component(logger, "images"))
	if err != nil {
		return err
	}

	gw := gateway.New(cfg.HTTP.AllowedOrigins, logging.Component(logger, "gateway"))
	defer gw.Close()

	resolver := scoring.NewResolver(store, scoring.WithLogger(logging.Component(logger, "resolver")))
	api := httpapi.New(httpapi.Options{
		Resolver:       resolver,
		Store:          store,
		Auth:           auth.NewHTTPHandler(authService),
		Images:         images,
		Events:         gw,
		WebSocket:      gw.HandleWebSocket,
		Logger:         logging.Component(logger, "http"),
		RequestTimeout: cfg.HTTP.RequestTimeout,
	})

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info().
		Str("store_mode", storeMode).
		Str("auth_mode", authMode).
		Str("images_mode", imagesMode).
		Str("addr", cfg.HTTP.Addr).
		Msg("starting server")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
