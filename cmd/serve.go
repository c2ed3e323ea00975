package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/desertthunder/harmony/internal/chat"
	"github.com/desertthunder/harmony/internal/repositories"
	"github.com/desertthunder/harmony/internal/server"
	"github.com/desertthunder/harmony/internal/session"
	"github.com/urfave/cli/v3"
)

// Serve runs the embedded chat broker and the HTTP routes until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	if err := r.config.Credentials.Spotify.Validate(); err != nil {
		r.logger.Warn("token refresh will fail until credentials are configured", "error", err)
	}

	db, err := r.database()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !cmd.Bool("no-broker") {
		broker, err := chat.StartBroker(r.config.Server.Host, cmd.Int("nats-port"), r.logger)
		if err != nil {
			return err
		}
		defer broker.Shutdown()
		r.writePlain("→ Chat broker at %s\n", broker.ClientURL())
	}

	tokens := server.NewTokenHandler(r.config.Credentials.Spotify, repositories.NewSessionRepository(db), r.logger,
		session.WithHTTPClient(r.httpClient))
	httpServer := &http.Server{
		Addr:              r.config.Server.Addr(),
		Handler:           server.NewRouter(r.logger, tokens),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Infof("serving HTTP at %v", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()
	r.writePlain("→ HTTP routes at http://%s (healthz, metrics, token/refresh)\n", httpServer.Addr)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Warn("error shutting down server", "error", err)
	}
	return nil
}
