package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/spf13/cobra"

	"github.com/hyperengineering/setaside"
	"github.com/hyperengineering/setaside/internal/capture"
	"github.com/hyperengineering/setaside/internal/httpapi"
	"github.com/hyperengineering/setaside/internal/opener"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve collections to browser extensions",
	Long: `Run the sync coordinator and accept subscriber connections.

Endpoints:
  /ws                WebSocket subscriber channel (JSON messages)
  /api/collections   JSON API for scripts
  /healthz           Health and readiness
  /metrics           Prometheus metrics

Set SETASIDE_JWT_SECRET to require a bearer token (see 'setaside token').
Browsers pass the token as ?access_token= on the WebSocket URL.`,
	Example: `  setaside serve
  setaside serve --listen :7878 --allowed-origin moz-extension://3f1c...`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

const shutdownTimeout = 10 * time.Second

func init() {
	serveCmd.Flags().StringVar(&cfgListen, "listen", "", "Address to listen on (default: 127.0.0.1:7878)")
	serveCmd.Flags().StringArrayVar(&cfgAllowedOrigins, "allowed-origin", nil, "Browser origin allowed to connect (repeatable, * for any)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	client, closeClient, err := openClientWith(cmd, func(logger log.Logger) setaside.ClientOptions {
		return setaside.ClientOptions{
			Opener:   opener.NewCommand(),
			Capturer: capture.NewHTTP(logger),
		}
	})
	if err != nil {
		return err
	}
	defer closeClient()

	cfg := client.Config()
	logger := client.Logger()

	handler := httpapi.NewRouter(httpapi.Options{
		Coordinator:    client.Coordinator(),
		Health:         client.HealthCheck,
		Logger:         logger,
		AllowedOrigins: cfg.AllowedOrigins,
		JWTSecret:      cfg.JWTSecret,
	})
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	level.Info(logger).Log("op", "serve", "addr", ln.Addr().String(), "auth", cfg.JWTSecret != "")
	if !outputJSON {
		printInfo(cmd.ErrOrStderr(), "Serving profile %q on http://%s", cfg.Profile, ln.Addr())
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	level.Info(logger).Log("op", "shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
