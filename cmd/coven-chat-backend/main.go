// ABOUTME: Entry point for the reference chat backend
// ABOUTME: Serves conversations, history, chat and ingest over HTTP backed by SQLite

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/coven-chat/internal/auth"
	"github.com/2389/coven-chat/internal/backend"
	"github.com/2389/coven-chat/internal/config"
	"github.com/2389/coven-chat/internal/logging"
	"github.com/2389/coven-chat/internal/server"
	"github.com/2389/coven-chat/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                                    _           _
  ___ _____   _____ _ __        ___| |__   __ _| |_
 / __/ _ \ \ / / _ \ '_ \ _____/ __| '_ \ / _' | __|
| (_| (_) \ V /  __/ | | |_____| (__| | | | (_| | |_
 \___\___/ \_/ \___|_| |_|      \___|_| |_|\__,_|\__|
`

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: coven-chat-backend <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                  Start the reference backend")
		fmt.Println("  token --user ID        Issue an API token (requires auth.jwt_secret)")
		fmt.Println("  health                 Check backend health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "token":
		err = runToken(os.Args[2:])
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := config.Path()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format, os.Stdout)
	slog.SetDefault(logger)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	if cfg.Tailscale.Enabled {
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	} else {
		fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	}
	green.Print("    ▶ ")
	if cfg.Auth.JWTSecret != "" {
		fmt.Println("Auth:      bearer JWT")
	} else {
		color.New(color.FgYellow).Println("Auth:      none (set auth.jwt_secret to require tokens)")
	}
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s (%s)\n", cfg.Database.Path, cfg.Database.Driver)
	fmt.Println()

	st, err := store.Open(cfg.Database.Driver, cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	marker := ""
	if len(cfg.History.IngestionMarkers) > 0 {
		marker = cfg.History.IngestionMarkers[0]
	}

	opts := server.Options{
		Store:           st,
		IngestionMarker: marker,
		IdempotencyTTL:  cfg.Server.IdempotencyTTL,
		Logger:          logger,
	}
	if cfg.Auth.JWTSecret != "" {
		opts.Verifier = auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	}

	srv := server.New(opts)
	defer srv.Close()

	logger.Info("starting coven-chat-backend",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"tailscale", cfg.Tailscale.Enabled,
	)

	if !cfg.Tailscale.Enabled {
		return srv.Run(ctx, cfg.Server.HTTPAddr)
	}

	ln, err := server.ListenTailscale(ctx, server.TailscaleOptions{
		Hostname:  cfg.Tailscale.Hostname,
		AuthKey:   cfg.Tailscale.AuthKey,
		StateDir:  cfg.Tailscale.StateDir,
		Ephemeral: cfg.Tailscale.Ephemeral,
	}, logger)
	if err != nil {
		return err
	}
	// Serve closes the listener on shutdown; closing again stops the node.
	defer ln.Close()
	return srv.Serve(ctx, ln)
}

func runToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	user := fs.String("user", "", "User id to issue the token for")
	ttl := fs.Duration("ttl", 30*24*time.Hour, "Token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *user == "" {
		return fmt.Errorf("--user is required")
	}

	cfg, err := config.LoadOrDefault(config.Path())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is not configured")
	}

	token, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret)).Generate(*user, *ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	fmt.Println(token)
	return nil
}

func runHealth(ctx context.Context) error {
	cfg, err := config.LoadOrDefault(config.Path())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	client := backend.New("http://"+cfg.Server.HTTPAddr, backend.WithTimeout(5*time.Second))
	if err := client.Health(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	fmt.Println("healthy")
	return nil
}
