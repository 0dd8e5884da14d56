// ABOUTME: Optional tailnet listener for the reference backend using tsnet
// ABOUTME: Brings up an embedded Tailscale node and listens on its port 80

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"

	"tailscale.com/tsnet"
)

// TailscaleOptions configures the embedded tailnet node.
type TailscaleOptions struct {
	Hostname  string
	AuthKey   string // falls back to TS_AUTHKEY
	StateDir  string // defaults to ~/.local/share/coven-chat/tailscale
	Ephemeral bool
}

// TailscaleListener is a listener on the tailnet. Closing it also stops the node.
type TailscaleListener struct {
	net.Listener
	node *tsnet.Server
}

// Close closes the listener and shuts the node down.
func (l *TailscaleListener) Close() error {
	return errors.Join(l.Listener.Close(), l.node.Close())
}

// ListenTailscale starts a tsnet node and returns a listener on its port 80.
func ListenTailscale(ctx context.Context, opts TailscaleOptions, logger *slog.Logger) (*TailscaleListener, error) {
	if logger == nil {
		logger = slog.Default()
	}

	stateDir, err := resolveTailscaleStateDir(opts.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(opts.AuthKey)
	if err != nil {
		return nil, err
	}

	node := &tsnet.Server{
		Hostname:  opts.Hostname,
		Dir:       stateDir,
		Ephemeral: opts.Ephemeral,
		AuthKey:   authKey,
	}

	logger.Info("starting tailscale node", "hostname", opts.Hostname, "state_dir", stateDir, "ephemeral", opts.Ephemeral)
	status, err := node.Up(ctx)
	if err != nil {
		_ = node.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}

	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	logger.Info("tailscale node ready", "hostname", opts.Hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)

	ln, err := node.Listen("tcp", ":80")
	if err != nil {
		_ = node.Close()
		return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
	}
	return &TailscaleListener{Listener: ln, node: node}, nil
}

func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "coven-chat", "tailscale"), nil
}

func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set tailscale.auth_key in config or TS_AUTHKEY")
	}
	return authKey, nil
}
