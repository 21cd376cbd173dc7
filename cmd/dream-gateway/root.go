// ABOUTME: Cobra command tree for dream-gateway
// ABOUTME: serve, init, bootstrap, token, health and ready share the --config flag

package main

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/dream-gateway/internal/config"
	"github.com/2389/dream-gateway/internal/gateway"
)

const banner = `
     _                                           _
  __| |_ __ ___  __ _ _ __ ___        __ _  __ _| |_ _____      ____ _ _   _
 / _' | '__/ _ \/ _' | '_ ' _ \ ____ / _' |/ _' | __/ _ \ \ /\ / / _' | | | |
| (_| | | |  __/ (_| | | | | | |____| (_| | (_| | ||  __/\ V  V / (_| | |_| |
 \__,_|_|  \___|\__,_|_| |_| |_|     \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
                                     |___/                             |___/
`

// healthTimeout bounds the health and ready probes.
const healthTimeout = 5 * time.Second

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "dream-gateway",
		Short: "Dreams journaling and media API gateway",
		Long: `dream-gateway serves the dreams API: journal entries, profiles,
subscriptions, and transcription/comic/video generation behind bearer-token auth.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		"config file (default: $DREAMS_CONFIG, ./config.yaml, ~/.config/dreams/gateway.yaml)")

	root.AddCommand(
		newServeCmd(opts),
		newInitCmd(opts),
		newBootstrapCmd(opts),
		newTokenCmd(opts),
		newProbeCmd(opts, "health", "Check gateway liveness", "/health"),
		newProbeCmd(opts, "ready", "Check gateway readiness (datastore reachable)", "/health/ready"),
	)
	return root
}

func (o *rootOptions) load() (*config.Config, string, error) {
	path := config.ResolvePath(o.configPath)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, fmt.Errorf("loading config: %w", err)
	}
	return cfg, path, nil
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, configPath, err := opts.load()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			cyan := color.New(color.FgCyan)
			gray := color.New(color.FgHiBlack)
			green := color.New(color.FgGreen)
			yellow := color.New(color.FgYellow)

			cyan.Fprint(out, banner)
			gray.Fprintf(out, "    version: %s\n\n", version)

			green.Fprint(out, "    ▶ ")
			fmt.Fprintf(out, "Config:      %s\n", configPath)
			green.Fprint(out, "    ▶ ")
			fmt.Fprintf(out, "HTTP:        %s\n", cfg.Server.HTTPAddr)
			green.Fprint(out, "    ▶ ")
			fmt.Fprintf(out, "Environment: %s\n", cfg.Server.Environment)

			if cfg.Tailscale.Enabled {
				green.Fprint(out, "    ▶ ")
				fmt.Fprint(out, "Tailscale:   ")
				cyan.Fprint(out, cfg.Tailscale.Hostname)
				if cfg.Tailscale.Funnel {
					yellow.Fprint(out, " [funnel]")
				}
				if cfg.Tailscale.Ephemeral {
					gray.Fprint(out, " (ephemeral)")
				}
				fmt.Fprintln(out)
			}
			fmt.Fprintln(out)

			logger := setupLogger(cfg.Logging, out)
			logger.Info("starting dream-gateway",
				"config", configPath,
				"http_addr", cfg.Server.HTTPAddr,
				"environment", cfg.Server.Environment,
			)

			gw, err := gateway.New(cfg, logger)
			if err != nil {
				return fmt.Errorf("creating gateway: %w", err)
			}
			return gw.Run(cmd.Context())
		},
	}
}

func newProbeCmd(opts *rootOptions, use, short, path string) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr == "" {
				cfg, _, err := opts.load()
				if err != nil {
					return err
				}
				addr = cfg.Server.HTTPAddr
			}
			return probe(cmd, "http://"+addr+path)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "gateway address (default: server.http_addr from config)")
	return cmd
}

func probe(cmd *cobra.Command, url string) error {
	ctx := cmd.Context()
	client := &http.Client{Timeout: healthTimeout}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s check failed: %w", cmd.Name(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d: %s", resp.StatusCode, body)
	}

	fmt.Fprintln(cmd.OutOrStdout(), string(body))
	return nil
}
