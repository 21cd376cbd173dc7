// ABOUTME: Operator setup commands: init writes a config, bootstrap creates the first admin,
// ABOUTME: token mints a local bearer token for an existing user

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/2389/dream-gateway/internal/auth"
	"github.com/2389/dream-gateway/internal/config"
	"github.com/2389/dream-gateway/internal/store"
)

// systemActor is the audit actor for changes made from the command line.
const systemActor = "system"

func generateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func defaultConfigPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml"
		}
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "dreams", "gateway.yaml")
}

func defaultDatabasePath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join("data", "dreams.db")
		}
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "dreams", "dreams.db")
}

func yes(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "y" || s == "yes"
}

// encodeConfig renders cfg as TOML when path ends in .toml, YAML otherwise.
func encodeConfig(w io.Writer, path string, cfg *config.Config) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return toml.NewEncoder(w).Encode(cfg)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	return enc.Close()
}

func writeConfigFile(path string, cfg *config.Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	var buf strings.Builder
	buf.WriteString("# dream-gateway configuration\n")
	buf.WriteString("# Generated by dream-gateway init\n\n")
	if err := encodeConfig(&buf, path, cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	// The file holds signing secrets.
	if err := os.WriteFile(path, []byte(buf.String()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

func newInitCmd(opts *rootOptions) *cobra.Command {
	var (
		force          bool
		nonInteractive bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a new config file with a fresh local signing secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			reader := bufio.NewReader(cmd.InOrStdin())
			ask := func(question, defaultVal string) string {
				if nonInteractive {
					return defaultVal
				}
				return prompt(reader, out, question, defaultVal)
			}

			if !nonInteractive {
				fmt.Fprintln(out, "dream-gateway configuration setup")
				fmt.Fprintln(out, "=================================")
				fmt.Fprintln(out)
			}

			outputFile := opts.configPath
			if outputFile == "" {
				outputFile = ask("Config file path", defaultConfigPath())
			}

			if _, err := os.Stat(outputFile); err == nil && !force {
				if nonInteractive || !yes(ask("File exists. Overwrite?", "no")) {
					return fmt.Errorf("%s already exists (use --force to overwrite)", outputFile)
				}
			}

			cfg := config.Default()
			secret, err := generateSecret()
			if err != nil {
				return err
			}
			cfg.Auth.LocalJWTSecret = secret

			if !nonInteractive {
				fmt.Fprintln(out, "\n--- Server ---")
			}
			cfg.Server.HTTPAddr = ask("HTTP address", cfg.Server.HTTPAddr)
			cfg.Server.Environment = ask("Environment (development/production)", cfg.Server.Environment)

			if !nonInteractive {
				fmt.Fprintln(out, "\n--- Database ---")
			}
			cfg.Database.Path = ask("SQLite database path", defaultDatabasePath())

			if !nonInteractive {
				fmt.Fprintln(out, "\n--- Platform tokens ---")
			}
			cfg.Auth.PlatformJWTSecret = ask("Platform JWT secret (leave empty to use JWKS)", "")
			if cfg.Auth.PlatformJWTSecret == "" {
				cfg.Auth.PlatformJWKSURL = ask("Platform JWKS URL (leave empty to disable)", "")
			}

			if !nonInteractive {
				fmt.Fprintln(out, "\n--- Tailscale ---")
			}
			if yes(ask("Enable Tailscale?", "no")) {
				cfg.Tailscale.Enabled = true
				cfg.Tailscale.Hostname = ask("Tailscale hostname", "dream-gateway")
				cfg.Tailscale.AuthKey = ask("Tailscale auth key (leave empty for interactive)", "")
				cfg.Tailscale.Ephemeral = yes(ask("Ephemeral node?", "no"))
				cfg.Tailscale.Funnel = yes(ask("Enable Funnel (public HTTPS)?", "no"))
			}

			if !nonInteractive {
				fmt.Fprintln(out, "\n--- Logging ---")
			}
			cfg.Logging.Level = ask("Log level (debug/info/warn/error)", cfg.Logging.Level)
			cfg.Logging.Format = ask("Log format (text/json)", cfg.Logging.Format)

			if err := writeConfigFile(outputFile, cfg); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
				return fmt.Errorf("creating data directory: %w", err)
			}

			green := color.New(color.FgGreen)
			green.Fprintf(out, "\n  ✓ Config written to %s\n", outputFile)
			fmt.Fprintf(out, "  ✓ Database: %s\n", cfg.Database.Path)
			fmt.Fprintln(out, "\nNext:")
			fmt.Fprintf(out, "  dream-gateway --config %s bootstrap --email you@example.com\n", outputFile)
			fmt.Fprintf(out, "  dream-gateway --config %s serve\n", outputFile)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	cmd.Flags().BoolVarP(&nonInteractive, "yes", "y", false, "accept all defaults without prompting")
	return cmd
}

func prompt(reader *bufio.Reader, out io.Writer, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Fprintf(out, "%s [%s]: ", question, defaultVal)
	} else {
		fmt.Fprintf(out, "%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		// EOF: take the default
		fmt.Fprintln(out)
		return defaultVal
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultVal
	}
	return input
}

// openStore opens the configured datastore directly, bypassing the gateway.
func openStore(cfg *config.Config) (*store.SQLiteStore, error) {
	s, err := store.OpenSQLiteStore(cfg.Database.Driver, cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return s, nil
}

func issueLocalToken(ctx context.Context, s store.Store, cfg *config.Config, u *store.User, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		ttl = cfg.Auth.LocalTokenTTL
	}
	identity := auth.IdentityFromUser(u)
	token, expiresAt, err := auth.NewTokenIssuer([]byte(cfg.Auth.LocalJWTSecret)).Issue(identity, ttl)
	if err != nil {
		if auth.KindOf(err) == auth.KindServerMisconfigured {
			return "", time.Time{}, errors.New("auth.local_jwt_secret is not configured")
		}
		return "", time.Time{}, fmt.Errorf("issuing token: %w", err)
	}

	if err := s.AppendAuditLog(ctx, &store.AuditEntry{
		ActorID:    systemActor,
		Action:     store.AuditIssueToken,
		TargetType: "user",
		TargetID:   u.ID,
		Detail:     map[string]any{"expires_at": expiresAt.UTC().Format(time.RFC3339), "source": "cli"},
	}); err != nil {
		return "", time.Time{}, fmt.Errorf("recording audit entry: %w", err)
	}
	return token, expiresAt, nil
}

// newBootstrapCmd performs first-time setup: it creates the first admin user and
// saves a local token for it. It refuses to run once any user exists.
func newBootstrapCmd(opts *rootOptions) *cobra.Command {
	var (
		email       string
		displayName string
		tokenFile   string
	)

	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Create the first admin user and a local token for it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			email = strings.TrimSpace(email)
			if email == "" || !strings.Contains(email, "@") {
				return errors.New("--email must be a valid email address")
			}
			displayName = strings.TrimSpace(displayName)
			if len(displayName) > 100 {
				return errors.New("display name exceeds maximum length of 100 characters")
			}

			cfg, configPath, err := opts.load()
			if err != nil {
				return err
			}
			if cfg.Auth.LocalJWTSecret == "" {
				return fmt.Errorf("auth.local_jwt_secret not configured in %s (required for bootstrap)", configPath)
			}

			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := cmd.Context()
			count, err := s.CountUsers(ctx)
			if err != nil {
				return fmt.Errorf("checking users: %w", err)
			}
			if count > 0 {
				return fmt.Errorf("bootstrap already complete: %d user(s) exist", count)
			}

			u := &store.User{
				ID:          uuid.New().String(),
				Email:       email,
				Role:        store.RoleAdmin,
				DisplayName: displayName,
			}
			if err := s.CreateUser(ctx, u); err != nil {
				return fmt.Errorf("creating user: %w", err)
			}
			if err := s.AppendAuditLog(ctx, &store.AuditEntry{
				ActorID:    systemActor,
				Action:     store.AuditCreateUser,
				TargetType: "user",
				TargetID:   u.ID,
				Detail:     map[string]any{"role": u.Role, "source": "bootstrap"},
			}); err != nil {
				return fmt.Errorf("recording audit entry: %w", err)
			}

			token, expiresAt, err := issueLocalToken(ctx, s, cfg, u, 0)
			if err != nil {
				return err
			}

			if tokenFile == "" {
				tokenFile = filepath.Join(filepath.Dir(configPath), "token")
			}
			if err := os.WriteFile(tokenFile, []byte(token), 0600); err != nil {
				return fmt.Errorf("writing token file: %w", err)
			}

			out := cmd.OutOrStdout()
			green := color.New(color.FgGreen)
			cyan := color.New(color.FgCyan)
			yellow := color.New(color.FgYellow)

			green.Fprintf(out, "  ✓ Database: %s\n", cfg.Database.Path)
			green.Fprintf(out, "  ✓ Created admin user: %s\n", email)
			green.Fprintf(out, "  ✓ Saved token: %s\n", tokenFile)
			fmt.Fprintln(out)
			cyan.Fprintln(out, "  Admin User")
			cyan.Fprintln(out, "  ----------")
			fmt.Fprintf(out, "  ID:      %s\n", u.ID)
			fmt.Fprintf(out, "  Email:   %s\n", u.Email)
			fmt.Fprintf(out, "  Role:    %s\n", u.Role)
			fmt.Fprintf(out, "  Token:   %s (expires %s)\n", tokenFile, expiresAt.Format("Jan 02, 2006 15:04"))
			fmt.Fprintln(out)
			yellow.Fprintln(out, "  Ready to go:")
			fmt.Fprintln(out, "    dream-gateway serve")
			fmt.Fprintf(out, "    curl -H \"Authorization: Bearer $(cat %s)\" http://%s/api/users/me\n", tokenFile, cfg.Server.HTTPAddr)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "email of the admin user (required)")
	cmd.Flags().StringVarP(&displayName, "name", "n", "", "display name of the admin user")
	cmd.Flags().StringVar(&tokenFile, "token-file", "", "where to save the token (default: next to the config file)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var (
		userID string
		email  string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a local bearer token for an existing user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (userID == "") == (email == "") {
				return errors.New("exactly one of --user or --email is required")
			}

			cfg, _, err := opts.load()
			if err != nil {
				return err
			}
			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := cmd.Context()
			var u *store.User
			if userID != "" {
				u, err = s.GetUser(ctx, userID)
			} else {
				u, err = s.GetUserByEmail(ctx, email)
			}
			if errors.Is(err, store.ErrNotFound) {
				return errors.New("user not found")
			}
			if err != nil {
				return fmt.Errorf("looking up user: %w", err)
			}

			token, expiresAt, err := issueLocalToken(ctx, s, cfg, u, ttl)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.UTC().Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().StringVar(&email, "email", "", "user email")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default: auth.local_token_ttl)")
	return cmd
}
