// ABOUTME: Gateway orchestrator that wires the store, auth core and generation clients
// ABOUTME: Owns the HTTP server lifecycle over TCP or a tailscale node, plus health endpoints

package gateway

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/dream-gateway/internal/auth"
	"github.com/2389/dream-gateway/internal/config"
	"github.com/2389/dream-gateway/internal/generation"
	"github.com/2389/dream-gateway/internal/metrics"
	"github.com/2389/dream-gateway/internal/render"
	"github.com/2389/dream-gateway/internal/store"
)

// readyTimeout bounds the store ping behind /health/ready.
const readyTimeout = 2 * time.Second

// Gateway serves the dreams API.
type Gateway struct {
	config      *config.Config
	store       store.Store
	auth        *auth.Authenticator
	issuer      *auth.TokenIssuer
	renderer    *render.Renderer
	transcriber generation.Transcriber
	comics      generation.ComicGenerator
	videos      generation.VideoGenerator
	registry    *prometheus.Registry
	metrics     *metrics.Collector
	limiter     *rateLimiter
	httpServer  *http.Server
	tsnetServer *tsnet.Server
	logger      *slog.Logger

	// stopJWKS ends the platform key refresh goroutine, if one was started
	stopJWKS context.CancelFunc
}

// Deps are the collaborators a Gateway can be given instead of building them
// from config. Nil fields are built from config.
type Deps struct {
	Store       store.Store
	Verifier    auth.TokenVerifier
	Transcriber generation.Transcriber
	Comics      generation.ComicGenerator
	Videos      generation.VideoGenerator
}

// initStore opens the configured SQLite database.
func initStore(cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	driver := cfg.Database.Driver
	if driver == "" {
		driver = store.DriverModernc
	}
	s, err := store.OpenSQLiteStore(driver, cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	logger.Info("store opened", "path", cfg.Database.Path, "driver", driver)
	return s, nil
}

// buildVerifier creates the dual-issuer verifier. When a JWKS URL is
// configured, asymmetric platform tokens are checked against it and the
// returned cancel func stops its refresh.
func buildVerifier(cfg *config.Config) (*auth.Verifier, context.CancelFunc, error) {
	vc := auth.VerifierConfig{
		PlatformSecret: []byte(cfg.Auth.PlatformJWTSecret),
		LocalSecret:    []byte(cfg.Auth.LocalJWTSecret),
		Leeway:         cfg.Auth.Leeway,
	}

	cancel := context.CancelFunc(func() {})
	if cfg.Auth.PlatformJWKSURL != "" {
		ctx, stop := context.WithCancel(context.Background())
		kf, err := auth.NewJWKSKeyfunc(ctx, cfg.Auth.PlatformJWKSURL)
		if err != nil {
			stop()
			return nil, nil, fmt.Errorf("loading platform JWKS: %w", err)
		}
		vc.PlatformKeys = kf
		cancel = stop
	}
	return auth.NewVerifier(vc), cancel, nil
}

func serviceConfig(sc config.ServiceConfig) generation.ServiceConfig {
	return generation.ServiceConfig{
		BaseURL: sc.BaseURL,
		APIKey:  sc.APIKey,
		Timeout: sc.Timeout,
	}
}

// New creates a Gateway from configuration: it opens the store, loads the
// platform key set and builds the generation clients.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	for _, w := range cfg.Warnings() {
		logger.Warn(w)
	}

	s, err := initStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	verifier, stopJWKS, err := buildVerifier(cfg)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	gw, err := NewWithDeps(cfg, Deps{Store: s, Verifier: verifier}, logger)
	if err != nil {
		stopJWKS()
		_ = s.Close()
		return nil, err
	}
	gw.stopJWKS = stopJWKS
	return gw, nil
}

// NewWithDeps creates a Gateway around the given collaborators.
func NewWithDeps(cfg *config.Config, deps Deps, logger *slog.Logger) (*Gateway, error) {
	if deps.Store == nil {
		return nil, errors.New("store is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if deps.Verifier == nil {
		deps.Verifier = auth.NewVerifier(auth.VerifierConfig{
			PlatformSecret: []byte(cfg.Auth.PlatformJWTSecret),
			LocalSecret:    []byte(cfg.Auth.LocalJWTSecret),
			Leeway:         cfg.Auth.Leeway,
		})
	}
	if deps.Transcriber == nil {
		deps.Transcriber = generation.NewTranscriptionClient(serviceConfig(cfg.Generation.Transcription))
	}
	if deps.Comics == nil {
		deps.Comics = generation.NewComicClient(serviceConfig(cfg.Generation.Comic), cfg.Generation.Comic.DefaultStyle)
	}
	if deps.Videos == nil {
		deps.Videos = generation.NewVideoClient(serviceConfig(cfg.Generation.Video))
	}

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	gw := &Gateway{
		config:      cfg,
		store:       deps.Store,
		issuer:      auth.NewTokenIssuer([]byte(cfg.Auth.LocalJWTSecret)),
		renderer:    render.NewRenderer(),
		transcriber: deps.Transcriber,
		comics:      deps.Comics,
		videos:      deps.Videos,
		registry:    registry,
		metrics:     collector,
		logger:      logger.With("component", "gateway"),
		stopJWKS:    func() {},
	}

	gw.auth = auth.NewAuthenticator(
		deps.Verifier,
		auth.NewResolver(deps.Store),
		logger.With("component", "auth"),
		auth.WithErrorWriter(gw.writeAuthError),
		auth.WithObserver(collector),
	)

	if cfg.RateLimit.Enabled {
		gw.limiter = newRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst)
	}

	readHeaderTimeout := cfg.Server.ReadHeaderTimeout
	if readHeaderTimeout <= 0 {
		readHeaderTimeout = 10 * time.Second
	}
	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gw.routes(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return gw, nil
}

// Handler returns the gateway's HTTP handler.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// setupTCPListener creates a standard TCP listener for HTTP.
func (g *Gateway) setupTCPListener() (net.Listener, error) {
	g.logger.Info("starting gateway", "http_addr", g.config.Server.HTTPAddr)

	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

// setupListener creates the HTTP listener based on configuration (Tailscale or TCP).
func (g *Gateway) setupListener(ctx context.Context) (net.Listener, error) {
	if g.config.Tailscale.Enabled {
		if g.config.Server.HTTPAddr != "" {
			g.logger.Warn("server.http_addr is ignored when tailscale is enabled",
				"http_addr", g.config.Server.HTTPAddr,
			)
		}
		return g.setupTailscaleListener(ctx)
	}
	return g.setupTCPListener()
}

// startServer serves HTTP in a goroutine, returning its error channel.
func (g *Gateway) startServer(ln net.Listener) chan error {
	errCh := make(chan error, 1)

	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	return errCh
}

// Run starts the gateway and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := g.setupListener(ctx)
	if err != nil {
		return err
	}

	errCh := g.startServer(ln)

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown uses a fresh context since the run context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	timeout := g.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return g.Shutdown(ctx)
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "dream-gateway", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable")
	}
	return authKey, nil
}

// setupTailscaleListener joins the tailnet and returns the HTTP listener.
func (g *Gateway) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	tsCfg := g.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, err
	}

	g.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	g.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := g.tsnetServer.Up(ctx)
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}
	g.logTailscaleStatus(tsCfg.Hostname, status)

	return g.createTailscaleHTTPListener(tsCfg)
}

// logTailscaleStatus logs info about the tailscale node status.
func (g *Gateway) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		g.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	g.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
}

// createTailscaleHTTPListener creates the appropriate HTTP listener based on config.
func (g *Gateway) createTailscaleHTTPListener(tsCfg config.TailscaleConfig) (net.Listener, error) {
	switch {
	case tsCfg.Funnel:
		g.logger.Info("enabling tailscale funnel (public HTTPS) on :443")
		ln, err := g.tsnetServer.ListenFunnel("tcp", ":443")
		if err != nil {
			_ = g.tsnetServer.Close()
			return nil, fmt.Errorf("listening on tailscale funnel port: %w", err)
		}
		return ln, nil
	case tsCfg.HTTPS:
		return g.createTailscaleTLSListener()
	default:
		ln, err := g.tsnetServer.Listen("tcp", ":80")
		if err != nil {
			_ = g.tsnetServer.Close()
			return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
		}
		return ln, nil
	}
}

// createTailscaleTLSListener creates a TLS listener using Tailscale's auto-provisioned certs.
func (g *Gateway) createTailscaleTLSListener() (net.Listener, error) {
	g.logger.Info("enabling HTTPS with Tailscale certs on :443")
	ln, err := g.tsnetServer.Listen("tcp", ":443")
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("listening on tailscale HTTPS port: %w", err)
	}
	lc, err := g.tsnetServer.LocalClient()
	if err != nil {
		_ = ln.Close()
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("getting tailscale local client: %w", err)
	}
	return tls.NewListener(ln, &tls.Config{
		GetCertificate: lc.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}), nil
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown gracefully stops the HTTP server and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	if g.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", g.tsnetServer.Close())
	}
	if g.limiter != nil {
		g.limiter.Stop()
	}
	g.stopJWKS()
	errs = appendCloseError(errs, "store close", g.store.Close())

	return errors.Join(errs...)
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK when the store answers a ping.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	if err := g.store.Ping(ctx); err != nil {
		g.logger.Warn("readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("store unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
