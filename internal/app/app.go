package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	server "cart-flipper/server"
	"cart-flipper/server/internal/config"
	servernet "cart-flipper/server/internal/net"
	"cart-flipper/server/internal/observability"
	"cart-flipper/server/internal/telemetry"
	"cart-flipper/server/logging"
	loggingSinks "cart-flipper/server/logging/sinks"
)

const closeTimeout = 2 * time.Second

// ErrAuthorityGone is returned in client mode when the authority drops the
// connection, usually after a version mismatch.
var ErrAuthorityGone = errors.New("authority closed the connection")

type Config struct {
	Env    config.Env
	Logger telemetry.Logger
}

// Run starts the process in the role selected by cfg.Env and blocks until
// ctx ends or a component fails.
func Run(ctx context.Context, cfg Config) error {
	telemetryLogger := cfg.Logger
	if telemetryLogger == nil {
		telemetryLogger = telemetry.WrapLogger(log.Default())
	}

	fallbackLogger := log.Default()
	if provider, ok := telemetryLogger.(interface{ StandardLogger() *log.Logger }); ok {
		if candidate := provider.StandardLogger(); candidate != nil {
			fallbackLogger = candidate
		}
	}

	logConfig := cfg.Env.Logging()
	sinks, closeFiles, err := buildSinks(logConfig)
	if err != nil {
		return err
	}
	defer closeFiles()

	router, err := logging.NewRouter(logConfig, logging.SystemClock{}, fallbackLogger, sinks)
	if err != nil {
		return fmt.Errorf("failed to construct logging router: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if cerr := router.Close(closeCtx); cerr != nil {
			telemetryLogger.Printf("failed to close logging router: %v", cerr)
		}
	}()

	settings, err := config.LoadSettings(cfg.Env.SettingsPath)
	if err != nil {
		return err
	}

	switch cfg.Env.Role {
	case config.RoleClient:
		return runClient(ctx, cfg.Env, settings, router, telemetryLogger)
	default:
		return runAuthority(ctx, cfg.Env, settings, router, telemetryLogger)
	}
}

func runAuthority(ctx context.Context, env config.Env, settings config.Settings, pub logging.Publisher, logger telemetry.Logger) error {
	observabilityCfg := env.Observability()
	shutdownTracing, err := observability.Setup(ctx, observabilityCfg)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if err := shutdownTracing(closeCtx); err != nil {
			logger.Printf("failed to flush traces: %v", err)
		}
	}()

	authorityCfg := server.DefaultAuthorityConfig()
	authorityCfg.Correction = settings.Correction()
	authorityCfg.TickRate = env.TickRate
	authorityCfg.RequestsPerSecond = settings.RequestsPerSecond
	authorityCfg.RequestBurst = settings.RequestBurst
	authorityCfg.VersionGraceDelay = settings.VersionGraceDelay
	authorityCfg.Publisher = pub
	authorityCfg.Logger = logger

	authority, err := server.NewAuthority(authorityCfg)
	if err != nil {
		return err
	}
	if err := authority.SpawnDemoCarts(env.DemoCarts); err != nil {
		return err
	}
	if settings.Synchronized("maxAttempts") {
		logger.Printf("maxAttempts=%d is synchronized with peers", settings.MaxAttempts)
	}

	handler := servernet.NewHTTPHandler(authority, servernet.HTTPHandlerConfig{
		Logger:        logger,
		Observability: observabilityCfg,
	})
	srv := &http.Server{Addr: env.ListenAddr, Handler: handler}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return authority.Run(gctx)
	})
	g.Go(func() error {
		logger.Printf("server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), env.ShutdownWait)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func runClient(ctx context.Context, env config.Env, settings config.Settings, pub logging.Publisher, logger telemetry.Logger) error {
	peerID := env.PeerID
	if peerID == 0 {
		peerID = RandomPeerID()
	}
	client, err := server.NewClient(server.ClientConfig{
		ID:        peerID,
		Version:   server.ProtocolVersion,
		Publisher: pub,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	if err := client.Connect(ctx, env.AuthorityURL); err != nil {
		return err
	}
	defer client.Close()
	logger.Printf("connected to %s as peer %d, correction bound to %s", env.AuthorityURL, peerID, settings.CorrectionKey)

	select {
	case <-ctx.Done():
		return nil
	case <-client.Done():
		if ctx.Err() != nil {
			return nil
		}
		return ErrAuthorityGone
	}
}

// RandomPeerID draws a routing id that cannot collide with the authority's.
func RandomPeerID() uint64 {
	for {
		if id := rand.Uint64(); id != 0 && id != server.DefaultAuthorityID {
			return id
		}
	}
}

func buildSinks(cfg logging.Config) (map[string]logging.Sink, func(), error) {
	sinks := make(map[string]logging.Sink, len(cfg.EnabledSinks))
	var files []io.Closer
	closeFiles := func() {
		for _, f := range files {
			f.Close()
		}
	}
	for _, name := range cfg.EnabledSinks {
		switch name {
		case "console":
			sinks[name] = loggingSinks.NewConsoleSink(os.Stdout, cfg.Console)
		case "json":
			if cfg.JSON.FilePath == "" {
				closeFiles()
				return nil, nil, fmt.Errorf("json sink requires a file path")
			}
			f, err := os.OpenFile(cfg.JSON.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				closeFiles()
				return nil, nil, fmt.Errorf("open json log: %w", err)
			}
			files = append(files, f)
			sinks[name] = loggingSinks.NewJSON(f, cfg.JSON.FlushInterval)
		case "redis":
			if cfg.Redis.Addr == "" {
				closeFiles()
				return nil, nil, fmt.Errorf("redis sink requires an address")
			}
			sinks[name] = loggingSinks.DialRedis(cfg.Redis)
		default:
			closeFiles()
			return nil, nil, fmt.Errorf("unknown log sink %q", name)
		}
	}
	return sinks, closeFiles, nil
}
