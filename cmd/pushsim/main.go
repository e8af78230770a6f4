// Package main provides pushsim, a local simulator for the FactoryLink
// push subsystem. It runs the full device lifecycle against a real backend
// (or a stub) with an in-memory notification runtime standing in for the
// mobile platform, and exposes a debug HTTP surface to drive it.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/factorylink/factorylink/internal/debugapi"
	"github.com/factorylink/factorylink/internal/deviceinfo"
	"github.com/factorylink/factorylink/internal/inbox"
	"github.com/factorylink/factorylink/internal/lifecycle"
	"github.com/factorylink/factorylink/internal/provider/resilience"
	"github.com/factorylink/factorylink/internal/registry"
	"github.com/factorylink/factorylink/internal/session"
	"github.com/factorylink/factorylink/internal/telemetry"
	"github.com/factorylink/factorylink/internal/transport"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "factorylink-pushsim"

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
		With().
		Timestamp().
		Str("service", serviceName).
		Logger()

	log.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Msg("starting pushsim")

	apiURL := envOr("FACTORYLINK_API_URL", "http://localhost:8080")
	port := envOr("PUSHSIM_PORT", "9090")
	stateDir := envOr("FACTORYLINK_STATE_DIR", defaultStateDir())
	env := envOr("APP_ENV", "development")

	// Initialize OpenTelemetry
	ctx := context.Background()
	telemetryEnabled := os.Getenv("OTEL_ENABLED") == "true"

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    env,
		OTLPEndpoint:   envOr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		Enabled:        telemetryEnabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	// Resolve the persistent device identity
	device, err := deviceinfo.Resolve(deviceinfo.Config{
		StateDir:   stateDir,
		AppVersion: Version,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to resolve device identity")
	}
	log.Info().
		Str("device_id", device.DeviceID).
		Str("platform", string(device.Platform)).
		Msg("device identity resolved")

	// The in-memory runtime stands in for the mobile platform bindings
	runtime := transport.NewMemoryRuntime()
	adapter := transport.NewAdapter(transport.AdapterConfig{
		Runtime:  runtime,
		Channels: transport.DefaultChannels(),
		Logger:   log,
	})

	sessions := session.NewStore()
	health := resilience.NewHealthRegistry()

	registryClient := registry.NewClient(registry.ClientConfig{
		BaseURL:  apiURL,
		Sessions: sessions,
		Device:   device,
		Health:   health,
		Logger:   log,
	})

	inboxClient := inbox.NewHTTPClient(inbox.ClientConfig{
		BaseURL:  apiURL,
		Sessions: sessions,
		Health:   health,
		Logger:   log,
	})
	inboxService := inbox.NewService(inbox.ServiceConfig{
		Client: inboxClient,
		Logger: log,
	})

	controller, err := lifecycle.NewController(lifecycle.ControllerConfig{
		Transport: adapter,
		Registry:  registryClient,
		Sessions:  sessions,
		Meter:     tp.Meter,
		Logger:    log,
		OnNotificationReceived: func(n transport.Notification) {
			log.Info().
				Str("title", n.Title).
				Str("source", n.Source()).
				Msg("notification received in foreground")
			if err := inboxService.RefreshUnreadCount(ctx); err != nil {
				log.Warn().Err(err).Msg("unread count refresh after delivery failed")
			}
		},
		OnNotificationTapped: func(n transport.Notification) {
			log.Info().
				Str("title", n.Title).
				Str("source", n.Source()).
				Str("source_id", n.SourceID()).
				Msg("notification tapped")
		},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create lifecycle controller")
	}

	controller.Start(ctx)
	defer controller.Stop()
	log.Info().Str("api_url", apiURL).Msg("push lifecycle active")

	router := debugapi.NewRouter(debugapi.RouterConfig{
		Version:    Version,
		Logger:     log,
		Controller: controller,
		Adapter:    adapter,
		Runtime:    runtime,
		Sessions:   sessions,
		Device:     device,
		Health:     health,
	})

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("debug server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("debug server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down pushsim")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("debug server forced to shutdown")
	}

	log.Info().Msg("pushsim stopped")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func defaultStateDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "factorylink-pushsim")
	}
	return ".pushsim"
}
