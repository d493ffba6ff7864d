package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mmynk/splitledger/internal/auth"
	"github.com/mmynk/splitledger/internal/config"
	"github.com/mmynk/splitledger/internal/httpapi"
	"github.com/mmynk/splitledger/internal/media"
	"github.com/mmynk/splitledger/internal/metrics"
	"github.com/mmynk/splitledger/internal/notify"
	"github.com/mmynk/splitledger/internal/service"
	"github.com/mmynk/splitledger/internal/storage"
	"github.com/mmynk/splitledger/internal/storage/mongo"
	"github.com/mmynk/splitledger/internal/storage/sqlite"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, appCfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, cfg *config.Config) error {
	started := time.Now()

	store, err := openStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer store.Close()

	mediaStore, mediaDir, err := openMedia(ctx, cfg.Media)
	if err != nil {
		return err
	}

	pusher, closePusher, err := openPusher(ctx, cfg.Notifications)
	if err != nil {
		return err
	}
	defer closePusher()

	collector := metrics.NewCollector()
	dispatcher := notify.NewDispatcher(store, pusher, collector)
	jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	handler := httpapi.NewRouter(httpapi.Deps{
		Identity:  service.NewIdentityService(store, auth.NewPasswordAuthenticator(store), jwtManager),
		Groups:    service.NewGroupService(store, mediaStore),
		Ledger:    service.NewLedgerService(store, mediaStore, dispatcher),
		JWT:       jwtManager,
		Health:    httpapi.NewHealth(store, started),
		Collector: collector,
		Metrics:   metrics.Handler(metrics.NewRegistry(collector)),
		MediaDir:  mediaDir,
		MediaPath: mediaPath(cfg.Media.BaseURL),
	})

	// h2c serves the Connect health procedure over HTTP/2 without TLS
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           h2c.NewHandler(handler, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server starting", "addr", srv.Addr, "base_path", httpapi.BasePath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Shutting down", "timeout", cfg.Server.ShutdownTimeout)
	return shutdown(srv, dispatcher, cfg.Server.ShutdownTimeout)
}

// shutdown stops accepting requests, then waits for in-flight pushes. The
// dispatcher is drained even when the HTTP shutdown times out.
func shutdown(srv *http.Server, dispatcher *notify.Dispatcher, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := srv.Shutdown(ctx)
	dispatcher.Wait()
	if err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	slog.Info("Server stopped")
	return nil
}

func openStore(ctx context.Context, cfg config.DatabaseConfig) (storage.Store, error) {
	switch cfg.Driver {
	case config.DriverMongo:
		store, err := mongo.New(ctx, cfg.URI, cfg.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		slog.Info("Storage initialized", "driver", cfg.Driver, "database", cfg.Name)
		return store, nil
	default:
		store, err := sqlite.New(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		slog.Info("Storage initialized", "driver", cfg.Driver, "database", cfg.Path)
		return store, nil
	}
}

// openMedia returns the image store and, for the local backend, the
// directory the router should serve.
func openMedia(ctx context.Context, cfg config.MediaConfig) (media.Store, string, error) {
	switch cfg.Backend {
	case config.MediaS3:
		store, err := media.NewS3Store(ctx, media.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			PublicURL:       cfg.S3.PublicURL,
		})
		if err != nil {
			return nil, "", fmt.Errorf("failed to initialize media store: %w", err)
		}
		slog.Info("Media store initialized", "backend", cfg.Backend, "bucket", cfg.S3.Bucket)
		return store, "", nil
	default:
		store, err := media.NewLocalStore(cfg.Dir, cfg.BaseURL)
		if err != nil {
			return nil, "", fmt.Errorf("failed to initialize media store: %w", err)
		}
		slog.Info("Media store initialized", "backend", cfg.Backend, "dir", store.Dir())
		return store, store.Dir(), nil
	}
}

func openPusher(ctx context.Context, cfg config.NotificationsConfig) (notify.Pusher, func(), error) {
	noop := func() {}
	switch cfg.Backend {
	case config.PushFCM:
		pusher, err := notify.NewFCMPusher(ctx, cfg.FCM.ProjectID, cfg.FCM.CredentialsFile)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to initialize push transport: %w", err)
		}
		slog.Info("Push transport initialized", "backend", cfg.Backend, "project", cfg.FCM.ProjectID)
		return pusher, noop, nil
	case config.PushPulsar:
		pusher, err := notify.NewPulsarPusher(cfg.Pulsar.URL, cfg.Pulsar.Topic)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to initialize push transport: %w", err)
		}
		slog.Info("Push transport initialized", "backend", cfg.Backend, "topic", cfg.Pulsar.Topic)
		return pusher, pusher.Close, nil
	default:
		slog.Info("Push transport initialized", "backend", config.PushLog)
		return notify.LogPusher{}, noop, nil
	}
}

// mediaPath returns the route prefix for locally stored images. BaseURL may
// be a path or an absolute URL pointing back at this server.
func mediaPath(baseURL string) string {
	if u, err := url.Parse(baseURL); err == nil && u.Path != "" {
		baseURL = u.Path
	}
	return strings.TrimSuffix(baseURL, "/")
}
