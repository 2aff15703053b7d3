package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	fedAuth "github.com/MrEthical07/fedAuth"
	"github.com/MrEthical07/fedAuth/accountcache"
	"github.com/MrEthical07/fedAuth/entra"
	"github.com/MrEthical07/fedAuth/federation"
	"github.com/MrEthical07/fedAuth/internal/config"
	"github.com/MrEthical07/fedAuth/internal/logging"
	"github.com/MrEthical07/fedAuth/internal/remotes"
	"github.com/MrEthical07/fedAuth/metrics/export/prometheus"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the shell, its remotes and the login callback",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			logger := logging.New(os.Stdout, cfg.Log.Level, cfg.Log.Format)
			slog.SetDefault(logger)
			return serve(cmd.Context(), cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg config.FileConfig, logger *slog.Logger) error {
	cache, closeCache, err := openCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeCache()

	scope := federation.NewScope(logger)
	req := federation.Requirement{
		RequiredVersion: cfg.Federation.RequiredVersion,
		StrictVersion:   cfg.Federation.StrictVersion,
	}
	provider, err := federation.Share(scope, cfg.Federation.ProviderName, cfg.Federation.ProviderVersion, req,
		func() (*entra.Provider, error) {
			return entra.New(ctx, entra.Config{
				TenantID:             cfg.Entra.TenantID,
				ClientID:             cfg.Entra.ClientID,
				ClientSecret:         cfg.Entra.ClientSecret,
				Authority:            cfg.Entra.Authority,
				RedirectURI:          cfg.Entra.RedirectURI,
				PostLoginRedirectURI: cfg.Entra.PostLoginRedirectURI,
				DefaultScopes:        cfg.Auth.Login.Scopes,
				Cache:                cache,
				Navigator:            entra.HTTPNavigator{},
				Logger:               logger,
				StateTTL:             cfg.Entra.StateTTL,
			})
		})
	if err != nil {
		return err
	}
	defer provider.Close()

	facade, err := fedAuth.New().
		WithConfig(cfg.Auth).
		WithProvider(provider).
		WithLogger(logger).
		WithAuditSink(fedAuth.NewJSONWriterSink(os.Stderr)).
		Build()
	if err != nil {
		return err
	}
	defer facade.Close()

	stopExport, err := startMetricsExport(ctx, cfg.Metrics.OTel, facade, logger)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := stopExport(flushCtx); err != nil {
			logger.Warn("metric export shutdown failed", "error", err)
		}
	}()

	products, err := remotes.New(scope, remotes.Options{
		Name:         "products",
		ProviderName: cfg.Federation.ProviderName,
		Requirement:  req,
		Items:        remotes.ProductItems,
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	orders, err := remotes.New(scope, remotes.Options{
		Name:          "orders",
		ProviderName:  cfg.Federation.ProviderName,
		Requirement:   req,
		TokenScopes:   cfg.Auth.Login.Scopes,
		RequiredRoles: cfg.Remotes.OrdersRoles,
		Items:         remotes.OrderItems,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	app := &shell{
		facade:       facade,
		logger:       logger,
		callbackPath: cfg.CallbackPath(),
		callback:     provider.CallbackHandler(),
		metrics:      prometheus.NewCollector(facade).Handler(),
		remotes:      []*remotes.Remote{products, orders},
		graph:        newGraphClient(facade, cfg.Graph.BaseURL, cfg.Graph.Scopes),
		graphBase:    cfg.Graph.BaseURL,
		loginContext: func(w http.ResponseWriter, r *http.Request) context.Context {
			return entra.WithHTTP(r.Context(), w, r)
		},
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           app.router(),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	logger.InfoContext(ctx, "starting fedauth server", "address", cfg.Server.Addr)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server exited")
	return nil
}

// openCache returns the Redis account cache when configured, else an
// in-process one.
func openCache(ctx context.Context, cfg config.FileConfig) (accountcache.Cache, func(), error) {
	if cfg.Redis.Addr == "" {
		return accountcache.NewMemory(), func() {}, nil
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{cfg.Redis.Addr},
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
	}
	return accountcache.NewStore(client, cfg.Redis.Prefix, cfg.Entra.ClientID), func() { _ = client.Close() }, nil
}
