package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"otp-guard/internal/config"
	"otp-guard/internal/factory"
	"otp-guard/internal/handler"
	"otp-guard/internal/util"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		util.Fatal("Server exited with error", util.ErrorField(err))
	}
}

func run() error {
	// Initialize factory (which loads config and initializes all clients)
	f, err := factory.NewFactory()
	if err != nil {
		return fmt.Errorf("failed to initialize factory: %w", err)
	}
	defer f.Close()

	cfg := f.Config()
	servers, err := buildServers(f, setupRouter(f))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		srv := srv
		g.Go(func() error {
			util.Info("Listening",
				util.String("address", srv.Addr),
				util.Bool("tls", srv.TLSConfig != nil),
			)
			var serveErr error
			if srv.TLSConfig != nil {
				// Certificates come from TLSConfig.GetCertificate.
				serveErr = srv.ListenAndServeTLS("", "")
			} else {
				serveErr = srv.ListenAndServe()
			}
			if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
				return fmt.Errorf("server %s: %w", srv.Addr, serveErr)
			}
			return nil
		})
	}

	util.Info("Server started successfully",
		util.String("environment", cfg.Environment),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.Bool("auto_cert", cfg.Server.AutoCert),
	)

	g.Go(func() error {
		<-gctx.Done()
		util.Info("Shutting down servers")
		return shutdown(servers)
	})

	return g.Wait()
}

// setupRouter creates the HTTP router with all handlers using Chi
func setupRouter(f *factory.Factory) http.Handler {
	cfg := f.Config()
	logger := f.Logger()
	serviceFactory := f.ServiceFactory()

	authHandler := handler.NewAuthHandler(serviceFactory.AuthService(), logger.Named("auth"))

	var adminHandler *handler.AdminHandler
	if cfg.Server.AdminToken != "" {
		adminHandler = handler.NewAdminHandler(serviceFactory.AdminService(), cfg.Server.AdminToken, logger.Named("admin"))
	} else {
		logger.Info("ADMIN_TOKEN not set, admin routes disabled")
	}

	routerCfg := handler.RouterConfig{
		RequireHTTPS:      cfg.Server.EnableTLS,
		AllowedOrigins:    cfg.Server.AllowedOrigins,
		RateLimitRequests: cfg.Server.RateLimitRequests,
		RateLimitWindow:   cfg.Server.RateLimitWindow,
		HealthCheck:       f.Ready,
	}
	if cfg.Metrics.Enabled {
		routerCfg.MetricsPath = cfg.Metrics.Path
	}

	return handler.NewRouter(routerCfg, authHandler, adminHandler, logger)
}

// buildServers returns the listeners for the configured mode: plain HTTP,
// HTTPS on the TLS port, or the autocert pair of :80 challenge server and
// :443 API server.
func buildServers(f *factory.Factory, router http.Handler) ([]*http.Server, error) {
	cfg := f.Config()

	if !cfg.Server.EnableTLS {
		util.Warn("Starting HTTP server - TLS is disabled",
			util.String("environment", cfg.Environment),
			util.Int("port", cfg.Server.Port),
		)
		return []*http.Server{newServer(cfg, cfg.GetServerAddress(), router)}, nil
	}

	tlsManager := f.TLSManager()
	if tlsManager == nil {
		return nil, errors.New("TLS enabled but no TLS manager was built")
	}

	if cfg.IsProduction() && cfg.Server.AutoCert {
		autoCertManager := tlsManager.GetAutocertManager()
		if autoCertManager == nil {
			return nil, errors.New("AutoCert manager is not available in production")
		}

		// ACME challenges and redirect only
		challenge := &http.Server{
			Addr:              ":80",
			Handler:           autoCertManager.HTTPHandler(nil),
			ReadHeaderTimeout: cfg.Server.ReadTimeout,
		}
		api := newServer(cfg, ":443", router)
		api.TLSConfig = tlsManager.GetTLSConfig()
		return []*http.Server{challenge, api}, nil
	}

	api := newServer(cfg, fmt.Sprintf(":%d", cfg.Server.TLSPort), router)
	api.TLSConfig = tlsManager.GetTLSConfig()
	return []*http.Server{api}, nil
}

func newServer(cfg *config.Config, addr string, router http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}

func shutdown(servers []*http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			util.Error("Failed to shutdown server gracefully",
				util.String("address", srv.Addr),
				util.ErrorField(err),
			)
			errs = append(errs, err)
			continue
		}
		util.Info("Server shutdown completed", util.String("address", srv.Addr))
	}
	return errors.Join(errs...)
}
