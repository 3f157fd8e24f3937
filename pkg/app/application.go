package app

import (
	"classguard/pkg/config"
	"classguard/pkg/contracts"
	"classguard/pkg/middleware"
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/julienschmidt/httprouter"
)

type ShutdownHook func(ctx context.Context)

type Application struct {
	cfg    *config.Config
	server *http.Server
	hooks  []ShutdownHook
}

func NewApplication(cfg *config.Config) *Application {
	return &Application{cfg: cfg}
}

// SetApp mounts the health endpoints with minimal middleware and the
// admin API with the full stack, then builds the HTTP server.
func (a *Application) SetApp(healthHandler contracts.Handler, appHandler contracts.Handler) {
	healthRouter := httprouter.New()
	healthHandler.RegisterRoutes(healthRouter)

	var health http.Handler = healthRouter
	health = middleware.Recovery(a.cfg.Log)(health)

	appRouter := httprouter.New()
	appHandler.RegisterRoutes(appRouter)

	var api http.Handler = appRouter
	api = middleware.RequestTimeout(a.cfg.SweepTimeout)(api)
	api = middleware.RequestLogging(a.cfg.Log)(api)
	api = middleware.Recovery(a.cfg.Log)(api)

	mux := http.NewServeMux()
	mux.Handle("/health", health)
	mux.Handle("/ready", health)
	mux.Handle("/", api)

	a.server = &http.Server{
		Addr:         ":" + a.cfg.Port,
		Handler:      mux,
		ReadTimeout:  a.cfg.ReadTimeout,
		WriteTimeout: a.cfg.WriteTimeout + a.cfg.SweepTimeout,
		IdleTimeout:  a.cfg.IdleTimeout,
	}

	a.cfg.Log.Info("HTTP server configured", "port", a.cfg.Port)
}

// OnShutdown registers hooks run in registration order after the HTTP
// server has drained.
func (a *Application) OnShutdown(hook ShutdownHook) {
	a.hooks = append(a.hooks, hook)
}

// Run serves until SIGINT/SIGTERM or a server failure, then shuts down.
func (a *Application) Run() {
	serverErrors := make(chan error, 1)

	go func() {
		a.cfg.Log.Info("Starting HTTP server", "address", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	select {
	case err := <-serverErrors:
		a.cfg.Log.Error("HTTP server failed", "error", err)
	case sig := <-shutdown:
		a.cfg.Log.Info("Shutdown signal received", "signal", sig.String())
	}

	a.gracefulShutdown()
}

func (a *Application) gracefulShutdown() {
	a.cfg.Log.Info("Starting graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		a.cfg.Log.Error("Server shutdown failed", "error", err)
		if err := a.server.Close(); err != nil {
			a.cfg.Log.Error("Could not stop server gracefully", "error", err)
		}
	}

	for _, hook := range a.hooks {
		hook(ctx)
	}

	a.cfg.Log.Info("Server stopped gracefully")
}
