package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cassiomorais/paymentrecon/internal/bootstrap"
	"github.com/cassiomorais/paymentrecon/internal/controller"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, "paymentrecon-api", "paymentrecon")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	paymentService, err := app.PaymentService(ctx)
	if err != nil {
		app.Logger.Fatal().Err(err).Msg("Failed to build payment service")
	}

	serverCfg := app.Config.Server
	router := controller.NewRouter(controller.RouterDeps{
		Health:             controller.NewHealthController(app.Pool, app.Redis),
		PaymentService:     paymentService,
		Metrics:            app.Metrics,
		CORSConfig:         serverCfg.CORS,
		RateLimitPerMinute: serverCfg.RateLimitPerMinute,
		JWTSecret:          serverCfg.JWTSecret,
	})

	addr := fmt.Sprintf(":%d", serverCfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  serverCfg.ReadTimeout,
		WriteTimeout: serverCfg.WriteTimeout,
		IdleTimeout:  serverCfg.IdleTimeout,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		app.Logger.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		app.Logger.Info().Msg("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverCfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		app.Logger.Error().Err(err).Msg("Server stopped with error")
	}
	app.Logger.Info().Msg("Server exited")
}
