package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	passportsapi "github.com/BearBump/PassportDesk/internal/api/passports_api"
	"github.com/BearBump/PassportDesk/internal/broker/messages"
	"github.com/BearBump/PassportDesk/internal/services/passports"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"
)

const consumerRestartDelay = time.Second

type passportAPIOpts struct {
	httpAddr    string
	swaggerPath string

	topic         string
	consumerGroup string

	onListen func(httpAddr string)
}

type kafkaConsumer interface {
	ConsumeTransitioned(ctx context.Context, handler func(ctx context.Context, msg messages.PassportTransitioned) error) error
}

type pinger interface {
	Ping(ctx context.Context) error
}

type passportAPIDeps struct {
	svc      *passports.Service
	tokens   passportsapi.TokenVerifier
	ready    pinger
	consumer kafkaConsumer
}

func runPassportAPI(ctx context.Context, opts passportAPIOpts, deps passportAPIDeps) error {
	if opts.swaggerPath == "" {
		return fmt.Errorf("swaggerPath env var is required")
	}
	if _, err := os.Stat(opts.swaggerPath); os.IsNotExist(err) {
		return fmt.Errorf("swagger file not found: %s", opts.swaggerPath)
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- runHTTPServer(ctx, lis, newRouter(opts.swaggerPath, deps))
	}()

	if deps.consumer != nil {
		go runConsumer(ctx, opts, deps)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-httpErr:
		return err
	}
}

// runConsumer держит consumer живым: при ошибке ждём и переподключаемся.
func runConsumer(ctx context.Context, opts passportAPIOpts, deps passportAPIDeps) {
	slog.Info("kafka consumer started", "topic", opts.topic, "group", opts.consumerGroup)
	for ctx.Err() == nil {
		err := deps.consumer.ConsumeTransitioned(ctx, deps.svc.ApplyTransitioned)
		if ctx.Err() != nil {
			return
		}
		slog.Error("kafka consumer stopped", "error", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(consumerRestartDelay):
		}
	}
}

func newRouter(swaggerPath string, deps passportAPIDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if deps.ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := deps.ready.Ping(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"not ready"}`))
				return
			}
		}
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		http.ServeFile(w, r, swaggerPath)
	})
	r.Get("/docs/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger.json"),
	))

	passportsapi.New(deps.svc, deps.tokens).Register(r)
	return r
}

func runHTTPServer(ctx context.Context, lis net.Listener, h http.Handler) error {
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("HTTP server listening", "addr", lis.Addr().String())
	return srv.Serve(lis)
}
