package main

import (
	"fmt"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mcdev12/gavel/go/internal/auction"
	"github.com/mcdev12/gavel/go/internal/auth"
	"github.com/mcdev12/gavel/go/internal/metrics"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

func setupServer(cfg *Config, services *Services) *http.Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	// Register services
	registerServices(r, services)

	// Realtime channel and its stats
	services.Gateway.RegisterRoutes(r)

	// Read endpoints need a caller
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(services.Issuer))
		auction.NewReadHandler(services.Coordinator).RegisterRoutes(r)
	})

	r.Handle("/metrics", metrics.Handler())
	setupHealthCheck(r)

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
		},
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"Connect-Protocol-Version", "Grpc-Status", "Grpc-Message"},
	})

	// Setup HTTP/2 server
	return &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           h2c.NewHandler(c.Handler(r), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func registerServices(r chi.Router, services *Services) {
	// Register auction service; the interceptor resolves the bearer credential
	path, handler := auction.NewHandler(
		auction.NewService(services.Coordinator),
		connect.WithInterceptors(auth.NewInterceptor(services.Issuer)),
	)
	r.Mount(path, handler)
}

func setupHealthCheck(r chi.Router) {
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}
