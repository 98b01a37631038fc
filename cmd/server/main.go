package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"warden/internal/device/handler"
	"warden/internal/device/metrics"
	"warden/internal/device/service"
	"warden/internal/directory"
	"warden/internal/partnerdir"
	"warden/internal/pki"
	"warden/internal/platform/config"
	"warden/internal/platform/logger"
	"warden/internal/platform/middleware/request"
	"warden/internal/policy"
	"warden/internal/token"
)

const (
	requestTimeout  = 30 * time.Second
	shutdownTimeout = 10 * time.Second
	maxBodyBytes    = 1 << 20
)

func main() {
	log := logger.New()
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	dir := directory.NewMemory()

	issuer := pki.NewClient(pki.Config{
		SignEndpoint:   cfg.PKIEndpoint,
		RevokeEndpoint: cfg.PKIRevokeEndpoint,
		Token:          cfg.PKIToken,
		TemplateID:     cfg.PKITemplateID,
		CAID:           cfg.PKICAID,
		CAName:         cfg.PKICAName,
	}, pki.WithLogger(log))

	svcOpts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(metrics.New()),
	}
	if cfg.PartnerProd.Enabled {
		svcOpts = append(svcOpts, service.WithPartnerDirectory("prod", partnerClient(cfg.PartnerProd, log)))
	}
	if cfg.PartnerTest.Enabled {
		svcOpts = append(svcOpts, service.WithPartnerDirectory("test", partnerClient(cfg.PartnerTest, log)))
	}
	svc := service.New(dir, issuer, cfg.ExpiryMonths, svcOpts...)

	engine := policy.NewEngine(dir, cfg.ManageDeviceScopes, cfg.ManageCertificateScopes, policy.WithLogger(log))
	tokens := token.NewService(cfg.JWTSigningKey)
	h := handler.NewHandler(svc, engine, handler.WithLogger(log))

	router := chi.NewRouter()
	router.Use(request.RequestID)
	router.Use(request.Logger(log))
	router.Use(request.Recovery(log))
	router.Use(request.BodyLimit(maxBodyBytes))
	router.Use(request.ContentTypeJSON)
	router.Use(request.Timeout(requestTimeout))

	router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	router.Route("/v1", func(r chi.Router) {
		r.Use(token.Middleware(tokens))
		r.Mount("/", h.Routes())
	})

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  requestTimeout,
		WriteTimeout: requestTimeout,
		IdleTimeout:  2 * requestTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func partnerClient(cfg config.PartnerDirectory, log *slog.Logger) *partnerdir.Client {
	return partnerdir.NewClient(cfg.BaseURL, partnerdir.Credentials{
		ClientID:           cfg.ClientID,
		ClientSecret:       cfg.ClientSecret,
		AccessClientID:     cfg.AccessClientID,
		AccessClientSecret: cfg.AccessClientSecret,
	}, partnerdir.WithLogger(log))
}
