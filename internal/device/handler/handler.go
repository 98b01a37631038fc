// Package handler exposes the device lifecycle over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"warden/internal/device/models"
	"warden/internal/platform/middleware/request"
	"warden/internal/token"
	dErrors "warden/pkg/domain-errors"
	"warden/pkg/httputil"
)

// LifecycleService is the orchestrator surface consumed by the handler.
type LifecycleService interface {
	Register(ctx context.Context, req *models.RegisterDeviceRequest) (*models.RegisterResult, error)
	Activate(ctx context.Context, req *models.ActivateDeviceRequest) (*models.ActivationResult, error)
	AddCertificate(ctx context.Context, req *models.AddCertificateRequest) (*models.ActivationResult, error)
	RevokeCertificate(ctx context.Context, req *models.RevokeCertificateRequest) (*models.RevokeResult, error)
	Delete(ctx context.Context, req *models.DeleteDeviceRequest) (*models.Device, error)
	RegisterAndActivate(ctx context.Context, req *models.RegisterAndActivateRequest) (*models.ActivationResult, error)
	DeviceList(ctx context.Context, abn string) (*models.DeviceListResult, error)
	DeviceDetail(ctx context.Context, deviceID string) (*models.DeviceDetailResult, error)
	AggregatorList(ctx context.Context, abn string) (*models.AggregatorListResult, error)
}

// Authorizer is the policy surface consumed by the handler. Every operation
// is authorized before the service runs.
type Authorizer interface {
	AuthorizeOrg(ctx context.Context, tc *token.Context, abn string) error
	AuthorizeDevice(ctx context.Context, tc *token.Context, deviceID string) error
	AuthorizeOAuthClient(ctx context.Context, tc *token.Context, oauthClientID string) error
}

// Handler handles device lifecycle HTTP requests.
type Handler struct {
	service LifecycleService
	policy  Authorizer
	logger  *slog.Logger
}

// Option configures the Handler.
type Option func(*Handler)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// NewHandler creates a device lifecycle handler.
func NewHandler(service LifecycleService, policy Authorizer, opts ...Option) *Handler {
	h := &Handler{
		service: service,
		policy:  policy,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the lifecycle API router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "API Not Found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeMethodNotAllowed, "Method Not Allowed"))
	})

	r.Post("/register-device", h.RegisterDevice)
	r.Post("/activate-device", h.ActivateDevice)
	r.Post("/add-cert", h.AddCertificate)
	r.Post("/revoke-cert", h.RevokeCertificate)
	r.Post("/register-and-activate", h.RegisterAndActivate)
	r.Post("/delete-device", h.DeleteDevice)
	r.Get("/retrieve-device-list", h.RetrieveDeviceList)
	r.Get("/retrieve-device-detail", h.RetrieveDeviceDetail)
	r.Get("/get-aggregator-list", h.GetAggregatorList)
	return r
}

func (h *Handler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[models.RegisterDeviceRequest](w, r, h.logger, ctx, request.GetRequestID(ctx))
	if !ok {
		return
	}
	if err := h.policy.AuthorizeOrg(ctx, token.FromContext(ctx), req.ABN); err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.service.Register(ctx, req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, result)
}

func (h *Handler) ActivateDevice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[models.ActivateDeviceRequest](w, r, h.logger, ctx, request.GetRequestID(ctx))
	if !ok {
		return
	}
	if err := h.policy.AuthorizeDevice(ctx, token.FromContext(ctx), req.DeviceID); err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.service.Activate(ctx, req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) AddCertificate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[models.AddCertificateRequest](w, r, h.logger, ctx, request.GetRequestID(ctx))
	if !ok {
		return
	}
	if err := h.policy.AuthorizeDevice(ctx, token.FromContext(ctx), req.DeviceID); err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.service.AddCertificate(ctx, req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) RevokeCertificate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[models.RevokeCertificateRequest](w, r, h.logger, ctx, request.GetRequestID(ctx))
	if !ok {
		return
	}
	if err := h.policy.AuthorizeOAuthClient(ctx, token.FromContext(ctx), req.OAuthClientID); err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.service.RevokeCertificate(ctx, req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) RegisterAndActivate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[models.RegisterAndActivateRequest](w, r, h.logger, ctx, request.GetRequestID(ctx))
	if !ok {
		return
	}
	if err := h.policy.AuthorizeOrg(ctx, token.FromContext(ctx), req.ABN); err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.service.RegisterAndActivate(ctx, req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, result)
}

func (h *Handler) DeleteDevice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[models.DeleteDeviceRequest](w, r, h.logger, ctx, request.GetRequestID(ctx))
	if !ok {
		return
	}
	if err := h.policy.AuthorizeDevice(ctx, token.FromContext(ctx), req.DeviceID); err != nil {
		httputil.WriteError(w, err)
		return
	}

	deleted, err := h.service.Delete(ctx, req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, deleted)
}

func (h *Handler) RetrieveDeviceList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	abn := r.URL.Query().Get("abn")
	if err := models.ValidateABNParam(abn); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.policy.AuthorizeOrg(ctx, token.FromContext(ctx), abn); err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.service.DeviceList(ctx, abn)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) RetrieveDeviceDetail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	deviceID := r.URL.Query().Get("deviceId")
	if err := models.ValidateDeviceIDParam(deviceID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.policy.AuthorizeDevice(ctx, token.FromContext(ctx), deviceID); err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.service.DeviceDetail(ctx, deviceID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) GetAggregatorList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	abn := r.URL.Query().Get("abn")
	if err := models.ValidateABNParam(abn); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.policy.AuthorizeOrg(ctx, token.FromContext(ctx), abn); err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.service.AggregatorList(ctx, abn)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}
