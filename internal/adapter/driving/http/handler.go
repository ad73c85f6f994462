package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/ericfisherdev/usagepanel/internal/application"
	"github.com/ericfisherdev/usagepanel/internal/domain/model"
)

// RequestTimeout bounds every request, including upstream fetches on a cache miss.
const RequestTimeout = 60 * time.Second

// maxBodyBytes caps credential request bodies.
const maxBodyBytes = 64 << 10

// CredentialManager is the credential use case the handler drives.
// *application.CredentialService implements it.
type CredentialManager interface {
	Connect(ctx context.Context, req application.ConnectRequest) (application.ConnectResult, error)
	Disconnect(ctx context.Context, provider model.ProviderID) error
	List(ctx context.Context) []model.ConnectedProvider
}

// UsageReader serves cached usage reports. *application.UsageCache implements it.
type UsageReader interface {
	Get(ctx context.Context, provider model.ProviderID, windowDays int, force bool) (model.CacheEntry, error)
}

// Handler is the HTTP driving adapter that serves the JSON API.
type Handler struct {
	creds  CredentialManager
	usage  UsageReader
	logger *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(creds CredentialManager, usage UsageReader, logger *slog.Logger) *Handler {
	return &Handler{
		creds:  creds,
		usage:  usage,
		logger: logger,
	}
}

// NewRouter creates an http.Handler with all routes registered and wrapped
// with request ID, logging, recovery and timeout middleware. metrics may be
// nil, in which case /metrics is not served.
func NewRouter(h *Handler, metrics http.Handler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(loggingMiddleware(logger))
	// Recovery inside logging so panics are logged with their 500 status.
	r.Use(recoveryMiddleware(logger))
	r.Use(chimw.Timeout(RequestTimeout))

	r.Get("/api/v1/health", h.Health)

	r.Route("/api/tokens", func(tr chi.Router) {
		tr.Get("/", h.ListTokens)
		tr.Post("/", h.SaveToken)
		tr.Delete("/", h.RemoveTokenByBody)
		tr.Delete("/{provider}", h.RemoveToken)
	})

	r.Get("/api/usage/{provider}", h.GetUsage)

	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	return r
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

// ListTokens returns the connected providers with masked key hints.
func (h *Handler) ListTokens(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toProvidersResponse(h.creds.List(r.Context())))
}

// SaveToken validates a credential against its provider and stores it.
func (h *Handler) SaveToken(w http.ResponseWriter, r *http.Request) {
	var req SaveTokenRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Provider == "" || req.APIKey == "" {
		writeError(w, http.StatusBadRequest, "Missing provider or apiKey")
		return
	}

	provider, err := model.ParseProviderID(req.Provider)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.creds.Connect(r.Context(), application.ConnectRequest{
		Provider:   provider,
		APIKey:     req.APIKey,
		AdminKey:   req.AdminKey,
		SessionKey: req.SessionKey,
		Tier:       model.ParseTier(req.Tier),
	})
	switch {
	case err == nil:
	case errors.Is(err, model.ErrValidationFailed):
		writeError(w, http.StatusBadRequest, "Invalid API key")
		return
	case errors.Is(err, application.ErrMissingAPIKey), errors.Is(err, model.ErrUnknownProvider):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	default:
		h.logger.Error("failed to save credential", "provider", provider, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to validate API key")
		return
	}

	writeJSON(w, http.StatusOK, successResponse{Success: true, SessionKeyValid: res.SessionKeyValid})
}

// RemoveToken deletes the credential addressed by the path.
func (h *Handler) RemoveToken(w http.ResponseWriter, r *http.Request) {
	h.remove(w, r, chi.URLParam(r, "provider"))
}

// RemoveTokenByBody deletes the credential named in the JSON body.
func (h *Handler) RemoveTokenByBody(w http.ResponseWriter, r *http.Request) {
	var req RemoveTokenRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Provider == "" {
		writeError(w, http.StatusBadRequest, "Missing provider")
		return
	}
	h.remove(w, r, req.Provider)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request, raw string) {
	provider, err := model.ParseProviderID(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.creds.Disconnect(r.Context(), provider); err != nil {
		h.logger.Error("failed to remove credential", "provider", provider, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// GetUsage returns the usage snapshot of a provider. Query parameters: days
// (window length, default 30) and refresh (bypass a fresh cache entry).
func (h *Handler) GetUsage(w http.ResponseWriter, r *http.Request) {
	provider, err := model.ParseProviderID(chi.URLParam(r, "provider"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	days := model.DefaultWindowDays
	if v := r.URL.Query().Get("days"); v != "" {
		days, err = strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid days: expected an integer")
			return
		}
	}

	var force bool
	if v := r.URL.Query().Get("refresh"); v != "" {
		force, err = strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid refresh: expected a boolean")
			return
		}
	}

	entry, err := h.usage.Get(r.Context(), provider, days, force)
	switch {
	case err == nil:
	case errors.Is(err, application.ErrNotConnected):
		writeError(w, http.StatusNotFound, provider.DisplayName()+" not connected")
		return
	case errors.Is(err, model.ErrUnknownProvider):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	default:
		h.logger.Error("failed to fetch usage", "provider", provider, "days", days, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("X-Fetched-At", entry.FetchedAt.UTC().Format(time.RFC3339))
	writeJSON(w, http.StatusOK, entry.Report.Body())
}
