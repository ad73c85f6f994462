package httphandler

import (
	"encoding/json"
	"net/http"

	"github.com/ericfisherdev/usagepanel/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"success":false,"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Success: false, Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// successResponse acknowledges a credential change.
type successResponse struct {
	Success         bool  `json:"success"`
	SessionKeyValid *bool `json:"sessionKeyValid,omitempty"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// ProvidersResponse lists the connected providers.
type ProvidersResponse struct {
	Providers []model.ConnectedProvider `json:"providers"`
}

// SaveTokenRequest is the JSON body for the save credential endpoint.
type SaveTokenRequest struct {
	Provider   string `json:"provider"`
	APIKey     string `json:"apiKey"`
	AdminKey   string `json:"adminKey,omitempty"`
	SessionKey string `json:"sessionKey,omitempty"`
	Tier       string `json:"tier,omitempty"`
}

// RemoveTokenRequest is the JSON body for the body-addressed delete endpoint.
type RemoveTokenRequest struct {
	Provider string `json:"provider"`
}

// toProvidersResponse converts the connected list, never emitting null.
func toProvidersResponse(providers []model.ConnectedProvider) ProvidersResponse {
	if providers == nil {
		providers = []model.ConnectedProvider{}
	}
	return ProvidersResponse{Providers: providers}
}
