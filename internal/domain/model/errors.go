package model

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrValidationFailed means the upstream rejected a credential.
	ErrValidationFailed = errors.New("credential rejected by provider")

	// ErrIntegrity means an encrypted payload failed authentication or was
	// malformed. Stored data that fails with ErrIntegrity is treated as absent.
	ErrIntegrity = errors.New("integrity check failed")
)

// FetchError is a failed upstream call during validation or usage fetch.
// Status is zero for transport failures.
type FetchError struct {
	Provider ProviderID
	Endpoint string
	Status   int
	Body     string
	Err      error
}

func (e *FetchError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s %s: %v", e.Provider, e.Endpoint, e.Err)
	case e.Body != "":
		return fmt.Sprintf("%s %s: status %d: %s", e.Provider, e.Endpoint, e.Status, e.Body)
	default:
		return fmt.Sprintf("%s %s: status %d", e.Provider, e.Endpoint, e.Status)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsAuthFailure reports whether the upstream refused the credential.
func (e *FetchError) IsAuthFailure() bool {
	return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
}

// IsAuthFailure reports whether err wraps a FetchError carrying a 401 or 403.
func IsAuthFailure(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.IsAuthFailure()
}
