package services

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/desertthunder/vidx/internal/shared"
)

// Kind classifies an [APIError].
type Kind string

const (
	KindUnauthorized Kind = "unauthorized"
	KindNotFound     Kind = "not-found"
	KindValidation   Kind = "validation"
	KindNetwork      Kind = "network"
	KindServer       Kind = "server"
	KindUnclassified Kind = "unclassified"
)

const (
	defaultErrorMessage = "An error occurred"
	networkErrorMessage = "Network error. Please check your connection."
)

// APIError is the normalized failure of a dashboard request.
//
// It unwraps to the shared sentinel for its kind, so callers can test with errors.Is.
type APIError struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *APIError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
	}
	return e.Message
}

func (e *APIError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s := e.Kind.sentinel(); s != nil {
		errs = append(errs, s)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func (k Kind) sentinel() error {
	switch k {
	case KindUnauthorized:
		return shared.ErrAuth
	case KindNotFound:
		return shared.ErrNotFound
	case KindValidation:
		return shared.ErrValidation
	case KindNetwork:
		return shared.ErrTransport
	case KindServer:
		return shared.ErrServer
	default:
		return nil
	}
}

// kindForStatus maps an HTTP status to an error kind.
func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized:
		return KindUnauthorized
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusBadRequest,
		status == http.StatusConflict,
		status == http.StatusRequestEntityTooLarge,
		status == http.StatusUnprocessableEntity:
		return KindValidation
	case status >= 500:
		return KindServer
	default:
		return KindUnclassified
	}
}

// newStatusError builds an [APIError] from a non-2xx response body.
func newStatusError(status int, body []byte) *APIError {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	msg := defaultErrorMessage
	if err := json.Unmarshal(body, &payload); err == nil {
		switch {
		case payload.Error != "":
			msg = payload.Error
		case payload.Message != "":
			msg = payload.Message
		}
	}
	return &APIError{Kind: kindForStatus(status), Status: status, Message: msg}
}

func newNetworkError(err error) *APIError {
	return &APIError{Kind: KindNetwork, Message: networkErrorMessage, Err: err}
}

func newValidationError(msg string) *APIError {
	return &APIError{Kind: KindValidation, Message: msg}
}
