package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Failure taxonomy shared by the API client, session store, realtime channel and upload controllers.
	//
	// [ErrValidation] never reaches the network, [ErrTransport] is surfaced without silent retries,
	// [ErrAuth] tears the session down, [ErrServer] is shown verbatim and [ErrChannel] only degrades realtime updates.
	ErrValidation = fmt.Errorf("validation failed")
	ErrTransport  = fmt.Errorf("network error")
	ErrAuth       = fmt.Errorf("unauthorized")
	ErrServer     = fmt.Errorf("server error")
	ErrChannel    = fmt.Errorf("realtime channel error")
	ErrNotFound   = fmt.Errorf("not found")

	// Session errors
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrTokenExpired     = fmt.Errorf("access token expired")
	ErrNoCredential     = fmt.Errorf("no stored credential")

	// Upload lifecycle errors
	ErrDismissed      = fmt.Errorf("upload dismissed")
	ErrAlreadyStarted = fmt.Errorf("upload already started")
	ErrNotConnected   = fmt.Errorf("realtime channel not connected")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrInvalidFlag     = fmt.Errorf("invalid flag value")
)
