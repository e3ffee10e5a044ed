package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gioimtg2003/control-drone-first/internal/adapter"
	"github.com/gioimtg2003/control-drone-first/internal/command"
	"github.com/gioimtg2003/control-drone-first/internal/export"
	"github.com/gioimtg2003/control-drone-first/internal/session"
)

// APIError represents an API-layer error with HTTP status code.
type APIError struct {
	Code       string
	Message    string
	Details    interface{}
	StatusCode int
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}

func badRequest(message string) *APIError {
	return &APIError{Code: "BAD_REQUEST", Message: message, StatusCode: http.StatusBadRequest}
}

type errorMapping struct {
	target  error
	status  int
	message string
}

// Checked in order; the first match wins. Domain codes come before link
// codes because ConnectError and SubscriptionError wrap link errors.
var errorMappings = []errorMapping{
	{session.ErrInvalidPort, http.StatusBadRequest, "Port is not in the last enumeration"},
	{session.ErrInvalidBaud, http.StatusBadRequest, "Unsupported baud rate"},
	{command.ErrInvalidMotor, http.StatusBadRequest, "Unknown motor"},
	{command.ErrInvalidDuration, http.StatusBadRequest, "Unsupported test duration"},
	{command.ErrInvalidThrottle, http.StatusBadRequest, "Throttle must be between 0 and 100"},
	{session.ErrSessionBusy, http.StatusConflict, "A session transition is in progress"},
	{session.ErrNotConnected, http.StatusConflict, "No vehicle connected"},
	{command.ErrTestInProgress, http.StatusConflict, "A motor test is running"},
	{session.ErrConnect, http.StatusBadGateway, "Vehicle connection failed"},
	{session.ErrSubscription, http.StatusBadGateway, "Telemetry subscription failed"},
	{export.ErrExportIO, http.StatusInternalServerError, "Export could not be written"},
	{adapter.ErrRejected, http.StatusUnprocessableEntity, "Vehicle rejected the command"},
	{adapter.ErrTimeout, http.StatusGatewayTimeout, "Vehicle did not respond in time"},
	{adapter.ErrBusy, http.StatusServiceUnavailable, "Vehicle is busy, retry with backoff"},
	{adapter.ErrUnavailable, http.StatusServiceUnavailable, "Vehicle link is unavailable"},
	{adapter.ErrInternal, http.StatusInternalServerError, "Internal link error"},
}

// ToAPIError converts an error to an HTTP status code and JSON envelope.
func ToAPIError(err error) (int, []byte) {
	if err == nil {
		return http.StatusOK, nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode, marshalErrorResponse(apiErr.Code, apiErr.Message, apiErr.Details)
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, marshalErrorResponse(m.target.Error(), m.message, errorDetails(err))
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, marshalErrorResponse("TIMEOUT", "Request timed out", errorDetails(err))
	}

	return http.StatusInternalServerError, marshalErrorResponse("INTERNAL", "Internal server error", errorDetails(err))
}

// errorDetails exposes the typed error fields the client can act on.
func errorDetails(err error) map[string]interface{} {
	details := map[string]interface{}{"error": err.Error()}

	var portErr *session.InvalidPortError
	if errors.As(err, &portErr) {
		details["port"] = portErr.Port
		details["known"] = portErr.Known
	}
	var baudErr *session.InvalidBaudError
	if errors.As(err, &baudErr) {
		details["baud"] = baudErr.Baud
		details["allowed"] = session.BaudRates
	}
	var busyErr *session.SessionBusyError
	if errors.As(err, &busyErr) {
		details["state"] = busyErr.State
	}
	var notConnErr *session.NotConnectedError
	if errors.As(err, &notConnErr) {
		details["state"] = notConnErr.State
	}
	var linkErr *adapter.LinkError
	if errors.As(err, &linkErr) {
		details["linkCode"] = linkErr.Code.Error()
	}
	return details
}

// marshalErrorResponse creates a JSON error response with correlation ID.
func marshalErrorResponse(code, message string, details interface{}) []byte {
	jsonBytes, err := json.Marshal(ErrorResponse(code, message, details))
	if err != nil {
		fallback := map[string]interface{}{
			"result":        "error",
			"code":          "INTERNAL",
			"message":       "Failed to marshal error response",
			"correlationId": generateCorrelationID(),
		}
		jsonBytes, _ = json.Marshal(fallback)
	}
	return append(jsonBytes, '\n')
}
