package adapter

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Normalized link errors.
var (
	ErrRejected    = errors.New("REJECTED")
	ErrTimeout     = errors.New("TIMEOUT")
	ErrBusy        = errors.New("BUSY")
	ErrUnavailable = errors.New("UNAVAILABLE")
	ErrInternal    = errors.New("INTERNAL")
)

// TokenMap lists the error tokens a link profile emits for each code.
type TokenMap struct {
	Rejected    []string
	Timeout     []string
	Busy        []string
	Unavailable []string
}

// LinkErrorMappings holds the token tables per link profile. Unknown
// profiles fall back to "generic"; unknown tokens map to INTERNAL.
var LinkErrorMappings = map[string]TokenMap{
	"mavlink": {
		Rejected: []string{
			"MAV_RESULT_DENIED",
			"MAV_RESULT_UNSUPPORTED",
			"MAV_RESULT_FAILED",
			"COMMAND_DENIED",
			"ARMING_CHECK_FAILED",
		},
		Timeout: []string{
			"HEARTBEAT_TIMEOUT",
			"ACK_TIMEOUT",
			"NO_HEARTBEAT",
		},
		Busy: []string{
			"MAV_RESULT_TEMPORARILY_REJECTED",
			"MAV_RESULT_IN_PROGRESS",
			"COMMAND_IN_PROGRESS",
		},
		Unavailable: []string{
			"PORT_BUSY",
			"PORT_NOT_FOUND",
			"PERMISSION_DENIED",
			"LINK_LOST",
			"NOT_CONNECTED",
		},
	},
	"generic": {
		Rejected: []string{
			"REJECTED",
			"DENIED",
			"INVALID",
			"UNSUPPORTED",
		},
		Timeout: []string{
			"TIMEOUT",
			"TIMED OUT",
			"DEADLINE",
		},
		Busy: []string{
			"BUSY",
			"IN_PROGRESS",
			"RETRY",
		},
		Unavailable: []string{
			"UNAVAILABLE",
			"NOT FOUND",
			"NO SUCH FILE",
			"OFFLINE",
			"CLOSED",
		},
	},
}

// LinkError keeps the original link error next to its normalized code.
type LinkError struct {
	Code     error       // normalized code
	Original error       // error as returned by the link
	Details  interface{} // opaque link payload
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("%v (link: %v)", e.Code, e.Original)
}

func (e *LinkError) Unwrap() error {
	return e.Code
}

// NormalizeLinkError maps err to a normalized code using the generic table.
func NormalizeLinkError(err error, payload interface{}) error {
	return NormalizeLinkErrorWithProfile(err, payload, "generic")
}

// NormalizeLinkErrorWithProfile maps err using the named profile's table.
// Errors that already carry a normalized code are returned unchanged.
func NormalizeLinkErrorWithProfile(err error, payload interface{}, profile string) error {
	if err == nil {
		return nil
	}

	var linkErr *LinkError
	if errors.As(err, &linkErr) {
		return err
	}

	code := ErrInternal
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		code = ErrTimeout
	case isCode(err):
		code = codeOf(err)
	default:
		code = mapTokenToCode(err.Error(), profile)
	}

	return &LinkError{
		Code:     code,
		Original: err,
		Details:  payload,
	}
}

func isCode(err error) bool {
	return codeOf(err) != nil
}

func codeOf(err error) error {
	for _, code := range []error{ErrRejected, ErrTimeout, ErrBusy, ErrUnavailable, ErrInternal} {
		if errors.Is(err, code) {
			return code
		}
	}
	return nil
}

func mapTokenToCode(msg string, profile string) error {
	tokens, ok := LinkErrorMappings[profile]
	if !ok {
		tokens = LinkErrorMappings["generic"]
	}

	upper := strings.ToUpper(msg)
	for _, group := range []struct {
		tokens []string
		code   error
	}{
		{tokens.Rejected, ErrRejected},
		{tokens.Timeout, ErrTimeout},
		{tokens.Busy, ErrBusy},
		{tokens.Unavailable, ErrUnavailable},
	} {
		for _, token := range group.tokens {
			if strings.Contains(upper, token) {
				return group.code
			}
		}
	}

	return ErrInternal
}
