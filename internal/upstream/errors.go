package upstream

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoTokenSource = errors.New("no site token source configured")
	// ErrSiteAuth wraps failures to obtain the site's own token.
	ErrSiteAuth = errors.New("site authentication failed")
)

// Error is a non-2xx answer from the booking API.
type Error struct {
	Method     string
	Path       string
	StatusCode int
	// Message is the upstream's own error text when it could be found.
	Message string
	// Payload is the raw JSON body, kept for diagnostics. Nil when the body
	// was not JSON.
	Payload json.RawMessage
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("upstream %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("upstream %s %s: status %d", e.Method, e.Path, e.StatusCode)
}

// Contains reports whether the upstream message mentions any of the given
// phrases, ignoring case.
func (e *Error) Contains(phrases ...string) bool {
	haystack := strings.ToLower(e.Message + " " + string(e.Payload))
	for _, p := range phrases {
		if strings.Contains(haystack, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// AsError unwraps err into an *Error.
func AsError(err error) (*Error, bool) {
	var ue *Error
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}

// StatusCode returns the upstream status carried by err, or 0.
func StatusCode(err error) int {
	if ue, ok := AsError(err); ok {
		return ue.StatusCode
	}
	return 0
}

func newError(method, path string, status int, raw []byte) *Error {
	e := &Error{Method: method, Path: path, StatusCode: status}

	if json.Valid(raw) && len(raw) > 0 {
		e.Payload = json.RawMessage(raw)
		e.Message = extractMessage(raw)
	} else {
		e.Message = strings.TrimSpace(string(raw))
	}
	return e
}

// extractMessage looks for the shapes the booking API uses for errors:
// {"Error":{"Message":..,"Code":..}} and the flatter {"Message":..}.
func extractMessage(raw []byte) string {
	var body struct {
		Error *struct {
			Message string `json:"Message"`
			Code    string `json:"Code"`
		} `json:"Error"`
		Message string `json:"Message"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	if body.Error != nil {
		if body.Error.Message != "" {
			return body.Error.Message
		}
		return body.Error.Code
	}
	return body.Message
}
