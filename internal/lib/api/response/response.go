package response

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Response is the envelope every route embeds into its payload.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`
	Missing []string        `json:"missing,omitempty"`
	Invalid []string        `json:"invalid,omitempty"`
	Details json.RawMessage `json:"details,omitempty"`
}

func OK() Response {
	return Response{Success: true}
}

func Error(msg string) Response {
	return Response{
		Success: false,
		Error:   msg,
	}
}

func Missing(fields []string) Response {
	return Response{
		Success: false,
		Error:   fmt.Sprintf("missing required parameters: %s", strings.Join(fields, ", ")),
		Missing: fields,
	}
}

func Invalid(fields []string) Response {
	return Response{
		Success: false,
		Error:   fmt.Sprintf("invalid parameters: %s", strings.Join(fields, ", ")),
		Invalid: fields,
	}
}

// ValidationError turns validator failures into a missing-parameter envelope.
// Only presence is validated, so every failing field is reported as missing.
func ValidationError(errs validator.ValidationErrors) Response {
	fields := make([]string, 0, len(errs))
	for _, err := range errs {
		fields = append(fields, err.Field())
	}

	return Missing(fields)
}
