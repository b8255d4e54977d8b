// Package httputil holds the HTTP plumbing shared by the portal handlers:
// JSON envelopes, request binding, error mapping and middleware.
package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// MaxBodyBytes caps request bodies accepted by Decode.
const MaxBodyBytes = 64 << 10

const contentTypeJSON = "application/json"

type dataEnvelope struct {
	Data any `json:"data"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// FieldError describes one rejected request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// JSON writes body as-is, without an envelope.
func JSON(w http.ResponseWriter, status int, body any) {
	write(w, status, contentTypeJSON, body)
}

// Text writes a plain text response.
func Text(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if _, err := io.WriteString(w, text); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

// Success writes data inside the {"data": ...} envelope.
func Success(w http.ResponseWriter, status int, data any) {
	write(w, status, contentTypeJSON, dataEnvelope{Data: data})
}

// Error writes the {"error": {"message": ...}} envelope.
func Error(w http.ResponseWriter, status int, message string) {
	write(w, status, contentTypeJSON, errorEnvelope{Error: errorBody{Message: message}})
}

// ValidationError writes a 400 listing every rejected field in user-facing terms.
func ValidationError(w http.ResponseWriter, err error) {
	body := errorBody{Message: "validation error"}

	var fields validator.ValidationErrors
	if errors.As(err, &fields) {
		details := make([]FieldError, 0, len(fields))
		for _, fe := range fields {
			details = append(details, FieldError{Field: jsonName(fe), Message: describe(fe)})
		}
		body.Details = details
	} else {
		body.Details = err.Error()
	}

	write(w, http.StatusBadRequest, contentTypeJSON, errorEnvelope{Error: body})
}

// Decode reads a JSON request body into v. It writes a 400 and returns false
// when the body is missing, malformed, too large or followed by trailing data.
func Decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, "request body is too large")
			return false
		}
		Error(w, http.StatusBadRequest, "invalid json")
		return false
	}
	if dec.More() {
		Error(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

// Bind decodes the request body into v and validates it.
func Bind(w http.ResponseWriter, r *http.Request, validate *validator.Validate, v any) bool {
	if !Decode(w, r, v) {
		return false
	}
	if err := validate.Struct(v); err != nil {
		ValidationError(w, err)
		return false
	}
	return true
}

func write(w http.ResponseWriter, status int, contentType string, body any) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", "status", status, "error", err)
	}
}

// jsonName converts the Go field name to the snake_case key clients send.
// Acronyms stay together: NationalID becomes national_id.
func jsonName(fe validator.FieldError) string {
	runes := []rune(fe.Field())
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) && i > 0 {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				b.WriteByte('_')
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "datetime":
		return "must be a date in " + fe.Param() + " layout"
	default:
		return "is invalid (" + fe.Tag() + ")"
	}
}
