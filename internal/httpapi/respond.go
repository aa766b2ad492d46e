package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/MrEthical07/lmsauth/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 20

type envelope struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Data    any      `json:"data,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func ok(w http.ResponseWriter, msg string, data any) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: msg, Data: data})
}

// fail logs server side faults with their cause and writes the mapped body.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	status, _ := middleware.StatusFor(err)
	if status >= http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
	}
	middleware.WriteError(w, err)
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode reads a JSON body into dst and validates it. On failure the 400
// response has already been written.
func (h *handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Message: "Invalid request body"})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{
			Message: "Validation failed",
			Errors:  formatValidationErrors(err),
		})
		return false
	}
	return true
}

func formatValidationErrors(err error) []string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return []string{err.Error()}
	}

	out := make([]string, 0, len(validationErrors))
	for _, fieldError := range validationErrors {
		switch fieldError.Tag() {
		case "required":
			out = append(out, fmt.Sprintf("%s is required", fieldError.Field()))
		case "email":
			out = append(out, fmt.Sprintf("%s must be a valid email address", fieldError.Field()))
		case "min":
			out = append(out, fmt.Sprintf("%s must be at least %s characters long", fieldError.Field(), fieldError.Param()))
		case "max":
			out = append(out, fmt.Sprintf("%s must be at most %s characters long", fieldError.Field(), fieldError.Param()))
		case "oneof":
			out = append(out, fmt.Sprintf("%s must be one of: %s", fieldError.Field(), strings.ReplaceAll(fieldError.Param(), " ", ", ")))
		default:
			out = append(out, fmt.Sprintf("%s is invalid", fieldError.Field()))
		}
	}
	return out
}
