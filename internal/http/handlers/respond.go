// Package handlers holds the JSON HTTP handlers. Every response except the
// payment webhooks uses the {success, data, message} envelope.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/kamdhenuseva/server/internal/auth"
)

const maxBodyBytes = 1 << 20

type envelope struct {
	Success bool              `json:"success"`
	Data    any               `json:"data"`
	Message string            `json:"message"`
	Errors  []auth.FieldError `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respond(w http.ResponseWriter, status int, data any, message string) {
	writeJSON(w, status, envelope{Success: status < 400, Data: data, Message: message})
}

// respondWithError sends a failure envelope with no data.
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respond(w, statusCode, nil, message)
}

func statusFor(k auth.Kind) int {
	switch k {
	case auth.KindValidation, auth.KindConflict:
		return http.StatusBadRequest
	case auth.KindUnauthorized:
		return http.StatusUnauthorized
	case auth.KindForbidden:
		return http.StatusForbidden
	case auth.KindNotFound:
		return http.StatusNotFound
	case auth.KindThrottled:
		return http.StatusTooManyRequests
	case auth.KindUnprocessable:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// fail maps err to a response. Unexpected errors are logged and reported as a
// generic server error.
func fail(w http.ResponseWriter, logger *zap.Logger, err error) {
	e, ok := auth.AsError(err)
	if !ok {
		logger.Error("request failed", zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "Server error")
		return
	}
	status := statusFor(e.Kind)
	switch {
	case e.Kind == auth.KindThrottled:
		respond(w, status, map[string]int{"secondsLeft": e.SecondsLeft}, e.Message)
	case len(e.Fields) > 0:
		writeJSON(w, status, envelope{Message: e.Message, Errors: e.Fields})
	default:
		respondWithError(w, status, e.Message)
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report JSON field names rather than Go ones.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return "Invalid email format"
	case "min":
		return fe.Field() + " must be at least " + fe.Param() + " characters"
	case "max":
		return fe.Field() + " must be at most " + fe.Param() + " characters"
	case "eqfield":
		return "Passwords do not match"
	case "oneof":
		return fe.Field() + " must be one of: " + fe.Param()
	}
	return fe.Field() + " is invalid"
}

// decode reads a JSON body into dst and runs its validate tags. It writes the
// error response itself and returns false on failure.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			respondWithError(w, http.StatusBadRequest, "Invalid request body")
			return false
		}
		fields := make([]auth.FieldError, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, auth.FieldError{Field: fe.Field(), Message: fieldMessage(fe)})
		}
		writeJSON(w, http.StatusBadRequest, envelope{Message: "Validation failed", Errors: fields})
		return false
	}
	return true
}
