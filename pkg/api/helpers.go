// Package api provides the HTTP contracts of the canvas service and
// standardized helpers for reading requests and writing responses.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	pkgerrors "canvas-backend/pkg/errors"

	"github.com/go-playground/validator/v10"
)

// maxBodyBytes bounds request bodies
const maxBodyBytes = 1 << 20

var validate = validator.New()

// Success sends a standardized successful HTTP response with optional JSON data.
func Success(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// Decode reads a JSON body into dst and validates it. Failures are
// VALIDATION AppErrors. An empty body decodes to the zero value.
func Decode(r *http.Request, dst interface{}) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil && err != io.EOF {
		return pkgerrors.NewValidationError("invalid request body").WithCause(err)
	}
	return Validate(dst)
}

// Validate checks the validate tags of v
func Validate(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return pkgerrors.NewValidationError("invalid request").WithCause(err)
	}

	details := make(map[string]interface{}, len(fieldErrs))
	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fe.Field()] = fe.Tag()
		problems = append(problems, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return pkgerrors.NewValidationError("invalid request: " + strings.Join(problems, ", ")).WithDetails(details)
}
