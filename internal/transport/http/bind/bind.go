// Package bind decodes JSON request bodies and runs struct validation,
// writing the error response itself when either step fails.
package bind

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"montero/internal/platform/logger"
	"montero/internal/platform/validate"
	"montero/internal/requestctx"
	"montero/internal/transport/http/api"
	"montero/internal/transport/http/shared"
)

// JSON decodes the body into dst and validates it. It returns false after
// writing a 400, 413 or 422 response.
func JSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	requestID := requestctx.GetRequestID(r.Context())
	if err := Decode(r, dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.Fail(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body too large", requestID)
			return false
		}
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestID)
		return false
	}
	return Validate(w, r, dst)
}

// Decode reads one JSON document. An empty body decodes to the zero value.
func Decode(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// Validate runs the struct validator and writes a 422 with field issues.
func Validate(w http.ResponseWriter, r *http.Request, v any) bool {
	issues, err := validate.Struct(v)
	if err != nil {
		logger.C(r.Context()).Error().Err(err).Msg("validation failed to run")
		api.Fail(w, http.StatusInternalServerError, "validation_failed", "validation could not run", requestctx.GetRequestID(r.Context()))
		return false
	}
	if len(issues) > 0 {
		shared.FailValidation(w, requestctx.GetRequestID(r.Context()), issues)
		return false
	}
	return true
}
