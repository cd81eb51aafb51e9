// Package respond writes JSON responses and maps errors to the API error body.
package respond

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rlms-portal/forms-services/internal/apierr"
	"github.com/rlms-portal/forms-services/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func WriteResponse(w http.ResponseWriter, statusCode int, response interface{}, location ...string) {

	w.Header().Set("Content-Type", "application/json")

	// We don't want to cache API responses so the client receives most current data
	w.Header().Set("Cache-Control", "max-age=0")

	if len(location) > 0 && location[0] != "" {
		w.Header().Set("Location", location[0])
	}

	w.WriteHeader(statusCode)

	if response != nil {
		if err := json.NewEncoder(w).Encode(response); err != nil {
			// Headers are already sent; all we can do is log.
			log.Error().Err(err).Msg("failed to encode response")
		}
	}
}

// WriteError writes err as the standard error body. Errors that are not
// *apierr.Error become 500s.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	e := apierr.As(err)
	status := e.Status()

	logger := zerolog.Ctx(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Str("error_code", e.Code).Msg("request failed")
	} else {
		logger.Debug().Str("error_code", e.Code).Int("status", status).Msg(e.Message)
	}

	WriteResponse(w, status, models.Response{
		Success:      0,
		ErrorCode:    e.Code,
		ErrorDetails: e.Error(),
	})
}

// DecodeJSON decodes the request body into v, reporting malformed bodies as
// validation errors.
func DecodeJSON(r *http.Request, v interface{}) error {
	if r.Body == nil || r.Body == http.NoBody {
		return apierr.Validation("request body is required")
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apierr.Validation("request body too large")
		}
		return apierr.Validation("invalid request body: %s", err.Error())
	}
	return nil
}
