package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/local/pageset/internal/compiler"
	"github.com/local/pageset/internal/filetype"
	"github.com/local/pageset/internal/geometry"
	"github.com/local/pageset/internal/limiter"
	"github.com/local/pageset/internal/pageset"
	"github.com/local/pageset/internal/selection"
	"github.com/local/pageset/internal/session"
	"github.com/local/pageset/internal/source"
	"github.com/local/pageset/internal/store"
)

var (
	errBadRequest      = errors.New("bad request")
	errSessionNotFound = errors.New("session not found")
)

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// statusFor maps an error class to an HTTP status.
func statusFor(err error) int {
	var tooBig *http.MaxBytesError
	switch {
	case errors.As(err, &tooBig), errors.Is(err, source.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errSessionNotFound),
		errors.Is(err, store.ErrResultNotFound),
		errors.Is(err, pageset.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrOperationNotAllowed):
		return http.StatusForbidden
	case errors.Is(err, filetype.ErrUnsupported):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, compiler.ErrEmptySelection),
		errors.Is(err, pageset.ErrNothingToUndo),
		errors.Is(err, pageset.ErrNothingToRedo):
		return http.StatusConflict
	case errors.Is(err, errBadRequest),
		errors.Is(err, session.ErrUnknownTool),
		errors.Is(err, pageset.ErrOutOfRange),
		errors.Is(err, pageset.ErrInvalidPermutation),
		errors.Is(err, selection.ErrInvalidRangeExpression),
		errors.Is(err, selection.ErrModeMismatch),
		errors.Is(err, geometry.ErrOutOfBounds),
		errors.Is(err, compiler.ErrInvalidOverlay),
		errors.Is(err, compiler.ErrSourceIndex):
		return http.StatusBadRequest
	case errors.Is(err, compiler.ErrCompilationFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, limiter.ErrBusy):
		return http.StatusTooManyRequests
	case errors.Is(err, limiter.ErrCoolingDown):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	ev := log.Warn()
	if code >= http.StatusInternalServerError {
		ev = log.Error()
	}
	ev.Err(err).Str("method", r.Method).Str("path", r.URL.Path).Int("status", code).Msg("request failed")
	http.Error(w, err.Error(), code)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return err
		}
		return badRequest("invalid JSON body: %v", err)
	}
	return nil
}
