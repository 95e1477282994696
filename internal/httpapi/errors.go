package httpapi

import (
	"errors"
	"net/http"

	"github.com/bookstore/services/rental/internal/rental"
	"github.com/bookstore/services/rental/internal/repo"
	"go.uber.org/zap"
)

var kindStatus = map[rental.Kind]int{
	rental.KindNotFound:           http.StatusNotFound,
	rental.KindOutOfStock:         http.StatusConflict,
	rental.KindAlreadyTerminal:    http.StatusConflict,
	rental.KindInvalidPeriod:      http.StatusUnprocessableEntity,
	rental.KindInvalidStatus:      http.StatusUnprocessableEntity,
	rental.KindNotEligible:        http.StatusForbidden,
	rental.KindPersistenceFailure: http.StatusServiceUnavailable,
}

// writeFailure renders err with the status its kind maps to. Storage details never
// reach the client.
func (h *Handler) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	var engineErr *rental.Error
	if errors.As(err, &engineErr) {
		status, ok := kindStatus[engineErr.Kind]
		if !ok {
			status = http.StatusInternalServerError
		}
		if engineErr.Temporary {
			w.Header().Set("Retry-After", "1")
		}
		msg := "internal error"
		if sentinel := errors.Unwrap(engineErr); sentinel != nil {
			msg = sentinel.Error()
		}
		writeJSON(w, status, errorResponse{Error: apiError{
			Code:    engineErr.Kind.String(),
			Message: msg,
			Entity:  engineErr.Entity,
			Ref:     engineErr.Ref,
		}})
		return
	}

	switch {
	case errors.Is(err, repo.ErrInvalidBook), errors.Is(err, repo.ErrInvalidMember):
		writeError(w, http.StatusUnprocessableEntity, "invalid_request", err.Error())
	case errors.Is(err, repo.ErrBookAlreadyExists), errors.Is(err, repo.ErrMemberAlreadyExists):
		writeError(w, http.StatusConflict, "already_exists", err.Error())
	case errors.Is(err, repo.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
	case errors.Is(err, rental.ErrRecordNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, rental.ErrContention):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "persistence_failure", "please retry later")
	default:
		h.log.Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
