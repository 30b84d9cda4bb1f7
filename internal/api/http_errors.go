package api

import (
	"errors"
	"net/http"

	"github.com/hugo-lorenzo-mato/flowrun/internal/core"
)

func httpStatusForDomainError(err error) (int, bool) {
	var domErr *core.DomainError
	if !errors.As(err, &domErr) || domErr == nil {
		return 0, false
	}

	switch domErr.Category {
	case core.ErrCatValidation, core.ErrCatReference:
		return http.StatusUnprocessableEntity, true
	case core.ErrCatNotFound:
		return http.StatusNotFound, true
	case core.ErrCatConflict:
		return http.StatusConflict, true
	case core.ErrCatCredential:
		return http.StatusFailedDependency, true
	case core.ErrCatTimeout:
		return http.StatusGatewayTimeout, true
	default:
		return http.StatusInternalServerError, true
	}
}

// respondDomainError maps err to a status code. Errors outside the domain
// taxonomy are logged and reported with fallback.
func (s *Server) respondDomainError(w http.ResponseWriter, err error, fallback string) {
	status, ok := httpStatusForDomainError(err)
	if !ok || status == http.StatusInternalServerError {
		s.logger.Error("api: request failed", "error", err)
		respondError(w, http.StatusInternalServerError, fallback)
		return
	}

	var domErr *core.DomainError
	errors.As(err, &domErr)
	respondJSON(w, status, ErrorResponse{Error: domErr.Message, Code: domErr.Code})
}
