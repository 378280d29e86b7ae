package httpadapter

import (
	"net/http"

	"github.com/pitchlabs/pitchscore/internal/core/domain"
)

// errorKind is the structured error identifier exposed to callers. Internal
// exception text never crosses the boundary on 5xx responses.
func errorKind(err error) (int, string) {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case domain.IsKind(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case domain.IsKind(err, domain.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case domain.IsKind(err, domain.ErrAlreadyScoring):
		return http.StatusConflict, "already_scoring"
	case domain.IsKind(err, domain.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, "storage_unavailable"
	case domain.IsKind(err, domain.ErrAnalysisCapability):
		return http.StatusBadGateway, "analysis_capability_error"
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable, "temporary_failure"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, kind := errorKind(err)
	reason := err.Error()
	if status == http.StatusInternalServerError {
		reason = "internal error"
	}
	writeJSON(w, status, map[string]string{
		"error":  kind,
		"reason": reason,
	})
}
