// Package httpserver exposes the service's minimal HTTP surface: liveness
// and readiness probes, Prometheus metrics, and the queue-statistics probe.
package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/TobyTheHutt/lgs-person-data-processor-service/internal/domain"
)

type errorEnvelope struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, _ *http.Request, err error, details interface{}) {
	code := http.StatusInternalServerError
	codeStr := "INTERNAL"
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		code = http.StatusBadRequest
		codeStr = "INVALID_ARGUMENT"
	case errors.Is(err, domain.ErrNotFound):
		code = http.StatusNotFound
		codeStr = "NOT_FOUND"
	case errors.Is(err, domain.ErrConflict):
		code = http.StatusConflict
		codeStr = "CONFLICT"
	case errors.Is(err, domain.ErrSyncJobNotFound):
		code = http.StatusNotFound
		codeStr = "SYNC_JOB_NOT_FOUND"
	case errors.Is(err, domain.ErrSenderIDValidation):
		code = http.StatusBadRequest
		codeStr = "SENDER_ID_VALIDATION"
	case errors.Is(err, domain.ErrFullSyncNotSeeding):
		code = http.StatusConflict
		codeStr = "FULL_SYNC_NOT_SEEDING"
	case errors.Is(err, domain.ErrIllegalFullSyncMove):
		code = http.StatusConflict
		codeStr = "ILLEGAL_STATE_TRANSITION"
	}
	writeJSON(w, code, errorEnvelope{Error: apiError{Code: codeStr, Message: err.Error(), Details: details}})
}
