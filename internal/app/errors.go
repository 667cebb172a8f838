package app

import (
	"net/http"

	"github.com/charmbracelet/log"

	"rememberme/api/internal/apperr"
)

// mapError turns any error into the client payload fields. Only the Kind, the
// fixed message and the details string ever leave the process.
func mapError(err error) (status int, code, message string, details any) {
	appErr := apperr.As(err)
	return appErr.Status(), string(appErr.Kind), appErr.Message(), appErr.Details
}

func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	requestID, _ := r.Context().Value(requestIDKey{}).(string)
	switch {
	case status >= http.StatusInternalServerError:
		log.Error("request failed", "request_id", requestID, "code", code, "err", err)
	case code == string(apperr.KindInvalidArgument):
		log.Warn("request rejected", "request_id", requestID, "err", err)
	default:
		log.Debug("request refused", "request_id", requestID, "code", code, "err", err)
	}
	writeError(w, status, code, message, details)
}
