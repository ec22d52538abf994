package httpapi

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"llm_router/internal/apierr"
	"llm_router/internal/logging"
	"llm_router/internal/utils"
)

// statusFor maps an error kind to its HTTP status. Rejections of the
// caller's key, balance or model are 403; every failure after the provider
// was called is a 500.
func statusFor(kind apierr.Kind) int {
	switch kind {
	case apierr.KindUnauthorized, apierr.KindForbidden, apierr.KindInsufficientCredits,
		apierr.KindModelNotFound, apierr.KindNoProviderAvailable:
		return http.StatusForbidden
	case apierr.KindBadRequest:
		return http.StatusBadRequest
	case apierr.KindRateLimited:
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

// writeAPIError renders err as {"error": message}. 500s carry a generic
// message; the detail only goes to the log.
func writeAPIError(w http.ResponseWriter, err error) {
	kind := apierr.KindOf(err)
	status := statusFor(kind)

	if status == http.StatusInternalServerError {
		logging.L().Error("request failed", zap.String("kind", string(kind)), zap.Error(err))
		utils.RespondWithError(w, status, "internal server error")
		return
	}

	message := err.Error()
	var e *apierr.Error
	if errors.As(err, &e) {
		message = e.Message
	}
	utils.RespondWithError(w, status, message)
}
