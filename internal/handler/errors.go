package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/stockorder/internal/domain/fault"
)

// errBadRequest marks malformed request bodies.
var errBadRequest = errors.New("bad request")

// retryAfterSeconds is sent with 503 responses for retryable failures.
const retryAfterSeconds = "1"

// statusFor maps an error to its HTTP status and machine-readable code.
func statusFor(err error) (int, string) {
	if errors.Is(err, errBadRequest) {
		return http.StatusBadRequest, "bad_request"
	}
	kind := fault.KindOf(err)
	switch kind {
	case fault.NotFound:
		return http.StatusNotFound, string(kind)
	case fault.RuleViolation:
		return http.StatusUnprocessableEntity, string(kind)
	case fault.InsufficientStock, fault.CouponAlreadyUsed:
		return http.StatusConflict, string(kind)
	case fault.CouponNotOwned:
		return http.StatusForbidden, string(kind)
	case fault.Contention, fault.PersistenceFailure:
		return http.StatusServiceUnavailable, string(kind)
	case fault.Canceled:
		return http.StatusRequestTimeout, string(kind)
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// writeError renders err and returns the status and body it wrote.
func writeError(w http.ResponseWriter, r *http.Request, err error) (int, []byte) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		msg = "internal server error"
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", retryAfterSeconds)
	}
	body := encodeError(code, msg)
	writeJSON(w, status, body)
	return status, body
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
