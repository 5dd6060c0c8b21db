package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/stockorder/internal/domain/fault"
	"github.com/xenking/stockorder/internal/idempotency"
)

const (
	// HeaderIdempotencyKey de-duplicates order creation retries.
	HeaderIdempotencyKey = "Idempotency-Key"
	// HeaderIdempotentReplay is set on responses served from the idempotency store.
	HeaderIdempotentReplay = "Idempotent-Replayed"

	maxBodyBytes = 1 << 20
)

// CreateOrder handles POST /orders.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lg := zctx.From(ctx)

	key := r.Header.Get(HeaderIdempotencyKey)
	if h.idem == nil {
		key = ""
	}
	if key != "" {
		stored, err := h.idem.Begin(ctx, key)
		switch {
		case errors.Is(err, idempotency.ErrInProgress):
			writeJSON(w, http.StatusConflict, encodeError("request_in_progress", err.Error()))
			return
		case err != nil:
			lg.Warn("Idempotency store unavailable", zap.Error(err))
			key = ""
		case stored != nil:
			w.Header().Set(HeaderIdempotentReplay, "true")
			writeJSON(w, stored.Status, stored.Body)
			return
		}
	}

	status, body := h.createOrder(w, r)
	if key == "" {
		return
	}

	// The outcome is recorded even if the client went away.
	storeCtx := context.WithoutCancel(ctx)
	if status >= http.StatusInternalServerError || status == http.StatusRequestTimeout {
		if err := h.idem.Abort(storeCtx, key); err != nil {
			lg.Warn("Abort idempotency key", zap.Error(err))
		}
		return
	}
	if err := h.idem.Complete(storeCtx, key, idempotency.Response{Status: status, Body: body}); err != nil {
		lg.Warn("Complete idempotency key", zap.Error(err))
	}
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) (int, []byte) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return writeError(w, r, errors.Wrap(errBadRequest, err.Error()))
	}
	req, err := decodeCreateRequest(data)
	if err != nil {
		return writeError(w, r, err)
	}

	o, err := h.orders.CreateOrder(r.Context(), req)
	if err != nil {
		if fault.Retryable(err) {
			zctx.From(r.Context()).Info("Order not created, retryable",
				zap.String("kind", string(fault.KindOf(err))),
				zap.Error(err),
			)
		}
		return writeError(w, r, err)
	}

	body := encodeOrder(o)
	w.Header().Set("Location", "/api/orders/"+o.ID)
	writeJSON(w, http.StatusCreated, body)
	return http.StatusCreated, body
}

// GetOrder handles GET /orders/{id}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, encodeOrder(o))
}
