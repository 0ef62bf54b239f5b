package httpapi

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	// HeaderIdempotencyKey: клиентский ключ повторяемого запроса.
	HeaderIdempotencyKey = "Idempotency-Key"
	// HeaderIdempotentReplayed выставляется, если ответ взят из сохранённой записи.
	HeaderIdempotentReplayed = "Idempotent-Replayed"
)

// placeOrderIdempotent оформляет заказ не более одного раза на пару (пользователь, ключ).
func (h *Handler) placeOrderIdempotent(w http.ResponseWriter, r *http.Request, actor domain.Actor, key string, body []byte) {
	ctx := r.Context()
	scopedKey := strconv.FormatInt(actor.UserID, 10) + ":" + key
	logger := requestLogger(r, h.logger).WithField("idempotency_key", key)

	record, err := h.svc.Idempotency.CreateProcessing(ctx, scopedKey, requestHash(actor.UserID, body), h.now().UTC().Add(h.idempotencyTTL))
	if err != nil {
		h.replayIdempotent(w, r, err, record)
		return
	}

	status, payload := h.placeOrder(r, actor, body)

	// Запись должна перейти в конечное состояние даже при разрыве соединения.
	storeCtx := context.WithoutCancel(ctx)
	var storeErr error
	switch {
	case status < http.StatusBadRequest:
		storeErr = h.svc.Idempotency.MarkDone(storeCtx, scopedKey, payload, status)
	case status < http.StatusInternalServerError:
		storeErr = h.svc.Idempotency.MarkFailed(storeCtx, scopedKey, payload, status)
	default:
		storeErr = h.svc.Idempotency.Release(storeCtx, scopedKey)
	}
	if storeErr != nil {
		logger.WithError(storeErr).WithField("status", status).Warn("failed to store idempotent response")
	}

	respondRaw(w, status, payload)
}

func (h *Handler) replayIdempotent(w http.ResponseWriter, r *http.Request, createErr error, record domain.IdempotencyRecord) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		respondJSON(w, http.StatusConflict, detailResponse{Detail: "Idempotency key is already used with a different request payload."})
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		if !record.Replayable() {
			respondJSON(w, http.StatusConflict, detailResponse{Detail: "A request with this idempotency key is still being processed."})
			return
		}
		if h.metrics != nil {
			h.metrics.RecordIdempotentReplay()
		}
		requestLogger(r, h.logger).WithFields(log.Fields{
			"idempotency_key": record.Key,
			"status":          record.HTTPStatus,
		}).Debug("idempotent response replayed")
		w.Header().Set(HeaderIdempotentReplayed, "true")
		respondRaw(w, record.HTTPStatus, record.ResponseBody)
	default:
		h.writeError(w, r, createErr)
	}
}

// requestHash связывает ключ с конкретным телом запроса пользователя.
func requestHash(userID int64, body []byte) string {
	sum := sha256.New()
	sum.Write([]byte(strconv.FormatInt(userID, 10)))
	sum.Write([]byte{0})
	sum.Write(body)
	return hex.EncodeToString(sum.Sum(nil))
}
