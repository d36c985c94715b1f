package httpt

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"hrnotify/internal/entity"
)

func (h *Handler) respondError(c *gin.Context, status int, code, message string, err error) {
	resp := ErrorResponse{Error: message, Code: code}
	if err != nil {
		resp.Details = err.Error()
	}
	c.AbortWithStatusJSON(status, resp)
}

func (h *Handler) handleInvalidUUID(c *gin.Context, op, raw string) {
	h.log.Warn().Str("op", op).Str("raw", raw).Msg("invalid uuid in request")
	h.respondError(c, http.StatusBadRequest, "invalid_uuid", "Invalid UUID format", nil)
}

func (h *Handler) handleServiceError(c *gin.Context, op string, err error) {
	log := h.log.With().Str("op", op).Logger()

	switch {
	case errors.Is(err, entity.ErrEmptyRecipients):
		log.Warn().Err(err).Msg("empty recipient list")
		h.respondError(c, http.StatusBadRequest, "empty_recipients",
			"At least one recipient is required", err)

	case errors.Is(err, entity.ErrNoChannels):
		log.Warn().Err(err).Msg("no resolvable channels")
		h.respondError(c, http.StatusBadRequest, "no_channels",
			"No channel resolves for this notification", err)

	case errors.Is(err, entity.ErrRecipientNotFound):
		log.Warn().Err(err).Msg("recipient not found")
		h.respondError(c, http.StatusBadRequest, "recipient_not_found",
			"One or more recipients are unknown", err)

	case errors.Is(err, entity.ErrAckUnsupported):
		log.Warn().Err(err).Msg("ack on non-ack channel")
		h.respondError(c, http.StatusBadRequest, "ack_unsupported",
			"This channel does not support acknowledgments", err)

	case errors.Is(err, entity.ErrInvalidData):
		log.Warn().Err(err).Msg("invalid data")
		h.respondError(c, http.StatusBadRequest, "invalid_data", "Invalid input data", err)

	case errors.Is(err, entity.ErrQueueFull):
		log.Warn().Err(err).Msg("ingress queue full")
		c.Header("Retry-After", "5")
		h.respondError(c, http.StatusTooManyRequests, "queue_full",
			"Ingress queue is full, back off and resubmit", err)

	case errors.Is(err, entity.ErrNotificationNotFound):
		log.Warn().Err(err).Msg("notification not found")
		h.respondError(c, http.StatusNotFound, "not_found", "Notification not found", err)

	case errors.Is(err, entity.ErrDeliveryNotFound):
		log.Warn().Err(err).Msg("delivery not found")
		h.respondError(c, http.StatusNotFound, "not_found", "Delivery record not found", err)

	case errors.Is(err, entity.ErrDataNotFound):
		log.Warn().Err(err).Msg("data not found")
		h.respondError(c, http.StatusNotFound, "not_found", "Resource not found", err)

	case errors.Is(err, entity.ErrStateConflict):
		log.Warn().Err(err).Msg("state conflict")
		h.respondError(c, http.StatusConflict, "state_conflict",
			"Delivery state changed concurrently, re-read and retry", err)

	case errors.Is(err, entity.ErrConflictingData):
		log.Warn().Err(err).Msg("conflicting data")
		h.respondError(c, http.StatusConflict, "conflict", "Data conflict occurred", err)

	default:
		log.Error().Err(err).Msg("internal server error")
		h.respondError(c, http.StatusInternalServerError, "internal_error",
			"Internal server error occurred", err)
	}
}
