package httpt

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"hrnotify/internal/entity"
	"hrnotify/internal/service"
)

const _defaultContextTimeout = 5 * time.Second

// @Summary Submit a notification
// @Description Validates and enqueues a notification for asynchronous delivery
// @Tags Notification
// @Accept json
// @Produce json
// @Param request body httpt.SubmitNotificationRequest true "Notification to deliver"
// @Success 202 {object} httpt.SubmitNotificationResponse "Accepted for delivery"
// @Failure 400 {object} httpt.ErrorResponse "Validation failed"
// @Failure 429 {object} httpt.ErrorResponse "Ingress queue full"
// @Failure 500 {object} httpt.ErrorResponse "Internal error"
// @Router /api/v1/notifications [post]
func (h *Handler) submitNotificationHandler(c *gin.Context) {
	const op = "transport.submitNotificationHandler"

	var req SubmitNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warn().Err(err).Str("op", op).Msg("malformed request body")
		h.respondError(c, http.StatusBadRequest, "invalid_body", "Malformed JSON body", err)
		return
	}

	recipients := make([]uuid.UUID, 0, len(req.Recipients))
	for _, raw := range req.Recipients {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.handleInvalidUUID(c, op, raw)
			return
		}
		recipients = append(recipients, id)
	}

	mask, err := entity.ParseChannelMask(req.Channels)
	if err != nil {
		h.handleServiceError(c, op, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), _defaultContextTimeout)
	defer cancel()

	id, err := h.ingress.Submit(ctx, service.SubmitRequest{
		Type:       entity.NotificationType(req.Type),
		Recipients: recipients,
		Title:      req.Title,
		Body:       req.Body,
		Meta:       req.Meta,
		Channels:   mask,
		Priority:   entity.Priority(req.Priority),
		ExpiresAt:  req.ExpiresAt,
	})
	if err != nil {
		h.handleServiceError(c, op, err)
		return
	}

	c.JSON(http.StatusAccepted, SubmitNotificationResponse{
		NotificationID: id.String(),
		Message:        "Notification accepted",
	})
}

// @Summary Delivery status of a notification
// @Description Returns every delivery record fanned out from the notification
// @Tags Notification
// @Produce json
// @Param id path string true "Notification id"
// @Success 200 {array} entity.DeliveryRecord
// @Failure 404 {object} httpt.ErrorResponse "Notification not found"
// @Router /api/v1/notifications/{id}/deliveries [get]
func (h *Handler) getDeliveriesHandler(c *gin.Context) {
	const op = "transport.getDeliveriesHandler"

	raw := c.Param("id")
	id, err := uuid.Parse(raw)
	if err != nil {
		h.handleInvalidUUID(c, op, raw)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), _defaultContextTimeout)
	defer cancel()

	records, err := h.status.GetDeliveryStatus(ctx, id)
	if err != nil {
		h.handleServiceError(c, op, err)
		return
	}

	c.JSON(http.StatusOK, records)
}

// @Summary Acknowledge a delivery
// @Description Records a read or confirmed acknowledgment and supersedes pending siblings
// @Tags Notification
// @Accept json
// @Produce json
// @Param id path string true "Notification id"
// @Param request body httpt.AckRequest true "Acknowledgment"
// @Success 200 {object} httpt.SuccessResponse
// @Failure 400 {object} httpt.ErrorResponse "Channel does not support acks"
// @Failure 404 {object} httpt.ErrorResponse "Delivery record not found"
// @Failure 409 {object} httpt.ErrorResponse "Record not in an ackable state"
// @Router /api/v1/notifications/{id}/ack [post]
func (h *Handler) ackHandler(c *gin.Context) {
	const op = "transport.ackHandler"

	raw := c.Param("id")
	notificationID, err := uuid.Parse(raw)
	if err != nil {
		h.handleInvalidUUID(c, op, raw)
		return
	}

	var req AckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warn().Err(err).Str("op", op).Msg("malformed request body")
		h.respondError(c, http.StatusBadRequest, "invalid_body", "Malformed JSON body", err)
		return
	}

	recipientID, err := uuid.Parse(req.RecipientID)
	if err != nil {
		h.handleInvalidUUID(c, op, req.RecipientID)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), _defaultContextTimeout)
	defer cancel()

	err = h.acks.Ack(ctx, notificationID, recipientID, entity.Channel(req.Channel), service.AckKind(req.Kind))
	if err != nil {
		h.handleServiceError(c, op, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "Acknowledgment recorded"})
}

// @Summary Recipient inbox
// @Description Lists a recipient's in-app entries, newest first
// @Tags Inbox
// @Produce json
// @Param id path string true "Recipient id"
// @Param type query string false "Filter by notification type"
// @Param unread query bool false "Only unread entries"
// @Param limit query int false "Page size (max 100)"
// @Param offset query int false "Page offset"
// @Success 200 {array} entity.InboxEntry
// @Router /api/v1/recipients/{id}/inbox [get]
func (h *Handler) getInboxHandler(c *gin.Context) {
	const op = "transport.getInboxHandler"

	raw := c.Param("id")
	recipientID, err := uuid.Parse(raw)
	if err != nil {
		h.handleInvalidUUID(c, op, raw)
		return
	}

	var query struct {
		Type   string `form:"type"`
		Unread bool   `form:"unread"`
		Limit  uint64 `form:"limit"`
		Offset uint64 `form:"offset"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		h.respondError(c, http.StatusBadRequest, "invalid_query", "Malformed query parameters", err)
		return
	}

	filter := entity.InboxFilter{
		UnreadOnly: query.Unread,
		Limit:      query.Limit,
		Offset:     query.Offset,
	}
	if query.Type != "" {
		t := entity.NotificationType(query.Type)
		if !t.IsValid() {
			h.respondError(c, http.StatusBadRequest, "invalid_type", "Unknown notification type", nil)
			return
		}
		filter.Type = &t
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), _defaultContextTimeout)
	defer cancel()

	entries, err := h.status.GetInbox(ctx, recipientID, filter)
	if err != nil {
		h.handleServiceError(c, op, err)
		return
	}

	c.JSON(http.StatusOK, entries)
}

// @Summary Mark an inbox entry read
// @Description Marks the entry read and records the in-app read acknowledgment
// @Tags Inbox
// @Produce json
// @Param id path string true "Recipient id"
// @Param notification_id path string true "Notification id"
// @Success 200 {object} httpt.SuccessResponse
// @Failure 404 {object} httpt.ErrorResponse "Entry not found"
// @Router /api/v1/recipients/{id}/inbox/{notification_id}/read [post]
func (h *Handler) readInboxHandler(c *gin.Context) {
	const op = "transport.readInboxHandler"

	rawRcp := c.Param("id")
	recipientID, err := uuid.Parse(rawRcp)
	if err != nil {
		h.handleInvalidUUID(c, op, rawRcp)
		return
	}
	rawN := c.Param("notification_id")
	notificationID, err := uuid.Parse(rawN)
	if err != nil {
		h.handleInvalidUUID(c, op, rawN)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), _defaultContextTimeout)
	defer cancel()

	// Reading the inbox entry IS the in-app read acknowledgment.
	err = h.acks.Ack(ctx, notificationID, recipientID, entity.ChannelInApp, service.AckRead)
	if err != nil {
		h.handleServiceError(c, op, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "Inbox entry marked read"})
}

// @Summary Force a delivery retry
// @Description Puts a stuck or expired delivery back on the retry schedule with a fresh attempt budget
// @Tags Admin
// @Produce json
// @Param id path string true "Delivery record id"
// @Success 200 {object} httpt.SuccessResponse
// @Failure 404 {object} httpt.ErrorResponse "Delivery record not found"
// @Failure 409 {object} httpt.ErrorResponse "Record not in a retryable state"
// @Router /api/v1/admin/deliveries/{id}/retry [post]
func (h *Handler) forceRetryHandler(c *gin.Context) {
	const op = "transport.forceRetryHandler"

	raw := c.Param("id")
	id, err := uuid.Parse(raw)
	if err != nil {
		h.handleInvalidUUID(c, op, raw)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), _defaultContextTimeout)
	defer cancel()

	if err := h.status.ForceRetry(ctx, id); err != nil {
		h.handleServiceError(c, op, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "Delivery rescheduled"})
}

// @Summary Force a delivery to expire
// @Description Terminates a delivery regardless of its remaining attempts
// @Tags Admin
// @Produce json
// @Param id path string true "Delivery record id"
// @Success 200 {object} httpt.SuccessResponse
// @Failure 404 {object} httpt.ErrorResponse "Delivery record not found"
// @Router /api/v1/admin/deliveries/{id}/expire [post]
func (h *Handler) forceExpireHandler(c *gin.Context) {
	const op = "transport.forceExpireHandler"

	raw := c.Param("id")
	id, err := uuid.Parse(raw)
	if err != nil {
		h.handleInvalidUUID(c, op, raw)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), _defaultContextTimeout)
	defer cancel()

	if err := h.status.ForceExpire(ctx, id); err != nil {
		h.handleServiceError(c, op, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "Delivery expired"})
}

func (h *Handler) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) metricsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, h.metrics.Snapshot())
}
