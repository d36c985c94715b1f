// nolint: revive,staticcheck
// swagger:meta
package httpt

import (
	"time"
)

// swagger:model SubmitNotificationRequest
type SubmitNotificationRequest struct {
	Type       string            `json:"type"                 example:"PAYROLL"`
	Recipients []string          `json:"recipients"           example:"550e8400-e29b-41d4-a716-446655440000"`
	Title      string            `json:"title"                example:"Payslip available"`
	Body       string            `json:"body"                 example:"Your payslip for October is ready."`
	Meta       map[string]string `json:"meta,omitempty"`
	Channels   string            `json:"channels"             example:"IN_APP|EMAIL"`
	Priority   int8              `json:"priority"             example:"5"`
	ExpiresAt  *time.Time        `json:"expires_at,omitempty" example:"2026-09-01T10:00:00Z"`
}

// swagger:model SubmitNotificationResponse
type SubmitNotificationResponse struct {
	NotificationID string `json:"notification_id" example:"0191b2c4-4f2a-7cde-8a3b-9f1e2d3c4b5a"`
	Message        string `json:"message"         example:"Notification accepted"`
}

// swagger:model AckRequest
type AckRequest struct {
	RecipientID string `json:"recipient_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	Channel     string `json:"channel"      example:"IN_APP"`
	Kind        string `json:"kind"         example:"read"`
}

// swagger:model ErrorResponse
type ErrorResponse struct {
	Error   string `json:"error"             example:"notification not found"`
	Code    string `json:"code,omitempty"    example:"not_found"`
	Details string `json:"details,omitempty" example:"notification with id 123 does not exist"`
}

// swagger:model SuccessResponse
type SuccessResponse struct {
	Message string `json:"message" example:"Acknowledgment recorded"`
}
