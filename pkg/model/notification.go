package model

import "time"

type NotificationType string

const (
	NotificationClassCancelled         NotificationType = "CLASS_CANCELLED_LOW_PARTICIPANTS"
	NotificationLowParticipantsWarning NotificationType = "CLASS_LOW_PARTICIPANTS_WARNING"
)

type Notification struct {
	RecipientID string           `json:"recipient_id" validate:"required,max=128"`
	Type        NotificationType `json:"type" validate:"required,oneof=CLASS_CANCELLED_LOW_PARTICIPANTS CLASS_LOW_PARTICIPANTS_WARNING"`
	Payload     map[string]any   `json:"payload"`
	CreatedAt   time.Time        `json:"created_at"`
}
