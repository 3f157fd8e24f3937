package model

import "time"

type BookingStatus string

const (
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingWaitlist  BookingStatus = "WAITLIST"
	BookingCancelled BookingStatus = "CANCELLED"
	BookingNoShow    BookingStatus = "NO_SHOW"
	BookingCompleted BookingStatus = "COMPLETED"
)

type Booking struct {
	ID                 string        `json:"id,omitempty" bson:"_id,omitempty"`
	ScheduleID         string        `json:"schedule_id" bson:"schedule_id"`
	MemberID           string        `json:"member_id" bson:"member_id"`
	Status             BookingStatus `json:"status" bson:"status"`
	CancelledAt        *time.Time    `json:"cancelled_at,omitempty" bson:"cancelled_at,omitempty"`
	CancellationReason *string       `json:"cancellation_reason,omitempty" bson:"cancellation_reason,omitempty"`
	CreatedAt          time.Time     `json:"created_at" bson:"created_at"`
}
