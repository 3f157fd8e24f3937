package model

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
)

func intPtr(v int) *int { return &v }

func TestSchedule_HasMinimumRequirement(t *testing.T) {
	tests := []struct {
		name    string
		minimum *int
		want    bool
	}{
		{"null minimum", nil, false},
		{"zero minimum", intPtr(0), false},
		{"negative minimum", intPtr(-3), false},
		{"positive minimum", intPtr(5), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Schedule{MinimumParticipants: tt.minimum}
			assert.Equal(t, tt.want, s.HasMinimumRequirement())
		})
	}
}

func TestScheduleCandidate_BelowMinimum(t *testing.T) {
	c := ScheduleCandidate{
		Schedule:          Schedule{MinimumParticipants: intPtr(5)},
		ConfirmedBookings: make([]Booking, 3),
	}
	assert.True(t, c.BelowMinimum())

	c.ConfirmedBookings = make([]Booking, 5)
	assert.False(t, c.BelowMinimum())

	c.MinimumParticipants = nil
	c.ConfirmedBookings = nil
	assert.False(t, c.BelowMinimum(), "no requirement is never below minimum")
}

func TestAppendNote(t *testing.T) {
	assert.Equal(t, "reason", AppendNote("", "reason"))
	assert.Equal(t, "bring mats\nreason", AppendNote("bring mats", "reason"))
}

func TestNotification_Validation(t *testing.T) {
	v := validator.New()

	valid := Notification{RecipientID: "user-1", Type: NotificationClassCancelled}
	assert.NoError(t, v.Struct(valid))

	assert.Error(t, v.Struct(Notification{Type: NotificationClassCancelled}), "recipient is required")
	assert.Error(t, v.Struct(Notification{RecipientID: "user-1", Type: "CLASS_RESCHEDULED"}), "unknown type")
}
