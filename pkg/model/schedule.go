package model

import "time"

type ScheduleStatus string

const (
	ScheduleScheduled  ScheduleStatus = "SCHEDULED"
	ScheduleInProgress ScheduleStatus = "IN_PROGRESS"
	ScheduleCompleted  ScheduleStatus = "COMPLETED"
	ScheduleCancelled  ScheduleStatus = "CANCELLED"
	SchedulePostponed  ScheduleStatus = "POSTPONED"
)

type Schedule struct {
	ID                  string         `json:"id,omitempty" bson:"_id,omitempty"`
	Status              ScheduleStatus `json:"status" bson:"status"`
	StartTime           time.Time      `json:"start_time" bson:"start_time"`
	EndTime             time.Time      `json:"end_time" bson:"end_time"`
	MinimumParticipants *int           `json:"minimum_participants,omitempty" bson:"minimum_participants"`
	CurrentBookings     int            `json:"current_bookings" bson:"current_bookings"`
	TrainerID           string         `json:"trainer_id" bson:"trainer_id"`
	ClassID             string         `json:"class_id" bson:"class_id"`
	Notes               string         `json:"notes,omitempty" bson:"notes"`
	Version             int64          `json:"version" bson:"version"`
	UpdatedAt           time.Time      `json:"updated_at" bson:"updated_at"`
}

// HasMinimumRequirement reports whether the schedule declares a positive
// minimum participant count. Null and non-positive values mean no requirement.
func (s *Schedule) HasMinimumRequirement() bool {
	return s.MinimumParticipants != nil && *s.MinimumParticipants > 0
}

func (s *Schedule) Minimum() int {
	if !s.HasMinimumRequirement() {
		return 0
	}
	return *s.MinimumParticipants
}

// AppendNote returns notes with entry appended on a new line.
func AppendNote(notes, entry string) string {
	if notes == "" {
		return entry
	}
	return notes + "\n" + entry
}

type Trainer struct {
	ID     string `json:"id,omitempty" bson:"_id,omitempty"`
	Name   string `json:"name" bson:"name"`
	UserID string `json:"user_id,omitempty" bson:"user_id"`
}

type Class struct {
	ID   string `json:"id,omitempty" bson:"_id,omitempty"`
	Name string `json:"name" bson:"name"`
}

// ScheduleCandidate is a schedule joined with its confirmed bookings,
// trainer and class, as returned by the candidate scan.
type ScheduleCandidate struct {
	Schedule          `bson:",inline"`
	ConfirmedBookings []Booking `json:"confirmed_bookings" bson:"confirmed_bookings"`
	Trainer           *Trainer  `json:"trainer,omitempty" bson:"trainer,omitempty"`
	Class             *Class    `json:"class,omitempty" bson:"class,omitempty"`
}

func (c *ScheduleCandidate) ConfirmedCount() int {
	return len(c.ConfirmedBookings)
}

func (c *ScheduleCandidate) BelowMinimum() bool {
	return c.HasMinimumRequirement() && c.ConfirmedCount() < c.Minimum()
}

func (c *ScheduleCandidate) ClassName() string {
	if c.Class == nil {
		return ""
	}
	return c.Class.Name
}

func (c *ScheduleCandidate) TrainerUserID() string {
	if c.Trainer == nil {
		return ""
	}
	return c.Trainer.UserID
}
