package models

import "time"

// BookingEvent is a decoded booking confirmation read from the log. It is not persisted.
type BookingEvent struct {
	RecipientID int64     `json:"recipientId"`
	SubjectID   string    `json:"subjectId"`
	SubjectType string    `json:"subjectType"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`

	// Channel is optional; empty means the factory default applies.
	Channel Channel `json:"channel,omitempty"`
}
