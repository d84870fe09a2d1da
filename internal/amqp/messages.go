package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"cuzdan/internal/core"
)

// ReminderMessage announces one upcoming calendar event to the notify worker.
type ReminderMessage struct {
	ID          string             `json:"id"`
	UserID      string             `json:"userId"`
	Date        core.Date          `json:"date"`
	Type        core.HighlightType `json:"type"`
	Description string             `json:"description"`
	DaysLeft    int                `json:"daysLeft"`
	Timestamp   time.Time          `json:"timestamp"`
}

// NewReminderMessage builds the message for event, due daysLeft days from today.
func NewReminderMessage(id, userID string, event core.HighlightedDate, daysLeft int) *ReminderMessage {
	return &ReminderMessage{
		ID:          id,
		UserID:      userID,
		Date:        event.Date,
		Type:        event.Type,
		Description: event.Description,
		DaysLeft:    daysLeft,
		Timestamp:   time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ReminderMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ReminderMessageFromJSON decodes a message and checks its required fields.
func ReminderMessageFromJSON(data []byte) (*ReminderMessage, error) {
	var msg ReminderMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ID == "" || msg.UserID == "" {
		return nil, fmt.Errorf("reminder message without id or user")
	}
	return &msg, nil
}
