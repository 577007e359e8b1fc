package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType classifies auth audit events.
type EventType string

const (
	EventLogin         EventType = "login"
	EventLoginDenied   EventType = "login_denied"
	EventRegister      EventType = "register"
	EventRefresh       EventType = "refresh"
	EventRefreshDenied EventType = "refresh_denied"
)

// Event is one auth decision worth recording. UserID may be empty for denied
// attempts where no identity was resolved.
type Event struct {
	ID     uuid.UUID `json:"id"`
	Type   EventType `json:"type"`
	UserID string    `json:"user_id,omitempty"`
	Email  string    `json:"email,omitempty"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

func NewEvent(t EventType, userID, email string) *Event {
	return &Event{
		ID:     uuid.New(),
		Type:   t,
		UserID: userID,
		Email:  email,
		At:     time.Now().UTC(),
	}
}

func (e *Event) WithReason(reason string) *Event {
	e.Reason = reason
	return e
}

func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// PartitionKey routes events for one user to one partition so their order is
// preserved. Denied attempts without a user id fall back to the email.
func (e *Event) PartitionKey() string {
	if e.UserID != "" {
		return e.UserID
	}
	return e.Email
}
