package domain

import "time"

// ChatMessage is never stored; it lives as long as its delivery.
type ChatMessage struct {
	ID          string        `json:"id"`
	RoomID      RoomID        `json:"roomId"`
	From        ParticipantID `json:"from"`
	DisplayName string        `json:"displayName"`
	To          ParticipantID `json:"to,omitempty"`
	Body        string        `json:"body"`
	Private     bool          `json:"private"`
	Timestamp   time.Time     `json:"timestamp"`
}
