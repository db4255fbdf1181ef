package domain

// RoomID is client-supplied and not validated for collision.
type RoomID string

type Room struct {
	ID RoomID
}
