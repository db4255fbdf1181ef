// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// Display names are limited in runes, as the join-room validator counts them.
const (
	MaxParticipantIDLen = 64
	MaxDisplayNameLen   = 36
)

var (
	ErrDisplayNameTooLong   = errors.New("display name too long")
	ErrParticipantIDEmpty   = errors.New("participant id empty")
	ErrParticipantIDTooLong = errors.New("participant id too long")
)

// ParticipantID is generated by the client and unique within a room.
type ParticipantID string

type Participant struct {
	ID           ParticipantID `json:"participantId"`
	DisplayName  string        `json:"displayName"`
	AudioEnabled bool          `json:"audioEnabled"`
	VideoEnabled bool          `json:"videoEnabled"`
}

// NewParticipant is a tiny helper to avoid ad-hoc struct literals in adapters.
// Media is assumed enabled until the client reports otherwise.
func NewParticipant(id ParticipantID, displayName string) (*Participant, error) {
	if id == "" {
		return nil, ErrParticipantIDEmpty
	}
	if len(id) > MaxParticipantIDLen {
		return nil, ErrParticipantIDTooLong
	}
	p := &Participant{ID: id, AudioEnabled: true, VideoEnabled: true}
	if err := p.SetDisplayName(displayName); err != nil {
		return nil, err
	}
	return p, nil
}

// SetDisplayName falls back to the participant id when the name is blank.
func (p *Participant) SetDisplayName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		name = string(p.ID)
	}
	if utf8.RuneCountInString(name) > MaxDisplayNameLen {
		return ErrDisplayNameTooLong
	}
	p.DisplayName = name
	return nil
}
