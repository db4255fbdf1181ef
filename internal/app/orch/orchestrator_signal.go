package orch

import (
	"errors"
	"strings"
	"time"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/protocol"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Relay forwards an offer, answer or ice-candidate to exactly one peer in
// the sender's room. The payload is passed through untouched.
func (o *Orchestrator) Relay(sid core.SessionID, kind string, to domain.ParticipantID, payload json.RawMessage) error {
	b, room, err := o.bound(sid)
	if err != nil {
		return err
	}
	frame := protocol.Encode(protocol.SignalOut{Type: kind, From: b.Participant, To: to, Payload: payload})
	return o.sendTo(room, to, frame)
}

// Chat broadcasts to every member, the sender included.
func (o *Orchestrator) Chat(sid core.SessionID, body string) (domain.ChatMessage, error) {
	b, room, err := o.bound(sid)
	if err != nil {
		return domain.ChatMessage{}, err
	}
	body, err = o.checkBody(sid, body)
	if err != nil {
		return domain.ChatMessage{}, err
	}
	msg := o.newMessage(b.RoomID, b.Participant, b.DisplayName, body)
	res := room.BroadcastAll(protocol.Encode(protocol.ChatOut{Type: protocol.TypeChatMessage, ChatMessage: msg}))
	o.applyPolicy(room, res)
	return msg, nil
}

// PrivateMessage reaches only to. A missing target is not reported back.
func (o *Orchestrator) PrivateMessage(sid core.SessionID, to domain.ParticipantID, body string) (domain.ChatMessage, error) {
	b, room, err := o.bound(sid)
	if err != nil {
		return domain.ChatMessage{}, err
	}
	body, err = o.checkBody(sid, body)
	if err != nil {
		return domain.ChatMessage{}, err
	}
	msg := o.newMessage(b.RoomID, b.Participant, b.DisplayName, body)
	msg.To = to
	msg.Private = true
	return msg, o.sendTo(room, to, protocol.Encode(protocol.ChatOut{Type: protocol.TypePrivateMessage, ChatMessage: msg}))
}

// Typing notifies the others; the server keeps no typing state.
func (o *Orchestrator) Typing(sid core.SessionID, stopped bool) error {
	b, room, err := o.bound(sid)
	if err != nil {
		return err
	}
	kind := protocol.TypeTyping
	if stopped {
		kind = protocol.TypeStopTyping
	}
	res := room.Broadcast(sid, protocol.Encode(protocol.TypingOut{Type: kind, RoomID: b.RoomID, From: b.Participant, DisplayName: b.DisplayName}))
	o.applyPolicy(room, res)
	return nil
}

func (o *Orchestrator) MediaState(sid core.SessionID, audio, video bool) error {
	b, room, err := o.bound(sid)
	if err != nil {
		return err
	}
	_, res, err := room.UpdateMediaState(sid, audio, video, func(p domain.Participant) core.Frame {
		return protocol.Encode(protocol.MediaStateOut{
			Type:         protocol.TypeMediaStateChange,
			RoomID:       b.RoomID,
			From:         p.ID,
			AudioEnabled: p.AudioEnabled,
			VideoEnabled: p.VideoEnabled,
		})
	})
	if err != nil {
		return err
	}
	o.applyPolicy(room, res)
	return nil
}

func (o *Orchestrator) sendTo(room core.RoomService, to domain.ParticipantID, frame core.Frame) error {
	ms, err := room.SendTo(to, frame)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, core.ErrMemberNotFound):
		log.Debug().Str("module", "orch").Str("room", string(room.Room().ID)).Str("to", string(to)).Msg("target not in room, dropped")
		return err
	default:
		o.applyPolicy(room, core.PublishResult{Dropped: []core.MemberSession{ms}})
		return err
	}
}

func (o *Orchestrator) checkBody(sid core.SessionID, body string) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", ErrEmptyBody
	}
	limit := o.MaxChatLength
	if limit <= 0 {
		limit = DefaultMaxChatLength
	}
	if len(body) > limit {
		return "", ErrBodyTooLong
	}
	if !o.Limiter.Allow(sid) {
		log.Debug().Str("module", "orch").Str("sid", string(sid)).Msg("chat rate limited")
		return "", ErrRateLimited
	}
	return body, nil
}

func (o *Orchestrator) newMessage(room domain.RoomID, from domain.ParticipantID, name, body string) domain.ChatMessage {
	return domain.ChatMessage{
		ID:          uuid.NewString(),
		RoomID:      room,
		From:        from,
		DisplayName: name,
		Body:        body,
		Timestamp:   time.Now().UTC(),
	}
}
