// Package orch wires rooms, the session registry and the caption pipeline
// into the operations a signaling connection can trigger.
package orch

import (
	"context"
	"errors"

	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/app/captions"
	"github.com/dkeye/Huddle/internal/app/transcribe"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrNotInRoom       = errors.New("session is not in a room")
	ErrEmptyBody       = errors.New("empty message body")
	ErrBodyTooLong     = errors.New("message body too long")
	ErrRateLimited     = errors.New("rate limited")
)

const DefaultMaxChatLength = 4000

type LanguageSource interface {
	Languages(ctx context.Context) []domain.Language
}

// Orchestrator is safe for concurrent use once its fields are set.
// Pipeline, Captions, Languages and Limiter are optional.
type Orchestrator struct {
	Registry  *app.Registry
	Rooms     core.RoomManager
	Policy    app.Policy
	Pipeline  *transcribe.Pipeline
	Captions  *captions.Store
	Languages LanguageSource
	Limiter   *app.RateLimiter

	MaxChatLength int
}

// Connect registers a fresh connection; it is not in any room yet.
func (o *Orchestrator) Connect(sid core.SessionID, conn core.SignalConnection, cancel context.CancelFunc) {
	o.Registry.BindSignal(sid, conn, cancel)
}

// OnDisconnect leaves the room, if any, and forgets the connection.
func (o *Orchestrator) OnDisconnect(sid core.SessionID) {
	o.Leave(sid)
	// An evicted session has no binding left for Leave to find, but a
	// start racing the eviction may still have created a flush loop.
	o.StopTranscription(sid)
	o.Limiter.Forget(sid)
	o.Registry.Unbind(sid)
	log.Info().Str("module", "orch").Str("sid", string(sid)).Msg("disconnected")
}

// Send delivers a frame to one connection regardless of room membership.
func (o *Orchestrator) Send(sid core.SessionID, f core.Frame) error {
	conn, ok := o.Registry.Signal(sid)
	if !ok {
		return ErrSessionNotFound
	}
	if f == nil {
		return nil
	}
	return conn.TrySend(f)
}

// Kick closes a connection without waiting for its queue to drain.
// Room cleanup happens when its read loop observes the close.
func (o *Orchestrator) Kick(sid core.SessionID) {
	o.Registry.Cancel(sid)
	if conn, ok := o.Registry.Signal(sid); ok {
		conn.Close()
	}
	log.Warn().Str("module", "orch").Str("sid", string(sid)).Msg("kicked")
}

// bound resolves the room a session is in.
func (o *Orchestrator) bound(sid core.SessionID) (app.Binding, core.RoomService, error) {
	b, ok := o.Registry.RoomOf(sid)
	if !ok {
		return app.Binding{}, nil, ErrNotInRoom
	}
	room, ok := o.Rooms.Get(b.RoomID)
	if !ok {
		return app.Binding{}, nil, ErrNotInRoom
	}
	return b, room, nil
}

func (o *Orchestrator) applyPolicy(room core.RoomService, res core.PublishResult) {
	if o.Policy == nil {
		return
	}
	for _, slow := range res.Dropped {
		switch o.Policy.OnBackPressure(room, slow) {
		case app.KickMember:
			log.Warn().Str("module", "orch").Str("room", string(room.Room().ID)).Str("sid", string(slow.SID())).Msg("send queue full, kicking member")
			// Never clean up inline: the caller may hold another session's lock.
			o.Kick(slow.SID())
		case app.NoAction:
		}
	}
}
