package orch

import (
	"errors"
	"fmt"

	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/protocol"
	"github.com/rs/zerolog/log"
)

const joinAttempts = 3

// Join puts the session into roomID as participantID. A session already in
// a room leaves it first. The joiner receives existing-users and the others
// user-connected, in the same room critical section.
func (o *Orchestrator) Join(sid core.SessionID, roomID domain.RoomID, participantID domain.ParticipantID, displayName string) ([]domain.Participant, error) {
	if from, ok := o.Registry.RoomOf(sid); ok {
		o.Leave(sid)
		log.Info().Str("module", "orch").Str("sid", string(sid)).Str("from_room", string(from.RoomID)).Msg("left previous room before join")
	}
	conn, ok := o.Registry.Signal(sid)
	if !ok {
		return nil, ErrSessionNotFound
	}
	p, err := domain.NewParticipant(participantID, displayName)
	if err != nil {
		return nil, fmt.Errorf("join %s: %w", roomID, err)
	}
	ms := core.NewMemberSession(sid, p, conn)
	welcome := func(existing []domain.Participant) core.Frame {
		return protocol.Encode(protocol.ExistingUsers{Type: protocol.TypeExistingUsers, Users: existing})
	}
	announce := protocol.Encode(protocol.PeerEvent{Type: protocol.TypeUserConnected, ParticipantID: p.ID, DisplayName: p.DisplayName})

	var (
		room core.RoomService
		res  core.JoinResult
	)
	for range joinAttempts {
		room = o.Rooms.GetOrCreate(roomID)
		res, err = room.Join(ms, welcome, announce)
		if !errors.Is(err, core.ErrRoomClosed) {
			break
		}
		log.Debug().Str("module", "orch").Str("room", string(roomID)).Msg("room closed during join, retrying")
	}
	if err != nil {
		return nil, fmt.Errorf("join %s: %w", roomID, err)
	}

	o.Registry.UpdateRoom(sid, app.Binding{RoomID: roomID, Participant: p.ID, DisplayName: p.DisplayName})
	if res.Evicted != nil {
		o.evict(res.Evicted)
	}
	o.applyPolicy(room, res.PublishResult)
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(roomID)).Str("participant", string(p.ID)).Msg("joined")
	return res.Existing, nil
}

// evict detaches a session whose participant id was taken over. The id is
// still present in the room, so nobody is told it disconnected.
func (o *Orchestrator) evict(ms core.MemberSession) {
	sid := ms.SID()
	o.Registry.RemoveRoom(sid)
	if o.Pipeline != nil {
		o.Pipeline.Stop(sid)
	}
	_ = ms.Signal().TrySend(protocol.Encode(protocol.Evicted{Type: protocol.TypeEvicted, Reason: "participant id joined from another connection"}))
	ms.Signal().Close()
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("participant", string(ms.Meta().ID)).Msg("evicted")
}

// Leave removes the session from its room. It reports false when the
// session was not in a room; calling it twice is harmless.
func (o *Orchestrator) Leave(sid core.SessionID) bool {
	b, ok := o.Registry.RemoveRoom(sid)
	if !ok {
		return false
	}
	if o.Pipeline != nil {
		o.Pipeline.Stop(sid)
	}
	room, ok := o.Rooms.Get(b.RoomID)
	if !ok {
		return false
	}
	removed, empty, res := room.Leave(sid, func(p domain.Participant) core.Frame {
		return protocol.Encode(protocol.PeerEvent{Type: protocol.TypeUserDisconnected, ParticipantID: p.ID, DisplayName: p.DisplayName})
	})
	if removed != nil && o.Captions != nil {
		o.Captions.Forget(b.RoomID, removed.ID)
	}
	if empty {
		o.Rooms.Release(room)
	}
	o.applyPolicy(room, res)
	return removed != nil
}

// Members lists a live room for inspection endpoints.
func (o *Orchestrator) Members(roomID domain.RoomID) ([]domain.Participant, bool) {
	room, ok := o.Rooms.Get(roomID)
	if !ok {
		return nil, false
	}
	return room.MembersSnapshot(), true
}
