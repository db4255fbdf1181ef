package signal

import (
	"context"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleJoin(ctx context.Context, sid core.SessionID, data []byte) error {
	var p protocol.JoinRoom
	if err := protocol.Decode(data, &p); err != nil {
		return err
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", p.RoomID).Str("participant", p.ParticipantID).Msg("join")
	if _, err := ctl.Orch.Join(sid, domain.RoomID(p.RoomID), domain.ParticipantID(p.ParticipantID), p.DisplayName); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("join rejected")
		return err
	}
	return ctl.Orch.SendLanguages(ctx, sid)
}

// handleLeave leaves the current room; the connection stays open.
func (ctl *SignalWSController) handleLeave(sid core.SessionID) error {
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("leave")
	ctl.Orch.Leave(sid)
	return nil
}

// owns rejects messages that name a participant other than the sender.
func (ctl *SignalWSController) owns(sid core.SessionID, participantID string) bool {
	if participantID == "" {
		return true
	}
	b, ok := ctl.Orch.Registry.RoomOf(sid)
	return ok && string(b.Participant) == participantID
}
