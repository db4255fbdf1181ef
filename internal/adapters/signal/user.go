package signal

import (
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/protocol"
)

func (ctl *SignalWSController) handleChat(sid core.SessionID, data []byte) error {
	var p protocol.Chat
	if err := protocol.Decode(data, &p); err != nil {
		return err
	}
	_, err := ctl.Orch.Chat(sid, p.Body)
	return err
}

func (ctl *SignalWSController) handlePrivate(sid core.SessionID, data []byte) error {
	var p protocol.PrivateMessage
	if err := protocol.Decode(data, &p); err != nil {
		return err
	}
	_, err := ctl.Orch.PrivateMessage(sid, domain.ParticipantID(p.To), p.Body)
	return err
}

func (ctl *SignalWSController) handleMediaState(sid core.SessionID, data []byte) error {
	var p protocol.MediaState
	if err := protocol.Decode(data, &p); err != nil {
		return err
	}
	return ctl.Orch.MediaState(sid, p.AudioEnabled, p.VideoEnabled)
}
