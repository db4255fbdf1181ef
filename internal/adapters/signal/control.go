package signal

import (
	"errors"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/protocol"
)

var errForeignParticipant = errors.New("message names another participant")

func (ctl *SignalWSController) handlePing(sid core.SessionID) error {
	return ctl.Orch.Send(sid, protocol.Encode(protocol.Pong{Type: protocol.TypePong}))
}

func (ctl *SignalWSController) handleStartTranscription(sid core.SessionID, data []byte) error {
	var p protocol.Transcription
	if err := protocol.Decode(data, &p); err != nil {
		return err
	}
	if !ctl.owns(sid, p.ParticipantID) {
		return errForeignParticipant
	}
	return ctl.Orch.StartTranscription(sid, p.TargetLanguage)
}

func (ctl *SignalWSController) handleStopTranscription(sid core.SessionID, data []byte) error {
	var p protocol.Transcription
	if err := protocol.Decode(data, &p); err != nil {
		return err
	}
	if !ctl.owns(sid, p.ParticipantID) {
		return errForeignParticipant
	}
	ctl.Orch.StopTranscription(sid)
	return nil
}

func (ctl *SignalWSController) handleAudioChunk(sid core.SessionID, data []byte) error {
	var p protocol.AudioChunk
	if err := protocol.Decode(data, &p); err != nil {
		return err
	}
	if !ctl.owns(sid, p.ParticipantID) {
		return errForeignParticipant
	}
	ctl.Orch.AudioChunk(sid, p.AudioData)
	return nil
}

func (ctl *SignalWSController) handleSetTranslation(sid core.SessionID, data []byte) error {
	var p protocol.Transcription
	if err := protocol.Decode(data, &p); err != nil {
		return err
	}
	if !ctl.owns(sid, p.ParticipantID) {
		return errForeignParticipant
	}
	ctl.Orch.SetTranslationLanguage(sid, p.TargetLanguage)
	return nil
}

func (ctl *SignalWSController) handleCaption(sid core.SessionID, data []byte) error {
	var p protocol.CaptionText
	if err := protocol.Decode(data, &p); err != nil {
		return err
	}
	return ctl.Orch.ClientCaption(sid, p)
}
