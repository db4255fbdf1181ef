package orch

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/Huddle/internal/app/transcribe"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/protocol"
	"github.com/rs/zerolog/log"
)

// StartTranscription activates server-side captions for the session. When
// the backend is down the client is told to fall back to local recognition.
func (o *Orchestrator) StartTranscription(sid core.SessionID, targetLanguage string) error {
	b, _, err := o.bound(sid)
	if err != nil {
		return err
	}
	if o.Pipeline == nil {
		err = transcribe.ErrBackendUnavailable
	} else {
		err = o.Pipeline.Start(transcribe.Owner{
			SID:         sid,
			RoomID:      b.RoomID,
			Participant: b.Participant,
			DisplayName: b.DisplayName,
		}, targetLanguage)
	}
	if errors.Is(err, transcribe.ErrBackendUnavailable) {
		_ = o.Send(sid, protocol.Encode(protocol.BackendUnavailable{Type: protocol.TypeBackendDown, UseClientSideFallback: true}))
		log.Info().Str("module", "orch").Str("sid", string(sid)).Msg("transcription backend unavailable, client fallback")
	}
	return err
}

func (o *Orchestrator) StopTranscription(sid core.SessionID) {
	if o.Pipeline != nil {
		o.Pipeline.Stop(sid)
	}
}

func (o *Orchestrator) AudioChunk(sid core.SessionID, chunk []byte) {
	if o.Pipeline != nil {
		o.Pipeline.AddAudioChunk(sid, chunk)
	}
}

func (o *Orchestrator) SetTranslationLanguage(sid core.SessionID, lang string) {
	if o.Pipeline != nil {
		o.Pipeline.SetTargetLanguage(sid, lang)
	}
}

// OnTranscript is the pipeline sink.
func (o *Orchestrator) OnTranscript(res transcribe.Result) {
	room, ok := o.Rooms.Get(res.Owner.RoomID)
	if !ok {
		return
	}
	owner, ok := room.Member(res.Owner.Participant)
	if !ok {
		return
	}
	o.publishCaption(room, res.Owner.SID, domain.Caption{
		OwnerID:          owner.ID,
		OwnerDisplayName: owner.DisplayName,
		Original:         res.Original,
		Translated:       res.Translated,
		TargetLanguage:   res.TargetLanguage,
		IsFinal:          true,
	})
}

// ClientCaption relays a caption recognized on the client itself.
func (o *Orchestrator) ClientCaption(sid core.SessionID, in protocol.CaptionText) error {
	b, room, err := o.bound(sid)
	if err != nil {
		return err
	}
	o.publishCaption(room, sid, domain.Caption{
		OwnerID:          b.Participant,
		OwnerDisplayName: b.DisplayName,
		Original:         in.Text,
		Translated:       in.Translated,
		TargetLanguage:   in.TargetLanguage,
		IsFinal:          in.IsFinal,
	})
	return nil
}

func (o *Orchestrator) publishCaption(room core.RoomService, owner core.SessionID, c domain.Caption) {
	c.Timestamp = time.Now().UTC()
	res := room.Broadcast(owner, protocol.Encode(protocol.CaptionOut{Type: protocol.TypeCaptionText, Caption: c}))
	if o.Captions != nil {
		o.Captions.Put(room.Room().ID, c)
	}
	o.applyPolicy(room, res)
}

// RoomCaptions returns the unexpired captions of a live room's members.
func (o *Orchestrator) RoomCaptions(roomID domain.RoomID) ([]domain.Caption, bool) {
	room, ok := o.Rooms.Get(roomID)
	if !ok {
		return nil, false
	}
	if o.Captions == nil {
		return []domain.Caption{}, true
	}
	members := room.MembersSnapshot()
	ids := make([]domain.ParticipantID, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	return o.Captions.Current(roomID, ids), true
}

func (o *Orchestrator) LanguageList(ctx context.Context) []domain.Language {
	if o.Languages == nil {
		return nil
	}
	return o.Languages.Languages(ctx)
}

func (o *Orchestrator) SendLanguages(ctx context.Context, sid core.SessionID) error {
	langs := o.LanguageList(ctx)
	if langs == nil {
		return nil
	}
	return o.Send(sid, protocol.Encode(protocol.Languages{Type: protocol.TypeAvailableLangs, Languages: langs}))
}
