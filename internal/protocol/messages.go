// Package protocol defines the WebSocket messages exchanged with clients.
// Every message is a flat JSON object carrying a "type" tag.
package protocol

import (
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/goccy/go-json"
	"github.com/pion/webrtc/v4"
)

const (
	TypeJoinRoom         = "join-room"
	TypeLeaveRoom        = "leave-room"
	TypeExistingUsers    = "existing-users"
	TypeUserConnected    = "user-connected"
	TypeUserDisconnected = "user-disconnected"
	TypeOffer            = "offer"
	TypeAnswer           = "answer"
	TypeICECandidate     = "ice-candidate"
	TypeChatMessage      = "chat-message"
	TypePrivateMessage   = "private-message"
	TypeTyping           = "typing"
	TypeStopTyping       = "stop-typing"
	TypeMediaStateChange = "media-state-change"
	TypeStartTranscribe  = "start-transcription"
	TypeStopTranscribe   = "stop-transcription"
	TypeAudioChunk       = "audio-chunk"
	TypeSetTranslation   = "set-translation-language"
	TypeCaptionText      = "caption-text"
	TypeBackendDown      = "backend-unavailable"
	TypeAvailableLangs   = "available-languages"
	TypeGetLanguages     = "get-languages"
	TypeICEServers       = "ice-servers"
	TypeEvicted          = "evicted"
	TypePing             = "ping"
	TypePong             = "pong"
)

// Envelope is decoded first to pick a handler.
type Envelope struct {
	Type string `json:"type"`
}

// Inbound payloads. Sender identity fields (from, participantId, roomId) are
// accepted for compatibility but the server always uses the connection's binding.

type JoinRoom struct {
	RoomID        string `json:"roomId" validate:"required,max=128"`
	ParticipantID string `json:"participantId" validate:"required,max=64"`
	DisplayName   string `json:"displayName" validate:"max=36"`
}

type Signal struct {
	From    string          `json:"from"`
	To      string          `json:"to" validate:"required"`
	Payload json.RawMessage `json:"payload"`
}

type Chat struct {
	Body string `json:"body" validate:"required"`
}

type PrivateMessage struct {
	To   string `json:"to" validate:"required"`
	Body string `json:"body" validate:"required"`
}

type MediaState struct {
	AudioEnabled bool `json:"audioEnabled"`
	VideoEnabled bool `json:"videoEnabled"`
}

type Transcription struct {
	ParticipantID  string `json:"participantId"`
	TargetLanguage string `json:"targetLanguage" validate:"omitempty,min=2,max=16"`
}

type AudioChunk struct {
	ParticipantID string `json:"participantId"`
	AudioData     []byte `json:"audioData" validate:"required"`
}

type CaptionText struct {
	Text           string `json:"text" validate:"required"`
	Translated     string `json:"translated"`
	TargetLanguage string `json:"targetLanguage" validate:"omitempty,max=16"`
	IsFinal        bool   `json:"isFinal"`
}

// Outbound messages.

type ExistingUsers struct {
	Type  string               `json:"type"`
	Users []domain.Participant `json:"users"`
}

type PeerEvent struct {
	Type          string               `json:"type"`
	ParticipantID domain.ParticipantID `json:"participantId"`
	DisplayName   string               `json:"displayName"`
}

type SignalOut struct {
	Type    string               `json:"type"`
	From    domain.ParticipantID `json:"from"`
	To      domain.ParticipantID `json:"to"`
	Payload json.RawMessage      `json:"payload,omitempty"`
}

type ChatOut struct {
	Type string `json:"type"`
	domain.ChatMessage
}

type TypingOut struct {
	Type        string               `json:"type"`
	RoomID      domain.RoomID        `json:"roomId"`
	From        domain.ParticipantID `json:"from"`
	DisplayName string               `json:"displayName"`
}

type MediaStateOut struct {
	Type         string               `json:"type"`
	RoomID       domain.RoomID        `json:"roomId"`
	From         domain.ParticipantID `json:"from"`
	AudioEnabled bool                 `json:"audioEnabled"`
	VideoEnabled bool                 `json:"videoEnabled"`
}

type CaptionOut struct {
	Type string `json:"type"`
	domain.Caption
}

type BackendUnavailable struct {
	Type                  string `json:"type"`
	UseClientSideFallback bool   `json:"useClientSideFallback"`
}

type Languages struct {
	Type      string            `json:"type"`
	Languages []domain.Language `json:"languages"`
}

type ICEServers struct {
	Type       string             `json:"type"`
	ICEServers []webrtc.ICEServer `json:"iceServers"`
}

type Evicted struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

type Pong struct {
	Type string `json:"type"`
}
