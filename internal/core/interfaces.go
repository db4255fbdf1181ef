package core

import (
	"errors"

	"github.com/dkeye/Huddle/internal/domain"
)

var (
	ErrRoomClosed     = errors.New("room closed")
	ErrMemberNotFound = errors.New("member not found")
)

// Frame is one encoded protocol message.
type Frame []byte

type SessionID string

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// MemberSession binds domain.Participant and its transport endpoint.
// This is what a room stores and fans out to.
type MemberSession interface {
	SID() SessionID
	Meta() *domain.Participant
	Signal() SignalConnection
}

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []MemberSession
}

func (r *PublishResult) merge(o PublishResult) {
	r.SendTo += o.SendTo
	r.Dropped = append(r.Dropped, o.Dropped...)
}

// JoinResult is what a joiner gets back from the room.
type JoinResult struct {
	Existing []domain.Participant
	// Evicted is the previous session bound to the same participant id, if any.
	Evicted MemberSession
	PublishResult
}

// RoomService is the core-facing API of a room.
// It owns the membership set but never touches transport resources.
// Every mutation and the broadcast announcing it happen under one room lock,
// so members observe room events in the order they were applied.
type RoomService interface {
	Room() *domain.Room
	MemberCount() int
	MembersSnapshot() []domain.Participant
	Closed() bool

	Join(ms MemberSession, welcome func(existing []domain.Participant) Frame, announce Frame) (JoinResult, error)
	Leave(sid SessionID, announce func(p domain.Participant) Frame) (*domain.Participant, bool, PublishResult)
	UpdateMediaState(sid SessionID, audio, video bool, announce func(p domain.Participant) Frame) (domain.Participant, PublishResult, error)
	Member(id domain.ParticipantID) (domain.Participant, bool)

	Broadcast(from SessionID, data Frame) PublishResult
	BroadcastAll(data Frame) PublishResult
	SendTo(id domain.ParticipantID, data Frame) (MemberSession, error)
}

type RoomInfo struct {
	ID          domain.RoomID `json:"id"`
	MemberCount int           `json:"member_count"`
}

type RoomManager interface {
	GetOrCreate(id domain.RoomID) RoomService
	Get(id domain.RoomID) (RoomService, bool)
	List() []RoomInfo
	Release(room RoomService)
}
