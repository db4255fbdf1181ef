package core

import (
	"sync"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

// roomImpl is a threadsafe in-memory room.
// It never closes adapter-owned resources.
type roomImpl struct {
	room   *domain.Room
	mu     sync.RWMutex
	bySID  map[SessionID]MemberSession
	byUser map[domain.ParticipantID]SessionID
	closed bool
}

func NewRoomService(room *domain.Room) RoomService {
	return &roomImpl{
		room:   room,
		bySID:  make(map[SessionID]MemberSession),
		byUser: make(map[domain.ParticipantID]SessionID),
	}
}

func (r *roomImpl) Room() *domain.Room { return r.room }

func (r *roomImpl) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySID)
}

func (r *roomImpl) Closed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

func (r *roomImpl) Join(
	ms MemberSession,
	welcome func(existing []domain.Participant) Frame,
	announce Frame,
) (JoinResult, error) {
	sid, uid := ms.SID(), ms.Meta().ID
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return JoinResult{}, ErrRoomClosed
	}

	var res JoinResult
	if prev, ok := r.byUser[uid]; ok && prev != sid {
		res.Evicted = r.bySID[prev]
		delete(r.bySID, prev)
		log.Info().Str("module", "core.room").Str("room", string(r.room.ID)).Str("participant", string(uid)).Str("evicted_sid", string(prev)).Msg("participant id rebound, evicting previous session")
	}

	res.Existing = r.snapshotLocked(sid)
	r.bySID[sid] = ms
	r.byUser[uid] = sid

	if welcome != nil {
		if err := ms.Signal().TrySend(welcome(res.Existing)); err != nil {
			res.Dropped = append(res.Dropped, ms)
		} else {
			res.SendTo++
		}
	}
	if announce != nil {
		res.merge(r.broadcastLocked(sid, announce))
	}
	log.Info().Str("module", "core.room").Str("room", string(r.room.ID)).Str("sid", string(sid)).Str("participant", string(uid)).Int("existing", len(res.Existing)).Msg("member added")
	return res, nil
}

// Leave is idempotent: a session that is not a member yields (nil, false).
// The second return value reports whether the room became empty, in which
// case the room is closed and must be released by its manager.
func (r *roomImpl) Leave(sid SessionID, announce func(p domain.Participant) Frame) (*domain.Participant, bool, PublishResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ms, ok := r.bySID[sid]
	if !ok {
		return nil, false, PublishResult{}
	}
	delete(r.bySID, sid)
	p := *ms.Meta()
	if r.byUser[p.ID] == sid {
		delete(r.byUser, p.ID)
	}

	var res PublishResult
	if announce != nil {
		res = r.broadcastLocked(sid, announce(p))
	}
	empty := len(r.bySID) == 0
	if empty {
		r.closed = true
	}
	log.Info().Str("module", "core.room").Str("room", string(r.room.ID)).Str("sid", string(sid)).Str("participant", string(p.ID)).Bool("empty", empty).Msg("member removed")
	return &p, empty, res
}

func (r *roomImpl) UpdateMediaState(
	sid SessionID,
	audio, video bool,
	announce func(p domain.Participant) Frame,
) (domain.Participant, PublishResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ms, ok := r.bySID[sid]
	if !ok {
		return domain.Participant{}, PublishResult{}, ErrMemberNotFound
	}
	meta := ms.Meta()
	meta.AudioEnabled = audio
	meta.VideoEnabled = video
	p := *meta

	var res PublishResult
	if announce != nil {
		res = r.broadcastLocked(sid, announce(p))
	}
	log.Debug().Str("module", "core.room").Str("room", string(r.room.ID)).Str("participant", string(p.ID)).Bool("audio", audio).Bool("video", video).Msg("media state updated")
	return p, res, nil
}

func (r *roomImpl) Member(id domain.ParticipantID) (domain.Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sid, ok := r.byUser[id]
	if !ok {
		return domain.Participant{}, false
	}
	return *r.bySID[sid].Meta(), true
}

func (r *roomImpl) Broadcast(from SessionID, data Frame) PublishResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.broadcastLocked(from, data)
}

func (r *roomImpl) BroadcastAll(data Frame) PublishResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.broadcastLocked("", data)
}

// SendTo delivers to exactly the session bound to id.
func (r *roomImpl) SendTo(id domain.ParticipantID, data Frame) (MemberSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sid, ok := r.byUser[id]
	if !ok {
		return nil, ErrMemberNotFound
	}
	ms := r.bySID[sid]
	return ms, ms.Signal().TrySend(data)
}

func (r *roomImpl) MembersSnapshot() []domain.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked("")
}

func (r *roomImpl) snapshotLocked(except SessionID) []domain.Participant {
	out := make([]domain.Participant, 0, len(r.bySID))
	for sid, ms := range r.bySID {
		if sid == except {
			continue
		}
		out = append(out, *ms.Meta())
	}
	return out
}

func (r *roomImpl) broadcastLocked(from SessionID, data Frame) PublishResult {
	res := PublishResult{}
	for sid, m := range r.bySID {
		if sid == from {
			continue
		}
		if err := m.Signal().TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, m)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "core.room").Str("room", string(r.room.ID)).Str("from", string(from)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}
