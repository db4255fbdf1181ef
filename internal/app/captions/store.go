// Package captions keeps the current caption of every speaker for a short TTL.
package captions

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

type Store struct {
	cache *ristretto.Cache[string, domain.Caption]
	ttl   time.Duration
}

func NewStore(ttl time.Duration, maxEntries int64) (*Store, error) {
	if ttl <= 0 {
		ttl = domain.CaptionTTL
	}
	if maxEntries <= 0 {
		maxEntries = 10_000
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, domain.Caption]{
		NumCounters:        maxEntries * 10,
		MaxCost:            maxEntries,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("caption cache: %w", err)
	}
	return &Store{cache: cache, ttl: ttl}, nil
}

func key(room domain.RoomID, owner domain.ParticipantID) string {
	return string(room) + "\x00" + string(owner)
}

// Put makes c the owner's current caption, superseding the previous one.
func (s *Store) Put(room domain.RoomID, c domain.Caption) {
	if !s.cache.SetWithTTL(key(room, c.OwnerID), c, 1, s.ttl) {
		log.Debug().Str("module", "app.captions").Str("room", string(room)).Str("participant", string(c.OwnerID)).Msg("caption not admitted")
		return
	}
	s.cache.Wait()
}

func (s *Store) Get(room domain.RoomID, owner domain.ParticipantID) (domain.Caption, bool) {
	c, ok := s.cache.Get(key(room, owner))
	if !ok || time.Since(c.Timestamp) >= s.ttl {
		return domain.Caption{}, false
	}
	return c, true
}

// Current returns the live captions of the given owners, in owner order.
func (s *Store) Current(room domain.RoomID, owners []domain.ParticipantID) []domain.Caption {
	out := make([]domain.Caption, 0, len(owners))
	for _, id := range owners {
		if c, ok := s.Get(room, id); ok {
			out = append(out, c)
		}
	}
	return out
}

func (s *Store) Forget(room domain.RoomID, owner domain.ParticipantID) {
	s.cache.Del(key(room, owner))
}

func (s *Store) Close() { s.cache.Close() }
