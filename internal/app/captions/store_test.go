package captions

import (
	"testing"
	"time"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T, ttl time.Duration) *Store {
	t.Helper()
	s, err := NewStore(ttl, 100)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func caption(owner, text string) domain.Caption {
	return domain.Caption{OwnerID: domain.ParticipantID(owner), Original: text, IsFinal: true, Timestamp: time.Now()}
}

func TestPutSupersedes(t *testing.T) {
	s := newStore(t, time.Minute)
	s.Put("r1", caption("A", "one"))
	s.Put("r1", caption("A", "two"))

	c, ok := s.Get("r1", "A")
	require.True(t, ok)
	assert.Equal(t, "two", c.Original)

	_, ok = s.Get("r2", "A")
	assert.False(t, ok, "captions are scoped to their room")
}

func TestCaptionsExpire(t *testing.T) {
	s := newStore(t, 50*time.Millisecond)
	s.Put("r1", caption("A", "soon gone"))
	_, ok := s.Get("r1", "A")
	require.True(t, ok)

	assert.Eventually(t, func() bool {
		_, ok := s.Get("r1", "A")
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestCurrentAndForget(t *testing.T) {
	s := newStore(t, time.Minute)
	s.Put("r1", caption("A", "a"))
	s.Put("r1", caption("B", "b"))

	got := s.Current("r1", []domain.ParticipantID{"B", "C", "A"})
	require.Len(t, got, 2)
	assert.Equal(t, domain.ParticipantID("B"), got[0].OwnerID)
	assert.Equal(t, domain.ParticipantID("A"), got[1].OwnerID)

	s.Forget("r1", "A")
	assert.Len(t, s.Current("r1", []domain.ParticipantID{"A", "B"}), 1)
}
