package app

import (
	"fmt"
	"sync"
	"testing"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopConn struct{}

func (nopConn) TrySend(core.Frame) error { return nil }
func (nopConn) Close()                   {}

func newMember(t *testing.T, sid, id string) core.MemberSession {
	t.Helper()
	p, err := domain.NewParticipant(domain.ParticipantID(id), id)
	require.NoError(t, err)
	return core.NewMemberSession(core.SessionID(sid), p, nopConn{})
}

func TestGetOrCreateReturnsSameRoom(t *testing.T) {
	m := NewRoomManager()
	r1 := m.GetOrCreate("r1")
	assert.Same(t, r1, m.GetOrCreate("r1"))
	assert.NotSame(t, r1, m.GetOrCreate("r2"))
	assert.Len(t, m.List(), 2)
}

func TestReleaseDeletesOnlyClosedRooms(t *testing.T) {
	m := NewRoomManager()
	room := m.GetOrCreate("r1")
	_, err := room.Join(newMember(t, "s1", "A"), nil, nil)
	require.NoError(t, err)

	m.Release(room)
	_, ok := m.Get("r1")
	assert.True(t, ok, "non-empty room must survive Release")

	_, empty, _ := room.Leave("s1", nil)
	require.True(t, empty)
	_, ok = m.Get("r1")
	assert.False(t, ok, "closed room is not visible")

	fresh := m.GetOrCreate("r1")
	assert.NotSame(t, room, fresh)

	// Releasing the stale room must not drop its replacement.
	m.Release(room)
	got, ok := m.Get("r1")
	require.True(t, ok)
	assert.Same(t, fresh, got)
}

func TestConcurrentJoinLeaveKeepsCount(t *testing.T) {
	m := NewRoomManager()
	const n = 50

	members := make([]core.MemberSession, n)
	for i := range members {
		members[i] = newMember(t, fmt.Sprintf("s%d", i), fmt.Sprintf("p%d", i))
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(ms core.MemberSession) {
			defer wg.Done()
			for {
				room := m.GetOrCreate("busy")
				if _, err := room.Join(ms, nil, nil); err == nil {
					break
				}
			}
		}(members[i])
	}
	wg.Wait()

	room, ok := m.Get("busy")
	require.True(t, ok)
	assert.Equal(t, n, room.MemberCount())

	for i := 0; i < n/2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, empty, _ := room.Leave(core.SessionID(fmt.Sprintf("s%d", i)), nil)
			if empty {
				m.Release(room)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, n-n/2, room.MemberCount())
}
