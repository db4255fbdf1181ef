package orch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/app/captions"
	"github.com/dkeye/Huddle/internal/app/transcribe"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/protocol"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recConn struct {
	mu     sync.Mutex
	frames []core.Frame
	full   bool
	closed bool
}

func (c *recConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full || c.closed {
		return errors.New("cannot send")
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *recConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *recConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *recConn) messages(t *testing.T) []map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, 0, len(c.frames))
	for _, f := range c.frames {
		var m map[string]any
		require.NoError(t, json.Unmarshal(f, &m))
		out = append(out, m)
	}
	return out
}

func (c *recConn) types(t *testing.T) []string {
	t.Helper()
	var out []string
	for _, m := range c.messages(t) {
		out = append(out, m["type"].(string))
	}
	return out
}

func (c *recConn) ofType(t *testing.T, typ string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, m := range c.messages(t) {
		if m["type"] == typ {
			out = append(out, m)
		}
	}
	return out
}

func (c *recConn) reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}

func newOrch() *Orchestrator {
	return &Orchestrator{
		Registry: app.NewRegistry(),
		Rooms:    app.NewRoomManager(),
		Policy:   app.SimplePolicy{},
	}
}

func connect(o *Orchestrator, sid string) *recConn {
	c := &recConn{}
	o.Connect(core.SessionID(sid), c, func() {})
	return c
}

func join(t *testing.T, o *Orchestrator, sid, room, id string) *recConn {
	t.Helper()
	c := connect(o, sid)
	_, err := o.Join(core.SessionID(sid), domain.RoomID(room), domain.ParticipantID(id), id+"-name")
	require.NoError(t, err)
	return c
}

func TestJoinScenario(t *testing.T) {
	o := newOrch()
	ca := connect(o, "s-a")
	existing, err := o.Join("s-a", "r1", "A", "Alice")
	require.NoError(t, err)
	assert.Empty(t, existing)
	require.Equal(t, []string{protocol.TypeExistingUsers}, ca.types(t))
	assert.Empty(t, ca.messages(t)[0]["users"])

	cb := connect(o, "s-b")
	existing, err = o.Join("s-b", "r1", "B", "Bob")
	require.NoError(t, err)
	require.Len(t, existing, 1)
	assert.Equal(t, domain.ParticipantID("A"), existing[0].ID)

	users := cb.ofType(t, protocol.TypeExistingUsers)[0]["users"].([]any)
	require.Len(t, users, 1)
	assert.Equal(t, "A", users[0].(map[string]any)["participantId"])
	assert.Equal(t, "Alice", users[0].(map[string]any)["displayName"])

	connected := ca.ofType(t, protocol.TypeUserConnected)
	require.Len(t, connected, 1)
	assert.Equal(t, "B", connected[0]["participantId"])
	assert.Equal(t, "Bob", connected[0]["displayName"])

	members, ok := o.Members("r1")
	require.True(t, ok)
	assert.Len(t, members, 2)
}

func TestJoinRejectsBadParticipant(t *testing.T) {
	o := newOrch()
	connect(o, "s-a")
	_, err := o.Join("s-a", "r1", "", "x")
	assert.ErrorIs(t, err, domain.ErrParticipantIDEmpty)
	_, ok := o.Registry.RoomOf("s-a")
	assert.False(t, ok)

	_, err = o.Join("s-unknown", "r1", "A", "x")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestJoinAnotherRoomLeavesFirst(t *testing.T) {
	o := newOrch()
	ca := join(t, o, "s-a", "r1", "A")
	cb := join(t, o, "s-b", "r1", "B")
	ca.reset()

	_, err := o.Join("s-b", "r2", "B", "B-name")
	require.NoError(t, err)

	gone := ca.ofType(t, protocol.TypeUserDisconnected)
	require.Len(t, gone, 1)
	assert.Equal(t, "B", gone[0]["participantId"])
	assert.Equal(t, "B-name", gone[0]["displayName"])

	b, ok := o.Registry.RoomOf("s-b")
	require.True(t, ok)
	assert.Equal(t, domain.RoomID("r2"), b.RoomID)
	assert.Contains(t, cb.types(t), protocol.TypeExistingUsers)
}

func TestDuplicateParticipantEvictsOldConnection(t *testing.T) {
	o := newOrch()
	watcher := join(t, o, "s-w", "r1", "W")
	old := join(t, o, "s-1", "r1", "A")
	watcher.reset()

	fresh := join(t, o, "s-2", "r1", "A")
	assert.True(t, old.isClosed())
	assert.Equal(t, []string{protocol.TypeExistingUsers, protocol.TypeEvicted}, old.types(t))
	assert.False(t, fresh.isClosed())

	// The old socket closing must not announce A as gone.
	o.OnDisconnect("s-1")
	assert.Equal(t, []string{protocol.TypeUserConnected}, watcher.types(t))

	members, _ := o.Members("r1")
	assert.Len(t, members, 2)
}

func TestLeaveAnnouncesAndIsIdempotent(t *testing.T) {
	o := newOrch()
	ca := join(t, o, "s-a", "r1", "A")
	join(t, o, "s-b", "r1", "B")
	ca.reset()

	assert.True(t, o.Leave("s-b"))
	assert.False(t, o.Leave("s-b"))
	assert.Equal(t, []string{protocol.TypeUserDisconnected}, ca.types(t))

	o.OnDisconnect("s-a")
	_, ok := o.Rooms.Get("r1")
	assert.False(t, ok, "empty room is deleted")
	assert.Empty(t, o.Rooms.List())
	_, ok = o.Registry.Signal("s-a")
	assert.False(t, ok)
}

func TestRelayOnlyReachesTarget(t *testing.T) {
	o := newOrch()
	conns := map[string]*recConn{}
	for _, id := range []string{"A", "B", "C", "D"} {
		conns[id] = join(t, o, "s-"+id, "r1", id)
	}
	for _, c := range conns {
		c.reset()
	}

	payload := json.RawMessage(`{"sdp":"v=0","type":"offer"}`)
	require.NoError(t, o.Relay("s-A", protocol.TypeOffer, "C", payload))

	for id, c := range conns {
		if id != "C" {
			assert.Empty(t, c.types(t), id)
		}
	}
	got := conns["C"].messages(t)
	require.Len(t, got, 1)
	assert.Equal(t, "offer", got[0]["type"])
	assert.Equal(t, "A", got[0]["from"])
	assert.Equal(t, "C", got[0]["to"])
	raw, _ := json.Marshal(got[0]["payload"])
	assert.JSONEq(t, string(payload), string(raw))

	err := o.Relay("s-A", protocol.TypeICECandidate, "ghost", payload)
	assert.ErrorIs(t, err, core.ErrMemberNotFound)
	assert.Len(t, conns["C"].types(t), 1)
	for _, id := range []string{"A", "B", "D"} {
		assert.Empty(t, conns[id].types(t), id)
	}
}

func TestNotInRoomIsIgnored(t *testing.T) {
	o := newOrch()
	connect(o, "s-a")
	assert.ErrorIs(t, o.Relay("s-a", protocol.TypeOffer, "B", nil), ErrNotInRoom)
	_, err := o.Chat("s-a", "hi")
	assert.ErrorIs(t, err, ErrNotInRoom)
	assert.ErrorIs(t, o.Typing("s-a", false), ErrNotInRoom)
	assert.ErrorIs(t, o.MediaState("s-a", true, true), ErrNotInRoom)
	assert.ErrorIs(t, o.StartTranscription("s-a", ""), ErrNotInRoom)
	assert.False(t, o.Leave("s-a"))
}

func TestChatReachesEveryMemberOnce(t *testing.T) {
	o := newOrch()
	conns := []*recConn{join(t, o, "s-a", "r1", "A"), join(t, o, "s-b", "r1", "B"), join(t, o, "s-c", "r1", "C")}
	other := join(t, o, "s-x", "r2", "X")
	for _, c := range append(conns, other) {
		c.reset()
	}

	msg, err := o.Chat("s-b", "  hello all  ")
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.False(t, msg.Timestamp.IsZero())

	for _, c := range conns {
		got := c.ofType(t, protocol.TypeChatMessage)
		require.Len(t, got, 1)
		assert.Equal(t, "hello all", got[0]["body"])
		assert.Equal(t, "B", got[0]["from"])
		assert.Equal(t, "B-name", got[0]["displayName"])
		assert.Equal(t, msg.ID, got[0]["id"])
		assert.Equal(t, false, got[0]["private"])
	}
	assert.Empty(t, other.types(t))

	_, err = o.Chat("s-b", "   ")
	assert.ErrorIs(t, err, ErrEmptyBody)
	o.MaxChatLength = 5
	_, err = o.Chat("s-b", "too long")
	assert.ErrorIs(t, err, ErrBodyTooLong)
}

func TestChatRateLimit(t *testing.T) {
	o := newOrch()
	o.Limiter = app.NewRateLimiter(2, time.Minute)
	join(t, o, "s-a", "r1", "A")

	_, err := o.Chat("s-a", "1")
	require.NoError(t, err)
	_, err = o.Chat("s-a", "2")
	require.NoError(t, err)
	_, err = o.Chat("s-a", "3")
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestPrivateMessage(t *testing.T) {
	o := newOrch()
	ca := join(t, o, "s-a", "r1", "A")
	cb := join(t, o, "s-b", "r1", "B")
	cc := join(t, o, "s-c", "r1", "C")
	for _, c := range []*recConn{ca, cb, cc} {
		c.reset()
	}

	_, err := o.PrivateMessage("s-a", "ghost", "psst")
	assert.ErrorIs(t, err, core.ErrMemberNotFound)
	for _, c := range []*recConn{ca, cb, cc} {
		assert.Empty(t, c.types(t), "ghost message reaches nobody")
	}

	msg, err := o.PrivateMessage("s-a", "B", "psst")
	require.NoError(t, err)
	assert.True(t, msg.Private)
	got := cb.messages(t)
	require.Len(t, got, 1)
	assert.Equal(t, protocol.TypePrivateMessage, got[0]["type"])
	assert.Equal(t, true, got[0]["private"])
	assert.Equal(t, "A", got[0]["from"])
	assert.Equal(t, "B", got[0]["to"])
	assert.Empty(t, ca.types(t))
	assert.Empty(t, cc.types(t))
}

func TestTypingAndMediaStateGoToOthers(t *testing.T) {
	o := newOrch()
	ca := join(t, o, "s-a", "r1", "A")
	cb := join(t, o, "s-b", "r1", "B")
	ca.reset()
	cb.reset()

	require.NoError(t, o.Typing("s-a", false))
	require.NoError(t, o.Typing("s-a", true))
	require.NoError(t, o.MediaState("s-a", false, true))

	assert.Empty(t, ca.types(t))
	assert.Equal(t, []string{protocol.TypeTyping, protocol.TypeStopTyping, protocol.TypeMediaStateChange}, cb.types(t))
	media := cb.ofType(t, protocol.TypeMediaStateChange)[0]
	assert.Equal(t, "A", media["from"])
	assert.Equal(t, false, media["audioEnabled"])
	assert.Equal(t, true, media["videoEnabled"])

	members, _ := o.Members("r1")
	for _, m := range members {
		if m.ID == "A" {
			assert.False(t, m.AudioEnabled)
		}
	}
}

func TestBackpressureKicksSlowMember(t *testing.T) {
	o := newOrch()
	join(t, o, "s-a", "r1", "A")
	slow := &recConn{}
	var canceled atomic.Bool
	o.Connect("s-b", slow, func() { canceled.Store(true) })
	_, err := o.Join("s-b", "r1", "B", "")
	require.NoError(t, err)
	slow.mu.Lock()
	slow.full = true
	slow.mu.Unlock()

	_, err = o.Chat("s-a", "hi")
	require.NoError(t, err)
	assert.True(t, slow.isClosed())
	assert.True(t, canceled.Load())
}

type fakeTranscriber struct{ text string }

func (f fakeTranscriber) Transcribe(context.Context, []byte) (string, error) { return f.text, nil }

type fakeTranslator struct{}

func (fakeTranslator) Translate(_ context.Context, text, _, target string) (string, error) {
	if target == "es" && text == "hello" {
		return "hola", nil
	}
	return "", errors.New("unsupported")
}

type availability bool

func (a availability) Available() bool { return bool(a) }

func withPipeline(t *testing.T, o *Orchestrator, avail bool) {
	t.Helper()
	store, err := captions.NewStore(time.Minute, 100)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	o.Captions = store
	o.Pipeline = transcribe.NewPipeline(fakeTranscriber{text: "hello"}, fakeTranslator{}, availability(avail), o.OnTranscript,
		transcribe.Options{FlushInterval: 20 * time.Millisecond, SourceLanguage: "en"})
	t.Cleanup(o.Pipeline.Close)
}

func TestStartTranscriptionBackendUnavailable(t *testing.T) {
	o := newOrch()
	withPipeline(t, o, false)
	ca := join(t, o, "s-a", "r1", "A")
	ca.reset()

	err := o.StartTranscription("s-a", "es")
	assert.ErrorIs(t, err, transcribe.ErrBackendUnavailable)
	got := ca.messages(t)
	require.Len(t, got, 1)
	assert.Equal(t, protocol.TypeBackendDown, got[0]["type"])
	assert.Equal(t, true, got[0]["useClientSideFallback"])
	assert.Zero(t, o.Pipeline.ActiveCount())
}

func TestTranscriptBecomesCaptionForOthers(t *testing.T) {
	o := newOrch()
	withPipeline(t, o, true)
	ca := join(t, o, "s-a", "r1", "A")
	cb := join(t, o, "s-b", "r1", "B")
	ca.reset()

	require.NoError(t, o.StartTranscription("s-a", "es"))
	o.AudioChunk("s-a", []byte("audio"))

	require.Eventually(t, func() bool { return len(cb.ofType(t, protocol.TypeCaptionText)) == 1 }, time.Second, 5*time.Millisecond)
	c := cb.ofType(t, protocol.TypeCaptionText)[0]
	assert.Equal(t, "A", c["ownerId"])
	assert.Equal(t, "A-name", c["ownerDisplayName"])
	assert.Equal(t, "hello", c["original"])
	assert.Equal(t, "hola", c["translated"])
	assert.Equal(t, "es", c["targetLanguage"])
	assert.Equal(t, true, c["isFinal"])
	assert.Empty(t, ca.ofType(t, protocol.TypeCaptionText), "owner does not get its own caption")

	current, ok := o.RoomCaptions("r1")
	require.True(t, ok)
	require.Len(t, current, 1)
	assert.Equal(t, "hola", current[0].Translated)

	o.Leave("s-a")
	assert.Equal(t, transcribe.StateIdle, o.Pipeline.State("s-a"))
	current, _ = o.RoomCaptions("r1")
	assert.Empty(t, current)
}

func TestDisconnectStopsTranscriptionStartedDuringEviction(t *testing.T) {
	o := newOrch()
	withPipeline(t, o, true)
	join(t, o, "s-old", "r1", "A")
	join(t, o, "s-new", "r1", "A")

	// The old socket's start was already in flight when it lost its binding.
	require.NoError(t, o.Pipeline.Start(transcribe.Owner{SID: "s-old", RoomID: "r1", Participant: "A"}, ""))
	require.Equal(t, 1, o.Pipeline.ActiveCount())

	o.OnDisconnect("s-old")
	assert.Equal(t, transcribe.StateIdle, o.Pipeline.State("s-old"))
	assert.Zero(t, o.Pipeline.ActiveCount())

	members, _ := o.Members("r1")
	assert.Len(t, members, 1)
}

func TestClientCaptionFallback(t *testing.T) {
	o := newOrch()
	ca := join(t, o, "s-a", "r1", "A")
	cb := join(t, o, "s-b", "r1", "B")
	ca.reset()
	cb.reset()

	require.NoError(t, o.ClientCaption("s-a", protocol.CaptionText{Text: "partial", IsFinal: false}))
	got := cb.ofType(t, protocol.TypeCaptionText)
	require.Len(t, got, 1)
	assert.Equal(t, "partial", got[0]["original"])
	assert.Equal(t, false, got[0]["isFinal"])
	assert.Empty(t, ca.types(t))
}

type staticLangs []domain.Language

func (s staticLangs) Languages(context.Context) []domain.Language { return s }

func TestSendLanguages(t *testing.T) {
	o := newOrch()
	ca := connect(o, "s-a")
	require.NoError(t, o.SendLanguages(t.Context(), "s-a"))
	assert.Empty(t, ca.types(t), "no catalogue configured")

	o.Languages = staticLangs{{Code: "es", Name: "Spanish"}}
	require.NoError(t, o.SendLanguages(t.Context(), "s-a"))
	got := ca.messages(t)
	require.Len(t, got, 1)
	assert.Equal(t, protocol.TypeAvailableLangs, got[0]["type"])
	assert.Len(t, got[0]["languages"], 1)
}
