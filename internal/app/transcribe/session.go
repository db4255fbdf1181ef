package transcribe

import (
	"bytes"
	"context"
	"errors"
	"sync"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog"
)

// Owner identifies whose audio a session transcribes.
type Owner struct {
	SID         core.SessionID
	RoomID      domain.RoomID
	Participant domain.ParticipantID
	DisplayName string
}

// Result is one non-empty flush outcome.
type Result struct {
	Owner          Owner
	Original       string
	Translated     string
	TargetLanguage string
}

type session struct {
	owner  Owner
	logger zerolog.Logger

	// mu guards the buffer, target and stopped, and is held while a result
	// is handed to the sink so Stop cannot interleave with an emission.
	mu      sync.Mutex
	chunks  [][]byte
	size    int
	target  string
	stopped bool

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
}

func newSession(parent context.Context, owner Owner, target string, logger zerolog.Logger) *session {
	ctx, cancel := context.WithCancel(parent)
	return &session{owner: owner, target: target, logger: logger, ctx: ctx, cancel: cancel}
}

func (s *session) add(chunk []byte, limit int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	if limit > 0 && s.size+len(chunk) > limit {
		s.logger.Warn().Int("buffered", s.size).Int("chunk", len(chunk)).Msg("audio buffer full, chunk dropped")
		return false
	}
	s.chunks = append(s.chunks, chunk)
	s.size += len(chunk)
	return true
}

func (s *session) setTarget(lang string) {
	s.mu.Lock()
	s.target = lang
	s.mu.Unlock()
}

// drain empties the buffer and returns the concatenated audio plus the
// target language at that moment.
func (s *session) drain() ([]byte, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.size == 0 {
		return nil, s.target
	}
	audio := bytes.Join(s.chunks, nil)
	s.chunks, s.size = nil, 0
	return audio, s.target
}

// emit runs fn only if the session is still live.
func (s *session) emit(fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	fn()
	return true
}

func (s *session) stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.chunks, s.size = nil, 0
		s.mu.Unlock()
		s.cancel()
	})
}

func (s *session) canceled(err error) bool {
	return s.ctx.Err() != nil || errors.Is(err, context.Canceled)
}
