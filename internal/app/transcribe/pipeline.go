// Package transcribe turns buffered participant audio into captions.
// Each active participant owns one session with a fixed flush period.
package transcribe

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
)

var ErrBackendUnavailable = errors.New("transcription backend unavailable")

const DefaultFlushInterval = 2 * time.Second

type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

type Translator interface {
	Translate(ctx context.Context, text, source, target string) (string, error)
}

// Availability is the cached result of the backend probe.
type Availability interface {
	Available() bool
}

type Options struct {
	FlushInterval  time.Duration
	SourceLanguage string
	MaxBufferBytes int
}

type Pipeline struct {
	transcriber Transcriber
	translator  Translator
	avail       Availability
	sink        func(Result)
	opts        Options

	ctx    context.Context
	cancel context.CancelFunc
	wg     conc.WaitGroup

	mu       sync.RWMutex
	sessions map[core.SessionID]*session
	closed   bool
}

// NewPipeline wires the collaborators. translator and avail may be nil;
// sink receives every caption and must not block.
func NewPipeline(tr Transcriber, tl Translator, avail Availability, sink func(Result), opts Options) *Pipeline {
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = DefaultFlushInterval
	}
	if opts.SourceLanguage == "" {
		opts.SourceLanguage = "en"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		transcriber: tr,
		translator:  tl,
		avail:       avail,
		sink:        sink,
		opts:        opts,
		ctx:         ctx,
		cancel:      cancel,
		sessions:    make(map[core.SessionID]*session),
	}
}

// Start activates transcription for owner. An already active session only
// gets its target language replaced.
func (p *Pipeline) Start(owner Owner, targetLanguage string) error {
	if p.avail != nil && !p.avail.Available() {
		return ErrBackendUnavailable
	}
	logger := log.With().
		Str("module", "transcribe").
		Str("sid", string(owner.SID)).
		Str("room", string(owner.RoomID)).
		Str("participant", string(owner.Participant)).
		Logger()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrBackendUnavailable
	}
	if s, ok := p.sessions[owner.SID]; ok {
		s.setTarget(targetLanguage)
		logger.Info().Str("target", targetLanguage).Msg("transcription already active, language updated")
		return nil
	}
	s := newSession(p.ctx, owner, targetLanguage, logger)
	p.sessions[owner.SID] = s
	p.wg.Go(func() { p.loop(s) })
	logger.Info().Str("target", targetLanguage).Dur("interval", p.opts.FlushInterval).Msg("transcription started")
	return nil
}

// AddAudioChunk buffers audio for the next flush. No session: no-op.
func (p *Pipeline) AddAudioChunk(sid core.SessionID, chunk []byte) bool {
	s, ok := p.session(sid)
	if !ok || len(chunk) == 0 {
		return false
	}
	return s.add(chunk, p.opts.MaxBufferBytes)
}

func (p *Pipeline) SetTargetLanguage(sid core.SessionID, lang string) bool {
	s, ok := p.session(sid)
	if !ok {
		return false
	}
	s.setTarget(lang)
	s.logger.Debug().Str("target", lang).Msg("target language updated")
	return true
}

// Stop ends the session of sid; repeated calls are no-ops. Once Stop
// returns, no result for that session reaches the sink.
func (p *Pipeline) Stop(sid core.SessionID) bool {
	p.mu.Lock()
	s, ok := p.sessions[sid]
	if ok {
		delete(p.sessions, sid)
	}
	p.mu.Unlock()
	if !ok {
		return false
	}
	s.stop()
	s.logger.Info().Msg("transcription stopped")
	return true
}

func (p *Pipeline) State(sid core.SessionID) State {
	if _, ok := p.session(sid); ok {
		return StateActive
	}
	return StateIdle
}

func (p *Pipeline) ActiveCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.sessions)
}

// Close stops every session and waits for their loops.
func (p *Pipeline) Close() {
	p.mu.Lock()
	p.closed = true
	all := p.sessions
	p.sessions = make(map[core.SessionID]*session)
	p.mu.Unlock()

	for _, s := range all {
		s.stop()
	}
	p.cancel()
	p.wg.Wait()
	log.Info().Str("module", "transcribe").Int("stopped", len(all)).Msg("pipeline closed")
}

func (p *Pipeline) session(sid core.SessionID) (*session, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.sessions[sid]
	return s, ok
}

func (p *Pipeline) loop(s *session) {
	ticker := time.NewTicker(p.opts.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			s.logger.Debug().Msg("flush loop done")
			return
		case <-ticker.C:
			p.flush(s)
		}
	}
}

func (p *Pipeline) flush(s *session) {
	audio, target := s.drain()
	if len(audio) == 0 {
		return
	}
	var pc panics.Catcher
	pc.Try(func() { p.cycle(s, audio, target) })
	if r := pc.Recovered(); r != nil {
		s.logger.Error().Err(r.AsError()).Msg("flush cycle panicked")
	}
}

func (p *Pipeline) cycle(s *session, audio []byte, target string) {
	text, err := p.transcriber.Transcribe(s.ctx, audio)
	if err != nil {
		if s.canceled(err) {
			s.logger.Debug().Msg("transcription canceled")
			return
		}
		s.logger.Error().Err(err).Int("bytes", len(audio)).Msg("transcription failed")
		return
	}
	if text == "" {
		return
	}

	res := Result{Owner: s.owner, Original: text}
	if target != "" && target != p.opts.SourceLanguage && p.translator != nil {
		res.TargetLanguage = target
		translated, err := p.translator.Translate(s.ctx, text, p.opts.SourceLanguage, target)
		switch {
		case err == nil:
			res.Translated = translated
		case s.canceled(err):
			return
		default:
			s.logger.Warn().Err(err).Str("target", target).Msg("translation failed, sending original")
		}
	}

	if !s.emit(func() { p.sink(res) }) {
		s.logger.Debug().Msg("session stopped before emit, result discarded")
	}
}
