package signal

import (
	"context"
	"time"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

type handlerFunc func(data []byte) error

func (ctl *SignalWSController) writePump(ctx context.Context, sid core.SessionID, c *WsSignalConn) {
	var ping <-chan time.Time
	if ctl.pingPeriod > 0 {
		ticker := time.NewTicker(ctl.pingPeriod)
		defer ticker.Stop()
		ping = ticker.C
	}
	defer func() {
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Str("sid", string(sid)).Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("writePump write error")
				return
			}
		case <-ping:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("writePump ping error")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, sid core.SessionID, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		ctl.Orch.OnDisconnect(sid)
		c.Close()
		cancel()
	}()

	if ctl.readLimit > 0 {
		c.conn.SetReadLimit(ctl.readLimit)
	}
	if ctl.pingPeriod > 0 {
		pongWait := ctl.pingPeriod * 10 / 9
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.conn.SetPongHandler(func(string) error {
			return c.conn.SetReadDeadline(time.Now().Add(pongWait))
		})
	}

	table := ctl.handlers(ctx, sid)
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
			}
			return
		}
		if kind == websocket.BinaryMessage {
			ctl.Orch.AudioChunk(sid, data)
			continue
		}
		dispatch(table, sid, data)
	}
}

// handlers is built once per connection.
func (ctl *SignalWSController) handlers(ctx context.Context, sid core.SessionID) map[string]handlerFunc {
	relay := func(kind string) handlerFunc {
		return func(data []byte) error { return ctl.handleRelay(sid, kind, data) }
	}
	return map[string]handlerFunc{
		protocol.TypeJoinRoom:         func(d []byte) error { return ctl.handleJoin(ctx, sid, d) },
		protocol.TypeLeaveRoom:        func([]byte) error { return ctl.handleLeave(sid) },
		protocol.TypeOffer:            relay(protocol.TypeOffer),
		protocol.TypeAnswer:           relay(protocol.TypeAnswer),
		protocol.TypeICECandidate:     relay(protocol.TypeICECandidate),
		protocol.TypeChatMessage:      func(d []byte) error { return ctl.handleChat(sid, d) },
		protocol.TypePrivateMessage:   func(d []byte) error { return ctl.handlePrivate(sid, d) },
		protocol.TypeTyping:           func([]byte) error { return ctl.Orch.Typing(sid, false) },
		protocol.TypeStopTyping:       func([]byte) error { return ctl.Orch.Typing(sid, true) },
		protocol.TypeMediaStateChange: func(d []byte) error { return ctl.handleMediaState(sid, d) },
		protocol.TypeStartTranscribe:  func(d []byte) error { return ctl.handleStartTranscription(sid, d) },
		protocol.TypeStopTranscribe:   func(d []byte) error { return ctl.handleStopTranscription(sid, d) },
		protocol.TypeAudioChunk:       func(d []byte) error { return ctl.handleAudioChunk(sid, d) },
		protocol.TypeSetTranslation:   func(d []byte) error { return ctl.handleSetTranslation(sid, d) },
		protocol.TypeCaptionText:      func(d []byte) error { return ctl.handleCaption(sid, d) },
		protocol.TypeGetLanguages:     func([]byte) error { return ctl.Orch.SendLanguages(ctx, sid) },
		protocol.TypePing:             func([]byte) error { return ctl.handlePing(sid) },
	}
}

func dispatch(table map[string]handlerFunc, sid core.SessionID, data []byte) {
	typ, err := protocol.PeekType(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("bad message")
		return
	}
	h, ok := table[typ]
	if !ok {
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Str("type", typ).Msg("unknown signal")
		return
	}
	if err := h(data); err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("sid", string(sid)).Str("type", typ).Msg("message ignored")
	}
}
