package signal

import (
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/protocol"
)

// handleRelay forwards offer/answer/ice-candidate. The client's "from" is
// ignored; the orchestrator stamps the bound participant id.
func (ctl *SignalWSController) handleRelay(sid core.SessionID, kind string, data []byte) error {
	var p protocol.Signal
	if err := protocol.Decode(data, &p); err != nil {
		return err
	}
	return ctl.Orch.Relay(sid, kind, domain.ParticipantID(p.To), p.Payload)
}

func (ctl *SignalWSController) sendICEServers(sid core.SessionID) {
	if len(ctl.ICEServers) == 0 {
		return
	}
	_ = ctl.Orch.Send(sid, protocol.Encode(protocol.ICEServers{Type: protocol.TypeICEServers, ICEServers: ctl.ICEServers}))
}
