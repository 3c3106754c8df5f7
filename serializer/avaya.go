package serializer

import (
	"encoding/json"
	"strings"

	"github.com/birddigital/voxbridge/codec"
	"github.com/birddigital/voxbridge/events"
)

// AvayaSerializer translates Avaya OCSAPI messages.
type AvayaSerializer struct {
	sessionID string
	callID    string
}

func NewAvayaSerializer() *AvayaSerializer { return &AvayaSerializer{} }

func (s *AvayaSerializer) Name() string             { return "avaya" }
func (s *AvayaSerializer) NativeCodec() codec.Codec { return codec.Mulaw }
func (s *AvayaSerializer) NativeSampleRate() int    { return 8000 }

type avayaMessage struct {
	Type       string         `json:"type"`
	CallID     string         `json:"callId"`
	SessionID  string         `json:"sessionId"`
	Digit      string         `json:"digit"`
	Target     string         `json:"target"`
	Parameters map[string]any `json:"parameters"`
}

func (s *AvayaSerializer) Deserialize(wire Wire) ([]events.Event, error) {
	if !wire.IsText {
		return []events.Event{events.AudioFrame{
			Base:       events.NewBase(s.callID, 0),
			Codec:      string(codec.Mulaw),
			SampleRate: 8000,
			Channels:   1,
			Data:       wire.Binary,
		}}, nil
	}

	var msg avayaMessage
	if err := json.Unmarshal([]byte(wire.Text), &msg); err != nil {
		return []events.Event{events.ErrorEvent{Code: "protocol_parse", Message: err.Error(), Recoverable: true}}, nil
	}

	switch msg.Type {
	case "session.start":
		s.callID = msg.CallID
		s.sessionID = msg.SessionID
		sipHeaders := map[string]string{}
		for k, v := range msg.Parameters {
			lk := strings.ToLower(k)
			if strings.HasPrefix(lk, "sip_") || strings.HasPrefix(lk, "x-") {
				if sv, ok := v.(string); ok {
					sipHeaders[k] = sv
				}
			}
		}
		return []events.Event{events.CallStarted{
			Base:       events.NewBase(s.callID, 0),
			Provider:   s.Name(),
			Direction:  events.DirectionInbound,
			SIPHeaders: sipHeaders,
		}}, nil
	case "session.end":
		return []events.Event{events.CallEnded{Base: events.NewBase(s.callID, 0), Reason: "session_end"}}, nil
	case "dtmf":
		return []events.Event{events.NewDTMFReceived(s.callID, msg.Digit)}, nil
	case "hold":
		return []events.Event{events.HoldStarted{Base: events.NewBase(s.callID, 0)}}, nil
	case "unhold":
		return []events.Event{events.HoldEnded{Base: events.NewBase(s.callID, 0)}}, nil
	case "transfer.request":
		return []events.Event{events.NewTransferRequested(s.callID, msg.Target)}, nil
	default:
		return []events.Event{events.CustomEvent{
			Base:       events.NewBase(s.callID, 0),
			CustomType: "avaya." + msg.Type,
		}}, nil
	}
}

func (s *AvayaSerializer) Serialize(ev events.Event) (Wire, bool) {
	switch e := ev.(type) {
	case events.AudioFrame:
		return BinaryWire(e.Data), true
	case events.ClearAudio:
		b, _ := json.Marshal(map[string]any{"type": "audio.clear", "sessionId": s.sessionID})
		return TextWire(string(b)), true
	case events.Mark:
		b, _ := json.Marshal(map[string]any{"type": "audio.mark", "sessionId": s.sessionID, "name": e.Name})
		return TextWire(string(b)), true
	case events.TransferRequested:
		b, _ := json.Marshal(map[string]any{
			"type": "transfer.initiate", "sessionId": s.sessionID,
			"target": e.Target, "transferType": string(e.TransferType),
		})
		return TextWire(string(b)), true
	default:
		return Wire{}, false
	}
}

func (s *AvayaSerializer) HandshakeResponse(first Wire) (Wire, bool) {
	if !first.IsText {
		return Wire{}, false
	}
	var msg avayaMessage
	if err := json.Unmarshal([]byte(first.Text), &msg); err != nil {
		return Wire{}, false
	}
	if msg.Type != "session.start" {
		return Wire{}, false
	}
	b, _ := json.Marshal(map[string]any{
		"type":      "session.accepted",
		"sessionId": msg.SessionID,
		"parameters": map[string]any{
			"media": map[string]any{"format": "PCMU", "rate": 8000, "channels": 1},
		},
	})
	return TextWire(string(b)), true
}
