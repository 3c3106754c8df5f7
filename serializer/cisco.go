package serializer

import (
	"encoding/json"

	"github.com/birddigital/voxbridge/codec"
	"github.com/birddigital/voxbridge/events"
)

// CiscoSerializer translates Cisco WebEx Contact Center messages.
type CiscoSerializer struct {
	interactionID string
}

func NewCiscoSerializer() *CiscoSerializer { return &CiscoSerializer{} }

func (s *CiscoSerializer) Name() string             { return "cisco" }
func (s *CiscoSerializer) NativeCodec() codec.Codec { return codec.Mulaw }
func (s *CiscoSerializer) NativeSampleRate() int    { return 8000 }

type ciscoMessage struct {
	Event         string `json:"event"`
	InteractionID string `json:"interactionId"`
	Digit         string `json:"digit"`
	Reason        string `json:"reason"`
}

func (s *CiscoSerializer) Deserialize(wire Wire) ([]events.Event, error) {
	if !wire.IsText {
		return []events.Event{events.AudioFrame{
			Base:       events.NewBase(s.interactionID, 0),
			Codec:      string(codec.Mulaw),
			SampleRate: 8000,
			Channels:   1,
			Data:       wire.Binary,
		}}, nil
	}

	var msg ciscoMessage
	if err := json.Unmarshal([]byte(wire.Text), &msg); err != nil {
		return []events.Event{events.ErrorEvent{Code: "protocol_parse", Message: err.Error(), Recoverable: true}}, nil
	}
	if msg.InteractionID != "" {
		s.interactionID = msg.InteractionID
	}

	switch msg.Event {
	case "call.new":
		return []events.Event{events.CallStarted{
			Base:      events.NewBase(s.interactionID, 0),
			Provider:  s.Name(),
			Direction: events.DirectionInbound,
		}}, nil
	case "call.ended":
		return []events.Event{events.CallEnded{Base: events.NewBase(s.interactionID, 0), Reason: msg.Reason}}, nil
	case "dtmf":
		return []events.Event{events.NewDTMFReceived(s.interactionID, msg.Digit)}, nil
	case "call.held":
		return []events.Event{events.HoldStarted{Base: events.NewBase(s.interactionID, 0)}}, nil
	case "call.retrieved":
		return []events.Event{events.HoldEnded{Base: events.NewBase(s.interactionID, 0)}}, nil
	default:
		return []events.Event{events.CustomEvent{
			Base:       events.NewBase(s.interactionID, 0),
			CustomType: "cisco." + msg.Event,
		}}, nil
	}
}

func (s *CiscoSerializer) Serialize(ev events.Event) (Wire, bool) {
	switch e := ev.(type) {
	case events.AudioFrame:
		return BinaryWire(e.Data), true
	case events.CallEnded:
		b, _ := json.Marshal(map[string]any{"event": "call.end", "interactionId": s.interactionID, "reason": e.Reason})
		return TextWire(string(b)), true
	case events.ClearAudio:
		b, _ := json.Marshal(map[string]any{"event": "audio.clear", "interactionId": s.interactionID})
		return TextWire(string(b)), true
	case events.Mark:
		b, _ := json.Marshal(map[string]any{"event": "audio.mark", "interactionId": s.interactionID, "name": e.Name})
		return TextWire(string(b)), true
	default:
		return Wire{}, false
	}
}

func (s *CiscoSerializer) HandshakeResponse(first Wire) (Wire, bool) {
	if !first.IsText {
		return Wire{}, false
	}
	var msg ciscoMessage
	if err := json.Unmarshal([]byte(first.Text), &msg); err != nil {
		return Wire{}, false
	}
	if msg.Event != "call.new" {
		return Wire{}, false
	}
	b, _ := json.Marshal(map[string]any{
		"event":         "call.accepted",
		"interactionId": msg.InteractionID,
		"parameters":    map[string]any{"mediaFormat": "PCMU", "sampleRate": 8000},
	})
	return TextWire(string(b)), true
}
