package serializer

import (
	"encoding/json"
	"strings"

	"github.com/birddigital/voxbridge/codec"
	"github.com/birddigital/voxbridge/events"
)

// FreeSWITCHSerializer translates FreeSWITCH mod_ws messages.
type FreeSWITCHSerializer struct {
	uuid string
}

func NewFreeSWITCHSerializer() *FreeSWITCHSerializer { return &FreeSWITCHSerializer{} }

func (s *FreeSWITCHSerializer) Name() string            { return "freeswitch" }
func (s *FreeSWITCHSerializer) NativeCodec() codec.Codec { return codec.Mulaw }
func (s *FreeSWITCHSerializer) NativeSampleRate() int    { return 8000 }

type freeswitchMessage struct {
	Event    string            `json:"event"`
	UUID     string            `json:"uuid"`
	Digit    string            `json:"digit"`
	Cause    string            `json:"cause"`
	Variables map[string]string `json:"variables"`
}

func (s *FreeSWITCHSerializer) Deserialize(wire Wire) ([]events.Event, error) {
	if !wire.IsText {
		return []events.Event{events.AudioFrame{
			Base:       events.NewBase(s.uuid, 0),
			Codec:      string(codec.Mulaw),
			SampleRate: 8000,
			Channels:   1,
			Data:       wire.Binary,
		}}, nil
	}

	var msg freeswitchMessage
	if err := json.Unmarshal([]byte(wire.Text), &msg); err != nil {
		return []events.Event{events.ErrorEvent{Code: "protocol_parse", Message: err.Error(), Recoverable: true}}, nil
	}
	if msg.UUID != "" {
		s.uuid = msg.UUID
	}

	switch msg.Event {
	case "connect":
		sipHeaders := map[string]string{}
		for k, v := range msg.Variables {
			if strings.HasPrefix(k, "variable_sip_h_") || strings.HasPrefix(k, "sip_") {
				sipHeaders[k] = v
			}
		}
		return []events.Event{events.CallStarted{
			Base:       events.NewBase(s.uuid, 0),
			Provider:   s.Name(),
			Direction:  events.DirectionInbound,
			SIPHeaders: sipHeaders,
		}}, nil
	case "dtmf":
		return []events.Event{events.NewDTMFReceived(s.uuid, msg.Digit)}, nil
	case "disconnect":
		return []events.Event{events.CallEnded{Base: events.NewBase(s.uuid, 0), Reason: msg.Cause}}, nil
	default:
		return []events.Event{events.CustomEvent{
			Base:       events.NewBase(s.uuid, 0),
			CustomType: "freeswitch." + msg.Event,
		}}, nil
	}
}

func (s *FreeSWITCHSerializer) Serialize(ev events.Event) (Wire, bool) {
	switch e := ev.(type) {
	case events.AudioFrame:
		return BinaryWire(e.Data), true
	case events.CallEnded:
		b, _ := json.Marshal(map[string]any{"command": "hangup", "uuid": s.uuid, "cause": e.Reason})
		return TextWire(string(b)), true
	case events.ClearAudio:
		b, _ := json.Marshal(map[string]any{"command": "break", "uuid": s.uuid})
		return TextWire(string(b)), true
	case events.Mark:
		b, _ := json.Marshal(map[string]any{"command": "mark", "uuid": s.uuid, "name": e.Name})
		return TextWire(string(b)), true
	case events.TransferRequested:
		b, _ := json.Marshal(map[string]any{"command": "transfer", "uuid": s.uuid, "destination": e.Target})
		return TextWire(string(b)), true
	default:
		return Wire{}, false
	}
}

func (s *FreeSWITCHSerializer) HandshakeResponse(first Wire) (Wire, bool) {
	return Wire{}, false
}
