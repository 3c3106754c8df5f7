package serializer

import (
	"encoding/base64"
	"encoding/json"

	"github.com/birddigital/voxbridge/codec"
	"github.com/birddigital/voxbridge/events"
)

// GenericSerializer is the configurable fallback provider for wire
// protocols not otherwise enumerated. Codec and sample rate are
// configured at construction; defaults are pcm16/16000 per spec.
type GenericSerializer struct {
	callID     string
	nativeCodec codec.Codec
	sampleRate int
}

func NewGenericSerializer(c codec.Codec, sampleRate int) *GenericSerializer {
	return &GenericSerializer{nativeCodec: c, sampleRate: sampleRate}
}

func (s *GenericSerializer) Name() string             { return "generic" }
func (s *GenericSerializer) NativeCodec() codec.Codec  { return s.nativeCodec }
func (s *GenericSerializer) NativeSampleRate() int     { return s.sampleRate }

type genericMessage struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
	Digit string `json:"digit"`
}

func (s *GenericSerializer) Deserialize(wire Wire) ([]events.Event, error) {
	if !wire.IsText {
		return []events.Event{events.AudioFrame{
			Base:       events.NewBase(s.callID, 0),
			Codec:      string(s.nativeCodec),
			SampleRate: s.sampleRate,
			Channels:   1,
			Data:       wire.Binary,
		}}, nil
	}

	var msg genericMessage
	if err := json.Unmarshal([]byte(wire.Text), &msg); err != nil {
		return []events.Event{events.ErrorEvent{Code: "protocol_parse", Message: err.Error(), Recoverable: true}}, nil
	}

	switch msg.Type {
	case "start":
		return []events.Event{events.CallStarted{
			Base:      events.NewBase(s.callID, 0),
			Provider:  s.Name(),
			Direction: events.DirectionInbound,
		}}, nil
	case "audio":
		data, err := base64.StdEncoding.DecodeString(msg.Audio)
		if err != nil {
			return []events.Event{events.ErrorEvent{Code: "protocol_parse", Message: err.Error(), Recoverable: true}}, nil
		}
		return []events.Event{events.AudioFrame{
			Base:       events.NewBase(s.callID, 0),
			Codec:      string(s.nativeCodec),
			SampleRate: s.sampleRate,
			Channels:   1,
			Data:       data,
		}}, nil
	case "dtmf":
		return []events.Event{events.NewDTMFReceived(s.callID, msg.Digit)}, nil
	case "stop":
		return []events.Event{events.CallEnded{Base: events.NewBase(s.callID, 0), Reason: "normal"}}, nil
	default:
		return []events.Event{events.CustomEvent{
			Base:       events.NewBase(s.callID, 0),
			CustomType: "generic." + msg.Type,
		}}, nil
	}
}

func (s *GenericSerializer) Serialize(ev events.Event) (Wire, bool) {
	switch e := ev.(type) {
	case events.AudioFrame:
		return BinaryWire(e.Data), true
	case events.CallStarted:
		b, _ := json.Marshal(map[string]any{"type": "start", "call_id": e.CallID})
		return TextWire(string(b)), true
	case events.CallEnded:
		b, _ := json.Marshal(map[string]any{"type": "stop", "call_id": e.CallID, "reason": e.Reason})
		return TextWire(string(b)), true
	case events.DTMFReceived:
		b, _ := json.Marshal(map[string]any{"type": "dtmf", "call_id": e.CallID, "digit": e.Digit})
		return TextWire(string(b)), true
	default:
		return Wire{}, false
	}
}

func (s *GenericSerializer) HandshakeResponse(first Wire) (Wire, bool) {
	return Wire{}, false
}
