package serializer

import (
	"encoding/json"

	"github.com/birddigital/voxbridge/codec"
	"github.com/birddigital/voxbridge/events"
)

// AmazonConnectSerializer translates Amazon Connect media streaming
// messages. Unlike most providers, Connect's native codec is already
// PCM16.
type AmazonConnectSerializer struct {
	contactID string
}

func NewAmazonConnectSerializer() *AmazonConnectSerializer { return &AmazonConnectSerializer{} }

func (s *AmazonConnectSerializer) Name() string             { return "amazon_connect" }
func (s *AmazonConnectSerializer) NativeCodec() codec.Codec { return codec.PCM16 }
func (s *AmazonConnectSerializer) NativeSampleRate() int    { return 8000 }

type connectMessage struct {
	Event     string `json:"event"`
	ContactID string `json:"contactId"`
	Digit     string `json:"digit"`
	Reason    string `json:"reason"`
}

func (s *AmazonConnectSerializer) Deserialize(wire Wire) ([]events.Event, error) {
	if !wire.IsText {
		return []events.Event{events.AudioFrame{
			Base:       events.NewBase(s.contactID, 0),
			Codec:      string(codec.PCM16),
			SampleRate: 8000,
			Channels:   1,
			Data:       wire.Binary,
		}}, nil
	}

	var msg connectMessage
	if err := json.Unmarshal([]byte(wire.Text), &msg); err != nil {
		return []events.Event{events.ErrorEvent{Code: "protocol_parse", Message: err.Error(), Recoverable: true}}, nil
	}
	if msg.ContactID != "" {
		s.contactID = msg.ContactID
	}

	switch msg.Event {
	case "STARTED":
		return []events.Event{events.CallStarted{
			Base:      events.NewBase(s.contactID, 0),
			Provider:  s.Name(),
			Direction: events.DirectionInbound,
		}}, nil
	case "ENDED":
		return []events.Event{events.CallEnded{Base: events.NewBase(s.contactID, 0), Reason: msg.Reason}}, nil
	case "DTMF":
		return []events.Event{events.NewDTMFReceived(s.contactID, msg.Digit)}, nil
	case "HOLD":
		return []events.Event{events.HoldStarted{Base: events.NewBase(s.contactID, 0)}}, nil
	case "RESUME":
		return []events.Event{events.HoldEnded{Base: events.NewBase(s.contactID, 0)}}, nil
	default:
		return []events.Event{events.CustomEvent{
			Base:       events.NewBase(s.contactID, 0),
			CustomType: "amazon_connect." + msg.Event,
		}}, nil
	}
}

func (s *AmazonConnectSerializer) Serialize(ev events.Event) (Wire, bool) {
	switch e := ev.(type) {
	case events.AudioFrame:
		return BinaryWire(e.Data), true
	case events.CallEnded:
		b, _ := json.Marshal(map[string]any{"event": "END", "contactId": s.contactID, "reason": e.Reason})
		return TextWire(string(b)), true
	default:
		return Wire{}, false
	}
}

func (s *AmazonConnectSerializer) HandshakeResponse(first Wire) (Wire, bool) {
	if !first.IsText {
		return Wire{}, false
	}
	var msg connectMessage
	if err := json.Unmarshal([]byte(first.Text), &msg); err != nil {
		return Wire{}, false
	}
	if msg.Event != "STARTED" {
		return Wire{}, false
	}
	b, _ := json.Marshal(map[string]any{
		"event":     "ACCEPTED",
		"contactId": msg.ContactID,
		"parameters": map[string]any{
			"mediaFormat": "lpcm",
			"sampleRate":  8000,
		},
	})
	return TextWire(string(b)), true
}
