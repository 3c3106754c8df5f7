package serializer

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/birddigital/voxbridge/codec"
	"github.com/birddigital/voxbridge/events"
)

// TwilioSerializer translates Twilio Media Streams JSON messages.
type TwilioSerializer struct {
	streamSID string
	callSID   string
}

func NewTwilioSerializer() *TwilioSerializer { return &TwilioSerializer{} }

func (s *TwilioSerializer) Name() string             { return "twilio" }
func (s *TwilioSerializer) NativeCodec() codec.Codec  { return codec.Mulaw }
func (s *TwilioSerializer) NativeSampleRate() int     { return 8000 }

type twilioMessage struct {
	Event string `json:"event"`
	Start *struct {
		StreamSID        string            `json:"streamSid"`
		CallSID          string            `json:"callSid"`
		AccountSID       string            `json:"accountSid"`
		CustomParameters  map[string]any    `json:"customParameters"`
		MediaFormat       map[string]any    `json:"mediaFormat"`
	} `json:"start"`
	Media *struct {
		Payload string `json:"payload"`
	} `json:"media"`
	StreamSID string `json:"streamSid"`
	Dtmf      *struct {
		Digit string `json:"digit"`
	} `json:"dtmf"`
}

func (s *TwilioSerializer) Deserialize(wire Wire) ([]events.Event, error) {
	if !wire.IsText {
		return nil, fmt.Errorf("twilio: expected text message")
	}
	var msg twilioMessage
	if err := json.Unmarshal([]byte(wire.Text), &msg); err != nil {
		return []events.Event{events.ErrorEvent{Code: "protocol_parse", Message: err.Error(), Recoverable: true}}, nil
	}

	switch msg.Event {
	case "connected":
		return nil, nil
	case "start":
		if msg.Start == nil {
			return nil, nil
		}
		s.streamSID = msg.Start.StreamSID
		s.callSID = msg.Start.CallSID
		metadata := map[string]any{
			"accountSid":       msg.Start.AccountSID,
			"customParameters": msg.Start.CustomParameters,
			"mediaFormat":      msg.Start.MediaFormat,
		}
		return []events.Event{events.CallStarted{
			Base:      events.NewBase(s.callSID, 0),
			Provider:  s.Name(),
			Direction: events.DirectionInbound,
			Metadata:  metadata,
		}}, nil
	case "media":
		if msg.Media == nil {
			return nil, nil
		}
		data, err := base64.StdEncoding.DecodeString(msg.Media.Payload)
		if err != nil {
			return []events.Event{events.ErrorEvent{Code: "protocol_parse", Message: err.Error(), Recoverable: true}}, nil
		}
		return []events.Event{events.AudioFrame{
			Base:       events.NewBase(s.callSID, 0),
			Codec:      string(codec.Mulaw),
			SampleRate: 8000,
			Channels:   1,
			Data:       data,
		}}, nil
	case "dtmf":
		if msg.Dtmf == nil {
			return nil, nil
		}
		return []events.Event{events.NewDTMFReceived(s.callSID, msg.Dtmf.Digit)}, nil
	case "stop":
		return []events.Event{events.CallEnded{Base: events.NewBase(s.callSID, 0), Reason: "normal"}}, nil
	default:
		return []events.Event{events.CustomEvent{
			Base:       events.NewBase(s.callSID, 0),
			CustomType: "twilio." + msg.Event,
		}}, nil
	}
}

func (s *TwilioSerializer) Serialize(ev events.Event) (Wire, bool) {
	switch e := ev.(type) {
	case events.AudioFrame:
		payload := base64.StdEncoding.EncodeToString(e.Data)
		body := map[string]any{
			"event":     "media",
			"streamSid": s.streamSID,
			"media":     map[string]any{"payload": payload},
		}
		b, _ := json.Marshal(body)
		return TextWire(string(b)), true
	case events.ClearAudio:
		body := map[string]any{"event": "clear", "streamSid": s.streamSID}
		b, _ := json.Marshal(body)
		return TextWire(string(b)), true
	default:
		return Wire{}, false
	}
}

func (s *TwilioSerializer) HandshakeResponse(first Wire) (Wire, bool) {
	return Wire{}, false
}
