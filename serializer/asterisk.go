package serializer

import (
	"encoding/json"
	"strings"

	"github.com/birddigital/voxbridge/codec"
	"github.com/birddigital/voxbridge/events"
)

// AsteriskSerializer translates Asterisk ARI external-media events.
type AsteriskSerializer struct {
	channelID string
}

func NewAsteriskSerializer() *AsteriskSerializer { return &AsteriskSerializer{} }

func (s *AsteriskSerializer) Name() string             { return "asterisk" }
func (s *AsteriskSerializer) NativeCodec() codec.Codec  { return codec.Mulaw }
func (s *AsteriskSerializer) NativeSampleRate() int     { return 8000 }

type asteriskMessage struct {
	Type        string            `json:"type"`
	ChannelID   string            `json:"channel_id"`
	Digit       string            `json:"digit"`
	DurationMs  int               `json:"duration_ms"`
	ChannelVars map[string]string `json:"channelvars"`
}

func (s *AsteriskSerializer) Deserialize(wire Wire) ([]events.Event, error) {
	if !wire.IsText {
		return []events.Event{events.AudioFrame{
			Base:       events.NewBase(s.channelID, 0),
			Codec:      string(codec.Mulaw),
			SampleRate: 8000,
			Channels:   1,
			Data:       wire.Binary,
		}}, nil
	}

	var msg asteriskMessage
	if err := json.Unmarshal([]byte(wire.Text), &msg); err != nil {
		return []events.Event{events.ErrorEvent{Code: "protocol_parse", Message: err.Error(), Recoverable: true}}, nil
	}
	if msg.ChannelID != "" {
		s.channelID = msg.ChannelID
	}

	switch msg.Type {
	case "StasisStart":
		sipHeaders := map[string]string{}
		for k, v := range msg.ChannelVars {
			if strings.HasPrefix(k, "PJSIP_HEADER") || strings.HasPrefix(k, "SIP_HEADER") {
				sipHeaders[k] = v
			}
		}
		return []events.Event{events.CallStarted{
			Base:       events.NewBase(s.channelID, 0),
			Provider:   s.Name(),
			Direction:  events.DirectionInbound,
			SIPHeaders: sipHeaders,
		}}, nil
	case "ChannelDtmfReceived":
		return []events.Event{events.DTMFReceived{
			Base:       events.NewBase(s.channelID, 0),
			Digit:      msg.Digit,
			DurationMs: msg.DurationMs,
		}}, nil
	case "StasisEnd":
		return []events.Event{events.CallEnded{Base: events.NewBase(s.channelID, 0), Reason: "stasis_end"}}, nil
	case "ChannelHold":
		return []events.Event{events.HoldStarted{Base: events.NewBase(s.channelID, 0)}}, nil
	case "ChannelUnhold":
		return []events.Event{events.HoldEnded{Base: events.NewBase(s.channelID, 0)}}, nil
	default:
		return []events.Event{events.CustomEvent{
			Base:       events.NewBase(s.channelID, 0),
			CustomType: "asterisk." + msg.Type,
		}}, nil
	}
}

func (s *AsteriskSerializer) Serialize(ev events.Event) (Wire, bool) {
	switch e := ev.(type) {
	case events.AudioFrame:
		return BinaryWire(e.Data), true
	case events.ClearAudio:
		b, _ := json.Marshal(map[string]any{
			"type": "PlaybackControl", "channel_id": s.channelID, "operation": "stop",
		})
		return TextWire(string(b)), true
	case events.Mark:
		b, _ := json.Marshal(map[string]any{"type": "Mark", "channel_id": s.channelID, "name": e.Name})
		return TextWire(string(b)), true
	default:
		return Wire{}, false
	}
}

func (s *AsteriskSerializer) HandshakeResponse(first Wire) (Wire, bool) {
	return Wire{}, false
}
