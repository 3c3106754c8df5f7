package serializer

import (
	"encoding/json"
	"strings"

	"github.com/birddigital/voxbridge/codec"
	"github.com/birddigital/voxbridge/events"
)

// GenesysSerializer translates Genesys AudioHook messages. State is
// limited to the session/conversation identifiers Genesys assigns at
// handshake, grounded in original_source/voxbridge/serializers/genesys.py.
type GenesysSerializer struct {
	sessionID      string
	conversationID string
}

func NewGenesysSerializer() *GenesysSerializer { return &GenesysSerializer{} }

func (s *GenesysSerializer) Name() string            { return "genesys" }
func (s *GenesysSerializer) NativeCodec() codec.Codec { return codec.Mulaw }
func (s *GenesysSerializer) NativeSampleRate() int    { return 8000 }

type genesysMessage struct {
	Type       string         `json:"type"`
	ID         string         `json:"id"`
	Position   any            `json:"position"`
	Parameters map[string]any `json:"parameters"`
}

func (s *GenesysSerializer) Deserialize(wire Wire) ([]events.Event, error) {
	if !wire.IsText {
		return []events.Event{events.AudioFrame{
			Base:       events.NewBase(s.conversationID, 0),
			Codec:      string(codec.Mulaw),
			SampleRate: 8000,
			Channels:   1,
			Data:       wire.Binary,
		}}, nil
	}

	var msg genesysMessage
	if err := json.Unmarshal([]byte(wire.Text), &msg); err != nil {
		return []events.Event{events.ErrorEvent{Code: "protocol_parse", Message: err.Error(), Recoverable: true}}, nil
	}

	switch msg.Type {
	case "open":
		s.sessionID = msg.ID
		organizationID := ""
		if orgID, ok := msg.Parameters["organizationId"].(string); ok {
			organizationID = orgID
		}
		if cid, ok := msg.Parameters["conversationId"].(string); ok {
			s.conversationID = cid
		}
		participant, _ := msg.Parameters["participant"].(map[string]any)
		sipHeaders := map[string]string{}
		for k, v := range participant {
			lk := strings.ToLower(k)
			if strings.HasPrefix(lk, "sip_") || strings.HasPrefix(lk, "x-") {
				if sv, ok := v.(string); ok {
					sipHeaders[k] = sv
				}
			}
		}
		position := msg.Position
		if position == nil {
			position = 0
		}
		metadata := map[string]any{
			"session_id":      s.sessionID,
			"organization_id": organizationID,
			"participant":     participant,
			"position":        position,
		}
		return []events.Event{events.CallStarted{
			Base:       events.NewBase(s.conversationID, 0),
			Provider:   s.Name(),
			Direction:  events.DirectionInbound,
			SIPHeaders: sipHeaders,
			Metadata:   metadata,
		}}, nil
	case "ping":
		return nil, nil
	case "close":
		reason, ok := msg.Parameters["reason"].(string)
		if !ok || reason == "" {
			reason = "normal"
		}
		return []events.Event{events.CallEnded{Base: events.NewBase(s.conversationID, 0), Reason: reason}}, nil
	case "dtmf":
		digit, _ := msg.Parameters["digit"].(string)
		return []events.Event{events.NewDTMFReceived(s.conversationID, digit)}, nil
	case "pause":
		return []events.Event{events.HoldStarted{Base: events.NewBase(s.conversationID, 0)}}, nil
	case "resume":
		return []events.Event{events.HoldEnded{Base: events.NewBase(s.conversationID, 0)}}, nil
	default:
		return []events.Event{events.CustomEvent{
			Base:       events.NewBase(s.conversationID, 0),
			CustomType: "genesys." + msg.Type,
		}}, nil
	}
}

func (s *GenesysSerializer) Serialize(ev events.Event) (Wire, bool) {
	switch e := ev.(type) {
	case events.AudioFrame:
		return BinaryWire(e.Data), true
	case events.ClearAudio:
		return TextWire(s.buildDiscardAudioMessage()), true
	case events.Mark:
		return TextWire(s.buildPositionMessage(e.Name)), true
	default:
		return Wire{}, false
	}
}

func (s *GenesysSerializer) HandshakeResponse(first Wire) (Wire, bool) {
	if !first.IsText {
		return Wire{}, false
	}
	var msg genesysMessage
	if err := json.Unmarshal([]byte(first.Text), &msg); err != nil {
		return Wire{}, false
	}
	msgID := msg.ID
	if msgID == "" {
		msgID = s.sessionID
	}

	switch msg.Type {
	case "open":
		s.sessionID = msgID
		if cid, ok := msg.Parameters["conversationId"].(string); ok {
			s.conversationID = cid
		}
		body := map[string]any{
			"type": "opened",
			"id":   msgID,
			"parameters": map[string]any{
				"startPaused": false,
				"media": []map[string]any{
					{"type": "audio", "format": "PCMU", "channels": []string{"external"}, "rate": 8000},
				},
			},
		}
		b, _ := json.Marshal(body)
		return TextWire(string(b)), true
	case "ping":
		return TextWire(s.buildPong(msgID)), true
	case "close":
		return TextWire(s.buildDisconnect(msgID)), true
	default:
		return Wire{}, false
	}
}

func (s *GenesysSerializer) buildPong(id string) string {
	b, _ := json.Marshal(map[string]any{"type": "pong", "id": id})
	return string(b)
}

func (s *GenesysSerializer) buildDiscardAudioMessage() string {
	b, _ := json.Marshal(map[string]any{"type": "discardAudio", "id": s.sessionID})
	return string(b)
}

func (s *GenesysSerializer) buildPositionMessage(name string) string {
	b, _ := json.Marshal(map[string]any{
		"type":       "position",
		"id":         s.sessionID,
		"parameters": map[string]any{"name": name},
	})
	return string(b)
}

func (s *GenesysSerializer) buildDisconnect(id string) string {
	b, _ := json.Marshal(map[string]any{"type": "closed", "id": id})
	return string(b)
}
