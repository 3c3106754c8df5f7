package bridge

import "encoding/json"

// botControlMessage is the canonical JSON control envelope exchanged
// with the bot-side transport, per spec §6. Both directions share one
// permissive struct; unused fields are simply left zero-valued.
type botControlMessage struct {
	Type     string         `json:"type"`
	CallID   string         `json:"call_id,omitempty"`
	From     string         `json:"from,omitempty"`
	To       string         `json:"to,omitempty"`
	Provider string         `json:"provider,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Reason   string         `json:"reason,omitempty"`
	Digit    string         `json:"digit,omitempty"`
	Name     string         `json:"name,omitempty"`
}

func marshalBotMessage(m botControlMessage) []byte {
	b, _ := json.Marshal(m)
	return b
}

func parseBotMessage(data []byte) (botControlMessage, error) {
	var m botControlMessage
	err := json.Unmarshal(data, &m)
	return m, err
}

func startMessage(callID, from, to, provider string, metadata map[string]any) []byte {
	return marshalBotMessage(botControlMessage{
		Type: "start", CallID: callID, From: from, To: to, Provider: provider, Metadata: metadata,
	})
}

func stopMessage(callID, reason string) []byte {
	return marshalBotMessage(botControlMessage{Type: "stop", CallID: callID, Reason: reason})
}

func dtmfMessage(callID, digit string) []byte {
	return marshalBotMessage(botControlMessage{Type: "dtmf", CallID: callID, Digit: digit})
}

func bargeInMessage() []byte {
	return marshalBotMessage(botControlMessage{Type: "barge_in"})
}
