package pipeline

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/birddigital/voxbridge/transport"
)

// controlMessage mirrors bridge's canonical bot-control envelope
// (spec §6) without importing the bridge package. Neither bridge nor
// cmd/voxbridge imports pipeline; an embedding application passes a
// Transport to bridge.Orchestrator.Run as the bot side.
type controlMessage struct {
	Type   string `json:"type"`
	CallID string `json:"call_id,omitempty"`
	Reason string `json:"reason,omitempty"`
	Digit  string `json:"digit,omitempty"`
}

// Transport adapts a PipelineOrchestrator to the transport.Transport
// interface, letting the bridge orchestrator drive the built-in AI
// pipeline through the exact same bot-side Send/Recv contract it uses
// for an external bot WebSocket (spec §4.7: "the bot-side transport is
// replaced by an internal orchestrator"). Send carries inbound
// provider audio/control in; Recv yields synthesized audio/control
// out.
type Transport struct {
	orch *PipelineOrchestrator

	outCh chan transport.Message

	mu     sync.Mutex
	closed bool
}

// NewTransport wraps orch. Sending a "start" control message through
// the Transport calls orch.Start.
func NewTransport(orch *PipelineOrchestrator) *Transport {
	t := &Transport{orch: orch, outCh: make(chan transport.Message, 64)}
	orch.SetAudioOutputCallback(func(ctx context.Context, audio []byte) error {
		return t.push(ctx, transport.Message{Binary: true, Data: audio})
	})
	orch.SetCallEndCallback(func(reason string) {
		t.push(context.Background(), transport.Message{Data: marshalControl(controlMessage{Type: "stop", Reason: reason})})
	})
	return t
}

// Send implements transport.Transport. Binary messages are treated as
// inbound provider audio and fed to STT; text messages are parsed as
// the canonical control envelope ("start" launches the pipeline,
// "dtmf" forwards the digit, "barge_in" cancels in-flight generation).
func (t *Transport) Send(ctx context.Context, msg transport.Message) error {
	if msg.Binary {
		return t.orch.FeedAudio(msg.Data)
	}

	var ctrl controlMessage
	if err := json.Unmarshal(msg.Data, &ctrl); err != nil {
		return nil
	}
	switch ctrl.Type {
	case "start":
		return t.orch.Start(ctx)
	case "dtmf":
		t.orch.HandleDTMF(ctrl.Digit)
	case "barge_in":
		t.orch.HandleBargeIn()
	case "stop":
		t.orch.Stop()
	}
	return nil
}

// Recv implements transport.Transport, yielding synthesized audio and
// control messages the pipeline produces.
func (t *Transport) Recv(ctx context.Context) (transport.Message, error) {
	select {
	case msg, ok := <-t.outCh:
		if !ok {
			return transport.Message{}, transport.ErrClosed
		}
		return msg, nil
	case <-ctx.Done():
		return transport.Message{}, ctx.Err()
	}
}

// Disconnect stops the pipeline and closes the outbound channel.
// Idempotent.
func (t *Transport) Disconnect() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	t.orch.Stop()
	close(t.outCh)
	return nil
}

// IsConnected reports whether Disconnect has not yet been called.
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed
}

func (t *Transport) push(ctx context.Context, msg transport.Message) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return transport.ErrClosed
	}
	select {
	case t.outCh <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func marshalControl(m controlMessage) []byte {
	b, _ := json.Marshal(m)
	return b
}
