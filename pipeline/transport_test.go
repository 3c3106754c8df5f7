package pipeline

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/birddigital/voxbridge/transport"
)

func newTestTransport(t *testing.T) (*Transport, *FixtureSTT) {
	t.Helper()
	stt := NewFixtureSTT(8000, "pcm16")
	tts := NewFixtureTTS(8000)
	llm := NewFixtureLLM()

	cfg := DefaultConfig()
	cfg.SilenceThreshold = 20 * time.Millisecond

	orch := NewPipelineOrchestrator(cfg, stt, llm, tts, nil)
	return NewTransport(orch), stt
}

func TestTransportStartControlMessageLaunchesPipeline(t *testing.T) {
	pt, _ := newTestTransport(t)
	ctx := context.Background()

	start, _ := json.Marshal(controlMessage{Type: "start"})
	if err := pt.Send(ctx, transport.Message{Data: start}); err != nil {
		t.Fatalf("Send(start) error = %v", err)
	}
	if !pt.orch.IsRunning() {
		t.Fatal("orchestrator not running after a start control message")
	}
	pt.Disconnect()
}

func TestTransportBinarySendFeedsAudio(t *testing.T) {
	pt, _ := newTestTransport(t)
	ctx := context.Background()

	start, _ := json.Marshal(controlMessage{Type: "start"})
	pt.Send(ctx, transport.Message{Data: start})
	defer pt.Disconnect()

	if err := pt.Send(ctx, transport.Message{Binary: true, Data: []byte{1, 2, 3, 4}}); err != nil {
		t.Fatalf("Send(binary) error = %v", err)
	}
}

func TestTransportRecvYieldsSynthesizedAudio(t *testing.T) {
	pt, stt := newTestTransport(t)
	ctx := context.Background()

	start, _ := json.Marshal(controlMessage{Type: "start"})
	pt.Send(ctx, transport.Message{Data: start})
	defer pt.Disconnect()

	stt.Feed(STTResult{Text: "hello there", IsFinal: true})

	recvCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	gotAudio := false
	for !gotAudio {
		msg, err := pt.Recv(recvCtx)
		if err != nil {
			t.Fatalf("Recv() error = %v before an audio message arrived", err)
		}
		if msg.Binary {
			gotAudio = true
		}
	}
}

func TestTransportDisconnectIsIdempotentAndClosesRecv(t *testing.T) {
	pt, _ := newTestTransport(t)
	if err := pt.Disconnect(); err != nil {
		t.Fatalf("first Disconnect() error = %v", err)
	}
	if err := pt.Disconnect(); err != nil {
		t.Fatalf("second Disconnect() error = %v, want nil (idempotent)", err)
	}
	if pt.IsConnected() {
		t.Error("IsConnected() = true after Disconnect")
	}

	_, err := pt.Recv(context.Background())
	if err != transport.ErrClosed {
		t.Errorf("Recv() after Disconnect = %v, want transport.ErrClosed", err)
	}
}

func TestTransportStopControlMessageStopsPipeline(t *testing.T) {
	pt, _ := newTestTransport(t)
	ctx := context.Background()

	start, _ := json.Marshal(controlMessage{Type: "start"})
	pt.Send(ctx, transport.Message{Data: start})

	stop, _ := json.Marshal(controlMessage{Type: "stop"})
	pt.Send(ctx, transport.Message{Data: stop})

	if pt.orch.IsRunning() {
		t.Error("orchestrator still running after a stop control message")
	}
}
