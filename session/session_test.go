package session

import (
	"testing"
	"time"

	"github.com/birddigital/voxbridge/codec"
	"github.com/birddigital/voxbridge/serializer"
)

func newTestSession(botCodec codec.Codec, botRate int) *CallSession {
	return NewCallSession("twilio", serializer.NewTwilioSerializer(), codec.NewRegistry(), botCodec, botRate)
}

func TestConvertInboundMulawToPCM16NoResample(t *testing.T) {
	cs := newTestSession(codec.PCM16, 8000)
	if cs.inboundResampler != nil {
		t.Fatal("expected no resampler when rates match")
	}
	out, err := cs.ConvertInbound([]byte{0x7F})
	if err != nil {
		t.Fatalf("ConvertInbound: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 pcm16 bytes, got %d", len(out))
	}
}

func TestConvertOutboundBuildsResamplerWhenRatesDiffer(t *testing.T) {
	cs := newTestSession(codec.PCM16, 16000)
	if cs.outboundResampler == nil {
		t.Fatal("expected outbound resampler when bot rate differs from provider rate")
	}
	pcm := make([]byte, 320) // 160 samples at 16kHz bot rate
	out, err := cs.ConvertOutbound(pcm)
	if err != nil {
		t.Fatalf("ConvertOutbound: %v", err)
	}
	// downsample 16000->8000 halves sample count, then encode to mulaw halves bytes again
	if len(out) != 80 {
		t.Fatalf("got %d bytes, want 80", len(out))
	}
}

func TestSessionEndIdempotent(t *testing.T) {
	cs := newTestSession(codec.PCM16, 8000)
	if !cs.IsActive() {
		t.Fatal("new session should be active")
	}
	cs.End()
	if cs.IsActive() {
		t.Fatal("expected inactive after End")
	}
	first := cs.EndedAt
	time.Sleep(time.Millisecond)
	cs.End()
	if !cs.EndedAt.Equal(first) {
		t.Error("End should be idempotent; EndedAt changed on second call")
	}
}

func TestAudioByteCounters(t *testing.T) {
	cs := newTestSession(codec.PCM16, 8000)
	cs.AddAudioBytesIn(10)
	cs.AddAudioBytesIn(5)
	cs.AddAudioBytesOut(3)
	if cs.AudioBytesIn() != 15 {
		t.Errorf("AudioBytesIn = %d, want 15", cs.AudioBytesIn())
	}
	if cs.AudioBytesOut() != 3 {
		t.Errorf("AudioBytesOut = %d, want 3", cs.AudioBytesOut())
	}
}

func TestClearOutboundAudioQueueReturnsCount(t *testing.T) {
	cs := newTestSession(codec.PCM16, 8000)
	for i := 0; i < 10; i++ {
		cs.OutboundAudioQueue <- []byte{byte(i)}
	}
	n := cs.ClearOutboundAudioQueue()
	if n != 10 {
		t.Errorf("cleared = %d, want 10", n)
	}
	if n2 := cs.ClearOutboundAudioQueue(); n2 != 0 {
		t.Errorf("second clear = %d, want 0", n2)
	}
}

func TestSessionStoreAddGetRemove(t *testing.T) {
	store := NewSessionStore()
	cs := newTestSession(codec.PCM16, 8000)
	store.Add(cs)

	got, ok := store.Get(cs.SessionID)
	if !ok || got != cs {
		t.Fatal("Get did not return the added session")
	}

	cs.RecordCallStarted("CA123", "+1", "+2", nil)
	store.IndexCallID(cs.SessionID, "CA123")
	got, ok = store.GetByCallID("CA123")
	if !ok || got != cs {
		t.Fatal("GetByCallID did not find the session")
	}

	store.Remove(cs.SessionID)
	if _, ok := store.Get(cs.SessionID); ok {
		t.Error("session still present after Remove")
	}
	if _, ok := store.GetByCallID("CA123"); ok {
		t.Error("call_id index not cleared after Remove")
	}
}

func TestSessionStoreCleanupRemovesOldEndedSessions(t *testing.T) {
	store := NewSessionStore()
	cs := newTestSession(codec.PCM16, 8000)
	store.Add(cs)
	cs.End()
	cs.EndedAt = time.Now().Add(-time.Hour)

	removed := store.Cleanup(time.Minute)
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if store.Len() != 0 {
		t.Errorf("store.Len() = %d, want 0", store.Len())
	}
}

func TestSessionStoreCleanupKeepsActiveSessions(t *testing.T) {
	store := NewSessionStore()
	cs := newTestSession(codec.PCM16, 8000)
	store.Add(cs)

	removed := store.Cleanup(0)
	if removed != 0 {
		t.Errorf("removed = %d, want 0 (session still active)", removed)
	}
}
