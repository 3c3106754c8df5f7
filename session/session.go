// Package session holds the per-call state the bridge orchestrator
// mutates while a provider connection is alive: the serializer, the
// codec/resampler pipeline, the outbound audio queue, and lifecycle
// bookkeeping. Grounded in pkg/telephony/audio-stream-bridge.go's
// BridgeSession shape, generalized from SignalWire-only to the full
// provider set.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/birddigital/voxbridge/codec"
	"github.com/birddigital/voxbridge/serializer"
)

// outboundQueueCapacity bounds the per-session outbound audio queue.
// The bridge pushes each outbound chunk without blocking and drops the
// push when the queue is full; the queue is emptied only by
// ClearOutboundAudioQueue.
const outboundQueueCapacity = 500

// CallSession is the exclusive owner of one call's serializer instance
// and its outbound audio queue. The call's two transports are held by
// the caller of bridge.Orchestrator.Run, not by the session.
type CallSession struct {
	SessionID string
	CallID    string
	Provider  string

	FromNumber string
	ToNumber   string
	SIPHeaders map[string]string
	Direction  string

	Serializer serializer.Serializer
	Codecs     *codec.Registry

	ProviderCodec      codec.Codec
	ProviderSampleRate int
	BotCodec           codec.Codec
	BotSampleRate      int

	inboundResampler  *codec.Resampler
	outboundResampler *codec.Resampler

	OutboundAudioQueue chan []byte

	mu             sync.Mutex
	isBotSpeaking  bool
	bargeInEnabled bool
	isActive       bool
	isOnHold       bool
	pendingMarks   []string
	audioBytesIn   int64
	audioBytesOut  int64

	StartedAt time.Time
	EndedAt   time.Time
}

// NewCallSession constructs a session for one accepted provider
// connection. Resamplers are built only when the provider and bot
// sample rates differ, per spec §4.5.
func NewCallSession(provider string, s serializer.Serializer, codecs *codec.Registry, botCodec codec.Codec, botSampleRate int) *CallSession {
	providerRate := s.NativeSampleRate()

	cs := &CallSession{
		SessionID:          uuid.NewString(),
		Provider:           provider,
		Serializer:         s,
		Codecs:             codecs,
		ProviderCodec:      s.NativeCodec(),
		ProviderSampleRate: providerRate,
		BotCodec:           botCodec,
		BotSampleRate:      botSampleRate,
		bargeInEnabled:     true,
		isActive:           true,
		OutboundAudioQueue: make(chan []byte, outboundQueueCapacity),
		StartedAt:          time.Now(),
	}
	if providerRate != botSampleRate {
		cs.inboundResampler = codec.NewResampler(providerRate, botSampleRate)
		cs.outboundResampler = codec.NewResampler(botSampleRate, providerRate)
	}
	return cs
}

// RecordCallStarted fills in the fields a CallStarted event carries,
// called once per spec §4.6.1's "record call_id/from/to/sip_headers".
func (cs *CallSession) RecordCallStarted(callID, from, to string, sipHeaders map[string]string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.CallID = callID
	cs.FromNumber = from
	cs.ToNumber = to
	cs.SIPHeaders = sipHeaders
}

// ConvertInbound decodes provider-codec bytes to the bot's codec,
// resampling in between when rates differ. Decode-then-resample per
// spec §4.5: the resample step operates on PCM16 regardless of the
// bot's final encoded form.
func (cs *CallSession) ConvertInbound(data []byte) ([]byte, error) {
	pcm, err := cs.Codecs.Convert(data, cs.ProviderCodec, codec.PCM16)
	if err != nil {
		return nil, err
	}
	if cs.inboundResampler != nil {
		pcm = cs.inboundResampler.Process(pcm)
	}
	return cs.Codecs.Convert(pcm, codec.PCM16, cs.BotCodec)
}

// ConvertOutbound resamples bot-codec bytes to the provider rate
// before codec-converting to the provider's wire codec. Resample
// first per spec §4.5: the outbound resampler's input rate is the
// bot rate, not the provider rate.
func (cs *CallSession) ConvertOutbound(data []byte) ([]byte, error) {
	pcm, err := cs.Codecs.Convert(data, cs.BotCodec, codec.PCM16)
	if err != nil {
		return nil, err
	}
	if cs.outboundResampler != nil {
		pcm = cs.outboundResampler.Process(pcm)
	}
	return cs.Codecs.Convert(pcm, codec.PCM16, cs.ProviderCodec)
}

// AddAudioBytesIn accumulates inbound audio byte counts for metrics
// (spec §8: "total audio_bytes_in equals the sum of lengths of all
// inbound AudioFrame.data").
func (cs *CallSession) AddAudioBytesIn(n int) {
	cs.mu.Lock()
	cs.audioBytesIn += int64(n)
	cs.mu.Unlock()
}

// AddAudioBytesOut accumulates outbound audio byte counts.
func (cs *CallSession) AddAudioBytesOut(n int) {
	cs.mu.Lock()
	cs.audioBytesOut += int64(n)
	cs.mu.Unlock()
}

// AudioBytesIn returns the running inbound byte count.
func (cs *CallSession) AudioBytesIn() int64 {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.audioBytesIn
}

// AudioBytesOut returns the running outbound byte count.
func (cs *CallSession) AudioBytesOut() int64 {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.audioBytesOut
}

// SetBotSpeaking records whether bot audio is currently being played
// to the caller; the bridge's barge-in detector consults this before
// acting on inbound energy.
func (cs *CallSession) SetBotSpeaking(speaking bool) {
	cs.mu.Lock()
	cs.isBotSpeaking = speaking
	cs.mu.Unlock()
}

// IsBotSpeaking reports the current bot-speaking state.
func (cs *CallSession) IsBotSpeaking() bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.isBotSpeaking
}

// BargeInEnabled reports whether barge-in detection is active for
// this session.
func (cs *CallSession) BargeInEnabled() bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.bargeInEnabled
}

// SetBargeInEnabled toggles barge-in detection.
func (cs *CallSession) SetBargeInEnabled(enabled bool) {
	cs.mu.Lock()
	cs.bargeInEnabled = enabled
	cs.mu.Unlock()
}

// SetOnHold records the session's hold state.
func (cs *CallSession) SetOnHold(onHold bool) {
	cs.mu.Lock()
	cs.isOnHold = onHold
	cs.mu.Unlock()
}

// IsOnHold reports the session's hold state.
func (cs *CallSession) IsOnHold() bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.isOnHold
}

// ClearOutboundAudioQueue drains the outbound queue and returns the
// number of chunks discarded, for the barge-in protocol's "queue
// cleared (report count cleared)" step (spec §4.6.3).
func (cs *CallSession) ClearOutboundAudioQueue() int {
	count := 0
	for {
		select {
		case <-cs.OutboundAudioQueue:
			count++
		default:
			return count
		}
	}
}

// EnqueueMark records a playback checkpoint name pending delivery to
// the provider, per spec §4.6.4.
func (cs *CallSession) EnqueueMark(name string) {
	cs.mu.Lock()
	cs.pendingMarks = append(cs.pendingMarks, name)
	cs.mu.Unlock()
}

// PendingMarks returns and clears the accumulated mark names.
func (cs *CallSession) PendingMarks() []string {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	marks := cs.pendingMarks
	cs.pendingMarks = nil
	return marks
}

// IsActive reports whether the session has not yet ended.
func (cs *CallSession) IsActive() bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.isActive
}

// End marks the session inactive and records its end time. Idempotent
// per spec §4.5 and §5: a second call is a no-op.
func (cs *CallSession) End() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if !cs.isActive {
		return
	}
	cs.isActive = false
	cs.EndedAt = time.Now()
}

// DurationMs returns the call's elapsed duration in milliseconds, using
// EndedAt if the session has ended, otherwise the current time.
func (cs *CallSession) DurationMs() int64 {
	cs.mu.Lock()
	ended := cs.EndedAt
	active := cs.isActive
	cs.mu.Unlock()
	end := ended
	if active {
		end = time.Now()
	}
	return end.Sub(cs.StartedAt).Milliseconds()
}
