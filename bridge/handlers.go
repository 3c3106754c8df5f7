// Package bridge implements the orchestrator that owns the
// bidirectional forwarding loop for one accepted provider connection:
// dispatching events to the handler registry, driving the codec/session
// pipeline, and implementing the barge-in and mark protocols (spec
// §4.6). Grounded in pkg/telephony/audio-stream-bridge.go's
// routePhoneToAI/routeAIToPhone goroutine pair, generalized from a
// single SignalWire<->AI pipe to the full provider/serializer set.
package bridge

import (
	"log/slog"

	"github.com/birddigital/voxbridge/events"
	"github.com/birddigital/voxbridge/session"
)

// AudioHandler inspects or rewrites an inbound AudioFrame before it is
// converted and forwarded to the bot. Returning ok=false drops the
// frame.
type AudioHandler func(cs *session.CallSession, frame events.AudioFrame) (events.AudioFrame, bool)

// CallHandler reacts to session lifecycle events.
type CallHandler func(cs *session.CallSession)

// CallEndedHandler reacts to a CallEnded event.
type CallEndedHandler func(cs *session.CallSession, ev events.CallEnded)

// DTMFHandler reacts to a received DTMF digit.
type DTMFHandler func(cs *session.CallSession, digit string)

// EventHandler receives every dispatched event regardless of type, the
// orchestrator's catch-all registration (spec §9's "dispatches a
// catch-all").
type EventHandler func(cs *session.CallSession, ev events.Event)

// MarkHandler receives the name of a mark whose playback the provider
// reported. It is invoked only through dispatchMark, which the
// orchestrator does not call: no built-in serializer produces an
// events.Mark from provider input, so provider playback reports reach
// handlers as CustomEvent through OnEvent instead.
type MarkHandler func(cs *session.CallSession, name string)

// BargeInHandler fires when the bridge detects the caller interrupting
// bot speech, the supplemented on_barge_in registration.
type BargeInHandler func(cs *session.CallSession, ev events.BargeIn)

// Registry holds the ordered, per-event-type handler lists the
// orchestrator dispatches to. Handlers are read-only after server
// start; runtime registration beyond setup time is out of scope (spec
// §5). A handler that panics is recovered and logged so it never
// aborts dispatch to the remaining handlers of that event (spec §7).
type Registry struct {
	logger *slog.Logger

	onCallStart []CallHandler
	onCallEnd   []CallEndedHandler
	onAudio     []AudioHandler
	onDTMF      []DTMFHandler
	onHoldStart []CallHandler
	onHoldEnd   []CallHandler
	onEvent     []EventHandler
	onMark      []MarkHandler
	onBargeIn   []BargeInHandler
}

// NewRegistry builds an empty handler registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

func (r *Registry) OnCallStart(h CallHandler)        { r.onCallStart = append(r.onCallStart, h) }
func (r *Registry) OnCallEnd(h CallEndedHandler)      { r.onCallEnd = append(r.onCallEnd, h) }
func (r *Registry) OnAudio(h AudioHandler)            { r.onAudio = append(r.onAudio, h) }
func (r *Registry) OnDTMF(h DTMFHandler)              { r.onDTMF = append(r.onDTMF, h) }
func (r *Registry) OnHoldStart(h CallHandler)         { r.onHoldStart = append(r.onHoldStart, h) }
func (r *Registry) OnHoldEnd(h CallHandler)           { r.onHoldEnd = append(r.onHoldEnd, h) }
func (r *Registry) OnEvent(h EventHandler)            { r.onEvent = append(r.onEvent, h) }
func (r *Registry) OnMark(h MarkHandler)              { r.onMark = append(r.onMark, h) }
func (r *Registry) OnBargeIn(h BargeInHandler)        { r.onBargeIn = append(r.onBargeIn, h) }

func (r *Registry) dispatchCallStart(cs *session.CallSession) {
	for _, h := range r.onCallStart {
		r.safely("on_call_start", func() { h(cs) })
	}
}

func (r *Registry) dispatchCallEnd(cs *session.CallSession, ev events.CallEnded) {
	for _, h := range r.onCallEnd {
		r.safely("on_call_end", func() { h(cs, ev) })
	}
}

// dispatchAudio runs the chain of audio handlers in registration order;
// a handler returning ok=false drops the frame for the remaining chain
// and the caller.
func (r *Registry) dispatchAudio(cs *session.CallSession, frame events.AudioFrame) (events.AudioFrame, bool) {
	kept := true
	for _, h := range r.onAudio {
		if !kept {
			break
		}
		r.safely("on_audio", func() {
			frame, kept = h(cs, frame)
		})
	}
	return frame, kept
}

func (r *Registry) dispatchDTMF(cs *session.CallSession, digit string) {
	for _, h := range r.onDTMF {
		r.safely("on_dtmf", func() { h(cs, digit) })
	}
}

func (r *Registry) dispatchHoldStart(cs *session.CallSession) {
	for _, h := range r.onHoldStart {
		r.safely("on_hold_start", func() { h(cs) })
	}
}

func (r *Registry) dispatchHoldEnd(cs *session.CallSession) {
	for _, h := range r.onHoldEnd {
		r.safely("on_hold_end", func() { h(cs) })
	}
}

func (r *Registry) dispatchEvent(cs *session.CallSession, ev events.Event) {
	for _, h := range r.onEvent {
		r.safely("on_event", func() { h(cs, ev) })
	}
}

func (r *Registry) dispatchMark(cs *session.CallSession, name string) {
	for _, h := range r.onMark {
		r.safely("on_mark", func() { h(cs, name) })
	}
}

func (r *Registry) dispatchBargeIn(cs *session.CallSession, ev events.BargeIn) {
	for _, h := range r.onBargeIn {
		r.safely("on_barge_in", func() { h(cs, ev) })
	}
}

// safely runs a handler, recovering a panic and logging it so dispatch
// to subsequent handlers of the same event is never aborted (spec §7's
// "Handler exception: logged; does not interrupt event dispatch").
func (r *Registry) safely(name string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("handler panicked", slog.String("handler", name), slog.Any("recover", rec))
		}
	}()
	fn()
}
