package bridge

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/birddigital/voxbridge/codec"
	"github.com/birddigital/voxbridge/events"
	"github.com/birddigital/voxbridge/serializer"
	"github.com/birddigital/voxbridge/session"
	"github.com/birddigital/voxbridge/transport"
)

// Orchestrator owns the handler registry and drives the bidirectional
// forwarding loop for each accepted call, per spec §4.6.
type Orchestrator struct {
	Handlers *Registry
	Store    *session.SessionStore

	BargeIn BargeInConfig
	Logger  *slog.Logger
}

// NewOrchestrator builds an Orchestrator. A nil logger falls back to
// slog.Default(); a zero BargeInConfig is replaced with
// DefaultBargeInConfig().
func NewOrchestrator(handlers *Registry, store *session.SessionStore, bargeIn BargeInConfig, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if bargeIn == (BargeInConfig{}) {
		bargeIn = DefaultBargeInConfig()
	}
	return &Orchestrator{Handlers: handlers, Store: store, BargeIn: bargeIn, Logger: logger}
}

// Run drives one call's two forwarding loops until either terminates,
// cancels the other, tears down both transports, and removes the
// session from the store. Cancellation is idempotent by construction:
// Disconnect and session.End already are.
func (o *Orchestrator) Run(ctx context.Context, cs *session.CallSession, providerTransport, botTransport transport.Transport) error {
	o.Store.Add(cs)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	detector := newBargeInDetector(o.BargeIn)

	g.Go(func() error {
		defer cancel()
		return o.providerToBot(gctx, cs, providerTransport, botTransport, detector)
	})
	g.Go(func() error {
		defer cancel()
		return o.botToProvider(gctx, cs, providerTransport, botTransport)
	})

	err := g.Wait()
	// The loop that did not finish first stops on the shared
	// cancellation; that is not an error of the call itself.
	if errors.Is(err, context.Canceled) && ctx.Err() == nil {
		err = nil
	}

	cs.End()
	providerTransport.Disconnect()
	botTransport.Disconnect()
	o.Store.Remove(cs.SessionID)
	return err
}

// providerToBot implements spec §4.6.1's hot path: translate each wire
// message from the provider into canonical events, dispatch them to
// handlers, and forward audio/control frames to the bot.
func (o *Orchestrator) providerToBot(ctx context.Context, cs *session.CallSession, providerTransport, botTransport transport.Transport, detector *bargeInDetector) error {
	for {
		msg, err := providerTransport.Recv(ctx)
		if err != nil {
			return err
		}

		var wire serializer.Wire
		if msg.Binary {
			wire = serializer.BinaryWire(msg.Data)
		} else {
			wire = serializer.TextWire(string(msg.Data))
		}

		if resp, ok := cs.Serializer.HandshakeResponse(wire); ok {
			if err := providerTransport.Send(ctx, toTransportMessage(resp)); err != nil {
				return err
			}
		}

		evs, err := cs.Serializer.Deserialize(wire)
		if err != nil {
			o.Logger.Warn("deserialize failed", slog.String("call_id", cs.CallID), slog.Any("error", err))
			continue
		}

		for _, ev := range evs {
			o.Handlers.dispatchEvent(cs, ev)

			switch e := ev.(type) {
			case events.CallStarted:
				cs.RecordCallStarted(e.CallID, e.FromNumber, e.ToNumber, e.SIPHeaders)
				o.Store.IndexCallID(cs.SessionID, e.CallID)
				o.Handlers.dispatchCallStart(cs)
				if err := botTransport.Send(ctx, transport.Message{Data: startMessage(e.CallID, e.FromNumber, e.ToNumber, e.Provider, e.Metadata)}); err != nil {
					return err
				}

			case events.AudioFrame:
				cs.AddAudioBytesIn(len(e.Data))

				if o.maybeBargeIn(ctx, cs, providerTransport, botTransport, e, detector) {
					continue
				}

				kept, ok := o.Handlers.dispatchAudio(cs, e)
				if !ok {
					continue
				}
				converted, err := cs.ConvertInbound(kept.Data)
				if err != nil {
					o.endSessionFatal(ctx, cs, providerTransport, botTransport, "codec_error")
					return err
				}
				if err := botTransport.Send(ctx, transport.Message{Binary: true, Data: converted}); err != nil {
					return err
				}

			case events.DTMFReceived:
				o.Handlers.dispatchDTMF(cs, e.Digit)
				if err := botTransport.Send(ctx, transport.Message{Data: dtmfMessage(cs.CallID, e.Digit)}); err != nil {
					return err
				}

			case events.HoldStarted:
				cs.SetOnHold(true)
				o.Handlers.dispatchHoldStart(cs)

			case events.HoldEnded:
				cs.SetOnHold(false)
				o.Handlers.dispatchHoldEnd(cs)

			case events.CallEnded:
				o.Handlers.dispatchCallEnd(cs, e)
				cs.End()
				botTransport.Send(ctx, transport.Message{Data: stopMessage(cs.CallID, e.Reason)})
				return nil
			}
		}
	}
}

// maybeBargeIn runs the RMS barge-in detector on one inbound frame. When
// it fires, it executes the four steps of spec §4.6.3 and reports true
// so the caller skips forwarding this frame through the normal audio
// path (the caller's bot TTS is being cancelled anyway).
func (o *Orchestrator) maybeBargeIn(ctx context.Context, cs *session.CallSession, providerTransport, botTransport transport.Transport, frame events.AudioFrame, detector *bargeInDetector) bool {
	if !cs.IsBotSpeaking() || !cs.BargeInEnabled() {
		detector.reset()
		return false
	}

	pcm, err := cs.Codecs.Decode(frame.Data, codec.Codec(frame.Codec))
	if err != nil {
		return false
	}
	if !detector.observe(pcm) {
		return false
	}
	detector.reset()

	energy := pcm16RMS(pcm)
	bargeIn := events.BargeIn{Base: events.NewBase(cs.CallID, 0), AudioEnergy: energy}
	o.Handlers.dispatchBargeIn(cs, bargeIn)

	cleared := cs.ClearOutboundAudioQueue()
	o.Logger.Info("barge-in", slog.String("call_id", cs.CallID), slog.Float64("energy", energy), slog.Int("cleared", cleared))

	if wire, ok := cs.Serializer.Serialize(events.ClearAudio{Base: events.NewBase(cs.CallID, 0)}); ok {
		providerTransport.Send(ctx, toTransportMessage(wire))
	}
	botTransport.Send(ctx, transport.Message{Data: bargeInMessage()})
	cs.SetBotSpeaking(false)
	return true
}

// botToProvider implements spec §4.6.2: audio bytes from the bot are
// resampled/re-encoded and wrapped through the serializer; control JSON
// carries stop and mark.
func (o *Orchestrator) botToProvider(ctx context.Context, cs *session.CallSession, providerTransport, botTransport transport.Transport) error {
	for {
		msg, err := botTransport.Recv(ctx)
		if err != nil {
			return err
		}

		if msg.Binary {
			cs.AddAudioBytesOut(len(msg.Data))
			cs.SetBotSpeaking(true)

			converted, err := cs.ConvertOutbound(msg.Data)
			if err != nil {
				o.endSessionFatal(ctx, cs, providerTransport, botTransport, "codec_error")
				return err
			}

			select {
			case cs.OutboundAudioQueue <- converted:
			default:
			}

			frame := events.AudioFrame{
				Base:       events.NewBase(cs.CallID, 0),
				Codec:      string(cs.ProviderCodec),
				SampleRate: cs.ProviderSampleRate,
				Channels:   1,
				Data:       converted,
			}
			wire, ok := cs.Serializer.Serialize(frame)
			if !ok {
				continue
			}
			if err := providerTransport.Send(ctx, toTransportMessage(wire)); err != nil {
				return err
			}

			for _, name := range cs.PendingMarks() {
				if wire, ok := cs.Serializer.Serialize(events.Mark{Base: events.NewBase(cs.CallID, 0), Name: name}); ok {
					providerTransport.Send(ctx, toTransportMessage(wire))
				}
			}
			continue
		}

		ctrl, err := parseBotMessage(msg.Data)
		if err != nil {
			o.Logger.Warn("bot sent malformed control message", slog.Any("error", err))
			continue
		}
		switch ctrl.Type {
		case "stop":
			cs.End()
			if wire, ok := cs.Serializer.Serialize(events.CallEnded{Base: events.NewBase(cs.CallID, 0), Reason: ctrl.Reason}); ok {
				providerTransport.Send(ctx, toTransportMessage(wire))
			}
			return nil
		case "mark":
			cs.EnqueueMark(ctrl.Name)
		case "clear_audio":
			cs.ClearOutboundAudioQueue()
			if wire, ok := cs.Serializer.Serialize(events.ClearAudio{Base: events.NewBase(cs.CallID, 0)}); ok {
				providerTransport.Send(ctx, toTransportMessage(wire))
			}
		}
	}
}

// endSessionFatal marks the session ended on an unrecoverable codec
// error (spec §7: "Codec / unsupported codec: propagate as a
// fatal-to-this-call error; session ends with reason=codec_error").
func (o *Orchestrator) endSessionFatal(ctx context.Context, cs *session.CallSession, providerTransport, botTransport transport.Transport, reason string) {
	cs.End()
	if wire, ok := cs.Serializer.Serialize(events.CallEnded{Base: events.NewBase(cs.CallID, 0), Reason: reason}); ok {
		providerTransport.Send(ctx, toTransportMessage(wire))
	}
	botTransport.Send(ctx, transport.Message{Data: stopMessage(cs.CallID, reason)})
}

func toTransportMessage(w serializer.Wire) transport.Message {
	if w.IsText {
		return transport.Message{Binary: false, Data: []byte(w.Text)}
	}
	return transport.Message{Binary: true, Data: w.Binary}
}
