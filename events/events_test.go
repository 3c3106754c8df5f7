package events

import "testing"

func TestEventTypeDispatch(t *testing.T) {
	cases := []struct {
		name string
		ev   Event
		want Type
	}{
		{"audio frame", AudioFrame{Base: NewBase("c1", 1.5), Codec: "pcm16"}, TypeAudioFrame},
		{"call started", CallStarted{Base: NewBase("c1", 0)}, TypeCallStarted},
		{"dtmf", NewDTMFReceived("c1", "5"), TypeDTMFReceived},
		{"barge in", BargeIn{Base: NewBase("c1", 0), AudioEnergy: 900}, TypeBargeIn},
		{"mark", Mark{Base: NewBase("c1", 0), Name: "m1"}, TypeMark},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.ev.Type(); got != c.want {
				t.Errorf("Type() = %q, want %q", got, c.want)
			}
			if got := c.ev.GetCallID(); got != "c1" {
				t.Errorf("GetCallID() = %q, want c1", got)
			}
		})
	}
}

func TestDTMFDefaults(t *testing.T) {
	d := NewDTMFReceived("call-1", "0")
	if d.DurationMs != 250 {
		t.Errorf("DurationMs = %d, want 250", d.DurationMs)
	}
}

func TestTransferRequestedDefaults(t *testing.T) {
	tr := NewTransferRequested("call-1", "+15551234567")
	if tr.TransferType != TransferBlind {
		t.Errorf("TransferType = %q, want blind", tr.TransferType)
	}
}
