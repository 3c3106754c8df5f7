// Package serializer translates between a telephony provider's
// proprietary wire protocol and VoxBridge's canonical event model. Each
// concrete serializer is a stateful object keyed to a single provider
// connection; its private state is strictly limited to the
// session-identifying fields the wire protocol assigns after handshake
// (stream SID, conversation ID, channel UUID, ...). Serializers perform
// no I/O: they are pure translators the bridge orchestrator drives.
package serializer

import (
	"fmt"
	"sort"
	"sync"

	"github.com/birddigital/voxbridge/codec"
	"github.com/birddigital/voxbridge/events"
)

// Wire is the payload a serializer consumes or produces. Exactly one of
// Binary or Text is meaningful, mirroring the WebSocket binary/text
// distinction the transport layer preserves.
type Wire struct {
	Binary []byte
	Text   string
	IsText bool
}

// BinaryWire builds a binary Wire value.
func BinaryWire(data []byte) Wire { return Wire{Binary: data} }

// TextWire builds a text Wire value.
func TextWire(s string) Wire { return Wire{Text: s, IsText: true} }

// Serializer is the contract every provider-specific translator
// implements. serialize returns ok=false when an event type has no
// outbound analogue for that provider (e.g. HoldStarted is not sendable
// to Twilio) — the orchestrator then sends nothing.
type Serializer interface {
	Name() string
	NativeCodec() codec.Codec
	NativeSampleRate() int

	Deserialize(wire Wire) ([]events.Event, error)
	Serialize(ev events.Event) (Wire, bool)
	HandshakeResponse(first Wire) (Wire, bool)
}

// Factory constructs a fresh Serializer instance for one connection.
// Serializers are stateful per connection, so the registry hands out a
// constructor rather than a shared instance.
type Factory func() Serializer

// Registry maps provider name -> factory. Registration is
// runtime-extensible; unknown provider names fail construction with a
// sorted list of available names, matching the Python original's
// registry error message.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry builds a Registry with the eight built-in serializers
// registered.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register("twilio", func() Serializer { return NewTwilioSerializer() })
	r.Register("genesys", func() Serializer { return NewGenesysSerializer() })
	r.Register("asterisk", func() Serializer { return NewAsteriskSerializer() })
	r.Register("freeswitch", func() Serializer { return NewFreeSWITCHSerializer() })
	r.Register("amazon_connect", func() Serializer { return NewAmazonConnectSerializer() })
	r.Register("avaya", func() Serializer { return NewAvayaSerializer() })
	r.Register("cisco", func() Serializer { return NewCiscoSerializer() })
	r.Register("generic", func() Serializer { return NewGenericSerializer(codec.PCM16, 16000) })
	return r
}

// Register adds or replaces a factory under name.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Create builds a new Serializer instance for the named provider.
func (r *Registry) Create(name string) (Serializer, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("serializer: unknown provider %q (available: %s)", name, r.availableString())
	}
	return f(), nil
}

// Available lists the registered provider names, sorted.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) availableString() string {
	names := r.Available()
	out := ""
	for i, n := range names {
		if i > 0 {
			out += ", "
		}
		out += n
	}
	return out
}
