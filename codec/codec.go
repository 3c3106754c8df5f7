// Package codec implements the G.711 mu-law/A-law codecs, PCM16
// passthrough, and the linear-interpolation resampler that together form
// VoxBridge's audio conversion engine. All conversions route through
// PCM16 as the canonical intermediate; the Registry stores N encoders and
// N decoders rather than N-squared direct converters.
package codec

import "fmt"

// Codec is the closed set of audio codecs the registry understands.
type Codec string

const (
	Mulaw Codec = "mulaw"
	Alaw  Codec = "alaw"
	PCM16 Codec = "pcm16"
	Opus  Codec = "opus"
)

// UnsupportedCodec is returned when a conversion references a codec the
// registry has no encoder/decoder for (Opus, when unavailable).
type UnsupportedCodec struct {
	Codec Codec
}

func (e *UnsupportedCodec) Error() string {
	return fmt.Sprintf("codec: unsupported codec %q", e.Codec)
}

// Decoder converts wire bytes in a codec's native encoding to PCM16.
type Decoder func(data []byte) []byte

// Encoder converts PCM16 bytes to a codec's native wire encoding.
type Encoder func(pcm16 []byte) []byte

// Registry holds the decoders and encoders for every supported codec.
// It is built once at startup (NewRegistry) and is read-only thereafter;
// registering a codec after any session has been created is not
// supported (see spec.md's "Global mutable state" design note).
type Registry struct {
	decoders map[Codec]Decoder
	encoders map[Codec]Encoder
}

// NewRegistry builds a Registry with the built-in mu-law, A-law, and
// PCM16 codecs registered. Opus is intentionally absent: no pure-Go
// implementation exists in the reference corpus, so conversions to/from
// Opus fail with UnsupportedCodec per spec.md's contract for an
// unavailable codec.
func NewRegistry() *Registry {
	r := &Registry{
		decoders: make(map[Codec]Decoder, 4),
		encoders: make(map[Codec]Encoder, 4),
	}
	r.decoders[Mulaw] = decodeMulawBuffer
	r.encoders[Mulaw] = encodeMulawBuffer
	r.decoders[Alaw] = decodeAlawBuffer
	r.encoders[Alaw] = encodeAlawBuffer
	r.decoders[PCM16] = func(data []byte) []byte { return data }
	r.encoders[PCM16] = func(pcm16 []byte) []byte { return pcm16 }
	return r
}

// SupportedCodecs reports the codecs this registry can decode and encode.
func (r *Registry) SupportedCodecs() []Codec {
	out := make([]Codec, 0, len(r.decoders))
	for c := range r.decoders {
		out = append(out, c)
	}
	return out
}

// Decode converts data from the given codec to PCM16 bytes.
func (r *Registry) Decode(data []byte, c Codec) ([]byte, error) {
	dec, ok := r.decoders[c]
	if !ok {
		return nil, &UnsupportedCodec{Codec: c}
	}
	return dec(data), nil
}

// Encode converts PCM16 bytes to the given codec's wire encoding.
func (r *Registry) Encode(pcm16 []byte, c Codec) ([]byte, error) {
	enc, ok := r.encoders[c]
	if !ok {
		return nil, &UnsupportedCodec{Codec: c}
	}
	return enc(pcm16), nil
}

// Convert transcodes data from one codec to another via the PCM16
// intermediate. Convert(x, c, c) returns x unchanged without any
// decode/encode round trip.
func (r *Registry) Convert(data []byte, from, to Codec) ([]byte, error) {
	if from == to {
		return data, nil
	}
	pcm, err := r.Decode(data, from)
	if err != nil {
		return nil, err
	}
	return r.Encode(pcm, to)
}
