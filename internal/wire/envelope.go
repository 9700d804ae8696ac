package wire

import (
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrDecode reports malformed envelope bytes. The connection carrying them
// is closed.
var ErrDecode = errors.New("malformed network envelope")

// NetworkEnvelope is the unit of transmission between peers: a message
// version stamp plus one payload variant. A nil Message marks an envelope
// whose kind this node does not know; such envelopes are skipped.
type NetworkEnvelope struct {
	MessageVersion MessageVersion
	Message        Message
}

// rawEnvelope is the on-wire shape: the payload is tagged with its kind so
// the decoder can pick the concrete type from the registry.
type rawEnvelope struct {
	MessageVersion int32              `msgpack:"message_version"`
	Kind           Kind               `msgpack:"kind"`
	Payload        msgpack.RawMessage `msgpack:"payload"`
}

var (
	_ msgpack.CustomEncoder = (*NetworkEnvelope)(nil)
	_ msgpack.CustomDecoder = (*NetworkEnvelope)(nil)
)

// EncodeMsgpack implements the codec for envelopes, including envelopes
// nested inside a BundleOfEnvelopes.
func (e *NetworkEnvelope) EncodeMsgpack(enc *msgpack.Encoder) error {
	if e.Message == nil {
		return errors.New("cannot encode envelope without message")
	}
	payload, err := msgpack.Marshal(e.Message)
	if err != nil {
		return err
	}
	return enc.Encode(rawEnvelope{
		MessageVersion: int32(e.MessageVersion),
		Kind:           e.Message.Kind(),
		Payload:        payload,
	})
}

// DecodeMsgpack reconstructs the concrete payload type from the kind tag.
// Unknown kinds leave Message nil rather than failing the whole frame.
func (e *NetworkEnvelope) DecodeMsgpack(dec *msgpack.Decoder) error {
	var raw rawEnvelope
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	e.MessageVersion = MessageVersion(raw.MessageVersion)
	ctor, ok := kindRegistry[raw.Kind]
	if !ok {
		e.Message = nil
		return nil
	}
	msg := ctor()
	if err := msgpack.Unmarshal(raw.Payload, msg); err != nil {
		return err
	}
	e.Message = msg
	return nil
}

// EncodeEnvelope serializes an envelope to its wire bytes, without the
// frame length prefix.
func EncodeEnvelope(e NetworkEnvelope) ([]byte, error) {
	b, err := msgpack.Marshal(&e)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return b, nil
}

// DecodeEnvelope parses one envelope from its wire bytes.
func DecodeEnvelope(b []byte) (NetworkEnvelope, error) {
	var e NetworkEnvelope
	if err := msgpack.Unmarshal(b, &e); err != nil {
		return NetworkEnvelope{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return e, nil
}
