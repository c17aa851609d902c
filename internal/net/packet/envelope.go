package packet

import "fmt"

// Envelope is one routed command on the wire.
type Envelope struct {
	Sender  uint64
	Target  uint64
	Name    string
	Payload []byte
}

// Encode serializes the envelope as sender, target, name, payload.
func (e Envelope) Encode() []byte {
	return NewWriter().
		WriteUint64(e.Sender).
		WriteUint64(e.Target).
		WriteString(e.Name).
		WriteBytes(e.Payload).
		Bytes()
}

// DecodeEnvelope parses a frame produced by Envelope.Encode.
func DecodeEnvelope(frame []byte) (Envelope, error) {
	var env Envelope
	r := NewReader(frame)
	var err error
	if env.Sender, err = r.ReadUint64(); err != nil {
		return Envelope{}, err
	}
	if env.Target, err = r.ReadUint64(); err != nil {
		return Envelope{}, err
	}
	if env.Name, err = r.ReadString(); err != nil {
		return Envelope{}, err
	}
	if env.Payload, err = r.ReadBytes(); err != nil {
		return Envelope{}, err
	}
	if r.Remaining() != 0 {
		return Envelope{}, fmt.Errorf("%w: %d trailing bytes", ErrShortBuffer, r.Remaining())
	}
	return env, nil
}

// StringPayload encodes a payload holding a single string field.
func StringPayload(v string) []byte {
	return NewWriter().WriteString(v).Bytes()
}

// ReadStringPayload decodes a payload holding exactly one string field.
func ReadStringPayload(payload []byte) (string, error) {
	r := NewReader(payload)
	v, err := r.ReadString()
	if err != nil {
		return "", err
	}
	if r.Remaining() != 0 {
		return "", fmt.Errorf("%w: %d trailing bytes", ErrShortBuffer, r.Remaining())
	}
	return v, nil
}
