package packet

import (
	"bytes"
	"errors"
	"testing"
)

func TestWriterReaderFieldOrder(t *testing.T) {
	buf := NewWriter().
		WriteUint32(7).
		WriteString("cart").
		WriteUint64(1 << 40).
		WriteBytes([]byte{1, 2, 3}).
		Bytes()

	r := NewReader(buf)
	if v, err := r.ReadUint32(); err != nil || v != 7 {
		t.Fatalf("expected uint32 7, got %d (%v)", v, err)
	}
	if v, err := r.ReadString(); err != nil || v != "cart" {
		t.Fatalf("expected string cart, got %q (%v)", v, err)
	}
	if v, err := r.ReadUint64(); err != nil || v != 1<<40 {
		t.Fatalf("expected uint64 1<<40, got %d (%v)", v, err)
	}
	if v, err := r.ReadBytes(); err != nil || !bytes.Equal(v, []byte{1, 2, 3}) {
		t.Fatalf("unexpected bytes %v (%v)", v, err)
	}
	if r.Remaining() != 0 {
		t.Fatalf("expected buffer fully consumed, %d bytes left", r.Remaining())
	}
}

func TestUint32IsLittleEndian(t *testing.T) {
	buf := NewWriter().WriteUint32(0x01020304).Bytes()
	if !bytes.Equal(buf, []byte{0x04, 0x03, 0x02, 0x01}) {
		t.Fatalf("unexpected encoding %x", buf)
	}
}

func TestReaderRejectsTruncatedInput(t *testing.T) {
	full := NewWriter().WriteString("hello").Bytes()
	cases := map[string][]byte{
		"empty":          nil,
		"prefix only":    full[:1],
		"short body":     full[:3],
		"bad varint":     {0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		"length too big": {0x10, 'a'},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewReader(input).ReadString()
			if !errors.Is(err, ErrShortBuffer) {
				t.Fatalf("expected ErrShortBuffer, got %v", err)
			}
		})
	}

	if _, err := NewReader([]byte{1, 2, 3}).ReadUint64(); !errors.Is(err, ErrShortBuffer) {
		t.Fatalf("expected ErrShortBuffer for short uint64, got %v", err)
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	env := Envelope{Sender: 42, Target: 9, Name: "correct-object", Payload: StringPayload("1:2")}
	decoded, err := DecodeEnvelope(env.Encode())
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.Sender != 42 || decoded.Target != 9 || decoded.Name != "correct-object" {
		t.Fatalf("unexpected envelope %+v", decoded)
	}
	value, err := ReadStringPayload(decoded.Payload)
	if err != nil || value != "1:2" {
		t.Fatalf("unexpected payload %q (%v)", value, err)
	}
}

func TestDecodeEnvelopeRejectsTrailingBytes(t *testing.T) {
	frame := append(Envelope{Name: "x"}.Encode(), 0x00)
	if _, err := DecodeEnvelope(frame); !errors.Is(err, ErrShortBuffer) {
		t.Fatalf("expected trailing bytes to be rejected, got %v", err)
	}
}

func TestReadStringPayloadEmpty(t *testing.T) {
	if _, err := ReadStringPayload(nil); !errors.Is(err, ErrShortBuffer) {
		t.Fatalf("expected empty payload to fail, got %v", err)
	}
}
