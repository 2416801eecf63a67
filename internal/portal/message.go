// Package portal implements TCP stream tunneling over the router: an
// inlet accepts a local connection and pumps its bytes to a remote
// outlet through the router's mailboxes, and vice versa.
package portal

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// MessageTag discriminates the wire-encoded portal message variants.
type MessageTag uint8

const (
	TagPing MessageTag = iota + 1
	TagPong
	TagPayload
	TagDisconnect
)

func (t MessageTag) String() string {
	switch t {
	case TagPing:
		return "PING"
	case TagPong:
		return "PONG"
	case TagPayload:
		return "PAYLOAD"
	case TagDisconnect:
		return "DISCONNECT"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02X)", uint8(t))
	}
}

// Message is the portal message vocabulary: {Ping, Pong, Payload(bytes),
// Disconnect}. Ping/Pong/Disconnect carry no payload; only Payload does.
type Message struct {
	Tag     MessageTag
	Payload []byte
}

// Ping, Pong, and Disconnect are the zero-payload constructors.
func Ping() Message       { return Message{Tag: TagPing} }
func Pong() Message       { return Message{Tag: TagPong} }
func Disconnect() Message { return Message{Tag: TagDisconnect} }

// Payload wraps arbitrary tunneled bytes.
func Payload(b []byte) Message { return Message{Tag: TagPayload, Payload: b} }

// internalMessage is never decoded off the wire: it is how a receive
// processor tells its paired worker the stream has closed. Keeping it a
// distinct Go type (rather than a Message variant) means a malicious peer
// can never forge one by sending wire bytes.
type internalMessage struct {
	disconnect bool
}

// Encode writes m's wire form: a one-byte tag, and for Payload a
// big-endian uint32 length prefix followed by the payload bytes. This
// exact byte layout is this repository's own choice — the portal message
// vocabulary leaves the bit layout unspecified — documented here rather
// than implied.
func Encode(w io.Writer, m Message) error {
	if _, err := w.Write([]byte{byte(m.Tag)}); err != nil {
		return fmt.Errorf("portal: write tag: %w", err)
	}
	if m.Tag != TagPayload {
		return nil
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(m.Payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("portal: write payload length: %w", err)
	}
	if len(m.Payload) == 0 {
		return nil
	}
	if _, err := w.Write(m.Payload); err != nil {
		return fmt.Errorf("portal: write payload: %w", err)
	}
	return nil
}

// Decode reads one Message from r, blocking until a full frame (or EOF)
// arrives.
func Decode(r io.Reader) (Message, error) {
	var tagBuf [1]byte
	if _, err := io.ReadFull(r, tagBuf[:]); err != nil {
		return Message{}, err
	}
	tag := MessageTag(tagBuf[0])

	switch tag {
	case TagPing:
		return Ping(), nil
	case TagPong:
		return Pong(), nil
	case TagDisconnect:
		return Disconnect(), nil
	case TagPayload:
		var lenBuf [4]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return Message{}, fmt.Errorf("portal: read payload length: %w", err)
		}
		n := binary.BigEndian.Uint32(lenBuf[:])
		if n == 0 {
			return Payload(nil), nil
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return Message{}, fmt.Errorf("portal: read payload: %w", err)
		}
		return Payload(buf), nil
	default:
		return Message{}, fmt.Errorf("portal: unknown wire tag 0x%02X", tag)
	}
}

// EncodeToBytes is a convenience used by tests and by callers that need
// the framed bytes without an io.Writer at hand (e.g. to size a batch).
func EncodeToBytes(m Message) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
