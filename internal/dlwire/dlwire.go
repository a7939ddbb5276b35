// Package dlwire defines the device-link datagram framing. The original DS
// wire format is proprietary and out of scope (§6 "specified as opaque for
// this core"); this package makes its own choice, decided in SPEC_FULL.md §E.4:
// zero or more [opcode:1][length:uint16 BE][payload] records concatenated
// into one datagram. The only hard requirement is the round-trip property
// in §8: decompose(compose(xs)) == xs.
package dlwire

import (
	"encoding/binary"
	"fmt"

	"github.com/il2fb-go/airbridge/internal/airerr"
)

// Message is one request or answer record.
type Message struct {
	Opcode  byte
	Payload []byte
}

const headerLen = 3 // opcode (1) + length (2)

// Compose concatenates messages into a single datagram payload.
func Compose(msgs []Message) []byte {
	if len(msgs) == 0 {
		return nil
	}
	size := 0
	for _, m := range msgs {
		size += headerLen + len(m.Payload)
	}
	buf := make([]byte, 0, size)
	for _, m := range msgs {
		var hdr [headerLen]byte
		hdr[0] = m.Opcode
		binary.BigEndian.PutUint16(hdr[1:], uint16(len(m.Payload)))
		buf = append(buf, hdr[:]...)
		buf = append(buf, m.Payload...)
	}
	return buf
}

// Decompose splits a datagram payload back into its constituent messages.
// An empty input yields a nil slice (§8 boundary behavior: empty decompose
// input -> send_messages returns [] and no reply is sent).
func Decompose(data []byte) ([]Message, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var out []Message
	for len(data) > 0 {
		if len(data) < headerLen {
			return nil, fmt.Errorf("dlwire: truncated header: %w", airerr.ErrBadInput)
		}
		opcode := data[0]
		length := binary.BigEndian.Uint16(data[1:headerLen])
		data = data[headerLen:]
		if int(length) > len(data) {
			return nil, fmt.Errorf("dlwire: truncated payload: %w", airerr.ErrBadInput)
		}
		payload := make([]byte, length)
		copy(payload, data[:length])
		data = data[length:]
		out = append(out, Message{Opcode: opcode, Payload: payload})
	}
	return out, nil
}

// ComposeAnswer is an alias kept for symmetry with the source's naming
// (compose_answer); answers and requests share the same framing.
func ComposeAnswer(msgs []Message) []byte { return Compose(msgs) }

// DecomposeData is an alias kept for symmetry with the source's naming
// (decompose_data).
func DecomposeData(data []byte) ([]Message, error) { return Decompose(data) }
