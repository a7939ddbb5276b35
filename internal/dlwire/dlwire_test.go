package dlwire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposeDecompose_RoundTrip(t *testing.T) {
	msgs := []Message{
		{Opcode: 0x01, Payload: []byte{}},
		{Opcode: 0x04, Payload: []byte("some positions payload")},
		{Opcode: 0x02, Payload: []byte{0xde, 0xad, 0xbe, 0xef}},
	}

	out, err := Decompose(Compose(msgs))
	require.NoError(t, err)
	require.Len(t, out, len(msgs))
	for i, m := range msgs {
		assert.Equal(t, m.Opcode, out[i].Opcode)
		assert.Equal(t, m.Payload, out[i].Payload)
	}
}

func TestCompose_EmptyInput(t *testing.T) {
	assert.Nil(t, Compose(nil))
	assert.Nil(t, Compose([]Message{}))
}

func TestDecompose_EmptyInput(t *testing.T) {
	out, err := Decompose(nil)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestDecompose_TruncatedHeader(t *testing.T) {
	_, err := Decompose([]byte{0x01, 0x00})
	assert.Error(t, err)
}

func TestDecompose_TruncatedPayload(t *testing.T) {
	data := []byte{0x01, 0x00, 0x05, 'a', 'b'}
	_, err := Decompose(data)
	assert.Error(t, err)
}

func TestComposeAnswerDecomposeData_Aliases(t *testing.T) {
	msgs := []Message{{Opcode: 0x03, Payload: []byte("x")}}
	out, err := DecomposeData(ComposeAnswer(msgs))
	require.NoError(t, err)
	assert.Equal(t, msgs, out)
}
