package ws

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameEncodeDecodeRoundTrip(t *testing.T) {
	for _, size := range []int{0, 10, 125, 126, 1000, 70000} {
		payload := make([]byte, size)
		rand.New(rand.NewSource(int64(size))).Read(payload)

		f := NewBinaryFrame(payload)
		encoded, err := f.Encode()
		require.NoError(t, err)

		d := newDecoder()
		d.feed(encoded)
		decoded, ok, err := d.next()
		require.NoError(t, err)
		require.True(t, ok)

		assert.Equal(t, payload, decoded.Payload)
		assert.True(t, decoded.Fin)
		assert.Equal(t, OpBinary, decoded.OpCode)
	}
}

// TestFrameMaskingRoundTrip is testable property 6: a masked client frame
// carries the mask bit and decodes back to the original payload, and a
// server frame is encoded without the mask bit.
func TestFrameMaskingRoundTrip(t *testing.T) {
	payload := []byte("round trip payload")
	clientFrame := &Frame{Fin: true, OpCode: OpText, Masked: true, Payload: payload}

	encoded, err := clientFrame.Encode()
	require.NoError(t, err)

	// bit 7 of byte 1 (the mask bit) must be set for a client frame.
	assert.NotZero(t, encoded[1]&0x80)

	d := newDecoder()
	d.feed(encoded)
	decoded, ok, err := d.next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, payload, decoded.Payload, "server handler must see the unmasked payload unchanged")

	serverFrame := &Frame{Fin: true, OpCode: OpText, Masked: false, Payload: payload}
	serverEncoded, err := serverFrame.Encode()
	require.NoError(t, err)
	assert.Zero(t, serverEncoded[1]&0x80, "server-originated frames must never be masked")
}

func TestControlFrameRejectsOversizedPayload(t *testing.T) {
	f := &Frame{Fin: true, OpCode: OpPing, Payload: make([]byte, 126)}
	_, err := f.Encode()
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestDecoderRejectsOversizedControlFrame(t *testing.T) {
	// Hand-build a frame header claiming a 200-byte ping payload.
	header := []byte{0x80 | byte(OpPing), 126, 0, 200}
	d := newDecoder()
	d.feed(header)
	_, _, err := d.next()
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestCloseFrameStatusCode(t *testing.T) {
	f := NewCloseFrame(StatusNormalClosure, "bye")
	code, ok := f.CloseStatusCode()
	require.True(t, ok)
	assert.EqualValues(t, StatusNormalClosure, code)
}

func TestDecoderIncrementalFeed(t *testing.T) {
	f := NewTextFrame("hello")
	encoded, err := f.Encode()
	require.NoError(t, err)

	d := newDecoder()
	var decoded *Frame
	for i := 0; i < len(encoded); i++ {
		d.feed(encoded[i : i+1])
		got, ok, err := d.next()
		require.NoError(t, err)
		if ok {
			decoded = got
		}
	}
	require.NotNil(t, decoded)
	assert.Equal(t, "hello", string(decoded.Payload))
}
