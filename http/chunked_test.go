package http

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeAll(t *testing.T, data []byte) []byte {
	t.Helper()
	d := newChunkedDecoder()
	require.NoError(t, d.Feed(data))
	require.True(t, d.Done())
	return d.Decoded()
}

func TestChunkedDecoderBasic(t *testing.T) {
	raw := []byte("5\r\nhello\r\n6\r\n world\r\n0\r\n\r\n")
	got := decodeAll(t, raw)
	assert.Equal(t, "hello world", string(got))
}

func TestChunkedDecoderFragmentedFeed(t *testing.T) {
	raw := []byte("5\r\nhello\r\n6\r\n world\r\n0\r\n\r\n")
	d := newChunkedDecoder()
	var out []byte
	for i := 0; i < len(raw); i++ {
		require.NoError(t, d.Feed(raw[i:i+1]))
		out = append(out, d.Decoded()...)
	}
	assert.True(t, d.Done())
	assert.Equal(t, "hello world", string(out))
}

func TestChunkedDecoderTrailer(t *testing.T) {
	raw := []byte("3\r\nabc\r\n0\r\nX-Trailer: value\r\n\r\n")
	d := newChunkedDecoder()
	require.NoError(t, d.Feed(raw))
	require.True(t, d.Done())
	assert.Equal(t, "abc", string(d.Decoded()))
	assert.Equal(t, "value", d.Trailer().Get("X-Trailer"))
}

func TestChunkedDecoderRejectsBadSize(t *testing.T) {
	d := newChunkedDecoder()
	err := d.Feed([]byte("zz\r\n"))
	assert.Error(t, err)
}

// encodeChunked is the round-trip encoder half of testable property 4: a
// minimal chunked encoder used only to verify the decoder inverts it.
func encodeChunked(data []byte, chunkSize int) []byte {
	var b bytes.Buffer
	for len(data) > 0 {
		n := chunkSize
		if n > len(data) {
			n = len(data)
		}
		fmtHex := []byte(hexLen(n))
		b.Write(fmtHex)
		b.WriteString("\r\n")
		b.Write(data[:n])
		b.WriteString("\r\n")
		data = data[n:]
	}
	b.WriteString("0\r\n\r\n")
	return b.Bytes()
}

func hexLen(n int) string {
	const hexDigits = "0123456789abcdef"
	if n == 0 {
		return "0"
	}
	var buf []byte
	for n > 0 {
		buf = append([]byte{hexDigits[n%16]}, buf...)
		n /= 16
	}
	return string(buf)
}

func TestChunkedRoundTripRandomPayload(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for _, size := range []int{0, 1, 17, 4096, 70000} {
		payload := make([]byte, size)
		rng.Read(payload)

		encoded := encodeChunked(payload, 4096)
		got := decodeAll(t, encoded)
		assert.Equal(t, payload, got, "chunked round trip must be exact for size %d", size)
	}
}
