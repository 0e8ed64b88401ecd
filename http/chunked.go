package http

import (
	"bytes"
	"fmt"
	"strconv"
)

// chunkedState is the decoder's state, the Go analogue of the source
// ChunkedResponse's internal phase enum (http.hpp's HttpClient inner class).
type chunkedState int

const (
	chunkedIdle chunkedState = iota
	chunkedReadingSize
	chunkedReadingChunk
	chunkedReadingTrailer
	chunkedDone
)

// chunkedDecoder incrementally decodes an RFC 7230 §4.1 chunked body from
// arbitrarily-fragmented input, feeding complete chunk data out as it
// becomes available. It never blocks: Feed consumes whatever a TCPChannel
// handed it this call and returns only an error for malformed input; the
// bytes decoded so far are collected with Decoded.
type chunkedDecoder struct {
	state       chunkedState
	buf         bytes.Buffer
	remaining   int64
	out         bytes.Buffer
	trailer     *Header
}

func newChunkedDecoder() *chunkedDecoder {
	return &chunkedDecoder{state: chunkedIdle, trailer: NewHeader()}
}

// Feed appends data to the decode buffer and advances the state machine as
// far as the buffered bytes allow.
func (d *chunkedDecoder) Feed(data []byte) error {
	d.buf.Write(data)

	for {
		switch d.state {
		case chunkedIdle:
			d.state = chunkedReadingSize

		case chunkedReadingSize:
			line, ok := d.readLine()
			if !ok {
				return nil
			}
			sizeStr := line
			if i := bytes.IndexByte(line, ';'); i >= 0 {
				sizeStr = line[:i]
			}
			size, err := strconv.ParseInt(string(bytes.TrimSpace(sizeStr)), 16, 64)
			if err != nil {
				return fmt.Errorf("evnet/http: invalid chunk size %q: %w", sizeStr, err)
			}
			d.remaining = size
			if size == 0 {
				d.state = chunkedReadingTrailer
			} else {
				d.state = chunkedReadingChunk
			}

		case chunkedReadingChunk:
			avail := int64(d.buf.Len())
			if avail == 0 {
				return nil
			}
			n := d.remaining
			if avail < n {
				n = avail
			}
			d.out.Write(d.buf.Next(int(n)))
			d.remaining -= n
			if d.remaining > 0 {
				return nil
			}
			// consume the trailing CRLF after chunk data
			if _, ok := d.readLine(); !ok {
				return nil
			}
			d.state = chunkedReadingSize

		case chunkedReadingTrailer:
			line, ok := d.readLine()
			if !ok {
				return nil
			}
			if len(line) == 0 {
				d.state = chunkedDone
				return nil
			}
			name, value, found := bytes.Cut(line, []byte(":"))
			if found {
				d.trailer.Add(string(bytes.TrimSpace(name)), string(bytes.TrimSpace(value)))
			}

		case chunkedDone:
			return nil
		}
	}
}

// readLine pops one CRLF-terminated line from buf, or returns ok=false if
// the buffer doesn't yet contain a full line.
func (d *chunkedDecoder) readLine() ([]byte, bool) {
	data := d.buf.Bytes()
	idx := bytes.Index(data, []byte("\r\n"))
	if idx < 0 {
		return nil, false
	}
	line := make([]byte, idx)
	copy(line, data[:idx])
	d.buf.Next(idx + 2)
	return line, true
}

// Done reports whether the terminating zero-size chunk and trailer have
// been consumed.
func (d *chunkedDecoder) Done() bool { return d.state == chunkedDone }

// Decoded drains and returns whatever chunk payload has been decoded so far.
func (d *chunkedDecoder) Decoded() []byte {
	out := make([]byte, d.out.Len())
	copy(out, d.out.Bytes())
	d.out.Reset()
	return out
}

// Trailer returns the trailing header fields parsed after the terminating
// chunk, populated only once Done reports true.
func (d *chunkedDecoder) Trailer() *Header { return d.trailer }
