package submission

import (
	"bytes"
	"fmt"
)

// DefaultMaxEventSize caps the bytes buffered while waiting for an event delimiter.
const DefaultMaxEventSize = 1 << 20

var (
	eventDelimiter = []byte("\n\n")
	dataMarker     = []byte("data:")
)

// eventDecoder splits a byte stream into event blocks separated by a blank line. Partial
// blocks stay buffered until the next chunk completes them.
type eventDecoder struct {
	buf     []byte
	maxSize int
}

// feed appends chunk and returns every complete, non-empty block. Carriage returns are
// dropped so CRLF streams split the same way as LF streams.
func (d *eventDecoder) feed(chunk []byte) ([][]byte, error) {
	for _, b := range chunk {
		if b != '\r' {
			d.buf = append(d.buf, b)
		}
	}

	var blocks [][]byte
	for {
		i := bytes.Index(d.buf, eventDelimiter)
		if i < 0 {
			break
		}
		block := bytes.Clone(d.buf[:i])
		d.buf = d.buf[i+len(eventDelimiter):]
		if len(bytes.TrimSpace(block)) > 0 {
			blocks = append(blocks, block)
		}
	}

	if d.maxSize > 0 && len(d.buf) > d.maxSize {
		return blocks, fmt.Errorf("event exceeds %d bytes without a delimiter", d.maxSize)
	}
	return blocks, nil
}

// rest returns whatever is buffered after the last delimiter.
func (d *eventDecoder) rest() []byte {
	if len(bytes.TrimSpace(d.buf)) == 0 {
		return nil
	}
	return d.buf
}

// eventPayload joins the data lines of a block. Comment lines and other fields are
// ignored. It reports false when the block carries no data line.
func eventPayload(block []byte) ([]byte, bool) {
	var parts [][]byte
	for _, line := range bytes.Split(block, []byte("\n")) {
		if !bytes.HasPrefix(line, dataMarker) {
			continue
		}
		value := line[len(dataMarker):]
		value = bytes.TrimPrefix(value, []byte(" "))
		parts = append(parts, value)
	}
	if len(parts) == 0 {
		return nil, false
	}
	return bytes.Join(parts, []byte("\n")), true
}
