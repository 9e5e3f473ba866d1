package upstream

import "bytes"

var dataPrefix = []byte("data:")

// FrameBuffer reassembles raw network chunks into complete wire frames.
// The upstream framing is newline-delimited SSE data lines; a chunk may end
// mid-line (and mid-rune), so the unterminated tail is carried forward as
// raw bytes between Feed calls. Bytes only become a frame once the full
// line is held, which also keeps multi-byte sequences intact.
type FrameBuffer struct {
	buf []byte
}

// Feed appends chunk to the buffer and returns every complete frame now
// available, in order. A frame is one line with the "data:" prefix
// stripped; blank lines and lines without the prefix are filtered out.
// Complete frames are never dropped, reordered, or held back.
func (b *FrameBuffer) Feed(chunk []byte) [][]byte {
	b.buf = append(b.buf, chunk...)

	var frames [][]byte
	for {
		idx := bytes.IndexByte(b.buf, '\n')
		if idx == -1 {
			// Incomplete trailing line stays buffered for the next Feed.
			break
		}

		line := bytes.TrimRight(b.buf[:idx], "\r")
		b.buf = b.buf[idx+1:]

		payload, ok := framePayload(line)
		if !ok {
			continue
		}

		// Copy out: the backing array is about to be reused.
		frame := make([]byte, len(payload))
		copy(frame, payload)
		frames = append(frames, frame)
	}

	// Reset the backing array once fully drained so a long-lived session
	// does not pin the largest chunk ever seen.
	if len(b.buf) == 0 {
		b.buf = nil
	}

	return frames
}

// Pending reports how many unterminated bytes are buffered.
func (b *FrameBuffer) Pending() int {
	return len(b.buf)
}

// framePayload strips the SSE data prefix. Lines that are empty or carry a
// different field name are filtered, not errors.
func framePayload(line []byte) ([]byte, bool) {
	if len(line) == 0 {
		return nil, false
	}
	if !bytes.HasPrefix(line, dataPrefix) {
		return nil, false
	}
	payload := bytes.TrimSpace(line[len(dataPrefix):])
	if len(payload) == 0 {
		return nil, false
	}
	return payload, true
}
