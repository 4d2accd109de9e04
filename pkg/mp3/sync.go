// Package mp3 locates MPEG audio frame boundaries in a live byte stream.
package mp3

// DefaultProbeSize is how many bytes are captured when looking for the first
// frame after a stream is joined.
const DefaultProbeSize = 4 * 1024

// headerLen is the number of bytes needed to validate a frame header.
const headerLen = 3

// ValidHeader reports whether b starts with a plausible MPEG audio frame
// header: an 11-bit sync word, non-reserved version and layer, a bitrate index
// that is neither free nor bad, and a non-reserved sample rate index.
func ValidHeader(b []byte) bool {
	if len(b) < headerLen {
		return false
	}
	if b[0] != 0xFF || b[1]&0xE0 != 0xE0 {
		return false
	}

	version := (b[1] >> 3) & 0x03
	layer := (b[1] >> 1) & 0x03
	bitrate := (b[2] >> 4) & 0x0F
	sampleRate := (b[2] >> 2) & 0x03

	switch {
	case version == 0x01:
		return false
	case layer == 0x00:
		return false
	case bitrate == 0x00 || bitrate == 0x0F:
		return false
	case sampleRate == 0x03:
		return false
	}

	return true
}

// FindFrameSync returns the offset of the first valid frame header in data,
// or -1 if there is none.
func FindFrameSync(data []byte) int {
	for i := 0; i+headerLen <= len(data); i++ {
		if ValidHeader(data[i:]) {
			return i
		}
	}
	return -1
}

// Window holds the first aligned audio bytes of a stream so a decoder can read
// them for format detection and then see them again from the start.
type Window struct {
	data []byte
	pos  int

	// Offset is where the frame header was found in the probe, or -1 when
	// none was found and the whole probe is kept.
	Offset int
}

// NewWindow scans probe for the first frame header and keeps the bytes from
// that point on. Without a header the entire probe is kept so the pipeline is
// never held up by a missing sync word.
func NewWindow(probe []byte) *Window {
	offset := FindFrameSync(probe)

	start := offset
	if start < 0 {
		start = 0
	}

	data := make([]byte, len(probe)-start)
	copy(data, probe[start:])

	return &Window{data: data, Offset: offset}
}

// Read copies unread window bytes into p.
func (w *Window) Read(p []byte) int {
	n := copy(p, w.data[w.pos:])
	w.pos += n
	return n
}

// Rewind restarts replay from the first aligned byte.
func (w *Window) Rewind() {
	w.pos = 0
}

// Exhausted reports whether every window byte has been read since the last
// rewind.
func (w *Window) Exhausted() bool {
	return w.pos >= len(w.data)
}

// Len returns the number of bytes held by the window.
func (w *Window) Len() int {
	return len(w.data)
}

// Bytes returns the window contents. The slice must not be modified.
func (w *Window) Bytes() []byte {
	return w.data
}
