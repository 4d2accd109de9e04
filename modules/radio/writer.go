package radio

import (
	"io"
	"sync"
	"sync/atomic"
)

// recEvent is either a run of audio bytes or the start of a new track.
type recEvent struct {
	data  []byte
	title string
	track bool
}

// ChannelWriter hands audio to a recorder goroutine without ever blocking the
// producer. Events that do not fit in the channel are dropped.
type ChannelWriter struct {
	sync.Mutex
	dataChan chan recEvent
	closed   bool
	dropped  atomic.Int64
}

func NewChannelWriter(depth int) *ChannelWriter {
	return &ChannelWriter{
		dataChan: make(chan recEvent, depth),
	}
}

// Write queues a copy of p; the caller may reuse p immediately.
func (cw *ChannelWriter) Write(p []byte) (n int, err error) {
	data := make([]byte, len(p))
	copy(data, p)

	if !cw.send(recEvent{data: data}) {
		if cw.isClosed() {
			return 0, io.ErrClosedPipe
		}
		cw.dropped.Add(int64(len(p)))
	}

	return len(p), nil
}

// Track marks the start of a new track. It reports false if the marker could
// not be queued.
func (cw *ChannelWriter) Track(title string) bool {
	return cw.send(recEvent{title: title, track: true})
}

func (cw *ChannelWriter) send(ev recEvent) bool {
	cw.Lock()
	defer cw.Unlock()

	if cw.closed {
		return false
	}

	select {
	case cw.dataChan <- ev:
		return true
	default:
		return false
	}
}

func (cw *ChannelWriter) isClosed() bool {
	cw.Lock()
	defer cw.Unlock()

	return cw.closed
}

// Dropped returns the number of audio bytes discarded because the channel
// was full.
func (cw *ChannelWriter) Dropped() int64 {
	return cw.dropped.Load()
}

func (cw *ChannelWriter) Close() error {
	cw.Lock()
	defer cw.Unlock()

	if !cw.closed {
		close(cw.dataChan)
		cw.closed = true
	}

	return nil
}
