package radio

import (
	"context"
	"io"
	"time"

	"github.com/zachfi/radiogo/pkg/mp3"
	"github.com/zachfi/radiogo/pkg/ring"
)

// Source is the byte stream handed to the decoder. It first replays the
// frame-aligned sync window, then reads live bytes from the buffer, waiting
// for them when the buffer is empty.
//
// Read returns 0 bytes only with an error: io.EOF once the session is over
// and every byte has been delivered, ErrStarved when nothing arrives within
// the read timeout.
type Source struct {
	buf    *ring.Buffer
	window *mp3.Window
	replay bool
	pos    int64

	ctx          context.Context
	live         func() bool
	producerDone <-chan struct{}

	poll    time.Duration
	timeout time.Duration
}

func newSource(c *Controller, s *session, window *mp3.Window) *Source {
	return &Source{
		buf:          c.buf,
		window:       window,
		replay:       window.Len() > 0,
		ctx:          s.ctx,
		live:         func() bool { return c.live(s) },
		producerDone: s.producerDone,
		poll:         c.cfg.ReadPoll,
		timeout:      c.cfg.ReadTimeout,
	}
}

func (s *Source) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if !s.live() {
		return 0, io.EOF
	}

	if s.replay {
		n := s.window.Read(p)
		if s.window.Exhausted() {
			s.replay = false
		}
		if n > 0 {
			s.pos += int64(n)
			return n, nil
		}
	}

	deadline := time.Now().Add(s.timeout)
	for {
		if n := s.buf.Read(p); n > 0 {
			s.pos += int64(n)
			return n, nil
		}

		select {
		case <-s.producerDone:
			// Drain whatever the producer left behind before ending.
			if n := s.buf.Read(p); n > 0 {
				s.pos += int64(n)
				return n, nil
			}
			return 0, io.EOF
		default:
		}

		if !s.live() {
			return 0, io.EOF
		}
		if time.Now().After(deadline) {
			return 0, ErrStarved
		}

		select {
		case <-s.ctx.Done():
			return 0, io.EOF
		case <-time.After(s.poll):
		}
	}
}

// Seek supports the two operations a decoder restarting its parse needs:
// seeking to 0 replays the sync window, and seeking to the current position
// reports it. Anything else fails with ErrNotSeekable.
func (s *Source) Seek(offset int64, whence int) (int64, error) {
	switch {
	case whence == io.SeekStart && offset == 0:
		s.window.Rewind()
		s.replay = s.window.Len() > 0
		s.pos = 0
		return 0, nil
	case whence == io.SeekCurrent && offset == 0,
		whence == io.SeekStart && offset == s.pos:
		return s.pos, nil
	}

	return s.pos, ErrNotSeekable
}
