package radio

import (
	"errors"
	"io"
	"time"

	"github.com/zachfi/radiogo/pkg/mp3"
)

// pcmChunk is the decoder read size; 4096 bytes is 1024 stereo frames.
const pcmChunk = 4096

// consume waits for the prebuffer, aligns on the first MP3 frame and then
// feeds the decoder until the session ends.
func (c *Controller) consume(s *session) {
	logger := c.logger.With("generation", s.generation)

	if !c.prebuffer(s) {
		return
	}

	probe := make([]byte, c.cfg.SyncWindow)
	n := c.buf.Read(probe)
	window := mp3.NewWindow(probe[:n])
	if window.Offset < 0 {
		logger.Warn("no MP3 frame header in probe window, playing from its start", "probe", n)
	} else {
		logger.Debug("frame sync found", "offset", window.Offset)
	}

	if !c.setStateIfLive(s, StatePlaying) {
		return
	}
	logger.Info("prebuffer complete, starting playback")

	dec, err := c.decoders(newSource(c, s, window))
	if err != nil {
		logger.Error("failed to create decoder", "err", err)
		c.fail(s, err)
		return
	}

	ok, err := c.acquireSink(s, dec.SampleRate())
	if err != nil {
		logger.Error("failed to start audio sink", "err", err)
		c.fail(s, err)
		return
	}
	if !ok {
		return
	}
	defer c.releaseSink(s)

	var sp Spectrum
	pcm := make([]byte, pcmChunk)
	for c.live(s) {
		n, err := dec.Read(pcm)
		if n > 0 {
			computeSpectrum(pcm[:n], &sp)
			c.setSpectrum(s, &sp)

			if _, werr := c.sink.Write(pcm[:n]); werr != nil {
				if c.live(s) {
					logger.Error("audio sink write failed", "err", werr)
					c.fail(s, werr)
				}
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Warn("decoder stopped", "err", err)
				c.fail(s, err)
			}
			return
		}
	}
}

// prebuffer waits until the buffer holds the configured share of its
// capacity. It returns false if the session ends first.
func (c *Controller) prebuffer(s *session) bool {
	threshold := c.buf.Cap() * c.cfg.PrebufferPercent / 100

	for c.buf.Available() < threshold {
		if !c.live(s) {
			return false
		}

		select {
		case <-s.ctx.Done():
			return false
		case <-s.producerDone:
			// The producer failed or the stream ended before playback.
			return false
		case <-time.After(c.cfg.PrebufferPoll):
		}
	}

	return c.live(s)
}
