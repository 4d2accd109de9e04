// Package speaker plays PCM through the system audio device.
package speaker

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/ebitengine/oto/v3"
)

const channelCount = 2

var ErrNotStarted = errors.New("speaker not started")

// Speaker is an audio sink for 16-bit little-endian stereo PCM. Writes block
// while the device is behind, which paces the decoder.
type Speaker struct {
	logger *slog.Logger

	mtx    sync.Mutex
	ctx    *oto.Context
	rate   int
	player *oto.Player
	pw     *io.PipeWriter
	muted  bool
}

func New(logger *slog.Logger) *Speaker {
	return &Speaker{
		logger: logger.With("component", "speaker"),
		muted:  true,
	}
}

// Start opens a player for a stream at sampleRate. The device context is
// created on first use; a process can only hold one, so a later stream with a
// different rate plays at the first rate.
func (s *Speaker) Start(sampleRate int) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.ctx == nil {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: channelCount,
			Format:       oto.FormatSignedInt16LE,
		})
		if err != nil {
			return fmt.Errorf("failed to create audio context: %w", err)
		}
		<-ready
		s.ctx = ctx
		s.rate = sampleRate
	} else if sampleRate != s.rate {
		s.logger.Warn("sample rate differs from audio context", "stream", sampleRate, "device", s.rate)
	}

	s.stopLocked()

	pr, pw := io.Pipe()
	s.pw = pw
	s.player = s.ctx.NewPlayer(pr)
	s.applyVolumeLocked()
	s.player.Play()

	return nil
}

// Write queues PCM for playback.
func (s *Speaker) Write(p []byte) (int, error) {
	s.mtx.Lock()
	pw := s.pw
	s.mtx.Unlock()

	if pw == nil {
		return 0, ErrNotStarted
	}
	return pw.Write(p)
}

func (s *Speaker) SetMute(muted bool) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	s.muted = muted
	s.applyVolumeLocked()
}

// Stop closes the current player. Pending writes return io.ErrClosedPipe.
func (s *Speaker) Stop() {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	s.stopLocked()
}

func (s *Speaker) stopLocked() {
	if s.pw != nil {
		_ = s.pw.Close()
		s.pw = nil
	}
	if s.player != nil {
		if err := s.player.Close(); err != nil {
			s.logger.Debug("error closing player", "err", err)
		}
		s.player = nil
	}
}

func (s *Speaker) applyVolumeLocked() {
	if s.player == nil {
		return
	}
	if s.muted {
		s.player.SetVolume(0)
	} else {
		s.player.SetVolume(1)
	}
}
