package radio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/zachfi/zkit/pkg/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zachfi/radiogo/pkg/shoutcast"
)

// errStale ends a producer whose session has been superseded.
var errStale = errors.New("stale session")

// produce runs one HTTP connection for s. A failure while s is live moves the
// controller to Error; a stop or a newer session ends it quietly.
func (c *Controller) produce(s *session) {
	ctx, span := c.tracer.Start(s.ctx, "radio.produce", trace.WithAttributes(
		attribute.String("url", s.url),
		attribute.Int64("generation", int64(s.generation)),
	))

	logger := c.logger.With("generation", s.generation)

	err := c.stream(ctx, s, logger)
	switch {
	case errors.Is(err, errStale), !c.live(s):
		err = nil
	case err == nil:
		err = ErrStreamEnded
	}

	if err != nil {
		c.fail(s, err)
	}
	_ = tracing.ErrHandler(span, err, "stream failed", logger)
}

func (c *Controller) stream(ctx context.Context, s *session, logger *slog.Logger) error {
	stream, err := c.client.Open(ctx, s.url)
	if err != nil {
		return err
	}
	defer stream.Close()

	h := stream.Header
	c.updateMetadata(s, func(m *Metadata) {
		if h.Name != "" {
			m.Station = h.Name
		}
		m.Bitrate = h.Bitrate
		m.Genre = h.Genre
		m.Description = h.Description
	})
	logger.Info("connected", "url", stream.URL, "name", h.Name, "bitrate", h.Bitrate, "metaint", h.MetaInt)

	station := h.Name
	if station == "" {
		station = s.station
	}

	var rec *recording
	if c.recorder != nil {
		rec = c.recorder.Begin(station)
		defer rec.Close()
	}

	w := &bufferWriter{c: c, s: s, rec: rec, logger: logger}
	ex := shoutcast.NewExtractor(h.MetaInt, w, func(m *shoutcast.Metadata) {
		c.onMetadata(s, m, rec, logger)
	}, logger)

	for chunk, err := range stream.Chunks() {
		if err != nil {
			return fmt.Errorf("failed to read stream: %w", err)
		}
		if !c.live(s) {
			c.metrics.staleChunks.Inc()
			return errStale
		}

		split := ex.SplitBlocks()
		if _, err := ex.Write(chunk); err != nil {
			return err
		}
		if ex.SplitBlocks() > split {
			c.metrics.splitMetadata.Inc()
		}

		c.metrics.bufferFill.Set(float64(c.buf.Available()) / float64(c.buf.Cap()))
	}

	return nil
}

func (c *Controller) onMetadata(s *session, m *shoutcast.Metadata, rec *recording, logger *slog.Logger) {
	if !c.live(s) {
		return
	}

	c.updateMetadata(s, func(meta *Metadata) {
		meta.Title = m.StreamTitle
		meta.StreamURL = m.StreamURL
	})
	c.metrics.metadataUpdates.Inc()
	logger.Info("now playing", "title", m.StreamTitle)

	if rec != nil {
		rec.Track(m.StreamTitle)
	}
}

// bufferWriter receives the audio bytes the extractor separates out.
type bufferWriter struct {
	c      *Controller
	s      *session
	rec    *recording
	logger *slog.Logger
}

func (w *bufferWriter) Write(p []byte) (int, error) {
	c := w.c

	c.gate.RLock()
	if !c.live(w.s) {
		c.gate.RUnlock()
		c.metrics.staleChunks.Inc()
		return 0, errStale
	}
	n := c.buf.Write(p)
	c.gate.RUnlock()

	c.metrics.receivedBytes.Add(float64(len(p)))
	if dropped := len(p) - n; dropped > 0 {
		c.metrics.droppedBytes.Add(float64(dropped))
		c.overflowLog.Do(func() {
			w.logger.Warn("buffer full, dropping audio", "dropped", dropped, "capacity", c.buf.Cap())
		})
	}

	if w.rec != nil {
		w.rec.Write(p)
	}

	// Truncation is not an error for the extractor.
	return len(p), nil
}
