package shoutcast

import (
	"io"
	"log/slog"
)

// Extractor separates ICY metadata from audio in a response body. Chunks are
// passed to Write in arrival order; only audio bytes reach the underlying
// writer.
//
// A metadata block that straddles two chunks is skipped over correctly but its
// contents are not reassembled.
type Extractor struct {
	metaint   int
	untilMeta int // audio bytes left before the next length byte
	skip      int // bytes of a split metadata block still to discard

	audio      io.Writer
	onMetadata MetadataCallbackFunc
	logger     *slog.Logger

	metadata *Metadata
	split    int
}

// NewExtractor returns an Extractor for a stream with the given icy-metaint.
// A metaint of 0 disables extraction and every byte is treated as audio.
func NewExtractor(metaint int, audio io.Writer, onMetadata MetadataCallbackFunc, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Extractor{
		metaint:    metaint,
		untilMeta:  metaint,
		audio:      audio,
		onMetadata: onMetadata,
		logger:     logger,
	}
}

// Write consumes one network chunk.
func (e *Extractor) Write(p []byte) (int, error) {
	if e.metaint <= 0 {
		return e.audio.Write(p)
	}

	total := len(p)
	for len(p) > 0 {
		switch {
		case e.skip > 0:
			n := min(e.skip, len(p))
			e.skip -= n
			p = p[n:]

		case e.untilMeta > 0:
			n := min(e.untilMeta, len(p))
			if _, err := e.audio.Write(p[:n]); err != nil {
				return total - len(p), err
			}
			e.untilMeta -= n
			p = p[n:]

		default:
			blockLen := int(p[0]) * 16
			p = p[1:]
			e.untilMeta = e.metaint

			if blockLen == 0 {
				continue
			}
			if blockLen > len(p) {
				e.skip = blockLen - len(p)
				e.split++
				e.logger.Warn("metadata block spans chunk boundary, dropping", "len", blockLen, "have", len(p))
				p = nil
				continue
			}

			e.handleBlock(p[:blockLen])
			p = p[blockLen:]
		}
	}

	return total, nil
}

func (e *Extractor) handleBlock(block []byte) {
	m := NewMetadata(block)
	if m.Equals(e.metadata) {
		return
	}
	e.metadata = m
	if e.onMetadata != nil {
		e.onMetadata(m)
	}
}

// Metadata returns the most recent block seen, or nil.
func (e *Extractor) Metadata() *Metadata {
	return e.metadata
}

// SplitBlocks returns how many metadata blocks were dropped because they
// crossed a chunk boundary.
func (e *Extractor) SplitBlocks() int {
	return e.split
}
