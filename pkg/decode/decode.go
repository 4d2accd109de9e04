// Package decode turns an MP3 byte stream into 16-bit little-endian stereo PCM.
package decode

import (
	"fmt"
	"io"

	gomp3 "github.com/hajimehoshi/go-mp3"
)

// BytesPerFrame is the size of one stereo sample pair in the PCM output.
const BytesPerFrame = 4

type Decoder struct {
	dec *gomp3.Decoder
}

// New reads enough of r to detect the stream format. r is only ever read
// forward; a live source is not scanned for its length even if it implements
// io.Seeker.
func New(r io.Reader) (*Decoder, error) {
	dec, err := gomp3.NewDecoder(readerOnly{r})
	if err != nil {
		return nil, fmt.Errorf("failed to create mp3 decoder: %w", err)
	}

	return &Decoder{dec: dec}, nil
}

// Read fills p with decoded PCM.
func (d *Decoder) Read(p []byte) (int, error) {
	return d.dec.Read(p)
}

func (d *Decoder) SampleRate() int {
	return d.dec.SampleRate()
}

// readerOnly hides every method but Read.
type readerOnly struct {
	r io.Reader
}

func (r readerOnly) Read(p []byte) (int, error) {
	return r.r.Read(p)
}
