package radio

import (
	"context"
	"errors"
)

var (
	// ErrNotSeekable is returned for any seek a live stream cannot honour.
	ErrNotSeekable = errors.New("live stream is not seekable")
	// ErrStarved is returned when no audio arrives within the read timeout.
	ErrStarved = errors.New("no audio received within read timeout")
	// ErrStreamEnded is recorded when the server closes a live stream.
	ErrStreamEnded = errors.New("stream ended by server")
	// ErrOffline is recorded when a start is refused for lack of network.
	ErrOffline = errors.New("network is not connected")
)

type State int

const (
	StateStopped State = iota
	StateBuffering
	StatePlaying
	StateError
)

var allStates = []State{StateStopped, StateBuffering, StatePlaying, StateError}

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateBuffering:
		return "buffering"
	case StatePlaying:
		return "playing"
	case StateError:
		return "error"
	}
	return "unknown"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Metadata is what the UI shows for the current stream.
type Metadata struct {
	Title         string `json:"title"`
	Station       string `json:"station"`
	Bitrate       int    `json:"bitrate"`
	BufferPercent int    `json:"buffer_percent"`

	Genre       string `json:"genre,omitempty"`
	Description string `json:"description,omitempty"`
	StreamURL   string `json:"stream_url,omitempty"`
	URL         string `json:"url,omitempty"`
	Generation  uint64 `json:"generation"`
}

// session is one play attempt. It is never reused: a new Start creates a new
// session with the next generation.
type session struct {
	generation uint64
	url        string
	station    string

	ctx    context.Context
	cancel context.CancelFunc

	// producerDone is closed when the producer returns.
	producerDone chan struct{}
	// done is closed when both tasks have returned.
	done chan struct{}
}
