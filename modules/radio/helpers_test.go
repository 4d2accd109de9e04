package radio

import (
	"bytes"
	"context"
	"flag"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

// MPEG-1 Layer III, 128 kbps, 44.1 kHz.
var frameHeader = []byte{0xFF, 0xFB, 0x90, 0x64}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func testConfig() Config {
	cfg := Config{}
	cfg.RegisterFlagsAndApplyDefaults("radio", flag.NewFlagSet("test", flag.PanicOnError))

	cfg.BufferSize = 8 * 1024
	cfg.PrebufferPercent = 25
	cfg.SyncWindow = 1024
	cfg.HTTPTimeout = 5 * time.Second
	cfg.ReadPoll = time.Millisecond
	cfg.ReadTimeout = 2 * time.Second
	cfg.PrebufferPoll = 5 * time.Millisecond
	cfg.StopTimeout = 2 * time.Second
	cfg.RequireNetwork = false
	cfg.PlaylistCacheTTL = 0

	return cfg
}

// fakeDecoder passes source bytes through unchanged and keeps a copy.
type fakeDecoder struct {
	src io.Reader

	mtx  sync.Mutex
	read bytes.Buffer
}

func (d *fakeDecoder) Read(p []byte) (int, error) {
	n, err := d.src.Read(p)
	d.mtx.Lock()
	d.read.Write(p[:n])
	d.mtx.Unlock()
	return n, err
}

func (d *fakeDecoder) SampleRate() int { return 44100 }

func (d *fakeDecoder) Bytes() []byte {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	return append([]byte(nil), d.read.Bytes()...)
}

// decoders records every decoder created, one per session that reached
// playback.
type decoders struct {
	mtx  sync.Mutex
	list []*fakeDecoder
}

func (d *decoders) factory(r io.Reader) (Decoder, error) {
	dec := &fakeDecoder{src: r}
	d.mtx.Lock()
	d.list = append(d.list, dec)
	d.mtx.Unlock()
	return dec, nil
}

func (d *decoders) get(i int) *fakeDecoder {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	if i >= len(d.list) {
		return nil
	}
	return d.list[i]
}

func (d *decoders) count() int {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	return len(d.list)
}

type fakeSink struct {
	mtx     sync.Mutex
	started int
	stopped int
	muted   bool
	written int
}

func (s *fakeSink) Start(int) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.started++
	return nil
}

func (s *fakeSink) Write(p []byte) (int, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.written += len(p)
	return len(p), nil
}

func (s *fakeSink) SetMute(m bool) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.muted = m
}

func (s *fakeSink) Stop() {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.stopped++
}

func (s *fakeSink) snapshot() (started, stopped, written int, muted bool) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.started, s.stopped, s.written, s.muted
}

type harness struct {
	c    *Controller
	decs *decoders
	sink *fakeSink
}

func newHarness(t *testing.T, cfg Config, opts ...Option) *harness {
	t.Helper()

	h := &harness{decs: &decoders{}, sink: &fakeSink{}}
	opts = append([]Option{
		WithDecoderFactory(h.decs.factory),
		WithAudioSink(h.sink),
		WithRegisterer(prometheus.NewRegistry()),
	}, opts...)

	c, err := NewController(cfg, testLogger(), opts...)
	require.NoError(t, err)
	t.Cleanup(c.Close)

	h.c = c
	return h
}

func (h *harness) currentSession() *session {
	h.c.mtx.Lock()
	defer h.c.mtx.Unlock()
	return h.c.current
}

func (h *harness) waitState(t *testing.T, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return h.c.State() == want }, 5*time.Second, 5*time.Millisecond,
		"state %s never reached, last %s", want, h.c.State())
}

// audioServer streams a frame header followed by fill bytes until the client
// goes away.
type audioServer struct {
	*httptest.Server
	hits         atomic.Int32
	disconnected chan struct{}
	once         sync.Once
}

func newAudioServer(t *testing.T, fill byte, header http.Header) *audioServer {
	t.Helper()

	s := &audioServer{disconnected: make(chan struct{})}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)

		w.Header().Set("Content-Type", "audio/mpeg")
		for k, v := range header {
			w.Header()[k] = v
		}

		chunk := bytes.Repeat([]byte{fill}, 512)
		_, _ = w.Write(frameHeader)
		for {
			if _, err := w.Write(chunk); err != nil {
				break
			}
			w.(http.Flusher).Flush()

			select {
			case <-r.Context().Done():
				s.once.Do(func() { close(s.disconnected) })
				return
			case <-time.After(time.Millisecond):
			}
		}
		s.once.Do(func() { close(s.disconnected) })
	}))
	t.Cleanup(s.Close)

	return s
}

// pipeSink behaves like a device player fed through a pipe: Start replaces the
// player and unblocks writers stuck on the previous one. The first player
// never drains, so its writers block until they are unblocked.
type pipeSink struct {
	mtx     sync.Mutex
	gen     int
	drained chan struct{}
	stopped bool
	muted   bool
	written int

	blocked atomic.Int32
}

func (s *pipeSink) Start(int) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.drained != nil {
		close(s.drained)
	}
	s.drained = make(chan struct{})
	s.gen++
	s.stopped = false
	return nil
}

func (s *pipeSink) Write(p []byte) (int, error) {
	s.mtx.Lock()
	gen, drained, stopped := s.gen, s.drained, s.stopped
	s.mtx.Unlock()

	if stopped || drained == nil {
		return 0, io.ErrClosedPipe
	}
	if gen == 1 {
		s.blocked.Add(1)
		<-drained
		return 0, io.ErrClosedPipe
	}

	s.mtx.Lock()
	s.written += len(p)
	s.mtx.Unlock()
	return len(p), nil
}

func (s *pipeSink) SetMute(m bool) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.muted = m
}

func (s *pipeSink) Stop() {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.stopped = true
	s.unblockLocked()
}

// unblock releases writers on the current player without stopping it.
func (s *pipeSink) unblock() {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.unblockLocked()
}

func (s *pipeSink) unblockLocked() {
	if s.drained != nil {
		close(s.drained)
		s.drained = nil
	}
}

func (s *pipeSink) snapshot() (gen, written int, stopped, muted bool) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.gen, s.written, s.stopped, s.muted
}

// countingHandler counts log records by message.
type countingHandler struct {
	mtx    sync.Mutex
	counts map[string]int
}

func newCountingHandler() *countingHandler {
	return &countingHandler{counts: map[string]int{}}
}

func (h *countingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *countingHandler) Handle(_ context.Context, r slog.Record) error {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	h.counts[r.Message]++
	return nil
}

func (h *countingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *countingHandler) WithGroup(string) slog.Handler      { return h }

func (h *countingHandler) count(msg string) int {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	return h.counts[msg]
}

// newPacedServer streams a frame header and then fill bytes at a steady
// bytesPerSecond, delivered in 10ms slices.
func newPacedServer(t *testing.T, bytesPerSecond int) *httptest.Server {
	t.Helper()

	chunk := bytes.Repeat([]byte{0x11}, bytesPerSecond/100)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Header().Set("Icy-Br", strconv.Itoa(bytesPerSecond*8/1000))
		_, _ = w.Write(frameHeader)
		w.(http.Flusher).Flush()

		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-r.Context().Done():
				return
			case <-ticker.C:
			}
			if _, err := w.Write(chunk); err != nil {
				return
			}
			w.(http.Flusher).Flush()
		}
	}))
	t.Cleanup(srv.Close)

	return srv
}
