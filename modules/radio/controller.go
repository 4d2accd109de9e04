package radio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/zachfi/radiogo/pkg/decode"
	"github.com/zachfi/radiogo/pkg/ring"
	"github.com/zachfi/radiogo/pkg/shoutcast"
)

// Decoder turns the stream into 16-bit little-endian stereo PCM.
type Decoder interface {
	io.Reader
	SampleRate() int
}

// DecoderFactory creates a Decoder reading from r. It may read from r to
// detect the format before returning.
type DecoderFactory func(r io.Reader) (Decoder, error)

// AudioSink plays PCM. Write may block to apply backpressure.
type AudioSink interface {
	Start(sampleRate int) error
	Write(p []byte) (int, error)
	SetMute(muted bool)
	Stop()
}

func mp3Decoder(r io.Reader) (Decoder, error) {
	d, err := decode.New(r)
	if err != nil {
		return nil, err
	}
	return d, nil
}

type nopSink struct{}

func (nopSink) Start(int) error             { return nil }
func (nopSink) Write(p []byte) (int, error) { return len(p), nil }
func (nopSink) SetMute(bool)                {}
func (nopSink) Stop()                       {}

type Option func(*Controller)

func WithDecoderFactory(f DecoderFactory) Option {
	return func(c *Controller) { c.decoders = f }
}

// WithAudioSink sets where decoded audio goes. Without it audio is discarded.
func WithAudioSink(s AudioSink) Option {
	return func(c *Controller) { c.sink = s }
}

func WithNetworkStatus(n NetworkStatus) Option {
	return func(c *Controller) { c.network = n }
}

func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Controller) { c.reg = reg }
}

// Controller owns the playback lifecycle: one session at a time, each with a
// producer task filling the buffer from the network and a consumer task
// feeding the decoder from it.
type Controller struct {
	cfg    Config
	logger *slog.Logger

	client   *shoutcast.Client
	decoders DecoderFactory
	sink     AudioSink
	network  NetworkStatus
	catalog  *Catalog
	recorder *Recorder
	pool     *ants.Pool
	reg      prometheus.Registerer
	metrics  *metrics
	tracer   trace.Tracer

	// generation identifies the live session; tasks of any other generation
	// are stale and must stop.
	generation atomic.Uint64

	// ctl serializes Start and Stop.
	ctl sync.Mutex

	// gate is held for reading while a producer writes into the buffer and
	// for writing while a new session takes the buffer over.
	gate sync.RWMutex

	mtx      sync.Mutex
	state    State
	lastErr  error
	meta     Metadata
	current  *session
	buf      *ring.Buffer
	spectrum Spectrum
	muted    bool

	// sinkMtx serializes sink start and teardown. sinkOwner is the generation
	// of the session that last started the sink, 0 when none holds it.
	sinkMtx   sync.Mutex
	sinkOwner uint64

	overflowLog rate.Sometimes
}

func NewController(cfg Config, logger *slog.Logger, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	catalog, err := NewCatalog(cfg.Stations)
	if err != nil {
		return nil, err
	}

	c := &Controller{
		cfg:      cfg,
		logger:   logger,
		decoders: mp3Decoder,
		sink:     nopSink{},
		network:  InterfaceStatus{},
		catalog:  catalog,
		tracer:   otel.Tracer("radio"),
		client: shoutcast.NewClient(shoutcast.ClientConfig{
			UserAgent:          cfg.UserAgent,
			Timeout:            cfg.HTTPTimeout,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
			ChunkSize:          cfg.ChunkSize,
			PlaylistCacheTTL:   cfg.PlaylistCacheTTL,
		}),
		overflowLog: rate.Sometimes{Interval: time.Second},
	}

	for _, o := range opts {
		o(c)
	}

	c.metrics = newMetrics(c.reg)
	c.metrics.setState(StateStopped)

	if cfg.RecordDir != "" {
		c.recorder = NewRecorder(cfg.RecordDir, cfg.RecordWriteBufferSize, logger)
	}

	// Non-blocking: a full pool means a task cannot be spawned and Start fails.
	c.pool, err = ants.NewPool(cfg.MaxTasks, ants.WithNonblocking(true))
	if err != nil {
		return nil, fmt.Errorf("failed to create task pool: %w", err)
	}

	return c, nil
}

// Start stops any current session and begins streaming url. It returns false
// when the network is down (with require-network set) or when resources for
// the session cannot be allocated; the state is then Stopped.
func (c *Controller) Start(url string) bool {
	return c.start(url, "")
}

// StartStation starts the catalog station with the given id.
func (c *Controller) StartStation(id string) bool {
	s, ok := c.catalog.Lookup(id)
	if !ok {
		c.logger.Warn("unknown station", "station", id)
		return false
	}
	return c.start(s.URL, s.Name)
}

func (c *Controller) start(url, station string) bool {
	c.ctl.Lock()
	defer c.ctl.Unlock()

	if c.cfg.RequireNetwork && !c.network.Connected() {
		c.logger.Warn("network offline, not starting stream", "url", url)
		c.stopLocked()
		c.mtx.Lock()
		c.lastErr = ErrOffline
		c.mtx.Unlock()
		return false
	}

	c.stopLocked()

	c.mtx.Lock()
	defer c.mtx.Unlock()

	if c.buf == nil {
		buf, err := ring.New(c.cfg.BufferSize, ring.WithLockTimeout(c.cfg.LockTimeout))
		if err != nil {
			c.logger.Error("failed to allocate stream buffer", "err", err)
			c.lastErr = err
			return false
		}
		c.buf = buf
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		url:          url,
		station:      station,
		ctx:          ctx,
		cancel:       cancel,
		producerDone: make(chan struct{}),
		done:         make(chan struct{}),
	}

	c.gate.Lock()
	reset := c.buf.Reset()
	s.generation = c.generation.Add(1)
	c.gate.Unlock()

	if !reset {
		cancel()
		c.logger.Error("failed to reset stream buffer", "err", ring.ErrLocked)
		c.lastErr = ring.ErrLocked
		c.setStateLocked(StateStopped)
		return false
	}

	c.meta = Metadata{Station: station, URL: url, Generation: s.generation}
	c.spectrum = Spectrum{}
	c.lastErr = nil

	var pending atomic.Int32
	pending.Store(2)
	taskDone := func() {
		if pending.Add(-1) == 0 {
			close(s.done)
		}
	}

	abort := func(err error) bool {
		c.logger.Error("failed to spawn stream task", "err", err, "generation", s.generation)
		c.generation.Add(1)
		cancel()
		c.lastErr = err
		c.setStateLocked(StateStopped)
		return false
	}

	if err := c.pool.Submit(func() {
		defer taskDone()
		defer close(s.producerDone)
		c.produce(s)
	}); err != nil {
		return abort(err)
	}

	if err := c.pool.Submit(func() {
		defer taskDone()
		c.consume(s)
	}); err != nil {
		// The producer sees the cancelled session and exits on its own.
		taskDone()
		return abort(err)
	}

	c.current = s
	c.metrics.sessions.Inc()
	c.setStateLocked(StateBuffering)
	c.logger.Info("starting stream", "url", url, "station", station, "generation", s.generation)

	return true
}

// Stop ends the current session. It is safe to call at any time.
func (c *Controller) Stop() {
	c.ctl.Lock()
	defer c.ctl.Unlock()

	c.stopLocked()
}

func (c *Controller) stopLocked() {
	c.mtx.Lock()
	s := c.current
	c.current = nil
	if s == nil {
		c.setStateLocked(StateStopped)
		c.mtx.Unlock()
		return
	}
	c.generation.Add(1)
	s.cancel()
	c.mtx.Unlock()

	select {
	case <-s.done:
	case <-time.After(c.cfg.StopTimeout):
		// The tasks hold no handle on the new session and exit on their own
		// once their current call returns.
		c.logger.Warn("stream tasks did not exit in time, detaching", "generation", s.generation, "timeout", c.cfg.StopTimeout)
	}

	c.mtx.Lock()
	buf := c.buf
	c.meta = Metadata{}
	c.spectrum = Spectrum{}
	c.setStateLocked(StateStopped)
	c.mtx.Unlock()

	if buf != nil {
		c.gate.Lock()
		if !buf.Reset() {
			c.logger.Warn("stream buffer not cleared on stop", "err", ring.ErrLocked)
		}
		c.gate.Unlock()
	}

	c.logger.Info("stream stopped", "generation", s.generation)
}

// Close stops playback and releases the task pool.
func (c *Controller) Close() {
	c.Stop()
	c.pool.Release()

	c.sinkMtx.Lock()
	c.sinkOwner = 0
	c.sink.Stop()
	c.sinkMtx.Unlock()
}

// acquireSink starts the sink for s and applies the user's mute setting. It
// returns false without touching the sink when s has been superseded.
func (c *Controller) acquireSink(s *session, sampleRate int) (bool, error) {
	c.sinkMtx.Lock()
	defer c.sinkMtx.Unlock()

	if !c.live(s) {
		return false, nil
	}
	if err := c.sink.Start(sampleRate); err != nil {
		return false, err
	}
	c.sinkOwner = s.generation
	c.sink.SetMute(c.Muted())

	return true, nil
}

// releaseSink mutes and stops the sink if s is still the session that
// started it. A detached session whose sink was taken over leaves it alone.
func (c *Controller) releaseSink(s *session) {
	c.sinkMtx.Lock()
	defer c.sinkMtx.Unlock()

	if c.sinkOwner != s.generation {
		return
	}
	c.sinkOwner = 0
	c.sink.SetMute(true)
	c.sink.Stop()
}

func (c *Controller) live(s *session) bool {
	return c.generation.Load() == s.generation && s.ctx.Err() == nil
}

func (c *Controller) setStateLocked(st State) {
	if c.state == st {
		return
	}
	c.logger.Debug("state change", "from", c.state, "to", st)
	c.state = st
	c.metrics.setState(st)
}

// setStateIfLive moves to st unless s has been superseded.
func (c *Controller) setStateIfLive(s *session, st State) bool {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if !c.live(s) {
		return false
	}
	c.setStateLocked(st)
	return true
}

// fail records err and enters Error. The first fault of a session wins and a
// superseded session cannot fail the live one.
func (c *Controller) fail(s *session, err error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if !c.live(s) || c.state == StateError {
		return
	}
	c.lastErr = err
	c.setStateLocked(StateError)
}

func (c *Controller) updateMetadata(s *session, fn func(m *Metadata)) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if !c.live(s) {
		return
	}
	fn(&c.meta)
}

func (c *Controller) State() State {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	return c.state
}

// LastError returns the fault that put the controller in Error, or the reason
// the last Start was refused.
func (c *Controller) LastError() error {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	return c.lastErr
}

func (c *Controller) Metadata() Metadata {
	c.mtx.Lock()
	m := c.meta
	buf := c.buf
	live := c.current != nil
	c.mtx.Unlock()

	if buf != nil && live {
		m.BufferPercent = buf.FillPercent()
	}
	return m
}

// Spectrum copies the latest band levels into dst and returns how many were
// copied.
func (c *Controller) Spectrum(dst []uint8) int {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	return copy(dst, c.spectrum[:])
}

func (c *Controller) setSpectrum(s *session, sp *Spectrum) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if c.live(s) {
		c.spectrum = *sp
	}
}

func (c *Controller) SetMute(muted bool) {
	c.mtx.Lock()
	c.muted = muted
	c.mtx.Unlock()

	c.sinkMtx.Lock()
	defer c.sinkMtx.Unlock()
	if c.sinkOwner != 0 {
		c.sink.SetMute(muted)
	}
}

func (c *Controller) Muted() bool {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	return c.muted
}

func (c *Controller) Stations() []Station {
	return c.catalog.Stations()
}

func (c *Controller) Lookup(id string) (Station, bool) {
	return c.catalog.Lookup(id)
}
