package shoutcast

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"iter"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maypok86/otter/v2"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultChunkSize = 4096
	DefaultUserAgent = "radiogo/1.0"

	// maxHops limits playlist-to-playlist redirection.
	maxHops = 2
	// maxPlaylistSize bounds how much of a playlist body is read.
	maxPlaylistSize = 64 * 1024
)

var (
	// ErrStatus is wrapped when the server answers with anything but 200.
	ErrStatus = errors.New("unexpected HTTP status")
	// ErrIdleTimeout is returned when no body bytes arrive within the timeout.
	ErrIdleTimeout = errors.New("stream idle timeout")
	// ErrConsumed is returned when Chunks is ranged over a second time.
	ErrConsumed = errors.New("stream chunks already consumed")
)

type ClientConfig struct {
	// UserAgent identifies the client to the streaming server.
	UserAgent string
	// Timeout bounds connecting, waiting for response headers and the gap
	// between two body reads. There is no limit on total stream duration.
	Timeout time.Duration
	// InsecureSkipVerify disables certificate validation for https streams.
	// Public radio streams carry nothing confidential.
	InsecureSkipVerify bool
	// ChunkSize is the read size used by Stream.Chunks.
	ChunkSize int
	// PlaylistCacheTTL is how long a playlist URL resolution is remembered.
	// Zero disables the cache.
	PlaylistCacheTTL time.Duration
}

// Client opens ICY streams.
type Client struct {
	cfg       ClientConfig
	http      *http.Client
	playlists *otter.Cache[string, string]
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	dialer := &net.Dialer{Timeout: cfg.Timeout, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   cfg.Timeout,
		ResponseHeaderTimeout: cfg.Timeout,
		DisableCompression:    true,
		DisableKeepAlives:     false,
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify}, //nolint:gosec
	}

	c := &Client{
		cfg: cfg,
		// No client timeout; the stream is read indefinitely.
		http: &http.Client{Transport: transport},
	}

	if cfg.PlaylistCacheTTL > 0 {
		c.playlists = otter.Must(&otter.Options[string, string]{
			MaximumSize:      256,
			ExpiryCalculator: otter.ExpiryWriting[string, string](cfg.PlaylistCacheTTL),
		})
	}

	return c
}

// Header holds the ICY response headers.
type Header struct {
	Name        string
	Genre       string
	Description string
	URL         string
	ContentType string
	Bitrate     int
	MetaInt     int

	// Fields holds every icy-* header, keyed in lower case.
	Fields map[string]string
}

// Stream is one open ICY connection. Its body is exposed as a lazy sequence of
// chunks that ends when the server disconnects or the context is cancelled.
// A Stream cannot be restarted; open a new one for each attempt.
type Stream struct {
	// URL is the address actually streamed after playlist resolution.
	URL    string
	Header Header

	body      io.ReadCloser
	reader    *bufio.Reader
	cancel    context.CancelFunc
	chunkSize int

	idle     *time.Timer
	timeout  time.Duration
	timedOut atomic.Bool
	started  atomic.Bool

	closeOnce sync.Once
}

// Open issues the GET request, following playlists to the real stream URL.
// Cancelling ctx aborts the request and ends the chunk sequence.
func (c *Client) Open(ctx context.Context, url string) (*Stream, error) {
	target := url
	cached := false
	if c.playlists != nil {
		if resolved, ok := c.playlists.GetIfPresent(url); ok {
			target = resolved
			cached = true
		}
	}

	for hop := 0; ; hop++ {
		reqCtx, cancel := context.WithCancel(ctx)

		resp, err := c.get(reqCtx, target)
		if err != nil {
			cancel()
			if cached {
				// Resolve again next time; the playlist may point elsewhere now.
				c.playlists.Invalidate(url)
			}
			return nil, err
		}

		reader := bufio.NewReaderSize(resp.Body, c.cfg.ChunkSize)
		kind := classify(resp.Header.Get("Content-Type"), target, reader)
		if kind == notPlaylist {
			return c.newStream(target, resp, reader, cancel)
		}

		next, err := readPlaylist(kind, reader)
		_ = resp.Body.Close()
		cancel()
		if err != nil {
			return nil, fmt.Errorf("failed to parse playlist %s: %w", target, err)
		}
		if hop+1 >= maxHops {
			return nil, fmt.Errorf("playlist %s: too many playlist redirections", url)
		}
		if c.playlists != nil {
			c.playlists.Set(url, next)
		}
		target = next
	}
}

func (c *Client) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "*/*")
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Icy-MetaData", "1")
	req.Header.Set("Connection", "keep-alive")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
	}

	return resp, nil
}

func (c *Client) newStream(url string, resp *http.Response, reader *bufio.Reader, cancel context.CancelFunc) (*Stream, error) {
	header, err := parseHeader(resp.Header)
	if err != nil {
		_ = resp.Body.Close()
		cancel()
		return nil, err
	}

	s := &Stream{
		URL:       url,
		Header:    header,
		body:      resp.Body,
		reader:    reader,
		cancel:    cancel,
		chunkSize: c.cfg.ChunkSize,
		timeout:   c.cfg.Timeout,
	}
	s.idle = time.AfterFunc(s.timeout, func() {
		s.timedOut.Store(true)
		cancel()
	})

	return s, nil
}

func readPlaylist(kind playlistKind, r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxPlaylistSize))
	if err != nil {
		return "", fmt.Errorf("failed to read playlist: %w", err)
	}
	if kind == playlistPLS {
		return parsePLS(string(data))
	}
	return parseM3U(string(data))
}

func parseHeader(h http.Header) (Header, error) {
	header := Header{
		Name:        h.Get("icy-name"),
		Genre:       h.Get("icy-genre"),
		Description: h.Get("icy-description"),
		URL:         h.Get("icy-url"),
		ContentType: h.Get("Content-Type"),
		Fields:      map[string]string{},
	}

	for k, v := range h {
		k = strings.ToLower(k)
		if strings.HasPrefix(k, "icy-") && len(v) > 0 {
			header.Fields[k] = v[0]
		}
	}

	if raw := strings.TrimSpace(h.Get("icy-metaint")); raw != "" {
		metaint, err := strconv.Atoi(raw)
		if err != nil || metaint < 0 {
			return header, fmt.Errorf("cannot parse metaint %q", raw)
		}
		header.MetaInt = metaint
	}

	// Some servers send "128,128" or "128 kbps"; keep the leading number.
	if raw := strings.TrimSpace(h.Get("icy-br")); raw != "" {
		end := strings.IndexFunc(raw, func(r rune) bool { return r < '0' || r > '9' })
		if end < 0 {
			end = len(raw)
		}
		header.Bitrate, _ = strconv.Atoi(raw[:end])
	}

	return header, nil
}

// Chunks yields body chunks as they arrive. The yielded slice is reused and is
// only valid until the next iteration. The sequence ends without an error on a
// clean disconnect; any other failure is yielded once as the final element.
func (s *Stream) Chunks() iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		if !s.started.CompareAndSwap(false, true) {
			yield(nil, ErrConsumed)
			return
		}

		buf := make([]byte, s.chunkSize)
		for {
			n, err := s.reader.Read(buf)
			if n > 0 {
				s.idle.Reset(s.timeout)
				if !yield(buf[:n], nil) {
					return
				}
			}
			if err != nil {
				if errors.Is(err, io.EOF) {
					return
				}
				if s.timedOut.Load() {
					err = ErrIdleTimeout
				}
				yield(nil, err)
				return
			}
		}
	}
}

// Close aborts the request and releases the connection.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.idle.Stop()
		s.cancel()
		err = s.body.Close()
	})
	return err
}
