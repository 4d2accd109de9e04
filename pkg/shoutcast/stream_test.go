package shoutcast

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, s *Stream) ([]byte, error) {
	t.Helper()

	var out []byte
	for chunk, err := range s.Chunks() {
		if err != nil {
			return out, err
		}
		out = append(out, chunk...)
	}
	return out, nil
}

func TestOpen_Headers(t *testing.T) {
	body := bytes.Repeat([]byte{0xAB}, 10000)

	var gotMeta, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMeta = r.Header.Get("Icy-MetaData")
		gotUA = r.Header.Get("User-Agent")

		w.Header().Set("Content-Type", "audio/mpeg")
		w.Header().Set("icy-name", "Groove Salad")
		w.Header().Set("icy-genre", "ambient")
		w.Header().Set("icy-description", "chill")
		w.Header().Set("icy-url", "https://somafm.com")
		w.Header().Set("icy-br", "128,128")
		w.Header().Set("icy-metaint", "16000")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{UserAgent: "test-agent", Timeout: 5 * time.Second})
	s, err := c.Open(context.Background(), srv.URL+"/stream")
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, "1", gotMeta)
	assert.Equal(t, "test-agent", gotUA)

	assert.Equal(t, "Groove Salad", s.Header.Name)
	assert.Equal(t, "ambient", s.Header.Genre)
	assert.Equal(t, "chill", s.Header.Description)
	assert.Equal(t, "https://somafm.com", s.Header.URL)
	assert.Equal(t, "audio/mpeg", s.Header.ContentType)
	assert.Equal(t, 128, s.Header.Bitrate)
	assert.Equal(t, 16000, s.Header.MetaInt)
	assert.Equal(t, "Groove Salad", s.Header.Fields["icy-name"])

	got, err := collect(t, s)
	require.NoError(t, err)
	assert.Equal(t, body, got)
}

func TestOpen_NoMetaint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte{0xFF, 0xFB, 0x90, 0x64})
	}))
	defer srv.Close()

	s, err := NewClient(ClientConfig{}).Open(context.Background(), srv.URL)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, 0, s.Header.MetaInt)
	assert.Equal(t, 0, s.Header.Bitrate)
}

func TestOpen_BadMetaint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Header().Set("icy-metaint", "lots")
	}))
	defer srv.Close()

	_, err := NewClient(ClientConfig{}).Open(context.Background(), srv.URL)
	require.Error(t, err)
}

func TestOpen_Status(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(ClientConfig{}).Open(context.Background(), srv.URL)
	require.ErrorIs(t, err, ErrStatus)
	assert.Contains(t, err.Error(), "503")
}

func TestOpen_ResolvesPlaylist(t *testing.T) {
	var playlistHits atomic.Int32

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/groovesalad.pls", func(w http.ResponseWriter, _ *http.Request) {
		playlistHits.Add(1)
		w.Header().Set("Content-Type", "audio/x-scpls")
		fmt.Fprintf(w, "[playlist]\nNumberOfEntries=1\nFile1=%s/stream\n", srv.URL)
	})
	mux.HandleFunc("/stream", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Header().Set("icy-name", "resolved")
		_, _ = w.Write([]byte("audio"))
	})

	c := NewClient(ClientConfig{PlaylistCacheTTL: time.Minute})

	for range 2 {
		s, err := c.Open(context.Background(), srv.URL+"/groovesalad.pls")
		require.NoError(t, err)

		assert.Equal(t, srv.URL+"/stream", s.URL)
		assert.Equal(t, "resolved", s.Header.Name)

		got, err := collect(t, s)
		require.NoError(t, err)
		assert.Equal(t, "audio", string(got))
		require.NoError(t, s.Close())
	}

	assert.Equal(t, int32(1), playlistHits.Load())
}

func TestOpen_PlaylistLoop(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/a.m3u", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, "#EXTM3U\n%s/b.m3u\n", srv.URL)
	})
	mux.HandleFunc("/b.m3u", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, "#EXTM3U\n%s/a.m3u\n", srv.URL)
	})

	_, err := NewClient(ClientConfig{}).Open(context.Background(), srv.URL+"/a.m3u")
	require.Error(t, err)
}

func TestOpen_EmptyPlaylist(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "audio/x-mpegurl")
		_, _ = w.Write([]byte("#EXTM3U\n"))
	}))
	defer srv.Close()

	_, err := NewClient(ClientConfig{}).Open(context.Background(), srv.URL)
	require.ErrorIs(t, err, ErrNoPlaylistEntry)
}

func TestStream_IdleTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("first"))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{Timeout: 200 * time.Millisecond})
	s, err := c.Open(context.Background(), srv.URL)
	require.NoError(t, err)
	defer s.Close()

	got, err := collect(t, s)
	assert.Equal(t, "first", string(got))
	require.ErrorIs(t, err, ErrIdleTimeout)
}

func TestStream_CancelEndsChunks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		for {
			if _, err := w.Write(bytes.Repeat([]byte{1}, 512)); err != nil {
				return
			}
			w.(http.Flusher).Flush()
			select {
			case <-r.Context().Done():
				return
			case <-time.After(5 * time.Millisecond):
			}
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	s, err := NewClient(ClientConfig{}).Open(ctx, srv.URL)
	require.NoError(t, err)
	defer s.Close()

	received := 0
	for chunk, err := range s.Chunks() {
		if err != nil {
			assert.NotErrorIs(t, err, ErrIdleTimeout)
			break
		}
		received += len(chunk)
		if received > 2048 {
			cancel()
		}
	}
	assert.Greater(t, received, 2048)
}

func TestStream_ChunksNotRestartable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("once"))
	}))
	defer srv.Close()

	s, err := NewClient(ClientConfig{}).Open(context.Background(), srv.URL)
	require.NoError(t, err)
	defer s.Close()

	_, err = collect(t, s)
	require.NoError(t, err)

	_, err = collect(t, s)
	require.ErrorIs(t, err, ErrConsumed)
}
