package shoutcast

import (
	"bufio"
	"errors"
	"strings"
)

// ErrNoPlaylistEntry is returned when a playlist holds no stream URL.
var ErrNoPlaylistEntry = errors.New("no stream URL found in playlist")

// sniffLen is how much of a response is peeked at to recognise a playlist.
const sniffLen = 512

type playlistKind int

const (
	notPlaylist playlistKind = iota
	playlistPLS
	playlistM3U
)

// parsePLS returns the first FileN= entry of a PLS playlist
func parsePLS(content string) (string, error) {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(strings.ToLower(line), "file") {
			continue
		}
		_, url, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		if url = strings.TrimSpace(url); url != "" {
			return url, nil
		}
	}

	return "", ErrNoPlaylistEntry
}

// parseM3U returns the first http(s) entry of an M3U playlist
func parseM3U(content string) (string, error) {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		// Skip comments and empty lines
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "http://") || strings.HasPrefix(line, "https://") {
			return line, nil
		}
	}

	return "", ErrNoPlaylistEntry
}

// classify decides from the content type, the URL and the first bytes of the
// body whether a response is a playlist rather than audio.
func classify(contentType, url string, body *bufio.Reader) playlistKind {
	contentType = strings.ToLower(contentType)
	path := strings.ToLower(url)
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}

	switch {
	case strings.Contains(contentType, "audio/x-scpls"),
		strings.Contains(contentType, "application/pls+xml"),
		strings.HasSuffix(path, ".pls"):
		return playlistPLS
	case strings.Contains(contentType, "mpegurl"),
		strings.HasSuffix(path, ".m3u"),
		strings.HasSuffix(path, ".m3u8"):
		return playlistM3U
	case strings.HasPrefix(contentType, "audio/"):
		return notPlaylist
	}

	// Unknown or text content type: look at the body.
	head, _ := body.Peek(sniffLen)
	content := strings.TrimSpace(string(head))
	switch {
	case strings.HasPrefix(content, "[playlist]"), strings.Contains(content, "File1="):
		return playlistPLS
	case strings.HasPrefix(content, "#EXTM3U"),
		strings.HasPrefix(content, "http://"),
		strings.HasPrefix(content, "https://"):
		return playlistM3U
	}

	return notPlaylist
}
