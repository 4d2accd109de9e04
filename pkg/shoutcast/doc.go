// Package shoutcast opens ICY/Shoutcast streams over HTTP.
//
// A Client resolves .pls and .m3u playlists to the real stream URL, requests
// in-band metadata and exposes the response body as a sequence of chunks. The
// Extractor separates metadata blocks from audio so only audio bytes reach the
// playback buffer.
package shoutcast
