package shoutcast

import (
	"strings"
	"unicode/utf8"

	"github.com/grafana/regexp"
)

// MaxTitleLen caps the length, in characters, of a parsed StreamTitle.
const MaxTitleLen = 256

// fieldPattern matches key='value' pairs; a value ends at the first quote not
// preceded by a backslash.
var fieldPattern = regexp.MustCompile(`([A-Za-z]+)='((?:[^'\\]|\\.)*)'`)

// MetadataCallbackFunc is the type of the function called when the stream metadata changes
type MetadataCallbackFunc func(m *Metadata)

// Metadata is one parsed in-band ICY metadata block.
type Metadata struct {
	StreamTitle string
	StreamURL   string

	// Fields holds every key found in the block, first occurrence wins.
	Fields map[string]string
}

// NewMetadata parses a raw metadata block such as
// "StreamTitle='Artist - Track';StreamUrl='';" padded with NULs.
func NewMetadata(block []byte) *Metadata {
	raw := strings.TrimRight(string(block), "\x00")

	m := &Metadata{Fields: map[string]string{}}
	for _, match := range fieldPattern.FindAllStringSubmatch(raw, -1) {
		key := match[1]
		if _, ok := m.Fields[key]; ok {
			continue
		}
		m.Fields[key] = strings.ReplaceAll(match[2], `\'`, `'`)
	}

	m.StreamTitle = truncate(m.Fields["StreamTitle"], MaxTitleLen)
	m.StreamURL = m.Fields["StreamUrl"]

	return m
}

// Equals compares the displayed fields of two metadata blocks.
func (m *Metadata) Equals(other *Metadata) bool {
	if m == nil || other == nil {
		return m == other
	}
	return m.StreamTitle == other.StreamTitle && m.StreamURL == other.StreamURL
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit])
}
