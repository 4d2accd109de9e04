package mp3

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MPEG-1 Layer III, 128 kbps, 44.1 kHz, no padding.
var frameHeader = []byte{0xFF, 0xFB, 0x90, 0x64}

func TestValidHeader(t *testing.T) {
	tests := []struct {
		name   string
		header []byte
		want   bool
	}{
		{"mpeg1_layer3", frameHeader, true},
		{"mpeg2_layer3", []byte{0xFF, 0xF3, 0x80}, true},
		{"mpeg25_layer3", []byte{0xFF, 0xE3, 0x50}, true},
		{"short", []byte{0xFF, 0xFB}, false},
		{"no_sync_byte", []byte{0xFE, 0xFB, 0x90}, false},
		{"partial_sync", []byte{0xFF, 0xDB, 0x90}, false},
		{"reserved_version", []byte{0xFF, 0xEB, 0x90}, false},
		{"reserved_layer", []byte{0xFF, 0xF9, 0x90}, false},
		{"free_bitrate", []byte{0xFF, 0xFB, 0x00}, false},
		{"bad_bitrate", []byte{0xFF, 0xFB, 0xF0}, false},
		{"reserved_sample_rate", []byte{0xFF, 0xFB, 0x9C}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ValidHeader(tc.header))
		})
	}
}

func TestFindFrameSync(t *testing.T) {
	junk := bytes.Repeat([]byte{0x11}, 37)
	data := append(append([]byte{}, junk...), frameHeader...)
	data = append(data, bytes.Repeat([]byte{0x22}, 100)...)

	assert.Equal(t, 37, FindFrameSync(data))
	assert.Equal(t, 0, FindFrameSync(frameHeader))
	assert.Equal(t, -1, FindFrameSync(nil))
	assert.Equal(t, -1, FindFrameSync(junk))
}

func TestFindFrameSync_SkipsFalseSync(t *testing.T) {
	// A 0xFF 0xFF pair with a bad bitrate nibble must not be taken as a frame.
	data := []byte{0x00, 0xFF, 0xFF, 0xFF, 0x00}
	data = append(data, frameHeader...)

	assert.Equal(t, 5, FindFrameSync(data))
}

func TestNewWindow_Aligned(t *testing.T) {
	junk := bytes.Repeat([]byte{0x11}, 37)
	tail := bytes.Repeat([]byte{0x22}, 200)
	probe := append(append(append([]byte{}, junk...), frameHeader...), tail...)

	w := NewWindow(probe)
	require.Equal(t, 37, w.Offset)
	require.Equal(t, len(probe)-37, w.Len())
	assert.Equal(t, frameHeader, w.Bytes()[:len(frameHeader)])
}

func TestNewWindow_NoSync(t *testing.T) {
	probe := bytes.Repeat([]byte{0x42}, DefaultProbeSize)

	w := NewWindow(probe)
	assert.Equal(t, -1, w.Offset)
	assert.Equal(t, probe, w.Bytes())
}

func TestNewWindow_Empty(t *testing.T) {
	w := NewWindow(nil)
	assert.Equal(t, -1, w.Offset)
	assert.True(t, w.Exhausted())
	assert.Equal(t, 0, w.Read(make([]byte, 8)))
}

func TestWindow_ReplayAfterRewind(t *testing.T) {
	probe := append(append([]byte{0x01, 0x02}, frameHeader...), 0xAA, 0xBB)
	w := NewWindow(probe)

	first := make([]byte, 3)
	require.Equal(t, 3, w.Read(first))
	rest := make([]byte, 10)
	n := w.Read(rest)
	require.Equal(t, 3, n)
	assert.True(t, w.Exhausted())

	w.Rewind()
	assert.False(t, w.Exhausted())

	again := make([]byte, 16)
	n = w.Read(again)
	assert.Equal(t, w.Bytes(), again[:n])
}
