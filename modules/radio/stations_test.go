package radio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultStations(t *testing.T) {
	c, err := NewCatalog(DefaultStations())
	require.NoError(t, err)

	stations := c.Stations()
	require.Len(t, stations, 10)
	for _, s := range stations {
		assert.Regexp(t, `^https://ice1\.somafm\.com/[a-z]+-128-mp3$`, s.URL)
		assert.NotEmpty(t, s.Name)
	}

	s, ok := c.Lookup("defcon")
	require.True(t, ok)
	assert.Equal(t, "DEF CON Radio", s.Name)
	assert.Equal(t, uint32(0x00FF00), s.Color)

	_, ok = c.Lookup("missing")
	assert.False(t, ok)
}

func TestCatalog_StationsIsCopy(t *testing.T) {
	c, err := NewCatalog(DefaultStations())
	require.NoError(t, err)

	list := c.Stations()
	list[0].Name = "changed"

	s, _ := c.Lookup(list[0].ID)
	assert.Equal(t, "Groove Salad", s.Name)
}

func TestNewCatalog_Invalid(t *testing.T) {
	_, err := NewCatalog([]Station{{ID: "a", URL: "http://a"}, {ID: "a", URL: "http://b"}})
	assert.Error(t, err)

	_, err = NewCatalog([]Station{{Name: "no id", URL: "http://a"}})
	assert.Error(t, err)
}

func TestCatalog_Resolve(t *testing.T) {
	c, err := NewCatalog(DefaultStations())
	require.NoError(t, err)

	url, name, ok := c.resolve("lush")
	require.True(t, ok)
	assert.Equal(t, "https://ice1.somafm.com/lush-128-mp3", url)
	assert.Equal(t, "Lush", name)

	url, name, ok = c.resolve("http://example.com/stream")
	require.True(t, ok)
	assert.Equal(t, "http://example.com/stream", url)
	assert.Empty(t, name)

	_, _, ok = c.resolve("nonsense")
	assert.False(t, ok)
}
