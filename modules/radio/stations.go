package radio

import (
	"fmt"
	"strings"
)

// Station is a catalog entry.
type Station struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	URL         string `yaml:"url" json:"url"`
	Color       uint32 `yaml:"color,omitempty" json:"color,omitempty"` // 0xRRGGBB accent for the UI
}

// DefaultStations returns the SomaFM 128 kbps MP3 streams.
func DefaultStations() []Station {
	return []Station{
		{ID: "groovesalad", Name: "Groove Salad", Description: "Ambient/Downtempo", URL: "https://ice1.somafm.com/groovesalad-128-mp3", Color: 0x7B68EE},
		{ID: "dronezone", Name: "Drone Zone", Description: "Atmospheric Textures", URL: "https://ice1.somafm.com/dronezone-128-mp3", Color: 0x4682B4},
		{ID: "spacestation", Name: "Space Station Soma", Description: "Spaced-out Ambient", URL: "https://ice1.somafm.com/spacestation-128-mp3", Color: 0x191970},
		{ID: "deepspaceone", Name: "Deep Space One", Description: "Deep Ambient", URL: "https://ice1.somafm.com/deepspaceone-128-mp3", Color: 0x2F4F4F},
		{ID: "defcon", Name: "DEF CON Radio", Description: "Hacker Tunes", URL: "https://ice1.somafm.com/defcon-128-mp3", Color: 0x00FF00},
		{ID: "secretagent", Name: "Secret Agent", Description: "Lounge/Spy Music", URL: "https://ice1.somafm.com/secretagent-128-mp3", Color: 0xDC143C},
		{ID: "lush", Name: "Lush", Description: "Sensuous Vocals", URL: "https://ice1.somafm.com/lush-128-mp3", Color: 0xFF69B4},
		{ID: "bootliquor", Name: "Boot Liquor", Description: "Americana/Roots", URL: "https://ice1.somafm.com/bootliquor-128-mp3", Color: 0x8B4513},
		{ID: "thetrip", Name: "The Trip", Description: "Progressive House", URL: "https://ice1.somafm.com/thetrip-128-mp3", Color: 0xFF4500},
		{ID: "cliqhop", Name: "cliqhop idm", Description: "IDM/Glitch", URL: "https://ice1.somafm.com/cliqhop-128-mp3", Color: 0x9400D3},
	}
}

// Catalog is an immutable, ordered set of stations.
type Catalog struct {
	stations []Station
	byID     map[string]int
}

func NewCatalog(stations []Station) (*Catalog, error) {
	c := &Catalog{
		stations: make([]Station, 0, len(stations)),
		byID:     make(map[string]int, len(stations)),
	}

	for _, s := range stations {
		if s.ID == "" || s.URL == "" {
			return nil, fmt.Errorf("station %q: id and url are required", s.Name)
		}
		if _, ok := c.byID[s.ID]; ok {
			return nil, fmt.Errorf("duplicate station id %q", s.ID)
		}
		c.byID[s.ID] = len(c.stations)
		c.stations = append(c.stations, s)
	}

	return c, nil
}

// Stations returns a copy of the catalog in configured order.
func (c *Catalog) Stations() []Station {
	out := make([]Station, len(c.stations))
	copy(out, c.stations)
	return out
}

func (c *Catalog) Lookup(id string) (Station, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Station{}, false
	}
	return c.stations[i], true
}

// resolve maps a station id or a URL to a stream URL and a display name.
func (c *Catalog) resolve(target string) (url, name string, ok bool) {
	if s, found := c.Lookup(target); found {
		return s.URL, s.Name, true
	}
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		return target, "", true
	}
	return "", "", false
}
