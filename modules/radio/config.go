package radio

import (
	"flag"
	"fmt"
	"time"

	"github.com/zachfi/zkit/pkg/util"

	"github.com/zachfi/radiogo/pkg/mp3"
	"github.com/zachfi/radiogo/pkg/ring"
	"github.com/zachfi/radiogo/pkg/shoutcast"
)

// Prebuffer sizing: at 128 kbps a 64 KiB buffer holds about 4 s of audio, so
// the default 25% threshold starts playback after roughly one second.
const (
	defaultBufferSize       = 64 * 1024
	defaultPrebufferPercent = 25
	defaultReadPoll         = 10 * time.Millisecond
	defaultReadTimeout      = 10 * time.Second
	defaultPrebufferPoll    = 50 * time.Millisecond
	defaultStopTimeout      = 5 * time.Second
	defaultMaxTasks         = 8
	defaultPlaylistCacheTTL = 10 * time.Minute
	defaultWriteBufferSize  = 256 * 1024
)

type Config struct {
	BufferSize         int           `yaml:"buffer-size,omitempty"`
	PrebufferPercent   int           `yaml:"prebuffer-percent,omitempty"`
	SyncWindow         int           `yaml:"sync-window,omitempty"`
	HTTPTimeout        time.Duration `yaml:"http-timeout,omitempty"`
	UserAgent          string        `yaml:"user-agent,omitempty"`
	InsecureSkipVerify bool          `yaml:"insecure-skip-verify,omitempty"`
	ChunkSize          int           `yaml:"chunk-size,omitempty"`
	PlaylistCacheTTL   time.Duration `yaml:"playlist-cache-ttl,omitempty"`

	ReadPoll      time.Duration `yaml:"read-poll,omitempty"`    // sleep between empty buffer reads
	ReadTimeout   time.Duration `yaml:"read-timeout,omitempty"` // give up on a read after this long without data
	PrebufferPoll time.Duration `yaml:"prebuffer-poll,omitempty"`
	StopTimeout   time.Duration `yaml:"stop-timeout,omitempty"`
	LockTimeout   time.Duration `yaml:"lock-timeout,omitempty"`
	MaxTasks      int           `yaml:"max-tasks,omitempty"`

	RequireNetwork bool `yaml:"require-network,omitempty"`
	AudioOutput    bool `yaml:"audio-output,omitempty"`

	RecordDir             string `yaml:"record-dir,omitempty"`
	RecordWriteBufferSize int    `yaml:"record-write-buffer-size,omitempty"`

	Stations []Station `yaml:"stations,omitempty"`
	Autoplay string    `yaml:"autoplay,omitempty"` // station id or URL to start with the service
}

func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.IntVar(&cfg.BufferSize, util.PrefixConfig(prefix, "buffer-size"), defaultBufferSize, "Capacity in bytes of the buffer between the network and the decoder.")
	f.IntVar(&cfg.PrebufferPercent, util.PrefixConfig(prefix, "prebuffer-percent"), defaultPrebufferPercent, "Percentage of the buffer that must fill before playback starts.")
	f.IntVar(&cfg.SyncWindow, util.PrefixConfig(prefix, "sync-window"), mp3.DefaultProbeSize, "Bytes scanned for the first MP3 frame header.")
	f.DurationVar(&cfg.HTTPTimeout, util.PrefixConfig(prefix, "http-timeout"), shoutcast.DefaultTimeout, "Timeout for connecting, response headers and gaps between received chunks.")
	f.StringVar(&cfg.UserAgent, util.PrefixConfig(prefix, "user-agent"), shoutcast.DefaultUserAgent, "User-Agent sent to streaming servers.")
	f.BoolVar(&cfg.InsecureSkipVerify, util.PrefixConfig(prefix, "insecure-skip-verify"), true, "Skip TLS certificate verification for https streams.")
	f.IntVar(&cfg.ChunkSize, util.PrefixConfig(prefix, "chunk-size"), shoutcast.DefaultChunkSize, "Network read size in bytes.")
	f.DurationVar(&cfg.PlaylistCacheTTL, util.PrefixConfig(prefix, "playlist-cache-ttl"), defaultPlaylistCacheTTL, "How long a resolved playlist URL is remembered. 0 disables the cache.")

	f.DurationVar(&cfg.ReadPoll, util.PrefixConfig(prefix, "read-poll"), defaultReadPoll, "Wait between attempts when the decoder reads from an empty buffer.")
	f.DurationVar(&cfg.ReadTimeout, util.PrefixConfig(prefix, "read-timeout"), defaultReadTimeout, "How long a decoder read waits for data before the stream is considered starved.")
	f.DurationVar(&cfg.PrebufferPoll, util.PrefixConfig(prefix, "prebuffer-poll"), defaultPrebufferPoll, "Interval at which the buffer fill is checked while prebuffering.")
	f.DurationVar(&cfg.StopTimeout, util.PrefixConfig(prefix, "stop-timeout"), defaultStopTimeout, "How long stop waits for the stream tasks to exit before detaching them.")
	f.DurationVar(&cfg.LockTimeout, util.PrefixConfig(prefix, "lock-timeout"), ring.DefaultLockTimeout, "Bounded wait for the buffer lock.")
	f.IntVar(&cfg.MaxTasks, util.PrefixConfig(prefix, "max-tasks"), defaultMaxTasks, "Maximum concurrently running stream tasks, including detached ones.")

	f.BoolVar(&cfg.RequireNetwork, util.PrefixConfig(prefix, "require-network"), true, "Refuse to start a stream while no network interface is up.")
	f.BoolVar(&cfg.AudioOutput, util.PrefixConfig(prefix, "audio-output"), true, "Play decoded audio on the system audio device.")

	f.StringVar(&cfg.RecordDir, util.PrefixConfig(prefix, "record-dir"), "", "Directory to record tracks into. Empty disables recording.")
	f.IntVar(&cfg.RecordWriteBufferSize, util.PrefixConfig(prefix, "record-write-buffer-size"), defaultWriteBufferSize, "Bytes to buffer in memory before writing a recording to disk.")
	f.StringVar(&cfg.Autoplay, util.PrefixConfig(prefix, "autoplay"), "", "Station id or stream URL to start when the service starts.")

	cfg.Stations = DefaultStations()
}

// Validate fills unset values and rejects settings the pipeline cannot run with.
func (cfg *Config) Validate() error {
	if cfg.BufferSize <= 0 {
		return fmt.Errorf("buffer-size must be positive, got %d", cfg.BufferSize)
	}
	if cfg.PrebufferPercent <= 0 || cfg.PrebufferPercent > 100 {
		return fmt.Errorf("prebuffer-percent must be within 1..100, got %d", cfg.PrebufferPercent)
	}
	if cfg.SyncWindow <= 0 {
		cfg.SyncWindow = mp3.DefaultProbeSize
	}
	if cfg.SyncWindow > cfg.BufferSize {
		cfg.SyncWindow = cfg.BufferSize
	}
	if cfg.ReadPoll <= 0 {
		cfg.ReadPoll = defaultReadPoll
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.PrebufferPoll <= 0 {
		cfg.PrebufferPoll = defaultPrebufferPoll
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = defaultStopTimeout
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = ring.DefaultLockTimeout
	}
	// Two tasks per session.
	if cfg.MaxTasks < 2 {
		cfg.MaxTasks = defaultMaxTasks
	}
	if cfg.RecordWriteBufferSize <= 0 {
		cfg.RecordWriteBufferSize = defaultWriteBufferSize
	}
	if len(cfg.Stations) == 0 {
		cfg.Stations = DefaultStations()
	}

	return nil
}
