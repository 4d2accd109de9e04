package radio

import (
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/zachfi/radiogo/pkg/mp3"
)

const (
	// recorderDepth is how many events may queue between producer and disk.
	recorderDepth = 1024

	// minWriteBufSize and maxWriteBufSize clamp the configured write buffer to
	// avoid tiny writes or very large buffers.
	minWriteBufSize = 32 * 1024
	maxWriteBufSize = 4 * 1024 * 1024

	// maxSyncSearch is how much audio is held back looking for the first frame
	// header of a track before it is written unaligned.
	maxSyncSearch = 8192
)

// Recorder saves received audio as one MP3 file per track under
// <dir>/<station>/<title>.mp3.
type Recorder struct {
	dir          string
	writeBufSize int
	logger       *slog.Logger
}

func NewRecorder(dir string, writeBufferSize int, logger *slog.Logger) *Recorder {
	return &Recorder{
		dir:          dir,
		writeBufSize: min(max(writeBufferSize, minWriteBufSize), maxWriteBufSize),
		logger:       logger.With("component", "recorder"),
	}
}

// recording is the recorder side of one connection.
type recording struct {
	r       *Recorder
	station string
	w       *ChannelWriter
	done    chan struct{}
}

// Begin starts recording a connection to station. Audio received before the
// first track title is not saved.
func (r *Recorder) Begin(station string) *recording {
	rec := &recording{
		r:       r,
		station: sanitizeName(station, "unknown"),
		w:       NewChannelWriter(recorderDepth),
		done:    make(chan struct{}),
	}

	go rec.run()

	return rec
}

func (rec *recording) Write(p []byte) {
	_, _ = rec.w.Write(p)
}

func (rec *recording) Track(title string) {
	if !rec.w.Track(title) {
		rec.r.logger.Warn("recorder backlog full, track change lost", "title", title)
	}
}

// Close flushes and commits the current track.
func (rec *recording) Close() {
	_ = rec.w.Close()
	<-rec.done

	if dropped := rec.w.Dropped(); dropped > 0 {
		rec.r.logger.Warn("recorder dropped audio", "station", rec.station, "bytes", dropped)
	}
}

func (rec *recording) run() {
	defer close(rec.done)

	var tf *trackFile
	for ev := range rec.w.dataChan {
		if ev.track {
			if tf != nil {
				tf.commit()
			}
			tf = rec.r.open(rec.station, ev.title)
			continue
		}
		if tf != nil {
			tf.write(ev.data)
		}
	}

	if tf != nil {
		tf.commit()
	}
}

func (r *Recorder) open(station, title string) *trackFile {
	if strings.TrimSpace(title) == "" {
		return nil
	}

	name := path.Join(r.dir, station, sanitizeName(title, "untitled")+".mp3")
	if err := os.MkdirAll(path.Dir(name), os.ModePerm); err != nil {
		r.logger.Error("error creating stream directory", "err", err)
		return nil
	}

	f, err := os.CreateTemp(path.Dir(name), "*.mp3.tmp")
	if err != nil {
		r.logger.Error("error creating temp file", "err", err)
		return nil
	}

	r.logger.Debug("recording track", "path", name)

	return &trackFile{
		r:        r,
		f:        f,
		dest:     name,
		syncBuf:  make([]byte, 0, 4096),
		writeBuf: make([]byte, 0, r.writeBufSize),
	}
}

// trackFile is one track being written to a temp file.
type trackFile struct {
	r    *Recorder
	f    *os.File
	dest string

	synced   bool
	failed   bool
	syncBuf  []byte // held back until the first frame header is found
	writeBuf []byte // batches writes to reduce disk I/O
}

func (t *trackFile) write(b []byte) {
	if t.failed || len(b) == 0 {
		return
	}

	if !t.synced {
		t.syncBuf = append(t.syncBuf, b...)
		pos := mp3.FindFrameSync(t.syncBuf)
		switch {
		case pos >= 0:
			t.writeBuf = append(t.writeBuf, t.syncBuf[pos:]...)
		case len(t.syncBuf) > maxSyncSearch:
			t.r.logger.Warn("no MP3 frame sync found, writing anyway", "path", t.dest)
			t.writeBuf = append(t.writeBuf, t.syncBuf...)
		default:
			return
		}
		t.syncBuf = nil
		t.synced = true
	} else {
		t.writeBuf = append(t.writeBuf, b...)
	}

	if len(t.writeBuf) >= t.r.writeBufSize {
		t.flush()
	}
}

func (t *trackFile) flush() {
	if len(t.writeBuf) == 0 || t.failed {
		return
	}
	if _, err := t.f.Write(t.writeBuf); err != nil {
		t.r.logger.Error("error writing to file", "err", err)
		t.failed = true
	}
	t.writeBuf = t.writeBuf[:0]
}

func (t *trackFile) commit() {
	tempPath := t.f.Name()

	t.flush()
	if err := t.f.Sync(); err != nil {
		t.r.logger.Error("error syncing file", "err", err)
	}
	if err := t.f.Close(); err != nil {
		t.r.logger.Error("error closing file", "err", err)
	}

	if t.failed {
		_ = os.Remove(tempPath)
		return
	}
	t.r.commitTempFile(tempPath, t.dest)
}

// commitTempFile renames tempPath to destPath only if dest doesn't exist or
// the temp file is larger, so a partial recording never replaces a full one.
func (r *Recorder) commitTempFile(tempPath, destPath string) {
	tempInfo, err := os.Stat(tempPath)
	if err != nil {
		r.logger.Error("error stating temp file", "err", err, "path", tempPath)
		_ = os.Remove(tempPath)
		return
	}
	if tempInfo.Size() == 0 {
		_ = os.Remove(tempPath)
		return
	}

	destInfo, err := os.Stat(destPath)
	if err != nil && !os.IsNotExist(err) {
		r.logger.Error("error stating dest file", "err", err, "path", destPath)
		_ = os.Remove(tempPath)
		return
	}

	if destInfo != nil && tempInfo.Size() <= destInfo.Size() {
		_ = os.Remove(tempPath)
		r.logger.Debug("discarded shorter recording", "path", destPath, "temp_size", tempInfo.Size(), "existing_size", destInfo.Size())
		return
	}

	if err := os.Rename(tempPath, destPath); err != nil {
		r.logger.Error("error renaming temp to dest", "err", err, "temp", tempPath, "dest", destPath)
		_ = os.Remove(tempPath)
		return
	}
	r.logger.Debug("saved recording", "path", destPath, "size", tempInfo.Size())
}

// sanitizeName makes s safe to use as a single path element.
func sanitizeName(s, fallback string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', 0:
			return '-'
		}
		return r
	}, strings.TrimSpace(s))

	if s == "" || s == "." || s == ".." {
		return fallback
	}
	return s
}
