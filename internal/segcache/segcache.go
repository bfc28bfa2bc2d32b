// Package segcache implements a content-addressed, on-disk cache of
// decoded-and-windowed sample buffers, keyed on file identity and
// acquisition parameters.
//
// Put is best-effort: I/O failures are swallowed, since measurement
// correctness never depends on the cache. Get tolerates corrupted
// entries by returning absent.
package segcache

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/zstd"
)

// Tag identifies which segment of a file an acquisition key refers to.
type Tag string

const (
	TagStart       Tag = "start"
	TagMid         Tag = "mid"
	TagEnd         Tag = "end"
	TagFingerprint Tag = "fingerprint"
)

// Key is the acquisition key: a tuple that uniquely identifies a
// decoded-and-windowed segment. HasStat is false when the file's
// mtime/size could not be read; such keys fold a per-process nonce into
// the digest so their entries are never reused across invocations.
type Key struct {
	CanonicalPath string
	HasStat       bool
	ModTimeUnix   int64
	SizeBytes     int64
	SampleRate    int
	DurationSec   float64 // ignored unless HasDuration is set
	HasDuration   bool    // false means "to end of file"
	OffsetSec     float64
	Tag           Tag
}

// processNonce keeps stat-less cache entries private to one invocation:
// without mtime/size in the key there is no way to notice the file
// changing between runs.
var processNonce = fmt.Sprintf("%d.%d", os.Getpid(), time.Now().UnixNano())

// Digest returns the hex-encoded SHA-256 digest that names this key's
// cache entry on disk.
func (k Key) Digest() string {
	h := sha256.New()
	if k.HasStat {
		fmt.Fprintf(h, "%s|%d|%d|%d|", k.CanonicalPath, k.ModTimeUnix, k.SizeBytes, k.SampleRate)
	} else {
		fmt.Fprintf(h, "%s|%s|%d|", k.CanonicalPath, processNonce, k.SampleRate)
	}
	if k.HasDuration {
		fmt.Fprintf(h, "%g|", k.DurationSec)
	} else {
		fmt.Fprint(h, "null|")
	}
	fmt.Fprintf(h, "%g|%s", k.OffsetSec, k.Tag)
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Cache is a directory of content-addressed, zstd-compressed float32
// arrays.
type Cache struct {
	dir string
}

// Open resolves the cache root (dir if non-empty, else explicit env
// override, else OS user-cache dir, else OS temp dir) and ensures it
// exists. Open never fails the caller: if the directory cannot be
// created, a Cache is still returned and all operations degrade to
// no-ops.
func Open(dir string) *Cache {
	if dir == "" {
		dir = resolveCacheDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Warn("segment cache: could not create cache dir, caching disabled", "dir", dir, "error", err)
		return &Cache{dir: ""}
	}
	return &Cache{dir: dir}
}

// OpenAt forces a specific cache root, used by tests.
func OpenAt(dir string) *Cache {
	_ = os.MkdirAll(dir, 0o755)
	return &Cache{dir: dir}
}

func resolveCacheDir() string {
	if v := os.Getenv("AUDIOSYNC_CACHE_DIR"); v != "" {
		return v
	}
	if ucd, err := os.UserCacheDir(); err == nil && ucd != "" {
		return filepath.Join(ucd, "AudioSync", "cache")
	}
	return filepath.Join(os.TempDir(), "audiosync_cache")
}

func (c *Cache) path(key Key) string {
	if c.dir == "" {
		return ""
	}
	return filepath.Join(c.dir, key.Digest()+".f32z")
}

// Get returns the cached buffer for key, or (nil, false) if absent or
// corrupted.
func (c *Cache) Get(key Key) ([]float32, bool) {
	p := c.path(key)
	if p == "" {
		return nil, false
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, false
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, false
	}
	defer dec.Close()

	raw, err := io.ReadAll(dec)
	if err != nil || len(raw)%4 != 0 {
		return nil, false
	}

	out := make([]float32, len(raw)/4)
	for i := range out {
		bits := binary.LittleEndian.Uint32(raw[i*4:])
		out[i] = math.Float32frombits(bits)
	}
	return out, true
}

// Put stores buf under key. All I/O failures are swallowed; the cache
// is a pure optimisation.
func (c *Cache) Put(key Key, buf []float32) {
	p := c.path(key)
	if p == "" {
		return
	}

	raw := make([]byte, len(buf)*4)
	for i, v := range buf {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(v))
	}

	tmp := p + fmt.Sprintf(".tmp-%d", os.Getpid())
	f, err := os.Create(tmp)
	if err != nil {
		slog.Debug("segment cache: put failed", "error", err)
		return
	}

	enc, err := zstd.NewWriter(f)
	if err != nil {
		slog.Debug("segment cache: put failed", "error", err)
		f.Close()
		os.Remove(tmp)
		return
	}
	if _, err := enc.Write(raw); err != nil {
		slog.Debug("segment cache: put failed", "error", err)
		enc.Close()
		f.Close()
		os.Remove(tmp)
		return
	}
	if err := enc.Close(); err != nil {
		slog.Debug("segment cache: put failed", "error", err)
		f.Close()
		os.Remove(tmp)
		return
	}
	if err := f.Close(); err != nil {
		slog.Debug("segment cache: put failed", "error", err)
		os.Remove(tmp)
		return
	}
	// Rename is atomic on the same filesystem; concurrent writers of the
	// same key produce byte-identical contents so losing a race is safe.
	if err := os.Rename(tmp, p); err != nil {
		slog.Debug("segment cache: put failed", "error", err)
		os.Remove(tmp)
		return
	}
	slog.Debug("segment cache: stored entry", "key", key.Digest()[:12], "raw", humanize.Bytes(uint64(len(raw))))
}

