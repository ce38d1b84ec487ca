// Package datacache persists collected grade data per user identity so
// records stay viewable offline. Cached data has no TTL, it stays valid
// until the user explicitly refreshes or clears it.
package datacache

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	koubs "koubs-backend/lib/platforms/koubs"
)

// SchemaVersion tags the envelope format on disk.
const SchemaVersion = "1.0.0"

// Metadata is advisory; counts are recomputed at write time and are
// never trusted for correctness-critical use at read time.
type Metadata struct {
	Username       string  `json:"username"`
	LastUpdated    float64 `json:"last_updated"`
	Version        string  `json:"version"`
	TotalSemesters int     `json:"total_semesters"`
	TotalCourses   int     `json:"total_courses"`
}

type envelope struct {
	Metadata  Metadata        `json:"metadata"`
	Semesters koubs.Aggregate `json:"semesters"`
}

type Cache struct {
	dir string
	now func() time.Time
}

func NewCache(dir string) Cache {
	return Cache{dir: dir, now: time.Now}
}

func identityHash(identity string) string {
	sum := md5.Sum([]byte(identity))
	return hex.EncodeToString(sum[:])[:12]
}

func (c Cache) path(identity string) string {
	return filepath.Join(c.dir, fmt.Sprintf("user_%s.json", identityHash(identity)))
}

// Save wholesale-overwrites the identity's cache file with the given
// aggregate. The write is atomic at the file level, a cancelled or
// crashed run leaves the prior file untouched.
func (c Cache) Save(identity string, aggregate koubs.Aggregate) error {
	err := os.MkdirAll(c.dir, 0700)
	if err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	wrapped := envelope{
		Metadata: Metadata{
			Username:       identity,
			LastUpdated:    float64(c.now().UnixNano()) / float64(time.Second),
			Version:        SchemaVersion,
			TotalSemesters: len(aggregate),
			TotalCourses:   aggregate.TotalCourses(),
		},
		Semesters: aggregate,
	}
	serialized, err := json.MarshalIndent(wrapped, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize cache: %w", err)
	}

	path := c.path(identity)
	tmp := path + ".tmp"
	err = os.WriteFile(tmp, serialized, 0600)
	if err != nil {
		return fmt.Errorf("write cache: %w", err)
	}
	err = os.Rename(tmp, path)
	if err != nil {
		return fmt.Errorf("write cache: %w", err)
	}
	return nil
}

// Load returns the cached aggregate, or found=false when there is none.
// Zero-byte and shape-invalid files count as corrupt: they are deleted
// and read as absent rather than surfacing an error.
func (c Cache) Load(identity string) (aggregate koubs.Aggregate, found bool) {
	path := c.path(identity)

	stat, err := os.Stat(path)
	if err != nil {
		return nil, false
	}
	if stat.Size() == 0 {
		slog.Warn("deleting empty cache file", "path", path)
		_ = os.Remove(path)
		return nil, false
	}

	serialized, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("failed to read cache file", "path", path, "err", err)
		return nil, false
	}

	var top map[string]json.RawMessage
	err = json.Unmarshal(serialized, &top)
	if err != nil {
		slog.Warn("deleting corrupt cache file", "path", path, "err", err)
		_ = os.Remove(path)
		return nil, false
	}
	semesters, hasSemesters := top["semesters"]
	_, hasMetadata := top["metadata"]
	if !hasSemesters || !hasMetadata {
		slog.Warn("deleting cache file with invalid shape", "path", path)
		_ = os.Remove(path)
		return nil, false
	}

	err = json.Unmarshal(semesters, &aggregate)
	if err != nil {
		slog.Warn("deleting corrupt cache file", "path", path, "err", err)
		_ = os.Remove(path)
		return nil, false
	}
	return aggregate, true
}

// Exists is a cheap existence + non-zero size check, no parsing.
func (c Cache) Exists(identity string) bool {
	stat, err := os.Stat(c.path(identity))
	return err == nil && stat.Size() > 0
}

// Info describes a cache file without necessarily parsing all of it.
type Info struct {
	FileSize     int64
	LastModified time.Time
	// Metadata is nil when the file could not be parsed; size and
	// modification time are still meaningful then.
	Metadata *Metadata
}

// Info sniffs the metadata block cheaply, falling back to a full parse,
// falling back to a bare filesystem stat with unknown counts.
func (c Cache) Info(identity string) (Info, bool) {
	path := c.path(identity)
	stat, err := os.Stat(path)
	if err != nil {
		return Info{}, false
	}
	out := Info{FileSize: stat.Size(), LastModified: stat.ModTime()}

	head := make([]byte, 512)
	f, err := os.Open(path)
	if err != nil {
		return out, true
	}
	n, _ := f.Read(head)
	f.Close()

	if !strings.Contains(string(head[:n]), `"metadata"`) {
		return out, true
	}
	serialized, err := os.ReadFile(path)
	if err != nil {
		return out, true
	}
	var wrapped envelope
	err = json.Unmarshal(serialized, &wrapped)
	if err != nil {
		return out, true
	}
	out.Metadata = &wrapped.Metadata
	return out, true
}

// Clear deletes the identity's cache file. It is idempotent.
func (c Cache) Clear(identity string) error {
	err := os.Remove(c.path(identity))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
