package demo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Recorder queues items in arrival order. Limit caps the number of items;
// zero records until Flush.
type Recorder[T any] struct {
	Limit int

	items []T
}

// Record appends v. It returns false, dropping v, once Limit is reached.
func (r *Recorder[T]) Record(v T) bool {
	if r.Limit > 0 && len(r.items) >= r.Limit {
		return false
	}
	r.items = append(r.items, v)
	return true
}

func (r *Recorder[T]) Len() int { return len(r.items) }

// Full reports whether Limit has been reached.
func (r *Recorder[T]) Full() bool { return r.Limit > 0 && len(r.items) >= r.Limit }

// Snapshot returns a copy of the queued items.
func (r *Recorder[T]) Snapshot() []T {
	out := make([]T, len(r.items))
	copy(out, r.items)
	return out
}

// Reset drops queued items.
func (r *Recorder[T]) Reset() { r.items = r.items[:0] }

// Flush clears the queue and returns what it held.
func (r *Recorder[T]) Flush() []T {
	out := r.Snapshot()
	r.Reset()
	return out
}

// Save flushes the recorder into dir using codec. A blank name becomes the
// recording start time; an existing file is never overwritten, an underscore
// is appended to the name instead.
func Save[T any](r *Recorder[T], dir, name string, codec Codec[T], started time.Time) (string, error) {
	if r.Len() == 0 {
		return "", fmt.Errorf("nothing recorded")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating demo dir: %w", err)
	}
	path := filepath.Join(dir, RecordingName(dir, name, started))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", path, err)
	}
	if err := codec.Encode(f, r.Flush()); err != nil {
		f.Close()
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, f.Close()
}

// RecordingName picks a free file name in dir for a new recording.
func RecordingName(dir, name string, started time.Time) string {
	name = strings.TrimSuffix(name, Ext)
	if name == "" {
		name = started.Format("20060102-150405")
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, name+Ext)); os.IsNotExist(err) {
			return name + Ext
		}
		name += "_"
	}
}
