// Package wal manages on-disk WAL epoch files: the raw, ordered record of
// every test_decoding line received for a time-bounded window, kept so a
// crash between parse and warehouse-apply can be replayed instead of
// losing data. Grounded on original_source/src/wal_file_manager.rs.
package wal

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/meetcleo/cdc-pipeline/pkg/log"
)

// Epoch is a reference-counted handle to one WAL segment file. Multiple
// goroutines (the line reader appending, a flush timer reading for
// rotation) can hold a reference; the file is only removed once every
// holder has released it and the epoch has been durably applied.
type Epoch struct {
	Number uint64

	mu   sync.Mutex
	file *os.File
	path string

	refCount int32
	errored  atomic.Bool
}

// epochFileName renders a WAL number as the hex-16 filename the original
// implementation uses, so operators can sort directory listings by
// creation order.
func epochFileName(number uint64) string {
	return fmt.Sprintf("%016X.wal", number)
}

// OpenEpoch creates (or, on restart, reopens for append) the WAL file for
// the given epoch number under dir. The returned Epoch starts with a
// reference count of 1; call Acquire/Release to share it across
// goroutines.
func OpenEpoch(dir string, number uint64) (*Epoch, error) {
	path := filepath.Join(dir, epochFileName(number))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("wal: open epoch %d: %w", number, err)
	}
	return &Epoch{Number: number, file: f, path: path, refCount: 1}, nil
}

// Acquire increments the epoch's reference count and returns it, mirroring
// cloning an Arc<Mutex<...>> in the original implementation.
func (e *Epoch) Acquire() *Epoch {
	atomic.AddInt32(&e.refCount, 1)
	return e
}

// WriteLine appends one raw line (without its trailing newline) to the
// epoch file. Write errors set the epoch's error flag, which callers
// should check before relying on this epoch for replay.
func (e *Epoch) WriteLine(line string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.file.WriteString(line + "\n"); err != nil {
		e.errored.Store(true)
		return fmt.Errorf("wal: write to epoch %d: %w", e.Number, err)
	}
	return nil
}

// Errored reports whether any write to this epoch has failed. A pipeline
// must not delete an errored epoch: it may be incomplete and needed for
// manual recovery.
func (e *Epoch) Errored() bool {
	return e.errored.Load()
}

// Release decrements the reference count. When it reaches zero and clean
// is true (the epoch was fully applied with no write errors), the
// backing file is closed and removed; otherwise it is just closed,
// leaving the file on disk for replay on the next startup.
func (e *Epoch) Release(clean bool) error {
	if atomic.AddInt32(&e.refCount, -1) > 0 {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.file.Close(); err != nil {
		return fmt.Errorf("wal: close epoch %d: %w", e.Number, err)
	}
	if clean && !e.errored.Load() {
		if err := os.Remove(e.path); err != nil && !os.IsNotExist(err) {
			log.Warnf("wal: remove applied epoch %d: %v", e.Number, err)
		}
	}
	return nil
}

// ReplayEarliest lists dir for *.wal files left over from a previous run
// (a crash before their epochs were cleanly released) and returns their
// epoch numbers in ascending order, so the caller can replay them before
// resuming live input.
func ReplayEarliest(dir string) ([]uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("wal: list %s: %w", dir, err)
	}
	var numbers []uint64
	for _, ent := range entries {
		if ent.IsDir() || filepath.Ext(ent.Name()) != ".wal" {
			continue
		}
		var n uint64
		if _, err := fmt.Sscanf(ent.Name(), "%016X.wal", &n); err != nil {
			continue
		}
		numbers = append(numbers, n)
	}
	for i := 1; i < len(numbers); i++ {
		for j := i; j > 0 && numbers[j-1] > numbers[j]; j-- {
			numbers[j-1], numbers[j] = numbers[j], numbers[j-1]
		}
	}
	return numbers, nil
}

// ReadLines returns every line previously written to the epoch file at
// number, used to replay a crash-orphaned epoch at startup.
func ReadLines(dir string, number uint64) ([]string, error) {
	path := filepath.Join(dir, epochFileName(number))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("wal: read epoch %d: %w", number, err)
	}
	var lines []string
	start := 0
	for i, b := range data {
		if b == '\n' {
			lines = append(lines, string(data[start:i]))
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, string(data[start:]))
	}
	return lines, nil
}
