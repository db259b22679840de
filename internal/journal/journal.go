// Package journal records the locations a client confirmed, so a restarted
// client can resume where it left off and step back through its history.
package journal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	defaultFileMode = 0644
	defaultDirMode  = 0755

	// DefaultKeep is how many entries survive compaction when Open is given
	// no explicit limit.
	DefaultKeep = 500
)

const (
	opVisit = "visit"
	opBack  = "back"
)

// Entry is one visited location.
type Entry struct {
	Seq      uint64    `json:"seq"`
	Location string    `json:"location"`
	At       time.Time `json:"at"`
}

type record struct {
	Op string `json:"op"`
	Entry
}

// Journal is an append-only JSONL history of visited locations.
// Back is recorded as its own line and folded in on the next Open.
type Journal struct {
	mu      sync.Mutex
	path    string
	keep    int
	file    *os.File
	nextSeq uint64
	entries []Entry
}

// Open creates or opens a journal at path. On startup it folds the file into
// the last keep entries and ignores a partially written trailing line.
func Open(path string, keep int) (*Journal, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("journal: path is empty")
	}
	if keep <= 0 {
		keep = DefaultKeep
	}
	if err := os.MkdirAll(filepath.Dir(path), defaultDirMode); err != nil {
		return nil, fmt.Errorf("journal: mkdir: %w", err)
	}

	entries, maxSeq, err := load(path)
	if err != nil {
		return nil, err
	}
	if len(entries) > keep {
		entries = entries[len(entries)-keep:]
	}
	if err := compact(path, entries); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, defaultFileMode)
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}

	return &Journal{
		path:    path,
		keep:    keep,
		file:    f,
		nextSeq: maxSeq + 1,
		entries: entries,
	}, nil
}

// Append records a visit to loc and returns its sequence number. A visit to
// the location already at the top is not recorded again.
func (j *Journal) Append(loc string) (uint64, error) {
	if strings.TrimSpace(loc) == "" {
		return 0, errors.New("journal: empty location")
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if n := len(j.entries); n > 0 && j.entries[n-1].Location == loc {
		return j.entries[n-1].Seq, nil
	}

	e := Entry{Seq: j.nextSeq, Location: loc, At: time.Now().UTC()}
	if err := j.write(record{Op: opVisit, Entry: e}); err != nil {
		return 0, err
	}
	j.nextSeq++
	j.entries = append(j.entries, e)
	if len(j.entries) > j.keep {
		j.entries = j.entries[len(j.entries)-j.keep:]
	}
	return e.Seq, nil
}

// Back drops the current entry and returns the one before it. It reports
// false when there is nowhere to go back to.
func (j *Journal) Back() (Entry, bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	n := len(j.entries)
	if n < 2 {
		return Entry{}, false, nil
	}
	top := j.entries[n-1]
	if err := j.write(record{Op: opBack, Entry: Entry{Seq: top.Seq, At: time.Now().UTC()}}); err != nil {
		return Entry{}, false, err
	}
	j.entries = j.entries[:n-1]
	return j.entries[n-2], true, nil
}

// Last returns the most recent entry.
func (j *Journal) Last() (Entry, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if len(j.entries) == 0 {
		return Entry{}, false
	}
	return j.entries[len(j.entries)-1], true
}

// Entries returns the history, oldest first.
func (j *Journal) Entries() []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Entry, len(j.entries))
	copy(out, j.entries)
	return out
}

// Close closes the underlying journal file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	return err
}

func (j *Journal) write(r record) error {
	if j.file == nil {
		return errors.New("journal: closed")
	}
	line, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("journal: marshal entry: %w", err)
	}
	line = append(line, '\n')

	if _, err := j.file.Write(line); err != nil {
		return fmt.Errorf("journal: write entry: %w", err)
	}
	if err := j.file.Sync(); err != nil {
		return fmt.Errorf("journal: sync entry: %w", err)
	}
	return nil
}

// load replays the file into the visit stack.
func load(path string) ([]Entry, uint64, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, defaultFileMode)
	if err != nil {
		return nil, 0, fmt.Errorf("journal: open for load: %w", err)
	}
	defer f.Close()

	var (
		entries []Entry
		maxSeq  uint64
	)
	reader := bufio.NewReader(f)
	for {
		line, rerr := reader.ReadBytes('\n')
		if rerr != nil && !errors.Is(rerr, io.EOF) {
			return nil, 0, fmt.Errorf("journal: load read: %w", rerr)
		}
		if len(line) == 0 || !strings.HasSuffix(string(line), "\n") {
			// Empty or partial trailing line.
			break
		}

		var r record
		if uerr := json.Unmarshal(line, &r); uerr != nil {
			break
		}
		if r.Seq > maxSeq {
			maxSeq = r.Seq
		}
		switch r.Op {
		case opBack:
			if n := len(entries); n > 1 && entries[n-1].Seq == r.Seq {
				entries = entries[:n-1]
			}
		default:
			entries = append(entries, r.Entry)
		}

		if errors.Is(rerr, io.EOF) {
			break
		}
	}
	return entries, maxSeq, nil
}

// compact rewrites path to hold exactly entries, via a temp file and rename.
func compact(path string, entries []Entry) error {
	tmpPath := path + ".compact"
	dst, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_RDWR, defaultFileMode)
	if err != nil {
		return fmt.Errorf("journal: open compact tmp: %w", err)
	}

	w := bufio.NewWriter(dst)
	enc := json.NewEncoder(w)
	for _, e := range entries {
		if err := enc.Encode(record{Op: opVisit, Entry: e}); err != nil {
			_ = dst.Close()
			_ = os.Remove(tmpPath)
			return fmt.Errorf("journal: compact write: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = dst.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("journal: compact flush: %w", err)
	}
	if err := dst.Sync(); err != nil {
		_ = dst.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("journal: compact sync: %w", err)
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("journal: compact close: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("journal: compact rename: %w", err)
	}
	return nil
}
