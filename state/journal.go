// Package state persists the recovery journal: one record per staging file
// that was preserved after a failed edit attempt, so unsaved edits can be
// found again later.
package state

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Entry points at one preserved staging file.
type Entry struct {
	StagingPath string    `json:"staging_path"`
	Mailbox     string    `json:"mailbox"`
	Index       int       `json:"index"`
	Time        time.Time `json:"time"`
	Err         string    `json:"err,omitempty"`
}

// Journal is an append-only JSONL file. Records are flushed immediately: a
// failed attempt must not also lose the pointer to its preserved file.
type Journal struct {
	path string

	mu      sync.Mutex
	entries []Entry
}

func NewJournal(stateDir string) (*Journal, error) {
	if strings.TrimSpace(stateDir) == "" {
		return nil, fmt.Errorf("state directory is empty")
	}
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	j := &Journal{path: filepath.Join(stateDir, "journal.jsonl")}
	if err := j.load(); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *Journal) load() error {
	file, err := os.Open(j.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			// skip corrupt records, the rest of the journal is still useful
			continue
		}
		j.entries = append(j.entries, e)
	}
	return scanner.Err()
}

// Record appends one entry and syncs it to disk before returning.
func (j *Journal) Record(e Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode journal entry: %w", err)
	}

	file, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open journal for append: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write journal entry: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("sync journal: %w", err)
	}

	j.entries = append(j.entries, e)
	return nil
}

// List returns all known entries, oldest first.
func (j *Journal) List() []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Entry, len(j.entries))
	copy(out, j.entries)
	return out
}

// Prune drops entries whose staging file no longer exists and rewrites the
// journal. It returns the entries that were kept.
func (j *Journal) Prune() ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var kept []Entry
	for _, e := range j.entries {
		if _, err := os.Stat(e.StagingPath); err == nil {
			kept = append(kept, e)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(j.path), ".journal-")
	if err != nil {
		return nil, fmt.Errorf("rewrite journal: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	w := bufio.NewWriter(tmp)
	for _, e := range kept {
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("encode journal entry: %w", err)
		}
		if _, err := w.Write(append(data, '\n')); err != nil {
			return nil, fmt.Errorf("rewrite journal: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return nil, fmt.Errorf("rewrite journal: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("rewrite journal: %w", err)
	}
	if err := os.Rename(tmp.Name(), j.path); err != nil {
		return nil, fmt.Errorf("rewrite journal: %w", err)
	}

	j.entries = kept
	return kept, nil
}
