package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestJournalRecordAndReload(t *testing.T) {
	dir := t.TempDir()

	j, err := NewJournal(dir)
	if err != nil {
		t.Fatalf("NewJournal: %v", err)
	}
	if got := len(j.List()); got != 0 {
		t.Fatalf("fresh journal has %d entries", got)
	}

	entry := Entry{
		StagingPath: "/tmp/mailedit-abc",
		Mailbox:     "/home/u/inbox.mbox",
		Index:       3,
		Time:        time.Now().Truncate(time.Second),
		Err:         "disk full",
	}
	if err := j.Record(entry); err != nil {
		t.Fatalf("Record: %v", err)
	}

	reloaded, err := NewJournal(dir)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	entries := reloaded.List()
	if len(entries) != 1 {
		t.Fatalf("got %d entries after reload, want 1", len(entries))
	}
	got := entries[0]
	if got.StagingPath != entry.StagingPath || got.Mailbox != entry.Mailbox ||
		got.Index != entry.Index || got.Err != entry.Err {
		t.Fatalf("entry mismatch: %+v", got)
	}
}

func TestJournalSkipsCorruptLines(t *testing.T) {
	dir := t.TempDir()
	content := `{"staging_path":"/tmp/a","mailbox":"/m","index":0,"time":"2026-01-02T15:04:05Z"}
this line is not json
{"staging_path":"/tmp/b","mailbox":"/m","index":1,"time":"2026-01-02T15:05:05Z"}
`
	if err := os.WriteFile(filepath.Join(dir, "journal.jsonl"), []byte(content), 0o600); err != nil {
		t.Fatalf("write journal: %v", err)
	}

	j, err := NewJournal(dir)
	if err != nil {
		t.Fatalf("NewJournal: %v", err)
	}
	entries := j.List()
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].StagingPath != "/tmp/a" || entries[1].StagingPath != "/tmp/b" {
		t.Fatalf("wrong entries survived: %+v", entries)
	}
}

func TestJournalPrune(t *testing.T) {
	dir := t.TempDir()
	j, err := NewJournal(dir)
	if err != nil {
		t.Fatalf("NewJournal: %v", err)
	}

	alive := filepath.Join(t.TempDir(), "alive")
	if err := os.WriteFile(alive, []byte("x"), 0o600); err != nil {
		t.Fatalf("write staging file: %v", err)
	}

	if err := j.Record(Entry{StagingPath: alive, Time: time.Now()}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := j.Record(Entry{StagingPath: filepath.Join(dir, "gone"), Time: time.Now()}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	kept, err := j.Prune()
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if len(kept) != 1 || kept[0].StagingPath != alive {
		t.Fatalf("kept = %+v, want only the live staging file", kept)
	}

	reloaded, err := NewJournal(dir)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := len(reloaded.List()); got != 1 {
		t.Fatalf("pruned journal has %d entries on disk, want 1", got)
	}
}

func TestJournalEmptyStateDir(t *testing.T) {
	if _, err := NewJournal("  "); err == nil {
		t.Fatalf("expected an error for an empty state directory")
	}
}
