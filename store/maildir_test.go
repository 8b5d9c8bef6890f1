package store

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/maildrift/mailedit/model"
)

func writeSampleMaildir(t *testing.T) string {
	t.Helper()
	root := filepath.Join(t.TempDir(), "mail")
	for _, sub := range []string{"tmp", "new", "cur"} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o700); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}

	write := func(rel, content string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(root, rel), []byte(content), 0o600); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}

	write("new/1000.aaa.host", "From: Alice <alice@example.com>\nSubject: fresh\n\nfresh body\n")
	write("cur/2000.bbb.host:2,S", "From: Bob <bob@example.com>\nSubject: seen\n\nseen body\n")
	write("cur/3000.ccc.host:2,", "From: Carol <carol@example.com>\nSubject: old\n\nold body\n")

	return root
}

func TestOpenMaildir(t *testing.T) {
	root := writeSampleMaildir(t)
	mbx, err := Open(root, FormatMaildir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer mbx.Close()

	msgs := mbx.Messages()
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}

	// sorted by key
	if msgs[0].Key != "1000.aaa.host" || msgs[2].Key != "3000.ccc.host" {
		t.Fatalf("unexpected key order: %q %q %q", msgs[0].Key, msgs[1].Key, msgs[2].Key)
	}

	if msgs[0].Flags.Has(model.FlagSeen) || msgs[0].Flags.Has(model.FlagOld) {
		t.Fatalf("new/ message flags = %v, want none", msgs[0].Flags)
	}
	if !msgs[1].Flags.Has(model.FlagSeen) {
		t.Fatalf("cur/ S message flags = %v, want seen", msgs[1].Flags)
	}
	if !msgs[2].Flags.Has(model.FlagOld) {
		t.Fatalf("cur/ unseen message flags = %v, want old", msgs[2].Flags)
	}

	rc, err := mbx.Open(msgs[0])
	if err != nil {
		t.Fatalf("Open message: %v", err)
	}
	raw, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		t.Fatalf("read message: %v", err)
	}
	if !strings.Contains(string(raw), "fresh body") {
		t.Fatalf("unexpected message content: %q", raw)
	}
}

func TestMaildirSetFlagRenames(t *testing.T) {
	root := writeSampleMaildir(t)
	mbx, err := Open(root, FormatMaildir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer mbx.Close()

	fresh := mbx.Messages()[0]
	if err := mbx.SetFlag(fresh, model.FlagSeen, true); err != nil {
		t.Fatalf("SetFlag: %v", err)
	}

	want := filepath.Join(root, "cur", fresh.Key+":2,S")
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("message not renamed to %s: %v", want, err)
	}
	if _, err := os.Stat(filepath.Join(root, "new", fresh.Key)); !os.IsNotExist(err) {
		t.Fatalf("old file still present under new/")
	}
	if !mbx.Dirty() {
		t.Fatalf("mailbox not dirty after a persisted flag change")
	}
}

func TestMaildirAppendPlacement(t *testing.T) {
	tests := []struct {
		name    string
		flags   []model.Flag
		wantDir string
		wantSuf string
	}{
		{name: "unseen lands in new", flags: nil, wantDir: "new", wantSuf: ""},
		{name: "seen lands in cur", flags: []model.Flag{model.FlagSeen}, wantDir: "cur", wantSuf: ":2,S"},
		{name: "old lands in cur", flags: []model.Flag{model.FlagOld}, wantDir: "cur", wantSuf: ":2,"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := filepath.Join(t.TempDir(), "mail")
			mbx, err := Create(root, FormatMaildir)
			if err != nil {
				t.Fatalf("Create: %v", err)
			}
			defer mbx.Close()

			flags := model.NewFlagSet()
			for _, f := range tt.flags {
				flags.Set(f, true)
			}

			app, err := mbx.Append()
			if err != nil {
				t.Fatalf("Append: %v", err)
			}
			pending, err := app.Create(model.Creation{Flags: flags})
			if err != nil {
				t.Fatalf("Create message: %v", err)
			}
			if _, err := pending.Write([]byte("Subject: delivered\n\nbody\n")); err != nil {
				t.Fatalf("Write: %v", err)
			}
			if err := pending.Commit(); err != nil {
				t.Fatalf("Commit: %v", err)
			}
			if err := app.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}

			des, err := os.ReadDir(filepath.Join(root, tt.wantDir))
			if err != nil {
				t.Fatalf("readdir: %v", err)
			}
			if len(des) != 1 {
				t.Fatalf("got %d files under %s/, want 1", len(des), tt.wantDir)
			}
			if tt.wantSuf == "" {
				if strings.Contains(des[0].Name(), ":2,") {
					t.Fatalf("unexpected info suffix: %s", des[0].Name())
				}
			} else if !strings.HasSuffix(des[0].Name(), tt.wantSuf) {
				t.Fatalf("file %s missing suffix %q", des[0].Name(), tt.wantSuf)
			}

			// nothing may linger in tmp/
			tmps, err := os.ReadDir(filepath.Join(root, "tmp"))
			if err != nil {
				t.Fatalf("readdir tmp: %v", err)
			}
			if len(tmps) != 0 {
				t.Fatalf("%d files left in tmp/", len(tmps))
			}
		})
	}
}

func TestMaildirAbandonedAppend(t *testing.T) {
	root := filepath.Join(t.TempDir(), "mail")
	mbx, err := Create(root, FormatMaildir)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer mbx.Close()

	app, err := mbx.Append()
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	pending, err := app.Create(model.Creation{Flags: model.NewFlagSet()})
	if err != nil {
		t.Fatalf("Create message: %v", err)
	}
	if _, err := pending.Write([]byte("Subject: partial\n\nnever committed\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := app.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	for _, sub := range []string{"tmp", "new", "cur"} {
		des, err := os.ReadDir(filepath.Join(root, sub))
		if err != nil {
			t.Fatalf("readdir %s: %v", sub, err)
		}
		if len(des) != 0 {
			t.Fatalf("abandoned append left %d files in %s/", len(des), sub)
		}
	}
}

func TestMaildirSyncUnlinksPurged(t *testing.T) {
	root := writeSampleMaildir(t)
	mbx, err := Open(root, FormatMaildir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer mbx.Close()

	victim := mbx.Messages()[1]
	if err := mbx.SetFlag(victim, model.FlagDeleted, true); err != nil {
		t.Fatalf("SetFlag: %v", err)
	}
	if err := mbx.SetFlag(victim, model.FlagPurge, true); err != nil {
		t.Fatalf("SetFlag: %v", err)
	}
	if err := mbx.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	if got := len(mbx.Messages()); got != 2 {
		t.Fatalf("got %d messages after sync, want 2", got)
	}
	if _, err := mbx.Open(victim); err == nil {
		t.Fatalf("purged message still readable")
	}
	for i, msg := range mbx.Messages() {
		if msg.Index != i {
			t.Fatalf("message %q not reindexed: %d", msg.Key, msg.Index)
		}
	}
}
