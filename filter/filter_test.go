package filter

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/maildrift/mailedit/model"
	"github.com/maildrift/mailedit/store"
)

const filterMbox = "From alice@example.com Thu Jan  1 10:00:00 2015\n" +
	"From: Alice <alice@example.com>\n" +
	"Subject: meeting notes\n" +
	"\n" +
	"see you tomorrow\n" +
	"\n" +
	"From bob@example.com Fri Jan  2 11:00:00 2015\n" +
	"From: Bob <bob@example.com>\n" +
	"Subject: invoice\n" +
	"\n" +
	"payment is due\n" +
	"\n" +
	"From carol@example.com Sat Jan  3 12:00:00 2015\n" +
	"From: Carol <carol@example.com>\n" +
	"Subject: weekend plans\n" +
	"\n" +
	"barbecue on sunday\n"

func openFilterMbox(t *testing.T) store.Mailbox {
	t.Helper()
	path := filepath.Join(t.TempDir(), "inbox.mbox")
	if err := os.WriteFile(path, []byte(filterMbox), 0o600); err != nil {
		t.Fatalf("write mbox: %v", err)
	}
	mbx, err := store.Open(path, store.FormatMbox)
	if err != nil {
		t.Fatalf("open mbox: %v", err)
	}
	t.Cleanup(func() { mbx.Close() })
	return mbx
}

func TestSelect(t *testing.T) {
	tests := []struct {
		name       string
		opts       Options
		wantTagged []int // 0-based
	}{
		{
			name:       "explicit numbers",
			opts:       Options{Tags: []int{1, 3}},
			wantTagged: []int{0, 2},
		},
		{
			name:       "header pattern",
			opts:       Options{MatchHeader: []string{"Subject: invoice"}},
			wantTagged: []int{1},
		},
		{
			name:       "body pattern",
			opts:       Options{MatchBody: []string{"barbecue"}},
			wantTagged: []int{2},
		},
		{
			name:       "numbers and patterns combine",
			opts:       Options{Tags: []int{1}, MatchBody: []string{"payment"}},
			wantTagged: []int{0, 1},
		},
		{
			name:       "no match",
			opts:       Options{MatchBody: []string{"absent text"}},
			wantTagged: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mbx := openFilterMbox(t)
			sel, err := Select(mbx, tt.opts)
			if err != nil {
				t.Fatalf("Select: %v", err)
			}
			if sel.Count() != len(tt.wantTagged) {
				t.Fatalf("Count = %d, want %d", sel.Count(), len(tt.wantTagged))
			}
			for _, idx := range tt.wantTagged {
				if !sel.IsTagged(idx) {
					t.Fatalf("message %d not tagged", idx)
				}
				if !mbx.Messages()[idx].Flags.Has(model.FlagTagged) {
					t.Fatalf("tag flag not set on message %d", idx)
				}
			}
		})
	}
}

func TestSelectOutOfRange(t *testing.T) {
	mbx := openFilterMbox(t)
	_, err := Select(mbx, Options{Tags: []int{4}})
	if err == nil {
		t.Fatalf("expected an error for a message number past the end")
	}
	if !strings.Contains(err.Error(), "no message 4") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSelectBadPattern(t *testing.T) {
	mbx := openFilterMbox(t)
	if _, err := Select(mbx, Options{MatchHeader: []string{"("}}); err == nil {
		t.Fatalf("expected a compile error")
	}
}

func TestFilterMatches(t *testing.T) {
	f, err := New(Options{MatchHeader: []string{"^Subject: urgent"}, MatchBody: []string{"deadline"}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !f.Active() {
		t.Fatalf("filter with patterns reports inactive")
	}
	if !f.Matches([]byte("Subject: urgent request"), nil) {
		t.Fatalf("header pattern did not match")
	}
	if !f.Matches(nil, []byte("the deadline is friday")) {
		t.Fatalf("body pattern did not match")
	}
	if f.Matches([]byte("Subject: hello"), []byte("nothing relevant")) {
		t.Fatalf("unexpected match")
	}
}

func TestSplitRawMessage(t *testing.T) {
	header, body := splitRawMessage([]byte("A: 1\nB: 2\n\nthe body\n"))
	if string(header) != "A: 1\nB: 2" {
		t.Fatalf("header = %q", header)
	}
	if string(body) != "the body\n" {
		t.Fatalf("body = %q", body)
	}

	header, body = splitRawMessage([]byte("A: 1\nno blank line"))
	if body != nil {
		t.Fatalf("expected nil body, got %q", body)
	}
	if len(header) == 0 {
		t.Fatalf("header lost")
	}
}
