package report

import (
	"testing"

	"github.com/maildrift/mailedit/model"
)

func TestRecorder(t *testing.T) {
	rec := &Recorder{}
	rec.Status("staged %d of %d", 1, 3)
	rec.Error("editor failed: %v", "boom")

	if len(rec.Statuses) != 1 || rec.Statuses[0] != "staged 1 of 3" {
		t.Fatalf("statuses = %v", rec.Statuses)
	}
	if len(rec.Errors) != 1 || rec.Errors[0] != "editor failed: boom" {
		t.Fatalf("errors = %v", rec.Errors)
	}
}

func TestCollector(t *testing.T) {
	c := NewCollector()
	c.Add(model.OutcomeCommitted)
	c.Add(model.OutcomeCommitted)
	c.Add(model.OutcomeUnmodified)
	c.Add(model.OutcomeFailed)

	got := c.Snapshot()
	want := Summary{Committed: 2, Unmodified: 1, Failed: 1}
	if got != want {
		t.Fatalf("summary = %+v, want %+v", got, want)
	}

	attrs := got.LogAttrs()
	if len(attrs) != 6 {
		t.Fatalf("LogAttrs returned %d values", len(attrs))
	}
}
