// Package report carries user-facing status and error messages out of the
// edit pipeline, and counts per-message outcomes for the batch summary.
package report

import (
	"fmt"
	"sync"

	"github.com/pterm/pterm"

	"github.com/maildrift/mailedit/model"
)

// Reporter receives fire-and-forget messages for the user. The pipeline
// never consumes a return value from it.
type Reporter interface {
	Status(format string, args ...any)
	Error(format string, args ...any)
}

// Console writes through pterm printers.
type Console struct{}

func (Console) Status(format string, args ...any) {
	pterm.Info.Printf(format+"\n", args...)
}

func (Console) Error(format string, args ...any) {
	pterm.Error.Printf(format+"\n", args...)
}

// Recorder captures messages for tests.
type Recorder struct {
	mu       sync.Mutex
	Statuses []string
	Errors   []string
}

func (r *Recorder) Status(format string, args ...any) {
	r.mu.Lock()
	r.Statuses = append(r.Statuses, fmt.Sprintf(format, args...))
	r.mu.Unlock()
}

func (r *Recorder) Error(format string, args ...any) {
	r.mu.Lock()
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.mu.Unlock()
}

// Summary counts the outcomes of one batch run.
type Summary struct {
	Committed  int
	Unmodified int
	Failed     int
}

func (s Summary) LogAttrs() []any {
	return []any{
		"committed", s.Committed,
		"unmodified", s.Unmodified,
		"failed", s.Failed,
	}
}

// Collector tallies outcomes as the batch coordinator reports them.
type Collector struct {
	mu      sync.Mutex
	summary Summary
}

func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) Add(o model.Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch o {
	case model.OutcomeCommitted:
		c.summary.Committed++
	case model.OutcomeUnmodified:
		c.summary.Unmodified++
	case model.OutcomeFailed:
		c.summary.Failed++
	}
}

func (c *Collector) Snapshot() Summary {
	c.mu.Lock()
	summary := c.summary
	c.mu.Unlock()
	return summary
}
