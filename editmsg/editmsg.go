// Package editmsg implements the edit/view/reimport pipeline: a message is
// staged into an ephemeral single-message mailbox, handed to the external
// editor, and, when editing is permitted and something actually changed,
// committed back into the permanent mailbox as a replacement message.
package editmsg

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/maildrift/mailedit/editor"
	"github.com/maildrift/mailedit/model"
	"github.com/maildrift/mailedit/report"
	"github.com/maildrift/mailedit/state"
	"github.com/maildrift/mailedit/store"
)

// The terminal error kinds. Each aborts the current message; in batch mode
// the remaining batch is abandoned too.
var (
	ErrStoreCreate = errors.New("create staging mailbox")
	ErrExport      = errors.New("export message")
	ErrStat        = errors.New("stat staging file")
	ErrStoreAppend = errors.New("append to mailbox")
	ErrCommit      = errors.New("commit message")
)

// Selection tells the batch coordinator which messages are tagged.
type Selection interface {
	IsTagged(i int) bool
}

// Options wires one edit run.
type Options struct {
	Mailbox store.Mailbox
	Editor  editor.Runner

	// Report receives user-facing status and error lines. Optional.
	Report report.Reporter
	Logger *slog.Logger

	// Journal records preserved staging files after failures. Optional.
	Journal *state.Journal

	// TempDir is where staging containers are created. Defaults to the
	// system temp directory.
	TempDir string

	// UntagAfterDelete clears the tag flag of the original message once its
	// replacement is committed.
	UntagAfterDelete bool

	// Collect tallies per-message outcomes for the run summary. Optional.
	Collect *report.Collector
}

func (o *Options) normalize() {
	if o.Report == nil {
		o.Report = nopReporter{}
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
}

type nopReporter struct{}

func (nopReporter) Status(string, ...any) {}
func (nopReporter) Error(string, ...any)  {}

// Edit runs one editable attempt for msg.
func Edit(opts Options, msg *model.Message) (model.Outcome, error) {
	return one(opts, true, msg)
}

// View runs one view-only attempt for msg: the editor is invoked the same
// way, but any change it makes is discarded.
func View(opts Options, msg *model.Message) (model.Outcome, error) {
	return one(opts, false, msg)
}

// EditTagged edits every tagged message in store order. The first failed
// attempt aborts the batch; unmodified outcomes do not.
func EditTagged(opts Options, sel Selection) error {
	return tagged(opts, true, sel)
}

// ViewTagged views every tagged message in store order.
func ViewTagged(opts Options, sel Selection) error {
	return tagged(opts, false, sel)
}

func tagged(opts Options, edit bool, sel Selection) error {
	for _, msg := range opts.Mailbox.Messages() {
		if !sel.IsTagged(msg.Index) {
			continue
		}
		if _, err := one(opts, edit, msg); err != nil {
			return err
		}
	}
	return nil
}

// one runs the full pipeline for a single message. The returned outcome is
// OutcomeFailed exactly when the error is non-nil.
func one(opts Options, edit bool, msg *model.Message) (outcome model.Outcome, err error) {
	opts.normalize()
	defer func() {
		if opts.Collect != nil {
			opts.Collect.Add(outcome)
		}
	}()

	stg, err := newStaging(opts.TempDir)
	if err != nil {
		opts.Report.Error("could not create temporary folder: %v", err)
		return model.OutcomeFailed, err
	}

	edited := false // the editor has had a chance to write user data
	defer func() {
		stg.teardown(opts, msg, outcome, edited, err)
	}()

	if err := stg.export(opts.Mailbox, msg); err != nil {
		opts.Report.Error("could not write temporary mail folder: %v", err)
		return model.OutcomeFailed, err
	}

	if !edit {
		// Best-effort hint only. The mtime gate below is what actually
		// keeps a read-only mailbox read-only.
		if err := clearWritePerms(stg.path); err != nil {
			opts.Logger.Debug("could not remove write permissions", "path", stg.path, "err", err)
		}
	}

	base, err := decreaseMtime(stg.path)
	if err != nil {
		opts.Report.Error("can't stat %s: %v", stg.path, err)
		return model.OutcomeFailed, fmt.Errorf("%w: %v", ErrStat, err)
	}

	edited = true
	if err := opts.Editor.Run(stg.path); err != nil {
		// A crashed editor is not terminal: the gate below decides what,
		// if anything, survived.
		opts.Report.Error("editor failed: %v", err)
		opts.Logger.Warn("editor failed", "path", stg.path, "err", err)
	}

	st, err := os.Stat(stg.path)
	if err != nil {
		opts.Report.Error("can't stat %s: %v", stg.path, err)
		return model.OutcomeFailed, fmt.Errorf("%w: %v", ErrStat, err)
	}

	switch {
	case st.Size() == 0:
		opts.Report.Status("Message file is empty")
		return model.OutcomeUnmodified, nil
	case edit && st.ModTime().Equal(base):
		opts.Report.Status("Message not modified")
		return model.OutcomeUnmodified, nil
	case !edit && !st.ModTime().Equal(base):
		opts.Report.Status("Message of read-only mailbox modified! Ignoring changes.")
		return model.OutcomeUnmodified, nil
	case !edit:
		return model.OutcomeUnmodified, nil
	}

	if err := reimport(opts, msg, stg.path); err != nil {
		return model.OutcomeFailed, err
	}

	postProcess(opts, msg)
	return model.OutcomeCommitted, nil
}

// postProcess marks the original message for removal by the store's own
// compaction once the replacement is committed.
func postProcess(opts Options, msg *model.Message) {
	mbx := opts.Mailbox
	for _, f := range []model.Flag{model.FlagDeleted, model.FlagPurge, model.FlagSeen} {
		if err := mbx.SetFlag(msg, f, true); err != nil {
			opts.Logger.Warn("set flag", "flag", f, "index", msg.Index, "err", err)
		}
	}
	if opts.UntagAfterDelete {
		if err := mbx.SetFlag(msg, model.FlagTagged, false); err != nil {
			opts.Logger.Warn("clear tag flag", "index", msg.Index, "err", err)
		}
	}
}

func clearWritePerms(path string) error {
	st, err := os.Stat(path)
	if err != nil {
		return err
	}
	return os.Chmod(path, st.Mode().Perm()&^0o222)
}

// decreaseMtime pushes the file's modification time strictly into the past
// when it would otherwise equal the current clock tick, so that an editor
// rewriting the file within the same tick still shows up as a change.
func decreaseMtime(path string) (time.Time, error) {
	st, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}

	mt := st.ModTime()
	now := time.Now()
	if mt.Unix() >= now.Unix() {
		mt = time.Unix(now.Unix()-1, 0)
		if err := os.Chtimes(path, mt, mt); err != nil {
			return time.Time{}, err
		}
		// report what the filesystem will, not what we asked for
		st, err = os.Stat(path)
		if err != nil {
			return time.Time{}, err
		}
		mt = st.ModTime()
	}
	return mt, nil
}
