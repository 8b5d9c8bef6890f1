package editmsg

import (
	"bytes"
	"fmt"
	"os"

	"github.com/maildrift/mailedit/model"
	"github.com/maildrift/mailedit/store"
)

// reimport commits the edited staging file back into the permanent mailbox
// as a new message. The original message is left untouched: on any failure
// the store contains no partial replacement.
func reimport(opts Options, msg *model.Message, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		opts.Report.Error("can't open message file: %v", err)
		return fmt.Errorf("%w: %v", ErrStat, err)
	}

	perm := opts.Mailbox
	app, err := perm.Append()
	if err != nil {
		opts.Report.Error("can't append to folder: %v", err)
		return fmt.Errorf("%w: %v", ErrStoreAppend, err)
	}

	// The creation context reflects a freshly appended message, so the
	// store's placement decisions (maildir new/ versus cur/) come out
	// right. The live message keeps its own flags throughout.
	flags := msg.Flags.Clone()
	flags.Set(model.FlagSeen, false)
	flags.Set(model.FlagOld, false)

	creation := model.Creation{
		Flags:        flags,
		EnvelopeFrom: msg.EnvelopeFrom,
		Date:         msg.Date,
	}

	// If the user kept (or wrote) an mbox separator line, its envelope data
	// wins over the stored metadata.
	firstLine := raw
	if i := bytes.IndexByte(raw, '\n'); i >= 0 {
		firstLine = raw[:i]
	}
	if from, date, ok := store.ParseFromLine(string(firstLine)); ok {
		creation.EnvelopeFrom = from
		creation.Date = date
	}

	pending, err := app.Create(creation)
	if err != nil {
		app.Close()
		opts.Report.Error("can't append to folder: %v", err)
		return fmt.Errorf("%w: %v", ErrStoreAppend, err)
	}

	copts := store.CopyOptions{ExcludeStatus: !perm.Format().NativeStatusHeaders()}
	if err := writeMessage(pending, raw, copts); err != nil {
		app.Close()
		opts.Report.Error("can't write message: %v", err)
		return fmt.Errorf("%w: %v", ErrCommit, err)
	}

	if err := pending.Commit(); err != nil {
		app.Close()
		opts.Report.Error("can't commit message: %v", err)
		return fmt.Errorf("%w: %v", ErrCommit, err)
	}

	if err := app.Close(); err != nil {
		opts.Report.Error("can't append to folder: %v", err)
		return fmt.Errorf("%w: %v", ErrStoreAppend, err)
	}
	return nil
}

// writeMessage copies the filtered header block, exactly one separating
// newline, then the remaining body bytes verbatim.
func writeMessage(pending store.Pending, raw []byte, opts store.CopyOptions) error {
	body, err := store.CopyHeader(pending, raw, opts)
	if err != nil {
		return err
	}
	if _, err := pending.Write([]byte("\n")); err != nil {
		return err
	}
	if _, err := pending.Write(body); err != nil {
		return err
	}
	return nil
}
