package editmsg

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/maildrift/mailedit/model"
	"github.com/maildrift/mailedit/state"
	"github.com/maildrift/mailedit/store"
)

// staging is the ephemeral single-message container handed to the editor.
// It always uses the mbox format, whatever the permanent store uses: mbox
// can hold an arbitrary byte stream followed by a record separator.
type staging struct {
	path   string
	format store.Format
	mbx    store.Mailbox
}

func newStaging(tempDir string) (*staging, error) {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	path := filepath.Join(tempDir, "mailedit-"+uuid.NewString())

	format := store.FormatMbox
	mbx, err := store.Create(path, format)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreCreate, err)
	}
	return &staging{path: path, format: format, mbx: mbx}, nil
}

// export serializes the message into the staging container and strips the
// trailing record separator, so repeated edit/save cycles do not accumulate
// blank lines.
func (s *staging) export(perm store.Mailbox, msg *model.Message) error {
	app, err := s.mbx.Append()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExport, err)
	}

	// A format that does not carry Status header lines natively would only
	// be confused by them after reimport, so they are stripped up front.
	opts := store.CopyOptions{ExcludeStatus: !perm.Format().NativeStatusHeaders()}
	if err := store.CopyMessage(app, perm, msg, opts); err != nil {
		app.Close()
		s.mbx.Close()
		return fmt.Errorf("%w: %v", ErrExport, err)
	}
	if err := app.Close(); err != nil {
		s.mbx.Close()
		return fmt.Errorf("%w: %v", ErrExport, err)
	}
	if err := s.mbx.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrExport, err)
	}

	st, err := os.Stat(s.path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExport, err)
	}
	if n := int64(s.format.TrailerLen()); n > 0 && st.Size() >= n {
		if err := os.Truncate(s.path, st.Size()-n); err != nil {
			return fmt.Errorf("%w: truncate trailer: %v", ErrExport, err)
		}
	}
	return nil
}

// teardown removes the staging file unless the attempt failed after the
// editor ran; then the file is deliberately preserved, its path reported,
// and a journal entry recorded so the unsaved edit can be recovered.
func (s *staging) teardown(opts Options, msg *model.Message, outcome model.Outcome, edited bool, cause error) {
	if outcome != model.OutcomeFailed || !edited {
		os.Remove(s.path)
		return
	}

	opts.Report.Error("Error. Preserving temporary file: %s", s.path)
	if opts.Journal != nil {
		entry := state.Entry{
			StagingPath: s.path,
			Mailbox:     opts.Mailbox.Path(),
			Index:       msg.Index,
			Time:        time.Now(),
		}
		if cause != nil {
			entry.Err = cause.Error()
		}
		if err := opts.Journal.Record(entry); err != nil {
			opts.Logger.Warn("record journal entry", "path", s.path, "err", err)
		}
	}
}
