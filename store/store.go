// Package store holds the message-store engine: the Mailbox abstraction the
// edit pipeline works against and its mbox and maildir backends.
package store

import (
	"fmt"
	"io"

	"github.com/maildrift/mailedit/model"
)

// Format identifies an on-disk mailbox format.
type Format int

const (
	FormatMbox Format = iota
	FormatMaildir
)

// ParseFormat maps a config value to a Format.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "", "mbox":
		return FormatMbox, nil
	case "maildir":
		return FormatMaildir, nil
	default:
		return 0, fmt.Errorf("unknown mailbox format %q", s)
	}
}

func (f Format) String() string {
	switch f {
	case FormatMbox:
		return "mbox"
	case FormatMaildir:
		return "maildir"
	default:
		return "unknown"
	}
}

// NativeStatusHeaders reports whether the format carries message flags in
// Status/X-Status header lines. Formats that keep flags elsewhere (maildir
// filenames) regenerate them, so copies into or out of such stores strip the
// header lines instead.
func (f Format) NativeStatusHeaders() bool {
	return f == FormatMbox
}

// TrailerLen is the number of record-separator bytes the format's framing
// appends after the last message of a container ("\n\n" for mbox). A
// single-message container handed to an editor must have exactly this many
// bytes truncated so repeated edit/save cycles do not accumulate blank
// lines.
func (f Format) TrailerLen() int {
	if f == FormatMbox {
		return 2
	}
	return 0
}

// Mailbox is one open message store. Implementations keep message metadata
// in memory; flag changes become visible on disk at SetFlag (maildir) or
// Sync (mbox) time.
type Mailbox interface {
	Path() string
	Format() Format

	// Messages returns the messages in store order. The slice reflects the
	// store as it was opened; messages appended later through Append are not
	// listed but survive Sync untouched.
	Messages() []*model.Message

	// Open returns the raw header+body bytes of one message.
	Open(msg *model.Message) (io.ReadCloser, error)

	// Append opens the store for appending exactly like a fresh handle; the
	// caller owns the Appender for a single open/operate/close span.
	Append() (Appender, error)

	// SetFlag changes one flag on one message. Session-only flags stay in
	// memory; persisted flags reach disk by SetFlag or the next Sync,
	// depending on the backend.
	SetFlag(msg *model.Message, flag model.Flag, on bool) error

	// Dirty reports whether the store has uncommitted flag changes or
	// appended messages since open.
	Dirty() bool

	// Sync applies pending flag changes and drops messages flagged both
	// Deleted and Purge. It is the store's own compaction step.
	Sync() error

	Close() error
}

// Appender is a store opened in append mode.
type Appender interface {
	// Create starts a new message. All placement and metadata decisions are
	// derived from the Creation value, never from live message state.
	Create(c model.Creation) (Pending, error)

	// Close releases the append handle. An uncommitted pending message is
	// rolled back so no partial message stays visible.
	Close() error
}

// Pending is a message being written. Commit finalizes it; abandoning it
// (closing the Appender without Commit) must leave the store unchanged.
type Pending interface {
	io.Writer
	Commit() error
}

// Create makes a new, empty store at path. The format is always passed
// explicitly; there is no process-wide default to toggle.
func Create(path string, format Format) (Mailbox, error) {
	switch format {
	case FormatMbox:
		return createMbox(path)
	case FormatMaildir:
		return createMaildir(path)
	default:
		return nil, fmt.Errorf("create %s: unknown format", path)
	}
}

// Open opens an existing store at path.
func Open(path string, format Format) (Mailbox, error) {
	switch format {
	case FormatMbox:
		return openMbox(path)
	case FormatMaildir:
		return openMaildir(path)
	default:
		return nil, fmt.Errorf("open %s: unknown format", path)
	}
}

// CopyOptions select the header filtering applied when a message is copied
// between stores. Content-Length and Lines headers are always dropped; an
// edited copy invalidates them.
type CopyOptions struct {
	// ExcludeStatus drops Status and X-Status header lines from the copy.
	ExcludeStatus bool
}

// CopyMessage serializes one message of src into dst: filtered header block,
// one separating blank line, then the body verbatim.
func CopyMessage(dst Appender, src Mailbox, msg *model.Message, opts CopyOptions) error {
	rc, err := src.Open(msg)
	if err != nil {
		return fmt.Errorf("open message %d: %w", msg.Index, err)
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return fmt.Errorf("read message %d: %w", msg.Index, err)
	}

	pending, err := dst.Create(model.Creation{
		Flags:        msg.Flags.Clone(),
		EnvelopeFrom: msg.EnvelopeFrom,
		Date:         msg.Date,
	})
	if err != nil {
		return fmt.Errorf("create message: %w", err)
	}

	body, err := CopyHeader(pending, raw, opts)
	if err != nil {
		return fmt.Errorf("copy header: %w", err)
	}
	if _, err := pending.Write([]byte("\n")); err != nil {
		return err
	}
	if _, err := pending.Write(body); err != nil {
		return err
	}

	return pending.Commit()
}
