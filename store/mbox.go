package store

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/emersion/go-mbox"

	"github.com/maildrift/mailedit/model"
)

// mboxMailbox keeps the scanned messages in memory and rewrites the file on
// Sync. Messages appended through Append go straight to the file and are not
// part of the in-memory listing.
type mboxMailbox struct {
	path  string
	msgs  []*model.Message
	raws  [][]byte
	dirty bool
}

func createMbox(path string) (Mailbox, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create mbox %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("create mbox %s: %w", path, err)
	}
	return &mboxMailbox{path: path}, nil
}

func openMbox(path string) (Mailbox, error) {
	m := &mboxMailbox{path: path}
	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *mboxMailbox) load() error {
	f, err := os.Open(m.path)
	if err != nil {
		return fmt.Errorf("open mbox %s: %w", m.path, err)
	}
	defer f.Close()

	m.msgs = nil
	m.raws = nil

	r := mbox.NewReader(f)
	for i := 0; ; i++ {
		mr, err := r.NextMessage()
		if errors.Is(err, io.EOF) {
			return nil
		} else if err != nil {
			return fmt.Errorf("mbox %s message %d: %w", m.path, i, err)
		}

		raw, err := io.ReadAll(mr)
		if err != nil {
			return fmt.Errorf("mbox %s message %d: %w", m.path, i, err)
		}

		raw = trimSeparatorPadding(raw)
		sum := parseSummary(raw)
		m.msgs = append(m.msgs, &model.Message{
			Index:        i,
			EnvelopeFrom: sum.envelopeFrom,
			Date:         sum.date,
			Flags:        sum.flags,
		})
		m.raws = append(m.raws, raw)
	}
}

// trimSeparatorPadding drops the trailing blank lines the mbox framing pads
// a message with. The reader hands that padding back as message content;
// left in place it would grow the body by one blank line per write/read
// cycle.
func trimSeparatorPadding(raw []byte) []byte {
	for {
		rest := raw
		switch {
		case bytes.HasSuffix(rest, []byte("\r\n")):
			rest = rest[:len(rest)-2]
		case bytes.HasSuffix(rest, []byte("\n")):
			rest = rest[:len(rest)-1]
		default:
			return raw
		}
		if len(rest) > 0 && rest[len(rest)-1] != '\n' {
			return raw
		}
		raw = rest
	}
}

func (m *mboxMailbox) Path() string   { return m.path }
func (m *mboxMailbox) Format() Format { return FormatMbox }

func (m *mboxMailbox) Messages() []*model.Message { return m.msgs }

func (m *mboxMailbox) Open(msg *model.Message) (io.ReadCloser, error) {
	if msg.Index < 0 || msg.Index >= len(m.raws) {
		return nil, fmt.Errorf("mbox %s: no message %d", m.path, msg.Index)
	}
	return io.NopCloser(bytes.NewReader(m.raws[msg.Index])), nil
}

func (m *mboxMailbox) SetFlag(msg *model.Message, flag model.Flag, on bool) error {
	msg.Flags.Set(flag, on)
	if flag != model.FlagTagged {
		m.dirty = true
	}
	return nil
}

func (m *mboxMailbox) Dirty() bool { return m.dirty }

func (m *mboxMailbox) Append() (Appender, error) {
	f, err := os.OpenFile(m.path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("append to mbox %s: %w", m.path, err)
	}

	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("append to mbox %s: %w", m.path, err)
	}

	// Foreign files may lack the final newline the next separator needs.
	if size > 0 {
		var last [1]byte
		if _, err := f.ReadAt(last[:], size-1); err != nil {
			f.Close()
			return nil, fmt.Errorf("append to mbox %s: %w", m.path, err)
		}
		if last[0] != '\n' {
			if _, err := f.Write([]byte("\n")); err != nil {
				f.Close()
				return nil, fmt.Errorf("append to mbox %s: %w", m.path, err)
			}
		}
	}

	return &mboxAppender{mb: m, f: f, w: mbox.NewWriter(f), start: size}, nil
}

type mboxAppender struct {
	mb        *mboxMailbox
	f         *os.File
	w         *mbox.Writer
	start     int64
	committed bool
}

func (a *mboxAppender) Create(c model.Creation) (Pending, error) {
	from := c.EnvelopeFrom
	if from == "" {
		from = "MAILER-DAEMON"
	}
	date := c.Date
	if date.IsZero() {
		date = time.Now()
	}

	mw, err := a.w.CreateMessage(from, date)
	if err != nil {
		return nil, fmt.Errorf("mbox %s: start message: %w", a.mb.path, err)
	}
	return &mboxPending{a: a, w: mw}, nil
}

func (a *mboxAppender) Close() error {
	if !a.committed {
		// roll back whatever a pending message already wrote
		if err := a.f.Truncate(a.start); err != nil {
			a.f.Close()
			return fmt.Errorf("mbox %s: roll back append: %w", a.mb.path, err)
		}
	}
	return a.f.Close()
}

type mboxPending struct {
	a *mboxAppender
	w io.Writer
}

func (p *mboxPending) Write(b []byte) (int, error) { return p.w.Write(b) }

func (p *mboxPending) Commit() error {
	if err := p.a.w.Close(); err != nil {
		return fmt.Errorf("mbox %s: finish message: %w", p.a.mb.path, err)
	}
	if err := p.a.f.Sync(); err != nil {
		return fmt.Errorf("mbox %s: sync: %w", p.a.mb.path, err)
	}
	p.a.committed = true
	p.a.mb.dirty = true
	return nil
}

// Sync rewrites the mbox: Status headers are regenerated from the in-memory
// flags, messages flagged Deleted+Purge are dropped, and messages appended
// during the session are carried over untouched. The rewrite lands in a temp
// file first and replaces the original atomically.
func (m *mboxMailbox) Sync() error {
	if !m.dirty {
		return nil
	}

	src, err := os.Open(m.path)
	if err != nil {
		return fmt.Errorf("sync mbox %s: %w", m.path, err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(filepath.Dir(m.path), ".mailedit-sync-")
	if err != nil {
		return fmt.Errorf("sync mbox %s: %w", m.path, err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	w := mbox.NewWriter(tmp)
	r := mbox.NewReader(src)

	var kept []*model.Message
	var keptRaw [][]byte

	for i := 0; ; i++ {
		mr, err := r.NextMessage()
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return fmt.Errorf("sync mbox %s: message %d: %w", m.path, i, err)
		}

		raw, err := io.ReadAll(mr)
		if err != nil {
			return fmt.Errorf("sync mbox %s: message %d: %w", m.path, i, err)
		}
		raw = trimSeparatorPadding(raw)

		if i < len(m.msgs) {
			msg := m.msgs[i]
			if msg.Flags.Has(model.FlagDeleted) && msg.Flags.Has(model.FlagPurge) {
				continue
			}

			var buf bytes.Buffer
			if err := writeStatus(&buf, raw, msg.Flags); err != nil {
				return fmt.Errorf("sync mbox %s: message %d: %w", m.path, i, err)
			}
			if err := m.writeTo(w, msg.EnvelopeFrom, msg.Date, buf.Bytes()); err != nil {
				return err
			}

			msg.Index = len(kept)
			kept = append(kept, msg)
			keptRaw = append(keptRaw, buf.Bytes())
			continue
		}

		// appended during this session, pass through as-is
		sum := parseSummary(raw)
		if err := m.writeTo(w, sum.envelopeFrom, sum.date, raw); err != nil {
			return err
		}
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("sync mbox %s: %w", m.path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("sync mbox %s: %w", m.path, err)
	}
	if err := os.Rename(tmp.Name(), m.path); err != nil {
		return fmt.Errorf("sync mbox %s: %w", m.path, err)
	}

	m.msgs = kept
	m.raws = keptRaw
	m.dirty = false
	return nil
}

func (m *mboxMailbox) writeTo(w *mbox.Writer, from string, date time.Time, raw []byte) error {
	if from == "" {
		from = "MAILER-DAEMON"
	}
	if date.IsZero() {
		date = time.Now()
	}
	mw, err := w.CreateMessage(from, date)
	if err != nil {
		return fmt.Errorf("sync mbox %s: %w", m.path, err)
	}
	if _, err := mw.Write(raw); err != nil {
		return fmt.Errorf("sync mbox %s: %w", m.path, err)
	}
	return nil
}

func (m *mboxMailbox) Close() error {
	m.msgs = nil
	m.raws = nil
	return nil
}
