package store

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/maildrift/mailedit/model"
)

// maildirMailbox stores one message per file under new/ and cur/ with flags
// encoded in the ":2," filename suffix. Flag changes are applied by renaming
// immediately; Sync only has to unlink purged messages.
type maildirMailbox struct {
	path  string
	msgs  []*model.Message
	files map[string]string // key -> path relative to the maildir root
	dirty bool
}

func createMaildir(path string) (Mailbox, error) {
	for _, sub := range []string{"tmp", "new", "cur"} {
		if err := os.MkdirAll(filepath.Join(path, sub), 0o700); err != nil {
			return nil, fmt.Errorf("create maildir %s: %w", path, err)
		}
	}
	return &maildirMailbox{path: path, files: make(map[string]string)}, nil
}

func openMaildir(path string) (Mailbox, error) {
	m := &maildirMailbox{path: path, files: make(map[string]string)}

	type entry struct {
		key string
		rel string
		cur bool
	}
	var entries []entry

	for _, sub := range []string{"new", "cur"} {
		dir := filepath.Join(path, sub)
		des, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("open maildir %s: %w", path, err)
		}
		for _, de := range des {
			if de.IsDir() || strings.HasPrefix(de.Name(), ".") {
				continue
			}
			key, _, _ := strings.Cut(de.Name(), ":2,")
			entries = append(entries, entry{
				key: key,
				rel: filepath.Join(sub, de.Name()),
				cur: sub == "cur",
			})
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })

	for i, e := range entries {
		flags := parseInfo(e.rel)
		if e.cur && !flags.Has(model.FlagSeen) {
			flags.Set(model.FlagOld, true)
		}

		raw, err := os.ReadFile(filepath.Join(path, e.rel))
		if err != nil {
			return nil, fmt.Errorf("open maildir %s: %w", path, err)
		}
		sum := parseSummary(raw)

		m.msgs = append(m.msgs, &model.Message{
			Index:        i,
			Key:          e.key,
			EnvelopeFrom: sum.envelopeFrom,
			Date:         sum.date,
			Flags:        flags,
		})
		m.files[e.key] = e.rel
	}

	return m, nil
}

func parseInfo(rel string) model.FlagSet {
	flags := model.NewFlagSet()
	_, info, found := strings.Cut(filepath.Base(rel), ":2,")
	if !found {
		return flags
	}
	for _, r := range info {
		switch r {
		case 'S':
			flags.Set(model.FlagSeen, true)
		case 'R':
			flags.Set(model.FlagAnswered, true)
		case 'F':
			flags.Set(model.FlagFlagged, true)
		case 'T':
			flags.Set(model.FlagDeleted, true)
		}
	}
	return flags
}

func formatInfo(flags model.FlagSet) string {
	var b strings.Builder
	if flags.Has(model.FlagFlagged) {
		b.WriteByte('F')
	}
	if flags.Has(model.FlagAnswered) {
		b.WriteByte('R')
	}
	if flags.Has(model.FlagSeen) {
		b.WriteByte('S')
	}
	if flags.Has(model.FlagDeleted) {
		b.WriteByte('T')
	}
	return b.String()
}

func persistedInMaildir(flag model.Flag) bool {
	switch flag {
	case model.FlagSeen, model.FlagAnswered, model.FlagFlagged, model.FlagDeleted:
		return true
	}
	return false
}

func newKey() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return fmt.Sprintf("%d.%s.%s", time.Now().UnixNano(), uuid.NewString(), host)
}

func (m *maildirMailbox) Path() string   { return m.path }
func (m *maildirMailbox) Format() Format { return FormatMaildir }

func (m *maildirMailbox) Messages() []*model.Message { return m.msgs }

func (m *maildirMailbox) Open(msg *model.Message) (io.ReadCloser, error) {
	rel, ok := m.files[msg.Key]
	if !ok {
		return nil, fmt.Errorf("maildir %s: no message %q", m.path, msg.Key)
	}
	f, err := os.Open(filepath.Join(m.path, rel))
	if err != nil {
		return nil, fmt.Errorf("maildir %s: %w", m.path, err)
	}
	return f, nil
}

func (m *maildirMailbox) SetFlag(msg *model.Message, flag model.Flag, on bool) error {
	msg.Flags.Set(flag, on)
	if !persistedInMaildir(flag) {
		if flag == model.FlagPurge {
			m.dirty = true
		}
		return nil
	}
	m.dirty = true
	return m.rename(msg)
}

// rename moves the message file to the location its current flags demand:
// cur/ with an info suffix once any flag is set, new/ otherwise.
func (m *maildirMailbox) rename(msg *model.Message) error {
	rel, ok := m.files[msg.Key]
	if !ok {
		return fmt.Errorf("maildir %s: no message %q", m.path, msg.Key)
	}

	info := formatInfo(msg.Flags)
	var want string
	if info == "" && !msg.Flags.Has(model.FlagOld) {
		want = filepath.Join("new", msg.Key)
	} else {
		want = filepath.Join("cur", msg.Key+":2,"+info)
	}
	if want == rel {
		return nil
	}

	if err := os.Rename(filepath.Join(m.path, rel), filepath.Join(m.path, want)); err != nil {
		return fmt.Errorf("maildir %s: %w", m.path, err)
	}
	m.files[msg.Key] = want
	return nil
}

func (m *maildirMailbox) Dirty() bool { return m.dirty }

func (m *maildirMailbox) Append() (Appender, error) {
	return &maildirAppender{mb: m}, nil
}

type maildirAppender struct {
	mb      *maildirMailbox
	pending *maildirPending
}

func (a *maildirAppender) Create(c model.Creation) (Pending, error) {
	key := newKey()
	tmp := filepath.Join(a.mb.path, "tmp", key)
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("maildir %s: deliver: %w", a.mb.path, err)
	}
	a.pending = &maildirPending{a: a, f: f, tmp: tmp, key: key, flags: c.Flags.Clone()}
	return a.pending, nil
}

func (a *maildirAppender) Close() error {
	if a.pending != nil && !a.pending.committed {
		a.pending.f.Close()
		os.Remove(a.pending.tmp)
	}
	return nil
}

type maildirPending struct {
	a         *maildirAppender
	f         *os.File
	tmp       string
	key       string
	flags     model.FlagSet
	committed bool
}

func (p *maildirPending) Write(b []byte) (int, error) { return p.f.Write(b) }

func (p *maildirPending) Commit() error {
	if err := p.f.Sync(); err != nil {
		p.f.Close()
		return fmt.Errorf("maildir %s: deliver: %w", p.a.mb.path, err)
	}
	if err := p.f.Close(); err != nil {
		return fmt.Errorf("maildir %s: deliver: %w", p.a.mb.path, err)
	}

	// Unseen and not old means the message lands in new/, exactly like a
	// fresh delivery. Anything else goes straight to cur/.
	info := formatInfo(p.flags)
	var rel string
	if info == "" && !p.flags.Has(model.FlagOld) {
		rel = filepath.Join("new", p.key)
	} else {
		rel = filepath.Join("cur", p.key+":2,"+info)
	}

	if err := os.Rename(p.tmp, filepath.Join(p.a.mb.path, rel)); err != nil {
		return fmt.Errorf("maildir %s: deliver: %w", p.a.mb.path, err)
	}
	p.committed = true
	p.a.mb.dirty = true
	return nil
}

func (m *maildirMailbox) Sync() error {
	var kept []*model.Message
	for _, msg := range m.msgs {
		if msg.Flags.Has(model.FlagDeleted) && msg.Flags.Has(model.FlagPurge) {
			rel, ok := m.files[msg.Key]
			if !ok {
				continue
			}
			if err := os.Remove(filepath.Join(m.path, rel)); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("sync maildir %s: %w", m.path, err)
			}
			delete(m.files, msg.Key)
			continue
		}
		msg.Index = len(kept)
		kept = append(kept, msg)
	}
	m.msgs = kept
	m.dirty = false
	return nil
}

func (m *maildirMailbox) Close() error {
	m.msgs = nil
	m.files = nil
	return nil
}
