package store

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/mail"
	"strings"
	"time"

	"github.com/emersion/go-message/textproto"

	"github.com/maildrift/mailedit/model"
)

// CopyHeader writes the header block of raw to w, applying the filtering in
// opts, and returns the body bytes that follow the blank separator line.
// A leading mbox "From " separator line is never part of the header proper
// and is always skipped. Folded continuation lines follow the fate of the
// field they belong to.
func CopyHeader(w io.Writer, raw []byte, opts CopyOptions) ([]byte, error) {
	rest := raw
	skipping := false
	first := true

	for len(rest) > 0 {
		line := rest
		if i := bytes.IndexByte(rest, '\n'); i >= 0 {
			line = rest[:i+1]
			rest = rest[i+1:]
		} else {
			rest = nil
		}

		if isBlankLine(line) {
			return rest, nil
		}

		if first {
			first = false
			if bytes.HasPrefix(line, []byte("From ")) {
				continue
			}
		}

		if line[0] == ' ' || line[0] == '\t' {
			// continuation of the previous field
			if skipping {
				continue
			}
		} else {
			skipping = dropField(line, opts)
			if skipping {
				continue
			}
		}

		if _, err := w.Write(line); err != nil {
			return nil, err
		}
	}

	// header ran to the end of the message, no body
	return nil, nil
}

func isBlankLine(line []byte) bool {
	return len(bytes.TrimRight(line, "\r\n")) == 0
}

func dropField(line []byte, opts CopyOptions) bool {
	i := bytes.IndexByte(line, ':')
	if i < 0 {
		return false
	}
	switch strings.ToLower(string(bytes.TrimSpace(line[:i]))) {
	case "content-length", "lines":
		return true
	case "status", "x-status":
		return opts.ExcludeStatus
	}
	return false
}

// writeStatus regenerates the message with Status/X-Status header lines
// derived from flags, in place of whatever the raw copy carried.
func writeStatus(w io.Writer, raw []byte, flags model.FlagSet) error {
	body, err := CopyHeader(w, raw, CopyOptions{ExcludeStatus: true})
	if err != nil {
		return err
	}
	status, xstatus := formatStatus(flags)
	if status != "" {
		if _, err := fmt.Fprintf(w, "Status: %s\n", status); err != nil {
			return err
		}
	}
	if xstatus != "" {
		if _, err := fmt.Fprintf(w, "X-Status: %s\n", xstatus); err != nil {
			return err
		}
	}
	if _, err := w.Write([]byte("\n")); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

// parseStatus decodes mbox Status/X-Status characters.
func parseStatus(status, xstatus string) model.FlagSet {
	flags := model.NewFlagSet()
	for _, r := range status {
		switch r {
		case 'R':
			flags.Set(model.FlagSeen, true)
		case 'O':
			flags.Set(model.FlagOld, true)
		}
	}
	for _, r := range xstatus {
		switch r {
		case 'A':
			flags.Set(model.FlagAnswered, true)
		case 'F':
			flags.Set(model.FlagFlagged, true)
		}
	}
	return flags
}

func formatStatus(flags model.FlagSet) (status, xstatus string) {
	if flags.Has(model.FlagSeen) {
		status += "R"
	}
	if flags.Has(model.FlagOld) {
		status += "O"
	}
	if flags.Has(model.FlagAnswered) {
		xstatus += "A"
	}
	if flags.Has(model.FlagFlagged) {
		xstatus += "F"
	}
	return status, xstatus
}

// summary is the metadata a backend pulls out of a raw message on scan.
type summary struct {
	envelopeFrom string
	date         time.Time
	flags        model.FlagSet
}

// parseSummary is best-effort: a message with a broken header still gets a
// handle, just with zero metadata.
func parseSummary(raw []byte) summary {
	sum := summary{flags: model.NewFlagSet()}

	hdr, err := textproto.ReadHeader(bufio.NewReader(bytes.NewReader(raw)))
	if err != nil && hdr.Len() == 0 {
		return sum
	}

	sum.flags = parseStatus(hdr.Get("Status"), hdr.Get("X-Status"))

	if from := hdr.Get("From"); from != "" {
		if addr, err := mail.ParseAddress(from); err == nil {
			sum.envelopeFrom = addr.Address
		}
	}
	if date := hdr.Get("Date"); date != "" {
		if t, err := mail.ParseDate(date); err == nil {
			sum.date = t
		}
	}

	return sum
}

// ParseFromLine recognizes an mbox "From " separator line and recovers the
// envelope sender and asctime date from it.
func ParseFromLine(line string) (from string, date time.Time, ok bool) {
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, "From ") {
		return "", time.Time{}, false
	}

	fields := strings.Fields(line[len("From "):])
	if len(fields) < 6 {
		return "", time.Time{}, false
	}

	t, err := time.Parse(time.ANSIC, strings.Join(fields[len(fields)-5:], " "))
	if err != nil {
		return "", time.Time{}, false
	}

	return strings.Join(fields[:len(fields)-5], " "), t, true
}
