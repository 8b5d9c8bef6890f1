// Package filter builds the active selection: the set of tagged messages a
// batch edit run works through.
package filter

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/maildrift/mailedit/model"
	"github.com/maildrift/mailedit/store"
)

// Options captures the selection configuration.
type Options struct {
	// Tags are explicit 1-based message numbers.
	Tags []int
	// MatchHeader and MatchBody tag every message whose header or body
	// matches one of the regexps.
	MatchHeader []string
	MatchBody   []string
}

// Filter holds compiled regex patterns for tagging messages.
type Filter struct {
	header []*regexp.Regexp
	body   []*regexp.Regexp
}

// New creates a new Filter from the provided options.
func New(opts Options) (*Filter, error) {
	header, err := compilePatterns(opts.MatchHeader)
	if err != nil {
		return nil, fmt.Errorf("compile match-header pattern: %w", err)
	}
	body, err := compilePatterns(opts.MatchBody)
	if err != nil {
		return nil, fmt.Errorf("compile match-body pattern: %w", err)
	}
	return &Filter{header: header, body: body}, nil
}

// Active reports whether any pattern is configured.
func (f *Filter) Active() bool {
	return len(f.header) > 0 || len(f.body) > 0
}

// Matches reports whether the message matches any configured pattern.
func (f *Filter) Matches(header, body []byte) bool {
	return matchAny(f.header, string(header)) || matchAny(f.body, string(body))
}

// Selection answers is-tagged queries for the batch coordinator.
type Selection struct {
	tagged map[int]bool
}

// Select tags messages of mbx per opts: explicit message numbers first, then
// pattern matches. Tagged messages get model.FlagTagged set so a later
// untag-after-delete is observable on the store.
func Select(mbx store.Mailbox, opts Options) (*Selection, error) {
	f, err := New(opts)
	if err != nil {
		return nil, err
	}

	msgs := mbx.Messages()
	sel := &Selection{tagged: make(map[int]bool)}

	for _, n := range opts.Tags {
		if n < 1 || n > len(msgs) {
			return nil, fmt.Errorf("no message %d in %s (%d messages)", n, mbx.Path(), len(msgs))
		}
		sel.tagged[n-1] = true
	}

	if f.Active() {
		for _, msg := range msgs {
			if sel.tagged[msg.Index] {
				continue
			}
			rc, err := mbx.Open(msg)
			if err != nil {
				return nil, fmt.Errorf("read message %d: %w", msg.Index+1, err)
			}
			raw, err := io.ReadAll(rc)
			rc.Close()
			if err != nil {
				return nil, fmt.Errorf("read message %d: %w", msg.Index+1, err)
			}

			header, body := splitRawMessage(raw)
			if f.Matches(header, body) {
				sel.tagged[msg.Index] = true
			}
		}
	}

	for idx := range sel.tagged {
		if err := mbx.SetFlag(msgs[idx], model.FlagTagged, true); err != nil {
			return nil, fmt.Errorf("tag message %d: %w", idx+1, err)
		}
	}

	return sel, nil
}

// IsTagged reports whether the message at the 0-based index is selected.
func (s *Selection) IsTagged(i int) bool {
	return s.tagged[i]
}

// Count returns the number of tagged messages.
func (s *Selection) Count() int {
	return len(s.tagged)
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compile %q: %w", pattern, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

func matchAny(patterns []*regexp.Regexp, text string) bool {
	if len(patterns) == 0 {
		return false
	}
	for _, re := range patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func splitRawMessage(raw []byte) (header, body []byte) {
	if len(raw) == 0 {
		return nil, nil
	}

	if idx := bytes.Index(raw, []byte("\r\n\r\n")); idx >= 0 {
		return raw[:idx], raw[idx+4:]
	}
	if idx := bytes.Index(raw, []byte("\n\n")); idx >= 0 {
		return raw[:idx], raw[idx+2:]
	}

	return raw, nil
}
