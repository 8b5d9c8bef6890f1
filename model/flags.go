package model

import "github.com/emersion/go-imap/v2"

// Flag identifies one message attribute. The IMAP system flags are reused so
// that flag state stays interoperable with IMAP-side tooling; the remaining
// values are local keywords.
type Flag = imap.Flag

const (
	FlagSeen     = imap.FlagSeen
	FlagAnswered = imap.FlagAnswered
	FlagFlagged  = imap.FlagFlagged
	FlagDeleted  = imap.FlagDeleted

	// FlagOld marks a message that was already present when the mailbox was
	// opened on an earlier run (mbox "Status: O", maildir cur/).
	FlagOld Flag = "$Old"

	// FlagPurge requests physical removal of a deleted message at the next
	// sync. Session-only, never persisted.
	FlagPurge Flag = "$Purge"

	// FlagTagged marks a message as part of the active selection.
	// Session-only, never persisted.
	FlagTagged Flag = "$Tagged"
)

// FlagSet holds the flags of a single message.
type FlagSet map[Flag]bool

func NewFlagSet(flags ...Flag) FlagSet {
	s := make(FlagSet, len(flags))
	for _, f := range flags {
		s[f] = true
	}
	return s
}

func (s FlagSet) Has(f Flag) bool {
	return s[f]
}

func (s FlagSet) Set(f Flag, on bool) {
	if on {
		s[f] = true
		return
	}
	delete(s, f)
}

func (s FlagSet) Clone() FlagSet {
	c := make(FlagSet, len(s))
	for f, on := range s {
		if on {
			c[f] = true
		}
	}
	return c
}
