package model

import "time"

// Message is the metadata handle for one message inside a store. The raw
// header+body bytes stay with the owning store; this struct carries only
// what the edit pipeline needs.
type Message struct {
	// Index is the 0-based position in store order.
	Index int
	// Key is the backend-specific handle (maildir key; empty for mbox).
	Key string
	// EnvelopeFrom is the envelope sender used when a separator line has to
	// be synthesized.
	EnvelopeFrom string
	// Date is the delivery date recorded by the store.
	Date time.Time

	Flags FlagSet
}

// Creation carries the placement and metadata decisions for a message about
// to be created. Stores derive format-specific choices (maildir new/ versus
// cur/, mbox separator line) from this value alone, so callers never have to
// mutate a live message to influence them.
type Creation struct {
	Flags        FlagSet
	EnvelopeFrom string
	Date         time.Time
}

// Outcome is the three-way result of one edit attempt.
type Outcome int

const (
	// OutcomeUnmodified means no change was carried over: the editor left
	// the file untouched, emptied it, or the attempt ran in view mode.
	OutcomeUnmodified Outcome = iota
	// OutcomeCommitted means a replacement message was committed.
	OutcomeCommitted
	// OutcomeFailed means the attempt hit a terminal error.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeUnmodified:
		return "unmodified"
	case OutcomeCommitted:
		return "committed"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}
