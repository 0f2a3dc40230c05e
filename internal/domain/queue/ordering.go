package queue

import (
	"bytes"
	"slices"
)

// Compare orders entries the way the clinic serves them: priority entries
// first, then by arrival, then by id so equal timestamps still have a fixed
// order. The id step matches PostgreSQL's byte-wise uuid comparison, so the
// ORDER BY in ListWaiting and this function agree.
func Compare(a, b *Entry) int {
	if a.IsPriority != b.IsPriority {
		if a.IsPriority {
			return -1
		}
		return 1
	}
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return bytes.Compare(a.ID[:], b.ID[:])
}

// Less reports whether a is served before b.
func Less(a, b *Entry) bool {
	return Compare(a, b) < 0
}

// Order sorts entries in place into serving order.
func Order(entries []*WaitingEntry) {
	slices.SortStableFunc(entries, func(a, b *WaitingEntry) int {
		return Compare(&a.Entry, &b.Entry)
	})
}

// IndexOf returns the 1-based position of the first entry in ordered that
// satisfies match, or 0.
func IndexOf(ordered []*WaitingEntry, match func(*WaitingEntry) bool) int {
	for i, e := range ordered {
		if match(e) {
			return i + 1
		}
	}
	return 0
}
