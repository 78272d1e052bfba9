/**
 * @description
 * This file defines the keypad digit buffer used during PIN and amount entry.
 * The buffer enforces a per-context maximum length: pressing a digit past the
 * limit is a silent no-op rather than an error, matching physical keypad
 * behaviour.
 */
package domain

import "strings"

// PINLength is the fixed length of a cardholder PIN.
const PINLength = 4

// DigitBuffer accumulates keypad digit presses up to a configured limit.
type DigitBuffer struct {
	digits []int
	limit  int
}

// NewDigitBuffer returns an empty buffer capped at limit digits.
func NewDigitBuffer(limit int) *DigitBuffer {
	if limit <= 0 {
		limit = PINLength
	}
	return &DigitBuffer{limit: limit}
}

// SetLimit changes the buffer cap and truncates any overflow. Used when a
// session moves between PIN entry (4 digits) and amount entry contexts.
func (b *DigitBuffer) SetLimit(limit int) {
	if limit <= 0 {
		return
	}
	b.limit = limit
	if len(b.digits) > limit {
		b.digits = b.digits[:limit]
	}
}

// Push appends a digit while the buffer is below its limit. Out-of-range
// values and overflow presses are ignored.
func (b *DigitBuffer) Push(d int) {
	if d < 0 || d > 9 {
		return
	}
	if len(b.digits) >= b.limit {
		return
	}
	b.digits = append(b.digits, d)
}

// Clear empties the buffer without submitting.
func (b *DigitBuffer) Clear() {
	b.digits = b.digits[:0]
}

// Drain returns the buffered digits as a string and clears the buffer. Enter
// always clears regardless of what the consumer does with the value.
func (b *DigitBuffer) Drain() string {
	var sb strings.Builder
	for _, d := range b.digits {
		sb.WriteByte(byte('0' + d))
	}
	b.digits = b.digits[:0]
	return sb.String()
}

// Len returns the number of buffered digits.
func (b *DigitBuffer) Len() int {
	return len(b.digits)
}
