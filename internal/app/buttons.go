/**
 * @description
 * Side button router for the kiosk. Each side of the screen carries up to
 * four physical buttons; a configured row shorter than four is padded with
 * disabled slots, and configuring more than four is a setup-time error, not
 * a click-time one. Whether a populated slot is currently selectable depends
 * on the session state and is decided by the session manager.
 */
package app

import (
	"fmt"
	"strings"

	"github.com/tellerworks/atm-service/internal/domain"
)

// SlotsPerSide is the number of physical buttons on each side of the screen.
const SlotsPerSide = 4

// Machine sides.
const (
	SideLeft  = "left"
	SideRight = "right"
)

// Slot is one configured side button. A nil slot in a row is an inert,
// disabled button.
type Slot struct {
	Label string
	Op    domain.OperationKind
}

// ButtonPanel holds the configured button rows for both sides.
type ButtonPanel struct {
	rows map[string][SlotsPerSide]*Slot
}

// NewButtonPanel validates and pads the configured rows. More than four
// entries on a side is a configuration error reported here, at setup time.
func NewButtonPanel(left, right []Slot) (*ButtonPanel, error) {
	rows := make(map[string][SlotsPerSide]*Slot, 2)
	for side, entries := range map[string][]Slot{SideLeft: left, SideRight: right} {
		if len(entries) > SlotsPerSide {
			return nil, fmt.Errorf("side %q has %d buttons configured; maximum is %d", side, len(entries), SlotsPerSide)
		}
		var row [SlotsPerSide]*Slot
		for i := range entries {
			if entries[i].Label == "" {
				continue
			}
			s := entries[i]
			row[i] = &s
		}
		rows[side] = row
	}
	return &ButtonPanel{rows: rows}, nil
}

// Slot returns the configured slot for a side and index, or nil for empty,
// padded, or out-of-range positions.
func (p *ButtonPanel) Slot(side string, index int) *Slot {
	row, ok := p.rows[side]
	if !ok || index < 0 || index >= SlotsPerSide {
		return nil
	}
	return row[index]
}

// Row returns the full padded row for a side. Unknown sides yield an empty row.
func (p *ButtonPanel) Row(side string) [SlotsPerSide]*Slot {
	return p.rows[side]
}

// SlotID builds the stable identifier rendering layers address a button by:
// the side plus the lower-cased, hyphenated label.
func SlotID(side, label string) string {
	return side + "-" + strings.ReplaceAll(strings.ToLower(label), " ", "-")
}
