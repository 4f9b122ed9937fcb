// Package batch splits a campaign's recipient base into three contiguous
// rounds and places each round on the send calendar.
package batch

import (
	"errors"
	"fmt"
	"time"

	"github.com/ignite/campaign-pilot/internal/calendar"
)

// ErrInvalidBatchInput is returned when the recipient total is not positive.
var ErrInvalidBatchInput = errors.New("batch: recipient total must be > 0")

// Rounds is the fixed number of batches per campaign.
const Rounds = 3

// Slot describes one round's recipient range and calendar placement.
// An empty round (possible when N < 3) is encoded with RangeHi < RangeLo
// and Count 0; empty rounds are still emitted so downstream bookkeeping
// stays uniform.
type Slot struct {
	Round       int
	RangeLo     int64
	RangeHi     int64
	Count       int64
	ScheduledAt time.Time
}

// Range renders the recipient range as the stored "lo-hi" string.
func (s Slot) Range() string {
	return fmt.Sprintf("%d-%d", s.RangeLo, s.RangeHi)
}

// Partition splits total recipients into three ordered rounds starting at
// start. Round 1 holds ceil(N/3); scheduled dates are strictly increasing
// with at least one eligible-day gap between consecutive rounds.
func Partition(total int64, start time.Time) ([]Slot, error) {
	if total <= 0 {
		return nil, ErrInvalidBatchInput
	}

	chunk := (total + Rounds - 1) / Rounds

	slots := make([]Slot, 0, Rounds)
	prev := time.Time{}
	for round := 1; round <= Rounds; round++ {
		lo := int64(round-1)*chunk + 1
		hi := int64(round) * chunk
		if hi > total {
			hi = total
		}
		count := hi - lo + 1
		if count < 0 {
			count = 0
		}

		var at time.Time
		var err error
		if round == 1 {
			at, err = calendar.NextEligibleSlot(start)
		} else {
			at, err = calendar.NextEligibleSlot(prev.Add(24 * time.Hour))
		}
		if err != nil {
			return nil, fmt.Errorf("batch: placing round %d: %w", round, err)
		}
		prev = at

		slots = append(slots, Slot{
			Round:       round,
			RangeLo:     lo,
			RangeHi:     hi,
			Count:       count,
			ScheduledAt: at,
		})
	}
	return slots, nil
}
