package order

import (
	"github.com/go-faster/errors"
)

// ErrNoEventQuantities is returned when a recording request covers no items,
// e.g. every line is already fully covered for the requested stage.
var ErrNoEventQuantities = errors.New("event covers no items")

// ErrUnknownEventType is returned for an event type code with no registered type.
var ErrUnknownEventType = errors.New("unknown event type")

// ErrUnknownLine is returned when a recording request names a line that does
// not belong to the order.
var ErrUnknownLine = errors.New("line does not belong to the order")

// Coverage holds, per event type code, the cumulative quantity already
// recorded for each line.
type Coverage map[string]map[string]int

// Consumed returns the cumulative quantity recorded for a line under the
// given type code.
func (c Coverage) Consumed(typeCode, lineID string) int {
	return c[typeCode][lineID]
}

// Add accumulates event quantities into the coverage map.
func (c Coverage) Add(typeCode string, quantities []EventQuantity) {
	byLine := c[typeCode]
	if byLine == nil {
		byLine = make(map[string]int, len(quantities))
		c[typeCode] = byLine
	}
	for _, q := range quantities {
		byLine[q.LineID] += q.Quantity
	}
}

// CoverageOf builds the coverage map from recorded shipping events.
func CoverageOf(events []ShippingEvent) Coverage {
	cov := make(Coverage)
	for _, ev := range events {
		cov.Add(ev.TypeCode, ev.Quantities)
	}
	return cov
}

// ValidateEventQuantities checks a recording request against the coverage
// already on record and returns the normalized quantities to write.
//
// With an empty request every order line participates with its full remaining
// quantity for the stage; fully covered lines are skipped. With a non-empty
// request only the listed lines participate, and a zero quantity means "all
// remaining items of this line". A quantity that would push a line's
// cumulative total for the stage beyond the line quantity fails with
// *InvalidEventQuantityError, as does a request that would cover more items
// than an earlier stage has recorded (monotonic progress). Validation
// performs no writes: callers commit the returned quantities only when the
// error is nil (check-then-commit).
func ValidateEventQuantities(
	lines []Line,
	types []EventType,
	cov Coverage,
	typeCode string,
	requested map[string]int,
) ([]EventQuantity, error) {
	stage, err := findType(types, typeCode)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]Line, len(lines))
	for _, l := range lines {
		byID[l.ID] = l
	}
	for lineID := range requested {
		if _, ok := byID[lineID]; !ok {
			return nil, errors.Wrap(ErrUnknownLine, lineID)
		}
	}

	out := make([]EventQuantity, 0, len(lines))
	for _, l := range lines {
		consumed := cov.Consumed(typeCode, l.ID)
		remaining := l.Quantity - consumed

		qty, listed := requested[l.ID]
		if !listed && len(requested) > 0 {
			continue
		}
		if qty == 0 {
			if !listed && remaining == 0 {
				continue
			}
			qty = remaining
		}

		if qty <= 0 || qty > remaining {
			return nil, &InvalidEventQuantityError{
				LineID:    l.ID,
				Requested: qty,
				Remaining: remaining,
			}
		}
		if err := checkEarlierStages(types, cov, stage, l, consumed+qty); err != nil {
			return nil, err
		}
		out = append(out, EventQuantity{LineID: l.ID, Quantity: qty})
	}

	if len(out) == 0 {
		return nil, ErrNoEventQuantities
	}
	return out, nil
}

// checkEarlierStages enforces monotonic progress: a stage can never cover
// more of a line than any earlier stage that has recordings for it.
func checkEarlierStages(types []EventType, cov Coverage, stage *EventType, l Line, newTotal int) error {
	for _, t := range types {
		if t.Sequence >= stage.Sequence {
			continue
		}
		byLine, ok := cov[t.Code]
		if !ok || len(byLine) == 0 {
			// Stage never recorded for this order; nothing to compare against.
			continue
		}
		if newTotal > byLine[l.ID] {
			return &InvalidEventQuantityError{
				LineID:    l.ID,
				Requested: newTotal,
				Remaining: byLine[l.ID],
			}
		}
	}
	return nil
}

func findType(types []EventType, code string) (*EventType, error) {
	for i := range types {
		if types[i].Code == code {
			return &types[i], nil
		}
	}
	return nil, errors.Wrap(ErrUnknownEventType, code)
}
