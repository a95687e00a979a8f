package order

import "fmt"

// LineShippingStatus derives a line's fulfillment status from the recorded
// coverage. It reports the furthest stage with any recording for the line:
// the stage name when the line is fully covered, or
// "<name> (<done>/<total> items)" while partially covered. A line with no
// recordings has an empty status.
func LineShippingStatus(l Line, types []EventType, cov Coverage) string {
	stage, done := furthestStage(l, types, cov)
	if stage == nil {
		return ""
	}
	if done >= l.Quantity {
		return stage.Name
	}
	return fmt.Sprintf("%s (%d/%d items)", stage.Name, done, l.Quantity)
}

// ShippingStatus derives the order-level status. When every line reports the
// same furthest stage, the status is that stage's name, suffixed with
// aggregate "(<done>/<total> items)" counts while any line remains partially
// covered. Lines at different stages yield an ambiguous, empty status.
func ShippingStatus(o *Order, types []EventType, cov Coverage) string {
	var (
		stage       *EventType
		done, total int
	)
	for _, l := range o.Lines {
		s, d := furthestStage(l, types, cov)
		if s == nil {
			return ""
		}
		if stage == nil {
			stage = s
		} else if s.Code != stage.Code {
			return ""
		}
		done += d
		total += l.Quantity
	}
	if stage == nil {
		return ""
	}
	if done >= total {
		return stage.Name
	}
	return fmt.Sprintf("%s (%d/%d items)", stage.Name, done, total)
}

// HasShippingEventOccurred reports whether every line of the order is fully
// covered by events of the given type.
func HasShippingEventOccurred(o *Order, cov Coverage, typeCode string) bool {
	for _, l := range o.Lines {
		if cov.Consumed(typeCode, l.ID) < l.Quantity {
			return false
		}
	}
	return len(o.Lines) > 0
}

// furthestStage returns the highest-sequence stage with any coverage for the
// line, along with the covered quantity, or nil when nothing is recorded.
func furthestStage(l Line, types []EventType, cov Coverage) (*EventType, int) {
	var (
		stage *EventType
		done  int
	)
	for i := range types {
		t := &types[i]
		d := cov.Consumed(t.Code, l.ID)
		if d == 0 {
			continue
		}
		if stage == nil || t.Sequence > stage.Sequence {
			stage = t
			done = d
		}
	}
	return stage, done
}
