package models

import "time"

// DefaultStartBuffer is how long before the advertised start check-in opens
// when no buffered start is given.
const DefaultStartBuffer = 20 * time.Minute

// TimeWindow is an interval plus the wider buffered interval that gates check-in.
type TimeWindow struct {
	Start         time.Time `bson:"start_time" json:"start_time"`
	End           time.Time `bson:"end_time" json:"end_time"`
	BufferedStart time.Time `bson:"buffered_start_time" json:"buffered_start_time"`
	BufferedEnd   time.Time `bson:"buffered_end_time" json:"buffered_end_time"`
}

// NewTimeWindow validates the bounds and fills in the default buffer when
// bufferedStart or bufferedEnd is nil.
func NewTimeWindow(start, end time.Time, bufferedStart, bufferedEnd *time.Time) (TimeWindow, error) {
	if start.IsZero() || end.IsZero() || !start.Before(end) {
		return TimeWindow{}, ErrInvalidWindow
	}

	w := TimeWindow{
		Start:         start,
		End:           end,
		BufferedStart: start.Add(-DefaultStartBuffer),
		BufferedEnd:   end,
	}
	if bufferedStart != nil {
		w.BufferedStart = *bufferedStart
	}
	if bufferedEnd != nil {
		w.BufferedEnd = *bufferedEnd
	}

	if w.BufferedStart.After(w.Start) || w.BufferedEnd.Before(w.End) {
		return TimeWindow{}, ErrInvalidBuffer
	}
	return w, nil
}

// Contains reports whether t lies in the raw or buffered interval, bounds included.
func (w TimeWindow) Contains(t time.Time, buffered bool) bool {
	from, to := w.Start, w.End
	if buffered {
		from, to = w.BufferedStart, w.BufferedEnd
	}
	return !t.Before(from) && !t.After(to)
}

// Encloses reports whether inner's raw interval lies within w's buffered interval.
func (w TimeWindow) Encloses(inner TimeWindow) bool {
	return !inner.Start.Before(w.BufferedStart) && !inner.End.After(w.BufferedEnd)
}
