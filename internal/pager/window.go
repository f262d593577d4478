package pager

import "time"

// Window bounds one date-windowed search. A zero Window means the source is
// not date-windowed (single-shot endpoints).
type Window struct {
	Start time.Time
	End   time.Time
}

// IsZero reports whether the window carries no date bounds.
func (w Window) IsZero() bool {
	return w.Start.IsZero() && w.End.IsZero()
}

// Clamped returns the window with its end capped at today. The upstream
// search API rejects future end dates.
func (w Window) Clamped(now time.Time) Window {
	today := now.Truncate(24 * time.Hour)
	if !w.End.IsZero() && w.End.After(today) {
		w.End = today
	}
	return w
}

// String formats the window for logs.
func (w Window) String() string {
	if w.IsZero() {
		return "all"
	}
	return w.Start.Format("2006-01-02") + ".." + w.End.Format("2006-01-02")
}

// MonthWindows returns n whole-calendar-month windows counting backwards
// from now: the current month first, then each preceding month. Each window
// spans the first to the last day of its month.
func MonthWindows(now time.Time, n int) []Window {
	windows := make([]Window, 0, n)
	year, month := now.Year(), int(now.Month())
	for i := 0; i < n; i++ {
		m := month - i
		y := year
		for m <= 0 {
			m += 12
			y--
		}
		start := time.Date(y, time.Month(m), 1, 0, 0, 0, 0, time.UTC)
		end := start.AddDate(0, 1, 0).AddDate(0, 0, -1)
		windows = append(windows, Window{Start: start, End: end})
	}
	return windows
}

// LastCompleteMonth returns the most recent fully elapsed calendar month.
func LastCompleteMonth(now time.Time) Window {
	firstOfThisMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := firstOfThisMonth.AddDate(0, 0, -1)
	start := time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, time.UTC)
	return Window{Start: start, End: end}
}
