package sessions

// SessionWindow is a local time-of-day range with inclusive ends.
// The concrete type is chosen once when a definition is compiled.
type SessionWindow interface {
	Contains(t TimeOfDay) bool
	Bounds() (start, end TimeOfDay)
	Wraps() bool
}

// NormalWindow covers Start..End within one local day (End >= Start).
// Start == End is a single-minute window.
type NormalWindow struct {
	Start TimeOfDay
	End   TimeOfDay
}

func (w NormalWindow) Contains(t TimeOfDay) bool      { return t >= w.Start && t <= w.End }
func (w NormalWindow) Bounds() (start, end TimeOfDay) { return w.Start, w.End }
func (NormalWindow) Wraps() bool                      { return false }

// WrappingWindow crosses local midnight (End < Start).
type WrappingWindow struct {
	Start TimeOfDay
	End   TimeOfDay
}

func (w WrappingWindow) Contains(t TimeOfDay) bool      { return t >= w.Start || t <= w.End }
func (w WrappingWindow) Bounds() (start, end TimeOfDay) { return w.Start, w.End }
func (WrappingWindow) Wraps() bool                      { return true }

// NewWindow picks the window shape from the bounds.
func NewWindow(start, end TimeOfDay) SessionWindow {
	if end >= start {
		return NormalWindow{Start: start, End: end}
	}
	return WrappingWindow{Start: start, End: end}
}
