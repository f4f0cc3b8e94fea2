package telemetry

// Window is a fixed-length FIFO of samples for charting. Pushing onto a
// full window evicts the oldest sample. It is not safe for concurrent use.
type Window struct {
	size   int
	values []float64
}

func NewWindow(size int) *Window {
	if size < 1 {
		size = 1
	}
	return &Window{
		size:   size,
		values: make([]float64, 0, size),
	}
}

func (w *Window) Push(v float64) {
	if len(w.values) == w.size {
		copy(w.values, w.values[1:])
		w.values = w.values[:w.size-1]
	}
	w.values = append(w.values, v)
}

// Values returns the samples oldest first.
func (w *Window) Values() []float64 {
	out := make([]float64, len(w.values))
	copy(out, w.values)
	return out
}

func (w *Window) Len() int {
	return len(w.values)
}
