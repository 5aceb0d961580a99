package health

// ring is a fixed-capacity FIFO of snapshots; pushing into a full ring
// evicts the oldest entry.
type ring struct {
	buf   []Snapshot
	start int
	n     int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]Snapshot, capacity)}
}

func (r *ring) push(s Snapshot) {
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = s
		r.n++
		return
	}
	r.buf[r.start] = s
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring) len() int { return r.n }

func (r *ring) last() (Snapshot, bool) {
	if r.n == 0 {
		return Snapshot{}, false
	}
	return r.buf[(r.start+r.n-1)%len(r.buf)], true
}

// each visits entries oldest first.
func (r *ring) each(fn func(Snapshot)) {
	for i := 0; i < r.n; i++ {
		fn(r.buf[(r.start+i)%len(r.buf)])
	}
}
