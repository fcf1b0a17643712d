package track

import "sync/atomic"

// FrameIngest is a single-producer single-consumer ring buffer between the
// detection source and the tracker loop. When the consumer falls behind the
// producer overwrites the oldest frame rather than blocking; frame delivery
// stays wait-free on the producer side and the drop count is observable.
type FrameIngest struct {
	buf  []Detection
	mask uint64

	head  atomic.Uint64 // next slot to read; also advanced by the producer on overwrite
	tail  atomic.Uint64 // next slot to write; producer only
	drops atomic.Uint64
}

// NewFrameIngest creates a ring with at least the given capacity, rounded up
// to a power of two.
func NewFrameIngest(capacity int) *FrameIngest {
	if capacity < 2 {
		capacity = 2
	}
	n := 1
	for n < capacity {
		n <<= 1
	}
	return &FrameIngest{
		buf:  make([]Detection, n),
		mask: uint64(n - 1),
	}
}

// Push adds a detection, evicting the oldest unread frame if the ring is
// full. Safe for exactly one concurrent producer.
func (r *FrameIngest) Push(d Detection) {
	tail := r.tail.Load()
	for {
		head := r.head.Load()
		if tail-head < uint64(len(r.buf)) {
			break
		}
		// Full. Claim the oldest slot away from the consumer before
		// overwriting it; a failed swap means the consumer got there first.
		if r.head.CompareAndSwap(head, head+1) {
			r.drops.Add(1)
		}
	}
	r.buf[tail&r.mask] = d
	r.tail.Store(tail + 1)
}

// Pop removes the oldest detection. Safe for exactly one concurrent
// consumer. The swap on head detects a concurrent overwrite of the slot just
// read, in which case the stale value is discarded and the read retried.
func (r *FrameIngest) Pop() (Detection, bool) {
	for {
		head := r.head.Load()
		if head == r.tail.Load() {
			return Detection{}, false
		}
		d := r.buf[head&r.mask]
		if r.head.CompareAndSwap(head, head+1) {
			return d, true
		}
	}
}

// Occupancy returns the number of unread frames.
func (r *FrameIngest) Occupancy() int {
	return int(r.tail.Load() - r.head.Load())
}

// Capacity returns the ring size.
func (r *FrameIngest) Capacity() int {
	return len(r.buf)
}

// Drops returns the number of frames evicted because the consumer fell
// behind.
func (r *FrameIngest) Drops() uint64 {
	return r.drops.Load()
}
