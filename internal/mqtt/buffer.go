package mqtt

// queued is one serialized message parked while the broker is unreachable.
type queued struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer is a fixed-capacity FIFO for offline messages. Not safe for
// concurrent use; the publisher holds the lock.
type ringBuffer struct {
	buf   []queued
	head  int // next write position
	count int
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{buf: make([]queued, capacity)}
}

// push appends a message, overwriting the oldest when full. It reports
// whether an old message was dropped to make room.
func (r *ringBuffer) push(m queued) bool {
	dropped := r.count == len(r.buf)
	r.buf[r.head] = m
	r.head = (r.head + 1) % len(r.buf)
	if !dropped {
		r.count++
	}
	return dropped
}

// drainAll removes and returns everything, oldest first.
func (r *ringBuffer) drainAll() []queued {
	if r.count == 0 {
		return nil
	}
	out := make([]queued, r.count)
	start := (r.head - r.count + len(r.buf)) % len(r.buf)
	for i := range out {
		out[i] = r.buf[(start+i)%len(r.buf)]
	}
	r.count = 0
	r.head = 0
	return out
}

func (r *ringBuffer) len() int {
	return r.count
}
