package session

// LineQueue is a FIFO of completed input lines waiting for the runner to
// answer the line in flight. It is owned by the session event loop and is
// not safe for concurrent use.
type LineQueue struct {
	buf  []string
	head int // next read position
}

// NewLineQueue creates an empty queue.
func NewLineQueue() *LineQueue {
	return &LineQueue{}
}

// Enqueue appends lines in order.
func (q *LineQueue) Enqueue(lines ...string) {
	q.buf = append(q.buf, lines...)
}

// DrainOne removes and returns the oldest line.
func (q *LineQueue) DrainOne() (string, bool) {
	if q.head == len(q.buf) {
		return "", false
	}

	line := q.buf[q.head]
	q.buf[q.head] = ""
	q.head++
	if q.head == len(q.buf) {
		// Reuse the backing array once everything has been read.
		q.buf = q.buf[:0]
		q.head = 0
	}
	return line, true
}

// Len returns the number of pending lines.
func (q *LineQueue) Len() int {
	return len(q.buf) - q.head
}

// Reset discards every pending line.
func (q *LineQueue) Reset() {
	q.buf = nil
	q.head = 0
}

// Snapshot returns the pending lines in order without removing them.
func (q *LineQueue) Snapshot() []string {
	result := make([]string, q.Len())
	copy(result, q.buf[q.head:])
	return result
}
