// Package bytequeue provides a growable FIFO byte buffer shared between a
// producer and a consumer running on different goroutines.
package bytequeue

import "sync"

// DefaultCapacity is the initial buffer size of a new Queue.
const DefaultCapacity = 64

// Queue is a thread-safe byte stream. Unread bytes live in buf[begin:end].
// Take may return fewer bytes than asked for; it is a stream, not a record reader.
type Queue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	buf     []byte
	begin   int
	end     int
	exiting bool
}

func New() *Queue {
	return NewSize(DefaultCapacity)
}

func NewSize(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	q := &Queue{buf: make([]byte, capacity)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Put appends p and wakes every waiter. Returns 0 on empty input or after Exit.
func (q *Queue) Put(p []byte) int {
	return q.PutFunc(len(p), func(dst []byte) int {
		return copy(dst, p)
	})
}

// PutFunc reserves size bytes and lets fill write into them. fill returns how
// many bytes it actually wrote, which may be fewer than size.
func (q *Queue) PutFunc(size int, fill func(dst []byte) int) int {
	if size <= 0 || fill == nil {
		return 0
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.exiting {
		return 0
	}

	q.reserve(size)
	n := fill(q.buf[q.end : q.end+size])
	if n < 0 {
		n = 0
	}
	if n > size {
		n = size
	}
	q.end += n
	q.cond.Broadcast()
	return n
}

// reserve makes room for size more bytes after end. Caller holds mu.
func (q *Queue) reserve(size int) {
	unread := q.end - q.begin
	need := unread + size
	if len(q.buf) < need {
		// grow to 1.5x of what is required right now
		grown := make([]byte, need+need/2)
		copy(grown, q.buf[q.begin:q.end])
		q.buf = grown
		q.begin, q.end = 0, unread
		return
	}
	if q.begin == q.end {
		q.begin, q.end = 0, 0
	}
	if len(q.buf)-q.end < size {
		// compact: shift unread bytes down to offset 0
		copy(q.buf, q.buf[q.begin:q.end])
		q.begin, q.end = 0, unread
	}
}

// Take copies up to len(p) available bytes into p. With wait set it blocks
// until data arrives or Exit is called. Returns 0 when nothing is available
// and wait is false, when p is empty, or when the queue is exiting.
func (q *Queue) Take(p []byte, wait bool) int {
	if len(p) == 0 {
		return 0
	}
	return q.TakeFunc(func(src []byte) int {
		return copy(p, src)
	}, wait)
}

// TakeFunc hands every unread byte to consume, which returns how many of them
// it used. The remainder stays queued. consume runs with the queue locked and
// must not call back into it.
func (q *Queue) TakeFunc(consume func(src []byte) int, wait bool) int {
	if consume == nil {
		return 0
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if wait {
		for !q.exiting && q.begin == q.end {
			q.cond.Wait()
		}
	}
	if q.exiting || q.begin == q.end {
		return 0
	}

	n := consume(q.buf[q.begin:q.end])
	if n <= 0 {
		return 0
	}
	if avail := q.end - q.begin; n > avail {
		n = avail
	}
	q.begin += n
	return n
}

// Len returns the number of unread bytes.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.end - q.begin
}

// Exit makes every current and future Put/Take return 0 until Reset.
func (q *Queue) Exit() {
	q.mu.Lock()
	q.exiting = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Reset drops unread bytes and clears the exiting flag.
func (q *Queue) Reset() {
	q.mu.Lock()
	q.begin, q.end = 0, 0
	q.exiting = false
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Exiting reports whether Exit was called since the last Reset.
func (q *Queue) Exiting() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.exiting
}
