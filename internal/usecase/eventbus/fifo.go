package eventbus

import "sync"

// fifo is the unbounded queue in front of an ordered subscriber. push never
// blocks; pop blocks until an item arrives or the queue is closed and empty.
type fifo struct {
	mu     sync.Mutex
	items  []dispatch
	closed bool
	signal chan struct{}
}

func newFIFO() *fifo {
	return &fifo{signal: make(chan struct{}, 1)}
}

// push appends d and reports false once the queue is closed.
func (q *fifo) push(d dispatch) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, d)
	q.mu.Unlock()
	q.wake()
	return true
}

// pop returns the oldest item. After close it keeps returning items until
// the queue is empty, then reports false.
func (q *fifo) pop() (dispatch, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			d := q.items[0]
			q.items[0] = dispatch{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return d, true
		}
		if q.closed {
			q.mu.Unlock()
			return dispatch{}, false
		}
		q.mu.Unlock()
		<-q.signal
	}
}

func (q *fifo) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *fifo) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wake()
}

func (q *fifo) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}
