package core

const defaultQueueCap = 16

// =============================================================================
// taskQueue: binary min-heap ordered by (expirationTime, id)
// =============================================================================

// taskQueue is sifted by hand rather than through container/heap so the
// ordering, including the FIFO tie-break, lives entirely in less.
type taskQueue struct {
	items []*task
}

func newTaskQueue() *taskQueue {
	return &taskQueue{items: make([]*task, 0, defaultQueueCap)}
}

// less orders by expiration, then by insertion id.
func less(a, b *task) bool {
	if a.expirationTime.Equal(b.expirationTime) {
		return a.id < b.id
	}
	return a.expirationTime.Before(b.expirationTime)
}

func (q *taskQueue) Len() int { return len(q.items) }

func (q *taskQueue) push(t *task) {
	t.heapIndex = len(q.items)
	q.items = append(q.items, t)
	q.siftUp(t.heapIndex)
}

func (q *taskQueue) peek() *task {
	if len(q.items) == 0 {
		return nil
	}
	return q.items[0]
}

func (q *taskQueue) pop() *task {
	n := len(q.items)
	if n == 0 {
		return nil
	}
	first := q.items[0]
	last := q.items[n-1]
	q.items[n-1] = nil // Avoid memory leak
	q.items = q.items[:n-1]
	if n > 1 {
		q.items[0] = last
		last.heapIndex = 0
		q.siftDown(0)
	}
	first.heapIndex = -1
	return first
}

// remove takes t out of the heap wherever it sits. It reports false if t is
// not queued.
func (q *taskQueue) remove(t *task) bool {
	i := t.heapIndex
	if i < 0 || i >= len(q.items) || q.items[i] != t {
		return false
	}
	if i == 0 {
		q.pop()
		return true
	}
	n := len(q.items) - 1
	if i != n {
		q.swap(i, n)
	}
	q.items[n] = nil
	q.items = q.items[:n]
	if i != n {
		q.siftDown(i)
		q.siftUp(i)
	}
	t.heapIndex = -1
	return true
}

func (q *taskQueue) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !less(q.items[i], q.items[parent]) {
			return
		}
		q.swap(i, parent)
		i = parent
	}
}

func (q *taskQueue) siftDown(i int) {
	n := len(q.items)
	for {
		left := 2*i + 1
		if left >= n {
			return
		}
		smallest := left
		if right := left + 1; right < n && less(q.items[right], q.items[left]) {
			smallest = right
		}
		if !less(q.items[smallest], q.items[i]) {
			return
		}
		q.swap(i, smallest)
		i = smallest
	}
}

func (q *taskQueue) swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
	q.items[i].heapIndex = i
	q.items[j].heapIndex = j
}

// clear drops every queued task reference.
func (q *taskQueue) clear() {
	for i := range q.items {
		q.items[i].heapIndex = -1
		q.items[i] = nil
	}
	q.items = make([]*task, 0, defaultQueueCap)
}
