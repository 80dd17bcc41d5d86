package host

import "container/heap"

// delayed is a message waiting in the delay queue.
type delayed struct {
	due uint32
	seq uint64
	res ReservationID
	msg Message
}

// delayQueue orders delayed messages by due height, then by scheduling order.
type delayQueue []*delayed

func (q delayQueue) Len() int { return len(q) }

func (q delayQueue) Less(i, j int) bool {
	if q[i].due != q[j].due {
		return q[i].due < q[j].due
	}
	return q[i].seq < q[j].seq
}

func (q delayQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *delayQueue) Push(x any) { *q = append(*q, x.(*delayed)) }

func (q *delayQueue) Pop() any {
	old := *q
	n := len(old)
	d := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return d
}

// popDue removes and returns every entry due at or before height, in order.
func (q *delayQueue) popDue(height uint32) []*delayed {
	var out []*delayed
	for q.Len() > 0 && (*q)[0].due <= height {
		out = append(out, heap.Pop(q).(*delayed))
	}
	return out
}
