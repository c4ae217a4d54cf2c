package sched

import (
	"container/heap"
	"time"
)

// Timer is a pending one-shot continuation on the loop.
type Timer struct {
	due     time.Time
	seq     uint64
	fn      func()
	index   int
	fired   bool
	stopped bool
	heap    *timerHeap
}

// Stop cancels the timer. It reports whether the call prevented the timer
// from firing. Safe on a nil timer.
func (t *Timer) Stop() bool {
	if t == nil || t.fired || t.stopped {
		return false
	}
	t.stopped = true
	if t.index >= 0 && t.heap != nil {
		heap.Remove(t.heap, t.index)
	}
	return true
}

// Due reports when the timer fires.
func (t *Timer) Due() time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.due
}

// timerHeap orders timers by due time, then by scheduling order so timers
// due at the same instant fire first-in first-out.
type timerHeap []*Timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].due.Equal(h[j].due) {
		return h[i].seq < h[j].seq
	}
	return h[i].due.Before(h[j].due)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	timer := x.(*Timer)
	timer.index = len(*h)
	*h = append(*h, timer)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	timer := old[n-1]
	old[n-1] = nil
	timer.index = -1
	*h = old[:n-1]
	return timer
}

func (h *timerHeap) push(t *Timer) {
	heap.Push(h, t)
}

func (h *timerHeap) peek() *Timer {
	if len(*h) == 0 {
		return nil
	}
	return (*h)[0]
}

func (h *timerHeap) pop() *Timer {
	if len(*h) == 0 {
		return nil
	}
	return heap.Pop(h).(*Timer)
}
