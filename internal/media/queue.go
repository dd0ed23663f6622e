package media

import (
	"time"

	"github.com/duskmantle/courtmind/api/schemas"
)

// pendingTask wraps a task on the pending heap. readyAt defers dispatch
// of tasks cooling down after a failed attempt.
type pendingTask struct {
	task    *schemas.MediaTask
	readyAt time.Time
	seq     uint64
	index   int
}

// taskHeap orders by priority number ascending, then enqueue sequence so
// equal-priority tasks dispatch first-in first-out. Implements
// container/heap.Interface.
type taskHeap []*pendingTask

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].task.Priority != h[j].task.Priority {
		return h[i].task.Priority < h[j].task.Priority
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x any) {
	pt := x.(*pendingTask)
	pt.index = len(*h)
	*h = append(*h, pt)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	pt := old[n-1]
	old[n-1] = nil
	pt.index = -1
	*h = old[:n-1]
	return pt
}
