package wpool

import "container/heap"

// SchedulingPolicy selects which pending task runs next. Implementations are
// not required to be safe for concurrent use on their own — the pool only
// ever touches one under its own lock (§4.A: "guaranteed to be accessed by
// only one thread at a time").
type SchedulingPolicy interface {
	Push(t Task)
	// Pop removes and returns the next task to run. ok is false if empty.
	Pop() (Task, bool)
	Len() int
	Clear()
}

// FIFO runs tasks in submission order.
type FIFO struct {
	q []Task
}

func NewFIFO() *FIFO { return &FIFO{} }

func (s *FIFO) Push(t Task) { s.q = append(s.q, t) }

func (s *FIFO) Pop() (Task, bool) {
	if len(s.q) == 0 {
		return nil, false
	}
	t := s.q[0]
	s.q = s.q[1:]
	return t, true
}

func (s *FIFO) Len() int { return len(s.q) }

func (s *FIFO) Clear() { s.q = nil }

// LIFO runs the most recently submitted task first.
type LIFO struct {
	q []Task
}

func NewLIFO() *LIFO { return &LIFO{} }

func (s *LIFO) Push(t Task) { s.q = append(s.q, t) }

func (s *LIFO) Pop() (Task, bool) {
	n := len(s.q)
	if n == 0 {
		return nil, false
	}
	t := s.q[n-1]
	s.q = s.q[:n-1]
	return t, true
}

func (s *LIFO) Len() int { return len(s.q) }

func (s *LIFO) Clear() { s.q = nil }

// Priority runs the highest-Priority PriorityTask first. Push accepts a
// plain Task wrapped at priority 0; use PushPriority for a ranked task.
type Priority struct {
	h priorityHeap
}

func NewPriority() *Priority {
	p := &Priority{}
	heap.Init(&p.h)
	return p
}

func (s *Priority) Push(t Task) { s.PushPriority(PriorityTask{Run: t}) }

func (s *Priority) PushPriority(t PriorityTask) { heap.Push(&s.h, t) }

func (s *Priority) Pop() (Task, bool) {
	if s.h.Len() == 0 {
		return nil, false
	}
	t := heap.Pop(&s.h).(PriorityTask)
	return t.Run, true
}

func (s *Priority) Len() int { return s.h.Len() }

func (s *Priority) Clear() { s.h = nil }

type priorityHeap []PriorityTask

func (h priorityHeap) Len() int { return len(h) }

// Less is inverted so heap.Pop yields the highest-priority task first.
func (h priorityHeap) Less(i, j int) bool { return h[i].Priority > h[j].Priority }

func (h priorityHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *priorityHeap) Push(x any) { *h = append(*h, x.(PriorityTask)) }

func (h *priorityHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
