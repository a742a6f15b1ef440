package wpool

// Task is a nullary callable scheduled for asynchronous execution. A task
// must not panic; the pool recovers and discards any panic so that one bad
// task cannot take down a worker permanently (§4.A: "ignores exceptions
// thrown inside tasks").
type Task func()

// PriorityTask is a Task ranked by Priority for use with the priority
// scheduling policy. Higher Priority runs first; ties are unordered.
type PriorityTask struct {
	Priority int
	Run      Task
}
