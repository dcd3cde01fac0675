package task

// RoundRobin is a pure, round-robin PickNextTID policy: given the currently
// running task, it returns whichever task follows it in a fixed rotation.
// It must be a pure function of `current`, not a popping queue, because
// the scheduler calls pick_next_tid on every tick but only acts on the
// result when the current task's quota has expired. A stateful "pop on
// every call" queue would silently skip ahead on the ticks where nothing
// is actually scheduled. This is the Go-native reading of tinygo's own
// task.Queue (src/internal/task/queue.go), adapted from a consume-once
// FIFO into a stable ring, since this scheduler's ready list is the fixed
// set of all tasks rotating in turn rather than a dynamically
// growing/shrinking wake queue.
type RoundRobin struct {
	ring []TID
}

// NewRoundRobin builds a ready rotation cycling through ids in order.
func NewRoundRobin(ids ...TID) *RoundRobin {
	return &RoundRobin{ring: append([]TID(nil), ids...)}
}

// Add appends a task ID to the rotation.
func (q *RoundRobin) Add(id TID) {
	q.ring = append(q.ring, id)
}

// Len returns the number of tasks in the rotation.
func (q *RoundRobin) Len() int {
	return len(q.ring)
}

// Next returns the task that should run after current. If current is
// NoTask (the scheduler's first tick), it returns the first task in the
// rotation. If current is not found in the rotation, it also returns the
// first task, a defensive default: an unknown "current" task means the
// caller and this policy have lost sync, not a condition this policy
// should paper over by guessing differently each time.
func (q *RoundRobin) Next(current TID) TID {
	if len(q.ring) == 0 {
		return NoTask
	}
	if current == NoTask {
		return q.ring[0]
	}
	for i, id := range q.ring {
		if id == current {
			return q.ring[(i+1)%len(q.ring)]
		}
	}
	return q.ring[0]
}
