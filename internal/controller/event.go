package controller

import (
	"sync"
	"time"

	"scrapectl/internal/job"
)

// EventKind distinguishes state changes from progress updates.
type EventKind int

const (
	// Transition reports that the job entered a new state.
	Transition EventKind = iota
	// Progress reports a non-terminal probe and the wait before the next.
	Progress
	// Superseded reports that a newer submission replaced a live job.
	Superseded
)

func (k EventKind) String() string {
	switch k {
	case Transition:
		return "transition"
	case Progress:
		return "progress"
	case Superseded:
		return "superseded"
	default:
		return "unknown"
	}
}

// Event describes a change of the controller's current job.
type Event struct {
	Kind    EventKind
	Job     job.Job
	Prev    job.State
	Outcome string        // probe outcome, Progress only
	Delay   time.Duration // wait before the next probe, Progress only
}

// Listener receives events in the order the controller produced them.
// Listeners run on a dedicated goroutine and may call back into the
// controller.
type Listener func(Event)

type subscription struct {
	id int
	fn Listener
}

// notifier delivers events to listeners off the controller loop.
type notifier struct {
	mu        sync.Mutex
	cond      *sync.Cond
	queue     []Event
	listeners []subscription
	nextID    int
	closed    bool
	done      chan struct{}
}

func newNotifier() *notifier {
	n := &notifier{done: make(chan struct{})}
	n.cond = sync.NewCond(&n.mu)
	go n.run()
	return n
}

func (n *notifier) subscribe(l Listener) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nextID++
	id := n.nextID
	n.listeners = append(n.listeners, subscription{id: id, fn: l})

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		for i, s := range n.listeners {
			if s.id == id {
				n.listeners = append(n.listeners[:i:i], n.listeners[i+1:]...)
				return
			}
		}
	}
}

func (n *notifier) publish(ev Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.queue = append(n.queue, ev)
	n.cond.Signal()
}

// close stops accepting events; queued ones are still delivered.
func (n *notifier) close() {
	n.mu.Lock()
	n.closed = true
	n.cond.Broadcast()
	n.mu.Unlock()
	<-n.done
}

func (n *notifier) run() {
	defer close(n.done)
	for {
		n.mu.Lock()
		for len(n.queue) == 0 && !n.closed {
			n.cond.Wait()
		}
		if len(n.queue) == 0 {
			n.mu.Unlock()
			return
		}
		ev := n.queue[0]
		n.queue = n.queue[1:]
		listeners := append([]subscription(nil), n.listeners...)
		n.mu.Unlock()

		for _, s := range listeners {
			s.fn(ev)
		}
	}
}
