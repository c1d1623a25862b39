package hook

// queue is an unbounded many-producer, one-consumer channel. Producers send
// on in; a single pump goroutine buffers in a slice and feeds out, so a slow
// consumer never stalls a connection.
type queue struct {
	in   chan Event
	out  chan Event
	quit <-chan struct{}
}

func newQueue(quit <-chan struct{}) *queue {
	q := &queue{
		in:   make(chan Event),
		out:  make(chan Event),
		quit: quit,
	}
	go q.pump()
	return q
}

// push blocks only until the pump takes the event, or the queue stops.
func (q *queue) push(ev Event) bool {
	select {
	case q.in <- ev:
		return true
	case <-q.quit:
		return false
	}
}

func (q *queue) pump() {
	defer close(q.out)
	var pending []Event
	for {
		var out chan Event
		var next Event
		if len(pending) > 0 {
			out = q.out
			next = pending[0]
		}
		select {
		case ev := <-q.in:
			pending = append(pending, ev)
		case out <- next:
			pending[0] = Event{}
			pending = pending[1:]
			if len(pending) == 0 {
				pending = nil
			}
		case <-q.quit:
			return
		}
	}
}
