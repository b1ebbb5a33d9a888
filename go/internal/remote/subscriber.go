package remote

import "sync"

// subscriber delivers documents for one query on its own goroutine so the
// store's write path never waits on a listener.
type subscriber struct {
	gameID   string
	onChange func(Document)
	queue    chan Document
	done     chan struct{}
	stopOnce sync.Once
}

func newSubscriber(gameID string, onChange func(Document)) *subscriber {
	return &subscriber{
		gameID:   gameID,
		onChange: onChange,
		queue:    make(chan Document, 64),
		done:     make(chan struct{}),
	}
}

func (s *subscriber) push(doc Document) {
	select {
	case s.queue <- doc:
	case <-s.done:
	}
}

func (s *subscriber) stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

// run delivers queued documents in order, skipping any that arrive after a
// newer one has already been delivered.
func (s *subscriber) run() {
	var last Document
	delivered := false
	for {
		select {
		case <-s.done:
			return
		case doc := <-s.queue:
			select {
			case <-s.done:
				return
			default:
			}
			if !newer(doc, last, delivered) {
				continue
			}
			last, delivered = doc, true
			s.onChange(doc)
		}
	}
}
