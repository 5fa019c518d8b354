package gateway

import (
	"sync"
)

// Feed is a Subscription backed by an unbounded in-order queue. Producers
// call Publish without ever blocking; a pump goroutine hands events to the
// consumer one at a time.
//
// An error event is terminal: once it has been delivered the feed closes
// itself and its Events channel.
type Feed struct {
	mu    sync.Mutex
	queue []Event

	wake chan struct{}
	out  chan Event
	done chan struct{}

	once    sync.Once
	onClose func()
}

// NewFeed starts a feed. onClose, if set, runs exactly once when the feed
// stops, whichever side stops it.
func NewFeed(onClose func()) *Feed {
	f := &Feed{
		wake:    make(chan struct{}, 1),
		out:     make(chan Event),
		done:    make(chan struct{}),
		onClose: onClose,
	}
	go f.pump()
	return f
}

// Publish queues ev. Events published after the feed stopped are dropped.
func (f *Feed) Publish(ev Event) {
	f.mu.Lock()
	select {
	case <-f.done:
		f.mu.Unlock()
		return
	default:
	}
	f.queue = append(f.queue, ev)
	f.mu.Unlock()

	select {
	case f.wake <- struct{}{}:
	default:
	}
}

// Events implements Subscription.
func (f *Feed) Events() <-chan Event {
	return f.out
}

// Close implements Subscription.
func (f *Feed) Close() error {
	f.stop()
	return nil
}

// Done is closed when the feed stops.
func (f *Feed) Done() <-chan struct{} {
	return f.done
}

func (f *Feed) stop() {
	f.once.Do(func() {
		close(f.done)
		if f.onClose != nil {
			f.onClose()
		}
	})
}

func (f *Feed) pump() {
	defer close(f.out)
	for {
		f.mu.Lock()
		if len(f.queue) == 0 {
			f.mu.Unlock()
			select {
			case <-f.wake:
				continue
			case <-f.done:
				return
			}
		}
		ev := f.queue[0]
		f.queue[0] = Event{}
		f.queue = f.queue[1:]
		f.mu.Unlock()

		select {
		case f.out <- ev:
		case <-f.done:
			return
		}
		if ev.Err != nil {
			f.stop()
			return
		}
	}
}
