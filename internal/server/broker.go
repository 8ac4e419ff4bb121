package server

import "context"

// Broker fans reload notifications out to every connected page.
type Broker struct {
	publishCh chan struct{}
	subCh     chan chan struct{}
	unsubCh   chan chan struct{}
	done      chan struct{}
}

func newBroker() *Broker {
	return &Broker{
		publishCh: make(chan struct{}, 1),
		subCh:     make(chan chan struct{}),
		unsubCh:   make(chan chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start runs the broker until ctx is done.
func (b *Broker) Start(ctx context.Context) {
	defer close(b.done)
	subs := map[chan struct{}]struct{}{}
	for {
		select {
		case <-ctx.Done():
			return
		case ch := <-b.subCh:
			subs[ch] = struct{}{}
		case ch := <-b.unsubCh:
			delete(subs, ch)
		case <-b.publishCh:
			for ch := range subs {
				select {
				case ch <- struct{}{}:
				default:
				}
			}
		}
	}
}

// Subscribe returns a channel receiving the next reloads. It blocks until
// the broker runs.
func (b *Broker) Subscribe() chan struct{} {
	ch := make(chan struct{}, 1)
	select {
	case b.subCh <- ch:
	case <-b.done:
	}
	return ch
}

func (b *Broker) Unsubscribe(ch chan struct{}) {
	select {
	case b.unsubCh <- ch:
	case <-b.done:
	}
}

// Done is closed once the broker stopped.
func (b *Broker) Done() <-chan struct{} {
	return b.done
}

// Publish never blocks; reloads published while one is pending are merged.
func (b *Broker) Publish(msg struct{}) {
	select {
	case b.publishCh <- msg:
	default:
	}
}
