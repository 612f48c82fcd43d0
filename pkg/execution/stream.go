package execution

import (
	"context"
	"sync"
)

// Observer receives the chunks of an OutputStream in order.
type Observer interface {
	OnNext(chunk string)
	OnClose()
}

// OutputStream is a subscribable stream of text chunks with an end-of-stream signal.
type OutputStream interface {
	// Subscribe replays the chunks pushed so far to observer and keeps delivering new
	// ones. The returned function stops the delivery.
	Subscribe(observer Observer) (unsubscribe func())
}

type subscription struct {
	id       int
	observer Observer
}

// Stream is a replayable OutputStream. Chunks are delivered synchronously in push
// order; observers must not call back into the stream from their callbacks.
type Stream struct {
	mu            sync.Mutex
	chunks        []string
	subscriptions []subscription
	nextID        int
	closed        bool
}

func NewStream() *Stream {
	return &Stream{}
}

// Push appends chunk and delivers it to every observer. Pushing to a closed stream is a no-op.
func (s *Stream) Push(chunk string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.chunks = append(s.chunks, chunk)

	for _, sub := range s.subscriptions {
		sub.observer.OnNext(chunk)
	}
}

// Close ends the stream and notifies every observer. Closing twice is a no-op.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.closed = true

	for _, sub := range s.subscriptions {
		sub.observer.OnClose()
	}

	s.subscriptions = nil
}

func (s *Stream) Subscribe(observer Observer) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, chunk := range s.chunks {
		observer.OnNext(chunk)
	}

	if s.closed {
		observer.OnClose()

		return func() {}
	}

	id := s.nextID
	s.nextID++
	s.subscriptions = append(s.subscriptions, subscription{id: id, observer: observer})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		for i, sub := range s.subscriptions {
			if sub.id == id {
				s.subscriptions = append(s.subscriptions[:i], s.subscriptions[i+1:]...)

				return
			}
		}
	}
}

type collector struct {
	mu     sync.Mutex
	chunks []string
	done   chan struct{}
}

func (c *collector) OnNext(chunk string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.chunks = append(c.chunks, chunk)
}

func (c *collector) OnClose() {
	close(c.done)
}

// ReadUntilClosed blocks until stream closes and returns all of its chunks.
func ReadUntilClosed(ctx context.Context, stream OutputStream) ([]string, error) {
	c := &collector{done: make(chan struct{})}

	unsubscribe := stream.Subscribe(c)
	defer unsubscribe()

	select {
	case <-c.done:
		c.mu.Lock()
		defer c.mu.Unlock()

		return append([]string(nil), c.chunks...), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
