package transport

import (
	"context"
	"fmt"
	"sync"
)

// Local is an in-process rank. Ranks created by the same NewLocalGroup call
// exchange messages through unbounded in-memory inboxes.
type Local struct {
	rank  int
	group []*inbox
}

type inbox struct {
	mu     sync.Mutex
	q      queue
	wake   chan struct{} // closed and replaced on every delivery
	closed bool
}

// NewLocalGroup creates size connected ranks. Rank i is at index i.
func NewLocalGroup(size int) []*Local {
	boxes := make([]*inbox, size)
	for i := range boxes {
		boxes[i] = &inbox{wake: make(chan struct{})}
	}
	ranks := make([]*Local, size)
	for i := range ranks {
		ranks[i] = &Local{rank: i, group: boxes}
	}
	return ranks
}

func (l *Local) Rank() int { return l.rank }
func (l *Local) Size() int { return len(l.group) }

// SendAsync copies payload into dest's inbox and returns immediately.
func (l *Local) SendAsync(ctx context.Context, dest, tag int, payload []byte) error {
	if dest < 0 || dest >= len(l.group) {
		return fmt.Errorf("%w: %d (group size %d)", ErrInvalidRank, dest, len(l.group))
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)

	box := l.group[dest]
	box.mu.Lock()
	defer box.mu.Unlock()
	if box.closed {
		return fmt.Errorf("send to rank %d: %w", dest, ErrClosed)
	}
	box.q = append(box.q, Message{Source: l.rank, Tag: tag, Payload: buf})
	close(box.wake)
	box.wake = make(chan struct{})
	return nil
}

// Receive blocks until a matching message arrives, ctx is done or the rank
// is closed.
func (l *Local) Receive(ctx context.Context, source, tag int) (Message, error) {
	box := l.group[l.rank]
	for {
		box.mu.Lock()
		if m, ok := box.q.take(source, tag); ok {
			box.mu.Unlock()
			return m, nil
		}
		if box.closed {
			box.mu.Unlock()
			return Message{}, ErrClosed
		}
		wake := box.wake
		box.mu.Unlock()

		select {
		case <-ctx.Done():
			return Message{}, ctx.Err()
		case <-wake:
		}
	}
}

// Close stops this rank's inbox. Pending receives return ErrClosed.
func (l *Local) Close() error {
	box := l.group[l.rank]
	box.mu.Lock()
	defer box.mu.Unlock()
	if !box.closed {
		box.closed = true
		close(box.wake)
	}
	return nil
}
