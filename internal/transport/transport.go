// Package transport provides rank-addressed, tag-filtered point-to-point
// messaging between the controller and its workers.
//
// Guarantees every implementation gives:
//   - messages from one sender to one receiver arrive in the order sent
//   - SendAsync does not wait for the receiver and does not retain payload
//   - Receive blocks until a message matching (source, tag) arrives; messages
//     that do not match stay queued, in arrival order, for later receives
package transport

import (
	"context"
	"errors"
)

// Wildcards for Receive.
const (
	AnySource = -1
	AnyTag    = -1
)

var (
	ErrClosed      = errors.New("transport closed")
	ErrInvalidRank = errors.New("invalid rank")
)

// Message is one delivered payload with its envelope.
type Message struct {
	Source  int
	Tag     int
	Payload []byte
}

// Transport is one rank's view of the process group.
type Transport interface {
	Rank() int
	Size() int
	SendAsync(ctx context.Context, dest, tag int, payload []byte) error
	Receive(ctx context.Context, source, tag int) (Message, error)
	Close() error
}

func matches(m Message, source, tag int) bool {
	return (source == AnySource || m.Source == source) && (tag == AnyTag || m.Tag == tag)
}

// queue holds delivered but not yet received messages.
type queue []Message

// take removes and returns the oldest message matching the filter.
func (q *queue) take(source, tag int) (Message, bool) {
	for i, m := range *q {
		if matches(m, source, tag) {
			*q = append((*q)[:i], (*q)[i+1:]...)
			return m, true
		}
	}
	return Message{}, false
}
