package protocol

import (
	"errors"
	"fmt"
)

// Application tags carried on every transport message. The numbering follows
// the original MPI program so traces from both can be compared side by side.
const (
	// TagWorkAvailable: controller -> worker, payload is a Chunk.
	TagWorkAvailable = 1000
	// TagQuit: controller -> worker, payload is a Chunk the worker ignores.
	TagQuit = 2000
	// TagPartialResult: worker -> controller, payload is a Value.
	TagPartialResult = 3000
	// TagWorkerExiting: worker -> controller, payload is a zero Value.
	TagWorkerExiting = 4000
)

// ErrUnexpectedTag is returned when a role receives a tag it has no handler for.
var ErrUnexpectedTag = errors.New("unexpected message tag")

// Chunk is a half-open index range [StartIndex, StopIndex) over the domain.
type Chunk struct {
	StartIndex int64 `msgpack:"start"`
	StopIndex  int64 `msgpack:"stop"`
}

// Len returns the number of sample points in the chunk.
func (c Chunk) Len() int64 {
	if c.StopIndex <= c.StartIndex {
		return 0
	}
	return c.StopIndex - c.StartIndex
}

func (c Chunk) String() string {
	return fmt.Sprintf("[%d,%d)", c.StartIndex, c.StopIndex)
}

// Value is a single real carried by partial-result and worker-exiting messages.
type Value struct {
	Value float64 `msgpack:"value"`
}

// TagName renders a tag for logs.
func TagName(tag int) string {
	switch tag {
	case TagWorkAvailable:
		return "work-available"
	case TagQuit:
		return "quit"
	case TagPartialResult:
		return "partial-result"
	case TagWorkerExiting:
		return "worker-exiting"
	default:
		return fmt.Sprintf("tag(%d)", tag)
	}
}
