package scheduler

import "quadsched/pkg/protocol"

// WorkGenerator hands out consecutive fixed-size chunks of [0, N). It is
// owned by the controller loop and never shared.
type WorkGenerator struct {
	points      int64
	granularity int64
	completed   int64 // highest index assigned so far
	issued      int64
}

func NewWorkGenerator(points, granularity int64) *WorkGenerator {
	return &WorkGenerator{points: points, granularity: granularity}
}

// IsExhausted reports whether every index has been assigned.
func (g *WorkGenerator) IsExhausted() bool {
	return g.completed == g.points
}

// NextChunk returns the next range and advances the cursor. Callers must
// check IsExhausted first; after exhaustion it returns the empty chunk [N,N).
func (g *WorkGenerator) NextChunk() protocol.Chunk {
	if g.IsExhausted() {
		return protocol.Chunk{StartIndex: g.points, StopIndex: g.points}
	}
	start := g.completed
	stop := min(start+g.granularity, g.points)
	g.completed = stop
	g.issued++
	return protocol.Chunk{StartIndex: start, StopIndex: stop}
}

// Completed is the cursor position.
func (g *WorkGenerator) Completed() int64 { return g.completed }

// Issued is the number of non-empty chunks produced so far.
func (g *WorkGenerator) Issued() int64 { return g.issued }
