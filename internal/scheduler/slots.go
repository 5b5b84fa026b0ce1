package scheduler

import "quadsched/pkg/protocol"

// SlotTable keeps, per worker, the last chunk sent into each of its depth
// pipeline slots, plus a rotation pointer choosing the slot to reuse next.
// Index 0 is the controller's own rank and is never used.
type SlotTable struct {
	depth  int
	chunks [][]protocol.Chunk
	next   []int
}

// NewSlotTable sizes the table for a group of groupSize ranks.
func NewSlotTable(groupSize, depth int) *SlotTable {
	chunks := make([][]protocol.Chunk, groupSize)
	for i := range chunks {
		chunks[i] = make([]protocol.Chunk, depth)
	}
	return &SlotTable{
		depth:  depth,
		chunks: chunks,
		next:   make([]int, groupSize),
	}
}

// NextSlot returns the slot to use for worker's next send and advances the
// worker's pointer: 0, 1, ..., depth-1, 0, ...
func (t *SlotTable) NextSlot(worker int) int {
	slot := t.next[worker]
	t.next[worker] = (slot + 1) % t.depth
	return slot
}

func (t *SlotTable) Get(worker, slot int) protocol.Chunk {
	return t.chunks[worker][slot]
}

func (t *SlotTable) Set(worker, slot int, c protocol.Chunk) {
	t.chunks[worker][slot] = c
}

// Depth is the number of slots per worker.
func (t *SlotTable) Depth() int { return t.depth }
