package scheduler

import (
	"testing"

	"quadsched/pkg/protocol"
)

func TestSlotTableRotation(t *testing.T) {
	table := NewSlotTable(4, 3)

	want := []int{0, 1, 2, 0, 1, 2, 0}
	for i, w := range want {
		if got := table.NextSlot(2); got != w {
			t.Fatalf("call %d: NextSlot(2) = %d, want %d", i, got, w)
		}
	}

	// Other workers rotate independently.
	if got := table.NextSlot(1); got != 0 {
		t.Errorf("NextSlot(1) = %d, want 0", got)
	}
	if got := table.NextSlot(3); got != 0 {
		t.Errorf("NextSlot(3) = %d, want 0", got)
	}
}

func TestSlotTableStorage(t *testing.T) {
	table := NewSlotTable(3, 3)
	c := protocol.Chunk{StartIndex: 40, StopIndex: 50}
	table.Set(2, 1, c)

	if got := table.Get(2, 1); got != c {
		t.Errorf("Get(2,1) = %s, want %s", got, c)
	}
	if got := table.Get(1, 1); got.Len() != 0 {
		t.Errorf("Get(1,1) = %s, want zero chunk", got)
	}
	if table.Depth() != 3 {
		t.Errorf("Depth() = %d", table.Depth())
	}
}

func TestSlotTableSizedFromGroup(t *testing.T) {
	// No fixed processor ceiling: a 100-rank group gets 100 rows.
	table := NewSlotTable(100, 3)
	table.Set(99, 2, protocol.Chunk{StartIndex: 1, StopIndex: 2})
	if table.Get(99, 2).StopIndex != 2 {
		t.Error("row 99 not stored")
	}
}
