package spatial

import "testing"

func TestGridSlotPositions(t *testing.T) {
	grid := Grid{RowWidth: 10, CellSizeX: 20, CellSizeZ: 30}
	tests := []struct {
		index int
		want  Position
	}{
		{index: 0, want: Position{X: 0, Y: 0, Z: 0}},
		{index: 1, want: Position{X: 20, Y: 0, Z: 0}},
		{index: 9, want: Position{X: 180, Y: 0, Z: 0}},
		{index: 10, want: Position{X: 0, Y: 0, Z: 30}},
		{index: 23, want: Position{X: 60, Y: 0, Z: 60}},
	}
	for _, tt := range tests {
		if got := grid.Slot(tt.index).Position; got != tt.want {
			t.Fatalf("index %d: expected %v, got %v", tt.index, tt.want, got)
		}
	}
}

func TestAcquireMintsFromZero(t *testing.T) {
	alloc := NewAllocator(DefaultGrid(), 0)
	slot, ok := alloc.Acquire()
	if !ok {
		t.Fatalf("expected unbounded allocator to succeed")
	}
	if slot.Index != 0 || slot.Position != (Position{}) {
		t.Fatalf("expected first slot at origin, got %+v", slot)
	}
	second, _ := alloc.Acquire()
	if second.Index != 1 || second.Position.X != 20 {
		t.Fatalf("unexpected second slot %+v", second)
	}
}

func TestReleasedSlotIsReusedBeforeMinting(t *testing.T) {
	alloc := NewAllocator(DefaultGrid(), 0)
	first, _ := alloc.Acquire()
	alloc.Release(first)

	again, _ := alloc.Acquire()
	if again != first {
		t.Fatalf("expected released slot %+v back, got %+v", first, again)
	}
	if alloc.Minted() != 1 {
		t.Fatalf("expected no new index to be minted, got %d", alloc.Minted())
	}
}

func TestFreedSlotsComeBackInReleaseOrder(t *testing.T) {
	alloc := NewAllocator(DefaultGrid(), 0)
	a, _ := alloc.Acquire()
	b, _ := alloc.Acquire()
	c, _ := alloc.Acquire()

	alloc.Release(c)
	alloc.Release(a)
	alloc.Release(b)

	for _, want := range []Slot{c, a, b} {
		got, _ := alloc.Acquire()
		if got != want {
			t.Fatalf("expected %+v, got %+v", want, got)
		}
	}
	next, _ := alloc.Acquire()
	if next.Index != 3 {
		t.Fatalf("expected fresh index 3 after draining free-list, got %d", next.Index)
	}
}

func TestNoTwoLeasesShareASlot(t *testing.T) {
	alloc := NewAllocator(Grid{RowWidth: 3, CellSizeX: 1, CellSizeZ: 1}, 0)
	active := make(map[Position]Slot)
	var order []Slot
	for step := 0; step < 200; step++ {
		if step%3 == 2 && len(order) > 0 {
			victim := order[0]
			order = order[1:]
			delete(active, victim.Position)
			alloc.Release(victim)
			continue
		}
		slot, ok := alloc.Acquire()
		if !ok {
			t.Fatalf("unbounded allocator failed at step %d", step)
		}
		if _, clash := active[slot.Position]; clash {
			t.Fatalf("slot %+v leased twice", slot)
		}
		active[slot.Position] = slot
		order = append(order, slot)
	}
	if alloc.Leased() != len(active) {
		t.Fatalf("expected %d leased, got %d", len(active), alloc.Leased())
	}
}

func TestBoundedAllocatorReportsExhaustion(t *testing.T) {
	alloc := NewAllocator(DefaultGrid(), 2)
	first, _ := alloc.Acquire()
	if _, ok := alloc.Acquire(); !ok {
		t.Fatalf("expected second slot within bound")
	}
	if _, ok := alloc.Acquire(); ok {
		t.Fatalf("expected exhaustion at bound")
	}
	alloc.Release(first)
	if got, ok := alloc.Acquire(); !ok || got != first {
		t.Fatalf("expected released slot to satisfy a bounded acquire, got %+v %v", got, ok)
	}
}
