// Package spatial hands out non-overlapping world-space origins for rooms.
package spatial

import "fmt"

// Position is a world-space point.
type Position struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
	Z float64 `json:"z" msgpack:"z"`
}

// Array returns the position as an x, y, z triple.
func (p Position) Array() [3]float64 {
	return [3]float64{p.X, p.Y, p.Z}
}

func (p Position) String() string {
	return fmt.Sprintf("(%g,%g,%g)", p.X, p.Y, p.Z)
}

// Slot is one grid cell leased to a room.
type Slot struct {
	Index    int      `json:"index"`
	Position Position `json:"position"`
}

// Grid maps slot indices onto positions: index i sits at column i mod
// RowWidth and row i div RowWidth.
type Grid struct {
	RowWidth  int
	CellSizeX float64
	CellSizeZ float64
}

// DefaultGrid lays rooms out ten to a row on a 20x20 pitch.
func DefaultGrid() Grid {
	return Grid{RowWidth: 10, CellSizeX: 20, CellSizeZ: 20}
}

func (g Grid) normalized() Grid {
	if g.RowWidth <= 0 {
		g.RowWidth = 1
	}
	return g
}

// Slot derives the slot for an index.
func (g Grid) Slot(index int) Slot {
	g = g.normalized()
	return Slot{
		Index: index,
		Position: Position{
			X: float64(index%g.RowWidth) * g.CellSizeX,
			Y: 0,
			Z: float64(index/g.RowWidth) * g.CellSizeZ,
		},
	}
}

// Allocator leases grid slots. Released slots are handed out again, oldest
// release first, before a new index is minted. It is not safe for concurrent
// use; callers confine it to the session loop.
type Allocator struct {
	grid     Grid
	maxSlots int
	next     int
	free     indexQueue
	leased   map[int]struct{}
}

// NewAllocator builds an allocator over grid. maxSlots caps how many distinct
// indices may be minted; zero means unbounded.
func NewAllocator(grid Grid, maxSlots int) *Allocator {
	if maxSlots < 0 {
		maxSlots = 0
	}
	return &Allocator{
		grid:     grid.normalized(),
		maxSlots: maxSlots,
		leased:   make(map[int]struct{}),
	}
}

// Acquire leases a slot. It returns false only when the allocator is bounded
// and every minted slot is in use.
func (a *Allocator) Acquire() (Slot, bool) {
	if index, ok := a.free.pop(); ok {
		a.leased[index] = struct{}{}
		return a.grid.Slot(index), true
	}
	if a.maxSlots > 0 && a.next >= a.maxSlots {
		return Slot{}, false
	}
	index := a.next
	a.next++
	a.leased[index] = struct{}{}
	return a.grid.Slot(index), true
}

// Release returns a slot to the free-list tail. The caller vouches that the
// slot is currently leased; slotdebug builds panic when it is not.
func (a *Allocator) Release(slot Slot) {
	if _, ok := a.leased[slot.Index]; !ok {
		assertf("spatial: release of slot %d that is not leased", slot.Index)
	}
	delete(a.leased, slot.Index)
	a.free.push(slot.Index)
}

// Leased reports how many slots are in use.
func (a *Allocator) Leased() int {
	return len(a.leased)
}

// Free reports how many released slots are waiting for reuse.
func (a *Allocator) Free() int {
	return a.free.len()
}

// Minted reports how many distinct indices have been handed out.
func (a *Allocator) Minted() int {
	return a.next
}

// indexQueue is a FIFO of slot indices backed by a slice that compacts once
// the consumed prefix dominates.
type indexQueue struct {
	items []int
	head  int
}

func (q *indexQueue) push(index int) {
	q.items = append(q.items, index)
}

func (q *indexQueue) pop() (int, bool) {
	if q.head >= len(q.items) {
		return 0, false
	}
	index := q.items[q.head]
	q.head++
	if q.head >= 32 && q.head*2 >= len(q.items) {
		q.items = append(q.items[:0], q.items[q.head:]...)
		q.head = 0
	}
	return index, true
}

func (q *indexQueue) len() int {
	return len(q.items) - q.head
}
