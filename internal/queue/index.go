package queue

import (
	"container/heap"
	"sort"
)

// indexEntry is one queued task in the priority index.
type indexEntry struct {
	id          string
	rank        int
	createdAtMs int64
	index       int // position in the heap, maintained by container/heap
}

// entryLess orders by (rank, created_at_ms, id) ascending, so the most
// urgent oldest task surfaces first.
func entryLess(a, b *indexEntry) bool {
	if a.rank != b.rank {
		return a.rank < b.rank
	}
	if a.createdAtMs != b.createdAtMs {
		return a.createdAtMs < b.createdAtMs
	}
	return a.id < b.id
}

// entryHeap implements heap.Interface over indexEntry pointers.
type entryHeap []*indexEntry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool { return entryLess(h[i], h[j]) }

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	n := len(*h)
	item := x.(*indexEntry)
	item.index = n
	*h = append(*h, item)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil  // avoid memory leak
	item.index = -1 // for safety
	*h = old[0 : n-1]
	return item
}

// priorityIndex tracks the queued task ids in scheduling order. It holds no
// lock of its own; the owning Service serializes access.
type priorityIndex struct {
	heap    entryHeap
	entries map[string]*indexEntry
}

func newPriorityIndex() *priorityIndex {
	idx := &priorityIndex{
		heap:    make(entryHeap, 0),
		entries: make(map[string]*indexEntry),
	}
	heap.Init(&idx.heap)
	return idx
}

// Add inserts a queued task. Re-adding an id replaces its ordering keys.
func (idx *priorityIndex) Add(id string, rank int, createdAtMs int64) {
	if existing, ok := idx.entries[id]; ok {
		existing.rank = rank
		existing.createdAtMs = createdAtMs
		heap.Fix(&idx.heap, existing.index)
		return
	}
	entry := &indexEntry{id: id, rank: rank, createdAtMs: createdAtMs}
	heap.Push(&idx.heap, entry)
	idx.entries[id] = entry
}

// Remove drops a task id. Removing an absent id is a no-op.
func (idx *priorityIndex) Remove(id string) {
	entry, ok := idx.entries[id]
	if !ok {
		return
	}
	heap.Remove(&idx.heap, entry.index)
	delete(idx.entries, id)
}

// Peek returns the head id without removing it. ok is false when empty.
func (idx *priorityIndex) Peek() (string, bool) {
	if len(idx.heap) == 0 {
		return "", false
	}
	return idx.heap[0].id, true
}

// Contains reports whether the id is indexed.
func (idx *priorityIndex) Contains(id string) bool {
	_, ok := idx.entries[id]
	return ok
}

// Len returns the number of indexed tasks.
func (idx *priorityIndex) Len() int {
	return len(idx.heap)
}

// Ordered returns all indexed ids in scheduling order without mutating the
// index. Sorting a snapshot slice leaves the heap positions untouched.
func (idx *priorityIndex) Ordered() []string {
	snapshot := make([]*indexEntry, len(idx.heap))
	copy(snapshot, idx.heap)
	sort.Slice(snapshot, func(i, j int) bool { return entryLess(snapshot[i], snapshot[j]) })
	ids := make([]string, 0, len(snapshot))
	for _, entry := range snapshot {
		ids = append(ids, entry.id)
	}
	return ids
}
