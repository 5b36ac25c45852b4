package block

import "container/heap"

// PriorityBlockHeap is an ordered collection of block descriptors keyed by
// the packed priority bits (spec.md component C): the arena pops the
// lowest-packed-value (highest priority) block to allocate from next.
//
// Implemented on container/heap (stdlib) rather than the teacher's
// hand-rolled pairing heap — no third-party heap library appears anywhere
// in the retrieved corpus, and container/heap is the idiomatic Go
// substitute for exactly this "ordered collection with cheap
// pop-minimum/push/fix" shape.
type PriorityBlockHeap struct {
	items []*BlockDescriptor
}

// Len reports the number of blocks in the heap.
func (h *PriorityBlockHeap) Len() int { return len(h.items) }

// Push inserts d into the heap.
func (h *PriorityBlockHeap) Push(d *BlockDescriptor) {
	heap.Push((*priorityBlockHeapSort)(h), d)
}

// Pop removes and returns the highest-priority block (lowest packed
// value), or nil if the heap is empty.
func (h *PriorityBlockHeap) Pop() *BlockDescriptor {
	if len(h.items) == 0 {
		return nil
	}
	return heap.Pop((*priorityBlockHeapSort)(h)).(*BlockDescriptor)
}

// Peek returns the highest-priority block without removing it, or nil if
// the heap is empty.
func (h *PriorityBlockHeap) Peek() *BlockDescriptor {
	if len(h.items) == 0 {
		return nil
	}
	return h.items[0]
}

// Fix re-establishes heap order for d after its priority bits have
// changed (e.g. after Reserve/Release). d must currently be in this heap.
func (h *PriorityBlockHeap) Fix(d *BlockDescriptor) {
	heap.Fix((*priorityBlockHeapSort)(h), d.heapIndex)
}

// Remove removes d from the heap. d must currently be in this heap.
func (h *PriorityBlockHeap) Remove(d *BlockDescriptor) {
	heap.Remove((*priorityBlockHeapSort)(h), d.heapIndex)
}

// priorityBlockHeapSort adapts PriorityBlockHeap to container/heap.Interface.
type priorityBlockHeapSort PriorityBlockHeap

func (s *priorityBlockHeapSort) Len() int { return len(s.items) }
func (s *priorityBlockHeapSort) Less(i, j int) bool {
	return priorityBlockCmp(s.items[i].bits, s.items[j].bits) < 0
}
func (s *priorityBlockHeapSort) Swap(i, j int) {
	s.items[i], s.items[j] = s.items[j], s.items[i]
	s.items[i].heapIndex = i
	s.items[j].heapIndex = j
}
func (s *priorityBlockHeapSort) Push(x any) {
	d := x.(*BlockDescriptor)
	d.heapIndex = len(s.items)
	s.items = append(s.items, d)
}
func (s *priorityBlockHeapSort) Pop() any {
	n := len(s.items)
	d := s.items[n-1]
	s.items[n-1] = nil
	s.items = s.items[:n-1]
	d.heapIndex = -1
	return d
}

// UnusedBlockHeap holds recycled-but-idle blocks, ordered by
// unusedBlockDescriptorCmp ((generation << 32) | address) so that popping
// always yields the oldest generation first: FIFO recycling.
type UnusedBlockHeap struct {
	items []*BlockDescriptor
}

func (h *UnusedBlockHeap) Len() int { return len(h.items) }

func (h *UnusedBlockHeap) Push(d *BlockDescriptor) {
	heap.Push((*unusedBlockHeapSort)(h), d)
}

func (h *UnusedBlockHeap) Pop() *BlockDescriptor {
	if len(h.items) == 0 {
		return nil
	}
	return heap.Pop((*unusedBlockHeapSort)(h)).(*BlockDescriptor)
}

type unusedBlockHeapSort UnusedBlockHeap

func (s *unusedBlockHeapSort) Len() int { return len(s.items) }
func (s *unusedBlockHeapSort) Less(i, j int) bool {
	ki := newUnusedKey(s.items[i].generation, s.items[i].bits.PackedAddress())
	kj := newUnusedKey(s.items[j].generation, s.items[j].bits.PackedAddress())
	return unusedBlockDescriptorCmp(ki, kj) < 0
}
func (s *unusedBlockHeapSort) Swap(i, j int) {
	s.items[i], s.items[j] = s.items[j], s.items[i]
	s.items[i].heapIndex = i
	s.items[j].heapIndex = j
}
func (s *unusedBlockHeapSort) Push(x any) {
	d := x.(*BlockDescriptor)
	d.heapIndex = len(s.items)
	s.items = append(s.items, d)
}
func (s *unusedBlockHeapSort) Pop() any {
	n := len(s.items)
	d := s.items[n-1]
	s.items[n-1] = nil
	s.items = s.items[:n-1]
	d.heapIndex = -1
	return d
}
