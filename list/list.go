// Package list implements the intrusive doubly-linked list the PMM uses to
// track its order-indexed free/busy frames.
//
// DESIGN NOTE (spec.md §9): the original C substrate links list_head_t
// structs embedded directly in the payload struct and walks raw pointers.
// Go's garbage collector makes embedded raw next/prev pointers workable,
// but crossing an interrupt boundary with live unsafe.Pointer chains is a
// trap we'd rather not set for ourselves - so List stores plain int
// indices into a caller-owned, fixed-capacity backing array instead of
// pointers ("index-arena storage", spec.md §9 second bullet). -1 is the
// sentinel meaning "no entry".
package list

// None is the sentinel index meaning "no node".
const None = -1

// Node is the embeddable link pair for index-arena intrusive lists. Callers
// embed this in their own element struct, sized exactly like the
// original's list_head_t (next/prev) but using array indices instead of
// pointers.
type Node struct {
	next, prev int
}

// List is an index-based doubly-linked, circular list head. The zero value
// is an empty list, matching list_init()'s "points to itself" idiom.
type List struct {
	head Node
	size int
}

// Init (re)initializes head so that it is an empty, self-referential list.
// headIdx is the index the caller uses to refer to the list head itself
// (e.g. -2, or any value distinct from every real element index); it is
// stored as both next and prev until an element is linked.
func (l *List) Init(headIdx int) {
	l.head.next = headIdx
	l.head.prev = headIdx
	l.size = 0
}

// Empty returns true if the list holds no elements.
func (l *List) Empty() bool { return l.size == 0 }

// Len returns the number of linked elements.
func (l *List) Len() int { return l.size }

// Front returns the index stored at the head of the list, or None if empty.
func (l *List) Front() int {
	if l.size == 0 {
		return None
	}
	return l.head.next
}

// Back returns the index stored at the tail of the list, or None if empty.
func (l *List) Back() int {
	if l.size == 0 {
		return None
	}
	return l.head.prev
}

// PushFront links idx (whose Node is nodeOf(idx)) at the front of the list.
// nodeOf must return a pointer to the Node embedded at index idx, and
// headIdx must be the same sentinel passed to Init.
func (l *List) PushFront(idx int, headIdx int, nodeOf func(int) *Node) {
	n := nodeOf(idx)
	if l.size == 0 {
		n.next, n.prev = headIdx, headIdx
		l.head.next, l.head.prev = idx, idx
	} else {
		first := l.head.next
		n.next, n.prev = first, headIdx
		nodeOf(first).prev = idx
		l.head.next = idx
	}
	l.size++
}

// PushBack links idx at the back of the list.
func (l *List) PushBack(idx int, headIdx int, nodeOf func(int) *Node) {
	n := nodeOf(idx)
	if l.size == 0 {
		n.next, n.prev = headIdx, headIdx
		l.head.next, l.head.prev = idx, idx
	} else {
		last := l.head.prev
		n.next, n.prev = headIdx, last
		nodeOf(last).next = idx
		l.head.prev = idx
	}
	l.size++
}

// Remove unlinks idx from the list. idx must currently be a member.
func (l *List) Remove(idx int, headIdx int, nodeOf func(int) *Node) {
	n := nodeOf(idx)
	prev, next := n.prev, n.next

	if prev == headIdx {
		l.head.next = next
	} else {
		nodeOf(prev).next = next
	}
	if next == headIdx {
		l.head.prev = prev
	} else {
		nodeOf(next).prev = prev
	}

	n.next, n.prev = None, None
	l.size--
}

// NodeAt returns the Node embedded in the element at idx, following the
// same nodeOf accessor used by PushFront/PushBack/Remove. It is a thin
// convenience wrapper so callers can walk next/prev chains directly.
func NodeAt(idx int, nodeOf func(int) *Node) *Node { return nodeOf(idx) }

// Next returns the index following idx, given headIdx as the wrap sentinel.
func (n *Node) Next(headIdx int) int {
	if n == nil {
		return None
	}
	return n.next
}

// Prev returns the index preceding idx, given headIdx as the wrap sentinel.
func (n *Node) Prev(headIdx int) int {
	if n == nil {
		return None
	}
	return n.prev
}
