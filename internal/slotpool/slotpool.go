// Package slotpool implements the biqueue slab allocator: a fixed-node-size
// slab that hands out stable 32-bit ids decomposable as (page, index). The
// same allocator backs both the time wheel's timer nodes and the proxy's
// connection objects, which need id-stable references across reuse.
package slotpool

import (
	"sync"

	"github.com/pkg/errors"
)

// magic values guarding against double-free and use-after-free.
const (
	magicFree  = uint32(0)
	magicAlloc = uint32(0x075CA756) // arbitrary non-zero guard
)

// nodesPerPage is the canonical, hardcoded page size: P=256 so that an id's
// low 8 bits are always the in-page slot index and the remaining bits are
// the page index. This resolves the open question in the original design
// (where the decomposition assumed 256 regardless of the backing
// allocator's actual page size) by making the page size a compile-time
// constant of this package, not a derived value.
const nodesPerPage = 256

// ErrCapacityExhausted is returned by Alloc when the pool has reached its
// configured slot_count and every existing page is fully allocated.
var ErrCapacityExhausted = errors.New("slotpool: capacity exhausted")

// ErrInvalidID is returned by GetByID when the id's page component is out of
// range for the pool's current page count.
var ErrInvalidID = errors.New("slotpool: invalid id")

// Node is the unit of allocation. Value holds caller-defined payload; Node
// itself only carries the bookkeeping fields described in spec §3.
type Node struct {
	id    uint32
	magic uint32
	next  *Node // free-list linkage
	prev  *Node // free-list linkage (tail-insert support)
	Value any
}

// ID returns the node's stable 32-bit id, valid for the node's lifetime.
func (n *Node) ID() uint32 { return n.id }

// Pool is a fixed-node-size slab allocator. A Pool is safe for concurrent
// use; all mutators and GetByID take an internal lock.
type Pool struct {
	mu        sync.Mutex
	slotCount uint32 // total capacity hint (in nodes)
	pages     [][]Node
	freeHead  *Node
	freeTail  *Node
	allocated int
}

// New creates a pool sized to hold at least capacityHint nodes, rounded up
// to a whole number of nodesPerPage pages. The pool starts with zero pages
// and grows lazily on first Alloc, matching the "grow on demand" lifecycle
// in spec §3.
func New(capacityHint int) *Pool {
	if capacityHint <= 0 {
		capacityHint = nodesPerPage
	}
	pageCount := (capacityHint + nodesPerPage - 1) / nodesPerPage
	return &Pool{
		slotCount: uint32(pageCount * nodesPerPage),
	}
}

// Cap returns the pool's current capacity ceiling, in nodes.
func (p *Pool) Cap() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return int(p.slotCount)
}

// Len returns the number of currently allocated (outstanding) nodes.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.allocated
}

func (p *Pool) growLocked() error {
	if uint32(len(p.pages)+1)*nodesPerPage > p.slotCount {
		return ErrCapacityExhausted
	}
	pageIndex := uint32(len(p.pages))
	page := make([]Node, nodesPerPage)
	for i := range page {
		page[i].id = (pageIndex << 8) | uint32(i)
		page[i].magic = magicFree
	}
	p.pages = append(p.pages, page)
	for i := range page {
		p.pushTailLocked(&page[i])
	}
	return nil
}

func (p *Pool) pushHeadLocked(n *Node) {
	n.prev = nil
	n.next = p.freeHead
	if p.freeHead != nil {
		p.freeHead.prev = n
	}
	p.freeHead = n
	if p.freeTail == nil {
		p.freeTail = n
	}
}

func (p *Pool) pushTailLocked(n *Node) {
	n.next = nil
	n.prev = p.freeTail
	if p.freeTail != nil {
		p.freeTail.next = n
	}
	p.freeTail = n
	if p.freeHead == nil {
		p.freeHead = n
	}
}

func (p *Pool) popHeadLocked() *Node {
	n := p.freeHead
	if n == nil {
		return nil
	}
	p.freeHead = n.next
	if p.freeHead != nil {
		p.freeHead.prev = nil
	} else {
		p.freeTail = nil
	}
	n.next, n.prev = nil, nil
	return n
}

// Alloc draws a node from the free list, growing the pool by one page if
// necessary. Returns ErrCapacityExhausted if the pool's slotCount ceiling
// has been reached.
func (p *Pool) Alloc() (*Node, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for {
		if n := p.popHeadLocked(); n != nil {
			n.magic = magicAlloc
			n.Value = nil
			p.allocated++
			return n, nil
		}
		if err := p.growLocked(); err != nil {
			return nil, err
		}
		// loop back and take from the page just grown
	}
}

// GetByID decomposes id into (page, index) and returns the node pointer
// unconditionally if in range. Magic mismatch (a free node looked up by a
// stale id) is reported to the caller as ok=false but is not an error: per
// spec.md this is "a recoverable warning, not a failure".
func (p *Pool) GetByID(id uint32) (node *Node, ok bool, err error) {
	page := id >> 8
	index := id & 0xFF
	p.mu.Lock()
	defer p.mu.Unlock()
	if int(page) >= len(p.pages) {
		return nil, false, ErrInvalidID
	}
	n := &p.pages[page][index]
	return n, n.magic == magicAlloc, nil
}

// Free clears the node's magic and returns it to the head of the free list
// (the hot path: most recently freed nodes are reused first).
func (p *Pool) Free(n *Node) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n.magic = magicFree
	n.Value = nil
	p.allocated--
	p.pushHeadLocked(n)
}

// FreeToTail returns the node to the tail of the free list, used by the PAT
// timer path to avoid immediate reuse of a just-expired timer's slot.
func (p *Pool) FreeToTail(n *Node) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n.magic = magicFree
	n.Value = nil
	p.allocated--
	p.pushTailLocked(n)
}

// Destroy releases the pool's backing pages. Safe to call once; the pool
// must not be used afterward.
func (p *Pool) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pages = nil
	p.freeHead = nil
	p.freeTail = nil
	p.allocated = 0
}
