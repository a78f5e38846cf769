package fixedpoint

import (
	"sort"

	"github.com/binarydiff/matcher/intern"
	"github.com/binarydiff/matcher/model"
)

// Store is the set of function fixed points for one diff, kept sorted by
// (primary address, secondary address). It is
// single-owner per diff: nothing here is safe for concurrent mutation by
// more than one goroutine (the batch driver gives every worker its own
// Store).
type Store struct {
	points      []*FixedPoint
	byPrimary   map[model.Address]*FixedPoint
	bySecondary map[model.Address]*FixedPoint
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		byPrimary:   make(map[model.Address]*FixedPoint),
		bySecondary: make(map[model.Address]*FixedPoint),
	}
}

// less orders two function fixed points by (primary address, secondary
// address), the store's canonical iteration order.
func less(a, b *FixedPoint) bool {
	pa, pb := a.Primary.EntryAddress(), b.Primary.EntryAddress()
	if pa != pb {
		return pa < pb
	}
	return a.Secondary.EntryAddress() < b.Secondary.EntryAddress()
}

// Add asserts that primary and secondary are the same function, discovered
// by the named step. It fails — returning (nil, false) — if either flow
// graph is already part of a fixed point. On success it installs the
// transient FlowGraph->FixedPoint back-pointers and returns the new entry
// with inserted=true.
func (s *Store) Add(primary, secondary *model.FlowGraph, step string) (*FixedPoint, bool) {
	if primary.FixedPoint() != nil || secondary.FixedPoint() != nil {
		return nil, false
	}

	fp := &FixedPoint{Primary: primary, Secondary: secondary, step: intern.String(step)}
	primary.SetFixedPoint(fp)
	secondary.SetFixedPoint(fp)

	idx := sort.Search(len(s.points), func(i int) bool { return !less(s.points[i], fp) })
	s.points = append(s.points, nil)
	copy(s.points[idx+1:], s.points[idx:])
	s.points[idx] = fp

	s.byPrimary[primary.EntryAddress()] = fp
	s.bySecondary[secondary.EntryAddress()] = fp
	return fp, true
}

// FindByPrimary returns the fixed point whose primary function is at addr.
func (s *Store) FindByPrimary(addr model.Address) (*FixedPoint, bool) {
	fp, ok := s.byPrimary[addr]
	return fp, ok
}

// FindBySecondary returns the fixed point whose secondary function is at addr.
func (s *Store) FindBySecondary(addr model.Address) (*FixedPoint, bool) {
	fp, ok := s.bySecondary[addr]
	return fp, ok
}

// All returns every fixed point, ordered by (primary address, secondary
// address). The returned slice is the store's own backing array; callers
// must not mutate it.
func (s *Store) All() []*FixedPoint { return s.points }

// Len returns the number of fixed points in the store.
func (s *Store) Len() int { return len(s.points) }

// Remove discards fp: it resets the FlowGraph->FixedPoint back-pointers on
// both sides (including every nested basic-block back-pointer) and removes
// fp from the ordered slice and both lookup maps.
func (s *Store) Remove(fp *FixedPoint) {
	for _, bb := range fp.basicBlocks {
		fp.Primary.SetBasicBlockFixedPoint(bb.PrimaryVertex, nil)
		fp.Secondary.SetBasicBlockFixedPoint(bb.SecondaryVertex, nil)
	}
	fp.Primary.SetFixedPoint(nil)
	fp.Secondary.SetFixedPoint(nil)

	delete(s.byPrimary, fp.Primary.EntryAddress())
	delete(s.bySecondary, fp.Secondary.EntryAddress())

	for i, p := range s.points {
		if p == fp {
			s.points = append(s.points[:i], s.points[i+1:]...)
			break
		}
	}
}

// Snapshot returns an independent copy of the ordered fixed-point slice,
// safe to iterate while the store is concurrently mutated by the caller.
func (s *Store) Snapshot() []*FixedPoint {
	out := make([]*FixedPoint, len(s.points))
	copy(out, s.points)
	return out
}

// bbLess orders two basic-block fixed points by (primary vertex, secondary
// vertex), the store's canonical nested iteration order.
func bbLess(a, b *BasicBlockFixedPoint) bool {
	if a.PrimaryVertex != b.PrimaryVertex {
		return a.PrimaryVertex < b.PrimaryVertex
	}
	return a.SecondaryVertex < b.SecondaryVertex
}

// AddBasicBlock asserts that primaryVertex (in f.Primary) and
// secondaryVertex (in f.Secondary) are the same basic block, discovered by
// the named step. It fails — returning (nil, false) — if either vertex is
// already part of a basic-block fixed point within f.
func (f *FixedPoint) AddBasicBlock(primaryVertex, secondaryVertex uint32, step string) (*BasicBlockFixedPoint, bool) {
	if f.Primary.BasicBlockFixedPoint(primaryVertex) != nil ||
		f.Secondary.BasicBlockFixedPoint(secondaryVertex) != nil {
		return nil, false
	}

	bb := &BasicBlockFixedPoint{
		PrimaryVertex:   primaryVertex,
		SecondaryVertex: secondaryVertex,
		step:            intern.String(step),
	}

	idx := sort.Search(len(f.basicBlocks), func(i int) bool { return !bbLess(f.basicBlocks[i], bb) })
	f.basicBlocks = append(f.basicBlocks, nil)
	copy(f.basicBlocks[idx+1:], f.basicBlocks[idx:])
	f.basicBlocks[idx] = bb

	f.Primary.SetBasicBlockFixedPoint(primaryVertex, bb)
	f.Secondary.SetBasicBlockFixedPoint(secondaryVertex, bb)
	return bb, true
}
