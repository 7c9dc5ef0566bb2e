package analysis

import "kanso/internal/venom/ir"

// Dominators is the result of dominator-tree construction: the
// immediate-dominator relation on reachable blocks, the dominator tree
// (parent -> children) derived from it, and dominance frontiers computed
// per the standard definition. The algorithm (Cooper-Harvey-Kennedy) is an
// implementation choice; only the observable relation is part of the
// contract (spec §4.2).
type Dominators struct {
	fn *ir.Function

	idom     map[*ir.BasicBlock]*ir.BasicBlock
	children map[*ir.BasicBlock][]*ir.BasicBlock
	frontier map[*ir.BasicBlock]map[*ir.BasicBlock]struct{}

	postOrder    []*ir.BasicBlock
	postOrderIdx map[*ir.BasicBlock]int
}

// ComputeDominators builds the dominator tree for fn's reachable blocks.
func ComputeDominators(fn *ir.Function) *Dominators {
	d := &Dominators{fn: fn, idom: map[*ir.BasicBlock]*ir.BasicBlock{}}

	d.postOrder = DFSPostOrder(fn)
	d.postOrderIdx = make(map[*ir.BasicBlock]int, len(d.postOrder))
	for i, b := range d.postOrder {
		d.postOrderIdx[b] = i
	}
	if len(d.postOrder) == 0 {
		return d
	}

	entry := fn.Entry
	d.idom[entry] = entry

	changed := true
	for changed {
		changed = false
		// reverse post-order: highest index first (postOrder is
		// post-order, so reverse iteration visits entry-ish blocks
		// before their successors-processed descendants)
		for i := len(d.postOrder) - 1; i >= 0; i-- {
			b := d.postOrder[i]
			if b == entry {
				continue
			}
			var newIdom *ir.BasicBlock
			for _, pred := range b.CFGIn {
				if _, ok := d.idom[pred]; !ok {
					continue
				}
				if newIdom == nil {
					newIdom = pred
					continue
				}
				newIdom = d.intersect(newIdom, pred)
			}
			if newIdom == nil {
				continue
			}
			if d.idom[b] != newIdom {
				d.idom[b] = newIdom
				changed = true
			}
		}
	}
	delete(d.idom, entry) // entry has no dominator, by convention

	d.buildChildren()
	d.computeFrontiers()
	return d
}

func (d *Dominators) intersect(a, b *ir.BasicBlock) *ir.BasicBlock {
	for a != b {
		for d.postOrderIdx[a] < d.postOrderIdx[b] {
			a = d.idom[a]
		}
		for d.postOrderIdx[b] < d.postOrderIdx[a] {
			b = d.idom[b]
		}
	}
	return a
}

func (d *Dominators) buildChildren() {
	d.children = map[*ir.BasicBlock][]*ir.BasicBlock{}
	for b, parent := range d.idom {
		d.children[parent] = append(d.children[parent], b)
	}
}

// IDom returns b's immediate dominator, or nil for the entry/unreachable
// blocks.
func (d *Dominators) IDom(b *ir.BasicBlock) *ir.BasicBlock { return d.idom[b] }

// Children returns the dominator-tree children of b.
func (d *Dominators) Children(b *ir.BasicBlock) []*ir.BasicBlock { return d.children[b] }

// Dominates reports whether a dominates b (reflexively: a dominates a).
func (d *Dominators) Dominates(a, b *ir.BasicBlock) bool {
	if a == b {
		return true
	}
	cur, ok := d.idom[b]
	for ok {
		if cur == a {
			return true
		}
		cur, ok = d.idom[cur]
	}
	return false
}

// StrictlyDominates reports whether a strictly dominates b.
func (d *Dominators) StrictlyDominates(a, b *ir.BasicBlock) bool {
	return a != b && d.Dominates(a, b)
}

// computeFrontiers computes dominance frontiers via the standard
// Cytron-et-al definition: for every block with >=2 predecessors, walk
// from each predecessor up the dominator tree to (but not including) the
// block's immediate dominator, adding the join block to each visited
// block's frontier.
func (d *Dominators) computeFrontiers() {
	d.frontier = map[*ir.BasicBlock]map[*ir.BasicBlock]struct{}{}
	for _, b := range d.postOrder {
		if len(b.CFGIn) < 2 {
			continue
		}
		bIdom := d.idom[b] // nil for the entry block, which has no idom
		for _, pred := range b.CFGIn {
			if _, reachable := d.postOrderIdx[pred]; !reachable {
				continue
			}
			runner := pred
			for runner != bIdom {
				if d.frontier[runner] == nil {
					d.frontier[runner] = map[*ir.BasicBlock]struct{}{}
				}
				d.frontier[runner][b] = struct{}{}
				runner = d.idom[runner]
				if runner == nil {
					break // reached the entry block
				}
			}
		}
	}
}

// DominanceFrontier returns b's dominance frontier.
func (d *Dominators) DominanceFrontier(b *ir.BasicBlock) map[*ir.BasicBlock]struct{} {
	return d.frontier[b]
}

// IteratedDominanceFrontier computes the iterated dominance frontier of a
// set of blocks: repeatedly union in DF(x) for each newly added block until
// fixpoint. This is the standard phi-insertion point set.
func (d *Dominators) IteratedDominanceFrontier(seeds []*ir.BasicBlock) map[*ir.BasicBlock]struct{} {
	result := map[*ir.BasicBlock]struct{}{}
	worklist := append([]*ir.BasicBlock{}, seeds...)
	for len(worklist) > 0 {
		b := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		for df := range d.frontier[b] {
			if _, ok := result[df]; !ok {
				result[df] = struct{}{}
				worklist = append(worklist, df)
			}
		}
	}
	return result
}

// PreOrder returns the dominator tree walked in pre-order from the entry —
// the order MakeSSA renames variables in.
func (d *Dominators) PreOrder() []*ir.BasicBlock {
	var order []*ir.BasicBlock
	var visit func(b *ir.BasicBlock)
	visit = func(b *ir.BasicBlock) {
		order = append(order, b)
		for _, c := range d.children[b] {
			visit(c)
		}
	}
	if d.fn.Entry != nil {
		visit(d.fn.Entry)
	}
	return order
}
