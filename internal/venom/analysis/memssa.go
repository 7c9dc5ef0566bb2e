package analysis

import "kanso/internal/venom/ir"

// MemoryAccess is the sum type of Memory SSA nodes: a MemoryDef, a
// MemoryUse, a MemoryPhi, or the synthetic LiveOnEntry sentinel meaning
// "the state of memory before the function begins".
type MemoryAccess interface {
	isMemoryAccess()
	Version() int
}

// MemoryDef is created per store, and also for any clobbering operation
// (an external call, a copy opcode) whose write location is derived from
// its write effect.
type MemoryDef struct {
	Ver  int
	Inst *ir.Instruction
	Loc  MemoryLocation
	// Reaching is the MemoryAccess this def was appended after on entry
	// to its block (the previous def/phi in program order).
	Reaching MemoryAccess
}

func (*MemoryDef) isMemoryAccess() {}
func (d *MemoryDef) Version() int  { return d.Ver }

// MemoryUse is created per load.
type MemoryUse struct {
	Ver      int
	Inst     *ir.Instruction
	Loc      MemoryLocation
	Reaching MemoryAccess
}

func (*MemoryUse) isMemoryAccess() {}
func (u *MemoryUse) Version() int  { return u.Ver }

// MemoryPhiOperand pairs an incoming MemoryAccess with the predecessor
// block it arrives from.
type MemoryPhiOperand struct {
	Access MemoryAccess
	Pred   *ir.BasicBlock
}

// MemoryPhi sits at a join point where the reaching definitions on the
// entering edges differ.
type MemoryPhi struct {
	Ver      int
	Block    *ir.BasicBlock
	Operands []MemoryPhiOperand
}

func (*MemoryPhi) isMemoryAccess() {}
func (p *MemoryPhi) Version() int  { return p.Ver }

// LiveOnEntrySentinel is the unique LiveOnEntry access for a function.
type LiveOnEntrySentinel struct{}

func (*LiveOnEntrySentinel) isMemoryAccess() {}
func (*LiveOnEntrySentinel) Version() int    { return 0 }

// LiveOnEntry is shared by every MemorySSA instance; identity comparison
// (==) is all callers need since it carries no per-instance state.
var LiveOnEntry MemoryAccess = &LiveOnEntrySentinel{}

// MemorySSA is an SSA form over one memory space (plain EVM memory via
// mload/mstore, or storage via sload/sstore), built per function.
type MemorySSA struct {
	fn      *ir.Function
	loadOp  string
	storeOp string

	defs   map[*ir.Instruction]*MemoryDef
	uses   map[*ir.Instruction]*MemoryUse
	phis   map[*ir.BasicBlock]*MemoryPhi
	nextID int
}

// memoryClobberOpcodes are instructions besides storeOp that also clobber the
// memory space the MemorySSA was built over: external calls and bulk-copy
// opcodes. Their write location comes from WriteLocation.
var memoryClobberOpcodes = map[string]struct{}{
	"call": {}, "staticcall": {}, "delegatecall": {},
	"create": {}, "create2": {},
	"calldatacopy": {}, "codecopy": {}, "extcodecopy": {},
	"returndatacopy": {}, "mcopy": {},
}

// BuildMemorySSA constructs Memory SSA over (loadOp, storeOp) — pass
// ("mload","mstore") for the memory space or ("sload","sstore") for
// storage. dom must be the function's already-computed dominator tree.
func BuildMemorySSA(fn *ir.Function, dom *Dominators, loadOp, storeOp string) *MemorySSA {
	m := &MemorySSA{
		fn: fn, loadOp: loadOp, storeOp: storeOp,
		defs: map[*ir.Instruction]*MemoryDef{},
		uses: map[*ir.Instruction]*MemoryUse{},
		phis: map[*ir.BasicBlock]*MemoryPhi{},
	}

	// Step 1: find every block containing a def (store, or a clobbering
	// opcode when the space under analysis is memory).
	defBlocks := []*ir.BasicBlock{}
	for _, b := range fn.Blocks {
		if m.blockHasDef(b) {
			defBlocks = append(defBlocks, b)
		}
	}

	// Step 2: insert phis at the iterated dominance frontier of the def
	// blocks.
	if dom != nil {
		idf := dom.IteratedDominanceFrontier(defBlocks)
		for b := range idf {
			m.nextID++
			m.phis[b] = &MemoryPhi{Ver: m.nextID, Block: b}
		}
	}

	// Step 3: walk the dominator tree in pre-order, maintaining
	// current_def[B] per block, appending defs/uses in program order and
	// wiring phi operands from predecessor reaching defs.
	currentDef := map[*ir.BasicBlock]MemoryAccess{}
	var walk func(b *ir.BasicBlock, incoming MemoryAccess)
	walk = func(b *ir.BasicBlock, incoming MemoryAccess) {
		cur := incoming
		if phi, ok := m.phis[b]; ok {
			cur = phi
		}
		for _, inst := range b.Instructions {
			switch {
			case inst.Opcode == loadOp:
				m.nextID++
				u := &MemoryUse{Ver: m.nextID, Inst: inst, Loc: ReadLocation(inst, WordSize), Reaching: cur}
				m.uses[inst] = u
			case inst.Opcode == storeOp:
				m.nextID++
				d := &MemoryDef{Ver: m.nextID, Inst: inst, Loc: WriteLocation(inst, WordSize), Reaching: cur}
				m.defs[inst] = d
				cur = d
			case loadOp == "mload" && isMemoryClobber(inst):
				m.nextID++
				d := &MemoryDef{Ver: m.nextID, Inst: inst, Loc: WriteLocation(inst, WordSize), Reaching: cur}
				m.defs[inst] = d
				cur = d
			}
		}
		currentDef[b] = cur
		if dom == nil {
			return
		}
		for _, child := range dom.Children(b) {
			walk(child, cur)
		}
	}
	walk(fn.Entry, LiveOnEntry)

	// Step 4: wire phi operands now that every block's exit reaching-def
	// is known.
	for b, phi := range m.phis {
		for _, pred := range b.CFGIn {
			reaching, ok := currentDef[pred]
			if !ok {
				reaching = LiveOnEntry
			}
			phi.Operands = append(phi.Operands, MemoryPhiOperand{Access: reaching, Pred: pred})
		}
	}

	m.pruneRedundantPhis()
	return m
}

func isMemoryClobber(inst *ir.Instruction) bool {
	_, ok := memoryClobberOpcodes[inst.Opcode]
	return ok
}

func (m *MemorySSA) blockHasDef(b *ir.BasicBlock) bool {
	for _, inst := range b.Instructions {
		if inst.Opcode == m.storeOp {
			return true
		}
		if m.loadOp == "mload" && isMemoryClobber(inst) {
			return true
		}
	}
	return false
}

// pruneRedundantPhis drops phis whose operands are all equal, or that are
// self-referential with only one other distinct operand, replacing every
// reference to them with that single remaining access. Iterates to
// fixpoint since pruning one phi can make another redundant.
func (m *MemorySSA) pruneRedundantPhis() {
	changed := true
	for changed {
		changed = false
		for b, phi := range m.phis {
			var only MemoryAccess
			redundant := true
			for _, op := range phi.Operands {
				v := op.Access
				if v == MemoryAccess(phi) {
					continue // self-reference, ignore
				}
				if only == nil {
					only = v
				} else if only != v {
					redundant = false
					break
				}
			}
			if !redundant || only == nil {
				continue
			}
			delete(m.phis, b)
			m.replaceAccess(phi, only)
			changed = true
		}
	}
}

func (m *MemorySSA) replaceAccess(old, with MemoryAccess) {
	for _, d := range m.defs {
		if d.Reaching == old {
			d.Reaching = with
		}
	}
	for _, u := range m.uses {
		if u.Reaching == old {
			u.Reaching = with
		}
	}
	for _, phi := range m.phis {
		for i, op := range phi.Operands {
			if op.Access == old {
				phi.Operands[i].Access = with
			}
		}
	}
}

// DefFor returns the MemoryDef for a store/clobbering instruction, if any.
func (m *MemorySSA) DefFor(inst *ir.Instruction) (*MemoryDef, bool) {
	d, ok := m.defs[inst]
	return d, ok
}

// UseFor returns the MemoryUse for a load instruction, if any.
func (m *MemorySSA) UseFor(inst *ir.Instruction) (*MemoryUse, bool) {
	u, ok := m.uses[inst]
	return u, ok
}

// PhiFor returns the MemoryPhi at the top of b, if any.
func (m *MemorySSA) PhiFor(b *ir.BasicBlock) (*MemoryPhi, bool) {
	p, ok := m.phis[b]
	return p, ok
}

// programOrderAfter reports whether candidate appears strictly after ref
// within the same block. Nothing calls it: GetClobberingMemoryAccess does
// its own forward scan.
func programOrderAfter(ref, candidate *ir.Instruction) bool {
	if ref.Block != candidate.Block {
		return false
	}
	for i, inst := range ref.Block.Instructions {
		if inst == ref {
			for _, later := range ref.Block.Instructions[i+1:] {
				if later == candidate {
					return true
				}
			}
			return false
		}
	}
	return false
}

// GetClobberingMemoryAccess returns the first def that completely
// clobbers def's location — scanning forward within def's own block, and
// otherwise via dominator-tree descent through blocks strictly dominated
// by def's block, stopping at the first def found along each path whose
// write location completely overlaps def.Loc. Partial overlaps do not
// clobber and do not stop the search (the spec calls this out explicitly
// for store elimination soundness), but any aliasing access that is *not*
// a full clobber still blocks the search along that path, since it proves
// the original store's value can be observed before being fully
// overwritten.
func (m *MemorySSA) GetClobberingMemoryAccess(def *MemoryDef, dom *Dominators) (*MemoryDef, bool) {
	// Scan forward within the defining block first.
	b := def.Inst.Block
	idx := indexOf(b.Instructions, def.Inst)
	for _, inst := range b.Instructions[idx+1:] {
		if other, ok := m.defs[inst]; ok {
			if CompletelyOverlaps(other.Loc, def.Loc) {
				return other, true
			}
			if MayAlias(other.Loc, def.Loc) {
				return nil, false // aliasing but partial: blocks, not a clobber
			}
		}
		if other, ok := m.uses[inst]; ok && MayAlias(other.Loc, def.Loc) {
			return nil, false // observed before being overwritten
		}
	}

	if dom == nil {
		return nil, false
	}
	// Walk strictly-dominated blocks in dominator pre-order; the first
	// clobbering def found (and no blocking aliasing access before it on
	// that path) is the answer. This under-approximates multi-path
	// confluence (a real post-dominance check would require all paths to
	// clobber), which is conservative: callers only delete a store when a
	// clobber is proven, never when absent.
	for _, child := range dom.Children(b) {
		if d, ok := m.clobberInSubtree(child, def); ok {
			return d, true
		}
	}
	return nil, false
}

func (m *MemorySSA) clobberInSubtree(b *ir.BasicBlock, def *MemoryDef) (*MemoryDef, bool) {
	for _, inst := range b.Instructions {
		if other, ok := m.defs[inst]; ok {
			if CompletelyOverlaps(other.Loc, def.Loc) {
				return other, true
			}
			if MayAlias(other.Loc, def.Loc) {
				return nil, false
			}
		}
		if other, ok := m.uses[inst]; ok && MayAlias(other.Loc, def.Loc) {
			return nil, false
		}
	}
	return nil, false
}

func indexOf(list []*ir.Instruction, target *ir.Instruction) int {
	for i, inst := range list {
		if inst == target {
			return i
		}
	}
	return -1
}

// GetClobberedMemoryAccess walks backwards along a use's reaching-def
// chain (through phis) using the alias oracle, returning the nearest
// access that may-alias use.Loc, or LiveOnEntry.
func (m *MemorySSA) GetClobberedMemoryAccess(use *MemoryUse) MemoryAccess {
	return m.walkReaching(use.Reaching, use.Loc, map[MemoryAccess]struct{}{})
}

func (m *MemorySSA) walkReaching(access MemoryAccess, loc MemoryLocation, seen map[MemoryAccess]struct{}) MemoryAccess {
	if _, ok := seen[access]; ok {
		return LiveOnEntry // phi cycle with no aliasing def found
	}
	seen[access] = struct{}{}

	switch a := access.(type) {
	case *LiveOnEntrySentinel:
		return LiveOnEntry
	case *MemoryDef:
		if MayAlias(a.Loc, loc) {
			return a
		}
		return m.walkReaching(a.Reaching, loc, seen)
	case *MemoryPhi:
		// A phi is a join: if every incoming path resolves to the same
		// aliasing access, that's the effective reaching def; a real
		// differing-aliasing-def per branch means the phi itself is
		// the nearest common aliasing point (mirrors the "phi clobber"
		// scenario in the spec's worked example).
		var common MemoryAccess
		allSame := true
		for _, op := range a.Operands {
			resolved := m.walkReaching(op.Access, loc, copyAccessSet(seen))
			if common == nil {
				common = resolved
			} else if common != resolved {
				allSame = false
			}
		}
		if allSame && common != nil {
			return common
		}
		return a
	default:
		return LiveOnEntry
	}
}

func copyAccessSet(s map[MemoryAccess]struct{}) map[MemoryAccess]struct{} {
	out := make(map[MemoryAccess]struct{}, len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}
