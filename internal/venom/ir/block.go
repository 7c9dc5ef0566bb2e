package ir

import "fmt"

// BasicBlock is a straight-line sequence of instructions with no internal
// branches. Once finalized its last instruction is a terminator.
type BasicBlock struct {
	Label        string
	// IsSymbolLabel mirrors Label.IsSymbol for the block's own label:
	// set when the label came from user source (a function entry, a
	// named jump target) rather than being minted by a pass. SimplifyCFG
	// prefers to keep symbol labels alive by moving them onto a
	// surviving successor instead of letting them disappear.
	IsSymbolLabel bool
	Instructions []*Instruction

	Function *Function // non-owning back-pointer

	CFGIn  []*BasicBlock
	CFGOut []*BasicBlock

	// OutVars are the variables live on exit, used by the stack scheduler
	// to decide what must still be on the stack at a terminator.
	OutVars []*Variable

	deadInstructions map[*Instruction]struct{}
}

// NewBasicBlock creates an empty, unattached basic block.
func NewBasicBlock(label string) *BasicBlock {
	return &BasicBlock{Label: label, deadInstructions: map[*Instruction]struct{}{}}
}

// IsEmpty reports whether the block has no instructions.
func (b *BasicBlock) IsEmpty() bool { return len(b.Instructions) == 0 }

// IsTerminated reports whether the last instruction is a terminator.
func (b *BasicBlock) IsTerminated() bool {
	if len(b.Instructions) == 0 {
		return false
	}
	return b.Instructions[len(b.Instructions)-1].IsBBTerminator()
}

// Terminator returns the block's terminator instruction, or nil.
func (b *BasicBlock) Terminator() *Instruction {
	if !b.IsTerminated() {
		return nil
	}
	return b.Instructions[len(b.Instructions)-1]
}

// AppendInstruction appends inst, wiring its back-pointer to this block.
// Panics if the block is already terminated (mirrors the reference IR's
// "not self.is_terminated" assertion).
func (b *BasicBlock) AppendInstruction(inst *Instruction) {
	if b.IsTerminated() {
		panic(fmt.Sprintf("ir: appending to terminated block %s", b.Label))
	}
	inst.Block = b
	b.Instructions = append(b.Instructions, inst)
}

// InsertInstructionAt inserts inst at index idx, shifting later instructions.
func (b *BasicBlock) InsertInstructionAt(idx int, inst *Instruction) {
	inst.Block = b
	b.Instructions = append(b.Instructions, nil)
	copy(b.Instructions[idx+1:], b.Instructions[idx:])
	b.Instructions[idx] = inst
}

// MarkDead adds inst to the block's dead-instruction scratch set, to be
// swept by ClearDeadInstructions. Passes batch removals this way so a
// single iteration over Instructions isn't mutated while it is being read.
func (b *BasicBlock) MarkDead(inst *Instruction) {
	b.deadInstructions[inst] = struct{}{}
}

// ClearDeadInstructions removes every instruction previously passed to
// MarkDead.
func (b *BasicBlock) ClearDeadInstructions() {
	if len(b.deadInstructions) == 0 {
		return
	}
	kept := b.Instructions[:0:0]
	for _, inst := range b.Instructions {
		if _, dead := b.deadInstructions[inst]; !dead {
			kept = append(kept, inst)
		}
	}
	b.Instructions = kept
	b.deadInstructions = map[*Instruction]struct{}{}
}

// RemoveInstruction removes inst immediately (for passes that don't need
// batching).
func (b *BasicBlock) RemoveInstruction(inst *Instruction) {
	for idx, cur := range b.Instructions {
		if cur == inst {
			b.Instructions = append(b.Instructions[:idx], b.Instructions[idx+1:]...)
			return
		}
	}
}

// PhiInstructions returns the leading run of phi instructions.
func (b *BasicBlock) PhiInstructions() []*Instruction {
	var out []*Instruction
	for _, inst := range b.Instructions {
		if !inst.IsPhi() {
			break
		}
		out = append(out, inst)
	}
	return out
}

// NonPhiInstructions returns every instruction that is not a phi.
func (b *BasicBlock) NonPhiInstructions() []*Instruction {
	var out []*Instruction
	for _, inst := range b.Instructions {
		if !inst.IsPhi() {
			out = append(out, inst)
		}
	}
	return out
}

// AddCFGIn records pred as a predecessor, if not already present.
func (b *BasicBlock) AddCFGIn(pred *BasicBlock) {
	if !containsBlock(b.CFGIn, pred) {
		b.CFGIn = append(b.CFGIn, pred)
	}
}

// AddCFGOut records succ as a successor, if not already present. A second
// identical successor is rejected: callers must split the edge instead
// (spec invariant 4 — no "jnz cond L L").
func (b *BasicBlock) AddCFGOut(succ *BasicBlock) {
	if containsBlock(b.CFGOut, succ) {
		return
	}
	b.CFGOut = append(b.CFGOut, succ)
}

func containsBlock(list []*BasicBlock, b *BasicBlock) bool {
	for _, x := range list {
		if x == b {
			return true
		}
	}
	return false
}

// FixPhiInstructions trims phi operands for predecessors no longer in
// CFGIn, degenerating a 2-operand phi to a store and a 0-operand phi to a
// nop, as required after CFG edges are removed.
func (b *BasicBlock) FixPhiInstructions() {
	inLabels := make(map[string]struct{}, len(b.CFGIn))
	for _, p := range b.CFGIn {
		inLabels[p.Label] = struct{}{}
	}

	needsSort := false
	for _, inst := range b.Instructions {
		if !inst.IsPhi() {
			continue
		}
		pairs := inst.PhiOperands()
		kept := pairs[:0:0]
		for _, p := range pairs {
			if _, ok := inLabels[p.Label.Value]; ok {
				kept = append(kept, p)
			} else {
				needsSort = true
			}
		}
		inst.SetPhiOperands(kept)

		switch len(kept) {
		case 1:
			inst.Opcode = "store"
			inst.Operands = []Operand{kept[0].Value}
		case 0:
			inst.MakeNop()
		}
	}

	if needsSort {
		b.sortPhisFirst()
	}
}

func (b *BasicBlock) sortPhisFirst() {
	phis := b.PhiInstructions()
	rest := b.NonPhiInstructions()
	b.Instructions = append(append([]*Instruction{}, phis...), rest...)
}

// Assignments returns every instruction output defined in this block.
func (b *BasicBlock) Assignments() []*Variable {
	var out []*Variable
	for _, inst := range b.Instructions {
		if inst.Output != nil {
			out = append(out, inst.Output)
		}
	}
	return out
}

// Copy deep-copies the block (instructions only; CFG/OutVars are left
// empty for the caller to rewire), prefixing the label and every variable
// name — used by the inliner to splice a callee's body in fresh.
func (b *BasicBlock) Copy(prefix string) *BasicBlock {
	nb := NewBasicBlock(prefix + b.Label)
	nb.Instructions = make([]*Instruction, len(b.Instructions))
	for i, inst := range b.Instructions {
		copied := inst.Copy(prefix)
		copied.Block = nb
		nb.Instructions[i] = copied
	}
	return nb
}

func (b *BasicBlock) String() string {
	s := fmt.Sprintf("%s:\n", b.Label)
	for _, inst := range b.Instructions {
		s += "  " + inst.String() + "\n"
	}
	return s
}
