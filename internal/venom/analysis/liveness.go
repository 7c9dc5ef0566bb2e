package analysis

import "kanso/internal/venom/ir"

// Liveness is the standard backward data-flow result: live-in sets per
// block and, per instruction, the live-in set of that instruction (what is
// live immediately before it executes, its own operands included). The
// stack scheduler reads only the per-block live-in sets; it does not
// consult the per-instruction sets and DUPs every variable operand it
// consumes.
type Liveness struct {
	liveIn       map[*ir.BasicBlock]map[ir.VariableKey]*ir.Variable
	liveOut      map[*ir.BasicBlock]map[ir.VariableKey]*ir.Variable
	instLiveIn   map[*ir.Instruction]map[ir.VariableKey]*ir.Variable
}

// ComputeLiveness runs the fixpoint backward dataflow over fn's reachable
// blocks. Phi operands contribute to the live-out of the corresponding
// predecessor only (one operand slot per predecessor edge), not to every
// predecessor uniformly.
func ComputeLiveness(fn *ir.Function) *Liveness {
	l := &Liveness{
		liveIn:     map[*ir.BasicBlock]map[ir.VariableKey]*ir.Variable{},
		liveOut:    map[*ir.BasicBlock]map[ir.VariableKey]*ir.Variable{},
		instLiveIn: map[*ir.Instruction]map[ir.VariableKey]*ir.Variable{},
	}

	blocks := DFSPostOrder(fn) // process leaves-ish first speeds convergence
	for _, b := range blocks {
		l.liveIn[b] = map[ir.VariableKey]*ir.Variable{}
		l.liveOut[b] = map[ir.VariableKey]*ir.Variable{}
	}

	changed := true
	for changed {
		changed = false
		for _, b := range blocks {
			out := l.computeLiveOut(b)
			in := l.computeLiveIn(b, out)
			if !sameSet(out, l.liveOut[b]) {
				l.liveOut[b] = out
				changed = true
			}
			if !sameSet(in, l.liveIn[b]) {
				l.liveIn[b] = in
				changed = true
			}
		}
	}

	// Second pass: per-instruction live-in, walking each block backward.
	for _, b := range blocks {
		live := copySet(l.liveOut[b])
		for i := len(b.Instructions) - 1; i >= 0; i-- {
			inst := b.Instructions[i]
			if inst.Output != nil {
				delete(live, inst.Output.Key())
			}
			for _, v := range operandVariables(inst) {
				live[v.Key()] = v
			}
			l.instLiveIn[inst] = copySet(live)
		}
	}

	return l
}

// computeLiveOut unions live-in of every non-phi successor, plus, for each
// successor phi, only the operand value for the edge coming from b.
func (l *Liveness) computeLiveOut(b *ir.BasicBlock) map[ir.VariableKey]*ir.Variable {
	out := map[ir.VariableKey]*ir.Variable{}
	for _, succ := range b.CFGOut {
		for k, v := range l.liveIn[succ] {
			out[k] = v
		}
		for _, phi := range succ.PhiInstructions() {
			for _, pair := range phi.PhiOperands() {
				if pair.Label.Value == b.Label {
					if v, ok := ir.AsVariable(pair.Value); ok {
						out[v.Key()] = v
					}
				}
			}
		}
	}
	return out
}

func (l *Liveness) computeLiveIn(b *ir.BasicBlock, liveOut map[ir.VariableKey]*ir.Variable) map[ir.VariableKey]*ir.Variable {
	defs := map[ir.VariableKey]struct{}{}
	uses := map[ir.VariableKey]*ir.Variable{}
	for _, inst := range b.Instructions {
		if inst.IsPhi() {
			if inst.Output != nil {
				defs[inst.Output.Key()] = struct{}{}
			}
			continue // phi uses are attributed to the predecessor edge, not this block's live-in
		}
		for _, v := range operandVariables(inst) {
			k := v.Key()
			if _, isDef := defs[k]; !isDef {
				uses[k] = v
			}
		}
		if inst.Output != nil {
			defs[inst.Output.Key()] = struct{}{}
		}
	}

	in := map[ir.VariableKey]*ir.Variable{}
	for k, v := range liveOut {
		if _, isDef := defs[k]; !isDef {
			in[k] = v
		}
	}
	for k, v := range uses {
		in[k] = v
	}
	return in
}

// LiveIn returns the live-in set of a block.
func (l *Liveness) LiveIn(b *ir.BasicBlock) map[ir.VariableKey]*ir.Variable { return l.liveIn[b] }

// LiveOut returns the live-out set of a block.
func (l *Liveness) LiveOut(b *ir.BasicBlock) map[ir.VariableKey]*ir.Variable { return l.liveOut[b] }

// InstructionLiveIn returns the live set immediately before inst executes,
// inst's own operands included.
func (l *Liveness) InstructionLiveIn(inst *ir.Instruction) map[ir.VariableKey]*ir.Variable {
	return l.instLiveIn[inst]
}

// IsLiveAfter reports whether v is live immediately after inst: in the
// live-in set of the next instruction of inst's block, or in the block's
// live-out set when inst is the last instruction.
func (l *Liveness) IsLiveAfter(inst *ir.Instruction, v *ir.Variable) bool {
	after := l.liveOut[inst.Block]
	ins := inst.Block.Instructions
	for i, cur := range ins {
		if cur == inst && i+1 < len(ins) {
			after = l.instLiveIn[ins[i+1]]
			break
		}
	}
	_, ok := after[v.Key()]
	return ok
}

func sameSet(a, b map[ir.VariableKey]*ir.Variable) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

func copySet(s map[ir.VariableKey]*ir.Variable) map[ir.VariableKey]*ir.Variable {
	out := make(map[ir.VariableKey]*ir.Variable, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}
