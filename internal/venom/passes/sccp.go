package passes

import (
	"math/big"

	"kanso/internal/venom/analysis"
	"kanso/internal/venom/ir"
)

// latticeKind is a variable's position in the constant-propagation
// lattice: TOP ⊐ constant(c) ⊐ BOTTOM.
type latticeKind int

const (
	latticeTop latticeKind = iota
	latticeConst
	latticeBottom
)

type latticeValue struct {
	kind latticeKind
	val  *big.Int
}

var topValue = latticeValue{kind: latticeTop}
var bottomValue = latticeValue{kind: latticeBottom}

func constValue(v *big.Int) latticeValue { return latticeValue{kind: latticeConst, val: v} }

// meet computes the lattice join used when a variable's value is
// re-derived from multiple sources (phi operands): TOP yields to
// anything; two different constants meet at BOTTOM; equal constants stay
// constant.
func meet(a, b latticeValue) latticeValue {
	if a.kind == latticeTop {
		return b
	}
	if b.kind == latticeTop {
		return a
	}
	if a.kind == latticeBottom || b.kind == latticeBottom {
		return bottomValue
	}
	if a.val.Cmp(b.val) == 0 {
		return a
	}
	return bottomValue
}

// SCCP is sparse conditional constant propagation: variables are
// propagated through the lattice TOP -> constant(c) -> BOTTOM, blocks are
// marked REACHABLE/UNREACHABLE, and at fixpoint constant-valued variables
// are replaced by literals and conditional jumps with a constant condition
// become unconditional.
type SCCP struct{}

func (SCCP) Name() string { return "sccp" }

type sccpState struct {
	fn         *ir.Function
	values     map[ir.VariableKey]latticeValue
	reachable  map[*ir.BasicBlock]bool
	dfg        *analysis.DFG
	cfgWork    []cfgEdge
	ssaWork    []*ir.Variable
	visitedBlk map[*ir.BasicBlock]bool
}

type cfgEdge struct{ from, to *ir.BasicBlock }

func (p SCCP) RunOnFunction(fn *ir.Function, am *analysis.Manager) (bool, error) {
	am.CFG(fn)
	s := &sccpState{
		fn:         fn,
		values:     map[ir.VariableKey]latticeValue{},
		reachable:  map[*ir.BasicBlock]bool{},
		dfg:        am.DFG(fn),
		visitedBlk: map[*ir.BasicBlock]bool{},
	}

	s.cfgWork = append(s.cfgWork, cfgEdge{from: nil, to: fn.Entry})

	for len(s.cfgWork) > 0 || len(s.ssaWork) > 0 {
		for len(s.cfgWork) > 0 {
			e := s.cfgWork[len(s.cfgWork)-1]
			s.cfgWork = s.cfgWork[:len(s.cfgWork)-1]
			s.visitEdge(e)
		}
		for len(s.ssaWork) > 0 {
			v := s.ssaWork[len(s.ssaWork)-1]
			s.ssaWork = s.ssaWork[:len(s.ssaWork)-1]
			for _, use := range s.dfg.GetUses(v) {
				if s.reachable[use.Block] {
					s.visitInstruction(use)
				}
			}
		}
	}

	changed := s.rewrite()
	if changed {
		am.InvalidateCFG(fn)
	}
	return changed, nil
}

func (s *sccpState) visitEdge(e cfgEdge) {
	if s.reachable[e.to] {
		// Block already reachable: just re-evaluate its phis for the new
		// incoming edge; everything else was already visited.
		for _, phi := range e.to.PhiInstructions() {
			s.visitInstruction(phi)
		}
		return
	}
	s.reachable[e.to] = true
	for _, inst := range e.to.Instructions {
		s.visitInstruction(inst)
	}
}

func (s *sccpState) visitInstruction(inst *ir.Instruction) {
	switch inst.Opcode {
	case "phi":
		s.evalPhi(inst)
		return
	case "jnz":
		s.evalBranch(inst)
		return
	case "jmp":
		target := inst.Operands[0].(*ir.Label)
		s.queueEdge(inst.Block, target.Value)
		return
	}

	if inst.Output == nil {
		return
	}

	args := make([]*big.Int, 0, len(inst.Operands))
	allConst := true
	anyBottom := false
	for _, op := range inst.Operands {
		switch v := op.(type) {
		case *ir.Literal:
			args = append(args, v.Value)
		case *ir.Variable:
			lv := s.lookup(v)
			switch lv.kind {
			case latticeConst:
				args = append(args, lv.val)
			case latticeBottom:
				anyBottom = true
				allConst = false
			default:
				allConst = false
			}
		default:
			allConst = false
		}
	}

	var next latticeValue
	switch {
	case allConst:
		if result, ok := evalConst(inst.Opcode, args); ok {
			next = constValue(result)
		} else {
			next = bottomValue
		}
	case anyBottom:
		next = bottomValue
	default:
		next = topValue
	}

	s.update(inst.Output, next)
}

func (s *sccpState) evalPhi(inst *ir.Instruction) {
	result := topValue
	for _, pair := range inst.PhiOperands() {
		pred := inst.Block.Function.GetBlock(pair.Label.Value)
		if pred == nil || !s.reachable[pred] {
			continue
		}
		var v latticeValue
		switch val := pair.Value.(type) {
		case *ir.Literal:
			v = constValue(val.Value)
		case *ir.Variable:
			v = s.lookup(val)
		default:
			v = bottomValue
		}
		result = meet(result, v)
	}
	s.update(inst.Output, result)
}

func (s *sccpState) evalBranch(inst *ir.Instruction) {
	cond := inst.Operands[0]
	trueLabel := inst.Operands[1].(*ir.Label)
	falseLabel := inst.Operands[2].(*ir.Label)

	var condVal latticeValue
	switch v := cond.(type) {
	case *ir.Literal:
		condVal = constValue(v.Value)
	case *ir.Variable:
		condVal = s.lookup(v)
	}

	if condVal.kind == latticeConst {
		if condVal.val.Sign() != 0 {
			s.queueEdge(inst.Block, trueLabel.Value)
		} else {
			s.queueEdge(inst.Block, falseLabel.Value)
		}
		return
	}
	s.queueEdge(inst.Block, trueLabel.Value)
	s.queueEdge(inst.Block, falseLabel.Value)
}

func (s *sccpState) queueEdge(from *ir.BasicBlock, label string) {
	to := from.Function.GetBlock(label)
	if to == nil {
		return
	}
	s.cfgWork = append(s.cfgWork, cfgEdge{from: from, to: to})
}

func (s *sccpState) lookup(v *ir.Variable) latticeValue {
	if lv, ok := s.values[v.Key()]; ok {
		return lv
	}
	return topValue
}

func (s *sccpState) update(v *ir.Variable, next latticeValue) {
	if v == nil {
		return
	}
	cur := s.lookup(v)
	if cur.kind == latticeBottom {
		return
	}
	merged := meet(cur, next)
	// meet() only ever moves a value down the lattice (TOP -> const ->
	// BOTTOM) or keeps it the same; treat any change as forward progress.
	if merged == cur {
		return
	}
	s.values[v.Key()] = merged
	s.ssaWork = append(s.ssaWork, v)
}

// rewrite replaces every constant-valued variable use by its literal and
// every jnz with a constant condition by an unconditional jmp. Blocks that
// became unreachable are skipped, not removed from the function.
func (s *sccpState) rewrite() bool {
	changed := false
	for _, b := range s.fn.Blocks {
		if !s.reachable[b] {
			continue
		}
		for _, inst := range b.Instructions {
			if inst.Opcode == "jnz" {
				cond := inst.Operands[0]
				var condVal latticeValue
				switch v := cond.(type) {
				case *ir.Literal:
					condVal = constValue(v.Value)
				case *ir.Variable:
					condVal = s.lookup(v)
				}
				if condVal.kind == latticeConst {
					taken := inst.Operands[1]
					if condVal.val.Sign() == 0 {
						taken = inst.Operands[2]
					}
					inst.Opcode = "jmp"
					inst.Operands = []ir.Operand{taken}
					changed = true
				}
				continue
			}
			for i, op := range inst.Operands {
				if v, ok := ir.AsVariable(op); ok {
					if lv := s.lookup(v); lv.kind == latticeConst {
						inst.Operands[i] = &ir.Literal{Value: lv.val}
						changed = true
					}
				}
			}
		}
	}
	return changed
}
