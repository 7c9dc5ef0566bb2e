package passes

import (
	"fmt"

	"kanso/internal/venom/analysis"
	"kanso/internal/venom/ir"
)

// Mem2Var promotes stack-allocated scalars to virtual registers: an alloca
// whose only users are mload, mstore, and return (the "pinning" use that
// reads the buffer on the way out) is rewritten so the buffer never touches
// memory at all. This does no aliasing analysis of its own and is
// conservative by construction — any other use of the pointer disqualifies
// it, including one that merely escapes into another instruction's operand
// list.
type Mem2Var struct{}

func (Mem2Var) Name() string { return "mem2var" }

func (p Mem2Var) RunOnFunction(fn *ir.Function, am *analysis.Manager) (bool, error) {
	dfg := am.DFG(fn)

	changed := false
	count := 0
	for _, b := range fn.Blocks {
		for _, inst := range b.Instructions {
			if inst.Opcode != "alloca" || inst.Output == nil {
				continue
			}
			if p.promote(dfg, inst.Output, &count) {
				changed = true
			}
		}
	}

	if changed {
		am.InvalidateDFG(fn)
	}
	return changed, nil
}

// promote attempts to promote the alloca result var; returns true if it did.
func (p Mem2Var) promote(dfg *analysis.DFG, v *ir.Variable, count *int) bool {
	uses := dfg.GetUses(v)
	if len(uses) == 0 {
		return false
	}

	eligible := true
	for _, inst := range uses {
		switch inst.Opcode {
		case "mload", "mstore", "return":
		default:
			eligible = false
		}
	}
	if !eligible {
		return false
	}

	// All-mload or all-mstore (dead store / never-read buffer): the
	// reference pass leaves these alone too, since promoting either case
	// in isolation wouldn't simplify anything downstream passes can't
	// already handle (RemoveUnusedVariables / StoreElimination).
	allMload, allMstore := true, true
	for _, inst := range uses {
		if inst.Opcode != "mload" {
			allMload = false
		}
		if inst.Opcode != "mstore" {
			allMstore = false
		}
	}
	if allMload || allMstore {
		return false
	}

	varName := fmt.Sprintf("addr%s_%d", v.Name, *count)
	*count++
	reg := ir.NewVariable(varName, 0)

	for _, inst := range uses {
		switch inst.Opcode {
		case "mstore":
			inst.Opcode = "store"
			inst.Output = reg
			inst.Operands = []ir.Operand{inst.Operands[0]}
		case "mload":
			inst.Opcode = "store"
			inst.Operands = []ir.Operand{reg}
		case "return":
			// Spill reg back to the buffer's original address (still
			// inst.Operands[1], untouched) so return can still hand EVM a
			// real memory range. mstore has no output (opcodes.go's
			// NoOutputOpcodes) — giving it one would desync the stack
			// scheduler's virtual stack from the real one.
			b := inst.Block
			idx := indexOfInstruction(b.Instructions, inst)
			store := &ir.Instruction{Opcode: "mstore", Operands: []ir.Operand{reg, inst.Operands[1]}}
			b.InsertInstructionAt(idx, store)
		}
	}
	return true
}

func indexOfInstruction(list []*ir.Instruction, target *ir.Instruction) int {
	for i, inst := range list {
		if inst == target {
			return i
		}
	}
	return -1
}
