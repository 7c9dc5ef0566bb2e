package passes

import (
	"kanso/internal/venom/analysis"
	"kanso/internal/venom/ir"
)

// RemoveUnusedVariables deletes instructions whose output is never used,
// iterating to fixpoint since removing one dead instruction can make its
// operands' producers dead in turn. Volatile opcodes (memory/storage
// effects, calls, logs) are never removed even with an unused output,
// since the opcode's side effect is the point of the instruction.
type RemoveUnusedVariables struct{}

func (RemoveUnusedVariables) Name() string { return "remove-unused-variables" }

func (p RemoveUnusedVariables) RunOnFunction(fn *ir.Function, am *analysis.Manager) (bool, error) {
	changed := false
	for {
		dfg := am.DFG(fn)
		removedThisPass := false
		for _, b := range fn.Blocks {
			for _, inst := range b.Instructions {
				if inst.Output == nil || inst.IsVolatile() || inst.IsBBTerminator() || inst.IsParam() {
					continue
				}
				if dfg.UseCount(inst.Output) > 0 {
					continue
				}
				b.MarkDead(inst)
				removedThisPass = true
			}
			b.ClearDeadInstructions()
		}
		if !removedThisPass {
			break
		}
		changed = true
		am.InvalidateDFG(fn)
	}
	return changed, nil
}
