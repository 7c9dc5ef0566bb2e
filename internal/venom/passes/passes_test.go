package passes

import (
	"testing"

	"kanso/internal/venom/analysis"
	"kanso/internal/venom/ir"
)

// buildDiamondWithReusedName builds a diamond CFG where both arms assign
// the same pre-SSA name ("%1") to a different constant, joining at a block
// that uses it — the textbook case MakeSSA must insert a phi for.
func buildDiamondWithReusedName() (*ir.Function, map[string]*ir.BasicBlock) {
	ctx := ir.NewContext()
	fn := ir.NewFunction("f", ctx)
	ctx.AddFunction(fn)

	then := ir.NewBasicBlock("then")
	els := ir.NewBasicBlock("els")
	join := ir.NewBasicBlock("join")
	fn.AppendBlock(then)
	fn.AppendBlock(els)
	fn.AppendBlock(join)

	cond := ir.NewVariable("%cond", 0)
	fn.Entry.AppendInstruction(&ir.Instruction{Opcode: "lt", Operands: []ir.Operand{ir.NewLiteral(1), ir.NewLiteral(2)}, Output: cond})
	fn.Entry.AppendInstruction(&ir.Instruction{Opcode: "jnz", Operands: []ir.Operand{cond, ir.NewLabel("then"), ir.NewLabel("els")}})

	shared := ir.NewVariable("%1", 0)
	then.AppendInstruction(&ir.Instruction{Opcode: "store", Operands: []ir.Operand{ir.NewLiteral(10)}, Output: shared})
	then.AppendInstruction(&ir.Instruction{Opcode: "jmp", Operands: []ir.Operand{ir.NewLabel("join")}})

	els.AppendInstruction(&ir.Instruction{Opcode: "store", Operands: []ir.Operand{ir.NewLiteral(20)}, Output: shared})
	els.AppendInstruction(&ir.Instruction{Opcode: "jmp", Operands: []ir.Operand{ir.NewLabel("join")}})

	join.AppendInstruction(&ir.Instruction{Opcode: "return", Operands: []ir.Operand{ir.NewLiteral(0), shared}})

	return fn, map[string]*ir.BasicBlock{"entry": fn.Entry, "then": then, "els": els, "join": join}
}

func TestMakeSSA_InsertsPhiAtJoinForReusedName(t *testing.T) {
	fn, b := buildDiamondWithReusedName()
	am := analysis.NewManager(fn.Context)

	changed, err := MakeSSA{}.RunOnFunction(fn, am)
	if err != nil {
		t.Fatalf("MakeSSA returned error: %v", err)
	}
	if !changed {
		t.Fatal("expected MakeSSA to report a change")
	}

	phis := b["join"].PhiInstructions()
	if len(phis) != 1 {
		t.Fatalf("expected exactly one phi at join, got %d", len(phis))
	}
	pairs := phis[0].PhiOperands()
	if len(pairs) != 2 {
		t.Fatalf("expected the phi to have 2 incoming edges, got %d", len(pairs))
	}
}

func TestSimplifyCFG_RemovesUnreachableBlock(t *testing.T) {
	fn, _ := buildDiamondWithReusedName()
	dead := ir.NewBasicBlock("dead")
	dead.AppendInstruction(&ir.Instruction{Opcode: "stop"})
	fn.AppendBlock(dead)

	am := analysis.NewManager(fn.Context)
	changed, err := SimplifyCFG{}.RunOnFunction(fn, am)
	if err != nil {
		t.Fatalf("SimplifyCFG returned error: %v", err)
	}
	if !changed {
		t.Fatal("expected SimplifyCFG to report a change")
	}
	if fn.GetBlock("dead") != nil {
		t.Error("expected the unreachable block to be removed")
	}
}

func TestRemoveUnusedVariables_DropsDeadPureInstruction(t *testing.T) {
	ctx := ir.NewContext()
	fn := ir.NewFunction("f", ctx)
	ctx.AddFunction(fn)

	dead := fn.NextVariable()
	fn.Entry.AppendInstruction(&ir.Instruction{Opcode: "add", Operands: []ir.Operand{ir.NewLiteral(1), ir.NewLiteral(2)}, Output: dead})
	fn.Entry.AppendInstruction(&ir.Instruction{Opcode: "return", Operands: []ir.Operand{ir.NewLiteral(0), ir.NewLiteral(0)}})

	am := analysis.NewManager(ctx)
	changed, err := RemoveUnusedVariables{}.RunOnFunction(fn, am)
	if err != nil {
		t.Fatalf("RemoveUnusedVariables returned error: %v", err)
	}
	if !changed {
		t.Fatal("expected a change")
	}
	for _, inst := range fn.Entry.Instructions {
		if inst.Opcode == "add" {
			t.Error("expected the dead add instruction to be removed")
		}
	}
}

func TestRemoveUnusedVariables_KeepsVolatileEvenWhenUnused(t *testing.T) {
	ctx := ir.NewContext()
	fn := ir.NewFunction("f", ctx)
	ctx.AddFunction(fn)

	out := fn.NextVariable()
	fn.Entry.AppendInstruction(&ir.Instruction{Opcode: "sload", Operands: []ir.Operand{ir.NewLiteral(0)}, Output: out})
	fn.Entry.AppendInstruction(&ir.Instruction{Opcode: "return", Operands: []ir.Operand{ir.NewLiteral(0), ir.NewLiteral(0)}})

	am := analysis.NewManager(ctx)
	if _, err := (RemoveUnusedVariables{}).RunOnFunction(fn, am); err != nil {
		t.Fatalf("RemoveUnusedVariables returned error: %v", err)
	}
	found := false
	for _, inst := range fn.Entry.Instructions {
		if inst.Opcode == "sload" {
			found = true
		}
	}
	if !found {
		t.Error("sload has a side effect and must survive even with an unused output")
	}
}

func TestSCCP_FoldsConstantBranchToUnconditionalJump(t *testing.T) {
	ctx := ir.NewContext()
	fn := ir.NewFunction("f", ctx)
	ctx.AddFunction(fn)

	then := ir.NewBasicBlock("then")
	els := ir.NewBasicBlock("els")
	fn.AppendBlock(then)
	fn.AppendBlock(els)

	cond := fn.NextVariable()
	fn.Entry.AppendInstruction(&ir.Instruction{Opcode: "lt", Operands: []ir.Operand{ir.NewLiteral(1), ir.NewLiteral(2)}, Output: cond})
	fn.Entry.AppendInstruction(&ir.Instruction{Opcode: "jnz", Operands: []ir.Operand{cond, ir.NewLabel("then"), ir.NewLabel("els")}})
	then.AppendInstruction(&ir.Instruction{Opcode: "stop"})
	els.AppendInstruction(&ir.Instruction{Opcode: "stop"})

	am := analysis.NewManager(ctx)
	changed, err := SCCP{}.RunOnFunction(fn, am)
	if err != nil {
		t.Fatalf("SCCP returned error: %v", err)
	}
	if !changed {
		t.Fatal("expected SCCP to report a change")
	}

	term := fn.Entry.Terminator()
	if term.Opcode != "jmp" {
		t.Fatalf("expected the constant-condition jnz to fold to jmp, got %q", term.Opcode)
	}
	target, ok := ir.AsLabel(term.Operands[0])
	if !ok || target.Value != "then" {
		t.Errorf("expected the fold to take the true branch (lt(1,2) is always true), got %v", term.Operands)
	}
}
