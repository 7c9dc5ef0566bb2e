package analysis

import (
	"testing"

	"kanso/internal/venom/ir"
)

// buildDiamondFn builds a classic diamond CFG:
//
//	entry -> then, els
//	then -> join
//	els  -> join
func buildDiamondFn() (*ir.Function, map[string]*ir.BasicBlock) {
	ctx := ir.NewContext()
	fn := ir.NewFunction("f", ctx)
	ctx.AddFunction(fn)

	then := ir.NewBasicBlock("then")
	els := ir.NewBasicBlock("els")
	join := ir.NewBasicBlock("join")
	fn.AppendBlock(then)
	fn.AppendBlock(els)
	fn.AppendBlock(join)

	cond := fn.NextVariable()
	fn.Entry.AppendInstruction(&ir.Instruction{Opcode: "lt", Operands: []ir.Operand{ir.NewLiteral(1), ir.NewLiteral(2)}, Output: cond})
	fn.Entry.AppendInstruction(&ir.Instruction{Opcode: "jnz", Operands: []ir.Operand{cond, ir.NewLabel("then"), ir.NewLabel("els")}})

	then.AppendInstruction(&ir.Instruction{Opcode: "jmp", Operands: []ir.Operand{ir.NewLabel("join")}})
	els.AppendInstruction(&ir.Instruction{Opcode: "jmp", Operands: []ir.Operand{ir.NewLabel("join")}})
	join.AppendInstruction(&ir.Instruction{Opcode: "stop"})

	blocks := map[string]*ir.BasicBlock{
		"entry": fn.Entry, "then": then, "els": els, "join": join,
	}
	return fn, blocks
}

func TestComputeCFG_WiresDiamondEdges(t *testing.T) {
	fn, b := buildDiamondFn()
	ComputeCFG(fn)

	if len(b["entry"].CFGOut) != 2 {
		t.Fatalf("expected entry to have 2 successors, got %d", len(b["entry"].CFGOut))
	}
	if len(b["join"].CFGIn) != 2 {
		t.Fatalf("expected join to have 2 predecessors, got %d", len(b["join"].CFGIn))
	}
}

func TestReachable_ExcludesDeadBlock(t *testing.T) {
	fn, _ := buildDiamondFn()
	dead := ir.NewBasicBlock("dead")
	dead.AppendInstruction(&ir.Instruction{Opcode: "stop"})
	fn.AppendBlock(dead)
	ComputeCFG(fn)

	reach := Reachable(fn)
	if _, ok := reach[dead]; ok {
		t.Error("dead block with no predecessor should not be reachable")
	}
	if len(reach) != 4 {
		t.Errorf("expected 4 reachable blocks, got %d", len(reach))
	}
}

func TestComputeDominators_JoinIsDominatedByEntryOnly(t *testing.T) {
	fn, b := buildDiamondFn()
	ComputeCFG(fn)
	dom := ComputeDominators(fn)

	if dom.IDom(b["join"]) != b["entry"] {
		t.Error("join's immediate dominator should be entry, since neither then nor els alone dominates it")
	}
	if !dom.Dominates(b["entry"], b["join"]) {
		t.Error("entry should dominate join")
	}
	if dom.StrictlyDominates(b["then"], b["join"]) {
		t.Error("then should not dominate join: els is an alternate path")
	}
}

func TestComputeDominators_DominanceFrontierOfBranches(t *testing.T) {
	fn, b := buildDiamondFn()
	ComputeCFG(fn)
	dom := ComputeDominators(fn)

	thenDF := dom.DominanceFrontier(b["then"])
	if _, ok := thenDF[b["join"]]; !ok {
		t.Error("then's dominance frontier should contain join")
	}
	elsDF := dom.DominanceFrontier(b["els"])
	if _, ok := elsDF[b["join"]]; !ok {
		t.Error("els's dominance frontier should contain join")
	}
}

func TestComputeLiveness_ConditionDeadAfterBranch(t *testing.T) {
	fn, b := buildDiamondFn()
	ComputeCFG(fn)
	live := ComputeLiveness(fn)

	// cond is used only by entry's own jnz; it must not be live-out of entry.
	liveOut := live.LiveOut(b["entry"])
	for k := range liveOut {
		if k.Name == "%1" {
			t.Error("branch condition should not survive past the block that consumes it")
		}
	}
}

func TestComputeDFG_TracksProducer(t *testing.T) {
	ctx := ir.NewContext()
	fn := ir.NewFunction("f", ctx)
	ctx.AddFunction(fn)
	v := fn.NextVariable()
	inst := &ir.Instruction{Opcode: "add", Operands: []ir.Operand{ir.NewLiteral(1), ir.NewLiteral(2)}, Output: v}
	fn.Entry.AppendInstruction(inst)
	fn.Entry.AppendInstruction(&ir.Instruction{Opcode: "stop"})

	ComputeCFG(fn)
	dfg := ComputeDFG(fn)
	if dfg.GetProducingInstruction(v) != inst {
		t.Error("expected DFG to resolve the variable's producing instruction")
	}
}

func TestManager_InvalidateCFGCascadesToLiveness(t *testing.T) {
	fn, b := buildDiamondFn()
	ctx := fn.Context
	am := NewManager(ctx)

	live1 := am.Liveness(fn)
	if live1 == nil {
		t.Fatal("expected a liveness result")
	}

	staleGen := am.currentGen(fn, KindLiveness)

	// Mutate the CFG by disconnecting els, then invalidate.
	b["els"].CFGOut = nil
	am.InvalidateCFG(fn)

	// A handle taken before invalidation must now panic if used.
	handle := &Handle{mgr: am, fn: fn, kind: KindLiveness, gen: staleGen}
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected Get on a stale handle to panic")
		}
	}()
	handle.Get()
}
