package passes

import (
	"testing"

	"kanso/internal/venom/analysis"
	"kanso/internal/venom/ir"
)

func countOpcode(fn *ir.Function, opcode string) int {
	n := 0
	for _, b := range fn.Blocks {
		for _, inst := range b.Instructions {
			if inst.Opcode == opcode {
				n++
			}
		}
	}
	return n
}

func TestStoreElimination_RemovesFullyClobberedStore(t *testing.T) {
	ctx := ir.NewContext()
	fn := ir.NewFunction("f", ctx)
	ctx.AddFunction(fn)

	fn.Entry.AppendInstruction(&ir.Instruction{
		Opcode: "mstore", Operands: []ir.Operand{ir.NewLiteral(1), ir.NewLiteral(0)},
	})
	fn.Entry.AppendInstruction(&ir.Instruction{
		Opcode: "mstore", Operands: []ir.Operand{ir.NewLiteral(2), ir.NewLiteral(0)},
	})
	fn.Entry.AppendInstruction(&ir.Instruction{Opcode: "stop"})

	am := analysis.NewManager(ctx)
	changed, err := StoreElimination{}.RunOnFunction(fn, am)
	if err != nil {
		t.Fatalf("StoreElimination returned error: %v", err)
	}
	if !changed {
		t.Fatal("expected the fully overwritten store to be eliminated")
	}
	if n := countOpcode(fn, "mstore"); n != 1 {
		t.Fatalf("expected exactly one surviving mstore, got %d", n)
	}
	remaining := fn.Entry.Instructions[0]
	lit, ok := ir.AsLiteral(remaining.Operands[0])
	if !ok || lit.Value.Int64() != 2 {
		t.Errorf("expected the surviving store to be the second one (value 2), got %v", remaining.Operands[0])
	}
}

func TestStoreElimination_KeepsStoreObservedBeforeOverwrite(t *testing.T) {
	ctx := ir.NewContext()
	fn := ir.NewFunction("f", ctx)
	ctx.AddFunction(fn)

	fn.Entry.AppendInstruction(&ir.Instruction{
		Opcode: "mstore", Operands: []ir.Operand{ir.NewLiteral(1), ir.NewLiteral(0)},
	})
	v := fn.NextVariable()
	fn.Entry.AppendInstruction(&ir.Instruction{
		Opcode: "mload", Operands: []ir.Operand{ir.NewLiteral(0)}, Output: v,
	})
	fn.Entry.AppendInstruction(&ir.Instruction{
		Opcode: "mstore", Operands: []ir.Operand{ir.NewLiteral(2), ir.NewLiteral(0)},
	})
	fn.Entry.AppendInstruction(&ir.Instruction{Opcode: "stop"})

	am := analysis.NewManager(ctx)
	changed, err := StoreElimination{}.RunOnFunction(fn, am)
	if err != nil {
		t.Fatalf("StoreElimination returned error: %v", err)
	}
	if changed {
		t.Error("a store observed by a load before being overwritten must not be eliminated")
	}
	if n := countOpcode(fn, "mstore"); n != 2 {
		t.Fatalf("expected both stores to survive, got %d", n)
	}
}

func TestStoreElimination_StorageVariantUsesSstore(t *testing.T) {
	p := StoreElimination{LoadOp: "sload", StoreOp: "sstore"}
	if p.Name() != "store-elimination-storage" {
		t.Fatalf("expected storage variant name, got %q", p.Name())
	}

	ctx := ir.NewContext()
	fn := ir.NewFunction("f", ctx)
	ctx.AddFunction(fn)

	fn.Entry.AppendInstruction(&ir.Instruction{
		Opcode: "sstore", Operands: []ir.Operand{ir.NewLiteral(1), ir.NewLiteral(0)},
	})
	fn.Entry.AppendInstruction(&ir.Instruction{
		Opcode: "sstore", Operands: []ir.Operand{ir.NewLiteral(2), ir.NewLiteral(0)},
	})
	fn.Entry.AppendInstruction(&ir.Instruction{Opcode: "stop"})

	am := analysis.NewManager(ctx)
	changed, err := p.RunOnFunction(fn, am)
	if err != nil {
		t.Fatalf("StoreElimination returned error: %v", err)
	}
	if !changed {
		t.Fatal("expected the fully overwritten sstore to be eliminated")
	}
	if n := countOpcode(fn, "sstore"); n != 1 {
		t.Fatalf("expected exactly one surviving sstore, got %d", n)
	}
}
