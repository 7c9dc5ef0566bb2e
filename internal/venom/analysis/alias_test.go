package analysis

import (
	"testing"

	"kanso/internal/venom/ir"
)

func TestMayAlias_IntersectingRangesAlias(t *testing.T) {
	a := Range(0, 32)
	b := Range(16, 32)
	if !MayAlias(a, b) {
		t.Error("overlapping byte ranges must alias")
	}
}

func TestMayAlias_DisjointRangesDoNotAlias(t *testing.T) {
	a := Range(0, 32)
	b := Range(32, 32)
	if MayAlias(a, b) {
		t.Error("adjacent, non-overlapping ranges must not alias")
	}
}

func TestMayAlias_EmptyAliasesNothingIncludingItself(t *testing.T) {
	if MayAlias(Empty, Empty) {
		t.Error("Empty must not alias itself")
	}
	if MayAlias(Empty, Full) {
		t.Error("Empty must not alias Full")
	}
}

func TestMayAlias_FullAliasesAnyNonEmptyLocation(t *testing.T) {
	if !MayAlias(Full, Range(100, 32)) {
		t.Error("Full must alias any concrete range")
	}
}

func TestCompletelyOverlaps_RangeWithinRange(t *testing.T) {
	outer := Range(0, 64)
	inner := Range(16, 32)
	if !CompletelyOverlaps(outer, inner) {
		t.Error("a 64-byte range starting at 0 should completely contain a 32-byte range at offset 16")
	}
	if CompletelyOverlaps(inner, outer) {
		t.Error("the smaller range must not be reported as containing the larger one")
	}
}

func TestCompletelyOverlaps_FullContainsEverythingButOnlyFullContainsFull(t *testing.T) {
	if !CompletelyOverlaps(Full, Range(0, 32)) {
		t.Error("Full must completely overlap any concrete range")
	}
	if CompletelyOverlaps(Range(0, 32), Full) {
		t.Error("a concrete range must not be reported as containing Full")
	}
}

func TestReadLocation_MloadWithLiteralOffset(t *testing.T) {
	inst := &ir.Instruction{Opcode: "mload", Operands: []ir.Operand{ir.NewLiteral(64)}}
	loc := ReadLocation(inst, WordSize)
	if loc.Kind != LocRange || loc.Offset != 64 || loc.Size != WordSize {
		t.Errorf("expected a 32-byte range at offset 64, got %+v", loc)
	}
}

func TestReadLocation_MloadWithNonLiteralOffsetFallsBackToFull(t *testing.T) {
	offsetVar := ir.NewVariable("%1", 0)
	inst := &ir.Instruction{Opcode: "mload", Operands: []ir.Operand{offsetVar}}
	loc := ReadLocation(inst, WordSize)
	if loc.Kind != LocFull {
		t.Errorf("an unresolvable offset must conservatively read as Full, got %+v", loc)
	}
}

func TestWriteLocation_MstoreUsesSecondOperandAsAddress(t *testing.T) {
	inst := &ir.Instruction{Opcode: "mstore", Operands: []ir.Operand{ir.NewLiteral(7), ir.NewLiteral(128)}}
	loc := WriteLocation(inst, WordSize)
	if loc.Kind != LocRange || loc.Offset != 128 {
		t.Errorf("mstore's write location should come from its address operand (index 1), got %+v", loc)
	}
}

func TestWriteLocation_CreateNeverClobbersOwnAddressSpace(t *testing.T) {
	inst := &ir.Instruction{Opcode: "create", Operands: []ir.Operand{ir.NewLiteral(0), ir.NewLiteral(0), ir.NewLiteral(0)}}
	loc := WriteLocation(inst, WordSize)
	if loc.Kind != LocEmpty {
		t.Errorf("create does not write into the memory/storage space under analysis, expected Empty, got %+v", loc)
	}
}
