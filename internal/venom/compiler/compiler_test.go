package compiler

import (
	"testing"

	"kanso/internal/legacyir"
)

func TestCompile_SimpleArithmeticReturn(t *testing.T) {
	// deploy(0, return(0, add(caller(), calldataload(0))), 0). caller() and
	// calldataload() read runtime-only state SCCP has no evaluator for
	// (evaluator.go's pureEvaluators only covers pure arithmetic/bitwise/
	// compare opcodes), so the add cannot be constant-folded and dropped by
	// DCE the way add(1, 2) would be.
	runtime := legacyir.New("return",
		legacyir.NewLit("0"),
		legacyir.New("add", legacyir.New("caller"), legacyir.New("calldataload", legacyir.NewLit("0"))),
	)
	root := legacyir.New("deploy", legacyir.NewLit("0"), runtime, legacyir.NewLit("0"))

	out, err := Compile(root, Options{})
	if err != nil {
		t.Fatalf("Compile returned error: %v", err)
	}
	if len(out.Asm["runtime"]) == 0 {
		t.Fatal("expected non-empty assembly for the runtime function")
	}
	if len(out.Asm["deploy"]) == 0 {
		t.Fatal("expected non-empty assembly for the deploy function")
	}

	foundAdd := false
	for _, item := range out.Asm["runtime"] {
		if item.Mnemonic == "ADD" {
			foundAdd = true
		}
	}
	if !foundAdd {
		t.Error("expected an ADD mnemonic in the scheduled runtime assembly")
	}
}

func TestCompile_IfElseSchedulesBothBranches(t *testing.T) {
	// The branch condition is built from calldataload(0), not a literal, so
	// SCCP can't prove it constant and fold the jnz to an unconditional jmp
	// (passes_test.go's TestSCCP_FoldsConstantBranchToUnconditionalJump
	// demonstrates that folding for the literal case this test used to use).
	runtime := legacyir.New("if",
		legacyir.New("lt", legacyir.New("calldataload", legacyir.NewLit("0")), legacyir.NewLit("2")),
		legacyir.New("return", legacyir.NewLit("0"), legacyir.NewLit("10")),
		legacyir.New("return", legacyir.NewLit("0"), legacyir.NewLit("20")),
	)
	root := legacyir.New("deploy", legacyir.NewLit("0"), runtime, legacyir.NewLit("0"))

	out, err := Compile(root, Options{})
	if err != nil {
		t.Fatalf("Compile returned error: %v", err)
	}
	jumpis := 0
	for _, item := range out.Asm["runtime"] {
		if item.Mnemonic == "JUMPI" {
			jumpis++
		}
	}
	if jumpis == 0 {
		t.Error("expected at least one JUMPI in the scheduled if/else assembly")
	}
}

func TestCompile_WithInliningEnabled(t *testing.T) {
	runtime := legacyir.New("return", legacyir.NewLit("0"), legacyir.NewLit("1"))
	root := legacyir.New("deploy", legacyir.NewLit("0"), runtime, legacyir.NewLit("0"))

	if _, err := Compile(root, Options{Inline: true}); err != nil {
		t.Fatalf("Compile with inlining returned error: %v", err)
	}
}
