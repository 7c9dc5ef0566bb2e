package analysis

import (
	"kanso/internal/venom/ir"
	"kanso/internal/venom/verrors"
)

// Kind identifies one of the memoized analysis types.
type Kind int

const (
	KindCFG Kind = iota
	KindDominators
	KindDFG
	KindLiveness
	KindMemorySSAMemory
	KindMemorySSAStorage
	KindCallGraph
	numKinds
)

// dependents is the fixed invalidation dependency graph from spec §5:
// invalidating a kind transitively invalidates everything it lists.
var dependents = map[Kind][]Kind{
	KindCFG: {KindDominators, KindLiveness, KindDFG, KindMemorySSAMemory, KindMemorySSAStorage, KindCallGraph},
	KindDFG: {KindMemorySSAMemory, KindMemorySSAStorage, KindLiveness},
}

// Manager memoizes per-function analyses and invalidates them transitively
// along the fixed dependency graph above. Every analysis handed out is
// generation-stamped; Handle.Get panics with an AnalysisPanic if the
// function has since been invalidated, so a pass that holds a reference
// across a mutation it should have invalidated gets a loud failure instead
// of a silently wrong answer (spec §5).
type Manager struct {
	ctx  *ir.Context
	gen  map[*ir.Function][numKinds]int
	data map[*ir.Function]map[Kind]interface{}
}

// NewManager creates an analysis manager for ctx.
func NewManager(ctx *ir.Context) *Manager {
	return &Manager{
		ctx:  ctx,
		gen:  map[*ir.Function][numKinds]int{},
		data: map[*ir.Function]map[Kind]interface{}{},
	}
}

// Handle is a generation-stamped reference to a memoized analysis result.
type Handle struct {
	mgr  *Manager
	fn   *ir.Function
	kind Kind
	gen  int
	val  interface{}
}

// Get returns the underlying analysis value, panicking if the function's
// generation for this kind has advanced since the handle was minted.
func (h *Handle) Get() interface{} {
	if h.mgr.gen[h.fn][h.kind] != h.gen {
		panic(verrors.AnalysisPanicf("stale analysis kind=%d used after invalidation in function %s", h.kind, h.fn.Name))
	}
	return h.val
}

func (m *Manager) currentGen(fn *ir.Function, kind Kind) int {
	g := m.gen[fn]
	return g[kind]
}

func (m *Manager) get(fn *ir.Function, kind Kind, compute func() interface{}) *Handle {
	if m.data[fn] == nil {
		m.data[fn] = map[Kind]interface{}{}
	}
	if v, ok := m.data[fn][kind]; ok {
		return &Handle{mgr: m, fn: fn, kind: kind, gen: m.currentGen(fn, kind), val: v}
	}
	v := compute()
	m.data[fn][kind] = v
	return &Handle{mgr: m, fn: fn, kind: kind, gen: m.currentGen(fn, kind), val: v}
}

// CFG returns (memoized) fn's CFG, (re)computing it if needed.
func (m *Manager) CFG(fn *ir.Function) *CFG {
	return m.get(fn, KindCFG, func() interface{} { return ComputeCFG(fn) }).Get().(*CFG)
}

// Dominators returns (memoized) fn's dominator tree.
func (m *Manager) Dominators(fn *ir.Function) *Dominators {
	m.CFG(fn)
	return m.get(fn, KindDominators, func() interface{} { return ComputeDominators(fn) }).Get().(*Dominators)
}

// DFG returns (memoized) fn's def/use graph.
func (m *Manager) DFG(fn *ir.Function) *DFG {
	return m.get(fn, KindDFG, func() interface{} { return ComputeDFG(fn) }).Get().(*DFG)
}

// Liveness returns (memoized) fn's liveness analysis.
func (m *Manager) Liveness(fn *ir.Function) *Liveness {
	m.CFG(fn)
	return m.get(fn, KindLiveness, func() interface{} { return ComputeLiveness(fn) }).Get().(*Liveness)
}

// MemorySSA returns (memoized) fn's Memory SSA for plain memory
// (mload/mstore).
func (m *Manager) MemorySSA(fn *ir.Function) *MemorySSA {
	dom := m.Dominators(fn)
	return m.get(fn, KindMemorySSAMemory, func() interface{} {
		return BuildMemorySSA(fn, dom, "mload", "mstore")
	}).Get().(*MemorySSA)
}

// StorageSSA returns (memoized) fn's Memory SSA over storage
// (sload/sstore).
func (m *Manager) StorageSSA(fn *ir.Function) *MemorySSA {
	dom := m.Dominators(fn)
	return m.get(fn, KindMemorySSAStorage, func() interface{} {
		return BuildMemorySSA(fn, dom, "sload", "sstore")
	}).Get().(*MemorySSA)
}

// CallGraph returns (memoized) the whole-context call graph. It is keyed
// by context rather than function, but stored against nil so the same
// invalidation machinery (InvalidateCallGraph) applies uniformly.
func (m *Manager) CallGraph() *CallGraph {
	return m.get(nil, KindCallGraph, func() interface{} { return ComputeCallGraph(m.ctx) }).Get().(*CallGraph)
}

// Invalidate bumps the generation counter for kind on fn, and transitively
// for everything dependents[kind] lists, dropping their cached values so
// the next request recomputes.
func (m *Manager) Invalidate(fn *ir.Function, kind Kind) {
	m.invalidateOne(fn, kind)
	for _, dep := range dependents[kind] {
		m.Invalidate(fn, dep)
	}
}

func (m *Manager) invalidateOne(fn *ir.Function, kind Kind) {
	g := m.gen[fn]
	g[kind]++
	m.gen[fn] = g
	if m.data[fn] != nil {
		delete(m.data[fn], kind)
	}
}

// InvalidateCFG is the common entry point for any pass that mutates a
// function's control flow (block add/remove, terminator rewrite): it
// invalidates CFG and, transitively, dominators/liveness/DFG/MemSSA/FCG.
func (m *Manager) InvalidateCFG(fn *ir.Function) { m.Invalidate(fn, KindCFG) }

// InvalidateDFG invalidates def/use data, and transitively MemSSA and
// liveness (which both depend on knowing current defs/uses).
func (m *Manager) InvalidateDFG(fn *ir.Function) { m.Invalidate(fn, KindDFG) }

// InvalidateCallGraph invalidates the whole-context call graph, e.g. after
// inlining removes a function.
func (m *Manager) InvalidateCallGraph() { m.Invalidate(nil, KindCallGraph) }
