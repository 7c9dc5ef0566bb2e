// Package passes implements the Venom rewrite passes: MakeSSA, SimplifyCFG,
// SCCP, Mem2Var, StoreElimination/RedundantLoadElimination,
// RemoveUnusedVariables, DFTPass, and the function inliner.
package passes

import (
	"kanso/internal/venom/analysis"
	"kanso/internal/venom/ir"
)

// Pass is a single rewrite over one function. Changed reports whether the
// function was mutated, so the manager knows whether to re-run dependent
// passes in an iterate-to-fixpoint pipeline.
type Pass interface {
	Name() string
	RunOnFunction(fn *ir.Function, mgr *analysis.Manager) (changed bool, err error)
}

// Manager sequences passes over every function in a context. Passes do not
// declare the analyses they invalidate; each pass invalidates what it
// changed itself, and the manager neither tracks nor checks this.
type Manager struct {
	passes []Pass
	am     *analysis.Manager
}

// NewManager creates a pass manager backed by am.
func NewManager(am *analysis.Manager) *Manager {
	return &Manager{am: am}
}

// Add appends a pass to the pipeline.
func (pm *Manager) Add(p Pass) *Manager {
	pm.passes = append(pm.passes, p)
	return pm
}

// RunOnFunction runs every pass once, in order, over fn.
func (pm *Manager) RunOnFunction(fn *ir.Function) error {
	for _, p := range pm.passes {
		if _, err := p.RunOnFunction(fn, pm.am); err != nil {
			return err
		}
	}
	return nil
}

// RunToFixpoint repeats the full pipeline over fn until no pass reports a
// change, bounded by maxIterations as a termination backstop.
func (pm *Manager) RunToFixpoint(fn *ir.Function, maxIterations int) error {
	for i := 0; i < maxIterations; i++ {
		anyChanged := false
		for _, p := range pm.passes {
			changed, err := p.RunOnFunction(fn, pm.am)
			if err != nil {
				return err
			}
			anyChanged = anyChanged || changed
		}
		if !anyChanged {
			return nil
		}
	}
	return nil
}

// RunOnContext runs RunOnFunction over every function in ctx, in stable
// order.
func (pm *Manager) RunOnContext(ctx *ir.Context) error {
	for _, fn := range ctx.FunctionsInOrder() {
		if err := pm.RunOnFunction(fn); err != nil {
			return err
		}
	}
	return nil
}

// ContextPass is a rewrite that needs the whole context at once rather
// than one function in isolation — currently only the inliner, which
// removes a callee function entirely once it has been spliced into its
// caller.
type ContextPass interface {
	RunOnContext(ctx *ir.Context, mgr *analysis.Manager) (changed bool, err error)
}
