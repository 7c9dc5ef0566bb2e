package analysis

import "kanso/internal/venom/ir"

// CallGraph is the function call graph: for each function, the set of
// callees it invokes and the inverse "who invokes me" edge, plus an index
// from callee name to every invoke instruction that targets it (the
// inliner's work list).
type CallGraph struct {
	callees   map[string]map[string]struct{}
	callers   map[string]map[string]struct{}
	callSites map[string][]*ir.Instruction
}

// ComputeCallGraph scans every function's "invoke" instructions.
func ComputeCallGraph(ctx *ir.Context) *CallGraph {
	cg := &CallGraph{
		callees:   map[string]map[string]struct{}{},
		callers:   map[string]map[string]struct{}{},
		callSites: map[string][]*ir.Instruction{},
	}
	for _, fn := range ctx.FunctionsInOrder() {
		cg.callees[fn.Name] = map[string]struct{}{}
		for _, b := range fn.Blocks {
			for _, inst := range b.Instructions {
				if inst.Opcode != "invoke" {
					continue
				}
				target := inst.Operands[0]
				label, ok := ir.AsLabel(target)
				if !ok {
					continue
				}
				cg.callees[fn.Name][label.Value] = struct{}{}
				if cg.callers[label.Value] == nil {
					cg.callers[label.Value] = map[string]struct{}{}
				}
				cg.callers[label.Value][fn.Name] = struct{}{}
				cg.callSites[label.Value] = append(cg.callSites[label.Value], inst)
			}
		}
	}
	return cg
}

// Callees returns the set of function names fn invokes.
func (cg *CallGraph) Callees(fn string) map[string]struct{} { return cg.callees[fn] }

// Callers returns the set of function names that invoke fn.
func (cg *CallGraph) Callers(fn string) map[string]struct{} { return cg.callers[fn] }

// CallSites returns every invoke instruction targeting fn, across the
// whole context.
func (cg *CallGraph) CallSites(fn string) []*ir.Instruction { return cg.callSites[fn] }

// SingleCallSite reports whether fn has exactly one invoke site anywhere
// in the context, and returns it. This is the inliner's eligibility test.
func (cg *CallGraph) SingleCallSite(fn string) (*ir.Instruction, bool) {
	sites := cg.callSites[fn]
	if len(sites) != 1 {
		return nil, false
	}
	return sites[0], true
}

// PostOrder returns function names in a post-order call-graph walk
// (callees before callers), the order the inliner processes functions in.
// Recursion (a function reachable from itself) breaks ties by visiting
// each name at most once.
func (cg *CallGraph) PostOrder(ctx *ir.Context) []string {
	var order []string
	visited := map[string]struct{}{}
	var visit func(name string)
	visit = func(name string) {
		if _, ok := visited[name]; ok {
			return
		}
		visited[name] = struct{}{}
		for callee := range cg.callees[name] {
			visit(callee)
		}
		order = append(order, name)
	}
	for _, name := range ctx.Order {
		visit(name)
	}
	return order
}
