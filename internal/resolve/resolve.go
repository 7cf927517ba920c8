package resolve

import (
	"fmt"
	"go/scanner"
	"go/token"
	"log/slog"
	"sort"
	"strings"

	"github.com/chriserin/pcc/internal/codescan"
	"github.com/chriserin/pcc/internal/grammar"
)

type resolver struct {
	s *grammar.Session
	t *grammar.Tree
}

// Resolve binds every reference in the session's rules to its target,
// assigns variable, capture and code indices, reports unused rules and left
// recursion, and freezes the tree. It returns the session's error count.
func Resolve(s *grammar.Session) int {
	if s.Tree.Frozen() {
		s.InternalError("resolve called on a frozen tree")
		return s.Diags.Errors()
	}
	r := &resolver{s: s, t: s.Tree}
	s.Logger.Debug("resolving rules", slog.Int("rules", len(s.Rules)))

	r.buildTable()
	if len(s.Rules) == 0 {
		s.SemanticError(grammar.Location{Line: 1, Col: 1}, "grammar defines no rules")
	}
	for _, id := range s.Rules {
		r.resolveRule(id)
	}
	r.checkUnused()
	r.checkLeftRecursion()
	r.checkEarlySections()
	s.Tree.Freeze()

	s.Logger.Debug("resolved rules",
		slog.Int("errors", s.Diags.Errors()),
		slog.Int("warnings", s.Diags.Warnings()))
	return s.Diags.Errors()
}

func (r *resolver) buildTable() {
	var unique []grammar.NodeID
	for _, id := range r.s.Rules {
		rule := r.t.Rule(id)
		if first, ok := r.s.Table[rule.Name]; ok {
			prev := r.t.Rule(first)
			r.s.SemanticError(rule.Loc, "rule %q already defined at %d:%d", rule.Name, prev.Loc.Line, prev.Loc.Col)
			continue
		}
		r.s.Table[rule.Name] = id
		unique = append(unique, id)
	}
	r.s.Rules = unique
}

func (r *resolver) resolveRule(id grammar.NodeID) {
	rule := r.t.Rule(id)
	var expands []*grammar.Expand
	var walk func(n grammar.NodeID)
	walk = func(n grammar.NodeID) {
		switch node := r.t.Node(n).(type) {
		case *grammar.Reference:
			r.bindReference(rule, n, node)
		case *grammar.Capture:
			node.Index = len(rule.Capts)
			rule.Capts = append(rule.Capts, n)
		case *grammar.Expand:
			expands = append(expands, node)
		case *grammar.Action:
			node.Index = len(rule.Codes)
			rule.Codes = append(rule.Codes, n)
		case *grammar.Error:
			node.Index = len(rule.Codes)
			rule.Codes = append(rule.Codes, n)
		case *grammar.Test:
			node.Index = len(rule.Codes)
			rule.Codes = append(rule.Codes, n)
		}
		for _, c := range r.t.Children(n) {
			walk(c)
		}
	}
	walk(rule.Expr)

	for _, e := range expands {
		if e.Index >= len(rule.Capts) {
			r.s.SemanticError(e.Loc, "capture $%d is not defined in rule %q", e.Index+1, rule.Name)
		}
	}
	for _, c := range rule.Codes {
		r.bindCode(rule, c)
	}
}

func (r *resolver) bindReference(rule *grammar.Rule, id grammar.NodeID, ref *grammar.Reference) {
	target, ok := r.s.Table[ref.Name]
	if !ok {
		r.s.SemanticError(ref.Loc, "undefined rule %q", ref.Name)
	} else {
		ref.Target = target
		r.t.Rule(target).Refs++
	}
	if ref.Var == "" {
		return
	}
	for i, v := range rule.Vars {
		if r.t.Node(v).(*grammar.Reference).Var == ref.Var {
			ref.Index = i
			return
		}
	}
	ref.Index = len(rule.Vars)
	rule.Vars = append(rule.Vars, id)
}

// bindCode records which variables and captures a code block mentions.
func (r *resolver) bindCode(rule *grammar.Rule, id grammar.NodeID) {
	var code *grammar.Code
	deferred := true
	switch n := r.t.Node(id).(type) {
	case *grammar.Action:
		code = &n.Code
	case *grammar.Error:
		code, deferred = &n.Code, false
	case *grammar.Test:
		code, deferred = &n.Code, false
	default:
		r.s.InternalError("rule %q lists a non-code node in its code list", rule.Name)
		return
	}

	refs, err := codescan.Scan(code.Text)
	if err != nil {
		r.s.InternalError("%v", err)
		return
	}
	for _, ref := range refs {
		switch ref.Kind {
		case codescan.Value:
			if !deferred {
				r.s.SemanticError(code.Loc, "$$ is not available in error and test blocks")
			}
		case codescan.Capture, codescan.CaptureStart, codescan.CaptureEnd:
			if ref.Index == 0 {
				continue
			}
			if ref.Index > len(rule.Capts) {
				r.s.SemanticError(code.Loc, "capture $%d is not defined in rule %q", ref.Index, rule.Name)
				continue
			}
			code.Capts = appendOnce(code.Capts, rule.Capts[ref.Index-1])
		case codescan.Ident:
			for _, v := range rule.Vars {
				if r.t.Node(v).(*grammar.Reference).Var != ref.Name {
					continue
				}
				if !deferred {
					r.s.SemanticError(code.Loc, "variable %q is not available in error and test blocks", ref.Name)
					break
				}
				code.Vars = appendOnce(code.Vars, v)
			}
		}
	}
}

func appendOnce(ids []grammar.NodeID, id grammar.NodeID) []grammar.NodeID {
	for _, x := range ids {
		if x == id {
			return ids
		}
	}
	return append(ids, id)
}

func (r *resolver) checkUnused() {
	for i, id := range r.s.Rules {
		rule := r.t.Rule(id)
		if i > 0 && rule.Refs == 0 {
			r.s.Warn(rule.Loc, "rule %q is never used", rule.Name)
		}
	}
}

// checkEarlySections rejects early sections holding anything but comments.
// They are written above the package clause, where Go allows nothing else.
func (r *resolver) checkEarlySections() {
	for _, sec := range r.s.Sections {
		if sec.Name != grammar.SectionEarlySource && sec.Name != grammar.SectionEarlyHeader {
			continue
		}
		if !onlyComments(sec.Text) {
			r.s.SemanticError(grammar.Location{Line: sec.Line, Col: 1},
				"%%%s may only contain comments and build constraints", sec.Name)
		}
	}
}

func onlyComments(text string) bool {
	fset := token.NewFileSet()
	file := fset.AddFile("", fset.Base(), len(text))
	var sc scanner.Scanner
	sc.Init(file, []byte(text), nil, scanner.ScanComments)
	for {
		_, tok, lit := sc.Scan()
		switch {
		case tok == token.EOF:
			return true
		case tok == token.COMMENT, tok == token.SEMICOLON && lit == "\n":
		default:
			return false
		}
	}
}

// checkLeftRecursion reports every group of rules that can call one another
// without consuming input. Anything that can succeed on empty input counts
// as non-consuming: predicates, actions, expansions, quantities with a zero
// minimum, and rules or sequences built only from those.
func (r *resolver) checkLeftRecursion() {
	nullable := r.nullableRules()
	order := make(map[grammar.NodeID]int, len(r.s.Rules))
	for i, id := range r.s.Rules {
		order[id] = i
	}

	edges := make(map[grammar.NodeID][]grammar.NodeID, len(r.s.Rules))
	for _, id := range r.s.Rules {
		var out []grammar.NodeID
		r.leftCalls(r.t.Rule(id).Expr, nullable, func(target grammar.NodeID) {
			out = appendOnce(out, target)
		})
		edges[id] = out
	}

	for _, scc := range stronglyConnected(r.s.Rules, edges) {
		if len(scc) == 1 && !contains(edges[scc[0]], scc[0]) {
			continue
		}
		sort.Slice(scc, func(i, j int) bool { return order[scc[i]] < order[scc[j]] })
		start := scc[0]
		cycle := r.cyclePath(start, scc, edges)
		r.s.SemanticError(r.t.Rule(start).Loc, "left recursion: %s", strings.Join(cycle, " -> "))
	}
}

func contains(ids []grammar.NodeID, id grammar.NodeID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

// cyclePath returns the names along one shortest cycle from start back to
// itself that stays inside the component.
func (r *resolver) cyclePath(start grammar.NodeID, scc []grammar.NodeID, edges map[grammar.NodeID][]grammar.NodeID) []string {
	in := make(map[grammar.NodeID]bool, len(scc))
	for _, id := range scc {
		in[id] = true
	}
	parent := map[grammar.NodeID]grammar.NodeID{}
	queue := []grammar.NodeID{start}
	last := grammar.NoNode
	for len(queue) > 0 && last == grammar.NoNode {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range edges[cur] {
			if !in[next] {
				continue
			}
			if next == start {
				last = cur
				break
			}
			if _, seen := parent[next]; !seen {
				parent[next] = cur
				queue = append(queue, next)
			}
		}
	}
	var path []string
	for id := last; id != start && id != grammar.NoNode; id = parent[id] {
		path = append([]string{r.t.Rule(id).Name}, path...)
	}
	name := r.t.Rule(start).Name
	return append(append([]string{name}, path...), name)
}

func (r *resolver) nullableRules() map[grammar.NodeID]bool {
	nullable := make(map[grammar.NodeID]bool, len(r.s.Rules))
	for changed := true; changed; {
		changed = false
		for _, id := range r.s.Rules {
			if nullable[id] {
				continue
			}
			if r.nullable(r.t.Rule(id).Expr, nullable) {
				nullable[id] = true
				changed = true
			}
		}
	}
	return nullable
}

// nullable reports whether the expression can succeed without consuming.
func (r *resolver) nullable(id grammar.NodeID, rules map[grammar.NodeID]bool) bool {
	switch n := r.t.Node(id).(type) {
	case *grammar.Reference:
		return n.Target != grammar.NoNode && rules[n.Target]
	case *grammar.String:
		return n.Value == ""
	case *grammar.CharClass, *grammar.Invalid:
		return false
	case *grammar.Quantity:
		return n.Min == 0 || r.nullable(n.Expr, rules)
	case *grammar.Predicate, *grammar.Expand, *grammar.Action:
		return true
	case *grammar.Sequence:
		for _, c := range n.Nodes {
			if !r.nullable(c, rules) {
				return false
			}
		}
		return true
	case *grammar.Alternate:
		for _, c := range n.Nodes {
			if r.nullable(c, rules) {
				return true
			}
		}
		return false
	case *grammar.Capture:
		return r.nullable(n.Expr, rules)
	case *grammar.Error:
		return r.nullable(n.Expr, rules)
	case *grammar.Test:
		return r.nullable(n.Expr, rules)
	}
	r.s.InternalError("nullable: unexpected node %T", r.t.Node(id))
	return false
}

// leftCalls reports each rule the expression may invoke at its own start
// position.
func (r *resolver) leftCalls(id grammar.NodeID, nullable map[grammar.NodeID]bool, emit func(grammar.NodeID)) {
	switch n := r.t.Node(id).(type) {
	case *grammar.Reference:
		if n.Target != grammar.NoNode {
			emit(n.Target)
		}
	case *grammar.Sequence:
		for _, c := range n.Nodes {
			r.leftCalls(c, nullable, emit)
			if !r.nullable(c, nullable) {
				return
			}
		}
	default:
		for _, c := range r.t.Children(id) {
			r.leftCalls(c, nullable, emit)
		}
	}
}

// stronglyConnected is Tarjan's algorithm over the rule call graph.
func stronglyConnected(nodes []grammar.NodeID, edges map[grammar.NodeID][]grammar.NodeID) [][]grammar.NodeID {
	index := map[grammar.NodeID]int{}
	low := map[grammar.NodeID]int{}
	onStack := map[grammar.NodeID]bool{}
	var stack []grammar.NodeID
	var out [][]grammar.NodeID
	next := 0

	var visit func(v grammar.NodeID)
	visit = func(v grammar.NodeID) {
		index[v], low[v] = next, next
		next++
		stack = append(stack, v)
		onStack[v] = true
		for _, w := range edges[v] {
			if _, seen := index[w]; !seen {
				visit(w)
				low[v] = min(low[v], low[w])
			} else if onStack[w] {
				low[v] = min(low[v], index[w])
			}
		}
		if low[v] != index[v] {
			return
		}
		var scc []grammar.NodeID
		for {
			w := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[w] = false
			scc = append(scc, w)
			if w == v {
				break
			}
		}
		out = append(out, scc)
	}
	for _, v := range nodes {
		if _, seen := index[v]; !seen {
			visit(v)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return first(out[i], nodes) < first(out[j], nodes) })
	return out
}

func first(scc []grammar.NodeID, order []grammar.NodeID) int {
	for i, id := range order {
		if contains(scc, id) {
			return i
		}
	}
	return len(order)
}

// Describe renders a one-line summary of a resolved rule.
func Describe(t *grammar.Tree, rule *grammar.Rule) string {
	vars := make([]string, len(rule.Vars))
	for i, v := range rule.Vars {
		vars[i] = t.Node(v).(*grammar.Reference).Var
	}
	return fmt.Sprintf("%s refs=%d vars=[%s] captures=%d codes=%d",
		rule.Name, rule.Refs, strings.Join(vars, " "), len(rule.Capts), len(rule.Codes))
}
