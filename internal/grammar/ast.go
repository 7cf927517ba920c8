package grammar

// NodeID indexes a node in a Tree. Every link inside the AST, including the
// non-owning Reference -> Rule link, is a NodeID rather than a pointer.
type NodeID int32

// NoNode marks an unset link.
const NoNode NodeID = -1

// Unbounded is the Quantity.Max sentinel for "no upper limit".
const Unbounded = -1

type Location struct {
	Line int
	Col  int
}

// Node is one variant of the AST sum type. The set of variants is closed:
// only the types in this file implement it.
type Node interface {
	node()
}

type Rule struct {
	Name  string
	Expr  NodeID
	Refs  int      // incoming references, filled by the resolver
	Vars  []NodeID // first Reference binding each variable name; position is the variable index
	Capts []NodeID // Capture nodes in index order
	Codes []NodeID // Action, Error and Test nodes in index order
	Loc   Location
}

type Reference struct {
	Var    string // empty when the reference binds no variable
	Index  int    // variable index, -1 when Var is empty
	Name   string
	Target NodeID // resolved Rule, NoNode until resolution
	Loc    Location
}

type String struct {
	Value string
}

// CharClass matches one character. A nil Pattern matches any character.
type CharClass struct {
	Pattern *string
}

type Quantity struct {
	Min  int
	Max  int // Unbounded for no limit
	Expr NodeID
}

type Predicate struct {
	Neg  bool
	Expr NodeID
}

type Sequence struct {
	Nodes []NodeID
}

type Alternate struct {
	Nodes []NodeID
}

type Capture struct {
	Expr  NodeID
	Index int
}

// Expand matches the text of an earlier capture; Index is 0-based.
type Expand struct {
	Index int
	Loc   Location
}

// Code is the part shared by actions and the error/test directives.
type Code struct {
	Text  string
	Index int
	Vars  []NodeID // Reference nodes whose variables the text mentions
	Capts []NodeID // Capture nodes the text mentions
	Loc   Location
}

type Action struct {
	Code
}

// Error runs its code when Expr fails.
type Error struct {
	Expr NodeID
	Code
}

// Test runs its code after Expr matches and fails the match when the code
// evaluates to false.
type Test struct {
	Expr NodeID
	Code
}

// Invalid stands in for an expression that failed to parse.
type Invalid struct {
	Loc Location
}

func (*Rule) node()      {}
func (*Reference) node() {}
func (*String) node()    {}
func (*CharClass) node() {}
func (*Quantity) node()  {}
func (*Predicate) node() {}
func (*Sequence) node()  {}
func (*Alternate) node() {}
func (*Capture) node()   {}
func (*Expand) node()    {}
func (*Action) node()    {}
func (*Error) node()     {}
func (*Test) node()      {}
func (*Invalid) node()   {}

// Tree is the arena holding every node of one compilation. Nodes are added
// while parsing, mutated in place by the resolver, and frozen before code
// generation reads them.
type Tree struct {
	nodes  []Node
	frozen bool
}

func (t *Tree) Add(n Node) NodeID {
	if t.frozen {
		panic("grammar: node added to a frozen tree")
	}
	t.nodes = append(t.nodes, n)
	return NodeID(len(t.nodes) - 1)
}

func (t *Tree) Node(id NodeID) Node {
	if id < 0 || int(id) >= len(t.nodes) {
		return nil
	}
	return t.nodes[id]
}

// Rule returns the node as a Rule, or nil when it is some other variant.
func (t *Tree) Rule(id NodeID) *Rule {
	r, _ := t.Node(id).(*Rule)
	return r
}

func (t *Tree) Len() int { return len(t.nodes) }

// Freeze closes the resolution window. Later phases only read.
func (t *Tree) Freeze() { t.frozen = true }

func (t *Tree) Frozen() bool { return t.frozen }

// Children returns the owned sub-expressions of a node in source order.
// Reference targets are links, not children, and are never returned.
func (t *Tree) Children(id NodeID) []NodeID {
	switch n := t.Node(id).(type) {
	case *Rule:
		return []NodeID{n.Expr}
	case *Quantity:
		return []NodeID{n.Expr}
	case *Predicate:
		return []NodeID{n.Expr}
	case *Sequence:
		return n.Nodes
	case *Alternate:
		return n.Nodes
	case *Capture:
		return []NodeID{n.Expr}
	case *Error:
		return []NodeID{n.Expr}
	case *Test:
		return []NodeID{n.Expr}
	}
	return nil
}

// Section is a verbatim pass-through block such as %source or the %% footer.
type Section struct {
	Name string
	Text string
	Line int
}

// Section names recognised by the grammar parser.
const (
	SectionImport      = "import"
	SectionHeader      = "header"
	SectionSource      = "source"
	SectionEarlyHeader = "earlyheader"
	SectionEarlySource = "earlysource"
	SectionFooter      = "footer"
)

var sectionNames = map[string]bool{
	SectionImport:      true,
	SectionHeader:      true,
	SectionSource:      true,
	SectionEarlyHeader: true,
	SectionEarlySource: true,
}

type Options struct {
	Value   string
	Auxil   string
	Prefix  string
	Package string
}

const (
	DefaultValue   = "int"
	DefaultAuxil   = "any"
	DefaultPrefix  = "pcc"
	DefaultPackage = "main"
)

// Resolved returns the options with defaults substituted for unset values.
func (o Options) Resolved() Options {
	if o.Value == "" {
		o.Value = DefaultValue
	}
	if o.Auxil == "" {
		o.Auxil = DefaultAuxil
	}
	if o.Prefix == "" {
		o.Prefix = DefaultPrefix
	}
	if o.Package == "" {
		o.Package = DefaultPackage
	}
	return o
}
