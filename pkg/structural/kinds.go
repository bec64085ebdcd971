package structural

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// NodeKind is the closed set of syntax node kinds the analyser acts on.
// Every tree-sitter node is classified into exactly one kind.
type NodeKind int

const (
	KindOther NodeKind = iota
	KindFunction
	KindClass
	KindImport
	KindConditionalBranch
	KindBooleanOp
	KindExceptionHandler
)

var kindNames = [...]string{
	KindOther:             "other",
	KindFunction:          "function",
	KindClass:             "class",
	KindImport:            "import",
	KindConditionalBranch: "branch",
	KindBooleanOp:         "boolean_op",
	KindExceptionHandler:  "exception_handler",
}

func (k NodeKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// param is one positional parameter of a function.
type param struct {
	name      string
	annotated bool
}

// language holds the per-language node table and the inspectors the
// analyser needs for function and class nodes.
type language struct {
	name string

	// kinds maps tree-sitter node kinds to analyser kinds. Kinds not listed
	// are KindOther.
	kinds map[string]NodeKind

	// rejected are node kinds the grammar still parses that the language
	// itself no longer accepts, mapped to a description for the error.
	rejected map[string]string

	// refine may demote a table match, e.g. a binary expression that is not
	// a logical operator. Optional.
	refine func(n *tree_sitter.Node, kind NodeKind, src []byte) NodeKind

	params     func(fn *tree_sitter.Node, src []byte) []param
	returnType func(fn *tree_sitter.Node) bool
	docstring  func(n *tree_sitter.Node, src []byte) bool
	isTest     func(name string) bool

	// staticTypes languages always carry type information; annotation
	// checks are skipped for them.
	staticTypes bool

	// selfNames are receiver-style parameters exempt from annotation checks.
	selfNames map[string]bool
}

var languages = map[string]*language{}

func registerLanguage(l *language) {
	languages[l.name] = l
}

// Supported reports whether a language has a structural node table.
func Supported(lang string) bool {
	_, ok := languages[lang]
	return ok
}

func (l *language) classify(n *tree_sitter.Node, src []byte) NodeKind {
	kind, ok := l.kinds[n.Kind()]
	if !ok {
		return KindOther
	}
	if l.refine != nil {
		kind = l.refine(n, kind, src)
	}
	return kind
}

// logicalOperator reports whether a binary node's operator is a short-circuit
// logical operator.
func logicalOperator(n *tree_sitter.Node, src []byte) bool {
	if op := n.ChildByFieldName("operator"); op != nil {
		return isLogical(op.Utf8Text(src))
	}
	for i := uint(0); i < n.ChildCount(); i++ {
		if c := n.Child(i); !c.IsNamed() && isLogical(c.Utf8Text(src)) {
			return true
		}
	}
	return false
}

func isLogical(op string) bool {
	switch op {
	case "&&", "||", "and", "or":
		return true
	}
	return false
}

func nodeName(n *tree_sitter.Node, src []byte) string {
	if name := n.ChildByFieldName("name"); name != nil {
		return name.Utf8Text(src)
	}
	return "<anonymous>"
}

// hasTestPrefix reports whether name is prefix followed by nothing or by a
// non-lowercase character, matching the Go test naming rule.
func hasTestPrefix(name, prefix string) bool {
	if !strings.HasPrefix(name, prefix) {
		return false
	}
	rest := name[len(prefix):]
	if rest == "" {
		return true
	}
	c := rest[0]
	return c < 'a' || c > 'z'
}
