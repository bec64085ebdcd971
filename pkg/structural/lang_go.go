package structural

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

func init() {
	registerLanguage(&language{
		name: "go",
		kinds: map[string]NodeKind{
			"function_declaration": KindFunction,
			"method_declaration":   KindFunction,
			"type_spec":            KindClass,
			"import_spec":          KindImport,
			"if_statement":         KindConditionalBranch,
			"for_statement":        KindConditionalBranch,
			"expression_case":      KindConditionalBranch,
			"type_case":            KindConditionalBranch,
			"communication_case":   KindConditionalBranch,
			"binary_expression":    KindBooleanOp,
		},
		refine:      goRefine,
		params:      goParams,
		docstring:   goDocComment,
		isTest:      goIsTest,
		staticTypes: true,
	})
}

func goRefine(n *tree_sitter.Node, kind NodeKind, src []byte) NodeKind {
	switch kind {
	case KindBooleanOp:
		if !logicalOperator(n, src) {
			return KindOther
		}
	case KindClass:
		// Only struct and interface definitions are class-like; aliases and
		// named scalars are not.
		t := n.ChildByFieldName("type")
		if t == nil || (t.Kind() != "struct_type" && t.Kind() != "interface_type") {
			return KindOther
		}
	}
	return kind
}

// goParams counts every declared parameter name. Unnamed parameters count
// once per declaration.
func goParams(fn *tree_sitter.Node, src []byte) []param {
	list := fn.ChildByFieldName("parameters")
	if list == nil {
		return nil
	}

	var out []param
	for i := uint(0); i < list.NamedChildCount(); i++ {
		decl := list.NamedChild(i)
		if decl.Kind() != "parameter_declaration" && decl.Kind() != "variadic_parameter_declaration" {
			continue
		}
		named := 0
		for j := uint(0); j < decl.NamedChildCount(); j++ {
			if id := decl.NamedChild(j); id.Kind() == "identifier" {
				out = append(out, param{name: id.Utf8Text(src), annotated: true})
				named++
			}
		}
		if named == 0 {
			out = append(out, param{name: "_", annotated: true})
		}
	}
	return out
}

// goDocComment reports whether a comment ends on the line directly above the
// declaration. For a type spec inside a single type declaration the comment
// sits above the "type" keyword.
func goDocComment(n *tree_sitter.Node, _ []byte) bool {
	if commentAbove(n) {
		return true
	}
	if p := n.Parent(); p != nil && p.Kind() == "type_declaration" {
		return commentAbove(p)
	}
	return false
}

func commentAbove(n *tree_sitter.Node) bool {
	prev := n.PrevSibling()
	if prev == nil || prev.Kind() != "comment" {
		return false
	}
	return prev.EndPosition().Row+1 == n.StartPosition().Row
}

func goIsTest(name string) bool {
	for _, prefix := range []string{"Test", "Benchmark", "Fuzz"} {
		if hasTestPrefix(name, prefix) {
			return true
		}
	}
	return false
}
