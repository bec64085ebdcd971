package structural

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

func init() {
	registerLanguage(&language{
		name: "python",
		kinds: map[string]NodeKind{
			"function_definition":     KindFunction,
			"class_definition":        KindClass,
			"import_statement":        KindImport,
			"import_from_statement":   KindImport,
			"future_import_statement": KindImport,
			"if_statement":            KindConditionalBranch,
			"elif_clause":             KindConditionalBranch,
			"while_statement":         KindConditionalBranch,
			"for_statement":           KindConditionalBranch,
			"except_clause":           KindExceptionHandler,
			"except_group_clause":     KindExceptionHandler,
			"boolean_operator":        KindBooleanOp,
		},
		rejected: map[string]string{
			"print_statement": "Python 2 print statement",
			"exec_statement":  "Python 2 exec statement",
		},
		params:     pythonParams,
		returnType: func(fn *tree_sitter.Node) bool { return fn.ChildByFieldName("return_type") != nil },
		docstring:  pythonDocstring,
		isTest:     func(name string) bool { return strings.HasPrefix(name, "test_") },
		selfNames:  map[string]bool{"self": true, "cls": true},
	})
}

// pythonParams returns the positional-or-keyword parameters. Positional-only
// parameters (before "/"), *args, keyword-only parameters and **kwargs are
// excluded.
func pythonParams(fn *tree_sitter.Node, src []byte) []param {
	list := fn.ChildByFieldName("parameters")
	if list == nil {
		return nil
	}

	var out []param
	for i := uint(0); i < list.NamedChildCount(); i++ {
		p := list.NamedChild(i)
		switch p.Kind() {
		case "identifier":
			out = append(out, param{name: p.Utf8Text(src)})
		case "default_parameter":
			out = append(out, param{name: fieldText(p, "name", src)})
		case "typed_default_parameter":
			out = append(out, param{name: fieldText(p, "name", src), annotated: true})
		case "typed_parameter":
			inner := p.NamedChild(0)
			if inner == nil {
				continue
			}
			switch inner.Kind() {
			case "list_splat_pattern":
				return out
			case "dictionary_splat_pattern":
				continue
			}
			out = append(out, param{name: inner.Utf8Text(src), annotated: true})
		case "positional_separator":
			out = out[:0]
		case "list_splat_pattern", "keyword_separator":
			return out
		}
	}
	return out
}

func fieldText(n *tree_sitter.Node, field string, src []byte) string {
	if f := n.ChildByFieldName(field); f != nil {
		return f.Utf8Text(src)
	}
	return ""
}

// pythonDocstring reports whether the body of a def or class starts with a
// non-empty string literal.
func pythonDocstring(n *tree_sitter.Node, src []byte) bool {
	body := n.ChildByFieldName("body")
	if body == nil {
		return false
	}
	for i := uint(0); i < body.NamedChildCount(); i++ {
		stmt := body.NamedChild(i)
		if stmt.Kind() == "comment" {
			continue
		}
		if stmt.Kind() != "expression_statement" || stmt.NamedChildCount() == 0 {
			return false
		}
		lit := stmt.NamedChild(0)
		switch lit.Kind() {
		case "string", "concatenated_string":
			return stringLiteralContent(lit.Utf8Text(src)) != ""
		}
		return false
	}
	return false
}

// stringLiteralContent strips prefix letters and quotes from a Python string
// literal and trims surrounding whitespace.
func stringLiteralContent(lit string) string {
	lit = strings.TrimLeft(lit, "rRbBuUfF")
	lit = strings.Trim(lit, `"'`)
	return strings.TrimSpace(lit)
}
